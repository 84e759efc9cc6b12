package shift

import (
	"fmt"
	"time"

	shiftdb "github.com/nao1215/shiftcare/internal/shift/db"
	"github.com/nao1215/shiftcare/pkg/spreadsheet"
)

var weekdayLabels = [...]string{"日", "月", "火", "水", "木", "金", "土"}

var (
	exportHeaders = []string{"日付", "曜日", "スタッフ", "シフト", "開始", "終了", "確定"}
	exportWidths  = []float64{12, 6, 16, 8, 8, 8, 8}
)

// MonthXLSX は生成シフトの一覧をExcelで返す。
func MonthXLSX(month string, shifts []shiftdb.Shift) ([]byte, error) {
	rows := make([][]string, 0, len(shifts))
	for _, s := range shifts {
		weekday := ""
		if d, err := time.Parse("2006-01-02", s.Date); err == nil {
			weekday = weekdayLabels[d.Weekday()]
		}
		name := s.StaffName
		if name == "" {
			name = s.UserID
		}
		confirmed := "未確定"
		if s.IsConfirmed {
			confirmed = "確定"
		}
		rows = append(rows, []string{s.Date, weekday, name, TypeLabel(s.ShiftType), s.StartTime, s.EndTime, confirmed})
	}
	return spreadsheet.Write(month, exportHeaders, exportWidths, rows)
}

// ExportFilename は生成シフトのExcelのファイル名を返す。
func ExportFilename(month string) string {
	return fmt.Sprintf("shifts-%s.xlsx", month)
}
