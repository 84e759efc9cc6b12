package staff

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	staffdb "github.com/nao1215/shiftcare/internal/staff/db"
	"github.com/nao1215/shiftcare/pkg/document"
	"github.com/nao1215/shiftcare/pkg/spreadsheet"
	"github.com/nao1215/shiftcare/pkg/textwrap"
)

// rosterTitle は勤務体制一覧表の表題とシート名。
const rosterTitle = "勤務体制一覧表"

var (
	rosterHeaders    = []string{"氏名", "職種", "資格", "雇用形態", "週間勤務時間", "夜勤可否"}
	rosterPDFWidths  = []float64{80, 60, 120, 70, 80, 60}
	rosterXLSXWidths = []float64{15, 12, 30, 12, 15, 12}
)

// ErrMissingColumns は取り込むファイルに必須の列が無い場合のエラー。
var ErrMissingColumns = errors.New("氏名・メールアドレスの列が必要です")

// RosterRow は勤務体制一覧表の1行。
type RosterRow struct {
	Name           string
	Position       string
	Qualifications string
	EmploymentType string
	WeeklyHours    string
	NightShift     string
}

// cells は表の1行分のセルを返す。
func (r RosterRow) cells() []string {
	return []string{r.Name, r.Position, r.Qualifications, r.EmploymentType, r.WeeklyHours, r.NightShift}
}

// BuildRoster は勤務体制一覧表の行を組み立てる。管理者と退職者は含めない。
func BuildRoster(staff []staffdb.Staff) []RosterRow {
	rows := make([]RosterRow, 0, len(staff))
	for _, s := range staff {
		if s.Role != "staff" || !s.IsActive {
			continue
		}
		r := RosterRow{
			Name:           s.Name,
			Position:       s.Position,
			Qualifications: strings.Join(decodeQualifications(s.Qualifications), ", "),
			EmploymentType: "非常勤",
			WeeklyHours:    "-",
			NightShift:     "否",
		}
		if r.Position == "" {
			r.Position = "支援員"
		}
		if s.EmploymentType == EmploymentFullTime {
			r.EmploymentType = "常勤"
		}
		if s.WeeklyHours > 0 {
			r.WeeklyHours = fmt.Sprintf("%d時間", s.WeeklyHours)
		}
		if s.NightShiftOK {
			r.NightShift = "可"
		}
		rows = append(rows, r)
	}
	return rows
}

// RosterPDF は勤務体制一覧表のPDFを生成する。資格欄は15文字を超えると省略する。
func RosterPDF(opts document.Options, rows []RosterRow, now time.Time) ([]byte, error) {
	b, err := document.New(opts)
	if err != nil {
		return nil, err
	}

	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		c := r.cells()
		c[2] = textwrap.TruncateRunes(c[2], 15, 12)
		cells = append(cells, c)
	}

	return b.Header().
		Title(rosterTitle).
		Subtitle(document.ExportDateLine("出力日時", now)).
		Separator().
		Table(rosterHeaders, rosterPDFWidths, cells).
		Footer(document.FooterText).
		Bytes()
}

// RosterXLSX は勤務体制一覧表のExcelファイルを生成する。
func RosterXLSX(rows []RosterRow) ([]byte, error) {
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, r.cells())
	}
	return spreadsheet.Write(rosterTitle, rosterHeaders, rosterXLSXWidths, cells)
}

// RosterFilename は出力ファイル名（staff-list-YYYYMMDD.ext）を返す。
func RosterFilename(now time.Time, ext string) string {
	return fmt.Sprintf("staff-list-%s.%s", now.Format("20060102"), ext)
}

// ImportRow は取り込むファイルの1行を解釈した結果。
type ImportRow struct {
	// Line はファイル上の行番号（見出し行が1）。
	Line int
	// Input は登録内容。
	Input Input
}

// importColumns は取り込み時に認識する見出し。日本語と英語の両方を受け付ける。
var importColumns = map[string][]string{
	"name":            {"氏名", "name"},
	"email":           {"メールアドレス", "email"},
	"role":            {"権限", "role"},
	"position":        {"職種", "職位", "position"},
	"department":      {"部署", "department"},
	"qualifications":  {"資格", "qualifications"},
	"employment_type": {"雇用形態", "employment_type"},
	"weekly_hours":    {"週間勤務時間", "weekly_hours"},
	"night_shift_ok":  {"夜勤可否", "night_shift_ok"},
	"phone":           {"電話番号", "phone"},
	"joined_date":     {"入職日", "joined_date"},
}

var (
	qualificationSeparator = regexp.MustCompile(`\s*[,、，/]\s*`)
	hoursRegex             = regexp.MustCompile(`^\d+`)
)

// ParseImport は見出し行付きの表をスタッフ登録内容に変換する。
// 空行は読み飛ばす。
func ParseImport(rows [][]string) ([]ImportRow, error) {
	if len(rows) == 0 {
		return nil, spreadsheet.ErrEmptyWorksheet
	}

	header := spreadsheet.HeaderIndex(rows[0])
	col := make(map[string]int, len(importColumns))
	for key, names := range importColumns {
		col[key] = -1
		for _, n := range names {
			if i, ok := header[spreadsheet.NormalizeHeader(n)]; ok {
				col[key] = i
				break
			}
		}
	}
	if col["name"] < 0 || col["email"] < 0 {
		return nil, ErrMissingColumns
	}

	var out []ImportRow
	for i, row := range rows[1:] {
		get := func(key string) string { return spreadsheet.Cell(row, col[key]) }
		if get("name") == "" && get("email") == "" {
			continue
		}

		in := Input{
			Name:           get("name"),
			Email:          get("email"),
			Role:           parseRole(get("role")),
			Position:       get("position"),
			Department:     get("department"),
			EmploymentType: parseEmploymentType(get("employment_type")),
			NightShiftOK:   parseYes(get("night_shift_ok")),
			Phone:          get("phone"),
			JoinedDate:     get("joined_date"),
		}
		if q := get("qualifications"); q != "" {
			in.Qualifications = qualificationSeparator.Split(q, -1)
		}
		if h := hoursRegex.FindString(get("weekly_hours")); h != "" {
			n, _ := strconv.Atoi(h)
			in.WeeklyHours = &n
		}
		out = append(out, ImportRow{Line: i + 2, Input: in})
	}
	return out, nil
}

func parseRole(s string) string {
	switch strings.ToLower(s) {
	case "admin", "管理者":
		return "admin"
	default:
		return "staff"
	}
}

func parseEmploymentType(s string) string {
	switch strings.TrimSpace(s) {
	case "常勤", "正社員", EmploymentFullTime:
		return EmploymentFullTime
	case "非常勤", "パート", "パートタイム", EmploymentPartTime:
		return EmploymentPartTime
	case "契約", "契約社員", EmploymentContract:
		return EmploymentContract
	default:
		return ""
	}
}

func parseYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "可", "○", "◯", "yes", "true", "1":
		return true
	default:
		return false
	}
}
