// Package spreadsheet はExcelファイルの出力と、名簿などの取り込み用の読み込みを提供する。
package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// ContentType はxlsxファイルのMIMEタイプ。
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// maxXLSRows は.xlsファイルから読み込む最大行数。
const maxXLSRows = 100000

var (
	// ErrNoWorksheet はシートが存在しない場合のエラー。
	ErrNoWorksheet = errors.New("シートが見つかりません")
	// ErrMultipleWorksheets は.xlsファイルに複数のシートがある場合のエラー。
	ErrMultipleWorksheets = errors.New("シートが複数あります。シートが1つのファイルをアップロードしてください")
	// ErrEmptyWorksheet はシートが空の場合のエラー。
	ErrEmptyWorksheet = errors.New("シートが空です")
	// ErrNoColumns は列の定義が無い場合のエラー。
	ErrNoColumns = errors.New("列が定義されていません")
)

// Write は見出し行付きの1シートのxlsxファイルを生成する。
// 見出し行は太字・灰色の背景・罫線付き。widthsは各列の幅（文字数）で、0の列は既定幅のまま。
func Write(sheet string, headers []string, widths []float64, rows [][]string) ([]byte, error) {
	if len(headers) == 0 {
		return nil, ErrNoColumns
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("シート名の設定に失敗: %w", err)
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("見出し行の書き込みに失敗: %w", err)
	}

	style, err := f.NewStyle(headerStyle())
	if err != nil {
		return nil, fmt.Errorf("見出しスタイルの作成に失敗: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", style); err != nil {
		return nil, fmt.Errorf("見出しスタイルの適用に失敗: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("%d行目の書き込みに失敗: %w", i+2, err)
		}
	}

	for i, w := range widths {
		if w <= 0 || i >= len(headers) {
			continue
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return nil, fmt.Errorf("列幅の設定に失敗: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsxの生成に失敗: %w", err)
	}
	return buf.Bytes(), nil
}

func headerStyle() *excelize.Style {
	border := func(side string) excelize.Border {
		return excelize.Border{Type: side, Color: "000000", Style: 1}
	}
	return &excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E0E0E0"}},
		Border: []excelize.Border{
			border("left"), border("top"), border("right"), border("bottom"),
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	}
}

// ReadRows はアップロードされた表計算ファイルの全行を読み込む。
// 拡張子が .xls の場合は旧形式として読み、それ以外はxlsxとして先頭シートを読む。
func ReadRows(filename string, r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xls":
		return readXLS(data)
	default:
		return readXLSX(data)
	}
}

func readXLS(data []byte) (rows [][]string, err error) {
	// 壊れたxlsファイルではライブラリ内部でpanicすることがある
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("xlsファイルの解析に失敗: %v", r)
		}
	}()

	workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("xlsファイルを開けません: %w", err)
	}
	if workbook.NumSheets() == 0 {
		return nil, ErrNoWorksheet
	}
	if workbook.NumSheets() > 1 {
		return nil, ErrMultipleWorksheets
	}
	rows = workbook.ReadAllCells(maxXLSRows)
	if len(rows) == 0 {
		return nil, ErrEmptyWorksheet
	}
	return rows, nil
}

func readXLSX(data []byte) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("xlsxファイルを開けません: %w", err)
	}
	defer func() { _ = file.Close() }()

	sheet := file.GetSheetName(0)
	if sheet == "" {
		return nil, ErrNoWorksheet
	}
	rows, err := file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("シートの読み込みに失敗: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyWorksheet
	}
	return rows, nil
}

// HeaderIndex は見出し行の各列名（前後の空白を除き小文字化したもの）から列番号への対応を返す。
func HeaderIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := NormalizeHeader(h)
		if _, ok := idx[key]; !ok {
			idx[key] = i
		}
	}
	return idx
}

// NormalizeHeader は見出しを比較用に正規化する。
func NormalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// Cell は行のidx列目の値を前後の空白を除いて返す。範囲外は空文字列。
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
