// Package document はA4帳票（PDF）の組版を提供する。
//
// 事故報告書、苦情対応報告書、自己評価表、防災訓練記録、勤務体制一覧表など
// 各サービスの帳票はこのパッケージのBuilderで組み立てる。
// 日本語は1文字ずつ幅を測って折り返し、改ページはmarotoに任せる。
package document

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/johnfercher/maroto/v2"
	mimage "github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/extension"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/johnfercher/maroto/v2/pkg/repository"

	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/textwrap"
)

// FooterText は全帳票の末尾に印字する定型文。
const FooterText = "※ この報告書は ShiftCare システムで生成されました"

// DefaultWrapColumns は本文の折り返し桁数（半角換算）。
const DefaultWrapColumns = 90

// fontFamily は埋め込みフォントのファミリー名。
const fontFamily = "shiftcare-jp"

// gridSize はmarotoの1行あたりのグリッド数。
const gridSize = 12

var (
	titleColor = props.Color{Red: 30, Green: 30, Blue: 30}
	mutedColor = props.Color{Red: 100, Green: 100, Blue: 100}
	labelColor = props.Color{Red: 70, Green: 70, Blue: 70}
	lineColor  = props.Color{Red: 200, Green: 200, Blue: 200}
)

// Location は帳票に印字する日時のタイムゾーン。
var Location = time.FixedZone("JST", 9*60*60)

// ErrEmptyTable は列定義の無い表を追加しようとした場合のエラー。
var ErrEmptyTable = errors.New("表の列が定義されていません")

// Options は帳票の生成オプション。
type Options struct {
	// FontPath は埋め込む日本語TTFフォントのパス。空の場合は標準フォントを使う。
	FontPath string
	// LogoPath はヘッダーに配置する施設ロゴ画像のパス。空の場合はロゴ無し。
	LogoPath string
	// FacilityName はヘッダーに印字する施設名。
	FacilityName string
	// Landscape が true の場合は横向きにする。
	Landscape bool
}

// KV は基本情報表の1行（ラベルと値）。
type KV struct {
	Label string
	Value string
}

// Builder は帳票を1行ずつ組み立てる。
// 配置した文字列は Transcript で確認できる。
type Builder struct {
	m          core.Maroto
	opts       Options
	logo       []byte
	transcript []string
	err        error
}

// New は帳票ビルダーを生成する。
func New(opts Options) (*Builder, error) {
	cb := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15)
	if opts.Landscape {
		cb = cb.WithOrientation(orientation.Horizontal)
	}

	if opts.FontPath != "" {
		if _, err := os.Stat(opts.FontPath); err != nil {
			return nil, fmt.Errorf("フォントファイルが見つかりません (%s): %w", opts.FontPath, err)
		}
		fonts, err := repository.New().
			AddUTF8Font(fontFamily, fontstyle.Normal, opts.FontPath).
			AddUTF8Font(fontFamily, fontstyle.Bold, opts.FontPath).
			Load()
		if err != nil {
			return nil, fmt.Errorf("フォントの読み込みに失敗: %w", err)
		}
		cb = cb.WithCustomFonts(fonts).WithDefaultFont(&props.Font{Family: fontFamily})
	}

	b := &Builder{
		m:    maroto.New(cb.Build()),
		opts: opts,
	}

	if opts.LogoPath != "" {
		logo, err := LoadLogo(opts.LogoPath)
		if err != nil {
			return nil, err
		}
		b.logo = logo
	}
	return b, nil
}

// record は配置した文字列を記録する。
func (b *Builder) record(s string) {
	b.transcript = append(b.transcript, s)
}

// Transcript は配置した文字列を配置順に返す。
func (b *Builder) Transcript() []string {
	return b.transcript
}

// Header は施設名（ロゴがあればロゴも）を1行目に配置する。
func (b *Builder) Header() *Builder {
	name := b.opts.FacilityName
	if name == "" && b.logo == nil {
		return b
	}
	if b.logo != nil {
		b.m.AddRow(16,
			mimage.NewFromBytesCol(2, b.logo, extension.Png),
			text.NewCol(10, name, props.Text{Size: 10, Color: &mutedColor, Align: align.Right}),
		)
	} else {
		b.m.AddRow(6, text.NewCol(12, name, props.Text{Size: 9, Color: &mutedColor, Align: align.Right}))
	}
	b.record(name)
	return b
}

// Title は中央寄せの表題を配置する。
func (b *Builder) Title(s string) *Builder {
	b.m.AddRow(14, text.NewCol(12, s, props.Text{
		Style: fontstyle.Bold,
		Size:  16,
		Align: align.Center,
		Color: &titleColor,
	}))
	b.record(s)
	return b
}

// Subtitle は表題の下に控えめな行を配置する。
func (b *Builder) Subtitle(s string) *Builder {
	b.m.AddRow(7, text.NewCol(12, s, props.Text{
		Size:  10,
		Align: align.Right,
		Color: &mutedColor,
	}))
	b.record(s)
	return b
}

// Separator は区切り線を配置する。
func (b *Builder) Separator() *Builder {
	b.m.AddRow(4, line.NewCol(12, props.Line{Color: &lineColor}))
	return b
}

// Spacer は空白行を配置する。
func (b *Builder) Spacer(height float64) *Builder {
	b.m.AddRow(height)
	return b
}

// Heading は節見出しを配置する。
func (b *Builder) Heading(s string) *Builder {
	b.m.AddRow(9, text.NewCol(12, s, props.Text{
		Style: fontstyle.Bold,
		Size:  12,
		Top:   2,
		Color: &titleColor,
	}))
	b.record(s)
	return b
}

// Paragraph は本文をcols桁（半角換算）で折り返して配置する。
func (b *Builder) Paragraph(body string, cols int) *Builder {
	for _, l := range textwrap.WrapColumns(body, cols) {
		b.Line(l)
	}
	return b
}

// Line は本文1行をそのまま配置する。
func (b *Builder) Line(s string) *Builder {
	b.m.AddRow(6, text.NewCol(12, s, props.Text{Size: 10}))
	b.record(s)
	return b
}

// MutedLine は控えめな本文1行を配置する。
func (b *Builder) MutedLine(s string) *Builder {
	b.m.AddRow(6, text.NewCol(12, s, props.Text{Size: 9, Color: &mutedColor}))
	b.record(s)
	return b
}

// Bullet は箇条書きの1項目を配置する。
func (b *Builder) Bullet(s string) *Builder {
	lines := textwrap.WrapColumns(s, DefaultWrapColumns-4)
	for i, l := range lines {
		prefix := "  "
		if i == 0 {
			prefix = "・"
		}
		b.Line(prefix + l)
	}
	return b
}

// Section は見出しと本文（折り返し済み）を配置する。本文が空の場合は "記載なし" とする。
func (b *Builder) Section(title, body string) *Builder {
	b.Heading(title)
	if strings.TrimSpace(body) == "" {
		body = "記載なし"
	}
	b.Paragraph(body, DefaultWrapColumns)
	return b.Spacer(3)
}

// KeyValueTable はラベルと値の2列の表を配置する。値が長い場合は折り返す。
func (b *Builder) KeyValueTable(rows []KV) *Builder {
	for _, kv := range rows {
		lines := textwrap.WrapColumns(kv.Value, 64)
		for i, l := range lines {
			label := ""
			if i == 0 {
				label = kv.Label
			}
			b.m.AddRow(7,
				text.NewCol(3, label, props.Text{Size: 10, Style: fontstyle.Bold, Color: &labelColor}),
				text.NewCol(9, l, props.Text{Size: 10}),
			)
			b.record(strings.TrimSpace(label + " " + l))
		}
		b.m.AddRow(1, line.NewCol(12, props.Line{Color: &lineColor}))
	}
	return b
}

// Table は見出し行付きの表を配置する。widthsは各列の相対幅。
// セルの文字列は折り返さないため、呼び出し側で切り詰めておく。
func (b *Builder) Table(headers []string, widths []float64, rows [][]string) *Builder {
	if len(headers) == 0 || len(headers) != len(widths) {
		b.err = errors.Join(b.err, ErrEmptyTable)
		return b
	}
	sizes := GridSizes(widths)

	headerCols := make([]core.Col, 0, len(headers))
	for i, h := range headers {
		headerCols = append(headerCols, text.NewCol(sizes[i], h, props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Center}))
	}
	b.m.AddRow(8, headerCols...)
	b.record(strings.Join(headers, " | "))
	b.m.AddRow(2, line.NewCol(12, props.Line{Color: &labelColor}))

	for _, row := range rows {
		cols := make([]core.Col, 0, len(headers))
		for i := range headers {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			cols = append(cols, text.NewCol(sizes[i], cell, props.Text{Size: 9, Align: align.Center}))
		}
		b.m.AddRow(7, cols...)
		b.m.AddRow(1, line.NewCol(12, props.Line{Color: &lineColor}))
		b.record(strings.Join(row, " | "))
	}
	return b
}

// Footer は区切り線と定型文を末尾に配置する。
func (b *Builder) Footer(s string) *Builder {
	b.Spacer(6)
	b.Separator()
	b.m.AddRow(6, text.NewCol(12, s, props.Text{Size: 8, Color: &mutedColor, Align: align.Center}))
	b.record(s)
	return b
}

// Bytes はPDFを生成してバイト列を返す。
func (b *Builder) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	doc, err := b.m.Generate()
	if err != nil {
		return nil, fmt.Errorf("PDFの生成に失敗: %w", err)
	}
	return doc.GetBytes(), nil
}

// GridSizes は相対幅を合計12のグリッド数に配分する。
// 各列に最低1を割り当て、残りを幅に比例して最大剰余法で配る。
func GridSizes(widths []float64) []int {
	n := len(widths)
	sizes := make([]int, n)
	if n == 0 || n > gridSize {
		return sizes
	}
	var total float64
	for i, w := range widths {
		sizes[i] = 1
		total += w
	}
	rest := gridSize - n
	if total <= 0 {
		for i := 0; rest > 0; i = (i + 1) % n {
			sizes[i]++
			rest--
		}
		return sizes
	}

	fracs := make([]float64, n)
	assigned := 0
	for i, w := range widths {
		exact := w / total * float64(rest)
		whole := int(exact)
		sizes[i] += whole
		assigned += whole
		fracs[i] = exact - float64(whole)
	}
	for ; assigned < rest; assigned++ {
		best := 0
		for i := range fracs {
			if fracs[i] > fracs[best] {
				best = i
			}
		}
		sizes[best]++
		fracs[best] = -1
	}
	return sizes
}

// FormatJapaneseDate は日付を "2006年01月02日" 形式で返す。
func FormatJapaneseDate(t time.Time) string {
	return t.Format("2006年01月02日")
}

// FormatJapaneseDateTime は日時を "2006年01月02日 15:04" 形式で返す。
func FormatJapaneseDateTime(t time.Time) string {
	return t.Format("2006年01月02日 15:04")
}

// FormatTimestamp はデータベースの日時文字列をLocationの "2006年01月02日 15:04" 形式で返す。
// 解釈できない場合は元の文字列を返す。
func FormatTimestamp(ts string) string {
	t, err := database.ParseTimestamp(ts)
	if err != nil {
		return ts
	}
	return FormatJapaneseDateTime(t.In(Location))
}

// ExportDateLine は "出力日: 2006年01月02日" のような出力日行を返す。
func ExportDateLine(label string, t time.Time) string {
	return fmt.Sprintf("%s: %s", label, FormatJapaneseDate(t))
}
