// Package textwrap は帳票用の日本語テキストの折り返しと切り詰めを提供する。
//
// 単語境界を持たない日本語を扱うため、1文字ずつ幅を測って改行位置を決める。
package textwrap

import (
	"strings"

	"golang.org/x/text/width"
)

// Ellipsis は切り詰めや省略を示す文字列。
const Ellipsis = "..."

// MeasureFunc は文字列の表示幅を返す関数。
type MeasureFunc func(s string) float64

// Wrap はtextを幅maxWidthに収まるよう1文字ずつ折り返す。
// 1文字でmaxWidthを超える場合はその文字だけで1行にする。
// 元の改行は常に改行として扱い、空文字列は空行1行を返す。
func Wrap(text string, maxWidth float64, measure MeasureFunc) []string {
	var lines []string
	for _, paragraph := range strings.Split(normalizeNewlines(text), "\n") {
		lines = append(lines, wrapParagraph(paragraph, maxWidth, measure)...)
	}
	return lines
}

// wrapParagraph は改行を含まない1段落を折り返す。
func wrapParagraph(paragraph string, maxWidth float64, measure MeasureFunc) []string {
	if paragraph == "" {
		return []string{""}
	}

	var (
		lines   []string
		current strings.Builder
	)
	for _, r := range paragraph {
		candidate := current.String() + string(r)
		if current.Len() > 0 && measure(candidate) > maxWidth {
			lines = append(lines, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}

// RuneWidth は1文字の表示幅を返す。全角・東アジアの広い文字は2、それ以外は1。
func RuneWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}

// Columns は文字列の表示幅（半角換算の桁数）を返す。
func Columns(s string) float64 {
	n := 0
	for _, r := range s {
		n += RuneWidth(r)
	}
	return float64(n)
}

// WrapColumns はtextを半角換算でcols桁に収まるよう折り返す。
func WrapColumns(text string, cols int) []string {
	return Wrap(text, float64(cols), Columns)
}

// Truncate はtextを半角換算でcols桁に切り詰め、切り詰めた場合は末尾に "..." を付ける。
func Truncate(text string, cols int) string {
	if int(Columns(text)) <= cols {
		return text
	}
	var (
		b     strings.Builder
		total int
	)
	for _, r := range text {
		w := RuneWidth(r)
		if total+w > cols {
			break
		}
		b.WriteRune(r)
		total += w
	}
	return b.String() + Ellipsis
}

// TruncateRunes はtextがlimit文字を超える場合に先頭keep文字と "..." に置き換える。
func TruncateRunes(text string, limit, keep int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if keep > len(runes) {
		keep = len(runes)
	}
	return string(runes[:keep]) + Ellipsis
}

// Summary は先頭max行を返す。省略した行がある場合は2番目の戻り値がtrueになる。
func Summary(lines []string, max int) ([]string, bool) {
	if len(lines) <= max {
		return lines, false
	}
	return lines[:max], true
}

// normalizeNewlines はCRLFとCRをLFに揃える。
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
