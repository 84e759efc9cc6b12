package evaluation

import (
	"fmt"
	"time"

	evaluationdb "github.com/nao1215/shiftcare/internal/evaluation/db"
	"github.com/nao1215/shiftcare/pkg/document"
	"github.com/nao1215/shiftcare/pkg/textwrap"
)

// composeReport は年度の自己点検・自己評価表を組み立てる。設問は区分ごとにまとめる。
func composeReport(b *document.Builder, c *Catalogue, year int, responses []evaluationdb.Response, now time.Time) *document.Builder {
	b.Header().
		Title(fmt.Sprintf("%d年度 自己点検・自己評価表", year)).
		Subtitle(document.ExportDateLine("作成日", now)).
		Separator().
		Heading("評価基準")
	for s := MinScore; s <= MaxScore; s++ {
		b.Line(fmt.Sprintf("%d: %s", s, c.ScoreDescriptions[s]))
	}
	b.Spacer(4)

	category := ""
	for _, a := range Answers(c, responses) {
		if a.Question.Category != category {
			category = a.Question.Category
			b.Separator().Heading(category)
		}
		b.Line(fmt.Sprintf("問%d. %s", a.Question.Number, a.Question.Title))
		if a.Question.Description != "" {
			for _, l := range textwrap.WrapColumns(a.Question.Description, document.DefaultWrapColumns) {
				b.MutedLine(l)
			}
		}
		if a.Score > 0 {
			b.Line(fmt.Sprintf("評価: %d (%s)", a.Score, c.ScoreLabel(a.Score)))
		} else {
			b.Line("評価: 未回答")
		}
		if a.Comment != "" {
			b.MutedLine("コメント:").Paragraph(a.Comment, document.DefaultWrapColumns-4)
		}
		b.Spacer(2)
	}

	sum := Summarize(c, responses)
	return b.Separator().
		Heading("評価サマリー").
		Line(fmt.Sprintf("総項目数: %d", sum.Total)).
		Line(fmt.Sprintf("回答済み項目数: %d", sum.Answered)).
		Line(fmt.Sprintf("回答率: %d%%", sum.Rate)).
		Line(fmt.Sprintf("平均スコア: %.1f", sum.Average)).
		Footer(document.FooterText)
}

// ReportPDF は年度の自己点検・自己評価表のPDFを生成する。
func ReportPDF(opts document.Options, c *Catalogue, year int, responses []evaluationdb.Response, now time.Time) ([]byte, error) {
	b, err := document.New(opts)
	if err != nil {
		return nil, err
	}
	return composeReport(b, c, year, responses, now).Bytes()
}

// ReportFilename は self-evaluation-<年度>.pdf を返す。
func ReportFilename(year int) string {
	return fmt.Sprintf("self-evaluation-%d.pdf", year)
}
