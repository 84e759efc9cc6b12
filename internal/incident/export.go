package incident

import (
	"fmt"
	"strings"
	"time"

	incidentdb "github.com/nao1215/shiftcare/internal/incident/db"
	"github.com/nao1215/shiftcare/pkg/document"
	"github.com/nao1215/shiftcare/pkg/textwrap"
)

// occurredLayout は発生日時の入力形式。
const occurredLayout = "2006-01-02T15:04"

// summaryLines は一覧で表示する概要の最大行数。
const summaryLines = 2

// formatOccurred は発生日時を印字用に整形する。
func formatOccurred(s string) string {
	t, err := time.Parse(occurredLayout, s)
	if err != nil {
		return s
	}
	return document.FormatJapaneseDateTime(t)
}

// composeReport は報告書1件を組み立てる。
func composeReport(b *document.Builder, inc incidentdb.Incident, now time.Time) *document.Builder {
	return b.Header().
		Title(ReportTitle(inc.Type)).
		Subtitle(document.ExportDateLine("出力日", now)).
		Separator().
		KeyValueTable([]document.KV{
			{Label: "発生日時", Value: formatOccurred(inc.OccurredAt)},
			{Label: "事故種別", Value: TypeLabel(inc.Type)},
			{Label: "発生場所", Value: inc.Location},
			{Label: "関係者", Value: strings.Join(persons(inc.InvolvedPersons), ", ")},
			{Label: "報告者", Value: inc.ReporterName},
			{Label: "報告日時", Value: document.FormatTimestamp(inc.ReportedAt)},
			{Label: "対応状況", Value: StatusLabel(inc.Status)},
		}).
		Spacer(4).
		Section("発生状況の詳細", inc.Description).
		Section("対応・処置の内容", inc.Response).
		Section("再発防止策", inc.PreventiveMeasures).
		Footer(document.FooterText)
}

// ReportPDF は報告書1件のPDFを生成する。
func ReportPDF(opts document.Options, inc incidentdb.Incident, now time.Time) ([]byte, error) {
	b, err := document.New(opts)
	if err != nil {
		return nil, err
	}
	return composeReport(b, inc, now).Bytes()
}

// composeList は報告の一覧を組み立てる。概要は先頭2行だけを載せる。
func composeList(b *document.Builder, rows []incidentdb.Incident, now time.Time) *document.Builder {
	st := ComputeStats(rows)
	b.Header().
		Title("事故・ヒヤリハット報告書一覧").
		Subtitle(document.ExportDateLine("出力日", now)).
		Separator().
		Line(fmt.Sprintf("総件数: %d件 (事故: %d件, ヒヤリハット: %d件, 未対応: %d件)",
			st.Total, st.Accidents, st.NearMiss, st.Pending)).
		Spacer(4)

	for i, r := range rows {
		b.Heading(fmt.Sprintf("%d. %s - %s", i+1, TypeLabel(r.Type), r.Location)).
			MutedLine("発生日時: " + formatOccurred(r.OccurredAt)).
			MutedLine("関係者: " + strings.Join(persons(r.InvolvedPersons), ", ")).
			MutedLine("対応状況: " + StatusLabel(r.Status))

		lines, more := textwrap.Summary(textwrap.WrapColumns(r.Description, document.DefaultWrapColumns), summaryLines)
		for _, l := range lines {
			b.Line(l)
		}
		if more {
			b.MutedLine(textwrap.Ellipsis)
		}
		b.Separator()
	}
	return b.Footer(document.FooterText)
}

// ListPDF は報告一覧のPDFを生成する。
func ListPDF(opts document.Options, rows []incidentdb.Incident, now time.Time) ([]byte, error) {
	b, err := document.New(opts)
	if err != nil {
		return nil, err
	}
	return composeList(b, rows, now).Bytes()
}

// ReportFilename は報告書のファイル名（incident-report-<発生日>-<id>.pdf）を返す。
func ReportFilename(inc incidentdb.Incident) string {
	date := inc.OccurredAt
	if len(date) >= 10 {
		date = date[:10]
	}
	return fmt.Sprintf("incident-report-%s-%s.pdf", date, inc.ID)
}

// ListFilename は一覧のファイル名（incident-reports-YYYY-MM-DD.pdf）を返す。
func ListFilename(now time.Time) string {
	return fmt.Sprintf("incident-reports-%s.pdf", now.Format("2006-01-02"))
}
