package complaint

import (
	"fmt"
	"time"

	complaintdb "github.com/nao1215/shiftcare/internal/complaint/db"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/document"
	"github.com/nao1215/shiftcare/pkg/textwrap"
)

// summaryLines は一覧で表示する内容の最大行数。
const summaryLines = 2

// formatDate は "YYYY-MM-DD" の日付を印字用に整形する。
func formatDate(s string) string {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return s
	}
	return document.FormatJapaneseDate(t)
}

// formatTimestampDate はデータベースの日時文字列を施設の現地日付で整形する。
func formatTimestampDate(ts string) string {
	t, err := database.ParseTimestamp(ts)
	if err != nil {
		return ts
	}
	return document.FormatJapaneseDate(t.In(document.Location))
}

func resolvedLabel(c complaintdb.Complaint) string {
	if c.ResolvedAt == "" {
		return "未解決"
	}
	return formatTimestampDate(c.ResolvedAt)
}

// composeReport は苦情・要望1件の対応報告書を組み立てる。
func composeReport(b *document.Builder, c complaintdb.Complaint, responses []complaintdb.Response, now time.Time) *document.Builder {
	b.Header().
		Title("苦情・要望対応報告書").
		Subtitle(document.ExportDateLine("出力日", now)).
		Separator().
		KeyValueTable([]document.KV{
			{Label: "受付日時", Value: document.FormatTimestamp(c.SubmittedAt)},
			{Label: "発生・受付日", Value: formatDate(c.ComplaintDate)},
			{Label: "受付者", Value: c.ReceiverName},
			{Label: "申し出人種別", Value: ComplainantLabel(c.ComplainantType)},
			{Label: "申し出人氏名", Value: ComplainantName(c.ComplainantName)},
			{Label: "対応状況", Value: StatusLabel(c.Status)},
			{Label: "解決日", Value: resolvedLabel(c)},
		}).
		Spacer(4).
		Section("苦情・要望内容", c.Content).
		Heading("対応履歴")

	if len(responses) == 0 {
		b.MutedLine("対応履歴はありません")
	}
	for i, r := range responses {
		b.Line(fmt.Sprintf("【対応記録 %d】", i+1)).
			MutedLine("対応日時: "+document.FormatTimestamp(r.RespondedAt)).
			MutedLine("対応者: "+r.ResponderName).
			Paragraph(r.Content, document.DefaultWrapColumns-4).
			Spacer(2)
	}
	return b.Footer(document.FooterText)
}

// ReportPDF は苦情・要望1件の対応報告書PDFを生成する。
func ReportPDF(opts document.Options, c complaintdb.Complaint, responses []complaintdb.Response, now time.Time) ([]byte, error) {
	b, err := document.New(opts)
	if err != nil {
		return nil, err
	}
	return composeReport(b, c, responses, now).Bytes()
}

// composeList は苦情・要望の一覧を組み立てる。
func composeList(b *document.Builder, rows []complaintdb.Complaint, now time.Time) *document.Builder {
	statuses := make([]string, 0, len(rows))
	for _, r := range rows {
		statuses = append(statuses, r.Status)
	}
	st := ComputeStats(statuses)

	b.Header().
		Title("苦情・要望対応報告書一覧").
		Subtitle(document.ExportDateLine("出力日", now)).
		Separator().
		Line(fmt.Sprintf("総件数: %d件 (未対応: %d件, 対応中: %d件, 解決済み: %d件)",
			st.Total, st.Pending, st.InProgress, st.Resolved)).
		Spacer(4)

	for i, r := range rows {
		b.Heading(fmt.Sprintf("%d. %s - %s", i+1, ComplainantLabel(r.ComplainantType), StatusLabel(r.Status))).
			MutedLine(fmt.Sprintf("受付日: %s | 申し出人: %s", formatTimestampDate(r.SubmittedAt), ComplainantName(r.ComplainantName))).
			MutedLine(fmt.Sprintf("対応記録: %d件", r.ResponseCount))

		lines, more := textwrap.Summary(textwrap.WrapColumns(r.Content, document.DefaultWrapColumns), summaryLines)
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

// ListPDF は苦情・要望一覧のPDFを生成する。
func ListPDF(opts document.Options, rows []complaintdb.Complaint, now time.Time) ([]byte, error) {
	b, err := document.New(opts)
	if err != nil {
		return nil, err
	}
	return composeList(b, rows, now).Bytes()
}

// ReportFilename は報告書のファイル名（complaint-report-<発生・受付日>-<id>.pdf）を返す。
func ReportFilename(c complaintdb.Complaint) string {
	return fmt.Sprintf("complaint-report-%s-%s.pdf", c.ComplaintDate, c.ID)
}

// ListFilename は一覧のファイル名（complaint-reports-YYYY-MM-DD.pdf）を返す。
func ListFilename(now time.Time) string {
	return fmt.Sprintf("complaint-reports-%s.pdf", now.Format("2006-01-02"))
}
