package complaint

import (
	"slices"
	"strings"
	"testing"
	"time"

	complaintdb "github.com/nao1215/shiftcare/internal/complaint/db"
	"github.com/nao1215/shiftcare/pkg/document"
)

var exportTime = time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)

func sampleComplaint() complaintdb.Complaint {
	return complaintdb.Complaint{
		ID:              "c-1",
		SubmittedBy:     "3",
		ReceiverName:    "山田花子",
		SubmittedAt:     "2025-06-01T01:30:00.000000000Z",
		ComplainantType: ComplainantFamily,
		ComplainantName: "",
		ComplaintDate:   "2025-05-31",
		Content:         "面会時間をもう少し長くしてほしい。",
		Status:          StatusResolved,
		ResolvedAt:      "2025-06-02T16:00:00.000000000Z",
	}
}

func TestComposeReport(t *testing.T) {
	t.Parallel()

	t.Run("対応履歴あり", func(t *testing.T) {
		t.Parallel()
		b, err := document.New(document.Options{})
		if err != nil {
			t.Fatalf("document.New() = %v", err)
		}
		responses := []complaintdb.Response{
			{RespondedAt: "2025-06-01T05:00:00.000000000Z", ResponderName: "管理者 田中", Content: "家族に電話で説明した。"},
			{RespondedAt: "2025-06-02T05:00:00.000000000Z", ResponderName: "管理者 田中", Content: "面会時間を30分延長した。"},
		}
		transcript := composeReport(b, sampleComplaint(), responses, exportTime).Transcript()

		for _, want := range []string{
			"苦情・要望対応報告書",
			"受付日時 2025年06月01日 10:30",
			"発生・受付日 2025年05月31日",
			"申し出人種別 家族",
			"申し出人氏名 匿名",
			"対応状況 解決済み",
			"解決日 2025年06月03日",
			"【対応記録 2】",
			"対応日時: 2025年06月02日 14:00",
			"対応者: 管理者 田中",
			"面会時間を30分延長した。",
		} {
			if !slices.Contains(transcript, want) {
				t.Errorf("%q が含まれていない: %v", want, transcript)
			}
		}
	})

	t.Run("対応履歴なし", func(t *testing.T) {
		t.Parallel()
		b, err := document.New(document.Options{})
		if err != nil {
			t.Fatalf("document.New() = %v", err)
		}
		c := sampleComplaint()
		c.Status = StatusPending
		c.ResolvedAt = ""
		transcript := composeReport(b, c, nil, exportTime).Transcript()

		for _, want := range []string{"解決日 未解決", "対応履歴はありません"} {
			if !slices.Contains(transcript, want) {
				t.Errorf("%q が含まれていない: %v", want, transcript)
			}
		}
	})
}

func TestComposeList(t *testing.T) {
	t.Parallel()

	long := sampleComplaint()
	long.Content = strings.Repeat("食事の量について改善を求める声があった。", 10)
	long.ResponseCount = 2
	pending := sampleComplaint()
	pending.ComplainantType = ComplainantUser
	pending.ComplainantName = "利用者B"
	pending.Status = StatusPending

	b, err := document.New(document.Options{})
	if err != nil {
		t.Fatalf("document.New() = %v", err)
	}
	transcript := composeList(b, []complaintdb.Complaint{long, pending}, exportTime).Transcript()

	for _, want := range []string{
		"苦情・要望対応報告書一覧",
		"総件数: 2件 (未対応: 1件, 対応中: 0件, 解決済み: 1件)",
		"1. 家族 - 解決済み",
		"受付日: 2025年06月01日 | 申し出人: 匿名",
		"対応記録: 2件",
		"2. 利用者 - 未対応",
		"受付日: 2025年06月01日 | 申し出人: 利用者B",
		"...",
	} {
		if !slices.Contains(transcript, want) {
			t.Errorf("%q が含まれていない: %v", want, transcript)
		}
	}
	if n := strings.Count(strings.Join(transcript, "\n"), "..."); n != 1 {
		t.Errorf("省略記号の数 = %d; 期待値 = 1", n)
	}
}

func TestFilenames(t *testing.T) {
	t.Parallel()

	if got := ReportFilename(sampleComplaint()); got != "complaint-report-2025-05-31-c-1.pdf" {
		t.Errorf("ReportFilename() = %q", got)
	}
	if got := ListFilename(exportTime); got != "complaint-reports-2025-06-03.pdf" {
		t.Errorf("ListFilename() = %q", got)
	}
}
