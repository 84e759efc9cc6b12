package careplan

import (
	"fmt"
	"strings"
	"time"

	careplandb "github.com/nao1215/shiftcare/internal/careplan/db"
	"github.com/nao1215/shiftcare/pkg/document"
	"github.com/nao1215/shiftcare/pkg/textwrap"
)

// cellColumns は表のセルに収める桁数（半角換算）。超える分は切り詰める。
const cellColumns = 36

// footerText は個別支援計画・モニタリング記録の帳票のフッター。
const footerText = "ShiftCare - 個別支援計画管理システム"

func formatDate(s string) string {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return s
	}
	return document.FormatJapaneseDate(t)
}

func formatPeriod(start, end string) string {
	return formatDate(start) + " ～ " + formatDate(end)
}

// joinOr は項目を読点でつなぐ。空の場合は "なし" とする。
func joinOr(items []string) string {
	if len(items) == 0 {
		return "なし"
	}
	return strings.Join(items, "、")
}

// bullets は見出しと箇条書きを配置する。項目が無い場合は "記載なし" とする。
func bullets(b *document.Builder, title string, items []string) {
	b.Heading(title)
	if len(items) == 0 {
		b.MutedLine("記載なし")
	}
	for _, it := range items {
		b.Bullet(it)
	}
	b.Spacer(3)
}

func profileRows(p Profile) []document.KV {
	rows := []document.KV{
		{Label: "年齢", Value: fmt.Sprintf("%d歳", p.Age)},
		{Label: "支援区分", Value: p.CareLevel},
		{Label: "障害種別", Value: joinOr(p.DisabilityTypes)},
		{Label: "既往症", Value: joinOr(p.MedicalConditions)},
	}
	if c := p.EmergencyContact; c != nil {
		rows = append(rows, document.KV{Label: "緊急連絡先", Value: fmt.Sprintf("%s（%s）%s", c.Name, c.Relationship, c.Phone)})
	}
	return rows
}

// statusLine は状態と確認・承認の記録を1行にまとめる。
func statusLine(status, signedBy, signedAt, verb string) string {
	line := "状態: " + StatusLabel(status)
	if signedBy != "" {
		line += fmt.Sprintf("（%s %s %s）", verb, signedBy, document.FormatTimestamp(signedAt))
	}
	return line
}

func closing(b *document.Builder, now time.Time) *document.Builder {
	return b.Separator().
		MutedLine("出力日: " + document.FormatJapaneseDateTime(now.In(document.Location))).
		Footer(footerText)
}

func composeMonitoring(b *document.Builder, r careplandb.MonitoringRecord, m MonitoringContent, now time.Time) *document.Builder {
	b.Header().
		Title("モニタリング記録").
		Subtitle(r.ServiceUserName + " 様").
		Separator().
		Line("対象期間: " + formatPeriod(r.PeriodStart, r.PeriodEnd)).
		Line("記録者: " + r.CreatorName).
		Line(statusLine(r.Status, r.ReviewedBy, r.ReviewedAt, "確認")).
		Spacer(4)

	b.Heading("基本情報").KeyValueTable(profileRows(m.Profile)).Spacer(3)

	bullets(b, "短期目標", m.Goals.ShortTerm)
	bullets(b, "長期目標", m.Goals.LongTerm)
	bullets(b, "具体的な取り組み", m.Goals.SpecificObjectives)

	d := m.DailyLife
	b.Heading("日常生活支援").Table(
		[]string{"項目", "頻度・数", "支援の程度", "特記事項"},
		[]float64{2, 2, 2, 6},
		[][]string{
			{"食事", fmt.Sprintf("%d回/日", d.Meal.Frequency), label(supportLevelLabels, d.Meal.SupportLevel), textwrap.Truncate(d.Meal.Notes, cellColumns)},
			{"入浴", fmt.Sprintf("%d回/週", d.Bathing.Frequency), label(supportLevelLabels, d.Bathing.SupportLevel), textwrap.Truncate(d.Bathing.Notes, cellColumns)},
			{"服薬", fmt.Sprintf("%d種類", d.Medication.Count), label(medicationLabels, d.Medication.Method), textwrap.Truncate(d.Medication.Notes, cellColumns)},
			{"移動", textwrap.Truncate(joinOr(d.Mobility.AssistiveDevices), 14), label(supportLevelLabels, d.Mobility.SupportLevel), textwrap.Truncate(d.Mobility.Notes, cellColumns)},
		},
	).Spacer(3)

	h := m.Health
	b.Heading("健康状態").KeyValueTable([]document.KV{
		{Label: "血圧", Value: h.Vitals.BloodPressure},
		{Label: "脈拍", Value: fmt.Sprintf("%d/分", h.Vitals.Pulse)},
		{Label: "体温", Value: fmt.Sprintf("%.1f℃", h.Vitals.Temperature)},
		{Label: "体重", Value: strings.TrimSpace(fmt.Sprintf("%.1fkg %s", h.Vitals.Weight, h.Vitals.WeightChange))},
		{Label: "認知機能", Value: label(cognitiveLabels, h.Mental.CognitiveFunction)},
		{Label: "社会的交流", Value: label(interactionLabels, h.Mental.SocialInteraction)},
		{Label: "情緒安定性", Value: label(stabilityLabels, h.Mental.EmotionalStability)},
		{Label: "入院・救急受診", Value: fmt.Sprintf("入院%d回 / 救急受診%d回", h.MedicalEvents.Hospitalizations, h.MedicalEvents.EmergencyVisits)},
		{Label: "新たな診断", Value: joinOr(h.MedicalEvents.NewDiagnoses)},
		{Label: "服薬の変更", Value: joinOr(h.MedicalEvents.MedicationChanges)},
	}).Spacer(3)
	b.Section("精神面の所見", h.Mental.Notes)

	so := m.Social
	b.Heading("社会活動").KeyValueTable([]document.KV{
		{Label: "集団活動", Value: label(participationLabels, so.Participation)},
		{Label: "好きな活動", Value: joinOr(so.PreferredActivities)},
		{Label: "外出・面会", Value: fmt.Sprintf("外出%d回 / 家族面会%d回 / 友人との交流%d回", so.Outings, so.FamilyVisits, so.FriendInteractions)},
	}).Spacer(3)
	b.Section("社会活動の所見", so.Notes)

	e := m.Evaluation
	b.Heading("サービス評価").KeyValueTable([]document.KV{
		{Label: "短期目標の達成", Value: label(progressLabels, e.ShortTermProgress)},
		{Label: "長期目標の達成", Value: label(progressLabels, e.LongTermProgress)},
		{Label: "本人の満足度", Value: label(satisfactionLabels, e.UserSatisfaction)},
		{Label: "家族の満足度", Value: label(satisfactionLabels, e.FamilySatisfaction)},
		{Label: "職員評価", Value: label(staffAssessmentLabels, e.StaffAssessment)},
		{Label: "今後の方針", Value: label(continuationLabels, e.ServiceContinuation)},
	}).Spacer(3)
	bullets(b, "変更の提案", e.ProposedChanges)
	bullets(b, "重点課題", e.PriorityAreas)
	b.Section("総合所見", e.Notes)
	return closing(b, now)
}

// MonitoringPDF はモニタリング記録のPDFを生成する。
func MonitoringPDF(opts document.Options, r careplandb.MonitoringRecord, m MonitoringContent, now time.Time) ([]byte, error) {
	b, err := document.New(opts)
	if err != nil {
		return nil, err
	}
	return composeMonitoring(b, r, m, now).Bytes()
}

func goals(b *document.Builder, title string, gs []Goal) {
	b.Heading(title)
	if len(gs) == 0 {
		b.MutedLine("記載なし")
	}
	for i, g := range gs {
		head := fmt.Sprintf("%d. %s", i+1, g.Goal)
		if g.Timeframe != "" {
			head += "（" + g.Timeframe + "）"
		}
		b.Line(head)
		for _, o := range g.MeasurableOutcomes {
			b.Bullet("評価指標: " + o)
		}
		for _, m := range g.Methods {
			b.Bullet("支援方法: " + m)
		}
	}
	b.Spacer(3)
}

func composePlan(b *document.Builder, p careplandb.SupportPlan, c PlanContent, now time.Time) *document.Builder {
	b.Header().
		Title("個別支援計画書").
		Subtitle(p.ServiceUserName + " 様").
		Separator().
		Line("計画期間: " + formatPeriod(p.PeriodStart, p.PeriodEnd)).
		Line("作成者: " + p.CreatorName).
		Line(statusLine(p.Status, p.ApprovedBy, p.ApprovedAt, "承認")).
		Spacer(4)

	rows := profileRows(c.Profile)
	rows = append(rows,
		document.KV{Label: "現在のニーズ", Value: joinOr(c.Profile.CurrentNeeds)},
		document.KV{Label: "強み", Value: joinOr(c.Profile.Strengths)},
	)
	b.Heading("基本情報").KeyValueTable(rows).Spacer(3)

	a := c.Assessment
	b.Heading("アセスメント").KeyValueTable([]document.KV{
		{Label: "身体機能", Value: label(functionLabels, a.Physical)},
		{Label: "認知機能", Value: label(functionLabels, a.Cognitive)},
		{Label: "社会機能", Value: label(functionLabels, a.Social)},
		{Label: "情緒面", Value: label(functionLabels, a.Emotional)},
	}).Spacer(3)
	b.Section("総合評価", a.Overall)

	goals(b, "長期目標", c.Goals.Primary)
	goals(b, "短期目標", c.Goals.Secondary)

	if len(c.Services.Daily) > 0 {
		daily := make([][]string, 0, len(c.Services.Daily))
		for _, d := range c.Services.Daily {
			daily = append(daily, []string{
				textwrap.Truncate(d.Type, 20), d.Frequency, d.Duration, d.Staff, textwrap.Truncate(d.Location, 14),
			})
		}
		b.Heading("日常支援").Table(
			[]string{"支援内容", "頻度", "時間", "担当", "場所"},
			[]float64{3, 2, 2, 2, 2},
			daily,
		).Spacer(3)
	}
	if len(c.Services.Specialized) > 0 {
		b.Heading("専門的支援")
		for _, sv := range c.Services.Specialized {
			b.Bullet(fmt.Sprintf("%s（%s、%s）: %s", sv.Type, sv.Provider, sv.Frequency, sv.Purpose))
		}
		b.Spacer(3)
	}

	b.Heading("リスク管理")
	if len(c.Risks.Risks) == 0 {
		b.MutedLine("記載なし")
	}
	for _, r := range c.Risks.Risks {
		b.Line(fmt.Sprintf("%s（重要度: %s）", r.Risk, label(riskSeverityLabels, r.Severity)))
		for _, m := range r.PreventionMeasures {
			b.Bullet("予防策: " + m)
		}
		if r.ResponseProtocol != "" {
			b.Bullet("発生時の対応: " + r.ResponseProtocol)
		}
	}
	b.Spacer(3)
	if len(c.Risks.EmergencyContacts) > 0 {
		contacts := make([]string, 0, len(c.Risks.EmergencyContacts))
		for _, ct := range c.Risks.EmergencyContacts {
			contacts = append(contacts, fmt.Sprintf("%d. %s（%s）%s", ct.Priority, ct.Name, ct.Relationship, ct.Phone))
		}
		bullets(b, "緊急連絡先", contacts)
	}

	r := c.Review
	next := "未定"
	if r.NextPlanned != "" {
		next = formatDate(r.NextPlanned)
	}
	b.Heading("見直し").KeyValueTable([]document.KV{
		{Label: "定期見直し", Value: r.Regular},
		{Label: "臨時見直し", Value: r.Emergency},
		{Label: "次回見直し日", Value: next},
	}).Spacer(3)
	bullets(b, "見直しの基準", r.Criteria)

	q := c.Quality
	bullets(b, "モニタリングの方法", q.MonitoringMethods)
	bullets(b, "評価指標", q.PerformanceIndicators)
	return closing(b, now)
}

// PlanPDF は個別支援計画書のPDFを生成する。
func PlanPDF(opts document.Options, p careplandb.SupportPlan, c PlanContent, now time.Time) ([]byte, error) {
	b, err := document.New(opts)
	if err != nil {
		return nil, err
	}
	return composePlan(b, p, c, now).Bytes()
}

// MonitoringFilename は monitoring-record-<対象期間の開始日>.pdf を返す。
func MonitoringFilename(r careplandb.MonitoringRecord) string {
	return fmt.Sprintf("monitoring-record-%s.pdf", r.PeriodStart)
}

// PlanFilename は support-plan-<計画期間の開始日>.pdf を返す。
func PlanFilename(p careplandb.SupportPlan) string {
	return fmt.Sprintf("support-plan-%s.pdf", p.PeriodStart)
}
