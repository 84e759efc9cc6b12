package careplan

import "slices"

// 記録の状態。
const (
	StatusDraft     = "draft"
	StatusCompleted = "completed"
	StatusSubmitted = "submitted"
)

var statusLabels = map[string]string{
	StatusDraft:     "下書き",
	StatusCompleted: "作成完了",
	StatusSubmitted: "提出済み",
}

// transitions は状態ごとに移れる次の状態。提出済みからは戻せない。
var transitions = map[string][]string{
	StatusDraft:     {StatusCompleted},
	StatusCompleted: {StatusDraft, StatusSubmitted},
}

// CanTransition はfromからtoへ状態を変えられるかを返す。
func CanTransition(from, to string) bool {
	return slices.Contains(transitions[from], to)
}

// Editable は本文を書き換えられる状態かを返す。
func Editable(status string) bool {
	return status == StatusDraft
}

// StatusLabel は状態の表示名を返す。
func StatusLabel(s string) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return "不明"
}

// label は選択肢の値を表示名に変換する。空は "未評価" とする。
func label(labels map[string]string, v string) string {
	if v == "" {
		return "未評価"
	}
	if l, ok := labels[v]; ok {
		return l
	}
	return v
}

var supportLevelLabels = map[string]string{
	"independent": "自立",
	"partial":     "一部介助",
	"full":        "全介助",
}

var medicationLabels = map[string]string{
	"self":       "自己管理",
	"reminder":   "声かけ",
	"assistance": "一部介助",
	"full":       "全介助",
}

var cognitiveLabels = map[string]string{
	"good":      "良好",
	"fair":      "普通",
	"declining": "軽度低下",
	"poor":      "低下",
}

var interactionLabels = map[string]string{
	"active":    "積極的",
	"moderate":  "適度",
	"limited":   "限定的",
	"withdrawn": "消極的",
}

var stabilityLabels = map[string]string{
	"stable":                "安定",
	"occasionally_unstable": "時々不安定",
	"unstable":              "不安定",
}

var participationLabels = map[string]string{
	"active":   "積極的",
	"moderate": "適度",
	"limited":  "限定的",
	"none":     "参加なし",
}

var progressLabels = map[string]string{
	"exceeded":     "目標以上",
	"achieved":     "達成",
	"progressing":  "進行中",
	"not_achieved": "未達成",
}

var satisfactionLabels = map[string]string{
	"very_satisfied": "大変満足",
	"satisfied":      "満足",
	"neutral":        "普通",
	"unsatisfied":    "不満",
}

var staffAssessmentLabels = map[string]string{
	"excellent":         "優秀",
	"good":              "良好",
	"fair":              "普通",
	"needs_improvement": "要改善",
}

var continuationLabels = map[string]string{
	"continue":    "継続",
	"modify":      "内容変更",
	"increase":    "増量",
	"decrease":    "減量",
	"discontinue": "終了",
}

var functionLabels = map[string]string{
	"excellent": "優秀",
	"good":      "良好",
	"fair":      "普通",
	"declining": "低下傾向",
	"poor":      "不良",
}

var riskSeverityLabels = map[string]string{
	"low":    "低",
	"medium": "中",
	"high":   "高",
}
