package complaint

import "errors"

// 申し出人の種別。
const (
	ComplainantUser   = "user"
	ComplainantFamily = "family"
	ComplainantOther  = "other"
)

// 対応状況。
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
)

// ErrResolved は解決済みの苦情・要望を変更しようとした場合のエラー。
var ErrResolved = errors.New("この苦情・要望は解決済みです")

// anonymous は申し出人氏名が空の場合の表示。
const anonymous = "匿名"

// ComplainantLabel は申し出人種別の表示名を返す。
func ComplainantLabel(t string) string {
	switch t {
	case ComplainantUser:
		return "利用者"
	case ComplainantFamily:
		return "家族"
	case ComplainantOther:
		return "その他"
	default:
		return "不明"
	}
}

// StatusLabel は対応状況の表示名を返す。
func StatusLabel(s string) string {
	switch s {
	case StatusPending:
		return "未対応"
	case StatusInProgress:
		return "対応中"
	case StatusResolved:
		return "解決済み"
	default:
		return "不明"
	}
}

// ComplainantName は申し出人氏名を返す。空の場合は "匿名"。
func ComplainantName(name string) string {
	if name == "" {
		return anonymous
	}
	return name
}

// StatusAfterResponse は対応記録を追加した後の対応状況を返す。
// 未対応は対応中に進み、対応中はそのまま。解決済みには追加できない。
func StatusAfterResponse(current string) (string, error) {
	switch current {
	case StatusPending:
		return StatusInProgress, nil
	case StatusResolved:
		return "", ErrResolved
	default:
		return current, nil
	}
}

// Stats は対応状況ごとの件数。
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Resolved   int `json:"resolved"`
}

// ComputeStats は対応状況ごとの件数を数える。
func ComputeStats(statuses []string) Stats {
	st := Stats{Total: len(statuses)}
	for _, s := range statuses {
		switch s {
		case StatusPending:
			st.Pending++
		case StatusInProgress:
			st.InProgress++
		case StatusResolved:
			st.Resolved++
		}
	}
	return st
}
