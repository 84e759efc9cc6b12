package incident

import (
	"encoding/json"
	"errors"
	"log"

	incidentdb "github.com/nao1215/shiftcare/internal/incident/db"
)

// 報告の種類。
const (
	TypeAccident = "accident"
	TypeNearMiss = "nearMiss"
)

// 対応状況。
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// ErrInvalidTransition は許可されていない対応状況の変更。
var ErrInvalidTransition = errors.New("この対応状況には変更できません")

// TypeLabel は報告の種類の表示名を返す。
func TypeLabel(t string) string {
	if t == TypeAccident {
		return "事故"
	}
	return "ヒヤリハット"
}

// ReportTitle は報告書の表題を返す。
func ReportTitle(t string) string {
	if t == TypeAccident {
		return "事故報告書"
	}
	return "ヒヤリハット報告書"
}

// StatusLabel は対応状況の表示名を返す。
func StatusLabel(s string) string {
	switch s {
	case StatusPending:
		return "未対応"
	case StatusInProgress:
		return "対応中"
	case StatusCompleted:
		return "対応済み"
	default:
		return s
	}
}

// CheckTransition は対応状況をfromからtoに進められるかを判定する。
// 対応状況は戻せない。
func CheckTransition(from, to string) error {
	switch {
	case from == StatusPending && (to == StatusInProgress || to == StatusCompleted):
		return nil
	case from == StatusInProgress && to == StatusCompleted:
		return nil
	default:
		return ErrInvalidTransition
	}
}

// Stats は一覧の件数。
type Stats struct {
	Total     int `json:"total"`
	Accidents int `json:"accidents"`
	NearMiss  int `json:"near_misses"`
	Pending   int `json:"pending"`
}

// ComputeStats は報告の種類と未対応の件数を数える。
func ComputeStats(rows []incidentdb.Incident) Stats {
	st := Stats{Total: len(rows)}
	for _, r := range rows {
		if r.Type == TypeAccident {
			st.Accidents++
		} else {
			st.NearMiss++
		}
		if r.Status == StatusPending {
			st.Pending++
		}
	}
	return st
}

// persons は保存された関係者の一覧を読み取る。
func persons(raw string) []string {
	var ps []string
	if err := json.Unmarshal([]byte(raw), &ps); err != nil {
		log.Printf("関係者のデコードに失敗: %v", err)
		return []string{}
	}
	if ps == nil {
		return []string{}
	}
	return ps
}
