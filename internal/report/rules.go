package report

import (
	"errors"
	"math"
)

// 日報のステータス。
const (
	StatusSubmitted = "submitted"
	StatusReviewed  = "reviewed"
	StatusApproved  = "approved"
)

// ErrInvalidTransition は許可されていないステータス変更の場合のエラー。
var ErrInvalidTransition = errors.New("この日報のステータスは変更できません")

// VitalSigns はバイタルサイン。未測定の項目は空文字列。
type VitalSigns struct {
	Temperature   string `json:"temperature,omitempty"`
	BloodPressure string `json:"blood_pressure,omitempty"`
	Pulse         string `json:"pulse,omitempty"`
	Oxygen        string `json:"oxygen,omitempty"`
}

// UserReport は利用者1人分の記録。
type UserReport struct {
	UserID     string     `json:"user_id" binding:"required"`
	UserName   string     `json:"user_name" binding:"required"`
	VitalSigns VitalSigns `json:"vital_signs"`
	Mood       string     `json:"mood" binding:"omitempty,oneof=excellent good fair poor concerning"`
	Appetite   string     `json:"appetite" binding:"omitempty,oneof=excellent good fair poor refused"`
	Sleep      string     `json:"sleep" binding:"omitempty,oneof=excellent good fair poor sleepless"`
	Activities string     `json:"activities"`
	Medication string     `json:"medication"`
	Notes      string     `json:"notes"`
	Concerns   string     `json:"concerns"`
	Completed  bool       `json:"completed"`
}

// Summary は日報に含まれる利用者記録の集計。
type Summary struct {
	TotalUsers       int `json:"total_users"`
	CompletedReports int `json:"completed_reports"`
	IncompleteReport int `json:"incomplete_reports"`
}

// Summarize は利用者記録の件数と記入済みの件数を数える。
func Summarize(users []UserReport) Summary {
	s := Summary{TotalUsers: len(users)}
	for _, u := range users {
		if u.Completed {
			s.CompletedReports++
		}
	}
	s.IncompleteReport = s.TotalUsers - s.CompletedReports
	return s
}

// NextStatus は日報をtoに変更できるかを判定する。
// submitted→reviewed、reviewed→approved、submitted→approvedのみ許可する。
func NextStatus(from, to string) error {
	switch {
	case from == StatusSubmitted && (to == StatusReviewed || to == StatusApproved):
		return nil
	case from == StatusReviewed && to == StatusApproved:
		return nil
	default:
		return ErrInvalidTransition
	}
}

// Stats は日報一覧の集計。
type Stats struct {
	TotalReports   int `json:"total_reports"`
	Submitted      int `json:"submitted_reports"`
	Reviewed       int `json:"reviewed_reports"`
	Approved       int `json:"approved_reports"`
	CompletedUsers int `json:"completed_user_reports"`
	// AverageCompletion は日報ごとの記入率の平均（%、四捨五入）。利用者記録の無い日報は除く。
	AverageCompletion int `json:"average_completion"`
}

// ComputeStats は日報ごとのステータスと集計から一覧の統計を計算する。
func ComputeStats(statuses []string, summaries []Summary) Stats {
	st := Stats{TotalReports: len(statuses)}
	for _, s := range statuses {
		switch s {
		case StatusSubmitted:
			st.Submitted++
		case StatusReviewed:
			st.Reviewed++
		case StatusApproved:
			st.Approved++
		}
	}

	var (
		rateSum float64
		counted int
	)
	for _, sum := range summaries {
		st.CompletedUsers += sum.CompletedReports
		if sum.TotalUsers == 0 {
			continue
		}
		rateSum += float64(sum.CompletedReports) / float64(sum.TotalUsers)
		counted++
	}
	if counted > 0 {
		st.AverageCompletion = int(math.Round(rateSum / float64(counted) * 100))
	}
	return st
}
