package shift

import (
	"fmt"
	"math"

	shiftdb "github.com/nao1215/shiftcare/internal/shift/db"
)

// 配置アラートの種類。
const (
	AlertUnderstaffed = "understaffed"
	AlertOverstaffed  = "overstaffed"
	AlertNoLeader     = "no_leader"
)

// 配置アラートと配置チェックの重要度。
const (
	SeverityInfo    = "info"
	SeverityLow     = "low"
	SeverityMedium  = "medium"
	SeverityHigh    = "high"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Alert はエリア配置の過不足を知らせる。
type Alert struct {
	Type      string `json:"type"`
	AreaID    string `json:"area_id"`
	ShiftType string `json:"shift_type"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
}

// SlotCoverage はエリアの1シフト種別の配置状況。
type SlotCoverage struct {
	Required  int  `json:"required"`
	Assigned  int  `json:"assigned"`
	HasLeader bool `json:"has_leader"`
}

// AreaCoverage はエリアの1日分の配置状況。
type AreaCoverage struct {
	AreaID        string                  `json:"area_id"`
	AreaName      string                  `json:"area_name"`
	Shifts        map[string]SlotCoverage `json:"shifts"`
	TotalStaff    int                     `json:"total_staff"`
	RequiredStaff int                     `json:"required_staff"`
	// Coverage は必要人数に対する充足率（%、小数1桁）。超過分は数えない。
	Coverage float64 `json:"coverage"`
}

// DailyCoverage は1日分の配置サマリー。
type DailyCoverage struct {
	Date            string         `json:"date"`
	Areas           []AreaCoverage `json:"areas"`
	TotalStaff      int            `json:"total_staff"`
	UncoveredShifts int            `json:"uncovered_shifts"`
	Alerts          []Alert        `json:"alerts"`
}

// Required はエリアのシフト種別ごとの必要人数を返す。
func Required(a shiftdb.Area, shiftType string) int {
	switch shiftType {
	case TypeEarly:
		return a.RequiredEarly
	case TypeDay:
		return a.RequiredDay
	case TypeLate:
		return a.RequiredLate
	case TypeNight:
		return a.RequiredNight
	default:
		return 0
	}
}

// Summarize はその日の配置をエリア・シフト種別ごとに集計し、不足・定員超過・リーダー不在を洗い出す。
// エリアはareasの順に並べる。dateと異なる日の配置は数えない。
func Summarize(date string, areas []shiftdb.Area, assignments []shiftdb.Assignment) DailyCoverage {
	sum := DailyCoverage{Date: date, Areas: make([]AreaCoverage, 0, len(areas)), Alerts: []Alert{}}

	type slot struct{ area, shiftType string }
	assigned := make(map[slot]int)
	leaders := make(map[slot]bool)
	perArea := make(map[string]int)
	for _, a := range assignments {
		if a.Date != date {
			continue
		}
		sum.TotalStaff++
		k := slot{a.AreaID, a.ShiftType}
		assigned[k]++
		perArea[a.AreaID]++
		if a.IsLeader {
			leaders[k] = true
		}
	}

	for _, area := range areas {
		ac := AreaCoverage{
			AreaID:     area.ID,
			AreaName:   area.Name,
			Shifts:     make(map[string]SlotCoverage, len(ShiftTypes)),
			TotalStaff: perArea[area.ID],
		}
		covered := 0
		for _, st := range ShiftTypes {
			k := slot{area.ID, st}
			required, n := Required(area, st), assigned[k]
			ac.Shifts[st] = SlotCoverage{Required: required, Assigned: n, HasLeader: leaders[k]}
			ac.RequiredStaff += required
			covered += min(n, required)

			if n < required {
				short := required - n
				severity := SeverityMedium
				if short > 1 {
					severity = SeverityHigh
				}
				sum.Alerts = append(sum.Alerts, Alert{
					Type:      AlertUnderstaffed,
					AreaID:    area.ID,
					ShiftType: st,
					Message:   fmt.Sprintf("%sの%sが%d名不足", area.Name, TypeLabel(st), short),
					Severity:  severity,
				})
				sum.UncoveredShifts += short
			}
			if n > area.MaxCapacity {
				sum.Alerts = append(sum.Alerts, Alert{
					Type:      AlertOverstaffed,
					AreaID:    area.ID,
					ShiftType: st,
					Message:   fmt.Sprintf("%sの%sが定員超過", area.Name, TypeLabel(st)),
					Severity:  SeverityLow,
				})
			}
			if required > 0 && n > 0 && !leaders[k] {
				sum.Alerts = append(sum.Alerts, Alert{
					Type:      AlertNoLeader,
					AreaID:    area.ID,
					ShiftType: st,
					Message:   fmt.Sprintf("%sの%sにリーダーが不在", area.Name, TypeLabel(st)),
					Severity:  SeverityMedium,
				})
			}
		}
		ac.Coverage = 100
		if ac.RequiredStaff > 0 {
			ac.Coverage = math.Round(float64(covered)/float64(ac.RequiredStaff)*1000) / 10
		}
		sum.Areas = append(sum.Areas, ac)
	}
	return sum
}

// StaffingCheck はエリア・シフト種別の配置人数の判定結果。
type StaffingCheck struct {
	Valid    bool   `json:"valid"`
	Message  string `json:"message,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// ValidateAreaStaffing は配置人数がエリアの必要人数と定員に収まっているかを判定する。
// 必要人数を下回ればerror、定員を超えればwarning、ちょうど必要人数ならinfoを返す。
func ValidateAreaStaffing(area shiftdb.Area, shiftType string, count int) StaffingCheck {
	required := Required(area, shiftType)
	switch {
	case count < required:
		return StaffingCheck{
			Message:  fmt.Sprintf("%sの%sは%d名必要です（現在%d名）", area.Name, TypeLabel(shiftType), required, count),
			Severity: SeverityError,
		}
	case count > area.MaxCapacity:
		return StaffingCheck{
			Message:  fmt.Sprintf("%sの定員は%d名です", area.Name, area.MaxCapacity),
			Severity: SeverityWarning,
		}
	case count == required:
		return StaffingCheck{
			Valid:    true,
			Message:  fmt.Sprintf("%sの配置は適正です", area.Name),
			Severity: SeverityInfo,
		}
	default:
		return StaffingCheck{Valid: true}
	}
}
