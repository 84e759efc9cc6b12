package shift

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	shiftdb "github.com/nao1215/shiftcare/internal/shift/db"
	"github.com/nao1215/shiftcare/pkg/middleware"
	"github.com/nao1215/shiftcare/pkg/validation"
)

// シフト種別。
const (
	TypeEarly = "early"
	TypeDay   = "day"
	TypeLate  = "late"
	TypeNight = "night"
	TypeOff   = "off"
)

// ShiftTypes は勤務のあるシフト種別を表示順に並べたもの。
var ShiftTypes = []string{TypeEarly, TypeDay, TypeLate, TypeNight}

const (
	minutesPerDay  = 24 * 60
	shortShiftMins = 4 * 60
	longShiftMins  = 12 * 60
)

// defaultTimes はシフト種別ごとの標準の勤務時間。
var defaultTimes = map[string][2]string{
	TypeEarly: {"07:00", "16:00"},
	TypeDay:   {"09:00", "18:00"},
	TypeLate:  {"11:00", "20:00"},
	TypeNight: {"17:00", "09:00"},
}

var typeLabels = map[string]string{
	TypeEarly: "早番",
	TypeDay:   "日勤",
	TypeLate:  "遅番",
	TypeNight: "夜勤",
	TypeOff:   "休み",
}

// DefaultTimes はシフト種別の標準の開始・終了時刻を返す。
// 休みなど標準時刻の無い種別はokがfalseになる。
func DefaultTimes(shiftType string) (start, end string, ok bool) {
	t, ok := defaultTimes[shiftType]
	return t[0], t[1], ok
}

// TypeLabel はシフト種別の日本語表記を返す。
func TypeLabel(shiftType string) string {
	if l, ok := typeLabels[shiftType]; ok {
		return l
	}
	return shiftType
}

// StaffInfo はシフトの検証に使うスタッフ情報。
type StaffInfo struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	EmploymentType string `json:"employment_type"`
	NightShiftOK   bool   `json:"night_shift_ok"`
	IsActive       bool   `json:"is_active"`
}

// Candidate は検証対象のシフト。
type Candidate struct {
	UserID    string
	Date      string
	ShiftType string
	StartTime string
	EndTime   string
	// ExcludeID は重複チェックから除くシフト（更新時の自分自身）。
	ExcludeID string
}

// parseMinutes は "HH:MM" を0時からの分に変換する。
func parseMinutes(hhmm string) (int, error) {
	h, m, ok := strings.Cut(hhmm, ":")
	if !ok {
		return 0, fmt.Errorf("時刻の形式が不正です: %q", hhmm)
	}
	hours, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("時刻の形式が不正です: %q", hhmm)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("時刻の形式が不正です: %q", hhmm)
	}
	return hours*60 + minutes, nil
}

// span は開始・終了時刻を分の範囲にする。終了が開始より前なら翌日に跨ぐとみなす。
func span(start, end string) (int, int, error) {
	s, err := parseMinutes(start)
	if err != nil {
		return 0, 0, err
	}
	e, err := parseMinutes(end)
	if err != nil {
		return 0, 0, err
	}
	if e < s {
		e += minutesPerDay
	}
	return s, e, nil
}

// TimeRangesOverlap は2つの時間帯が重なるかどうかを返す。日を跨ぐ時間帯も扱う。
func TimeRangesOverlap(start1, end1, start2, end2 string) bool {
	s1, e1, err := span(start1, end1)
	if err != nil {
		return false
	}
	s2, e2, err := span(start2, end2)
	if err != nil {
		return false
	}
	return s1 < e2 && s2 < e1
}

// ValidateEligibility はスタッフがそのシフトに就けるかを検証する。
func ValidateEligibility(staff StaffInfo, shiftType, date string) *validation.Result {
	r := validation.NewResult()

	if !staff.IsActive {
		r.AddError("user_id", fmt.Sprintf("%sは在籍していないため、シフトに配置できません", staff.Name))
	}

	if shiftType == TypeNight && !staff.NightShiftOK {
		r.AddError("shift_type", fmt.Sprintf("%sは夜勤対応不可のため、夜勤シフトに配置できません", staff.Name))
	}

	partTime := staff.EmploymentType == "partTime"
	if partTime {
		switch shiftType {
		case TypeNight:
			r.AddWarning("shift_type", fmt.Sprintf("%sはパートタイム職員です。夜勤配置には特別な配慮が必要です", staff.Name))
		case TypeEarly, TypeLate:
			r.AddWarning("shift_type", fmt.Sprintf("%sはパートタイム職員です。通常勤務時間外の配置です", staff.Name))
		}
	}

	if d, err := time.Parse("2006-01-02", date); err == nil && partTime {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			r.AddWarning("date", fmt.Sprintf("週末勤務: %sはパートタイム職員です", staff.Name))
		}
	}
	return r
}

// ValidateTiming は開始・終了時刻の妥当性を検証する。
func ValidateTiming(start, end, shiftType string) *validation.Result {
	r := validation.NewResult()

	if start == "" || end == "" {
		r.AddError("start_time", "開始時間と終了時間は必須です")
		return r
	}
	s, err := parseMinutes(start)
	if err != nil {
		r.AddError("start_time", "開始時間はHH:MM形式で入力してください")
		return r
	}
	e, err := parseMinutes(end)
	if err != nil {
		r.AddError("end_time", "終了時間はHH:MM形式で入力してください")
		return r
	}

	if shiftType != TypeNight && e <= s {
		r.AddError("end_time", "終了時間は開始時間より後である必要があります")
		return r
	}
	if shiftType == TypeNight && e > s {
		r.AddWarning("end_time", "夜勤は通常、日をまたぐシフトです。時間設定を確認してください")
	}

	duration := e - s
	if e < s {
		duration += minutesPerDay
	}
	if duration < shortShiftMins {
		r.AddWarning("end_time", "シフト時間が4時間未満です。適切な勤務時間か確認してください")
	}
	if duration > longShiftMins {
		r.AddWarning("end_time", "シフト時間が12時間を超えています。労働基準法への配慮が必要です")
	}
	return r
}

// CheckConflicts は同じスタッフの同じ日のシフトと時間帯が重なるかを検証する。
// existingにはその日のスタッフのシフトを渡す。
func CheckConflicts(c Candidate, existing []shiftdb.Shift) *validation.Result {
	r := validation.NewResult()
	for _, s := range existing {
		if s.ID == c.ExcludeID || s.UserID != c.UserID || s.Date != c.Date {
			continue
		}
		if s.ShiftType == TypeOff || s.StartTime == "" || s.EndTime == "" {
			continue
		}
		if TimeRangesOverlap(c.StartTime, c.EndTime, s.StartTime, s.EndTime) {
			name := s.StaffName
			if name == "" {
				name = s.UserID
			}
			r.AddError("start_time", fmt.Sprintf("%sは同じ時間帯に既にシフトが入っています", name))
			break
		}
	}
	return r
}

// ValidateShift はスタッフの適性・時刻・重複をまとめて検証する。
// staffがnilの場合はスタッフが見つからないエラーになる。
// 休みのシフトは時刻と重複を検証しない。
func ValidateShift(staff *StaffInfo, c Candidate, existing []shiftdb.Shift) *validation.Result {
	r := validation.NewResult()
	if staff == nil {
		r.AddError("user_id", "スタッフが見つかりません")
		return r
	}

	r.Merge(ValidateEligibility(*staff, c.ShiftType, c.Date))
	if c.ShiftType == TypeOff {
		return r
	}
	timing := ValidateTiming(c.StartTime, c.EndTime, c.ShiftType)
	r.Merge(timing)
	if timing.Valid() {
		r.Merge(CheckConflicts(c, existing))
	}
	return r
}

// CanEdit はシフトを編集できるかどうかを返す。
// 管理者は全てのシフト、一般スタッフは確定前の自分のシフトだけを編集できる。
func CanEdit(role, userID string, s shiftdb.Shift) bool {
	if role == middleware.RoleAdmin {
		return true
	}
	return userID == s.UserID && !s.IsConfirmed
}

// CanDelete はシフトを削除できるかどうかを返す。削除は管理者のみ。
func CanDelete(role string) bool {
	return role == middleware.RoleAdmin
}
