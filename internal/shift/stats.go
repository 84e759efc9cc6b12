package shift

import shiftdb "github.com/nao1215/shiftcare/internal/shift/db"

// Stats は生成シフトの集計。
type Stats struct {
	TotalShifts     int            `json:"total_shifts"`
	ConfirmedShifts int            `json:"confirmed_shifts"`
	StaffCount      int            `json:"staff_count"`
	ShiftTypes      map[string]int `json:"shift_types"`
}

// ComputeStats はシフトの件数・確定数・スタッフ数・種別ごとの件数を数える。
func ComputeStats(shifts []shiftdb.Shift) Stats {
	st := Stats{ShiftTypes: make(map[string]int, len(ShiftTypes))}
	for _, t := range ShiftTypes {
		st.ShiftTypes[t] = 0
	}

	staff := make(map[string]struct{})
	for _, s := range shifts {
		st.TotalShifts++
		if s.IsConfirmed {
			st.ConfirmedShifts++
		}
		staff[s.UserID] = struct{}{}
		if _, ok := st.ShiftTypes[s.ShiftType]; ok {
			st.ShiftTypes[s.ShiftType]++
		}
	}
	st.StaffCount = len(staff)
	return st
}

// StaffCounts はスタッフ名（無ければユーザーID）ごとのシフト数を返す。
func StaffCounts(shifts []shiftdb.Shift) map[string]int {
	counts := make(map[string]int)
	for _, s := range shifts {
		key := s.StaffName
		if key == "" {
			key = s.UserID
		}
		counts[key]++
	}
	return counts
}
