package shift

import (
	"errors"
	"slices"
	"testing"
)

func TestExpandPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		rule  string
		month string
		want  []string
	}{
		{
			name:  "毎週月曜日",
			rule:  "FREQ=WEEKLY;BYDAY=MO",
			month: "2025-06",
			want:  []string{"2025-06-02", "2025-06-09", "2025-06-16", "2025-06-23", "2025-06-30"},
		},
		{
			name:  "RRULE:の接頭辞と小文字を受け付ける",
			rule:  "rrule:freq=daily;count=3",
			month: "2025-06",
			want:  []string{"2025-06-01", "2025-06-02", "2025-06-03"},
		},
		{
			name:  "対象月を越える日は含めない",
			rule:  "FREQ=DAILY;INTERVAL=10",
			month: "2025-02",
			want:  []string{"2025-02-01", "2025-02-11", "2025-02-21"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExpandPattern(tt.rule, tt.month)
			if err != nil {
				t.Fatalf("ExpandPattern() エラー: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("ExpandPattern() = %v; 期待値 = %v", got, tt.want)
			}
		})
	}

	t.Run("該当日が無い場合はErrEmptyPattern", func(t *testing.T) {
		t.Parallel()
		_, err := ExpandPattern("FREQ=YEARLY;BYMONTH=1", "2025-06")
		if !errors.Is(err, ErrEmptyPattern) {
			t.Errorf("err = %v; 期待値 = ErrEmptyPattern", err)
		}
	})

	t.Run("不正なルールと対象月はエラー", func(t *testing.T) {
		t.Parallel()
		if _, err := ExpandPattern("FREQ=SOMETIMES", "2025-06"); err == nil {
			t.Error("不正なルールでエラーにならない")
		}
		if _, err := ExpandPattern("", "2025-06"); err == nil {
			t.Error("空のルールでエラーにならない")
		}
		if _, err := ExpandPattern("FREQ=DAILY", "2025/06"); err == nil {
			t.Error("不正な対象月でエラーにならない")
		}
	})
}
