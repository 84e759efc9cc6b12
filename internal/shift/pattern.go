package shift

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrEmptyPattern は繰り返しルールが対象月のどの日にも当たらない場合のエラー。
var ErrEmptyPattern = errors.New("繰り返しルールに該当する日が対象月にありません")

// ExpandPattern はRRULE形式の繰り返しルールを対象月（YYYY-MM）の日付に展開する。
// DTSTARTが無いルールは対象月の1日を起点にする。
func ExpandPattern(rule, month string) ([]string, error) {
	first, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, fmt.Errorf("対象月の形式が不正です (%s): %w", month, err)
	}
	next := first.AddDate(0, 1, 0)

	raw := strings.ToUpper(strings.TrimSpace(rule))
	raw = strings.TrimPrefix(raw, "RRULE:")
	if raw == "" {
		return nil, errors.New("繰り返しルールが空です")
	}
	opts, err := rrule.StrToROption(raw)
	if err != nil {
		return nil, fmt.Errorf("繰り返しルールが不正です (%s): %w", raw, err)
	}
	if opts.Dtstart.IsZero() {
		opts.Dtstart = first
	}
	r, err := rrule.NewRRule(*opts)
	if err != nil {
		return nil, fmt.Errorf("繰り返しルールが不正です (%s): %w", raw, err)
	}

	occurrences := r.Between(first, next.Add(-time.Nanosecond), true)
	if len(occurrences) == 0 {
		return nil, ErrEmptyPattern
	}
	dates := make([]string, 0, len(occurrences))
	seen := make(map[string]bool, len(occurrences))
	for _, o := range occurrences {
		d := o.Format("2006-01-02")
		if !seen[d] {
			seen[d] = true
			dates = append(dates, d)
		}
	}
	return dates, nil
}
