package evaluation

import (
	"errors"
	"math"

	evaluationdb "github.com/nao1215/shiftcare/internal/evaluation/db"
)

var (
	// ErrIncomplete は未回答の設問が残っている自己評価を完了しようとした場合のエラー。
	ErrIncomplete = errors.New("未回答の設問があります")
	// ErrCompleted は完了済みの自己評価を変更しようとした場合のエラー。
	ErrCompleted = errors.New("この年度の自己評価は完了済みです")
)

// Summary は自己評価の集計。
type Summary struct {
	Total    int `json:"total"`
	Answered int `json:"answered"`
	// Rate は回答率（%、四捨五入）。
	Rate int `json:"rate"`
	// Average は回答済み設問の平均スコア（小数第1位に丸める）。未回答のみなら0。
	Average float64 `json:"average"`
}

// Summarize は設問一覧に含まれる回答だけを集計する。
func Summarize(c *Catalogue, responses []evaluationdb.Response) Summary {
	s := Summary{Total: len(c.Questions)}
	sum := 0
	for _, r := range responses {
		if r.Score <= 0 || !c.Has(r.QuestionID) {
			continue
		}
		s.Answered++
		sum += r.Score
	}
	if s.Total > 0 {
		s.Rate = int(math.Round(float64(s.Answered) / float64(s.Total) * 100))
	}
	if s.Answered > 0 {
		s.Average = math.Round(float64(sum)/float64(s.Answered)*10) / 10
	}
	return s
}

// Answer は設問と回答の組。
type Answer struct {
	Question Question
	Score    int
	Comment  string
}

// Answers は設問一覧の順に回答を並べる。回答の無い設問はスコア0。
func Answers(c *Catalogue, responses []evaluationdb.Response) []Answer {
	byID := make(map[string]evaluationdb.Response, len(responses))
	for _, r := range responses {
		byID[r.QuestionID] = r
	}
	answers := make([]Answer, 0, len(c.Questions))
	for _, q := range c.Questions {
		r := byID[q.ID]
		answers = append(answers, Answer{Question: q, Score: r.Score, Comment: r.Comment})
	}
	return answers
}
