package evaluation

import (
	"testing"

	evaluationdb "github.com/nao1215/shiftcare/internal/evaluation/db"
)

func testCatalogue(t *testing.T) *Catalogue {
	t.Helper()
	c, err := ParseCatalogue([]byte(`
score_descriptions: {1: 不十分, 2: やや不十分, 3: 普通, 4: 良好, 5: 優秀}
questions:
  - {id: q1, number: 1, category: 安全管理, title: 防災訓練}
  - {id: q2, number: 2, category: 安全管理, title: 感染症対策}
  - {id: q3, number: 3, category: 職員体制, title: 人員配置}
`))
	if err != nil {
		t.Fatalf("ParseCatalogue() = %v", err)
	}
	return c
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	c := testCatalogue(t)
	tests := []struct {
		name      string
		responses []evaluationdb.Response
		want      Summary
	}{
		{name: "回答なし", responses: nil, want: Summary{Total: 3}},
		{
			name: "平均は小数第1位に丸める",
			responses: []evaluationdb.Response{
				{QuestionID: "q1", Score: 4},
				{QuestionID: "q2", Score: 5},
				{QuestionID: "q3", Score: 5},
			},
			want: Summary{Total: 3, Answered: 3, Rate: 100, Average: 4.7},
		},
		{
			name: "未回答と一覧に無い設問は数えない",
			responses: []evaluationdb.Response{
				{QuestionID: "q1", Score: 3},
				{QuestionID: "q2", Score: 0},
				{QuestionID: "removed", Score: 1},
			},
			want: Summary{Total: 3, Answered: 1, Rate: 33, Average: 3},
		},
		{
			name: "回答率は四捨五入",
			responses: []evaluationdb.Response{
				{QuestionID: "q1", Score: 2},
				{QuestionID: "q2", Score: 3},
			},
			want: Summary{Total: 3, Answered: 2, Rate: 67, Average: 2.5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Summarize(c, tt.responses); got != tt.want {
				t.Errorf("Summarize() = %+v; 期待値 = %+v", got, tt.want)
			}
		})
	}
}

func TestAnswers(t *testing.T) {
	t.Parallel()

	c := testCatalogue(t)
	answers := Answers(c, []evaluationdb.Response{{QuestionID: "q2", Score: 4, Comment: "手順書を更新した"}})
	if len(answers) != 3 {
		t.Fatalf("件数 = %d", len(answers))
	}
	if answers[0].Score != 0 || answers[1].Score != 4 || answers[1].Comment != "手順書を更新した" {
		t.Errorf("answers = %+v", answers)
	}
}
