package evaluation

import (
	"cmp"
	_ "embed"
	"errors"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var questionsYAML []byte

// スコアの範囲。0は未回答。
const (
	MinScore = 1
	MaxScore = 5
)

// Question は自己評価の設問。
type Question struct {
	ID          string `yaml:"id" json:"id"`
	Number      int    `yaml:"number" json:"number"`
	Category    string `yaml:"category" json:"category"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Category は設問の区分と設問数。
type Category struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Catalogue は設問とスコアの説明の一覧。
type Catalogue struct {
	ScoreDescriptions map[int]string `yaml:"score_descriptions" json:"score_descriptions"`
	Questions         []Question     `yaml:"questions" json:"questions"`
}

// ErrUnknownQuestion は設問一覧に無い設問IDが指定された場合のエラー。
var ErrUnknownQuestion = errors.New("存在しない設問です")

// DefaultCatalogue は埋め込みの設問一覧を読み込む。
func DefaultCatalogue() (*Catalogue, error) {
	return ParseCatalogue(questionsYAML)
}

// ParseCatalogue はYAMLの設問一覧を読み込み、設問を番号順に並べる。
// IDや番号の重複、スコアの説明の欠落はエラー。
func ParseCatalogue(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("設問一覧の解析に失敗: %w", err)
	}
	if len(c.Questions) == 0 {
		return nil, errors.New("設問がありません")
	}
	for s := MinScore; s <= MaxScore; s++ {
		if c.ScoreDescriptions[s] == "" {
			return nil, fmt.Errorf("スコア%dの説明がありません", s)
		}
	}

	ids := make(map[string]bool, len(c.Questions))
	numbers := make(map[int]bool, len(c.Questions))
	for _, q := range c.Questions {
		if q.ID == "" || q.Title == "" || q.Category == "" {
			return nil, fmt.Errorf("設問%dのid, title, categoryは必須です", q.Number)
		}
		if ids[q.ID] {
			return nil, fmt.Errorf("設問IDが重複しています: %s", q.ID)
		}
		if numbers[q.Number] {
			return nil, fmt.Errorf("設問番号が重複しています: %d", q.Number)
		}
		ids[q.ID] = true
		numbers[q.Number] = true
	}
	slices.SortFunc(c.Questions, func(a, b Question) int { return cmp.Compare(a.Number, b.Number) })
	return &c, nil
}

// Has は設問IDが一覧に含まれるかを返す。
func (c *Catalogue) Has(id string) bool {
	for _, q := range c.Questions {
		if q.ID == id {
			return true
		}
	}
	return false
}

// Categories は区分を初出の順に返す。
func (c *Catalogue) Categories() []Category {
	var cats []Category
	index := map[string]int{}
	for _, q := range c.Questions {
		i, ok := index[q.Category]
		if !ok {
			i = len(cats)
			index[q.Category] = i
			cats = append(cats, Category{Name: q.Category})
		}
		cats[i].Count++
	}
	return cats
}

// ScoreLabel はスコアの説明を返す。0は "未回答"。
func (c *Catalogue) ScoreLabel(score int) string {
	if score == 0 {
		return "未回答"
	}
	return c.ScoreDescriptions[score]
}
