package validation

// Issue は業務ルール検証で見つかった1件の問題。
type Issue struct {
	// Field は対象の項目名。項目に依らない場合は空。
	Field string `json:"field,omitempty"`
	// Message は日本語のメッセージ。
	Message string `json:"message"`
}

// Result は業務ルール検証の結果。
// Errorsがあれば保存できない。Warningsは保存可能だが利用者に確認を促す。
type Result struct {
	// Errors は保存を妨げる問題。
	Errors []Issue `json:"errors"`
	// Warnings は注意喚起のみの問題。
	Warnings []Issue `json:"warnings"`
}

// NewResult は空の検証結果を生成する。
func NewResult() *Result {
	return &Result{Errors: []Issue{}, Warnings: []Issue{}}
}

// AddError はエラーを追加する。
func (r *Result) AddError(field, message string) {
	r.Errors = append(r.Errors, Issue{Field: field, Message: message})
}

// AddWarning は警告を追加する。
func (r *Result) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, Issue{Field: field, Message: message})
}

// Merge は別の検証結果を取り込む。
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Valid はエラーが無いかどうかを返す。
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

// ErrorMessages はエラーメッセージの一覧を返す。
func (r *Result) ErrorMessages() []string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return msgs
}
