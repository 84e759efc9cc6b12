package staff

import (
	"regexp"
	"slices"
	"strings"

	"github.com/nao1215/shiftcare/pkg/middleware"
	"github.com/nao1215/shiftcare/pkg/validation"
)

// 雇用形態。
const (
	EmploymentFullTime = "fullTime"
	EmploymentPartTime = "partTime"
	EmploymentContract = "contract"
)

var (
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRegex = regexp.MustCompile(`^[\d\-+()\s]+$`)
)

// welfareQualifications は障害者支援に関連する資格。部分一致で判定する。
var welfareQualifications = []string{"介護福祉士", "社会福祉士", "精神保健福祉士", "実務者研修", "介護初任者研修"}

// qualificationScores は資格ごとの評価点。表に無い資格は1点。
var qualificationScores = map[string]int{
	"介護福祉士":   10,
	"社会福祉士":   10,
	"精神保健福祉士": 10,
	"介護支援専門員": 8,
	"実務者研修":   6,
	"介護初任者研修": 4,
	"普通自動車免許": 2,
	"救急救命講習":  3,
	"衛生管理者":   5,
}

// Input はスタッフ登録・更新のリクエスト。
type Input struct {
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Role           string   `json:"role" binding:"omitempty,oneof=staff admin"`
	Position       string   `json:"position"`
	Department     string   `json:"department"`
	Qualifications []string `json:"qualifications"`
	NightShiftOK   bool     `json:"night_shift_ok"`
	EmploymentType string   `json:"employment_type" binding:"omitempty,oneof=fullTime partTime contract"`
	// WeeklyHours は週間勤務時間。nilは未設定。
	WeeklyHours *int   `json:"weekly_hours"`
	Phone       string `json:"phone"`
	JoinedDate  string `json:"joined_date" binding:"omitempty,date"`
	// IsActive は在籍状態。nilの場合は在籍中として扱う。
	IsActive *bool `json:"is_active"`
}

// normalize は前後の空白を除き、既定値を補う。
func (in *Input) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Position = strings.TrimSpace(in.Position)
	in.Department = strings.TrimSpace(in.Department)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Role == "" {
		in.Role = middleware.RoleStaff
	}
	if in.EmploymentType == "" {
		in.EmploymentType = EmploymentFullTime
	}
	quals := make([]string, 0, len(in.Qualifications))
	for _, q := range in.Qualifications {
		if q = strings.TrimSpace(q); q != "" {
			quals = append(quals, q)
		}
	}
	in.Qualifications = quals
}

// ValidateStaff はスタッフ情報の業務ルールを検証する。
// 必須項目と形式の誤りはエラー、労務上の注意点や資格の推奨は警告にする。
func ValidateStaff(in Input) *validation.Result {
	r := validation.NewResult()

	if strings.TrimSpace(in.Name) == "" {
		r.AddError("name", "氏名は必須です")
	}

	email := strings.TrimSpace(in.Email)
	switch {
	case email == "":
		r.AddError("email", "メールアドレスは必須です")
	case !emailRegex.MatchString(email):
		r.AddError("email", "有効なメールアドレス形式で入力してください")
	}

	if strings.TrimSpace(in.Position) == "" {
		r.AddError("position", "職位は必須です")
	}

	if in.WeeklyHours != nil {
		switch hours := *in.WeeklyHours; {
		case hours < 1:
			r.AddError("weekly_hours", "週間労働時間は1時間以上で入力してください")
		case hours > 60:
			r.AddWarning("weekly_hours", "週間労働時間が60時間を超えています。労働基準法に配慮してください")
		case hours > 40 && in.EmploymentType == EmploymentPartTime:
			r.AddWarning("weekly_hours", "パートタイム職員の労働時間が40時間を超えています")
		}
	}

	if in.Phone != "" && !phoneRegex.MatchString(in.Phone) {
		r.AddError("phone", "有効な電話番号形式で入力してください")
	}

	if in.NightShiftOK && in.EmploymentType == EmploymentPartTime {
		r.AddWarning("night_shift_ok", "パートタイム職員の夜勤対応は特別な配慮が必要です")
	}

	if len(in.Qualifications) == 0 {
		r.AddWarning("qualifications", "少なくとも1つの資格を入力することを推奨します")
	}
	if in.Role == middleware.RoleStaff && !hasWelfareQualification(in.Qualifications) {
		r.AddWarning("qualifications", "障害者支援に関連する資格（介護福祉士等）の保有を推奨します")
	}

	return r
}

func hasWelfareQualification(quals []string) bool {
	return slices.ContainsFunc(quals, func(q string) bool {
		return slices.ContainsFunc(welfareQualifications, func(w string) bool {
			return strings.Contains(q, w)
		})
	})
}

// CanEdit は利用者が対象スタッフを編集できるかを返す。
// 管理者は全員を、一般スタッフは自分だけを編集できる。
func CanEdit(role, userID, targetID string) bool {
	return role == middleware.RoleAdmin || userID == targetID
}

// CanDelete は利用者が対象スタッフを削除できるかを返す。
// 削除できるのは管理者だけで、管理者は削除できない。
func CanDelete(role, targetRole string) bool {
	return role == middleware.RoleAdmin && targetRole != middleware.RoleAdmin
}

// Assessment は保有資格の評価結果。
type Assessment struct {
	// Level は basic, intermediate, advanced のいずれか。
	Level string `json:"level"`
	// Score は資格の評価点の合計。
	Score int `json:"score"`
	// Recommendations は資格取得の推奨事項。
	Recommendations []string `json:"recommendations"`
}

// AssessQualifications は保有資格を点数化して水準を判定する。
// 15点以上で advanced、8点以上で intermediate、それ未満は basic。
func AssessQualifications(quals []string) Assessment {
	score := 0
	for _, q := range quals {
		if s, ok := qualificationScores[q]; ok {
			score += s
		} else {
			score++
		}
	}

	a := Assessment{Score: score, Recommendations: []string{}}
	switch {
	case score >= 15:
		a.Level = "advanced"
	case score >= 8:
		a.Level = "intermediate"
		a.Recommendations = append(a.Recommendations, "より高度な資格取得を推奨します")
	default:
		a.Level = "basic"
		a.Recommendations = append(a.Recommendations,
			"介護福祉士または社会福祉士の取得を強く推奨します",
			"実務者研修の受講を検討してください")
	}

	if !slices.ContainsFunc(quals, func(q string) bool { return strings.Contains(q, "普通自動車免許") }) {
		a.Recommendations = append(a.Recommendations, "普通自動車免許の取得を推奨します（外出支援等に必要）")
	}
	return a
}

// Constraints は雇用形態ごとの勤務上の制約。
type Constraints struct {
	MaxWeeklyHours    int      `json:"max_weekly_hours"`
	NightShiftAllowed bool     `json:"night_shift_allowed"`
	Recommendations   []string `json:"recommendations"`
}

// EmploymentConstraints は雇用形態ごとの制約を返す。
func EmploymentConstraints(employmentType string) Constraints {
	switch employmentType {
	case EmploymentFullTime:
		return Constraints{
			MaxWeeklyHours:    40,
			NightShiftAllowed: true,
			Recommendations:   []string{"正社員として法定労働時間の遵守", "夜勤対応可能な場合はシフト柔軟性向上"},
		}
	case EmploymentPartTime:
		return Constraints{
			MaxWeeklyHours:    30,
			NightShiftAllowed: false,
			Recommendations:   []string{"パートタイム労働時間の適切な管理", "夜勤は原則として避けることを推奨"},
		}
	case EmploymentContract:
		return Constraints{
			MaxWeeklyHours:    40,
			NightShiftAllowed: true,
			Recommendations:   []string{"契約期間と労働条件の明確化", "更新時期の事前確認"},
		}
	default:
		return Constraints{MaxWeeklyHours: 40, NightShiftAllowed: true, Recommendations: []string{}}
	}
}
