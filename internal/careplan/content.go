package careplan

import "time"

// Period は記録の対象期間（YYYY-MM-DD、両端を含む）。
type Period struct {
	StartDate string `json:"start_date" binding:"required,date"`
	EndDate   string `json:"end_date" binding:"required,date"`
}

// Valid は開始日が終了日以前かを返す。
func (p Period) Valid() bool {
	return p.StartDate <= p.EndDate
}

// Contact は緊急連絡先。Priorityは1が最優先。
type Contact struct {
	Name         string `json:"name" binding:"required,max=100"`
	Relationship string `json:"relationship" binding:"max=50"`
	Phone        string `json:"phone" binding:"max=30"`
	Priority     int    `json:"priority,omitempty" binding:"gte=0"`
}

// Profile は利用者の基本情報。
type Profile struct {
	Age               int      `json:"age" binding:"gte=0,lte=130"`
	CareLevel         string   `json:"care_level" binding:"max=50"`
	DisabilityTypes   []string `json:"disability_types"`
	MedicalConditions []string `json:"medical_conditions"`
	CurrentNeeds      []string `json:"current_needs,omitempty"`
	Strengths         []string `json:"strengths,omitempty"`
	EmergencyContact  *Contact `json:"emergency_contact,omitempty"`
}

// ServiceGoals はモニタリング期間のサービス目標。
type ServiceGoals struct {
	ShortTerm          []string `json:"short_term"`
	LongTerm           []string `json:"long_term"`
	SpecificObjectives []string `json:"specific_objectives"`
}

// Assistance は食事・入浴など回数と介助の程度で記録する支援。
type Assistance struct {
	Frequency    int    `json:"frequency" binding:"gte=0"`
	SupportLevel string `json:"support_level" binding:"omitempty,oneof=independent partial full"`
	Notes        string `json:"notes"`
}

// Medication は服薬管理の状況。
type Medication struct {
	Count  int    `json:"medication_count" binding:"gte=0"`
	Method string `json:"administration_method" binding:"omitempty,oneof=self reminder assistance full"`
	Notes  string `json:"notes"`
}

// Mobility は移動支援の状況。
type Mobility struct {
	AssistiveDevices []string `json:"assistive_devices"`
	SupportLevel     string   `json:"support_level" binding:"omitempty,oneof=independent partial full"`
	Notes            string   `json:"notes"`
}

// DailyLifeSupport は日常生活支援の状況。
type DailyLifeSupport struct {
	Meal       Assistance `json:"meal"`
	Bathing    Assistance `json:"bathing"`
	Medication Medication `json:"medication"`
	Mobility   Mobility   `json:"mobility"`
}

// VitalSigns は期間中のバイタルの平均値。
type VitalSigns struct {
	BloodPressure string  `json:"blood_pressure" binding:"max=20"`
	Pulse         int     `json:"pulse" binding:"gte=0,lte=300"`
	Temperature   float64 `json:"temperature" binding:"gte=0,lte=45"`
	Weight        float64 `json:"weight" binding:"gte=0,lte=300"`
	WeightChange  string  `json:"weight_change" binding:"max=50"`
}

// MentalStatus は精神面の状況。
type MentalStatus struct {
	CognitiveFunction  string `json:"cognitive_function" binding:"omitempty,oneof=good fair declining poor"`
	SocialInteraction  string `json:"social_interaction" binding:"omitempty,oneof=active moderate limited withdrawn"`
	EmotionalStability string `json:"emotional_stability" binding:"omitempty,oneof=stable occasionally_unstable unstable"`
	Notes              string `json:"notes"`
}

// MedicalEvents は期間中の受診・入院。
type MedicalEvents struct {
	Hospitalizations  int      `json:"hospitalizations" binding:"gte=0"`
	EmergencyVisits   int      `json:"emergency_visits" binding:"gte=0"`
	NewDiagnoses      []string `json:"new_diagnoses"`
	MedicationChanges []string `json:"medication_changes"`
}

// HealthStatus は健康状態。
type HealthStatus struct {
	Vitals        VitalSigns    `json:"vital_signs"`
	Mental        MentalStatus  `json:"mental_status"`
	MedicalEvents MedicalEvents `json:"medical_events"`
}

// SocialActivities は集団活動と地域との関わり。
type SocialActivities struct {
	Participation       string   `json:"participation" binding:"omitempty,oneof=active moderate limited none"`
	PreferredActivities []string `json:"preferred_activities"`
	Outings             int      `json:"outings" binding:"gte=0"`
	FamilyVisits        int      `json:"family_visits" binding:"gte=0"`
	FriendInteractions  int      `json:"friend_interactions" binding:"gte=0"`
	Notes               string   `json:"notes"`
}

// ServiceEvaluation はサービスの評価と今後の方針。
type ServiceEvaluation struct {
	ShortTermProgress   string   `json:"short_term_progress" binding:"omitempty,oneof=exceeded achieved progressing not_achieved"`
	LongTermProgress    string   `json:"long_term_progress" binding:"omitempty,oneof=exceeded achieved progressing not_achieved"`
	UserSatisfaction    string   `json:"user_satisfaction" binding:"omitempty,oneof=very_satisfied satisfied neutral unsatisfied"`
	FamilySatisfaction  string   `json:"family_satisfaction" binding:"omitempty,oneof=very_satisfied satisfied neutral unsatisfied"`
	StaffAssessment     string   `json:"staff_assessment" binding:"omitempty,oneof=excellent good fair needs_improvement"`
	ServiceContinuation string   `json:"service_continuation" binding:"omitempty,oneof=continue modify increase decrease discontinue"`
	ProposedChanges     []string `json:"proposed_changes"`
	PriorityAreas       []string `json:"priority_areas"`
	Notes               string   `json:"notes"`
}

// MonitoringContent はモニタリング記録の本文。
type MonitoringContent struct {
	Profile    Profile           `json:"personal_info"`
	Goals      ServiceGoals      `json:"service_goals"`
	DailyLife  DailyLifeSupport  `json:"daily_life_support"`
	Health     HealthStatus      `json:"health_status"`
	Social     SocialActivities  `json:"social_activities"`
	Evaluation ServiceEvaluation `json:"service_evaluation"`
}

// Assessment は機能面のアセスメント。各項目は excellent, good, fair, declining, poor のいずれか。
type Assessment struct {
	Physical  string `json:"physical_function" binding:"omitempty,oneof=excellent good fair declining poor"`
	Cognitive string `json:"cognitive_function" binding:"omitempty,oneof=excellent good fair declining poor"`
	Social    string `json:"social_function" binding:"omitempty,oneof=excellent good fair declining poor"`
	Emotional string `json:"emotional_wellbeing" binding:"omitempty,oneof=excellent good fair declining poor"`
	Overall   string `json:"overall_assessment"`
}

// Goal は支援目標と達成の測り方。
type Goal struct {
	Goal               string   `json:"goal" binding:"required"`
	Timeframe          string   `json:"timeframe"`
	MeasurableOutcomes []string `json:"measurable_outcomes"`
	Methods            []string `json:"methods"`
}

// SupportGoals は長期（主）目標と短期（副）目標。
type SupportGoals struct {
	Primary   []Goal `json:"primary" binding:"dive"`
	Secondary []Goal `json:"secondary" binding:"dive"`
}

// DailySupport は日常的に提供する支援。
type DailySupport struct {
	Type      string   `json:"type" binding:"required"`
	Frequency string   `json:"frequency"`
	Duration  string   `json:"duration"`
	Staff     string   `json:"staff"`
	Location  string   `json:"location"`
	Methods   []string `json:"methods"`
}

// SpecializedService は外部の専門職によるサービス。
type SpecializedService struct {
	Type            string `json:"type" binding:"required"`
	Provider        string `json:"provider"`
	Frequency       string `json:"frequency"`
	Purpose         string `json:"purpose"`
	ExpectedOutcome string `json:"expected_outcome"`
}

// ServiceDetails は提供するサービスの内容。
type ServiceDetails struct {
	Daily       []DailySupport       `json:"daily_support" binding:"dive"`
	Specialized []SpecializedService `json:"specialized_services" binding:"dive"`
}

// Risk は想定されるリスクと対応。
type Risk struct {
	Risk               string   `json:"risk" binding:"required"`
	Severity           string   `json:"severity" binding:"required,oneof=low medium high"`
	PreventionMeasures []string `json:"prevention_measures"`
	ResponseProtocol   string   `json:"response_protocol"`
}

// RiskManagement はリスク管理と緊急連絡先。
type RiskManagement struct {
	Risks             []Risk    `json:"identified_risks" binding:"dive"`
	EmergencyContacts []Contact `json:"emergency_contacts" binding:"dive"`
}

// ReviewSchedule は計画の見直し予定。
type ReviewSchedule struct {
	Regular     string   `json:"regular_review"`
	Emergency   string   `json:"emergency_review"`
	NextPlanned string   `json:"next_planned_review" binding:"omitempty,date"`
	Criteria    []string `json:"review_criteria"`
}

// QualityAssurance はサービスの質を確かめる仕組み。
type QualityAssurance struct {
	MonitoringMethods     []string `json:"monitoring_methods"`
	PerformanceIndicators []string `json:"performance_indicators"`
	FeedbackSources       []string `json:"feedback_sources"`
	ImprovementMechanisms []string `json:"improvement_mechanisms"`
}

// PlanContent は個別支援計画の本文。
type PlanContent struct {
	Profile    Profile          `json:"personal_info"`
	Assessment Assessment       `json:"assessment_summary"`
	Goals      SupportGoals     `json:"support_goals"`
	Services   ServiceDetails   `json:"service_details"`
	Risks      RiskManagement   `json:"risk_management"`
	Review     ReviewSchedule   `json:"review_schedule"`
	Quality    QualityAssurance `json:"quality_assurance"`
}

// planLength は次期計画の期間。
const planLength = 6

// 精神面・生活面の記録からアセスメントの評価への対応。
var (
	cognitiveToFunction = map[string]string{
		"good": "good", "fair": "fair", "declining": "declining", "poor": "poor",
	}
	interactionToFunction = map[string]string{
		"active": "good", "moderate": "fair", "limited": "declining", "withdrawn": "poor",
	}
	stabilityToFunction = map[string]string{
		"stable": "good", "occasionally_unstable": "fair", "unstable": "poor",
	}
	mobilityToFunction = map[string]string{
		"independent": "good", "partial": "fair", "full": "declining",
	}
)

// DraftPlan はモニタリング記録から次期の個別支援計画の下書きを組み立てる。
// 計画期間は記録の終了日の翌日から6か月とし、次回見直し日はその最終日にする。
// 長期目標は主目標に、短期目標は副目標に引き継ぐ。重点課題は現在のニーズとして扱う。
func DraftPlan(period Period, m MonitoringContent) (Period, PlanContent) {
	next := period
	if end, err := time.Parse(time.DateOnly, period.EndDate); err == nil {
		start := end.AddDate(0, 0, 1)
		next = Period{
			StartDate: start.Format(time.DateOnly),
			EndDate:   start.AddDate(0, planLength, -1).Format(time.DateOnly),
		}
	}

	plan := PlanContent{
		Profile: Profile{
			Age:               m.Profile.Age,
			CareLevel:         m.Profile.CareLevel,
			DisabilityTypes:   m.Profile.DisabilityTypes,
			MedicalConditions: m.Profile.MedicalConditions,
			CurrentNeeds:      m.Evaluation.PriorityAreas,
			Strengths:         m.Social.PreferredActivities,
		},
		Assessment: Assessment{
			Physical:  mobilityToFunction[m.DailyLife.Mobility.SupportLevel],
			Cognitive: cognitiveToFunction[m.Health.Mental.CognitiveFunction],
			Social:    interactionToFunction[m.Health.Mental.SocialInteraction],
			Emotional: stabilityToFunction[m.Health.Mental.EmotionalStability],
			Overall:   m.Evaluation.Notes,
		},
		Review: ReviewSchedule{
			Regular:     "6か月ごと",
			Emergency:   "状態の急変時",
			NextPlanned: next.EndDate,
		},
	}
	for _, g := range m.Goals.LongTerm {
		plan.Goals.Primary = append(plan.Goals.Primary, Goal{Goal: g, Timeframe: "6か月"})
	}
	for _, g := range m.Goals.ShortTerm {
		plan.Goals.Secondary = append(plan.Goals.Secondary, Goal{
			Goal:               g,
			Timeframe:          "3か月",
			MeasurableOutcomes: m.Goals.SpecificObjectives,
		})
	}
	if c := m.Profile.EmergencyContact; c != nil {
		contact := *c
		contact.Priority = 1
		plan.Risks.EmergencyContacts = []Contact{contact}
	}
	return next, plan
}
