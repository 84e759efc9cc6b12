package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeStaff はスタッフを表す。
	AggregateTypeStaff AggregateType = "Staff"
	// AggregateTypeShift はシフトを表す。
	AggregateTypeShift AggregateType = "Shift"
	// AggregateTypeShiftRequest は休日希望を表す。
	AggregateTypeShiftRequest AggregateType = "ShiftRequest"
	// AggregateTypeDailyReport は日報を表す。
	AggregateTypeDailyReport AggregateType = "DailyReport"
	// AggregateTypeIncident は事故・ヒヤリハット報告を表す。
	AggregateTypeIncident AggregateType = "Incident"
	// AggregateTypeComplaint は苦情・要望を表す。
	AggregateTypeComplaint AggregateType = "Complaint"
	// AggregateTypeDrill は防災訓練記録を表す。
	AggregateTypeDrill AggregateType = "Drill"
	// AggregateTypeInfection は感染症対応記録を表す。
	AggregateTypeInfection AggregateType = "Infection"
	// AggregateTypeEvaluation は自己評価を表す。
	AggregateTypeEvaluation AggregateType = "Evaluation"
	// AggregateTypeNotification は通知を表す。
	AggregateTypeNotification AggregateType = "Notification"
	// AggregateTypeAssignment は職員のエリア配置を表す。
	AggregateTypeAssignment AggregateType = "Assignment"
	// AggregateTypeSupportPlan は個別支援計画を表す。
	AggregateTypeSupportPlan AggregateType = "SupportPlan"
	// AggregateTypeMonitoringRecord はモニタリング記録を表す。
	AggregateTypeMonitoringRecord AggregateType = "MonitoringRecord"
)

// Type はイベントの種類を表す。
// 行レベルの変更を "<Aggregate><操作>" の形で命名する。
type Type string

const (
	// TypeStaffCreated はスタッフが登録されたことを表す。
	TypeStaffCreated Type = "StaffCreated"
	// TypeStaffUpdated はスタッフ情報が更新されたことを表す。
	TypeStaffUpdated Type = "StaffUpdated"
	// TypeStaffDeleted はスタッフが削除されたことを表す。
	TypeStaffDeleted Type = "StaffDeleted"

	// TypeShiftCreated はシフトが作成されたことを表す。
	TypeShiftCreated Type = "ShiftCreated"
	// TypeShiftUpdated はシフトが更新されたことを表す。
	TypeShiftUpdated Type = "ShiftUpdated"
	// TypeShiftDeleted はシフトが削除されたことを表す。
	TypeShiftDeleted Type = "ShiftDeleted"
	// TypeGeneratedShiftsReplaced は月単位の生成シフトが置き換えられたことを表す。
	TypeGeneratedShiftsReplaced Type = "GeneratedShiftsReplaced"

	// TypeShiftRequestCreated は休日希望が提出されたことを表す。
	TypeShiftRequestCreated Type = "ShiftRequestCreated"
	// TypeShiftRequestUpdated は休日希望が更新（承認・却下を含む）されたことを表す。
	TypeShiftRequestUpdated Type = "ShiftRequestUpdated"
	// TypeShiftRequestDeleted は休日希望が削除されたことを表す。
	TypeShiftRequestDeleted Type = "ShiftRequestDeleted"

	// TypeDailyReportSubmitted は日報が提出されたことを表す。
	TypeDailyReportSubmitted Type = "DailyReportSubmitted"
	// TypeDailyReportReviewed は日報が確認・承認されたことを表す。
	TypeDailyReportReviewed Type = "DailyReportReviewed"
	// TypeDailyReportUpdated は提出済みの日報が修正されたことを表す。
	TypeDailyReportUpdated Type = "DailyReportUpdated"
	// TypeDailyReportDeleted は日報が削除されたことを表す。
	TypeDailyReportDeleted Type = "DailyReportDeleted"

	// TypeIncidentReported は事故・ヒヤリハットが報告されたことを表す。
	TypeIncidentReported Type = "IncidentReported"
	// TypeIncidentUpdated は報告内容が修正されたことを表す。
	TypeIncidentUpdated Type = "IncidentUpdated"
	// TypeIncidentStatusChanged は対応状況が変わったことを表す。
	TypeIncidentStatusChanged Type = "IncidentStatusChanged"

	// TypeComplaintReceived は苦情・要望を受け付けたことを表す。
	TypeComplaintReceived Type = "ComplaintReceived"
	// TypeComplaintResponded は対応記録が追加されたことを表す。
	TypeComplaintResponded Type = "ComplaintResponded"
	// TypeComplaintResolved は苦情・要望が解決したことを表す。
	TypeComplaintResolved Type = "ComplaintResolved"

	// TypeDrillRecorded は防災訓練が記録されたことを表す。
	TypeDrillRecorded Type = "DrillRecorded"
	// TypeInfectionRecorded は感染症対応が記録されたことを表す。
	TypeInfectionRecorded Type = "InfectionRecorded"

	// TypeEvaluationSaved は自己評価の回答が保存されたことを表す。
	TypeEvaluationSaved Type = "EvaluationSaved"
	// TypeEvaluationCompleted は自己評価が完了したことを表す。
	TypeEvaluationCompleted Type = "EvaluationCompleted"

	// TypeNotificationSent は通知が送信されたことを表す。
	TypeNotificationSent Type = "NotificationSent"

	// TypeAssignmentCreated は職員がエリアに配置されたことを表す。
	TypeAssignmentCreated Type = "AssignmentCreated"
	// TypeAssignmentMoved は配置先のエリアが変わったことを表す。
	TypeAssignmentMoved Type = "AssignmentMoved"
	// TypeAssignmentDeleted は配置が取り消されたことを表す。
	TypeAssignmentDeleted Type = "AssignmentDeleted"

	// TypeSupportPlanSaved は個別支援計画が保存されたことを表す。
	TypeSupportPlanSaved Type = "SupportPlanSaved"
	// TypeSupportPlanStatusChanged は個別支援計画の状態（作成完了・提出・承認）が変わったことを表す。
	TypeSupportPlanStatusChanged Type = "SupportPlanStatusChanged"
	// TypeMonitoringRecordSaved はモニタリング記録が保存されたことを表す。
	TypeMonitoringRecordSaved Type = "MonitoringRecordSaved"
	// TypeMonitoringRecordStatusChanged はモニタリング記録の状態が変わったことを表す。
	TypeMonitoringRecordStatusChanged Type = "MonitoringRecordStatusChanged"
)

// Event はすべての状態変更を記録する不変のイベントレコードを表す。
// 各サービスは行の変更をこの構造体としてEvent Storeに追記する。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// Version はAggregate内でのイベントの順序番号。楽観的排他制御に使用する。
	Version int64 `json:"version"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// Change は行レベルの変更内容。変更前後の行のスナップショットを持つ。
// 作成時はOldがnil、削除時はNewがnilになる。
type Change[T any] struct {
	// Old は変更前の行。
	Old *T `json:"old,omitempty"`
	// New は変更後の行。
	New *T `json:"new,omitempty"`
}

// ShiftRow はシフト行のスナップショット。
type ShiftRow struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	StaffName   string `json:"staff_name"`
	Date        string `json:"date"`
	ShiftType   string `json:"shift_type"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsConfirmed bool   `json:"is_confirmed"`
	TargetMonth string `json:"target_month,omitempty"`
}

// ShiftRequestRow は休日希望行のスナップショット。
type ShiftRequestRow struct {
	ID          string `json:"id"`
	StaffID     string `json:"staff_id"`
	StaffName   string `json:"staff_name"`
	TargetMonth string `json:"target_month"`
	Status      string `json:"status"`
}

// StaffRow はスタッフ行のスナップショット。
type StaffRow struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	Position       string `json:"position"`
	EmploymentType string `json:"employment_type"`
	IsActive       bool   `json:"is_active"`
}

// GeneratedShiftsReplacedData はGeneratedShiftsReplacedイベントのデータ。
type GeneratedShiftsReplacedData struct {
	// TargetMonth は対象月（YYYY-MM）。
	TargetMonth string `json:"target_month"`
	// Count は新しく保存されたシフト数。
	Count int `json:"count"`
	// ReplacedBy は操作したユーザーのID。
	ReplacedBy string `json:"replaced_by"`
}

// DailyReportData は日報イベントのデータ。
type DailyReportData struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	StaffID   string `json:"staff_id"`
	StaffName string `json:"staff_name"`
	Status    string `json:"status"`
}

// IncidentData は事故報告イベントのデータ。
type IncidentData struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Location   string `json:"location"`
	ReportedBy string `json:"reported_by"`
	Status     string `json:"status"`
	OccurredAt string `json:"occurred_at"`
}

// ComplaintData は苦情・要望イベントのデータ。
type ComplaintData struct {
	ID              string `json:"id"`
	ComplainantType string `json:"complainant_type"`
	Status          string `json:"status"`
	ReceivedBy      string `json:"received_by"`
}

// SafetyRecordData は防災訓練・感染症記録イベントのデータ。
type SafetyRecordData struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Date       string `json:"date"`
	RecordedBy string `json:"recorded_by"`
}

// EvaluationData は自己評価イベントのデータ。
type EvaluationData struct {
	Year     int `json:"year"`
	Answered int `json:"answered"`
	Total    int `json:"total"`
}

// NotificationSentData はNotificationSentイベントのデータ。
type NotificationSentData struct {
	// UserID は通知先のユーザーID。
	UserID string `json:"user_id"`
	// Type は通知の種類（new_shift, shift_update など）。
	Type string `json:"type"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// SourceEventID は通知の元になったイベントのID。
	SourceEventID string `json:"source_event_id,omitempty"`
}

// AssignmentRow はエリア配置行のスナップショット。
type AssignmentRow struct {
	ID        string `json:"id"`
	StaffID   string `json:"staff_id"`
	StaffName string `json:"staff_name"`
	AreaID    string `json:"area_id"`
	Date      string `json:"date"`
	ShiftType string `json:"shift_type"`
	IsLeader  bool   `json:"is_leader"`
}

// CarePlanData は個別支援計画・モニタリング記録イベントのデータ。
type CarePlanData struct {
	ID              string `json:"id"`
	ServiceUserID   string `json:"service_user_id"`
	ServiceUserName string `json:"service_user_name"`
	Status          string `json:"status"`
	UpdatedBy       string `json:"updated_by"`
}
