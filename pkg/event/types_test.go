package event

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// TestTypeNaming はイベント種別が "<Aggregate><操作>" の命名に従うことを検証する。
func TestTypeNaming(t *testing.T) {
	t.Parallel()

	tests := []struct {
		aggregate AggregateType
		types     []Type
	}{
		{AggregateTypeStaff, []Type{TypeStaffCreated, TypeStaffUpdated, TypeStaffDeleted}},
		{AggregateTypeShift, []Type{TypeShiftCreated, TypeShiftUpdated, TypeShiftDeleted}},
		{AggregateTypeShiftRequest, []Type{TypeShiftRequestCreated, TypeShiftRequestUpdated, TypeShiftRequestDeleted}},
		{AggregateTypeDailyReport, []Type{TypeDailyReportSubmitted, TypeDailyReportReviewed, TypeDailyReportUpdated, TypeDailyReportDeleted}},
		{AggregateTypeIncident, []Type{TypeIncidentReported, TypeIncidentUpdated, TypeIncidentStatusChanged}},
		{AggregateTypeComplaint, []Type{TypeComplaintReceived, TypeComplaintResponded, TypeComplaintResolved}},
		{AggregateTypeEvaluation, []Type{TypeEvaluationSaved, TypeEvaluationCompleted}},
		{AggregateTypeNotification, []Type{TypeNotificationSent}},
		{AggregateTypeAssignment, []Type{TypeAssignmentCreated, TypeAssignmentMoved, TypeAssignmentDeleted}},
		{AggregateTypeSupportPlan, []Type{TypeSupportPlanSaved, TypeSupportPlanStatusChanged}},
		{AggregateTypeMonitoringRecord, []Type{TypeMonitoringRecordSaved, TypeMonitoringRecordStatusChanged}},
	}

	for _, tt := range tests {
		t.Run(string(tt.aggregate)+"のイベント名が集約名で始まること", func(t *testing.T) {
			t.Parallel()
			for _, typ := range tt.types {
				if !strings.HasPrefix(string(typ), string(tt.aggregate)) {
					t.Errorf("%q は %q で始まっていない", typ, tt.aggregate)
				}
			}
		})
	}
}

// TestEventJSON はEvent構造体のJSONタグを検証する。
func TestEventJSON(t *testing.T) {
	t.Parallel()

	ev := Event{
		ID:            "ev-1",
		AggregateID:   "shift-1",
		AggregateType: AggregateTypeShift,
		EventType:     TypeShiftCreated,
		Data:          json.RawMessage(`{"new":{"id":"shift-1"}}`),
		Version:       1,
		CreatedAt:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("シリアライズに失敗: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("デシリアライズに失敗: %v", err)
	}
	for _, key := range []string{"id", "aggregate_id", "aggregate_type", "event_type", "data", "version", "created_at"} {
		if _, ok := m[key]; !ok {
			t.Errorf("キー %q が含まれていない", key)
		}
	}
	if _, ok := m["data"].(map[string]any); !ok {
		t.Errorf("dataがJSONオブジェクトとして出力されていない: %T", m["data"])
	}
}
