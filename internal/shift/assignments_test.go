package shift

import (
	"net/http"
	"testing"

	"github.com/nao1215/shiftcare/pkg/event"
)

// createAssignment は管理者としてエリア配置を登録し、IDを返す。
func createAssignment(t *testing.T, s *Server, body map[string]any) string {
	t.Helper()
	w := doRequest(s, http.MethodPost, "/api/v1/assignments", "demo-admin", "admin", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("配置の登録に失敗: status=%d body=%s", w.Code, w.Body.String())
	}
	return parseJSON(t, w)["assignment"].(map[string]any)["id"].(string)
}

func TestHandleListAreas(t *testing.T) {
	t.Parallel()
	s, _ := setupTestServer(t, newStaticDirectory())

	w := doRequest(s, http.MethodGet, "/api/v1/assignments/areas", "3", "staff", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusOK)
	}
	areas := parseJSONArray(t, w)
	if len(areas) != 3 {
		t.Fatalf("エリア数 = %d; 期待値 = 3", len(areas))
	}
	if areas[0]["id"] != "area-1" || areas[0]["name"] != "生活支援エリア" {
		t.Errorf("先頭のエリア = %v", areas[0])
	}
	required := areas[0]["required_staff"].(map[string]any)
	if required[TypeDay] != float64(3) || required[TypeNight] != float64(1) {
		t.Errorf("required_staff = %v", required)
	}
}

func TestHandleCreateAssignment(t *testing.T) {
	t.Parallel()

	t.Run("スタッフ名と標準時刻を補って登録し、人数の判定を返す", func(t *testing.T) {
		t.Parallel()
		s, recorder := setupTestServer(t, newStaticDirectory())

		w := doRequest(s, http.MethodPost, "/api/v1/assignments", "demo-admin", "admin", map[string]any{
			"staff_id":   "2",
			"area_id":    "area-2",
			"date":       "2025-06-01",
			"shift_type": "early",
			"is_leader":  true,
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d; 期待値 = %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}
		result := parseJSON(t, w)
		a := result["assignment"].(map[string]any)
		if a["staff_name"] != "佐藤太郎" || a["is_leader"] != true {
			t.Errorf("assignment = %v", a)
		}
		start, end, _ := DefaultTimes(TypeEarly)
		if a["start_time"] != start || a["end_time"] != end {
			t.Errorf("勤務時間 = %v-%v; 期待値 = %s-%s", a["start_time"], a["end_time"], start, end)
		}
		staffing := result["staffing"].(map[string]any)
		if staffing["valid"] != true || staffing["severity"] != SeverityInfo {
			t.Errorf("staffing = %v", staffing)
		}
		if recorder.count(event.TypeAssignmentCreated) != 1 {
			t.Error("AssignmentCreatedが記録されていない")
		}
	})

	t.Run("同じ日の同じシフトへの二重配置は409", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t, newStaticDirectory())

		body := map[string]any{"staff_id": "3", "area_id": "area-1", "date": "2025-06-01", "shift_type": "day"}
		createAssignment(t, s, body)
		body["area_id"] = "area-2"
		w := doRequest(s, http.MethodPost, "/api/v1/assignments", "demo-admin", "admin", body)
		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusConflict)
		}

		// シフト種別が違えば配置できる
		body["shift_type"] = "late"
		createAssignment(t, s, body)
	})

	t.Run("存在しないエリアとスタッフは400", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t, newStaticDirectory())

		w := doRequest(s, http.MethodPost, "/api/v1/assignments", "demo-admin", "admin", map[string]any{
			"staff_id": "3", "area_id": "area-9", "date": "2025-06-01", "shift_type": "day",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("エリア: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusBadRequest)
		}
		w = doRequest(s, http.MethodPost, "/api/v1/assignments", "demo-admin", "admin", map[string]any{
			"staff_id": "99", "area_id": "area-1", "date": "2025-06-01", "shift_type": "day",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("スタッフ: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("休みは配置できない", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t, newStaticDirectory())

		w := doRequest(s, http.MethodPost, "/api/v1/assignments", "demo-admin", "admin", map[string]any{
			"staff_id": "3", "area_id": "area-1", "date": "2025-06-01", "shift_type": "off",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("スタッフは配置を登録できない", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t, newStaticDirectory())

		w := doRequest(s, http.MethodPost, "/api/v1/assignments", "3", "staff", map[string]any{
			"staff_id": "3", "area_id": "area-1", "date": "2025-06-01", "shift_type": "day",
		})
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusForbidden)
		}
	})
}

func TestHandleMoveAssignment(t *testing.T) {
	t.Parallel()
	s, recorder := setupTestServer(t, newStaticDirectory())

	id := createAssignment(t, s, map[string]any{"staff_id": "4", "area_id": "area-1", "date": "2025-06-02", "shift_type": "day"})

	w := doRequest(s, http.MethodPut, "/api/v1/assignments/"+id+"/area", "demo-admin", "admin", map[string]any{"area_id": "area-3"})
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d; 期待値 = %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	result := parseJSON(t, w)
	if a := result["assignment"].(map[string]any); a["area_id"] != "area-3" {
		t.Errorf("area_id = %v; 期待値 = area-3", a["area_id"])
	}
	// 管理・相談エリアの日勤は2名必要
	if staffing := result["staffing"].(map[string]any); staffing["valid"] != false || staffing["severity"] != SeverityError {
		t.Errorf("staffing = %v", staffing)
	}
	if recorder.count(event.TypeAssignmentMoved) != 1 {
		t.Error("AssignmentMovedが記録されていない")
	}

	w = doRequest(s, http.MethodGet, "/api/v1/assignments?date=2025-06-02", "3", "staff", nil)
	rows := parseJSONArray(t, w)
	if len(rows) != 1 || rows[0]["area_id"] != "area-3" {
		t.Errorf("配置一覧 = %v", rows)
	}

	w = doRequest(s, http.MethodPut, "/api/v1/assignments/missing/area", "demo-admin", "admin", map[string]any{"area_id": "area-3"})
	if w.Code != http.StatusNotFound {
		t.Errorf("存在しない配置: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleDeleteAssignment(t *testing.T) {
	t.Parallel()
	s, recorder := setupTestServer(t, newStaticDirectory())

	id := createAssignment(t, s, map[string]any{"staff_id": "2", "area_id": "area-1", "date": "2025-06-02", "shift_type": "night"})

	w := doRequest(s, http.MethodDelete, "/api/v1/assignments/"+id, "demo-admin", "admin", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusOK)
	}
	if recorder.count(event.TypeAssignmentDeleted) != 1 {
		t.Error("AssignmentDeletedが記録されていない")
	}
	w = doRequest(s, http.MethodDelete, "/api/v1/assignments/"+id, "demo-admin", "admin", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("2回目の削除: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleAssignmentSummary(t *testing.T) {
	t.Parallel()
	s, _ := setupTestServer(t, newStaticDirectory())

	createAssignment(t, s, map[string]any{"staff_id": "2", "area_id": "area-1", "date": "2025-06-02", "shift_type": "day", "is_leader": true})
	createAssignment(t, s, map[string]any{"staff_id": "3", "area_id": "area-1", "date": "2025-06-02", "shift_type": "day"})

	w := doRequest(s, http.MethodGet, "/api/v1/assignments/summary?date=2025-06-02", "3", "staff", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d; 期待値 = %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	result := parseJSON(t, w)
	if result["total_staff"] != float64(2) {
		t.Errorf("total_staff = %v; 期待値 = 2", result["total_staff"])
	}
	areas := result["areas"].([]any)
	first := areas[0].(map[string]any)
	day := first["shifts"].(map[string]any)[TypeDay].(map[string]any)
	if day["assigned"] != float64(2) || day["has_leader"] != true {
		t.Errorf("生活支援エリアの日勤 = %v", day)
	}
	// 必要8名中2名
	if first["coverage"] != float64(25) {
		t.Errorf("coverage = %v; 期待値 = 25", first["coverage"])
	}
	// 必要人数の合計は16名
	if result["uncovered_shifts"] != float64(14) {
		t.Errorf("uncovered_shifts = %v; 期待値 = 14", result["uncovered_shifts"])
	}

	w = doRequest(s, http.MethodGet, "/api/v1/assignments/summary", "3", "staff", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("date無し: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleValidateStaffing(t *testing.T) {
	t.Parallel()
	s, _ := setupTestServer(t, newStaticDirectory())

	w := doRequest(s, http.MethodGet, "/api/v1/assignments/validate?area_id=area-2&shift_type=day&count=4", "demo-admin", "admin", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d; 期待値 = %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	result := parseJSON(t, w)
	if result["valid"] != false || result["severity"] != SeverityWarning {
		t.Errorf("result = %v", result)
	}

	w = doRequest(s, http.MethodGet, "/api/v1/assignments/validate?area_id=area-2&shift_type=day&count=0", "demo-admin", "admin", nil)
	if result := parseJSON(t, w); result["severity"] != SeverityError {
		t.Errorf("0名: result = %v", result)
	}

	w = doRequest(s, http.MethodGet, "/api/v1/assignments/validate?area_id=area-2&shift_type=day", "demo-admin", "admin", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("count無し: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusBadRequest)
	}
}
