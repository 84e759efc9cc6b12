package shift

import (
	"net/http"
	"testing"

	"github.com/nao1215/shiftcare/pkg/event"
)

// createRequest はスタッフとして休日希望を提出し、IDを返す。
func createRequest(t *testing.T, s *Server, userID string, body map[string]any) string {
	t.Helper()
	w := doRequest(s, http.MethodPost, "/api/v1/shift-requests", userID, "staff", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("休日希望の提出に失敗: status=%d body=%s", w.Code, w.Body.String())
	}
	return parseJSON(t, w)["id"].(string)
}

func TestHandleCreateRequest(t *testing.T) {
	t.Parallel()

	t.Run("希望日は重複を除いて昇順に保存される", func(t *testing.T) {
		t.Parallel()
		s, recorder := setupTestServer(t, newStaticDirectory())

		w := doRequest(s, http.MethodPost, "/api/v1/shift-requests", "3", "staff", map[string]any{
			"target_month":    "2025-06",
			"requested_dates": []string{"2025-06-20", "2025-06-05", "2025-06-20"},
			"reason":          "通院のため",
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d; 期待値 = %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}
		result := parseJSON(t, w)
		dates := result["requested_dates"].([]any)
		if len(dates) != 2 || dates[0] != "2025-06-05" || dates[1] != "2025-06-20" {
			t.Errorf("requested_dates = %v", dates)
		}
		if result["staff_id"] != "3" || result["staff_name"] != "山田花子" {
			t.Errorf("result = %v", result)
		}
		if result["status"] != RequestPending || result["priority"] != "medium" {
			t.Errorf("status = %v, priority = %v", result["status"], result["priority"])
		}
		if recorder.count(event.TypeShiftRequestCreated) != 1 {
			t.Error("ShiftRequestCreatedが記録されていない")
		}
	})

	t.Run("対象月以外の日付と他人の分はエラー", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t, newStaticDirectory())

		w := doRequest(s, http.MethodPost, "/api/v1/shift-requests", "3", "staff", map[string]any{
			"target_month":    "2025-06",
			"requested_dates": []string{"2025-07-01"},
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("対象月以外: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusBadRequest)
		}

		w = doRequest(s, http.MethodPost, "/api/v1/shift-requests", "3", "staff", map[string]any{
			"staff_id":        "2",
			"target_month":    "2025-06",
			"requested_dates": []string{"2025-06-01"},
		})
		if w.Code != http.StatusForbidden {
			t.Errorf("他人の分: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusForbidden)
		}

		w = doRequest(s, http.MethodPost, "/api/v1/shift-requests", "3", "staff", map[string]any{
			"target_month":    "2025-06",
			"requested_dates": []string{},
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("希望日なし: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestHandleListRequests(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t, newStaticDirectory())
	createRequest(t, s, "3", map[string]any{"target_month": "2025-06", "requested_dates": []string{"2025-06-05"}})
	createRequest(t, s, "2", map[string]any{"target_month": "2025-06", "requested_dates": []string{"2025-06-06"}})
	createRequest(t, s, "2", map[string]any{"target_month": "2025-07", "requested_dates": []string{"2025-07-06"}})

	t.Run("一般スタッフには自分の休日希望だけが返る", func(t *testing.T) {
		t.Parallel()
		w := doRequest(s, http.MethodGet, "/api/v1/shift-requests?staff_id=2", "3", "staff", nil)
		result := parseJSONArray(t, w)
		if len(result) != 1 || result[0]["staff_id"] != "3" {
			t.Errorf("結果 = %v", result)
		}
	})

	t.Run("管理者は対象月で絞り込める", func(t *testing.T) {
		t.Parallel()
		w := doRequest(s, http.MethodGet, "/api/v1/shift-requests?month=2025-06", "demo-admin", "admin", nil)
		if result := parseJSONArray(t, w); len(result) != 2 {
			t.Errorf("件数 = %d; 期待値 = 2", len(result))
		}
	})

	t.Run("不正なステータスはBadRequest", func(t *testing.T) {
		t.Parallel()
		w := doRequest(s, http.MethodGet, "/api/v1/shift-requests?status=done", "demo-admin", "admin", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestHandleReviewRequest(t *testing.T) {
	t.Parallel()

	s, recorder := setupTestServer(t, newStaticDirectory())
	id := createRequest(t, s, "3", map[string]any{"target_month": "2025-06", "requested_dates": []string{"2025-06-05"}})

	w := doRequest(s, http.MethodPut, "/api/v1/shift-requests/"+id+"/approve", "3", "staff", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("スタッフ: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusForbidden)
	}

	w = doRequest(s, http.MethodPut, "/api/v1/shift-requests/"+id+"/approve", "demo-admin", "admin", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("承認: ステータスコード = %d; 期待値 = %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if status := parseJSON(t, w)["status"]; status != RequestApproved {
		t.Errorf("status = %v", status)
	}

	w = doRequest(s, http.MethodPut, "/api/v1/shift-requests/"+id+"/reject", "demo-admin", "admin", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("処理済み: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusConflict)
	}
	if n := recorder.count(event.TypeShiftRequestUpdated); n != 1 {
		t.Errorf("ShiftRequestUpdated = %d件; 期待値 = 1", n)
	}

	// 処理済みの休日希望は本人が取り下げられない
	w = doRequest(s, http.MethodDelete, "/api/v1/shift-requests/"+id, "3", "staff", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("取り下げ: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusConflict)
	}

	w = doRequest(s, http.MethodDelete, "/api/v1/shift-requests/"+id, "demo-admin", "admin", nil)
	if w.Code != http.StatusOK {
		t.Errorf("管理者の削除: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusOK)
	}
	if recorder.count(event.TypeShiftRequestDeleted) != 1 {
		t.Error("ShiftRequestDeletedが記録されていない")
	}
}

func TestHandleGetRequest(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t, newStaticDirectory())
	id := createRequest(t, s, "3", map[string]any{"target_month": "2025-06", "requested_dates": []string{"2025-06-05"}})

	tests := []struct {
		name   string
		userID string
		role   string
		path   string
		want   int
	}{
		{name: "本人は参照できる", userID: "3", role: "staff", path: id, want: http.StatusOK},
		{name: "管理者は参照できる", userID: "demo-admin", role: "admin", path: id, want: http.StatusOK},
		{name: "他のスタッフは参照できない", userID: "2", role: "staff", path: id, want: http.StatusForbidden},
		{name: "存在しない休日希望", userID: "demo-admin", role: "admin", path: "missing", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := doRequest(s, http.MethodGet, "/api/v1/shift-requests/"+tt.path, tt.userID, tt.role, nil)
			if w.Code != tt.want {
				t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, tt.want)
			}
		})
	}
}
