package careplan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/event"
	"github.com/nao1215/shiftcare/pkg/metrics"
	"github.com/nao1215/shiftcare/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func headerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			middleware.SetIdentity(c, middleware.Identity{
				UserID: userID,
				Name:   c.GetHeader("X-User-Name"),
				Role:   c.GetHeader("X-User-Role"),
			})
		}
		c.Next()
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []event.AppendRequest
}

func (r *eventRecorder) count(eventType event.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType == string(eventType) {
			n++
		}
	}
	return n
}

func setupTestServer(t *testing.T) (*Server, *eventRecorder) {
	t.Helper()

	db, err := database.OpenMemory(migrations, migrationsDir)
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	recorder := &eventRecorder{}
	eventStore := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req event.AppendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			recorder.mu.Lock()
			recorder.events = append(recorder.events, req)
			recorder.mu.Unlock()
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"mock-event-id"}`)
	}))
	t.Cleanup(eventStore.Close)

	s := newServer("0", db, event.NewEmitter(eventStore.URL), metrics.New("careplan"), headerAuth())
	s.now = func() time.Time { return time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC) }
	s.setupRoutes()
	return s, recorder
}

type user struct{ id, name, role string }

var (
	admin  = user{id: "demo-admin", name: "管理者 田中", role: "admin"}
	hanako = user{id: "3", name: "山田花子", role: "staff"}
	taro   = user{id: "2", name: "佐藤太郎", role: "staff"}
)

func doRequest(s *Server, method, path string, u user, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if u.id != "" {
		req.Header.Set("X-User-ID", u.id)
		req.Header.Set("X-User-Name", u.name)
		req.Header.Set("X-User-Role", u.role)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func parseJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSONのデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

func parseJSONArray(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var result []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSON配列のデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

// createMonitoring はuとしてモニタリング記録を登録し、IDを返す。
func createMonitoring(t *testing.T, s *Server, u user, userID, userName, start, end string) string {
	t.Helper()
	w := doRequest(s, http.MethodPost, "/api/v1/monitoring-records", u, map[string]any{
		"service_user_id":   userID,
		"service_user_name": userName,
		"period":            Period{StartDate: start, EndDate: end},
		"content":           sampleMonitoring(),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("モニタリング記録の登録に失敗: status=%d body=%s", w.Code, w.Body.String())
	}
	return parseJSON(t, w)["id"].(string)
}

func setStatus(s *Server, path string, u user, status string) *httptest.ResponseRecorder {
	return doRequest(s, http.MethodPut, path+"/status", u, map[string]any{"status": status})
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	w := doRequest(s, http.MethodGet, "/health", user{}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusOK)
	}
	if got := parseJSON(t, w)["schema_version"]; got != float64(1) {
		t.Errorf("schema_version = %v; 期待値 = 1", got)
	}
}

func TestMonitoringRecords(t *testing.T) {
	t.Parallel()

	s, recorder := setupTestServer(t)
	first := createMonitoring(t, s, hanako, "u-1", "田中花子", "2025-01-01", "2025-06-30")
	createMonitoring(t, s, hanako, "u-1", "田中花子", "2024-07-01", "2024-12-31")
	createMonitoring(t, s, taro, "u-2", "鈴木次郎", "2025-01-01", "2025-06-30")

	t.Run("登録した本文を返す", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/api/v1/monitoring-records/"+first, hanako, nil)
		got := parseJSON(t, w)
		if got["status"] != StatusDraft || got["creator_name"] != "山田花子" {
			t.Errorf("result = %v", got)
		}
		content := got["content"].(map[string]any)
		vitals := content["health_status"].(map[string]any)["vital_signs"].(map[string]any)
		if vitals["blood_pressure"] != "128/78" || vitals["pulse"] != float64(72) {
			t.Errorf("vital_signs = %v", vitals)
		}
		if recorder.count(event.TypeMonitoringRecordSaved) != 3 {
			t.Errorf("MonitoringRecordSaved = %d; 期待値 = 3", recorder.count(event.TypeMonitoringRecordSaved))
		}
	})

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "対象期間の新しい順", query: "?service_user_id=u-1", want: []string{"2025-01-01", "2024-07-01"}},
		{name: "利用者名で検索", query: "?q=鈴木", want: []string{"2025-01-01"}},
		{name: "状態で絞り込む", query: "?status=submitted", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(s, http.MethodGet, "/api/v1/monitoring-records"+tt.query, hanako, nil)
			var got []string
			for _, r := range parseJSONArray(t, w) {
				got = append(got, r["period"].(map[string]any)["start_date"].(string))
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("開始日 = %v; 期待値 = %v", got, tt.want)
			}
		})
	}
}

func TestCreateMonitoring_Invalid(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	bad := sampleMonitoring()
	bad.Health.Mental.CognitiveFunction = "excellent"

	bodies := []map[string]any{
		{"service_user_id": "u-1", "service_user_name": "田中花子", "period": Period{StartDate: "2025-06-30", EndDate: "2025-01-01"}},
		{"service_user_id": "u-1", "service_user_name": "田中花子", "period": Period{StartDate: "2025/01/01", EndDate: "2025-06-30"}},
		{"service_user_id": "u-1", "period": Period{StartDate: "2025-01-01", EndDate: "2025-06-30"}},
		{"service_user_id": "u-1", "service_user_name": "田中花子", "period": Period{StartDate: "2025-01-01", EndDate: "2025-06-30"}, "content": bad},
	}
	for i, body := range bodies {
		w := doRequest(s, http.MethodPost, "/api/v1/monitoring-records", hanako, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%d: ステータスコード = %d; 期待値 = %d", i, w.Code, http.StatusBadRequest)
		}
	}
}

func TestMonitoringWorkflow(t *testing.T) {
	t.Parallel()

	s, recorder := setupTestServer(t)
	id := createMonitoring(t, s, hanako, "u-1", "田中花子", "2025-01-01", "2025-06-30")
	path := "/api/v1/monitoring-records/" + id

	t.Run("作成者以外のスタッフは編集できない", func(t *testing.T) {
		w := doRequest(s, http.MethodPut, path, taro, map[string]any{
			"period": Period{StartDate: "2025-01-01", EndDate: "2025-06-30"},
		})
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusForbidden)
		}
		if w := setStatus(s, path, taro, StatusCompleted); w.Code != http.StatusForbidden {
			t.Errorf("状態変更: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("下書きは編集できる", func(t *testing.T) {
		m := sampleMonitoring()
		m.Evaluation.Notes = "夏以降は外出を増やす。"
		w := doRequest(s, http.MethodPut, path, hanako, map[string]any{
			"period":  Period{StartDate: "2025-01-01", EndDate: "2025-06-30"},
			"content": m,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d; 期待値 = %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		ev := parseJSON(t, w)["content"].(map[string]any)["service_evaluation"].(map[string]any)
		if ev["notes"] != "夏以降は外出を増やす。" {
			t.Errorf("service_evaluation = %v", ev)
		}
	})

	t.Run("下書きから直接提出はできない", func(t *testing.T) {
		if w := setStatus(s, path, hanako, StatusSubmitted); w.Code != http.StatusConflict {
			t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("提出前の確認はできない", func(t *testing.T) {
		if w := doRequest(s, http.MethodPut, path+"/review", admin, nil); w.Code != http.StatusConflict {
			t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("作成完了にすると編集できない", func(t *testing.T) {
		if w := setStatus(s, path, hanako, StatusCompleted); w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d; 期待値 = %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		w := doRequest(s, http.MethodPut, path, hanako, map[string]any{
			"period": Period{StartDate: "2025-01-01", EndDate: "2025-06-30"},
		})
		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("提出すると提出日時が記録される", func(t *testing.T) {
		w := setStatus(s, path, hanako, StatusSubmitted)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d; 期待値 = %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		if got := parseJSON(t, w)["submitted_at"]; got != "2025-07-01T00:00:00Z" {
			t.Errorf("submitted_at = %v", got)
		}
		if w := setStatus(s, path, hanako, StatusDraft); w.Code != http.StatusConflict {
			t.Errorf("提出後の差し戻し: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("確認は管理者が1回だけ行える", func(t *testing.T) {
		if w := doRequest(s, http.MethodPut, path+"/review", hanako, nil); w.Code != http.StatusForbidden {
			t.Errorf("スタッフ: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusForbidden)
		}
		w := doRequest(s, http.MethodPut, path+"/review", admin, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d; 期待値 = %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		if got := parseJSON(t, w)["reviewed_by"]; got != "管理者 田中" {
			t.Errorf("reviewed_by = %v", got)
		}
		if w := doRequest(s, http.MethodPut, path+"/review", admin, nil); w.Code != http.StatusConflict {
			t.Errorf("2回目: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusConflict)
		}
		// 作成完了と提出、確認
		if n := recorder.count(event.TypeMonitoringRecordStatusChanged); n != 3 {
			t.Errorf("MonitoringRecordStatusChanged = %d; 期待値 = 3", n)
		}
	})

	t.Run("PDFを出力できる", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, path+"/export.pdf", hanako, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d", w.Code)
		}
		if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="monitoring-record-2025-01-01.pdf"` {
			t.Errorf("Content-Disposition = %s", cd)
		}
		if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
			t.Error("PDFではない")
		}
	})
}

func TestSupportPlans(t *testing.T) {
	t.Parallel()

	s, recorder := setupTestServer(t)
	recordID := createMonitoring(t, s, hanako, "u-1", "田中花子", "2025-01-01", "2025-06-30")

	t.Run("下書きのモニタリング記録からは作れない", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/api/v1/support-plans/from-monitoring/"+recordID, hanako, nil)
		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusConflict)
		}
	})

	setStatus(s, "/api/v1/monitoring-records/"+recordID, hanako, StatusCompleted)

	var planID string
	t.Run("モニタリング記録を引き継いで次期計画の下書きを作る", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/api/v1/support-plans/from-monitoring/"+recordID, hanako, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d; 期待値 = %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}
		got := parseJSON(t, w)
		planID = got["id"].(string)
		if got["monitoring_record_id"] != recordID || got["service_user_name"] != "田中花子" || got["status"] != StatusDraft {
			t.Errorf("result = %v", got)
		}
		period := got["period"].(map[string]any)
		if period["start_date"] != "2025-07-01" || period["end_date"] != "2025-12-31" {
			t.Errorf("period = %v", period)
		}
		primary := got["content"].(map[string]any)["support_goals"].(map[string]any)["primary"].([]any)
		if len(primary) != 1 || primary[0].(map[string]any)["goal"] != "地域の活動に参加する" {
			t.Errorf("primary = %v", primary)
		}
		if recorder.count(event.TypeSupportPlanSaved) != 1 {
			t.Error("SupportPlanSavedが記録されていない")
		}
	})

	path := "/api/v1/support-plans/" + planID

	t.Run("目標の無い支援目標は登録できない", func(t *testing.T) {
		w := doRequest(s, http.MethodPut, path, hanako, map[string]any{
			"period":  Period{StartDate: "2025-07-01", EndDate: "2025-12-31"},
			"content": PlanContent{Goals: SupportGoals{Primary: []Goal{{Timeframe: "6か月"}}}},
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("未提出の計画は承認できない", func(t *testing.T) {
		if w := doRequest(s, http.MethodPut, path+"/approve", admin, nil); w.Code != http.StatusConflict {
			t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("提出して管理者が承認する", func(t *testing.T) {
		setStatus(s, path, hanako, StatusCompleted)
		if w := setStatus(s, path, hanako, StatusSubmitted); w.Code != http.StatusOK {
			t.Fatalf("提出: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusOK)
		}
		if w := doRequest(s, http.MethodPut, path+"/approve", hanako, nil); w.Code != http.StatusForbidden {
			t.Errorf("スタッフ: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusForbidden)
		}
		w := doRequest(s, http.MethodPut, path+"/approve", admin, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d; 期待値 = %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		got := parseJSON(t, w)
		if got["approved_by"] != "管理者 田中" || got["approved_at"] != "2025-07-01T00:00:00Z" {
			t.Errorf("result = %v", got)
		}
		if n := recorder.count(event.TypeSupportPlanStatusChanged); n != 3 {
			t.Errorf("SupportPlanStatusChanged = %d; 期待値 = 3", n)
		}
	})

	t.Run("一覧とPDF", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/api/v1/support-plans?status=submitted", admin, nil)
		if rows := parseJSONArray(t, w); len(rows) != 1 || rows[0]["id"] != planID {
			t.Errorf("一覧 = %v", rows)
		}
		w = doRequest(s, http.MethodGet, path+"/export.pdf", admin, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d", w.Code)
		}
		if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="support-plan-2025-07-01.pdf"` {
			t.Errorf("Content-Disposition = %s", cd)
		}
	})

	t.Run("存在しない計画はNotFound", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/api/v1/support-plans/missing", admin, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestCreatePlan(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	w := doRequest(s, http.MethodPost, "/api/v1/support-plans", admin, map[string]any{
		"service_user_id":   "u-3",
		"service_user_name": "高橋一郎",
		"period":            Period{StartDate: "2025-04-01", EndDate: "2025-09-30"},
		"content": PlanContent{
			Risks: RiskManagement{Risks: []Risk{{Risk: "誤嚥", Severity: "high"}}},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("ステータスコード = %d; 期待値 = %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
	if got := parseJSON(t, w); got["monitoring_record_id"] != nil {
		t.Errorf("monitoring_record_id = %v", got["monitoring_record_id"])
	}

	w = doRequest(s, http.MethodPost, "/api/v1/support-plans", admin, map[string]any{
		"service_user_id":   "u-3",
		"service_user_name": "高橋一郎",
		"period":            Period{StartDate: "2025-04-01", EndDate: "2025-09-30"},
		"content":           PlanContent{Risks: RiskManagement{Risks: []Risk{{Risk: "誤嚥", Severity: "critical"}}}},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("不正な重要度: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusBadRequest)
	}
}
