package evaluation

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

func (r *eventRecorder) all() []event.AppendRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.AppendRequest(nil), r.events...)
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

	s := newServer("0", db, testCatalogue(t), event.NewEmitter(eventStore.URL), metrics.New("evaluation"), headerAuth())
	s.now = func() time.Time { return time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC) }
	s.setupRoutes()
	return s, recorder
}

const (
	adminID = "demo-admin"
	staffID = "3"
)

func doRequest(s *Server, method, path, userID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
		role := "staff"
		if userID == adminID {
			role = "admin"
		}
		req.Header.Set("X-User-Role", role)
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

func answers(pairs ...any) map[string]any {
	var rs []map[string]any
	for i := 0; i+1 < len(pairs); i += 2 {
		rs = append(rs, map[string]any{"question_id": pairs[i], "score": pairs[i+1]})
	}
	return map[string]any{"responses": rs}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	w := doRequest(s, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusOK)
	}
}

func TestStaffForbidden(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	w := doRequest(s, http.MethodGet, "/api/v1/evaluations/2025", staffID, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusForbidden)
	}
}

func TestQuestions(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	w := doRequest(s, http.MethodGet, "/api/v1/evaluations/questions", adminID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d", w.Code)
	}
	result := parseJSON(t, w)
	if qs := result["questions"].([]any); len(qs) != 3 {
		t.Errorf("questions = %v", qs)
	}
	if cats := result["categories"].([]any); len(cats) != 2 {
		t.Errorf("categories = %v", cats)
	}
	if desc := result["score_descriptions"].(map[string]any); desc["3"] != "普通" {
		t.Errorf("score_descriptions = %v", desc)
	}
}

func TestGet_Unsaved(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	w := doRequest(s, http.MethodGet, "/api/v1/evaluations/2025", adminID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d", w.Code)
	}
	result := parseJSON(t, w)
	if result["saved"] != false || len(result["responses"].([]any)) != 3 {
		t.Errorf("result = %v", result)
	}

	for _, year := range []string{"abc", "1999", "2101"} {
		w := doRequest(s, http.MethodGet, "/api/v1/evaluations/"+year, adminID, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: ステータスコード = %d; 期待値 = %d", year, w.Code, http.StatusBadRequest)
		}
	}
}

func TestSave(t *testing.T) {
	t.Parallel()

	t.Run("部分的な保存と上書き", func(t *testing.T) {
		t.Parallel()
		s, recorder := setupTestServer(t)

		w := doRequest(s, http.MethodPut, "/api/v1/evaluations/2025", adminID, answers("q1", 4, "q2", 2))
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d; 期待値 = %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}
		w = doRequest(s, http.MethodPut, "/api/v1/evaluations/2025", adminID, map[string]any{
			"responses": []map[string]any{{"question_id": "q2", "score": 5, "comment": "改善した"}},
		})
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d", w.Code)
		}
		result := parseJSON(t, w)
		summary := result["summary"].(map[string]any)
		if summary["answered"] != float64(2) || summary["average"] != 4.5 || summary["rate"] != float64(67) {
			t.Errorf("summary = %v", summary)
		}
		second := result["responses"].([]any)[1].(map[string]any)
		if second["score"] != float64(5) || second["comment"] != "改善した" {
			t.Errorf("q2 = %v", second)
		}

		events := recorder.all()
		if len(events) != 2 || events[1].EventType != string(event.TypeEvaluationSaved) || events[1].AggregateID != "2025" {
			t.Fatalf("イベント = %+v", events)
		}
		var data event.EvaluationData
		if err := json.Unmarshal(events[1].Data, &data); err != nil {
			t.Fatalf("イベントデータのデコードに失敗: %v", err)
		}
		if data != (event.EvaluationData{Year: 2025, Answered: 2, Total: 3}) {
			t.Errorf("data = %+v", data)
		}
	})

	t.Run("存在しない設問はBadRequestで何も保存しない", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)

		w := doRequest(s, http.MethodPut, "/api/v1/evaluations/2025", adminID, answers("q1", 4, "q9", 3))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusBadRequest)
		}
		w = doRequest(s, http.MethodGet, "/api/v1/evaluations/2025", adminID, nil)
		if parseJSON(t, w)["saved"] != false {
			t.Error("一部が保存された")
		}
	})

	t.Run("範囲外のスコアはBadRequest", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)

		for _, score := range []int{-1, 6} {
			w := doRequest(s, http.MethodPut, "/api/v1/evaluations/2025", adminID, answers("q1", score))
			if w.Code != http.StatusBadRequest {
				t.Errorf("score=%d: ステータスコード = %d; 期待値 = %d", score, w.Code, http.StatusBadRequest)
			}
		}
	})
}

func TestComplete(t *testing.T) {
	t.Parallel()

	s, recorder := setupTestServer(t)
	base := "/api/v1/evaluations/2025"

	doRequest(s, http.MethodPut, base, adminID, answers("q1", 4, "q2", 5))
	w := doRequest(s, http.MethodPost, base+"/complete", adminID, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("未回答あり: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusConflict)
	}
	if missing := parseJSON(t, w)["unanswered"].([]any); len(missing) != 1 || missing[0] != float64(3) {
		t.Errorf("unanswered = %v", missing)
	}

	doRequest(s, http.MethodPut, base, adminID, answers("q3", 3))
	w = doRequest(s, http.MethodPost, base+"/complete", adminID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("完了: ステータスコード = %d, body=%s", w.Code, w.Body.String())
	}
	if result := parseJSON(t, w); result["is_completed"] != true || result["completed_at"] == nil {
		t.Errorf("result = %v", result)
	}

	w = doRequest(s, http.MethodPost, base+"/complete", adminID, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("再度の完了: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusConflict)
	}
	w = doRequest(s, http.MethodPut, base, adminID, answers("q1", 1))
	if w.Code != http.StatusConflict {
		t.Errorf("完了後の保存: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusConflict)
	}

	events := recorder.all()
	if last := events[len(events)-1]; last.EventType != string(event.TypeEvaluationCompleted) {
		t.Errorf("最後のイベント = %s", last.EventType)
	}

	t.Run("保存前の年度は完了できない", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/api/v1/evaluations/2024/complete", adminID, nil)
		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusConflict)
		}
	})
}

func TestHistoryAndSummary(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	doRequest(s, http.MethodPut, "/api/v1/evaluations/2024", adminID, answers("q1", 3, "q2", 3, "q3", 3))
	doRequest(s, http.MethodPut, "/api/v1/evaluations/2025", adminID, answers("q1", 5))

	w := doRequest(s, http.MethodGet, "/api/v1/evaluations", adminID, nil)
	var history []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &history); err != nil {
		t.Fatalf("JSONのデコードに失敗: %v", err)
	}
	if len(history) != 2 || history[0]["year"] != float64(2025) {
		t.Fatalf("history = %v", history)
	}
	if _, ok := history[0]["responses"]; ok {
		t.Error("履歴に回答が含まれている")
	}
	if sum := history[1]["summary"].(map[string]any); sum["rate"] != float64(100) {
		t.Errorf("2024年度のsummary = %v", sum)
	}

	w = doRequest(s, http.MethodGet, "/api/v1/evaluations/2025/summary", adminID, nil)
	sum := parseJSON(t, w)
	if sum["total"] != float64(3) || sum["answered"] != float64(1) || sum["rate"] != float64(33) || sum["average"] != float64(5) {
		t.Errorf("summary = %v", sum)
	}

	w = doRequest(s, http.MethodGet, "/api/v1/evaluations/2025/export.pdf", adminID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("PDF: ステータスコード = %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="self-evaluation-2025.pdf"` {
		t.Errorf("Content-Disposition = %s", cd)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Error("PDFではない")
	}
}
