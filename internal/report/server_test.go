package report

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

// headerAuth はX-User-ID・X-User-Role・X-User-Nameヘッダーから利用者を設定するテスト用ミドルウェア。
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

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.EventType)
	}
	return types
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

	s := newServer("0", db, event.NewEmitter(eventStore.URL), metrics.New("report"), headerAuth())
	s.now = func() time.Time { return time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC) }
	s.setupRoutes()
	return s, recorder
}

// user はリクエストを送る利用者。
type user struct {
	id   string
	name string
	role string
}

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

func reportBody(date string) map[string]any {
	return map[string]any{
		"date":       date,
		"shift_type": "day",
		"activities": "午前は散歩、午後は創作活動",
		"team_notes": "Aさんの服薬時間に注意",
		"user_reports": []map[string]any{
			{
				"user_id":     "u1",
				"user_name":   "利用者A",
				"vital_signs": map[string]any{"temperature": "36.5", "blood_pressure": "120/75"},
				"mood":        "good",
				"appetite":    "fair",
				"sleep":       "good",
				"completed":   true,
			},
			{"user_id": "u2", "user_name": "利用者B", "mood": "concerning", "completed": false},
		},
	}
}

// submit は日報を提出してIDを返す。
func submit(t *testing.T, s *Server, u user, date string) string {
	t.Helper()
	w := doRequest(s, http.MethodPost, "/api/v1/reports", u, reportBody(date))
	if w.Code != http.StatusCreated {
		t.Fatalf("日報の提出に失敗: status=%d body=%s", w.Code, w.Body.String())
	}
	return parseJSON(t, w)["id"].(string)
}

func TestHandleCreate(t *testing.T) {
	t.Parallel()

	t.Run("提出した日報に集計が付く", func(t *testing.T) {
		t.Parallel()
		s, recorder := setupTestServer(t)

		w := doRequest(s, http.MethodPost, "/api/v1/reports", hanako, reportBody("2025-06-02"))
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d; 期待値 = %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}
		result := parseJSON(t, w)
		if result["staff_id"] != "3" || result["staff_name"] != "山田花子" || result["status"] != StatusSubmitted {
			t.Errorf("result = %v", result)
		}
		summary := result["summary"].(map[string]any)
		if summary["total_users"] != float64(2) || summary["completed_reports"] != float64(1) || summary["incomplete_reports"] != float64(1) {
			t.Errorf("summary = %v", summary)
		}
		users := result["user_reports"].([]any)
		vitals := users[0].(map[string]any)["vital_signs"].(map[string]any)
		if vitals["temperature"] != "36.5" {
			t.Errorf("vital_signs = %v", vitals)
		}
		if types := recorder.types(); len(types) != 1 || types[0] != string(event.TypeDailyReportSubmitted) {
			t.Errorf("イベント = %v", types)
		}
	})

	t.Run("同じ日付の日報は二重に提出できない", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)
		submit(t, s, hanako, "2025-06-02")

		w := doRequest(s, http.MethodPost, "/api/v1/reports", hanako, reportBody("2025-06-02"))
		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusConflict)
		}
		// 別のスタッフなら同じ日付でも提出できる
		submit(t, s, taro, "2025-06-02")
	})

	t.Run("不正な入力はBadRequest", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)

		bodies := []map[string]any{
			{"date": "6/2", "shift_type": "day"},
			{"date": "2025-06-02", "shift_type": "off"},
			{"date": "2025-06-02", "shift_type": "day", "user_reports": []map[string]any{{"user_id": "u1", "user_name": "A", "mood": "happy"}}},
			{"date": "2025-06-02", "shift_type": "day", "user_reports": []map[string]any{{"user_id": "u1"}}},
		}
		for _, body := range bodies {
			w := doRequest(s, http.MethodPost, "/api/v1/reports", hanako, body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("%v: ステータスコード = %d; 期待値 = %d", body, w.Code, http.StatusBadRequest)
			}
		}
	})
}

func TestHandleList(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	submit(t, s, hanako, "2025-06-01")
	submit(t, s, hanako, "2025-06-02")
	submit(t, s, taro, "2025-06-02")

	t.Run("一般スタッフには自分の日報だけが新しい順に返る", func(t *testing.T) {
		t.Parallel()
		w := doRequest(s, http.MethodGet, "/api/v1/reports?staff_id=2", hanako, nil)
		result := parseJSONArray(t, w)
		if len(result) != 2 || result[0]["date"] != "2025-06-02" || result[0]["staff_id"] != "3" {
			t.Errorf("結果 = %v", result)
		}
	})

	t.Run("管理者は期間とスタッフで絞り込める", func(t *testing.T) {
		t.Parallel()
		w := doRequest(s, http.MethodGet, "/api/v1/reports?date_from=2025-06-02&date_to=2025-06-02", admin, nil)
		if result := parseJSONArray(t, w); len(result) != 2 {
			t.Errorf("期間の件数 = %d; 期待値 = 2", len(result))
		}
		w = doRequest(s, http.MethodGet, "/api/v1/reports?staff_id=2", admin, nil)
		if result := parseJSONArray(t, w); len(result) != 1 {
			t.Errorf("スタッフの件数 = %d; 期待値 = 1", len(result))
		}
	})

	t.Run("不正な絞り込み条件はBadRequest", func(t *testing.T) {
		t.Parallel()
		w := doRequest(s, http.MethodGet, "/api/v1/reports?status=draft", admin, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestHandleReview(t *testing.T) {
	t.Parallel()

	s, recorder := setupTestServer(t)
	id := submit(t, s, hanako, "2025-06-02")

	w := doRequest(s, http.MethodPut, "/api/v1/reports/"+id+"/review", hanako, map[string]any{"status": "approved"})
	if w.Code != http.StatusForbidden {
		t.Errorf("スタッフ: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusForbidden)
	}

	w = doRequest(s, http.MethodPut, "/api/v1/reports/"+id+"/review", admin, map[string]any{"status": "reviewed", "review_notes": "確認しました"})
	if w.Code != http.StatusOK {
		t.Fatalf("確認: ステータスコード = %d; 期待値 = %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	result := parseJSON(t, w)
	if result["status"] != StatusReviewed || result["reviewed_by"] != "管理者 田中" || result["review_notes"] != "確認しました" {
		t.Errorf("result = %v", result)
	}

	// 確認済みの日報は本人が修正できない
	w = doRequest(s, http.MethodPut, "/api/v1/reports/"+id, hanako, reportBody("2025-06-02"))
	if w.Code != http.StatusConflict {
		t.Errorf("修正: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusConflict)
	}

	w = doRequest(s, http.MethodPut, "/api/v1/reports/"+id+"/review", admin, map[string]any{"status": "approved"})
	if w.Code != http.StatusOK {
		t.Fatalf("承認: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusOK)
	}

	w = doRequest(s, http.MethodPut, "/api/v1/reports/"+id+"/review", admin, map[string]any{"status": "reviewed"})
	if w.Code != http.StatusConflict {
		t.Errorf("承認済み: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusConflict)
	}

	want := []string{"DailyReportSubmitted", "DailyReportReviewed", "DailyReportReviewed"}
	if got := recorder.types(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("イベント = %v; 期待値 = %v", got, want)
	}
}

func TestHandleUpdate(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	id := submit(t, s, hanako, "2025-06-02")

	body := reportBody("2025-06-02")
	body["activities"] = "午後の活動を変更"
	w := doRequest(s, http.MethodPut, "/api/v1/reports/"+id, hanako, body)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d; 期待値 = %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if got := parseJSON(t, w)["activities"]; got != "午後の活動を変更" {
		t.Errorf("activities = %v", got)
	}

	w = doRequest(s, http.MethodPut, "/api/v1/reports/"+id, hanako, reportBody("2025-06-03"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("日付の変更: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusBadRequest)
	}

	w = doRequest(s, http.MethodPut, "/api/v1/reports/"+id, taro, body)
	if w.Code != http.StatusForbidden {
		t.Errorf("他人の日報: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusForbidden)
	}
}

func TestHandleStats(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	id := submit(t, s, hanako, "2025-06-01")
	submit(t, s, taro, "2025-06-01")
	doRequest(s, http.MethodPut, "/api/v1/reports/"+id+"/review", admin, map[string]any{"status": "approved"})

	w := doRequest(s, http.MethodGet, "/api/v1/reports/stats", admin, nil)
	stats := parseJSON(t, w)
	if stats["total_reports"] != float64(2) || stats["approved_reports"] != float64(1) || stats["submitted_reports"] != float64(1) {
		t.Errorf("stats = %v", stats)
	}
	if stats["completed_user_reports"] != float64(2) || stats["average_completion"] != float64(50) {
		t.Errorf("stats = %v", stats)
	}
}

func TestHandleDelete(t *testing.T) {
	t.Parallel()

	s, recorder := setupTestServer(t)
	id := submit(t, s, hanako, "2025-06-02")

	w := doRequest(s, http.MethodDelete, "/api/v1/reports/"+id, hanako, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("スタッフ: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusForbidden)
	}
	w = doRequest(s, http.MethodDelete, "/api/v1/reports/"+id, admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("管理者: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusOK)
	}
	w = doRequest(s, http.MethodGet, "/api/v1/reports/"+id, admin, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("削除後: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusNotFound)
	}
	if types := recorder.types(); types[len(types)-1] != string(event.TypeDailyReportDeleted) {
		t.Errorf("イベント = %v", types)
	}
}
