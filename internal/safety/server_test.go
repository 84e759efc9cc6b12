package safety

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

	s := newServer("0", db, event.NewEmitter(eventStore.URL), metrics.New("safety"), headerAuth())
	s.now = func() time.Time { return time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC) }
	s.setupRoutes()
	return s, recorder
}

type user struct{ id, name, role string }

var (
	admin  = user{id: "demo-admin", name: "管理者 田中", role: "admin"}
	hanako = user{id: "3", name: "山田花子", role: "staff"}
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

func createDrill(t *testing.T, s *Server, date, typ, details string) string {
	t.Helper()
	w := doRequest(s, http.MethodPost, "/api/v1/drills", admin, map[string]any{
		"conducted_on":       date,
		"drill_type":         typ,
		"participants_count": 20,
		"details":            details,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("訓練記録の登録に失敗: status=%d body=%s", w.Code, w.Body.String())
	}
	return parseJSON(t, w)["id"].(string)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	w := doRequest(s, http.MethodGet, "/health", user{}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusOK)
	}
}

func TestStaffForbidden(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	for _, path := range []string{"/api/v1/drills", "/api/v1/infections"} {
		w := doRequest(s, http.MethodGet, path, hanako, nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("%s: ステータスコード = %d; 期待値 = %d", path, w.Code, http.StatusForbidden)
		}
	}
}

func TestDrills(t *testing.T) {
	t.Parallel()

	s, recorder := setupTestServer(t)
	fire := createDrill(t, s, "2025-04-10", DrillFire, "夜間想定で火災避難を行った")
	createDrill(t, s, "2025-05-15", DrillEarthquake, "中庭へ誘導した")
	createDrill(t, s, "2025-06-01", DrillFire, "消火器の使い方を確認した")

	t.Run("登録イベント", func(t *testing.T) {
		events := recorder.all()
		if len(events) != 3 {
			t.Fatalf("イベント数 = %d", len(events))
		}
		var data event.SafetyRecordData
		if err := json.Unmarshal(events[0].Data, &data); err != nil {
			t.Fatalf("イベントデータのデコードに失敗: %v", err)
		}
		if events[0].EventType != string(event.TypeDrillRecorded) || data.Kind != DrillFire || data.Date != "2025-04-10" || data.RecordedBy != "demo-admin" {
			t.Errorf("イベント = %+v, data = %+v", events[0], data)
		}
	})

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "実施日の新しい順", query: "", want: []string{"2025-06-01", "2025-05-15", "2025-04-10"}},
		{name: "古い順", query: "?sort=oldest", want: []string{"2025-04-10", "2025-05-15", "2025-06-01"}},
		{name: "種別で絞り込む", query: "?type=fire", want: []string{"2025-06-01", "2025-04-10"}},
		{name: "期間で絞り込む", query: "?from=2025-05-01&to=2025-05-31", want: []string{"2025-05-15"}},
		{name: "内容で検索", query: "?q=消火器", want: []string{"2025-06-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(s, http.MethodGet, "/api/v1/drills"+tt.query, admin, nil)
			rows := parseJSONArray(t, w)
			var got []string
			for _, r := range rows {
				got = append(got, r["conducted_on"].(string))
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("実施日 = %v; 期待値 = %v", got, tt.want)
			}
		})
	}

	t.Run("不正な種別はBadRequest", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/api/v1/drills?type=influenza", admin, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("1件取得とPDF", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/api/v1/drills/"+fire, admin, nil)
		if got := parseJSON(t, w); got["conductor_name"] != "管理者 田中" || got["participants_count"] != float64(20) {
			t.Errorf("result = %v", got)
		}

		w = doRequest(s, http.MethodGet, "/api/v1/drills/"+fire+"/export.pdf", admin, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d", w.Code)
		}
		if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="drill-record-2025-04-10.pdf"` {
			t.Errorf("Content-Disposition = %s", cd)
		}
		if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
			t.Error("PDFではない")
		}
	})

	t.Run("存在しない記録はNotFound", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/api/v1/drills/missing/export.pdf", admin, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d; 期待値 = %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestCreateDrill_Invalid(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	bodies := []map[string]any{
		{"conducted_on": "2025-05-15", "drill_type": "flood", "details": "x"},
		{"conducted_on": "2025/05/15", "drill_type": "fire", "details": "x"},
		{"conducted_on": "2025-05-15", "drill_type": "fire", "participants_count": -1, "details": "x"},
		{"conducted_on": "2025-05-15", "drill_type": "fire"},
	}
	for _, body := range bodies {
		w := doRequest(s, http.MethodPost, "/api/v1/drills", admin, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%v: ステータスコード = %d; 期待値 = %d", body, w.Code, http.StatusBadRequest)
		}
	}
}

func TestInfections(t *testing.T) {
	t.Parallel()

	s, recorder := setupTestServer(t)
	w := doRequest(s, http.MethodPost, "/api/v1/infections", admin, map[string]any{
		"occurred_on":       "2025-01-20",
		"infection_type":    "influenza",
		"affected_count":    4,
		"response_measures": "発症者を個室に隔離し、面会を制限した。",
		"outcome":           "10日で収束した。",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("ステータスコード = %d; 期待値 = %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
	id := parseJSON(t, w)["id"].(string)

	if events := recorder.all(); len(events) != 1 || events[0].EventType != string(event.TypeInfectionRecorded) || events[0].AggregateType != string(event.AggregateTypeInfection) {
		t.Errorf("イベント = %+v", events)
	}

	w = doRequest(s, http.MethodGet, "/api/v1/infections?type=influenza", admin, nil)
	if rows := parseJSONArray(t, w); len(rows) != 1 || rows[0]["affected_count"] != float64(4) {
		t.Errorf("一覧 = %v", rows)
	}
	w = doRequest(s, http.MethodGet, "/api/v1/infections?type=covid19", admin, nil)
	if rows := parseJSONArray(t, w); len(rows) != 0 {
		t.Errorf("一覧 = %v", rows)
	}

	w = doRequest(s, http.MethodGet, "/api/v1/infections/"+id+"/export.pdf", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("PDF: ステータスコード = %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="infection-record-2025-01-20.pdf"` {
		t.Errorf("Content-Disposition = %s", cd)
	}

	w = doRequest(s, http.MethodPost, "/api/v1/infections", admin, map[string]any{
		"occurred_on":       "2025-01-20",
		"infection_type":    "measles",
		"response_measures": "x",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("不正な種別: ステータスコード = %d; 期待値 = %d", w.Code, http.StatusBadRequest)
	}
}
