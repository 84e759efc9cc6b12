package notification

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	notificationdb "github.com/nao1215/shiftcare/internal/notification/db"
	"github.com/nao1215/shiftcare/pkg/database"
	"github.com/nao1215/shiftcare/pkg/event"
	"github.com/nao1215/shiftcare/pkg/metrics"
	"github.com/nao1215/shiftcare/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// staticDirectory は固定の管理者一覧を返すDirectory。
type staticDirectory struct {
	ids []string
	err error
}

func (d staticDirectory) ActiveAdminIDs(context.Context) ([]string, error) {
	return d.ids, d.err
}

// headerAuth はJWTの代わりにX-User-IDとX-User-Roleヘッダーから利用者を設定するテスト用ミドルウェア。
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

// eventRecorder はEvent Storeのモックが受け取ったイベントを記録する。
type eventRecorder struct {
	mu     sync.Mutex
	events []event.AppendRequest
}

func (r *eventRecorder) all() []event.AppendRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.AppendRequest(nil), r.events...)
}

// setupTestServer はテスト用の通知サーバーをインメモリSQLiteで構築する。
// Event Storeのモックサーバーも生成し、テスト終了時にクリーンアップする。
func setupTestServer(t *testing.T, admins ...string) (*Server, *eventRecorder) {
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
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"mock-event-id"}`)
	}))
	t.Cleanup(eventStore.Close)

	s := newServer("0", db, event.NewEmitter(eventStore.URL), staticDirectory{ids: admins},
		metrics.New("notification"), headerAuth())
	s.setupRoutes()
	return s, recorder
}

// createTestNotification はテスト用に通知をDBに直接挿入するヘルパー関数。
// createdAtの分だけ基準時刻からずらして作成日時を決める。
func createTestNotification(t *testing.T, s *Server, id, userID, title string, offset time.Duration) {
	t.Helper()

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	err := s.queries.CreateNotification(t.Context(), notificationdb.Notification{
		ID:        id,
		UserID:    userID,
		Type:      TypeInfo,
		Title:     title,
		Message:   title + "のメッセージ",
		CreatedAt: database.Timestamp(base.Add(offset)),
	})
	if err != nil {
		t.Fatalf("テスト用通知の作成に失敗: %v", err)
	}
}

// doRequest はテスト用のHTTPリクエストを実行し、レスポンスを返すヘルパー関数。
func doRequest(s *Server, method, path, userID, role string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
		req.Header.Set("X-User-Role", role)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// parseJSON はレスポンスボディをmapにデコードするヘルパー関数。
func parseJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSONのデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

// parseJSONArray はレスポンスボディをスライスにデコードするヘルパー関数。
func parseJSONArray(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var result []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSON配列のデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

// TestHealthCheck はヘルスチェックエンドポイントの正常動作を検証する。
func TestHealthCheck(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	w := doRequest(s, http.MethodGet, "/health", "", "", nil)

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}
	result := parseJSON(t, w)
	if result["service"] != "notification" {
		t.Errorf("service: got %v, want notification", result["service"])
	}
	if result["schema_version"] != float64(2) {
		t.Errorf("schema_version: got %v, want 2", result["schema_version"])
	}
}

// TestHandleListNotifications は通知一覧取得ハンドラのテスト。
func TestHandleListNotifications(t *testing.T) {
	t.Parallel()

	t.Run("通知が存在しない場合は空配列を返す", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)

		w := doRequest(s, http.MethodGet, "/api/v1/notifications", "3", "staff", nil)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if result := parseJSONArray(t, w); len(result) != 0 {
			t.Errorf("配列の長さ: got %d, want 0", len(result))
		}
	})

	t.Run("自分の通知だけが新しい順に返る", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)

		createTestNotification(t, s, "n-1", "3", "古い通知", 0)
		createTestNotification(t, s, "n-2", "3", "新しい通知", time.Minute)
		createTestNotification(t, s, "n-3", "demo-admin", "他ユーザー", 2*time.Minute)

		w := doRequest(s, http.MethodGet, "/api/v1/notifications", "3", "staff", nil)
		result := parseJSONArray(t, w)
		if len(result) != 2 {
			t.Fatalf("配列の長さ: got %d, want 2", len(result))
		}
		if result[0]["id"] != "n-2" || result[1]["id"] != "n-1" {
			t.Errorf("並び順: got %v, %v; want n-2, n-1", result[0]["id"], result[1]["id"])
		}
		if result[0]["type"] != TypeInfo {
			t.Errorf("type: got %v, want %s", result[0]["type"], TypeInfo)
		}
		if result[0]["is_read"] != false {
			t.Errorf("is_read: got %v, want false", result[0]["is_read"])
		}
		if result[0]["created_at"] != "2025-06-01T09:01:00Z" {
			t.Errorf("created_at: got %v", result[0]["created_at"])
		}
	})

	t.Run("limitを省略すると10件まで返る", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)

		for i := 0; i < 12; i++ {
			createTestNotification(t, s, fmt.Sprintf("n-%02d", i), "3", "通知", time.Duration(i)*time.Minute)
		}

		w := doRequest(s, http.MethodGet, "/api/v1/notifications", "3", "staff", nil)
		if result := parseJSONArray(t, w); len(result) != defaultListLimit {
			t.Errorf("配列の長さ: got %d, want %d", len(result), defaultListLimit)
		}

		w = doRequest(s, http.MethodGet, "/api/v1/notifications?limit=3", "3", "staff", nil)
		result := parseJSONArray(t, w)
		if len(result) != 3 {
			t.Fatalf("配列の長さ: got %d, want 3", len(result))
		}
		if result[0]["id"] != "n-11" {
			t.Errorf("先頭: got %v, want n-11", result[0]["id"])
		}
	})

	t.Run("limitが不正な場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)

		w := doRequest(s, http.MethodGet, "/api/v1/notifications?limit=0", "3", "staff", nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("ユーザーIDが未設定の場合はUnauthorized", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)

		w := doRequest(s, http.MethodGet, "/api/v1/notifications", "", "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestHandleUnread は未読通知の一覧と件数のテスト。
func TestHandleUnread(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t)
	createTestNotification(t, s, "n-1", "3", "未読1", 0)
	createTestNotification(t, s, "n-2", "3", "未読2", time.Minute)
	createTestNotification(t, s, "n-3", "3", "既読", 2*time.Minute)
	if err := s.queries.MarkAsRead(t.Context(), "n-3"); err != nil {
		t.Fatalf("既読化に失敗: %v", err)
	}

	w := doRequest(s, http.MethodGet, "/api/v1/notifications/unread", "3", "staff", nil)
	if result := parseJSONArray(t, w); len(result) != 2 {
		t.Errorf("未読件数: got %d, want 2", len(result))
	}

	w = doRequest(s, http.MethodGet, "/api/v1/notifications/unread/count", "3", "staff", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}
	if count := parseJSON(t, w)["count"]; count != float64(2) {
		t.Errorf("count: got %v, want 2", count)
	}
}

// TestHandleMarkRead は通知の既読処理のテスト。
func TestHandleMarkRead(t *testing.T) {
	t.Parallel()

	t.Run("自分の通知を既読にできる", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)
		createTestNotification(t, s, "n-1", "3", "通知", 0)

		w := doRequest(s, http.MethodPut, "/api/v1/notifications/n-1/read", "3", "staff", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		n, err := s.queries.GetNotificationByID(t.Context(), "n-1")
		if err != nil {
			t.Fatalf("通知の取得に失敗: %v", err)
		}
		if !n.IsRead {
			t.Error("既読になっていない")
		}
	})

	t.Run("他人の通知はForbidden", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)
		createTestNotification(t, s, "n-1", "demo-admin", "通知", 0)

		w := doRequest(s, http.MethodPut, "/api/v1/notifications/n-1/read", "3", "staff", nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("存在しない通知はNotFound", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)

		w := doRequest(s, http.MethodPut, "/api/v1/notifications/missing/read", "3", "staff", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("全通知を既読にすると更新件数が返る", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)
		createTestNotification(t, s, "n-1", "3", "通知1", 0)
		createTestNotification(t, s, "n-2", "3", "通知2", time.Minute)
		createTestNotification(t, s, "n-3", "demo-admin", "他ユーザー", 0)

		w := doRequest(s, http.MethodPut, "/api/v1/notifications/read-all", "3", "staff", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if updated := parseJSON(t, w)["updated"]; updated != float64(2) {
			t.Errorf("updated: got %v, want 2", updated)
		}

		count, err := s.queries.CountUnread(t.Context(), "demo-admin")
		if err != nil {
			t.Fatalf("未読件数の取得に失敗: %v", err)
		}
		if count != 1 {
			t.Errorf("他ユーザーの未読件数: got %d, want 1", count)
		}
	})
}

// TestHandleDelete は通知の削除のテスト。
func TestHandleDelete(t *testing.T) {
	t.Parallel()

	t.Run("自分の通知を1件削除できる", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)
		createTestNotification(t, s, "n-1", "3", "通知", 0)

		w := doRequest(s, http.MethodDelete, "/api/v1/notifications/n-1", "3", "staff", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		w = doRequest(s, http.MethodGet, "/api/v1/notifications", "3", "staff", nil)
		if result := parseJSONArray(t, w); len(result) != 0 {
			t.Errorf("配列の長さ: got %d, want 0", len(result))
		}
	})

	t.Run("他人の通知は削除できない", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)
		createTestNotification(t, s, "n-1", "demo-admin", "通知", 0)

		w := doRequest(s, http.MethodDelete, "/api/v1/notifications/n-1", "3", "staff", nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("全削除は自分の通知だけを消す", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)
		createTestNotification(t, s, "n-1", "3", "通知1", 0)
		createTestNotification(t, s, "n-2", "3", "通知2", time.Minute)
		createTestNotification(t, s, "n-3", "demo-admin", "他ユーザー", 0)

		w := doRequest(s, http.MethodDelete, "/api/v1/notifications", "3", "staff", nil)
		if deleted := parseJSON(t, w)["deleted"]; deleted != float64(2) {
			t.Errorf("deleted: got %v, want 2", deleted)
		}

		w = doRequest(s, http.MethodGet, "/api/v1/notifications", "demo-admin", "admin", nil)
		if result := parseJSONArray(t, w); len(result) != 1 {
			t.Errorf("他ユーザーの通知数: got %d, want 1", len(result))
		}
	})
}

// TestHandleSend は内部APIによる通知送信のテスト。
func TestHandleSend(t *testing.T) {
	t.Parallel()

	t.Run("管理者は通知を送信でき、NotificationSentイベントが記録される", func(t *testing.T) {
		t.Parallel()
		s, recorder := setupTestServer(t)

		w := doRequest(s, http.MethodPost, "/api/v1/internal/send", "system:shift", "admin", map[string]any{
			"user_id": "3",
			"title":   "シフト確定のお知らせ",
			"message": "7月のシフトが確定しました",
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}

		w = doRequest(s, http.MethodGet, "/api/v1/notifications", "3", "staff", nil)
		result := parseJSONArray(t, w)
		if len(result) != 1 {
			t.Fatalf("配列の長さ: got %d, want 1", len(result))
		}
		if result[0]["type"] != TypeInfo {
			t.Errorf("type: got %v, want %s", result[0]["type"], TypeInfo)
		}

		events := recorder.all()
		if len(events) != 1 {
			t.Fatalf("記録されたイベント数: got %d, want 1", len(events))
		}
		if events[0].EventType != string(event.TypeNotificationSent) {
			t.Errorf("event_type: got %s, want %s", events[0].EventType, event.TypeNotificationSent)
		}
	})

	t.Run("一般スタッフは送信できない", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)

		w := doRequest(s, http.MethodPost, "/api/v1/internal/send", "3", "staff", map[string]any{
			"user_id": "3", "title": "t", "message": "m",
		})
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("必須項目が無い場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)

		w := doRequest(s, http.MethodPost, "/api/v1/internal/send", "demo-admin", "admin", map[string]any{
			"user_id": "3",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
		if _, ok := parseJSON(t, w)["details"]; !ok {
			t.Error("detailsが含まれていない")
		}
	})

	t.Run("不明な種類はBadRequest", func(t *testing.T) {
		t.Parallel()
		s, _ := setupTestServer(t)

		w := doRequest(s, http.MethodPost, "/api/v1/internal/send", "demo-admin", "admin", map[string]any{
			"user_id": "3", "type": "urgent", "title": "t", "message": "m",
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// readSSEEvent はSSEのストリームから次のイベントを読み、イベント名とデータを返す。
func readSSEEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()

	var name, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("SSEの読み取りに失敗: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if name != "" || data != "" {
				return name, data
			}
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

// TestHandleStream は変更イベントから作られた通知がSSEで届くことを検証する。
func TestHandleStream(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t, "demo-admin")
	ts := httptest.NewServer(s.router)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/notifications/stream", nil)
	if err != nil {
		t.Fatalf("リクエストの作成に失敗: %v", err)
	}
	req.Header.Set("X-User-ID", "3")
	req.Header.Set("X-User-Role", "staff")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("SSE接続に失敗: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type: got %s, want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if name, _ := readSSEEvent(t, reader); name != "connected" {
		t.Fatalf("最初のイベント: got %s, want connected", name)
	}

	shift := event.ShiftRow{ID: "s-1", UserID: "3", Date: "2025-07-01", ShiftType: "early", StartTime: "07:00"}
	e := newTestEvent(t, "ev-1", event.TypeShiftCreated, event.Change[event.ShiftRow]{New: &shift})
	if err := s.fanout.Handle(t.Context(), e); err != nil {
		t.Fatalf("通知の展開に失敗: %v", err)
	}

	name, data := readSSEEvent(t, reader)
	if name != "notification" {
		t.Fatalf("イベント名: got %s, want notification", name)
	}
	var n notificationResponse
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		t.Fatalf("通知のデコードに失敗: %v (data=%s)", err, data)
	}
	if n.UserID != "3" || n.Type != TypeNewShift {
		t.Errorf("通知: got %+v", n)
	}
	if n.Message != "2025/7/1 earlyのシフトが追加されました" {
		t.Errorf("message: got %s", n.Message)
	}
}
