package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// TestCORS はCORSミドルウェアを検証する。
func TestCORS(t *testing.T) {
	t.Parallel()

	newRouter := func(origins ...string) (*gin.Engine, *bool) {
		called := false
		router := gin.New()
		router.Use(CORS(origins))
		router.GET("/api/v1/staff", func(c *gin.Context) {
			called = true
			c.Status(http.StatusOK)
		})
		return router, &called
	}

	t.Run("許可されたオリジンにCORSヘッダーが設定されること", func(t *testing.T) {
		t.Parallel()

		router, called := newRouter("http://localhost:3000")
		req := httptest.NewRequest(http.MethodGet, "/api/v1/staff", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Access-Control-Allow-Origin = %q", got)
		}
		if got := w.Header().Get("Access-Control-Expose-Headers"); got != "Content-Disposition" {
			t.Errorf("Access-Control-Expose-Headers = %q", got)
		}
		if !*called {
			t.Error("ハンドラーが実行されていない")
		}
	})

	t.Run("許可されていないオリジンにはCORSヘッダーを設定しないこと", func(t *testing.T) {
		t.Parallel()

		router, _ := newRouter("http://localhost:3000")
		req := httptest.NewRequest(http.MethodGet, "/api/v1/staff", nil)
		req.Header.Set("Origin", "http://evil.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
		}
	})

	t.Run("OPTIONSリクエストは204で中断されること", func(t *testing.T) {
		t.Parallel()

		router, called := newRouter("http://localhost:3000")
		router.OPTIONS("/api/v1/staff", func(c *gin.Context) {
			*called = true
		})
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/staff", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNoContent)
		}
		if *called {
			t.Error("OPTIONSでハンドラーが実行された")
		}
	})

	t.Run("末尾のスラッシュや空白の違いを無視して許可すること", func(t *testing.T) {
		t.Parallel()

		router, _ := newRouter(SplitOrigins(" https://care.example.com/ ,,http://localhost:3000")...)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/staff", nil)
		req.Header.Set("Origin", "https://care.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://care.example.com" {
			t.Errorf("Access-Control-Allow-Origin = %q", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Authorization, Content-Type, Last-Event-ID" {
			t.Errorf("Access-Control-Allow-Headers = %q", got)
		}
	})

	t.Run("空のオリジン設定では何も許可しないこと", func(t *testing.T) {
		t.Parallel()

		router, _ := newRouter(SplitOrigins("")...)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/staff", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
		}
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("許可されていないオリジンのプリフライトは403で拒否すること", func(t *testing.T) {
		t.Parallel()

		router, _ := newRouter("http://localhost:3000")
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/staff", nil)
		req.Header.Set("Origin", "http://evil.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}
