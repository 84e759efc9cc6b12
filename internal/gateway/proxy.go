package gateway

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nao1215/shiftcare/pkg/config"
	"github.com/nao1215/shiftcare/pkg/metrics"
	"github.com/nao1215/shiftcare/pkg/middleware"
)

// upstream は転送先の内部サービス。prefixesは/api/v1以下のパス。
type upstream struct {
	name     string
	baseURL  string
	prefixes []string
}

// upstreamsFromConfig は設定から転送先の一覧を組み立てる。
func upstreamsFromConfig(cfg *config.Config) []upstream {
	return []upstream{
		{name: "staff", baseURL: cfg.StaffURL, prefixes: []string{"/staff"}},
		{name: "shift", baseURL: cfg.ShiftURL, prefixes: []string{"/shifts", "/shift-requests", "/assignments"}},
		{name: "report", baseURL: cfg.ReportURL, prefixes: []string{"/reports"}},
		{name: "incident", baseURL: cfg.IncidentURL, prefixes: []string{"/incidents"}},
		{name: "complaint", baseURL: cfg.ComplaintURL, prefixes: []string{"/complaints"}},
		{name: "safety", baseURL: cfg.SafetyURL, prefixes: []string{"/drills", "/infections"}},
		{name: "evaluation", baseURL: cfg.EvaluationURL, prefixes: []string{"/evaluations"}},
		{name: "careplan", baseURL: cfg.CarePlanURL, prefixes: []string{"/support-plans", "/monitoring-records"}},
		{name: "notification", baseURL: cfg.NotificationURL, prefixes: []string{"/notifications"}},
		{name: "eventstore", baseURL: cfg.EventStoreURL, prefixes: []string{"/events"}},
	}
}

// 転送するリクエストヘッダーとレスポンスヘッダー。
var (
	forwardRequestHeaders  = []string{"Content-Type", "Accept", "Authorization", "Last-Event-ID"}
	forwardResponseHeaders = []string{"Content-Type", "Content-Disposition", "Cache-Control"}
)

type proxyCounter struct {
	requests *prometheus.CounterVec
}

func newProxyCounter(reg *metrics.Registry) *proxyCounter {
	return &proxyCounter{
		requests: reg.Counter("proxy_requests_total", "内部サービスへの転送件数", "upstream", "status"),
	}
}

func (p *proxyCounter) observe(upstream string, status int) {
	p.requests.WithLabelValues(upstream, strconv.Itoa(status)).Inc()
}

// handleProxy はリクエストのパスをそのまま内部サービスに転送するハンドラを返す。
func (s *Server) handleProxy(up upstream) gin.HandlerFunc {
	return func(c *gin.Context) {
		proxyURL := up.baseURL + c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			proxyURL += "?" + c.Request.URL.RawQuery
		}
		s.doProxy(c, up.name, proxyURL)
	}
}

// doProxy はリクエストを内部サービスにプロキシする共通処理。
// JWTトークンとユーザー情報のヘッダーを転送し、レスポンスは逐次書き出す。
func (s *Server) doProxy(c *gin.Context, name, url string) {
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, url, c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "プロキシリクエストの作成に失敗しました"})
		log.Printf("プロキシリクエスト作成エラー: url=%s, error=%v", url, err)
		return
	}
	req.ContentLength = c.Request.ContentLength
	for _, h := range forwardRequestHeaders {
		if v := c.GetHeader(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	id := middleware.GetIdentity(c)
	req.Header.Set("X-User-ID", id.UserID)
	req.Header.Set("X-User-Role", id.Role)

	resp, err := s.client.Do(req)
	if err != nil {
		s.proxied.observe(name, http.StatusBadGateway)
		c.JSON(http.StatusBadGateway, gin.H{"error": "内部サービスとの通信に失敗しました"})
		log.Printf("プロキシエラー: url=%s, error=%v", url, err)
		return
	}
	defer resp.Body.Close()
	s.proxied.observe(name, resp.StatusCode)

	for _, h := range forwardResponseHeaders {
		if v := resp.Header.Get(h); v != "" {
			c.Header(h, v)
		}
	}
	c.Status(resp.StatusCode)
	c.Writer.WriteHeaderNow()

	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				return
			}
			c.Writer.Flush()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("プロキシ応答の転送エラー: url=%s, error=%v", url, err)
			}
			return
		}
	}
}
