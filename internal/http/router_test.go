package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-translation-backend/internal/config"
	"github.com/tbourn/go-translation-backend/internal/domain"
	"github.com/tbourn/go-translation-backend/internal/http/middleware"
	"github.com/tbourn/go-translation-backend/internal/provider"
	"github.com/tbourn/go-translation-backend/internal/repo"
	"github.com/tbourn/go-translation-backend/internal/services"
)

type echoProvider struct{ calls atomic.Int32 }

func (p *echoProvider) Name() string { return "echo" }

func (p *echoProvider) Translate(_ context.Context, text, target string, _ provider.Options) (*provider.Result, error) {
	p.calls.Add(1)
	return &provider.Result{TranslatedText: target + ":" + text, DetectedLang: "fr", Provider: "echo"}, nil
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   10,
		CORS:        config.CORSConfig{},
		Security:    config.SecurityConfig{},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newEngine(t *testing.T, cfg config.Config, health func(context.Context) error) (*gin.Engine, *echoProvider) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := repo.NewMemoryWindowStore()
	p := &echoProvider{}
	svc := services.NewTranslationService(store, nil, nil, p)
	r := gin.New()
	RegisterRoutes(r, Deps{Translations: svc, Windows: store, Health: health}, cfg)
	return r, p
}

func serve(r http.Handler, method, path string, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_HealthMetricsFallbacksAndCORS(t *testing.T) {
	r, _ := newEngine(t, testConfig(), nil)

	w := serve(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" || w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("pipeline headers missing: %v", w.Header())
	}

	w = serve(r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("GET /metrics bad: code=%d", w.Code)
	}

	w = serve(r, http.MethodGet, "/nope", "", nil)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"not_found"`) {
		t.Fatalf("GET /nope = %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodPost, "/health", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"http://example.com"}
	r, _ := newEngine(t, cfg, nil)

	w := serve(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	w = serve(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://evil.test"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "http://evil.test" || got == "*" {
		t.Fatalf("unlisted origin echoed: %q", got)
	}
}

func TestRegisterRoutes_HealthProbe(t *testing.T) {
	r, _ := newEngine(t, testConfig(), func(context.Context) error { return errors.New("db down") })
	w := serve(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "degraded") {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_TranslationFlow(t *testing.T) {
	r, p := newEngine(t, testConfig(), nil)
	hdr := map[string]string{"X-User-ID": "u1", middleware.HeaderIdempotencyKey: "k-1"}

	w := serve(r, http.MethodPost, "/api/v1/translations", `{"text":"bonjour","target_lang":"en"}`, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	w = serve(r, http.MethodPost, "/api/v1/translations", `{"text":"bonjour","target_lang":"fr"}`, hdr)
	if w.Code != http.StatusConflict || !strings.Contains(w.Body.String(), `"locked_lang":"en"`) {
		t.Fatalf("lock: %d %s", w.Code, w.Body.String())
	}
	w = serve(r, http.MethodGet, "/api/v1/translations/windows", "", map[string]string{"X-User-ID": "u1"})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"count":1`) || w.Header().Get("ETag") == "" {
		t.Fatalf("windows: %d %s", w.Code, w.Body.String())
	}
	if n := p.calls.Load(); n != 1 {
		t.Fatalf("provider calls=%d", n)
	}

	w = serve(r, http.MethodPost, "/api/v1/translations", `{"text":"x","target_lang":"en"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: %d", w.Code)
	}
}

func TestRegisterRoutes_ReplayBypassesRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	r, p := newEngine(t, cfg, nil)
	hdr := map[string]string{"X-User-ID": "u1", middleware.HeaderIdempotencyKey: "retry-1"}
	body := `{"text":"bonjour","target_lang":"en"}`

	if w := serve(r, http.MethodPost, "/api/v1/translations", body, hdr); w.Code != http.StatusOK {
		t.Fatalf("first: %d %s", w.Code, w.Body.String())
	}
	// Bucket is empty now; only the replay may pass.
	for i := 0; i < 3; i++ {
		w := serve(r, http.MethodPost, "/api/v1/translations", body, hdr)
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"cached":true`) {
			t.Fatalf("replay %d: %d %s", i, w.Code, w.Body.String())
		}
	}
	other := map[string]string{"X-User-ID": "u1", middleware.HeaderIdempotencyKey: "fresh-2"}
	if w := serve(r, http.MethodPost, "/api/v1/translations", body, other); w.Code != http.StatusTooManyRequests {
		t.Fatalf("fresh key should be limited, got %d", w.Code)
	}
	if n := p.calls.Load(); n != 1 {
		t.Fatalf("provider calls=%d", n)
	}
}

func TestRegisterRoutes_LiveKeyDoesNotBypassOtherRequests(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	r, p := newEngine(t, cfg, nil)
	hdr := map[string]string{"X-User-ID": "u1", middleware.HeaderIdempotencyKey: "live-1"}

	if w := serve(r, http.MethodPost, "/api/v1/translations", `{"text":"bonjour","target_lang":"en"}`, hdr); w.Code != http.StatusOK {
		t.Fatalf("first: %d %s", w.Code, w.Body.String())
	}

	w := serve(r, http.MethodPost, "/api/v1/translations",
		`{"source":{"table":"trustpilot_reviews","id":"1","field":"review_body"},"target_lang":"en"}`, hdr)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("source request with live key: %d %s", w.Code, w.Body.String())
	}
	for _, path := range []string{"/api/v1/translations/quota", "/api/v1/translations/windows"} {
		if w := serve(r, http.MethodGet, path, "", hdr); w.Code != http.StatusTooManyRequests {
			t.Fatalf("GET %s with live key: %d", path, w.Code)
		}
	}
	if n := p.calls.Load(); n != 1 {
		t.Fatalf("provider calls=%d", n)
	}
}

func Test_adhocTranslation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	match := adhocTranslation("/api/v1")
	r := gin.New()
	var matched bool
	var body string
	handler := func(c *gin.Context) {
		matched = match(c)
		b, _ := io.ReadAll(c.Request.Body)
		body = string(b)
		c.Status(http.StatusNoContent)
	}
	r.POST("/api/v1/translations", handler)
	r.POST("/api/v1/other", handler)

	tests := []struct {
		path, body string
		want       bool
	}{
		{"/api/v1/translations", `{"text":"hola","target_lang":"en"}`, true},
		{"/api/v1/translations", `{"source":{"table":"t","id":"1","field":"f"},"target_lang":"en"}`, false},
		{"/api/v1/translations", `{"text":"hola","source":{"table":"t"},"target_lang":"en"}`, false},
		{"/api/v1/translations", `{"text":null,"target_lang":"en"}`, false},
		{"/api/v1/translations", `not json`, false},
		{"/api/v1/other", `{"text":"hola","target_lang":"en"}`, false},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body)))
		if matched != tt.want {
			t.Errorf("%s %s: matched=%v want %v", tt.path, tt.body, matched, tt.want)
		}
		if body != tt.body {
			t.Errorf("body not restored: %q", body)
		}
	}
}

func TestRegisterRoutes_GzipAndSwagger(t *testing.T) {
	cfg := testConfig()
	cfg.SwaggerEnabled = true
	r, _ := newEngine(t, cfg, nil)

	w := serve(r, http.MethodGet, "/health", "", map[string]string{"Accept-Encoding": "gzip"})
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip, headers=%v", w.Header())
	}

	w = serve(r, http.MethodGet, "/swagger/doc.json", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/translations/quota") {
		t.Fatalf("swagger doc: %d", w.Code)
	}

	r, _ = newEngine(t, testConfig(), nil)
	if w := serve(r, http.MethodGet, "/swagger/doc.json", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be off by default, got %d", w.Code)
	}
}

func Test_replayLookup(t *testing.T) {
	store := repo.NewMemoryWindowStore()
	now := time.Now().UTC()
	w := &domain.TranslationWindow{
		UserID: "u1", TargetLang: "en", TranslatedText: "hi", ContentHash: "h",
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	w.SetKey(domain.ContentKey{Table: domain.AdhocTable, ID: "k1", Field: domain.AdhocField})
	if _, err := store.InsertIfAbsent(context.Background(), w, 5); err != nil {
		t.Fatalf("insert: %v", err)
	}

	lookup := replayLookup(store)
	if ok, err := lookup(context.Background(), "u1", "k1", now); !ok || err != nil {
		t.Fatalf("hit: ok=%v err=%v", ok, err)
	}
	if ok, err := lookup(context.Background(), "u1", "k2", now); ok || err != nil {
		t.Fatalf("miss: ok=%v err=%v", ok, err)
	}
	if ok, _ := lookup(context.Background(), "u2", "k1", now); ok {
		t.Fatal("other users must not replay")
	}
	if replayLookup(nil) != nil {
		t.Fatal("nil finder should disable lookups")
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
