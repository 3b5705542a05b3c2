package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) {
		if RequestIDFrom(c) == "" {
			t.Errorf("requestID not set in context")
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rid", nil))
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated %s header", requestIDHeader)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rid", nil)
	req.Header.Set("x-request-id", "abc-123")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
}

func TestIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		preset string
		header string
		want   string
	}{
		{"header", "", "  user-1 ", "user-1"},
		{"anonymous", "", "", ""},
		{"upstream wins", "auth-user", "header-user", "auth-user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			if tt.preset != "" {
				r.Use(func(c *gin.Context) { c.Set(CtxKeyUserID, tt.preset) })
			}
			r.Use(Identity())
			var got string
			r.GET("/", func(c *gin.Context) {
				got = c.GetString(CtxKeyUserID)
				c.Status(http.StatusNoContent)
			})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(HeaderUserID, tt.header)
			}
			r.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Fatalf("userID=%q want %q", got, tt.want)
			}
		})
	}
}

func TestLogger_LevelsRedactionAndContextLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Identity(), Logger(LogOptions{MaskHeaders: []string{"X-API-Key"}}))
	r.GET("/ok", func(c *gin.Context) {
		// Services log through zerolog.Ctx on the request context.
		zerolog.Ctx(c.Request.Context()).Info().Msg("from service")
		c.String(http.StatusOK, "ok")
	})
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	req := httptest.NewRequest(http.MethodGet, "/ok?email=jane@example.com&id=141add05-4415-4938-b5a1-17e0d3171aff", nil)
	req.Header.Set(HeaderUserID, "u1")
	req.Header.Set("X-API-Key", "secret")
	req.Header.Set("Authorization", "Bearer t")
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	lines := logLines(t, buf)
	if len(lines) != 4 {
		t.Fatalf("want 4 log lines, got %d: %s", len(lines), buf.String())
	}

	svc := lines[0]
	if svc["message"] != "from service" || svc["user_id"] != "u1" || svc["request_id"] == "" {
		t.Fatalf("service log missing request fields: %v", svc)
	}

	access := lines[1]
	if access["level"] != "info" || access["path"] != "/ok" {
		t.Fatalf("unexpected access log: %v", access)
	}
	q, _ := access["query"].(string)
	if strings.Contains(q, "jane@example.com") || strings.Contains(q, "141add05") {
		t.Fatalf("query not redacted: %q", q)
	}
	if !strings.Contains(q, "[REDACTED:email]") || !strings.Contains(q, "[REDACTED:id]") {
		t.Fatalf("expected redaction markers in %q", q)
	}
	hdrs, _ := access["headers"].(map[string]any)
	if hdrs["X-Api-Key"] != "[REDACTED]" || hdrs["Authorization"] != "[REDACTED]" {
		t.Fatalf("headers not masked: %v", hdrs)
	}

	if lines[2]["level"] != "warn" || lines[3]["level"] != "error" {
		t.Fatalf("levels: %v / %v", lines[2]["level"], lines[3]["level"])
	}
}

func TestLogger_UnmatchedRouteUsesRawPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(Logger(LogOptions{}))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	lines := logLines(t, buf)
	if len(lines) != 1 || lines[0]["path"] != "/nope" || lines[0]["level"] != "warn" {
		t.Fatalf("unexpected: %v", lines)
	}
}

func TestRecovery_JSONEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })
	r.GET("/late", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("after write")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(requestIDHeader, "rid-1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] != "rid-1" {
		t.Fatalf("unexpected body: %v", body)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("panic not logged: %s", buf.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/late", nil))
	if strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("must not write an envelope after the body started: %q", w.Body.String())
	}
}

func TestLoggerFrom_Fallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if LoggerFrom(c) == nil {
		t.Fatal("LoggerFrom returned nil")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc…" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("abc", 0); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
