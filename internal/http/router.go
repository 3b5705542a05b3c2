// Package httpapi wires the HTTP transport (Gin) to the translation service,
// middleware, and route handlers. It owns the middleware order and the
// cross-cutting concerns: tracing, correlation ids, logging, recovery,
// metrics, idempotency, rate limiting, CORS, security headers, compression,
// and the optional swagger UI.
package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-translation-backend/internal/config"
	"github.com/tbourn/go-translation-backend/internal/docs"
	"github.com/tbourn/go-translation-backend/internal/domain"
	"github.com/tbourn/go-translation-backend/internal/http/handlers"
	"github.com/tbourn/go-translation-backend/internal/http/middleware"
	"github.com/tbourn/go-translation-backend/internal/repo"
)

// maxBodyBytes caps request bodies; translation payloads are small.
const maxBodyBytes = 1 << 20

// WindowFinder is the read side of the window store used to detect replayed
// ad-hoc requests.
type WindowFinder interface {
	FindActive(ctx context.Context, userID string, key domain.ContentKey, now time.Time) (*domain.TranslationWindow, error)
}

// Deps are the collaborators RegisterRoutes mounts.
type Deps struct {
	Translations handlers.TranslationService
	Windows      WindowFinder // optional; disables replay detection when nil
	// Health, when set, is probed by GET /health; a failure answers 503.
	Health func(ctx context.Context) error
}

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID, Identity: correlation and caller ids for everything below
//  3. Logger: redacted access log plus request-scoped logger
//  4. Recovery: capture panics after the logger
//  5. Body size limiter
//  6. Metrics
//  7. Idempotency validator (before the rate limiter so ad-hoc replays can bypass it)
//  8. Rate limiter (per user/IP)
//  9. CORS, security headers, gzip
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID(), middleware.Identity())
	r.Use(middleware.Logger(middleware.LogOptions{
		MaskHeaders: []string{"X-API-Key", "X-Goog-Api-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{
		MaxLen:     200,
		Replayable: adhocTranslation(cfg.APIBasePath),
	}, replayLookup(deps.Windows)))
	r.Use(middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP()).Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger/"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", health(deps.Health))

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(deps.Translations)
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/translations", h.Translate)
		api.GET("/translations/quota", h.Quota)
		api.GET("/translations/windows", h.ListWindows)
	}
}

// replayLookup reports an idempotency replay when the key still names an
// active ad-hoc window for the caller.
func replayLookup(windows WindowFinder) middleware.IdempotencyLookup {
	if windows == nil {
		return nil
	}
	return func(ctx context.Context, userID, key string, now time.Time) (bool, error) {
		ck := domain.ContentKey{Table: domain.AdhocTable, ID: key, Field: domain.AdhocField}
		_, err := windows.FindActive(ctx, userID, ck, now)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, repo.ErrNotFound):
			return false, nil
		default:
			return false, err
		}
	}
}

// adhocTranslation matches POST {base}/translations whose body carries raw
// text and no source reference; only those are served from the window an
// Idempotency-Key names. The body is restored for the handler.
func adhocTranslation(base string) func(*gin.Context) bool {
	route := strings.TrimRight(base, "/") + "/translations"
	return func(c *gin.Context) bool {
		if c.Request.Method != http.MethodPost || c.FullPath() != route || c.Request.Body == nil {
			return false
		}
		body := c.Request.Body
		raw, err := io.ReadAll(body)
		c.Request.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(raw), body), body}
		if err != nil {
			return false
		}
		var peek struct {
			Text   *string   `json:"text"`
			Source *struct{} `json:"source"`
		}
		if err := binding.JSON.BindBody(raw, &peek); err != nil {
			return false
		}
		return peek.Text != nil && peek.Source == nil
	}
}

// corsMiddleware allows every origin when none are configured, and otherwise
// echoes allowlisted origins with Vary: Origin.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			middleware.HeaderUserID, middleware.HeaderIdempotencyKey, "If-None-Match",
		},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// ACAO: * even without an Origin header, so plain curl and health checks see it.
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

func health(probe func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if probe != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := probe(ctx); err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("health probe failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// limitBody caps the request body at maxBytes; reads past it fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
