// Command server runs the translation window API.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-translation-backend/internal/config"
	httpapi "github.com/tbourn/go-translation-backend/internal/http"
	"github.com/tbourn/go-translation-backend/internal/langdetect"
	"github.com/tbourn/go-translation-backend/internal/logging"
	"github.com/tbourn/go-translation-backend/internal/observability"
	"github.com/tbourn/go-translation-backend/internal/provider"
	"github.com/tbourn/go-translation-backend/internal/repo"
	"github.com/tbourn/go-translation-backend/internal/services"
	"github.com/tbourn/go-translation-backend/internal/source"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownGrace = 15 * time.Second

func main() {
	// A missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	log := logging.Setup(cfg.LogLevel, cfg.LogPretty, os.Stdout, cfg.OTEL.ServiceName)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	shutdownTracing, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	db, err := repo.Open(repo.Options{
		Driver:      cfg.DB.Driver,
		SQLitePath:  cfg.DB.Path,
		DatabaseURL: cfg.DB.URL,
		Tracing:     cfg.OTEL.Enabled,
		Quiet:       cfg.LogLevel != "debug",
	})
	if err != nil {
		return err
	}
	// The review and user tables belong to the wider platform on Postgres.
	if err := repo.AutoMigrate(db, cfg.DB.Driver == repo.DriverSQLite); err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store := windowStore(cfg, db)
	svc := services.NewTranslationService(store, source.NewSQLResolver(db), repo.NewUserStore(db), buildProvider(cfg.Provider, log))
	svc.QuotaMax = cfg.Translation.QuotaMax
	svc.TTL = cfg.Translation.WindowTTL
	svc.ProviderTimeout = cfg.Provider.Timeout
	if cfg.Translation.LangHintEnabled {
		svc.Hint = langdetect.NewLingua()
	}

	reaper := &services.Reaper{
		Store:     store,
		Interval:  cfg.Translation.ReaperInterval,
		Retention: cfg.Translation.WindowRetention,
		Log:       log,
	}
	go reaper.Run(ctx)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Translations: svc,
		Windows:      store,
		Health:       sqlDB.PingContext,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       baseContext(ctx),
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("db_driver", cfg.DB.Driver).
			Str("window_store", cfg.Translation.WindowStore).
			Str("provider", cfg.Provider.Name).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(sctx)
}

// baseContext gives requests the process logger without the shutdown signal,
// so in-flight requests finish during the Shutdown grace period.
func baseContext(ctx context.Context) func(net.Listener) context.Context {
	base := context.WithoutCancel(ctx)
	return func(net.Listener) context.Context { return base }
}

// windowStorage is what both the service and the reaper need from a store.
type windowStorage interface {
	services.WindowStore
	services.Purger
	httpapi.WindowFinder
}

func windowStore(cfg config.Config, db *gorm.DB) windowStorage {
	if cfg.Translation.WindowStore == "memory" {
		return repo.NewMemoryWindowStore()
	}
	return repo.NewSQLWindowStore(db)
}

// buildProvider returns the configured translator wrapped with retry and the
// outbound limiter. Without an API key every translation fails with
// PROVIDER_ERROR and no window is opened.
func buildProvider(cfg config.ProviderConfig, log zerolog.Logger) provider.Translator {
	if cfg.APIKey == "" {
		log.Warn().Str("provider", cfg.Name).Msg("no provider API key, translations disabled")
		return provider.Disabled{Reason: cfg.Name + " API key not configured"}
	}

	client := &http.Client{Timeout: cfg.Timeout + time.Second}
	var p provider.Translator
	switch cfg.Name {
	case "openai":
		p = provider.NewOpenAI(cfg.APIKey, cfg.Model, cfg.Endpoint, client)
	default:
		p = provider.NewGemini(cfg.APIKey, cfg.Model, cfg.Endpoint, client)
	}

	// Retry wraps the limiter so each attempt takes its own token.
	return provider.WithRetry(provider.WithRateLimit(p, cfg.RPS, cfg.Burst), cfg.MaxRetries, 0)
}
