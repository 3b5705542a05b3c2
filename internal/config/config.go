// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage selection, translation window rules, provider settings,
// rate limiting and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-translation-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and locates the relational store.
type DBConfig struct {
	Driver string // DB_DRIVER: sqlite|postgres
	Path   string // DB_PATH (sqlite)
	URL    string // DATABASE_URL (postgres)
}

// TranslationConfig holds the window rules and the reaper schedule.
type TranslationConfig struct {
	QuotaMax        int           // QUOTA_MAX active windows per user
	WindowTTL       time.Duration // WINDOW_TTL
	WindowStore     string        // WINDOW_STORE: sql|memory
	LangHintEnabled bool          // LANG_HINT_ENABLED
	ReaperInterval  time.Duration // REAPER_INTERVAL, 0 disables
	WindowRetention time.Duration // WINDOW_RETENTION, how long expired rows are kept
}

// ProviderConfig configures the outbound translation provider.
type ProviderConfig struct {
	Name       string        // PROVIDER_NAME: gemini|openai
	APIKey     string        // PROVIDER_API_KEY (falls back to GEMINI_API_KEY / OPENAI_API_KEY)
	Model      string        // PROVIDER_MODEL, provider default when empty
	Endpoint   string        // PROVIDER_ENDPOINT, provider default when empty
	Timeout    time.Duration // PROVIDER_TIMEOUT per call
	RPS        float64       // PROVIDER_RPS, 0 disables the outbound limiter
	Burst      int           // PROVIDER_BURST
	MaxRetries int           // PROVIDER_MAX_RETRIES for TIMEOUT/RATE_LIMIT
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 30s; must exceed PROVIDER_TIMEOUT
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DB DBConfig

	// Translation windows
	Translation TranslationConfig

	// Provider
	Provider ProviderConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DB: DBConfig{
			Driver: strings.ToLower(strings.TrimSpace(getenv("DB_DRIVER", "sqlite"))),
			Path:   getenv("DB_PATH", "app.db"),
			URL:    getenv("DATABASE_URL", ""),
		},

		// Translation windows
		Translation: TranslationConfig{
			QuotaMax:        getint("QUOTA_MAX", 5),
			WindowTTL:       getdur("WINDOW_TTL", 12*time.Hour),
			WindowStore:     strings.ToLower(strings.TrimSpace(getenv("WINDOW_STORE", "sql"))),
			LangHintEnabled: getbool("LANG_HINT_ENABLED", true),
			ReaperInterval:  getdur("REAPER_INTERVAL", time.Hour),
			WindowRetention: getdur("WINDOW_RETENTION", 7*24*time.Hour),
		},

		// Provider
		Provider: ProviderConfig{
			Name:       strings.ToLower(strings.TrimSpace(getenv("PROVIDER_NAME", "gemini"))),
			APIKey:     getenv("PROVIDER_API_KEY", ""),
			Model:      strings.TrimSpace(getenv("PROVIDER_MODEL", "")),
			Endpoint:   strings.TrimSpace(getenv("PROVIDER_ENDPOINT", "")),
			Timeout:    getdur("PROVIDER_TIMEOUT", 10*time.Second),
			RPS:        getfloat("PROVIDER_RPS", 0),
			Burst:      getint("PROVIDER_BURST", 1),
			MaxRetries: getint("PROVIDER_MAX_RETRIES", 0),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-translation-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" || cfg.DB.Driver == "pg" {
		cfg.DB.Driver = "postgres"
	}
	if cfg.Provider.APIKey == "" {
		switch cfg.Provider.Name {
		case "gemini":
			cfg.Provider.APIKey = getenv("GEMINI_API_KEY", "")
		case "openai":
			cfg.Provider.APIKey = getenv("OPENAI_API_KEY", "")
		}
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.Translation.QuotaMax < 1 {
		return cfg, errors.New("QUOTA_MAX must be >= 1")
	}
	if cfg.Translation.WindowTTL <= 0 {
		return cfg, errors.New("WINDOW_TTL must be > 0")
	}
	switch cfg.Translation.WindowStore {
	case "sql", "memory":
	default:
		return cfg, errors.New("WINDOW_STORE must be one of: sql, memory")
	}
	if cfg.Translation.ReaperInterval < 0 || cfg.Translation.WindowRetention < 0 {
		return cfg, errors.New("REAPER_INTERVAL and WINDOW_RETENTION must be >= 0")
	}
	switch cfg.Provider.Name {
	case "gemini", "openai":
	default:
		return cfg, errors.New("PROVIDER_NAME must be one of: gemini, openai")
	}
	if cfg.Provider.Timeout <= 0 {
		return cfg, errors.New("PROVIDER_TIMEOUT must be > 0")
	}
	if cfg.Provider.RPS < 0 {
		return cfg, errors.New("PROVIDER_RPS must be >= 0")
	}
	if cfg.Provider.Burst < 1 {
		return cfg, errors.New("PROVIDER_BURST must be >= 1")
	}
	if cfg.Provider.MaxRetries < 0 {
		return cfg, errors.New("PROVIDER_MAX_RETRIES must be >= 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
