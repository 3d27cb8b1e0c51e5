// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, the Gemini classifier,
// the retry scheduler, rate limiting, and observability.
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-reply-engine")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// GeminiConfig defines settings for the two-pass intent classifier.
type GeminiConfig struct {
	APIKey  string        // GEMINI_API_KEY (required unless classifier disabled)
	Model   string        // GEMINI_MODEL (e.g. "gemini-2.0-flash")
	Timeout time.Duration // CLASSIFY_TIMEOUT per model call
}

// SchedulerConfig defines the retry/escalation loop settings.
type SchedulerConfig struct {
	Enabled          bool          // SCHEDULER_ENABLED
	Interval         time.Duration // SCHEDULER_INTERVAL between ticks
	Jitter           time.Duration // SCHEDULER_JITTER added randomly per tick
	BaseRetryDelay   time.Duration // RETRY_BASE_DELAY (doubled per attempt)
	MaxRetryAttempts int           // MAX_RETRY_ATTEMPTS before escalation
	Lookback         time.Duration // LOOKBACK_WINDOW for candidate replies
	BatchLimit       int           // SCHEDULER_BATCH_LIMIT per user per tick
}

// RelayConfig defines the outbound mail relay settings.
type RelayConfig struct {
	URL     string        // RELAY_URL (send endpoint)
	Token   string        // RELAY_TOKEN (bearer auth)
	Timeout time.Duration // RELAY_TIMEOUT per send
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath string // SQLite path

	// Classifier
	Gemini GeminiConfig

	// Retry scheduler
	Scheduler SchedulerConfig

	// Outbound delivery
	Relay RelayConfig

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
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "replies.db"),

		// Classifier
		Gemini: GeminiConfig{
			APIKey:  getenv("GEMINI_API_KEY", ""),
			Model:   getenv("GEMINI_MODEL", "gemini-2.0-flash"),
			Timeout: getdur("CLASSIFY_TIMEOUT", 30*time.Second),
		},

		// Retry scheduler
		Scheduler: SchedulerConfig{
			Enabled:          getbool("SCHEDULER_ENABLED", true),
			Interval:         getdur("SCHEDULER_INTERVAL", 2*time.Minute),
			Jitter:           getdur("SCHEDULER_JITTER", 30*time.Second),
			BaseRetryDelay:   getdur("RETRY_BASE_DELAY", 5*time.Minute),
			MaxRetryAttempts: getint("MAX_RETRY_ATTEMPTS", 3),
			Lookback:         getdur("LOOKBACK_WINDOW", 72*time.Hour),
			BatchLimit:       getint("SCHEDULER_BATCH_LIMIT", 50),
		},

		// Outbound delivery
		Relay: RelayConfig{
			URL:     getenv("RELAY_URL", ""),
			Token:   getenv("RELAY_TOKEN", ""),
			Timeout: getdur("RELAY_TIMEOUT", 15*time.Second),
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
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-reply-engine"),
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
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Gemini.Timeout <= 0 {
		return cfg, errors.New("CLASSIFY_TIMEOUT must be > 0")
	}
	if cfg.Scheduler.Interval <= 0 {
		return cfg, errors.New("SCHEDULER_INTERVAL must be > 0")
	}
	if cfg.Scheduler.Jitter < 0 {
		return cfg, errors.New("SCHEDULER_JITTER must be >= 0")
	}
	if cfg.Scheduler.BaseRetryDelay <= 0 {
		return cfg, errors.New("RETRY_BASE_DELAY must be > 0")
	}
	if cfg.Scheduler.MaxRetryAttempts < 1 {
		return cfg, errors.New("MAX_RETRY_ATTEMPTS must be >= 1")
	}
	if cfg.Scheduler.Lookback <= 0 {
		return cfg, errors.New("LOOKBACK_WINDOW must be > 0")
	}
	if cfg.Scheduler.BatchLimit < 1 {
		return cfg, errors.New("SCHEDULER_BATCH_LIMIT must be >= 1")
	}
	if cfg.Relay.Timeout <= 0 {
		return cfg, errors.New("RELAY_TIMEOUT must be > 0")
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
