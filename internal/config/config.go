// Package config loads runtime configuration from the environment. A .env
// file in the working directory is honored first, then envdecode fills the
// tagged fields. Every knob has a default that yields a runnable in-memory
// service, so a bare `go run ./cmd/proteinlens` works with no setup.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// ListSeparator splits multi-value settings such as CORS origins. Commas are
// reserved by the tag syntax, so lists use semicolons.
const ListSeparator = ";"

// Config is the root configuration for the service.
type Config struct {
	Server    ServerConfig
	Ops       OpsConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Objects   ObjectStoreConfig
	Vision    VisionConfig
	Breach    BreachConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Logging   LoggingConfig
	Capture   CaptureConfig
	Analysis  AnalysisConfig
	Jobs      JobsConfig
	Profiles  ProfilesConfig
}

// ServerConfig controls the public HTTP listener.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST,default=0.0.0.0"`
	Port            int           `env:"SERVER_PORT,default=8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT,default=15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT,default=30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT,default=60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	AuditLogPath    string        `env:"AUDIT_LOG_PATH"`
}

// Addr formats the listen address.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// OpsConfig controls the operational listener carrying metrics, health, and
// profiling endpoints. It binds separately so the public listener never
// exposes them.
type OpsConfig struct {
	Enabled bool   `env:"OPS_ENABLED,default=true"`
	Host    string `env:"OPS_HOST,default=0.0.0.0"`
	Port    int    `env:"OPS_PORT,default=9090"`
}

// Addr formats the ops listen address.
func (c OpsConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DatabaseConfig controls the Postgres connection. An empty DSN selects the
// in-memory stores.
type DatabaseConfig struct {
	Driver          string `env:"DATABASE_DRIVER,default=postgres"`
	DSN             string `env:"DATABASE_URL"`
	MaxOpenConns    int    `env:"DATABASE_MAX_OPEN_CONNS,default=25"`
	MaxIdleConns    int    `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime int    `env:"DATABASE_CONN_MAX_LIFETIME,default=300"` // seconds
	Migrate         bool   `env:"DATABASE_MIGRATE,default=true"`
}

// RedisConfig controls the optional cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB,default=0"`
	TTL      time.Duration `env:"REDIS_CACHE_TTL,default=15m"`
}

// ObjectStoreConfig selects where uploaded meal images live.
type ObjectStoreConfig struct {
	// Backend is one of memory, fs, supabase.
	Backend            string `env:"OBJECT_STORE,default=memory"`
	FSRoot             string `env:"OBJECT_STORE_PATH,default=./data/objects"`
	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseBucket     string `env:"SUPABASE_BUCKET,default=meal-images"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_KEY"`

	// EncryptionKey enables at-rest encryption of stored images: a raw,
	// base64, or hex 16/24/32-byte key. EncryptionPassphrase derives a key
	// instead when EncryptionKey is empty.
	EncryptionKey        string `env:"STORAGE_ENCRYPTION_KEY"`
	EncryptionPassphrase string `env:"STORAGE_ENCRYPTION_PASSPHRASE"`
	EncryptionSalt       string `env:"STORAGE_ENCRYPTION_SALT,default=proteinlens-objects-v1"`
}

// VisionConfig controls the AI provider client. With neither an API key nor
// Azure AD credentials the analyzer is left unconfigured and analyses fail
// until one is provided.
type VisionConfig struct {
	BaseURL    string        `env:"VISION_BASE_URL"`
	APIKey     string        `env:"VISION_API_KEY"`
	Model      string        `env:"VISION_MODEL"`
	Timeout    time.Duration `env:"VISION_TIMEOUT,default=60s"`
	MaxRetries int           `env:"VISION_MAX_RETRIES,default=2"`
	MaxTokens  int           `env:"VISION_MAX_TOKENS,default=800"`

	AzureTenantID     string `env:"VISION_AZURE_TENANT_ID"`
	AzureClientID     string `env:"VISION_AZURE_CLIENT_ID"`
	AzureClientSecret string `env:"VISION_AZURE_CLIENT_SECRET"`
	AzureScope        string `env:"VISION_AZURE_SCOPE,default=https://cognitiveservices.azure.com/.default"`
}

// UseAzureAD reports whether client-secret credentials are fully specified.
func (c VisionConfig) UseAzureAD() bool {
	return c.AzureTenantID != "" && c.AzureClientID != "" && c.AzureClientSecret != ""
}

// Configured reports whether any credential source is present.
func (c VisionConfig) Configured() bool {
	return c.APIKey != "" || c.UseAzureAD()
}

// BreachConfig controls the password hygiene checker.
type BreachConfig struct {
	Enabled   bool          `env:"BREACH_CHECK_ENABLED,default=true"`
	BaseURL   string        `env:"BREACH_API_BASE_URL,default=https://api.pwnedpasswords.com"`
	UserAgent string        `env:"BREACH_USER_AGENT,default=proteinlens-backend"`
	Timeout   time.Duration `env:"BREACH_TIMEOUT,default=10s"`
	FailOpen  bool          `env:"BREACH_FAIL_OPEN,default=true"`
}

// AuthConfig controls bearer-token validation. JWTPublicKey takes a PEM
// RSA public key; JWTSecret an HMAC secret. With neither set, authentication
// is disabled and every request runs as the anonymous development user.
type AuthConfig struct {
	JWTSecret    string `env:"JWT_SECRET"`
	JWTPublicKey string `env:"JWT_PUBLIC_KEY"`
	SkipPaths    string `env:"AUTH_SKIP_PATHS,default=/v1/healthz;/v1/password/check"`
}

// SkipPathList splits the configured skip paths.
func (c AuthConfig) SkipPathList() []string {
	return splitList(c.SkipPaths)
}

// RateLimitConfig controls the per-key request limiter.
type RateLimitConfig struct {
	Enabled   bool `env:"RATE_LIMIT_ENABLED,default=true"`
	PerSecond int  `env:"RATE_LIMIT_PER_SECOND,default=20"`
	Burst     int  `env:"RATE_LIMIT_BURST,default=40"`
}

// CORSConfig controls cross-origin access to the public API.
type CORSConfig struct {
	AllowedOrigins string `env:"CORS_ALLOWED_ORIGINS,default=*"`
}

// OriginList splits the configured origins.
func (c CORSConfig) OriginList() []string {
	return splitList(c.AllowedOrigins)
}

// LoggingConfig controls log level, encoding, and destination.
type LoggingConfig struct {
	Level      string `env:"LOG_LEVEL,default=info"`
	Format     string `env:"LOG_FORMAT,default=json"`
	Output     string `env:"LOG_OUTPUT,default=stdout"`
	FilePrefix string `env:"LOG_FILE_PREFIX,default=proteinlens"`
}

// CaptureConfig controls upload session behavior.
type CaptureConfig struct {
	MaxSessionsPerUser int           `env:"CAPTURE_MAX_SESSIONS_PER_USER,default=10"`
	SessionTTL         time.Duration `env:"CAPTURE_SESSION_TTL,default=30m"`
	MaxUploadBytes     int64         `env:"CAPTURE_MAX_UPLOAD_BYTES,default=8388608"`
}

// AnalysisConfig controls the analysis worker pool.
type AnalysisConfig struct {
	Workers        int           `env:"ANALYSIS_WORKERS,default=4"`
	QueueSize      int           `env:"ANALYSIS_QUEUE_SIZE,default=64"`
	AttemptTimeout time.Duration `env:"ANALYSIS_ATTEMPT_TIMEOUT,default=90s"`
}

// JobsConfig controls the background scheduler. Specs use cron syntax; the
// @every form works too.
type JobsConfig struct {
	Enabled           bool   `env:"JOBS_ENABLED,default=true"`
	SessionReaperSpec string `env:"JOBS_SESSION_REAPER_SPEC,default=@every 5m"`
	SummaryWarmupSpec string `env:"JOBS_SUMMARY_WARMUP_SPEC,default=15 0 * * *"`
	BreachSweepSpec   string `env:"JOBS_BREACH_SWEEP_SPEC,default=@every 1h"`
}

// ProfilesConfig points at an optional diet-profile catalog file. Empty
// selects the built-in catalog.
type ProfilesConfig struct {
	CatalogPath string `env:"PROFILE_CATALOG_PATH"`
}

// Load reads .env when present, decodes the environment, and validates the
// result.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv decodes the current environment without touching .env files.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that tags cannot express.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Ops.Enabled {
		if c.Ops.Port < 1 || c.Ops.Port > 65535 {
			return fmt.Errorf("ops port %d out of range", c.Ops.Port)
		}
		if c.Ops.Port == c.Server.Port && c.Ops.Host == c.Server.Host {
			return fmt.Errorf("ops listener collides with server listener on %s", c.Server.Addr())
		}
	}

	if c.Database.DSN != "" && c.Database.Driver == "" {
		return fmt.Errorf("database driver required when DATABASE_URL is set")
	}

	switch c.Objects.Backend {
	case "memory":
	case "fs":
		if c.Objects.FSRoot == "" {
			return fmt.Errorf("OBJECT_STORE_PATH required for the fs object store")
		}
	case "supabase":
		if c.Objects.SupabaseURL == "" || c.Objects.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY required for the supabase object store")
		}
	default:
		return fmt.Errorf("unknown object store backend %q", c.Objects.Backend)
	}

	if c.Analysis.Workers < 1 {
		return fmt.Errorf("analysis workers must be positive")
	}
	if c.Analysis.QueueSize < 1 {
		return fmt.Errorf("analysis queue size must be positive")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.PerSecond < 1 {
			return fmt.Errorf("rate limit per-second must be positive")
		}
		if c.RateLimit.Burst < c.RateLimit.PerSecond {
			return fmt.Errorf("rate limit burst must be at least the per-second rate")
		}
	}

	if c.Capture.MaxUploadBytes < 1 {
		return fmt.Errorf("max upload bytes must be positive")
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ListSeparator) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
