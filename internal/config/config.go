package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultConsentSource labels records ingested without an explicit source.
const DefaultConsentSource = "Canvas Export Demo"

// Config holds runtime configuration values for the API service and the CLI tools.
type Config struct {
	AppName               string
	AppEnv                string
	AppPort               string
	DatabaseURL           string
	RedisURL              string
	NATSURL               string
	NATSSubjectPrefix     string
	JWTSecret             string
	CORSAllowOrigins      string
	AggregateCacheTTL     time.Duration
	AuditLogLimit         int
	ClassRadarRecordLimit int
	StrictStudentScope    bool
	ConsentSource         string
	IngestMaxRows         int
	IngestMaxSizeMB       int
	RateLimitMax          int
	RateLimitWindow       time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// IngestMaxBytes is the largest accepted upload.
func (c Config) IngestMaxBytes() int64 {
	return int64(c.IngestMaxSizeMB) * 1024 * 1024
}

// Load reads configuration values from environment variables and optional .env file.
// The JWT secret is only required by the API server; CLI tools use LoadWithoutAuth.
func Load() (Config, error) {
	cfg, err := load()
	if err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	return cfg, nil
}

// LoadWithoutAuth reads configuration for tools that never verify bearer tokens.
func LoadWithoutAuth() (Config, error) {
	return load()
}

func load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("TUTOR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Tutor Analytics API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.url", "sqlite://tutor_analytics.db")
	v.SetDefault("nats.subject_prefix", "tutor")
	v.SetDefault("cors.allow_origins", "http://localhost:3000")
	v.SetDefault("aggregate.cache_ttl", "5m")
	v.SetDefault("audit.log_limit", 50)
	v.SetDefault("class_radar.record_limit", 200)
	v.SetDefault("access.strict_student_scope", false)
	v.SetDefault("ingest.consent_source", DefaultConsentSource)
	v.SetDefault("ingest.max_rows", 50000)
	v.SetDefault("ingest.max_size_mb", 10)
	v.SetDefault("rate_limit.max", 120)
	v.SetDefault("rate_limit.window", "1m")

	ttl, err := parseDuration(v.GetString("aggregate.cache_ttl"), 5*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid aggregate cache ttl: %w", err)
	}

	window, err := parseDuration(v.GetString("rate_limit.window"), time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid rate limit window: %w", err)
	}

	cfg := Config{
		AppName:               v.GetString("app.name"),
		AppEnv:                v.GetString("app.env"),
		AppPort:               v.GetString("app.port"),
		DatabaseURL:           v.GetString("database.url"),
		RedisURL:              v.GetString("redis.url"),
		NATSURL:               v.GetString("nats.url"),
		NATSSubjectPrefix:     v.GetString("nats.subject_prefix"),
		JWTSecret:             v.GetString("jwt.secret"),
		CORSAllowOrigins:      v.GetString("cors.allow_origins"),
		AggregateCacheTTL:     ttl,
		AuditLogLimit:         v.GetInt("audit.log_limit"),
		ClassRadarRecordLimit: v.GetInt("class_radar.record_limit"),
		StrictStudentScope:    v.GetBool("access.strict_student_scope"),
		ConsentSource:         strings.TrimSpace(v.GetString("ingest.consent_source")),
		IngestMaxRows:         v.GetInt("ingest.max_rows"),
		IngestMaxSizeMB:       v.GetInt("ingest.max_size_mb"),
		RateLimitMax:          v.GetInt("rate_limit.max"),
		RateLimitWindow:       window,
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}

	if cfg.AuditLogLimit <= 0 {
		cfg.AuditLogLimit = 50
	}

	if cfg.ClassRadarRecordLimit <= 0 {
		cfg.ClassRadarRecordLimit = 200
	}

	if cfg.ConsentSource == "" {
		cfg.ConsentSource = DefaultConsentSource
	}

	if cfg.IngestMaxSizeMB <= 0 {
		cfg.IngestMaxSizeMB = 10
	}

	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 120
	}

	return cfg, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}
