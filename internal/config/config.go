package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	ClickUp      ClickUpConfig
	Sync         SyncConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig controls outbound webhook subscribers and their delivery queue.
type NotificationConfig struct {
	EmailFrom              string
	WebhookURLs            []string
	DeliveryTimeoutSeconds int
	MaxAttempts            int
	BackoffMinutes         int
	RetentionDays          int
	PollIntervalSeconds    int
}

// ClickUpConfig seeds the integration record and tunes the API client.
type ClickUpConfig struct {
	APIKey            string
	ListID            string
	WorkspaceID       string
	SpaceID           string
	BaseURL           string
	TimeoutSeconds    int
	WebhookSecret     string
	SourceFieldID     string
	StatusAliasesFile string
}

// SyncConfig tunes the ticket/task reconciliation core.
type SyncConfig struct {
	DedupWindowMs    int
	DedupBackend     string
	VerifyTTLSeconds int
	DefaultDueDays   int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-sync"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			EmailFrom:              getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURLs:            getEnvAsList("NOTIFY_WEBHOOK_URLS"),
			DeliveryTimeoutSeconds: getEnvAsInt("NOTIFY_DELIVERY_TIMEOUT_SECONDS", 30),
			MaxAttempts:            getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 3),
			BackoffMinutes:         getEnvAsInt("NOTIFY_BACKOFF_MINUTES", 5),
			RetentionDays:          getEnvAsInt("NOTIFY_RETENTION_DAYS", 7),
			PollIntervalSeconds:    getEnvAsInt("NOTIFY_POLL_INTERVAL_SECONDS", 60),
		},
		ClickUp: ClickUpConfig{
			APIKey:            os.Getenv("CLICKUP_API_KEY"),
			ListID:            os.Getenv("CLICKUP_LIST_ID"),
			WorkspaceID:       os.Getenv("CLICKUP_WORKSPACE_ID"),
			SpaceID:           os.Getenv("CLICKUP_SPACE_ID"),
			BaseURL:           getEnv("CLICKUP_BASE_URL", "https://api.clickup.com/api/v2"),
			TimeoutSeconds:    getEnvAsInt("CLICKUP_TIMEOUT_SECONDS", 15),
			WebhookSecret:     os.Getenv("CLICKUP_WEBHOOK_SECRET"),
			SourceFieldID:     os.Getenv("CLICKUP_SOURCE_FIELD_ID"),
			StatusAliasesFile: os.Getenv("CLICKUP_STATUS_ALIASES_FILE"),
		},
		Sync: SyncConfig{
			DedupWindowMs:    getEnvAsInt("SYNC_DEDUP_WINDOW_MS", 5000),
			DedupBackend:     strings.ToLower(getEnv("SYNC_DEDUP_BACKEND", "memory")),
			VerifyTTLSeconds: getEnvAsInt("SYNC_VERIFY_TTL_SECONDS", 60),
			DefaultDueDays:   getEnvAsInt("SYNC_DEFAULT_DUE_DAYS", 7),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the per-request timeout for ClickUp calls.
func (c ClickUpConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DedupWindow returns the window during which repeated status changes are suppressed.
func (s SyncConfig) DedupWindow() time.Duration {
	if s.DedupWindowMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.DedupWindowMs) * time.Millisecond
}

// VerifyTTL returns how long a successful credential check is trusted.
func (s SyncConfig) VerifyTTL() time.Duration {
	if s.VerifyTTLSeconds < 0 {
		return 0
	}
	return time.Duration(s.VerifyTTLSeconds) * time.Second
}

// DeliveryTimeout returns the HTTP timeout for one outbound webhook delivery.
func (n NotificationConfig) DeliveryTimeout() time.Duration {
	if n.DeliveryTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(n.DeliveryTimeoutSeconds) * time.Second
}

// Backoff returns the base unit of the linear retry backoff.
func (n NotificationConfig) Backoff() time.Duration {
	if n.BackoffMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(n.BackoffMinutes) * time.Minute
}

// Retention returns how long finished deliveries are kept.
func (n NotificationConfig) Retention() time.Duration {
	if n.RetentionDays <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(n.RetentionDays) * 24 * time.Hour
}

// PollInterval returns the delivery worker tick.
func (n NotificationConfig) PollInterval() time.Duration {
	if n.PollIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(n.PollIntervalSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
