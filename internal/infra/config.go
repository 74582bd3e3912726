package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	DBMaxConns  int32

	RedisAddr     string
	RedisPassword string

	StoragePath       string
	StorageBaseURL    string
	StorageSignSecret string

	// PublicBaseURL is the externally reachable base URL used when building
	// the provider webhook callback.
	PublicBaseURL string
	WebhookSecret string

	ReplicateAPIToken     string
	ReplicateBaseURL      string
	ReplicateModelVersion string

	PromptMaxChars int
	MaxVariants    int
	PollGrace      time.Duration

	BillingTimezone     string
	DefaultMonthlyLimit int
	PlanLimits          map[string]int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string

	WorkerPollInterval time.Duration
	WorkerBatchSize    int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  int32(getEnvInt("DB_MAX_CONNS", 10)),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:    "",
		StorageSignSecret: os.Getenv("STORAGE_SIGN_SECRET"),

		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),

		ReplicateAPIToken:     os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateBaseURL:      getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ReplicateModelVersion: os.Getenv("REPLICATE_MODEL_VERSION"),

		PromptMaxChars: getEnvInt("PROMPT_MAX_CHARS", 320),
		MaxVariants:    getEnvInt("MAX_VARIANTS", 3),
		PollGrace:      time.Second * time.Duration(getEnvInt("POLL_GRACE_SECONDS", 5)),

		BillingTimezone:     getEnv("BILLING_TIMEZONE", "UTC"),
		DefaultMonthlyLimit: getEnvInt("DEFAULT_MONTHLY_GENERATIONS", 10),
		PlanLimits:          parsePlanLimits(os.Getenv("PLAN_LIMITS")),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		AllowedOrigins:   splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),

		WorkerPollInterval: time.Second * time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 5)),
		WorkerBatchSize:    getEnvInt("WORKER_BATCH_SIZE", 20),
	}

	cfg.StorageBaseURL = getEnv("STORAGE_BASE_URL", strings.TrimRight(cfg.PublicBaseURL, "/")+"/static")

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required")
	}
	if cfg.StorageSignSecret == "" {
		return nil, fmt.Errorf("STORAGE_SIGN_SECRET is required")
	}

	return cfg, nil
}

// BillingLocation resolves the configured billing time zone, falling back to
// UTC on an unknown name.
func (c *Config) BillingLocation() *time.Location {
	loc, err := time.LoadLocation(c.BillingTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// parsePlanLimits parses "free=10,pro=200" into a plan limit table.
func parsePlanLimits(raw string) map[string]int {
	limits := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			continue
		}
		limits[strings.TrimSpace(name)] = n
	}
	return limits
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
