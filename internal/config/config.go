package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RateLimitConfig indicates how many requests are allowed within a given interval.
type RateLimitConfig struct {
	Requests int
	Interval time.Duration
}

// GenerationConfig selects and configures the candidate generation backend.
type GenerationConfig struct {
	Provider      string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string
	Temperature   float64
	Timeout       time.Duration
	Concurrency   int
}

// PipelineConfig carries the candidate filter knobs.
type PipelineConfig struct {
	MinSuppliers            int
	MaxSuppliers            int
	FallbackThreshold       int
	ReachabilityConcurrency int
	ReachabilityTimeout     time.Duration
	VerificationConcurrency int
	VerificationTimeout     time.Duration
}

// QuotaConfig describes the daily send cap and pacing.
type QuotaConfig struct {
	Backend            string
	DailyLimit         int
	SendInterval       time.Duration
	WarmupStart        time.Time
	WarmupInitialLimit int
	WarmupDays         int
}

// DispatchConfig controls the outbound queue.
type DispatchConfig struct {
	Rate        RateLimitConfig
	MaxAttempts int
	Backoff     time.Duration
}

// Config aggregates application-wide configuration values.
type Config struct {
	DatabaseURL     string
	RedisURL        string
	AutoMigrate     bool
	JWTSecret       string
	Port            string
	TokenTTL        time.Duration
	RateLimitSearch RateLimitConfig

	// AdminEmail and AdminPassword seed the first administrator on startup.
	AdminEmail    string
	AdminPassword string

	LogLevel     string
	LogFormat    string
	LogFile      string
	SettingsFile string

	SendGridAPIKey       string
	SendGridBaseURL      string
	GoogleAPIKey         string
	GoogleSearchEngineID string

	Generation GenerationConfig
	Pipeline   PipelineConfig
	Quota      QuotaConfig
	Dispatch   DispatchConfig
}

// Load reads configuration from environment variables and applies sane defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		DatabaseURL:   v.GetString("database_url"),
		RedisURL:      v.GetString("redis_url"),
		AutoMigrate:   v.GetBool("auto_migrate"),
		JWTSecret:     v.GetString("jwt_secret"),
		Port:          v.GetString("port"),
		TokenTTL:      parseDuration(v.GetString("jwt_ttl"), 24*time.Hour),
		AdminEmail:    v.GetString("admin_email"),
		AdminPassword: v.GetString("admin_password"),
		LogLevel:      v.GetString("log_level"),
		LogFormat:     v.GetString("log_format"),
		LogFile:       v.GetString("log_file"),
		SettingsFile:  v.GetString("outreach_settings_file"),

		SendGridAPIKey:       v.GetString("sendgrid_api_key"),
		SendGridBaseURL:      v.GetString("sendgrid_base_url"),
		GoogleAPIKey:         v.GetString("google_api_key"),
		GoogleSearchEngineID: v.GetString("google_search_engine_id"),

		Generation: GenerationConfig{
			Provider:      strings.ToLower(v.GetString("generation_provider")),
			OpenAIAPIKey:  v.GetString("openai_api_key"),
			OpenAIBaseURL: v.GetString("openai_base_url"),
			OpenAIModel:   v.GetString("openai_model"),
			GeminiAPIKey:  v.GetString("gemini_api_key"),
			GeminiModel:   v.GetString("gemini_model"),
			Temperature:   v.GetFloat64("generation_temperature"),
			Timeout:       parseDuration(v.GetString("generation_timeout"), 60*time.Second),
			Concurrency:   v.GetInt("generation_concurrency"),
		},
		Pipeline: PipelineConfig{
			MinSuppliers:            v.GetInt("pipeline_min_suppliers"),
			MaxSuppliers:            v.GetInt("pipeline_max_suppliers"),
			FallbackThreshold:       v.GetInt("pipeline_fallback_threshold"),
			ReachabilityConcurrency: v.GetInt("reachability_concurrency"),
			ReachabilityTimeout:     parseDuration(v.GetString("reachability_timeout"), 10*time.Second),
			VerificationConcurrency: v.GetInt("verification_concurrency"),
			VerificationTimeout:     parseDuration(v.GetString("verification_timeout"), 12*time.Second),
		},
		Quota: QuotaConfig{
			Backend:            strings.ToLower(v.GetString("quota_backend")),
			DailyLimit:         v.GetInt("quota_daily_limit"),
			SendInterval:       parseDuration(v.GetString("quota_send_interval"), 30*time.Second),
			WarmupInitialLimit: v.GetInt("quota_warmup_initial_limit"),
			WarmupDays:         v.GetInt("quota_warmup_days"),
		},
		Dispatch: DispatchConfig{
			MaxAttempts: v.GetInt("dispatch_max_attempts"),
			Backoff:     parseDuration(v.GetString("dispatch_backoff"), 2*time.Second),
		},
	}

	rl, err := parseRateLimit(v.GetString("rate_limit_search"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SEARCH value: %w", err)
	}
	cfg.RateLimitSearch = rl

	dispatchRate, err := parseRateLimit(v.GetString("dispatch_rate"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_RATE value: %w", err)
	}
	cfg.Dispatch.Rate = dispatchRate

	if raw := strings.TrimSpace(v.GetString("quota_warmup_start")); raw != "" {
		start, err := parseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid QUOTA_WARMUP_START value: %w", err)
		}
		cfg.Quota.WarmupStart = start
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("jwt_secret", "dev-secret")
	v.SetDefault("port", "8080")
	v.SetDefault("jwt_ttl", "24h")
	v.SetDefault("auto_migrate", true)
	v.SetDefault("rate_limit_search", "5/min")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("sendgrid_base_url", "https://api.sendgrid.com")

	v.SetDefault("generation_provider", "openai")
	v.SetDefault("openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("openai_model", "gpt-4o")
	v.SetDefault("gemini_model", "gemini-2.5-flash")
	v.SetDefault("generation_temperature", 0.1)
	v.SetDefault("generation_timeout", "60s")
	v.SetDefault("generation_concurrency", 5)

	v.SetDefault("pipeline_min_suppliers", 15)
	v.SetDefault("pipeline_max_suppliers", 20)
	v.SetDefault("pipeline_fallback_threshold", 0)
	v.SetDefault("reachability_concurrency", 5)
	v.SetDefault("reachability_timeout", "10s")
	v.SetDefault("verification_concurrency", 3)
	v.SetDefault("verification_timeout", "12s")

	v.SetDefault("quota_backend", "postgres")
	v.SetDefault("quota_daily_limit", 120)
	v.SetDefault("quota_send_interval", "30s")
	v.SetDefault("quota_warmup_initial_limit", 200)
	v.SetDefault("quota_warmup_days", 14)

	v.SetDefault("dispatch_rate", "10/min")
	v.SetDefault("dispatch_max_attempts", 3)
	v.SetDefault("dispatch_backoff", "2s")
}

func (c *Config) validate() error {
	var errs []error
	if c.Pipeline.MinSuppliers < 1 || c.Pipeline.MaxSuppliers < 1 {
		errs = append(errs, errors.New("pipeline supplier bounds must be positive"))
	}
	if c.Pipeline.MinSuppliers > c.Pipeline.MaxSuppliers {
		errs = append(errs, fmt.Errorf("PIPELINE_MIN_SUPPLIERS (%d) exceeds PIPELINE_MAX_SUPPLIERS (%d)", c.Pipeline.MinSuppliers, c.Pipeline.MaxSuppliers))
	}
	if c.Quota.DailyLimit < 0 {
		errs = append(errs, errors.New("QUOTA_DAILY_LIMIT must not be negative"))
	}
	switch c.Quota.Backend {
	case "postgres", "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported QUOTA_BACKEND %q", c.Quota.Backend))
	}
	if c.Quota.Backend == "redis" && c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required when QUOTA_BACKEND=redis"))
	}
	switch c.Generation.Provider {
	case "openai", "gemini":
	default:
		errs = append(errs, fmt.Errorf("unsupported GENERATION_PROVIDER %q", c.Generation.Provider))
	}
	if c.Dispatch.MaxAttempts < 1 {
		errs = append(errs, errors.New("DISPATCH_MAX_ATTEMPTS must be at least 1"))
	}
	return errors.Join(errs...)
}

func parseRateLimit(value string) (RateLimitConfig, error) {
	parts := strings.Split(value, "/")
	if len(parts) != 2 {
		return RateLimitConfig{}, fmt.Errorf("expected format <requests>/<interval>, got %q", value)
	}

	requests, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || requests <= 0 {
		return RateLimitConfig{}, fmt.Errorf("invalid request count: %v", parts[0])
	}

	unit := strings.ToLower(strings.TrimSpace(parts[1]))
	var interval time.Duration
	switch unit {
	case "s", "sec", "second", "seconds":
		interval = time.Second
	case "m", "min", "minute", "minutes":
		interval = time.Minute
	case "h", "hr", "hour", "hours":
		interval = time.Hour
	case "d", "day", "days":
		interval = 24 * time.Hour
	default:
		return RateLimitConfig{}, fmt.Errorf("unsupported interval unit: %s", unit)
	}

	return RateLimitConfig{Requests: requests, Interval: interval}, nil
}

func parseDuration(input string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(input))
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func parseDate(input string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", input, time.Local)
}
