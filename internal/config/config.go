// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/careops.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Subscription store backends.
const (
	SubscriptionStorePostgres = "postgres"
	SubscriptionStoreRedis    = "redis"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Web Push (VAPID). Push is disabled unless both keys are set.
	VAPIDPublicKey    string
	VAPIDPrivateKey   string
	VAPIDSubject      string
	PushTTLSeconds    int
	PushSendTimeout   time.Duration
	PushSendRate      float64
	SubscriptionStore string // postgres or redis
	RedisURL          string

	// Frontend origin used in notification action URLs
	FrontendOrigin string

	// Schedulers
	SchedulerLocation    *time.Location
	SchedulerCallTimeout time.Duration
	SchedulerWorkers     int
	SchedulerDeliveries  int
	InactiveThreshold    time.Duration
	RefillLowDays        float64
	WellbeingCheckHour   int
	WellbeingCheckMinute int
	NotWellThreshold     int
	NotWellWindowDays    int

	// Maintenance
	CleanupInterval    time.Duration
	CatchUpInterval    time.Duration
	SubscriptionMaxAge time.Duration
	IntakeRetention    time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}

	tz := envOr("SCHEDULER_TIMEZONE", "Local")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("SCHEDULER_TIMEZONE %q: %w", tz, err)
	}

	frontend := strings.TrimRight(envOr("FRONTEND_ORIGIN", "http://localhost:5173"), "/")

	cfg := &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{frontend}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		VAPIDPublicKey:    envOr("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey:   envOr("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:      envOr("VAPID_SUBJECT", "mailto:support@elderlycare.example"),
		PushTTLSeconds:    envInt("PUSH_TTL_SECONDS", 3600),
		PushSendTimeout:   envDuration("PUSH_SEND_TIMEOUT_SECONDS", 15*time.Second),
		PushSendRate:      envFloat("PUSH_SEND_RATE", 50),
		SubscriptionStore: strings.ToLower(envOr("PUSH_SUBSCRIPTION_STORE", SubscriptionStorePostgres)),
		RedisURL:          envOr("REDIS_URL", ""),

		FrontendOrigin: frontend,

		SchedulerLocation:    loc,
		SchedulerCallTimeout: envDuration("SCHEDULER_CALL_TIMEOUT_SECONDS", 30*time.Second),
		SchedulerWorkers:     envInt("SCHEDULER_WORKERS", 8),
		SchedulerDeliveries:  envInt("SCHEDULER_DELIVERIES", 64),
		InactiveThreshold:    time.Duration(envInt("INACTIVE_THRESHOLD_HOURS", 24)) * time.Hour,
		RefillLowDays:        envFloat("REFILL_LOW_DAYS", 7),
		WellbeingCheckHour:   envInt("WELLBEING_CHECK_HOUR", 9),
		WellbeingCheckMinute: envInt("WELLBEING_CHECK_MINUTE", 0),
		NotWellThreshold:     envInt("NOT_WELL_THRESHOLD", 3),
		NotWellWindowDays:    envInt("NOT_WELL_WINDOW_DAYS", 7),

		CleanupInterval:    time.Duration(envInt("CLEANUP_INTERVAL_MINUTES", 360)) * time.Minute,
		CatchUpInterval:    time.Duration(envInt("CATCHUP_INTERVAL_MINUTES", 15)) * time.Minute,
		SubscriptionMaxAge: time.Duration(envInt("SUBSCRIPTION_MAX_AGE_DAYS", 180)) * 24 * time.Hour,
		IntakeRetention:    time.Duration(envInt("INTAKE_RETENTION_DAYS", 90)) * 24 * time.Hour,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.InactiveThreshold <= 0 {
		return fmt.Errorf("INACTIVE_THRESHOLD_HOURS must be positive, got %v", c.InactiveThreshold)
	}
	if c.RefillLowDays < 0 {
		return fmt.Errorf("REFILL_LOW_DAYS must not be negative, got %v", c.RefillLowDays)
	}
	if c.SchedulerWorkers <= 0 {
		return fmt.Errorf("SCHEDULER_WORKERS must be positive, got %d", c.SchedulerWorkers)
	}
	if c.SchedulerDeliveries <= 0 {
		return fmt.Errorf("SCHEDULER_DELIVERIES must be positive, got %d", c.SchedulerDeliveries)
	}
	if c.NotWellThreshold <= 0 || c.NotWellWindowDays <= 0 {
		return fmt.Errorf("NOT_WELL_THRESHOLD and NOT_WELL_WINDOW_DAYS must be positive")
	}
	if c.WellbeingCheckHour < 0 || c.WellbeingCheckHour > 23 {
		return fmt.Errorf("WELLBEING_CHECK_HOUR must be 0-23, got %d", c.WellbeingCheckHour)
	}
	if c.WellbeingCheckMinute < 0 || c.WellbeingCheckMinute > 59 {
		return fmt.Errorf("WELLBEING_CHECK_MINUTE must be 0-59, got %d", c.WellbeingCheckMinute)
	}
	switch c.SubscriptionStore {
	case SubscriptionStorePostgres:
	case SubscriptionStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when PUSH_SUBSCRIPTION_STORE=redis")
		}
	default:
		return fmt.Errorf("PUSH_SUBSCRIPTION_STORE must be postgres or redis, got %q", c.SubscriptionStore)
	}
	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// PushEnabled reports whether VAPID credentials are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDuration reads a whole number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
