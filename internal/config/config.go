// Package config provides environment-aware configuration for the Policy
// Service, modeled on the service layer's own config loader.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config holds all Policy Service configuration.
type Config struct {
	Env Environment

	// Endpoints
	PolicyEndpointSocket     string
	CompositorEndpointSocket string
	AdminListenAddr          string
	MetricsListenAddr        string

	// Logging
	LogLevel  string
	LogFormat string

	// Grant store bounds (N apps, K grants/app, M audit slots)
	MaxApps        int
	MaxGrantsPerApp int
	AuditRingSize  int

	// Consent timeouts per risk level
	ConsentTimeoutLow      time.Duration
	ConsentTimeoutMedium   time.Duration
	ConsentTimeoutHigh     time.Duration
	ConsentTimeoutCritical time.Duration

	// Rate limiting (requests per identity)
	RateLimitBurst      int
	RateLimitPerSecond  float64

	// Sweeper
	SweepInterval time.Duration

	// Optional durable audit mirror
	AuditArchiveDSN     string
	AuditArchiveEnabled bool

	// Optional audit pub/sub mirror
	RedisAddr       string
	RedisChannel    string
	RedisEnabled    bool

	// Kernel signing
	KernelJWTPublicKeyPath string
}

// Load builds a Config from environment variables, optionally loading a
// local .env file first (ignored if absent).
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                      Environment(getEnv("POLICYD_ENV", string(Development))),
		PolicyEndpointSocket:     getEnv("POLICYD_SOCKET", "/run/kozo/system.policy.sock"),
		CompositorEndpointSocket: getEnv("POLICYD_COMPOSITOR_SOCKET", "/run/kozo/system.compositor.sock"),
		AdminListenAddr:          getEnv("POLICYD_ADMIN_ADDR", "127.0.0.1:7701"),
		MetricsListenAddr:        getEnv("POLICYD_METRICS_ADDR", "127.0.0.1:7702"),

		LogLevel:  getEnv("POLICYD_LOG_LEVEL", "info"),
		LogFormat: getEnv("POLICYD_LOG_FORMAT", "json"),

		MaxApps:         getEnvInt("POLICYD_MAX_APPS", 128),
		MaxGrantsPerApp: getEnvInt("POLICYD_MAX_GRANTS_PER_APP", 32),
		AuditRingSize:   getEnvInt("POLICYD_AUDIT_RING_SIZE", 64),

		ConsentTimeoutLow:      getEnvDuration("POLICYD_CONSENT_TIMEOUT_LOW", 30*time.Second),
		ConsentTimeoutMedium:   getEnvDuration("POLICYD_CONSENT_TIMEOUT_MEDIUM", 20*time.Second),
		ConsentTimeoutHigh:     getEnvDuration("POLICYD_CONSENT_TIMEOUT_HIGH", 15*time.Second),
		ConsentTimeoutCritical: getEnvDuration("POLICYD_CONSENT_TIMEOUT_CRITICAL", 10*time.Second),

		RateLimitBurst:     getEnvInt("POLICYD_RATE_LIMIT_BURST", 5),
		RateLimitPerSecond: getEnvFloat("POLICYD_RATE_LIMIT_PER_SECOND", 1.0),

		SweepInterval: getEnvDuration("POLICYD_SWEEP_INTERVAL", 30*time.Second),

		AuditArchiveDSN:     getEnv("POLICYD_AUDIT_ARCHIVE_DSN", ""),
		AuditArchiveEnabled: getEnvBool("POLICYD_AUDIT_ARCHIVE_ENABLED", false),

		RedisAddr:    getEnv("POLICYD_REDIS_ADDR", ""),
		RedisChannel: getEnv("POLICYD_REDIS_CHANNEL", "policy.audit"),
		RedisEnabled: getEnvBool("POLICYD_REDIS_ENABLED", false),

		KernelJWTPublicKeyPath: getEnv("POLICYD_KERNEL_JWT_PUBKEY", ""),
	}

	return cfg
}

// ConsentTimeout returns the configured consent timeout for an integer risk
// level (0=Low..3=Critical), matching internal/risk.Level's ordering.
func (c *Config) ConsentTimeout(level int) time.Duration {
	switch level {
	case 0:
		return c.ConsentTimeoutLow
	case 1:
		return c.ConsentTimeoutMedium
	case 2:
		return c.ConsentTimeoutHigh
	case 3:
		return c.ConsentTimeoutCritical
	default:
		return c.ConsentTimeoutMedium
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Validate checks that bounds are sane (positive, non-zero).
func (c *Config) Validate() error {
	if c.MaxApps <= 0 {
		return fmt.Errorf("config: max apps must be positive")
	}
	if c.MaxGrantsPerApp <= 0 {
		return fmt.Errorf("config: max grants per app must be positive")
	}
	if c.AuditRingSize <= 0 {
		return fmt.Errorf("config: audit ring size must be positive")
	}
	return nil
}
