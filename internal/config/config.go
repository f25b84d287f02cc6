package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

	Rollup RollupConfig

	// AdminAddr is the listen address of the health/metrics server. Empty disables it.
	AdminAddr string
}

// RollupConfig describes how the coprocessor reaches the rollup HTTP server.
type RollupConfig struct {
	ServerURL string
	// Timeout bounds each HTTP call. Zero means calls block until the server answers.
	Timeout time.Duration
	// IdleBackoff is the first wait after a finish call reports nothing pending.
	// Zero keeps the loop busy-polling.
	IdleBackoff    time.Duration
	IdleBackoffMax time.Duration
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPolicyHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	idleBackoff := getenvDuration("ROLLUP_IDLE_BACKOFF", 0)
	idleBackoffMax := getenvDuration("ROLLUP_IDLE_BACKOFF_MAX", 2*time.Second)
	if idleBackoffMax < idleBackoff {
		idleBackoffMax = idleBackoff
	}

	return Config{
		AppName:      getenv("APP_SERVICE", "subscription-coprocessor"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		Rollup: RollupConfig{
			ServerURL:      strings.TrimRight(strings.TrimSpace(getenv("ROLLUP_HTTP_SERVER_URL", "http://127.0.0.1:5004")), "/"),
			Timeout:        getenvDuration("ROLLUP_HTTP_TIMEOUT", 0),
			IdleBackoff:    idleBackoff,
			IdleBackoffMax: idleBackoffMax,
		},
		AdminAddr: strings.TrimSpace(getenvAllowEmpty("ADMIN_ADDR", ":8080")),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getenvAllowEmpty distinguishes an unset variable from one explicitly set to "".
func getenvAllowEmpty(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed >= 0 {
		return parsed
	}
	// bare integers are milliseconds
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
