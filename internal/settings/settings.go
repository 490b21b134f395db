// Package settings holds process-wide configuration read once from the environment.
package settings

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Logging controls the zap logger construction.
type Logging struct {
	Level        string
	Format       string
	ColorEnabled bool
}

// Poller controls polling defaults shared by every chain unless overridden.
type Poller struct {
	DefaultInterval          string
	MaxFailureBackoffSeconds int
	RPCRequestTimeoutSeconds float64
	WarmPollEnabled          bool
	WarmPollTimeoutSeconds   float64
}

// Health controls readiness staleness.
type Health struct {
	ReadinessStaleThresholdSeconds int
}

// Server controls the two HTTP listener ports.
type Server struct {
	HealthPort  int
	MetricsPort int
}

// Config controls where the chain configuration file is resolved from.
type Config struct {
	ConfigPathEnv        string
	DefaultConfigName    string
}

// ResolveConfigPath returns the file path to load configuration from.
func (c Config) ResolveConfigPath() (string, error) {
	if c.ConfigPathEnv != "" {
		info, err := os.Stat(c.ConfigPathEnv)
		if err == nil && info.IsDir() {
			return filepath.Join(c.ConfigPathEnv, c.DefaultConfigName), nil
		}
		abs, err := filepath.Abs(c.ConfigPathEnv)
		if err != nil {
			return c.ConfigPathEnv, nil
		}
		return abs, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return c.DefaultConfigName, nil
	}
	return filepath.Join(cwd, c.DefaultConfigName), nil
}

// Settings is the full set of process-wide, environment-derived configuration.
type Settings struct {
	Logging Logging
	Poller  Poller
	Health  Health
	Server  Server
	Config  Config
}

// FromEnvironment reads Settings from the process environment, applying defaults.
func FromEnvironment() Settings {
	return Settings{
		Logging: Logging{
			Level:        strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
			Format:       strings.ToLower(getEnv("LOG_FORMAT", "text")),
			ColorEnabled: getEnvBool("LOG_COLOR_ENABLED", true),
		},
		Poller: Poller{
			DefaultInterval:          getEnv("POLL_DEFAULT_INTERVAL", "5m"),
			MaxFailureBackoffSeconds: getEnvInt("MAX_FAILURE_BACKOFF_SECONDS", 900),
			RPCRequestTimeoutSeconds: getEnvFloat("RPC_REQUEST_TIMEOUT_SECONDS", 10.0),
			WarmPollEnabled:          getEnvBool("WARM_POLL_ENABLED", false),
			WarmPollTimeoutSeconds:   getEnvFloat("WARM_POLL_TIMEOUT_SECONDS", 30.0),
		},
		Health: Health{
			ReadinessStaleThresholdSeconds: getEnvInt("READINESS_STALE_THRESHOLD_SECONDS", 300),
		},
		Server: Server{
			HealthPort:  getEnvInt("HEALTH_PORT", 8080),
			MetricsPort: getEnvInt("METRICS_PORT", 9100),
		},
		Config: Config{
			ConfigPathEnv:     os.Getenv("BLOCKCHAIN_EXPORTER_CONFIG_PATH"),
			DefaultConfigName: "config.toml",
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
