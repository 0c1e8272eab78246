// Package config provides environment configuration for the engine.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all configuration for the engine.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Storage settings
	DataDir       string
	HistoryDBFile string
	ProvidersFile string
	WatchCatalog  bool

	// NATS settings (event journal; disabled when URL is empty)
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Completion defaults
	DefaultTemperature      float64
	DefaultMaxTokens        int
	DefaultTopP             float64
	DefaultFrequencyPenalty float64
	DefaultPresencePenalty  float64
	HistoryWindow           int

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	dataDir := getEnv("DATA_DIR", defaultDataDir())

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8390"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 300*time.Second),

		// Storage
		DataDir:       dataDir,
		HistoryDBFile: getEnv("HISTORY_DB_FILE", filepath.Join(dataDir, "history.db")),
		ProvidersFile: getEnv("PROVIDERS_FILE", filepath.Join(dataDir, "providers.toml")),
		WatchCatalog:  getBoolEnv("WATCH_PROVIDERS_FILE", true),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Completion defaults
		DefaultTemperature:      getFloatEnv("DEFAULT_TEMPERATURE", 0.7),
		DefaultMaxTokens:        getIntEnv("DEFAULT_MAX_TOKENS", 4096),
		DefaultTopP:             getFloatEnv("DEFAULT_TOP_P", 1.0),
		DefaultFrequencyPenalty: getFloatEnv("DEFAULT_FREQUENCY_PENALTY", 0),
		DefaultPresencePenalty:  getFloatEnv("DEFAULT_PRESENCE_PENALTY", 0),
		HistoryWindow:           getIntEnv("HISTORY_WINDOW", 50),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".quillchat")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
