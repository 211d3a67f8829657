package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Reset scopes applied when a fare query completes.
const (
	ResetScopeUser = "user"
	ResetScopeAll  = "all"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// LINE Messaging API
	LineChannelSecret      string
	LineChannelAccessToken string
	LineAPIBaseURL         string

	// TDX transit data directory
	TDXClientID     string
	TDXClientSecret string
	TDXBaseURL      string
	TDXTokenURL     string
	TDXTimeout      time.Duration

	// Station lookup cache (optional)
	RedisAddr       string
	RedisPassword   string
	RedisTLS        bool
	StationCacheTTL time.Duration

	// ResetScope controls which dialogues are cleared when a fare query
	// completes: "user" (default) or "all".
	ResetScope string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		LineChannelSecret:      getEnv("LINE_CHANNEL_SECRET", ""),
		LineChannelAccessToken: getEnv("LINE_CHANNEL_ACCESS_TOKEN", ""),
		LineAPIBaseURL:         getEnv("LINE_API_BASE_URL", "https://api.line.me"),

		TDXClientID:     getEnv("TDX_CLIENT_ID", ""),
		TDXClientSecret: getEnv("TDX_CLIENT_SECRET", ""),
		TDXBaseURL:      getEnv("TDX_BASE_URL", "https://tdx.transportdata.tw/api/basic/v2"),
		TDXTokenURL:     getEnv("TDX_TOKEN_URL", "https://tdx.transportdata.tw/auth/realms/TDXConnect/protocol/openid-connect/token"),
		TDXTimeout:      getEnvAsDuration("TDX_TIMEOUT", 10*time.Second),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisTLS:        getEnvAsBool("REDIS_TLS", false),
		StationCacheTTL: getEnvAsDuration("STATION_CACHE_TTL", 24*time.Hour),

		ResetScope: parseResetScope(getEnv("RESET_SCOPE", ResetScopeUser)),
	}
}

func parseResetScope(raw string) string {
	if strings.ToLower(strings.TrimSpace(raw)) == ResetScopeAll {
		return ResetScopeAll
	}
	return ResetScopeUser
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}
