// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort        string
	LogLevel          string
	CORSAllowedOrigin string

	// Identity
	IdentityHeader string
	SteamIDHeader  string

	// Outbound
	OutboundMaxSize int64

	// Steam
	SteamAPIKey       string
	SteamStoreBaseURL string
	SteamAPIBaseURL   string
	SteamStoreRPS     float64
	SteamTimeout      time.Duration

	// HowLongToBeat
	HLTBBaseURL          string
	HLTBTimeout          time.Duration
	HLTBConfigTTL        time.Duration
	HLTBShortResultHours float64

	// Metadata / Scoring
	MetadataFreshness time.Duration
	ResyncAfterDays   int
	ResyncInterval    time.Duration
	ReviewConfidence  int
	ReviewPriorScore  int

	// Sync
	SyncBatchSize          int
	SyncMaxAttempts        int
	SyncMaxRetryWait       time.Duration
	SyncInterval           time.Duration
	SyncMaxConcurrentUsers int

	// Suggestion
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAITemperature float64
	OpenAIMaxTokens   int
	OpenAITimeout     time.Duration
	SuggestCooldown   time.Duration
	SuggestSessionTTL time.Duration

	// Rate Limit
	RateLimitSweepInterval time.Duration
}

// SuggestionsEnabled は補完サービスのAPIキーが設定されているかを返す。
func (c *Config) SuggestionsEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.IdentityHeader = getEnvString("IDENTITY_HEADER", "X-User-ID")
	cfg.SteamIDHeader = getEnvString("STEAM_ID_HEADER", "X-Steam-ID")
	cfg.OutboundMaxSize = getEnvInt64("OUTBOUND_MAX_SIZE", 5242880)

	cfg.SteamAPIKey = os.Getenv("STEAM_API_KEY")
	cfg.SteamStoreBaseURL = getEnvString("STEAM_STORE_BASE_URL", "https://store.steampowered.com")
	cfg.SteamAPIBaseURL = getEnvString("STEAM_API_BASE_URL", "https://api.steampowered.com")
	cfg.SteamStoreRPS = getEnvFloat("STEAM_STORE_RPS", 1.0)
	cfg.SteamTimeout = getEnvDuration("STEAM_TIMEOUT", 15*time.Second)

	cfg.HLTBBaseURL = getEnvString("HLTB_BASE_URL", "https://howlongtobeat.com")
	cfg.HLTBTimeout = getEnvDuration("HLTB_TIMEOUT", 10*time.Second)
	cfg.HLTBConfigTTL = getEnvDuration("HLTB_CONFIG_TTL", time.Hour)
	cfg.HLTBShortResultHours = getEnvFloat("HLTB_SHORT_RESULT_HOURS", 1.0)

	cfg.MetadataFreshness = getEnvDuration("METADATA_FRESHNESS", 7*24*time.Hour)
	cfg.ResyncAfterDays = getEnvInt("RESYNC_AFTER_DAYS", 30)
	cfg.ResyncInterval = getEnvDuration("RESYNC_INTERVAL", 24*time.Hour)
	cfg.ReviewConfidence = getEnvInt("REVIEW_CONFIDENCE", 100)
	cfg.ReviewPriorScore = getEnvInt("REVIEW_PRIOR_SCORE", 70)

	cfg.SyncBatchSize = getEnvInt("SYNC_BATCH_SIZE", 3)
	cfg.SyncMaxAttempts = getEnvInt("SYNC_MAX_ATTEMPTS", 5)
	cfg.SyncMaxRetryWait = getEnvDuration("SYNC_MAX_RETRY_WAIT", 15*time.Second)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 15*time.Minute)
	cfg.SyncMaxConcurrentUsers = getEnvInt("SYNC_MAX_CONCURRENT_USERS", 2)

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = getEnvString("OPENAI_BASE_URL", "https://api.openai.com/v1")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o-mini")
	cfg.OpenAITemperature = getEnvFloat("OPENAI_TEMPERATURE", 0.7)
	cfg.OpenAIMaxTokens = getEnvInt("OPENAI_MAX_TOKENS", 300)
	cfg.OpenAITimeout = getEnvDuration("OPENAI_TIMEOUT", 30*time.Second)
	cfg.SuggestCooldown = getEnvDuration("SUGGEST_COOLDOWN", 15*time.Second)
	cfg.SuggestSessionTTL = getEnvDuration("SUGGEST_SESSION_TTL", time.Hour)

	cfg.RateLimitSweepInterval = getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
