package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server (status/reporting API)
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Execution venue bridge
	Venue VenueConfig

	// Exit engine
	Engine EngineConfig

	// Telegram notifications
	Telegram TelegramConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// VenueConfig holds execution venue bridge configuration
// 브리지는 포지션/주문 원시 연산만 노출하는 외부 협력자
type VenueConfig struct {
	BaseURL   string // REST endpoint of the terminal bridge
	StreamURL string // websocket quote stream, empty disables streaming
	APIKey    string
	Timeout   time.Duration // per-call timeout, seconds not minutes
	RateLimit float64       // venue calls per second
}

// EngineConfig holds exit engine parameters
type EngineConfig struct {
	CycleInterval time.Duration // evaluation cadence (default 30s)
	ATRTimeframe  string        // e.g. M15
	ATRPeriod     int           // lookback bars

	// Transient venue failures
	MaxRetries int
	RetryDelay time.Duration

	// Tightening-class action limits
	TightenCooldown    time.Duration // per-ticket cooldown window
	TightenATRFraction float64       // minimum improvement as fraction of ATR

	// Hybrid stop widening (one-shot, elevated volatility at rule creation)
	FearIndexThreshold float64
	HybridWidenFactor  float64 // initial risk multiplier, e.g. 1.3

	// Critical exit / loss-side veto
	CriticalWarningThreshold float64
	VetoWarningThreshold     float64
	VetoStopProbability      float64

	// Policy-disallowed surfacing
	DisallowedNotifyCycles int
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Enabled  bool
	BotToken string
	ChatID   string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8099"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Venue bridge
		Venue: VenueConfig{
			BaseURL:   getEnv("VENUE_BASE_URL", "http://localhost:8787"),
			StreamURL: getEnv("VENUE_STREAM_URL", ""),
			APIKey:    getEnv("VENUE_API_KEY", ""),
			Timeout:   getEnvAsDuration("VENUE_TIMEOUT", "10s"),
			RateLimit: getEnvAsFloat("VENUE_RATE_LIMIT", 5.0),
		},

		// Engine
		Engine: EngineConfig{
			CycleInterval:            getEnvAsDuration("ENGINE_CYCLE_INTERVAL", "30s"),
			ATRTimeframe:             getEnv("ENGINE_ATR_TIMEFRAME", "M15"),
			ATRPeriod:                getEnvAsInt("ENGINE_ATR_PERIOD", 14),
			MaxRetries:               getEnvAsInt("ENGINE_MAX_RETRIES", 3),
			RetryDelay:               getEnvAsDuration("ENGINE_RETRY_DELAY", "500ms"),
			TightenCooldown:          getEnvAsDuration("ENGINE_TIGHTEN_COOLDOWN", "5m"),
			TightenATRFraction:       getEnvAsFloat("ENGINE_TIGHTEN_ATR_FRACTION", 0.1),
			FearIndexThreshold:       getEnvAsFloat("ENGINE_FEAR_THRESHOLD", 30.0),
			HybridWidenFactor:        getEnvAsFloat("ENGINE_HYBRID_WIDEN_FACTOR", 1.3),
			CriticalWarningThreshold: getEnvAsFloat("ENGINE_CRITICAL_THRESHOLD", 0.8),
			VetoWarningThreshold:     getEnvAsFloat("ENGINE_VETO_WARNING_THRESHOLD", 0.4),
			VetoStopProbability:      getEnvAsFloat("ENGINE_VETO_STOP_PROBABILITY", 0.70),
			DisallowedNotifyCycles:   getEnvAsInt("ENGINE_DISALLOWED_NOTIFY_CYCLES", 20),
		},

		// Telegram
		Telegram: TelegramConfig{
			Enabled:  getEnvAsBool("TELEGRAM_ENABLED", false),
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Engine.CycleInterval < time.Second {
		return fmt.Errorf("ENGINE_CYCLE_INTERVAL must be at least 1s")
	}

	// 타임아웃은 초 단위여야 함 (분 단위 블로킹은 전체 보호 루프를 멈춤)
	if c.Venue.Timeout > time.Minute {
		return fmt.Errorf("VENUE_TIMEOUT must be under 1m")
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID are required when TELEGRAM_ENABLED=true")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
