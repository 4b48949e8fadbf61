package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Data source
	DataSource string // "mock" or "real"
	// MockSeed seeds the synthetic source. Zero picks a random seed.
	MockSeed int64
	GammaURL string
	CLOBURL  string
	WSURL    string

	// Ingestion
	PollInterval     time.Duration
	ChunkSize        int
	MaxConcurrency   int
	MarketLimit      int
	MetadataTTL      time.Duration
	BookTTL          time.Duration
	MinFlushInterval time.Duration
	MaxRetries       int
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	RequestTimeout   time.Duration
	StreamEnabled    bool

	// Rule engine
	EvalInterval        time.Duration
	LookbackSecs        int
	RulesDir            string
	SynonymsPath        string
	BreakerMax          int
	BreakerCooldownSecs int

	// Execution policy defaults
	ExecMode                string
	ExecMaxNotionalPerOrder float64
	ExecMaxConcurrentOrders int
	ExecMaxDailyNotional    float64
	ExecSlippageBPS         int
	ExecDefaultTTLSecs      int

	// Alerting
	TelegramEnabled  bool
	TelegramBotToken string
	TelegramChatID   string

	// API
	AdminAPIToken string

	// Storage
	StorageMode  string // "postgres" or "memory"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		DataSource: getEnvOrDefault("DATA_SOURCE", "mock"),
		MockSeed:   getInt64OrDefault("MOCK_SEED", 0),
		GammaURL:   getEnvOrDefault("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		CLOBURL:    getEnvOrDefault("POLYMARKET_CLOB_API_URL", "https://clob.polymarket.com"),
		WSURL:      getEnvOrDefault("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),

		PollInterval:     getDurationOrDefault("INGEST_POLL_INTERVAL", 2*time.Second),
		ChunkSize:        getIntOrDefault("INGEST_CHUNK_SIZE", 10),
		MaxConcurrency:   getIntOrDefault("INGEST_MAX_CONCURRENCY", 3),
		MarketLimit:      getIntOrDefault("INGEST_MARKET_LIMIT", 200),
		MetadataTTL:      getDurationOrDefault("INGEST_METADATA_TTL", 2*time.Minute),
		BookTTL:          getDurationOrDefault("INGEST_BOOK_TTL", 5*time.Second),
		MinFlushInterval: getDurationOrDefault("INGEST_MIN_FLUSH_INTERVAL", 15*time.Second),
		MaxRetries:       getIntOrDefault("INGEST_MAX_RETRIES", 3),
		BackoffBase:      getDurationOrDefault("INGEST_BACKOFF_BASE", 500*time.Millisecond),
		BackoffMax:       getDurationOrDefault("INGEST_BACKOFF_MAX", 30*time.Second),
		RequestTimeout:   getDurationOrDefault("VENUE_REQUEST_TIMEOUT", 10*time.Second),
		StreamEnabled:    getBoolOrDefault("STREAM_ENABLED", false),

		EvalInterval:        getDurationOrDefault("RULES_EVAL_INTERVAL", 2*time.Second),
		LookbackSecs:        getIntOrDefault("RULES_LOOKBACK_SECS", 300),
		RulesDir:            getEnvOrDefault("RULES_DIR", "configs/rules"),
		SynonymsPath:        getEnvOrDefault("SYNONYMS_PATH", "configs/synonyms.yaml"),
		BreakerMax:          getIntOrDefault("RULES_BREAKER_MAX", 5),
		BreakerCooldownSecs: getIntOrDefault("RULES_BREAKER_COOLDOWN_SECS", 300),

		ExecMode:                getEnvOrDefault("EXEC_MODE", "semi_auto"),
		ExecMaxNotionalPerOrder: getFloat64OrDefault("EXEC_MAX_NOTIONAL_PER_ORDER", 200.0),
		ExecMaxConcurrentOrders: getIntOrDefault("EXEC_MAX_CONCURRENT_ORDERS", 2),
		ExecMaxDailyNotional:    getFloat64OrDefault("EXEC_MAX_DAILY_NOTIONAL", 1000.0),
		ExecSlippageBPS:         getIntOrDefault("EXEC_SLIPPAGE_BPS", 80),
		ExecDefaultTTLSecs:      getIntOrDefault("EXEC_DEFAULT_TTL_SECS", 60),

		TelegramEnabled:  getBoolOrDefault("TELEGRAM_ENABLED", false),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),

		AdminAPIToken: os.Getenv("ADMIN_API_TOKEN"),

		StorageMode:  getEnvOrDefault("STORAGE_MODE", "memory"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "marketpulse"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "marketpulse123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "marketpulse"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.DataSource != "mock" && c.DataSource != "real" {
		return fmt.Errorf("DATA_SOURCE must be 'mock' or 'real', got %q", c.DataSource)
	}

	if c.StorageMode != "postgres" && c.StorageMode != "memory" {
		return fmt.Errorf("STORAGE_MODE must be 'postgres' or 'memory', got %q", c.StorageMode)
	}

	if c.ExecMode != "semi_auto" && c.ExecMode != "manual" && c.ExecMode != "auto" {
		return fmt.Errorf("EXEC_MODE must be 'semi_auto', 'manual' or 'auto', got %q", c.ExecMode)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("INGEST_CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}

	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("INGEST_MAX_CONCURRENCY must be positive, got %d", c.MaxConcurrency)
	}

	if c.ExecSlippageBPS < 0 {
		return fmt.Errorf("EXEC_SLIPPAGE_BPS cannot be negative, got %d", c.ExecSlippageBPS)
	}

	if c.ExecMaxNotionalPerOrder <= 0 {
		return fmt.Errorf("EXEC_MAX_NOTIONAL_PER_ORDER must be positive, got %f", c.ExecMaxNotionalPerOrder)
	}

	return nil
}

// MockSeedOrRandom returns the configured synthetic-source seed, or a
// time-derived one when MOCK_SEED is unset. A fixed seed makes mock
// runs reproducible.
func (c *Config) MockSeedOrRandom() int64 {
	if c.MockSeed != 0 {
		return c.MockSeed
	}
	return time.Now().UnixNano()
}

// PostgresDSN builds the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPass, c.PostgresDB, c.PostgresSSL,
	)
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
