package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Journal       JournalConfig
	Engine        EngineConfig
	Binance       BinanceConfig
	OKX           OKXConfig
	Observability ObservabilityConfig
}

// JournalConfig sizes and locates the memory-mapped ring buffers the
// Bridge writes to and downstream processes read from.
type JournalConfig struct {
	MarketDataPath string
	MarketDataSize int64
	OrdersPath     string
	OrdersSize     int64
	BusySpinCount  int
	IdleSleep      time.Duration
}

// EngineConfig tunes the Event Engine's dispatch mode.
type EngineConfig struct {
	ParallelWorkers int
	QueueCapacity   int
}

// BinanceConfig carries REST/WS endpoints and credentials for the Binance
// adapter. Testnet routes to Binance's public testnet endpoints.
type BinanceConfig struct {
	APIKey            string
	SecretKey         string
	BaseURL           string
	WSBaseURL         string
	Testnet           bool
	Symbols           []string
	RESTRatePerSecond float64
}

// OKXConfig carries REST/WS endpoints and credentials for the OKX adapter.
// Demo routes to OKX's paper-trading gateway via the x-simulated-trading
// header.
type OKXConfig struct {
	APIKey            string
	SecretKey         string
	Passphrase        string
	WSPublicURL       string
	WSBusinessURL     string
	WSPrivateURL      string
	Demo              bool
	Symbols           []string
	RESTRatePerSecond float64
}

// ObservabilityConfig configures logging, tracing, and metrics sinks.
type ObservabilityConfig struct {
	JaegerEndpoint string
	ServiceName    string
	ServiceVersion string
	LogLevel       string
	LogFormat      string
	MetricsEnabled bool
	MetricsPort    int
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Journal: JournalConfig{
			MarketDataPath: getEnv("JOURNAL_MARKET_DATA_PATH", "/tmp/eventbus/market-data.journal"),
			MarketDataSize: int64(getIntEnv("JOURNAL_MARKET_DATA_SIZE_BYTES", 128*1024*1024)),
			OrdersPath:     getEnv("JOURNAL_ORDERS_PATH", "/tmp/eventbus/orders.journal"),
			OrdersSize:     int64(getIntEnv("JOURNAL_ORDERS_SIZE_BYTES", 32*1024*1024)),
			BusySpinCount:  getIntEnv("JOURNAL_READER_BUSY_SPIN_COUNT", 1000),
			IdleSleep:      getDurationEnv("JOURNAL_READER_IDLE_SLEEP", time.Microsecond),
		},
		Engine: EngineConfig{
			ParallelWorkers: getIntEnv("ENGINE_PARALLEL_WORKERS", 1),
			QueueCapacity:   getIntEnv("ENGINE_QUEUE_CAPACITY", 4096),
		},
		Binance: BinanceConfig{
			APIKey:            getEnv("BINANCE_API_KEY", ""),
			SecretKey:         getEnv("BINANCE_SECRET_KEY", ""),
			BaseURL:           getEnv("BINANCE_BASE_URL", ""),
			WSBaseURL:         getEnv("BINANCE_WS_BASE_URL", ""),
			Testnet:           getBoolEnv("BINANCE_TESTNET", false),
			Symbols:           getSliceEnv("BINANCE_SYMBOLS", []string{"BTCUSDT", "ETHUSDT"}),
			RESTRatePerSecond: getFloatEnv("BINANCE_REST_RATE_PER_SECOND", 10),
		},
		OKX: OKXConfig{
			APIKey:            getEnv("OKX_API_KEY", ""),
			SecretKey:         getEnv("OKX_SECRET_KEY", ""),
			Passphrase:        getEnv("OKX_PASSPHRASE", ""),
			WSPublicURL:       getEnv("OKX_WS_PUBLIC_URL", ""),
			WSBusinessURL:     getEnv("OKX_WS_BUSINESS_URL", ""),
			WSPrivateURL:      getEnv("OKX_WS_PRIVATE_URL", ""),
			Demo:              getBoolEnv("OKX_DEMO", false),
			Symbols:           getSliceEnv("OKX_SYMBOLS", []string{"BTC-USDT", "ETH-USDT"}),
			RESTRatePerSecond: getFloatEnv("OKX_REST_RATE_PER_SECOND", 10),
		},
		Observability: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "eventbus"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getBoolEnv("METRICS_ENABLED", true),
			MetricsPort:    getIntEnv("METRICS_PORT", 9090),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Journal.MarketDataPath == c.Journal.OrdersPath {
		return fmt.Errorf("JOURNAL_MARKET_DATA_PATH and JOURNAL_ORDERS_PATH must differ")
	}
	if len(c.Binance.Symbols) == 0 && len(c.OKX.Symbols) == 0 {
		return fmt.Errorf("at least one of BINANCE_SYMBOLS or OKX_SYMBOLS must be set")
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
