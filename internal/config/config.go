package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Environment    string               `mapstructure:"environment"`
	LogLevel       string               `mapstructure:"log_level"`
	Server         ServerConfig         `mapstructure:"server"`
	Redis          RedisConfig          `mapstructure:"redis"`
	MarketData     MarketDataConfig     `mapstructure:"market_data"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Simulation     SimulationConfig     `mapstructure:"simulation"`
	Telemetry      TelemetryConfig      `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// RedisConfig configures the optional shared cache for provider responses.
// When Enabled is false responses are cached in-process.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MarketDataConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	UserAgent        string        `mapstructure:"user_agent"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	InitialBackoff   time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	HistoryCacheTTL  time.Duration `mapstructure:"history_cache_ttl"`
	BenchmarkTicker  string        `mapstructure:"benchmark_ticker"`
	RiskFreeTicker   string        `mapstructure:"risk_free_ticker"`
	RiskFreeTTL      time.Duration `mapstructure:"risk_free_ttl"`
	RiskFreeDefault  float64       `mapstructure:"risk_free_default"`
	DefaultPeriod    string        `mapstructure:"default_period"`
	DefaultInterval  string        `mapstructure:"default_interval"`
	DefaultChartType string        `mapstructure:"default_chart_type"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type SimulationConfig struct {
	DefaultPaths   int                   `mapstructure:"default_paths"`
	DefaultHorizon int                   `mapstructure:"default_horizon"`
	MaxHorizon     int                   `mapstructure:"max_horizon"`
	HistoryPeriod  string                `mapstructure:"history_period"`
	Timeout        time.Duration         `mapstructure:"timeout"`
	Cache          SimulationCacheConfig `mapstructure:"cache"`
	Warm           WarmConfig            `mapstructure:"warm"`
}

// SimulationCacheConfig bounds the simulation cache. Zero values for both
// fields keep every entry for the lifetime of the process.
type SimulationCacheConfig struct {
	MaxEntries int           `mapstructure:"max_entries"`
	TTL        time.Duration `mapstructure:"ttl"`
}

type WarmConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Schedule string   `mapstructure:"schedule"`
	Tickers  []string `mapstructure:"tickers"`
	Horizons []int    `mapstructure:"horizons"`
}

type TelemetryConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Exporter       string  `mapstructure:"exporter"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"service_version"`
	SampleRate     float64 `mapstructure:"sample_rate"`
	LogsEnabled    bool    `mapstructure:"logs_enabled"`
}

func Load() (*Config, error) {
	// A missing .env is normal outside local development
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)
	config.MarketData.BenchmarkTicker = strings.ToUpper(config.MarketData.BenchmarkTicker)
	for i, ticker := range config.Simulation.Warm.Tickers {
		config.Simulation.Warm.Tickers[i] = strings.ToUpper(strings.TrimSpace(ticker))
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.MarketData.BaseURL == "" {
		return errors.New("market_data.base_url is required")
	}
	if c.MarketData.Timeout <= 0 {
		return fmt.Errorf("market_data.timeout must be positive, got %s", c.MarketData.Timeout)
	}
	if c.MarketData.MaxRetries < 0 {
		return fmt.Errorf("market_data.max_retries must not be negative, got %d", c.MarketData.MaxRetries)
	}
	if c.MarketData.InitialBackoff > c.MarketData.MaxBackoff {
		return fmt.Errorf("market_data.initial_backoff %s exceeds max_backoff %s",
			c.MarketData.InitialBackoff, c.MarketData.MaxBackoff)
	}
	if c.Simulation.DefaultPaths <= 0 {
		return fmt.Errorf("simulation.default_paths must be positive, got %d", c.Simulation.DefaultPaths)
	}
	if c.Simulation.MaxHorizon <= 0 {
		return fmt.Errorf("simulation.max_horizon must be positive, got %d", c.Simulation.MaxHorizon)
	}
	if c.Simulation.DefaultHorizon <= 0 || c.Simulation.DefaultHorizon > c.Simulation.MaxHorizon {
		return fmt.Errorf("simulation.default_horizon must be between 1 and %d, got %d",
			c.Simulation.MaxHorizon, c.Simulation.DefaultHorizon)
	}
	if c.Simulation.Cache.MaxEntries < 0 {
		return fmt.Errorf("simulation.cache.max_entries must not be negative, got %d", c.Simulation.Cache.MaxEntries)
	}
	if c.Simulation.Cache.TTL < 0 {
		return fmt.Errorf("simulation.cache.ttl must not be negative, got %s", c.Simulation.Cache.TTL)
	}
	for _, h := range c.Simulation.Warm.Horizons {
		if h <= 0 || h > c.Simulation.MaxHorizon {
			return fmt.Errorf("simulation.warm.horizons entry %d out of range 1..%d", h, c.Simulation.MaxHorizon)
		}
	}
	switch c.Telemetry.Exporter {
	case "otlp", "stdout":
	default:
		return fmt.Errorf("telemetry.exporter must be otlp or stdout, got %q", c.Telemetry.Exporter)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be within [0,1], got %v", c.Telemetry.SampleRate)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Market Data
	v.SetDefault("market_data.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("market_data.user_agent", "Mozilla/5.0")
	v.SetDefault("market_data.timeout", "15s")
	v.SetDefault("market_data.max_retries", 3)
	v.SetDefault("market_data.initial_backoff", "250ms")
	v.SetDefault("market_data.max_backoff", "4s")
	v.SetDefault("market_data.history_cache_ttl", "5m")
	v.SetDefault("market_data.benchmark_ticker", "^GSPC")
	v.SetDefault("market_data.risk_free_ticker", "^IRX")
	v.SetDefault("market_data.risk_free_ttl", "1h")
	v.SetDefault("market_data.risk_free_default", 0.04)
	v.SetDefault("market_data.default_period", "1Y")
	v.SetDefault("market_data.default_interval", "1M")
	v.SetDefault("market_data.default_chart_type", "line")

	// Circuit breaker
	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.success_threshold", 2)
	v.SetDefault("circuit_breaker.timeout", "30s")

	// Simulation
	v.SetDefault("simulation.default_paths", 10000)
	v.SetDefault("simulation.default_horizon", 30)
	v.SetDefault("simulation.max_horizon", 365)
	v.SetDefault("simulation.history_period", "5y")
	v.SetDefault("simulation.timeout", "45s")
	v.SetDefault("simulation.cache.max_entries", 128)
	v.SetDefault("simulation.cache.ttl", "6h")
	v.SetDefault("simulation.warm.enabled", false)
	v.SetDefault("simulation.warm.schedule", "0 */30 * * * *")
	v.SetDefault("simulation.warm.tickers", []string{"AAPL", "MSFT", "SPY"})
	v.SetDefault("simulation.warm.horizons", []int{30})

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "otlp")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "stockdash")
	v.SetDefault("telemetry.service_version", "1.0.0")
	v.SetDefault("telemetry.sample_rate", 0.2)
	v.SetDefault("telemetry.logs_enabled", false)
}

// RedisAddr returns the host:port address of the Redis server.
func (c RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
