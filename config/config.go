package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Binance    BinanceConfig    `mapstructure:"binance"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Durable    DurableConfig    `mapstructure:"durable"`
	Server     ServerConfig     `mapstructure:"server"`
	Poller     PollerConfig     `mapstructure:"poller"`
	Log        LogConfig        `mapstructure:"log"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
}

type BinanceConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	WS   WSConfig   `mapstructure:"ws"`
}

type RESTConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RequestsPerSec int           `mapstructure:"requests_per_sec"`
}

type WSConfig struct {
	URL          string        `mapstructure:"url"` // combined stream endpoint, e.g. wss://fstream.binance.com/stream
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	PingInterval time.Duration `mapstructure:"ping_interval"` // keepalive ping period
	GraceWindow  time.Duration `mapstructure:"grace_window"`  // added to ping_interval for the read deadline
	DepthSpeed   string        `mapstructure:"depth_speed"`   // optional depth suffix: "", "100ms", "250ms", "500ms"
}

// PipelineConfig controls how symbols are split into pipelines and how each one reconnects.
type PipelineConfig struct {
	Symbols          []string      `mapstructure:"symbols"`            // static symbol list
	DiscoverSymbols  bool          `mapstructure:"discover_symbols"`   // load USDT perpetuals from REST instead
	MaxSymbols       int           `mapstructure:"max_symbols"`        // cap for discovered symbols (0 = no cap)
	SymbolsPerStream int           `mapstructure:"symbols_per_stream"` // symbols multiplexed on one connection
	Streams          []string      `mapstructure:"streams"`            // subset of: depth, trade, aggTrade, forceOrder
	QueueSize        int           `mapstructure:"queue_size"`
	EnqueueTimeout   time.Duration `mapstructure:"enqueue_timeout"`
	Backoff          BackoffConfig `mapstructure:"backoff"`
	RestartPolicy    string        `mapstructure:"restart_policy"` // "restart" or "terminate"
	RestartDelay     time.Duration `mapstructure:"restart_delay"`
}

type BackoffConfig struct {
	Min        time.Duration `mapstructure:"min"`
	Max        time.Duration `mapstructure:"max"`
	Factor     float64       `mapstructure:"factor"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type AggregatorConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// CacheConfig selects the expiring snapshot store and the TTL per event kind.
type CacheConfig struct {
	Backend      string        `mapstructure:"backend"` // "redis" or "badger"
	RedisURL     string        `mapstructure:"redis_url"`
	BadgerDir    string        `mapstructure:"badger_dir"` // empty = in-memory
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	TTL          TTLConfig     `mapstructure:"ttl"`
}

type TTLConfig struct {
	OrderBook    time.Duration `mapstructure:"orderbook"`
	TradeVolume  time.Duration `mapstructure:"trade_volume"`
	Liquidation  time.Duration `mapstructure:"liquidation"`
	FundingRate  time.Duration `mapstructure:"funding_rate"`
	OpenInterest time.Duration `mapstructure:"open_interest"`
}

type DurableConfig struct {
	Backend      string        `mapstructure:"backend"` // "postgres" or "memory"
	CreateDB     bool          `mapstructure:"create_db"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	WSPath      string `mapstructure:"ws_path"`
	MetricsPath string `mapstructure:"metrics_path"`
	SendBuffer  int    `mapstructure:"send_buffer"` // per-subscriber outbound queue
}

type PollerConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	Symbols              []string      `mapstructure:"symbols"` // empty = pipeline symbols
	FundingRateInterval  time.Duration `mapstructure:"funding_rate_interval"`
	OpenInterestInterval time.Duration `mapstructure:"open_interest_interval"`
	OrderBookInterval    time.Duration `mapstructure:"orderbook_interval"`
	OrderBookDepth       int           `mapstructure:"orderbook_depth"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.rest.base_url", "https://fapi.binance.com")
	v.SetDefault("binance.rest.timeout", 10*time.Second)
	v.SetDefault("binance.rest.requests_per_sec", 10)
	v.SetDefault("binance.ws.url", "wss://fstream.binance.com/stream")
	v.SetDefault("binance.ws.dial_timeout", 10*time.Second)
	v.SetDefault("binance.ws.ping_interval", 30*time.Second)
	v.SetDefault("binance.ws.grace_window", 10*time.Second)

	v.SetDefault("pipeline.symbols", []string{"BTCUSDT"})
	v.SetDefault("pipeline.symbols_per_stream", 50)
	v.SetDefault("pipeline.streams", []string{"depth", "trade", "forceOrder"})
	v.SetDefault("pipeline.queue_size", 1024)
	v.SetDefault("pipeline.enqueue_timeout", 250*time.Millisecond)
	v.SetDefault("pipeline.backoff.min", 5*time.Second)
	v.SetDefault("pipeline.backoff.max", 60*time.Second)
	v.SetDefault("pipeline.backoff.factor", 2.0)
	v.SetDefault("pipeline.backoff.max_retries", 5)
	v.SetDefault("pipeline.restart_policy", "restart")
	v.SetDefault("pipeline.restart_delay", 60*time.Second)

	v.SetDefault("aggregator.flush_interval", time.Second)

	v.SetDefault("cache.backend", "redis")
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.write_timeout", 2*time.Second)
	v.SetDefault("cache.ttl.orderbook", 10*time.Second)
	v.SetDefault("cache.ttl.trade_volume", 10*time.Second)
	v.SetDefault("cache.ttl.liquidation", 10*time.Second)
	v.SetDefault("cache.ttl.funding_rate", time.Hour)
	v.SetDefault("cache.ttl.open_interest", time.Hour)

	v.SetDefault("durable.backend", "postgres")
	v.SetDefault("durable.write_timeout", 2*time.Second)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.ws_path", "/ws/realtime")
	v.SetDefault("server.metrics_path", "/metrics")
	v.SetDefault("server.send_buffer", 256)

	v.SetDefault("poller.funding_rate_interval", time.Minute)
	v.SetDefault("poller.open_interest_interval", time.Minute)
	v.SetDefault("poller.orderbook_interval", 10*time.Second)
	v.SetDefault("poller.orderbook_depth", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
}

// Load loads application configuration using Viper.
// It reads from the given file (or config.yaml next to the binary when empty)
// and overrides with MARKETSTREAM_ prefixed environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // config.yaml
		v.SetConfigType("yaml")

		ex, _ := os.Executable()
		if strings.Contains(ex, "go-build") {
			pwd, _ := os.Getwd()
			v.AddConfigPath(filepath.Join(pwd, "../../config"))
		} else {
			v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
		}
		v.AddConfigPath("./config")
	}

	// Support environment variables with dot notation (e.g., MARKETSTREAM_BINANCE_WS_URL)
	v.SetEnvPrefix("MARKETSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.Pipeline.Symbols) == 0 && !c.Pipeline.DiscoverSymbols {
		return errors.New("config: pipeline.symbols is empty and discovery is disabled")
	}
	if c.Pipeline.SymbolsPerStream <= 0 {
		return errors.New("config: pipeline.symbols_per_stream must be positive")
	}
	if len(c.Pipeline.Streams) == 0 {
		return errors.New("config: pipeline.streams is empty")
	}
	if c.Aggregator.FlushInterval <= 0 {
		return errors.New("config: aggregator.flush_interval must be positive")
	}
	b := c.Pipeline.Backoff
	if b.Min <= 0 || b.Max < b.Min {
		return fmt.Errorf("config: invalid backoff range [%s, %s]", b.Min, b.Max)
	}
	if b.MaxRetries < 0 {
		return errors.New("config: pipeline.backoff.max_retries must not be negative")
	}
	switch c.Pipeline.RestartPolicy {
	case "restart", "terminate":
	default:
		return fmt.Errorf("config: unknown restart_policy %q", c.Pipeline.RestartPolicy)
	}
	switch c.Cache.Backend {
	case "redis", "badger":
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	switch c.Durable.Backend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown durable backend %q", c.Durable.Backend)
	}
	return nil
}
