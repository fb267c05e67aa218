package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string         `yaml:"environment" env:"ENVIRONMENT" default:"development"`
	Log         LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Server      ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Metrics     MetricsConfig  `yaml:"metrics" envPrefix:"METRICS_"`
	Pipeline    PipelineConfig `yaml:"pipeline" envPrefix:"PIPELINE_"`
	Storage     StorageConfig  `yaml:"storage" envPrefix:"STORAGE_"`
	Ingest      IngestConfig   `yaml:"ingest" envPrefix:"INGEST_"`
	Kafka       KafkaConfig    `yaml:"kafka" envPrefix:"KAFKA_"`
	ClickHouse  ClickHouse     `yaml:"clickhouse" envPrefix:"CLICKHOUSE_"`
	Finnhub     FinnhubConfig  `yaml:"finnhub" envPrefix:"FINNHUB_"`
	Cache       CacheConfig    `yaml:"cache" envPrefix:"CACHE_"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL" default:"info"`
	Format string `yaml:"format" env:"FORMAT" default:"json"`
	Output string `yaml:"output" env:"OUTPUT" default:"stdout"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" default:"10s"`
	SlowRequest     time.Duration `yaml:"slow_request" env:"SLOW_REQUEST" default:"1s"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:"," default:"[\"*\"]"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

// PipelineConfig drives the tick -> merged series runs.
type PipelineConfig struct {
	Symbols       []string      `yaml:"symbols" env:"SYMBOLS" envSeparator:","`
	Source        string        `yaml:"source" env:"SOURCE" default:"clickhouse"`
	BaseTimeframe string        `yaml:"base_timeframe" env:"BASE_TIMEFRAME" default:"1m"`
	Intervals     []int         `yaml:"intervals" env:"INTERVALS" envSeparator:"," default:"[15,60]"`
	Interpolation string        `yaml:"interpolation" env:"INTERPOLATION" default:"nearest"`
	Lookback      time.Duration `yaml:"lookback" env:"LOOKBACK" default:"24h"`
	Schedule      string        `yaml:"schedule" env:"SCHEDULE"`
	RunOnStart    bool          `yaml:"run_on_start" env:"RUN_ON_START"`
	Workers       int           `yaml:"workers" env:"WORKERS" default:"4"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT" default:"2m"`
	Publish       bool          `yaml:"publish" env:"PUBLISH"`
}

type StorageConfig struct {
	Type       string `yaml:"type" env:"TYPE" default:"sqlite"`
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH" default:"data/finbars.db"`
}

// IngestConfig controls the live Finnhub -> Kafka -> ClickHouse tick path.
type IngestConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	BatchSize    int           `yaml:"batch_size" env:"BATCH_SIZE" default:"500"`
	BatchTimeout time.Duration `yaml:"batch_timeout" env:"BATCH_TIMEOUT" default:"1s"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" env:"BROKERS" envSeparator:","`
	TickTopic    string        `yaml:"tick_topic" env:"TICK_TOPIC" default:"finbars.ticks"`
	SeriesTopic  string        `yaml:"series_topic" env:"SERIES_TOPIC" default:"finbars.merged"`
	RequiredAcks int           `yaml:"required_acks" env:"REQUIRED_ACKS" default:"-1"`
	Compression  string        `yaml:"compression" env:"COMPRESSION" default:"snappy"`
	Producer     KafkaProducer `yaml:"producer" envPrefix:"PRODUCER_"`
	Consumer     KafkaConsumer `yaml:"consumer" envPrefix:"CONSUMER_"`
}

type KafkaProducer struct {
	MaxAttempts  int           `yaml:"max_attempts" env:"MAX_ATTEMPTS" default:"3"`
	Linger       time.Duration `yaml:"linger" env:"LINGER" default:"10ms"`
	BatchBytes   int           `yaml:"batch_bytes" env:"BATCH_BYTES" default:"1048576"`
	BatchSize    int           `yaml:"batch_size" env:"BATCH_SIZE" default:"100"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" default:"10s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" default:"10s"`
	Async        bool          `yaml:"async" env:"ASYNC"`
}

type KafkaConsumer struct {
	GroupID    string        `yaml:"group_id" env:"GROUP_ID" default:"finbars-ticks"`
	Workers    int           `yaml:"workers" env:"WORKERS" default:"4"`
	BufferSize int           `yaml:"buffer_size" env:"BUFFER_SIZE" default:"256"`
	RetryMax   int           `yaml:"retry_max" env:"RETRY_MAX" default:"3"`
	BackoffMin time.Duration `yaml:"backoff_min" env:"BACKOFF_MIN" default:"100ms"`
	BackoffMax time.Duration `yaml:"backoff_max" env:"BACKOFF_MAX" default:"5s"`
	DLQTopic   string        `yaml:"dlq_topic" env:"DLQ_TOPIC"`
	MinBytes   int           `yaml:"min_bytes" env:"MIN_BYTES" default:"1"`
	MaxBytes   int           `yaml:"max_bytes" env:"MAX_BYTES" default:"10485760"`
}

type ClickHouse struct {
	Host             string        `yaml:"host" env:"HOST" default:"localhost"`
	Port             int           `yaml:"port" env:"PORT" default:"9000"`
	Database         string        `yaml:"database" env:"DATABASE" default:"finbars"`
	User             string        `yaml:"user" env:"USER" default:"default"`
	Password         string        `yaml:"password" env:"PASSWORD"`
	UseHTTP          bool          `yaml:"use_http" env:"USE_HTTP"`
	AsyncInsert      bool          `yaml:"async_insert" env:"ASYNC_INSERT"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert" env:"WAIT_FOR_ASYNC_INSERT"`
	DialTimeout      time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" env:"MAX_EXECUTION_TIME" default:"60s"`
}

type FinnhubConfig struct {
	APIKey         string        `yaml:"api_key" env:"API_KEY"`
	BaseURL        string        `yaml:"base_url" env:"BASE_URL" default:"https://finnhub.io/api/v1"`
	WebSocketURL   string        `yaml:"websocket_url" env:"WEBSOCKET_URL" default:"wss://ws.finnhub.io"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" default:"15s"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" env:"RECONNECT_DELAY" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" env:"PING_INTERVAL" default:"30s"`
}

type CacheConfig struct {
	TTL   time.Duration `yaml:"ttl" env:"TTL" default:"1m"`
	Redis RedisConfig   `yaml:"redis" envPrefix:"REDIS_"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Addr     string `yaml:"addr" env:"ADDR" default:"localhost:6379"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// Load reads and parses a YAML configuration file, fills defaults and validates.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML, then applies .env and environment
// overrides (prefix FINBARS_, e.g. FINBARS_PIPELINE_SYMBOLS=AAPL,MSFT).
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}

	_ = godotenv.Load()

	if err := env.ParseWithOptions(c, env.Options{Prefix: "FINBARS_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	return &c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return errors.New("environment is required")
	}
	if len(c.Pipeline.Symbols) == 0 {
		return errors.New("pipeline.symbols cannot be empty")
	}
	switch c.Pipeline.Source {
	case "clickhouse":
	case "finnhub":
		if c.Finnhub.APIKey == "" {
			return errors.New("finnhub.api_key is required for source 'finnhub'")
		}
	default:
		return fmt.Errorf("pipeline.source must be 'clickhouse' or 'finnhub', got '%s'", c.Pipeline.Source)
	}
	if err := ValidateIntervals(c.Pipeline.Intervals); err != nil {
		return fmt.Errorf("pipeline.intervals: %w", err)
	}
	switch strings.ToLower(c.Pipeline.Interpolation) {
	case "nearest", "previous":
	default:
		return fmt.Errorf("pipeline.interpolation must be 'nearest' or 'previous', got '%s'", c.Pipeline.Interpolation)
	}
	if c.Pipeline.Lookback <= 0 {
		return errors.New("pipeline.lookback must be positive")
	}
	if c.Pipeline.Workers < 1 {
		return errors.New("pipeline.workers must be at least 1")
	}
	switch c.Storage.Type {
	case "clickhouse":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for storage 'sqlite'")
		}
	default:
		return fmt.Errorf("storage.type must be 'clickhouse' or 'sqlite', got '%s'", c.Storage.Type)
	}
	if (c.Ingest.Enabled || c.Pipeline.Publish) && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when ingest or publish is enabled")
	}
	if c.Ingest.Enabled && c.Finnhub.APIKey == "" {
		return errors.New("finnhub.api_key is required when ingest is enabled")
	}
	return nil
}

// ValidateIntervals requires positive, unique minute intervals.
func ValidateIntervals(intervals []int) error {
	if len(intervals) == 0 {
		return errors.New("at least one interval is required")
	}
	seen := make(map[int]struct{}, len(intervals))
	for _, iv := range intervals {
		if iv <= 0 {
			return fmt.Errorf("interval %d must be positive", iv)
		}
		if _, dup := seen[iv]; dup {
			return fmt.Errorf("interval %d listed twice", iv)
		}
		seen[iv] = struct{}{}
	}
	return nil
}

// SortedIntervals returns a sorted copy of intervals.
func SortedIntervals(intervals []int) []int {
	out := append([]int(nil), intervals...)
	sort.Ints(out)
	return out
}
