package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development"`
	Server      ServerConfig     `yaml:"server"`
	Log         LogConfig        `yaml:"log"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Data        DataConfig       `yaml:"data"`
	Simulator   SimulatorConfig  `yaml:"simulator"`
	Broadcast   BroadcastConfig  `yaml:"broadcast"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Queue       QueueConfig      `yaml:"queue"`
	Notifier    NotifierConfig   `yaml:"notifier"`
	Alerts      AlertsConfig     `yaml:"alerts"`
	RateLimit   RateLimitConfig  `yaml:"ratelimit"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	StreamOrigins   []string      `yaml:"stream_origins"`
	StreamBuffer    int           `yaml:"stream_buffer" default:"256"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"json"`
	Output string `yaml:"output" default:"stdout"`
	// ErrorTopic enables the error digest when set and Kafka brokers exist.
	ErrorTopic       string        `yaml:"error_topic"`
	ErrorFlush       time.Duration `yaml:"error_flush" default:"30s"`
	ErrorMaxDistinct int           `yaml:"error_max_distinct" default:"100"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type DataConfig struct {
	PropertiesFile string `yaml:"properties_file" default:"data/properties.yaml"`
	// Portfolios maps a user id to the property ids they hold.
	Portfolios map[string][]string `yaml:"portfolios"`
}

type SimulatorConfig struct {
	Volatility       float64       `yaml:"volatility" default:"0.02"`
	BaseFrequency    time.Duration `yaml:"base_frequency" default:"3s"`
	Multiplier       float64       `yaml:"multiplier" default:"1"`
	TickerInterval   time.Duration `yaml:"ticker_interval" default:"2s"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval" default:"1m"`
	HistoryRetention time.Duration `yaml:"history_retention" default:"1h"`
	Seed             int64         `yaml:"seed"`
}

type BroadcastConfig struct {
	Backend      string        `yaml:"backend" default:"none"` // kafka, clickhouse or none
	MaxRPS       int           `yaml:"max_rps" default:"50"`
	BufferSize   int           `yaml:"buffer_size" default:"2000"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic" default:"estate.market.updates"`
	RequiredAcks int           `yaml:"required_acks" default:"1"`
	Compression  string        `yaml:"compression" default:"snappy"`
	Producer     KafkaProducer `yaml:"producer"`
	Consumer     KafkaConsumer `yaml:"consumer"`
}

type KafkaProducer struct {
	MaxAttempts  int           `yaml:"max_attempts" default:"3"`
	Linger       time.Duration `yaml:"linger" default:"10ms"`
	BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	Async        bool          `yaml:"async"`
}

type KafkaConsumer struct {
	Enabled    bool          `yaml:"enabled"`
	GroupID    string        `yaml:"group_id" default:"estatedesk-alerts"`
	Workers    int           `yaml:"workers" default:"4"`
	BufferSize int           `yaml:"buffer_size" default:"1000"`
	RetryMax   int           `yaml:"retry_max" default:"3"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
	DLQTopic   string        `yaml:"dlq_topic" default:"estate.market.updates.dlq"`
	MinBytes   int           `yaml:"min_bytes" default:"1"`
	MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"estatedesk"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr" default:"localhost:6379"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix" default:"estatedesk"`
	TTL       time.Duration `yaml:"ttl" default:"720h"`
}

type QueueConfig struct {
	Workers    int           `yaml:"workers" default:"2"`
	RetryLimit int           `yaml:"retry_limit" default:"3"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"5s"`
	Prefix     string        `yaml:"prefix" default:"estatedesk:queue"`
}

type NotifierConfig struct {
	WebhookURL string                   `yaml:"webhook_url"`
	Timeout    time.Duration            `yaml:"timeout" default:"5s"`
	Channels   map[string]ChannelConfig `yaml:"channels"`
}

type ChannelConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Destination string   `yaml:"destination"`
	Priorities  []string `yaml:"priorities"`
}

type AlertsConfig struct {
	// Minimum gap between alert re-evaluations driven by market updates.
	CheckInterval time.Duration `yaml:"check_interval" default:"5s"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" default:"20"`
	Burst int     `yaml:"burst" default:"40"`
}

// Load reads a YAML file on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from the environment. lookup has the signature
// of os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		return v, ok && v != ""
	}

	if v, ok := get("ESTATEDESK_ENV"); ok {
		c.Environment = v
	}
	if v, ok := get("ESTATEDESK_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ESTATEDESK_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := get("PROPERTIES_FILE"); ok {
		c.Data.PropertiesFile = v
	}
	if v, ok := get("BROADCAST_BACKEND"); ok {
		c.Broadcast.Backend = v
	}
	if v, ok := get("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = splitList(v)
	}
	if v, ok := get("KAFKA_TOPIC"); ok {
		c.Kafka.Topic = v
	}
	if v, ok := get("REDIS_ADDR"); ok {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v, ok := get("CLICKHOUSE_HOST"); ok {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v, ok := get("NOTIFIER_WEBHOOK_URL"); ok {
		c.Notifier.WebhookURL = v
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Data.PropertiesFile == "" {
		return fmt.Errorf("data.properties_file is required")
	}
	switch c.Broadcast.Backend {
	case "none":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when broadcast.backend is kafka")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when broadcast.backend is kafka")
		}
	case "clickhouse":
		if !c.ClickHouse.Enabled {
			return fmt.Errorf("clickhouse.enabled must be true when broadcast.backend is clickhouse")
		}
	default:
		return fmt.Errorf("broadcast.backend must be 'kafka', 'clickhouse' or 'none', got '%s'", c.Broadcast.Backend)
	}
	if c.Kafka.Consumer.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when the consumer is enabled")
	}
	if c.Simulator.Volatility < 0.001 || c.Simulator.Volatility > 0.15 {
		return fmt.Errorf("simulator.volatility must be within [0.001, 0.15], got %v", c.Simulator.Volatility)
	}
	if c.Simulator.Multiplier < 0.1 || c.Simulator.Multiplier > 10 {
		return fmt.Errorf("simulator.multiplier must be within [0.1, 10], got %v", c.Simulator.Multiplier)
	}
	if c.Simulator.BaseFrequency <= 0 || c.Simulator.TickerInterval <= 0 {
		return fmt.Errorf("simulator intervals must be positive")
	}
	for name := range c.Notifier.Channels {
		switch name {
		case "email", "sms", "webhook":
		default:
			return fmt.Errorf("notifier.channels: unknown channel %q", name)
		}
	}
	return nil
}

// Addr returns host:port for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
