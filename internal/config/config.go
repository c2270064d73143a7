// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	ingestkafka "github.com/iamjai-3/clickhouse-kafka-streaming/internal/kafka"
	"github.com/iamjai-3/clickhouse-kafka-streaming/internal/storage/clickhouse"
	"github.com/iamjai-3/clickhouse-kafka-streaming/pkg/backoff"
)

// -----------------------------------------------------------------------------
// Структуры
// -----------------------------------------------------------------------------

type Config struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`

	Kafka      KafkaConfig       `mapstructure:"kafka"`
	ClickHouse clickhouse.Config `mapstructure:"clickhouse"`
	Telemetry  TelemetryConfig   `mapstructure:"telemetry"`
	Logging    LoggingConfig     `mapstructure:"logging"`
	HTTP       HTTPConfig        `mapstructure:"http"`
}

type KafkaConfig struct {
	Brokers       []string      `mapstructure:"brokers"`
	GroupID       string        `mapstructure:"group_id"`
	Version       string        `mapstructure:"version"`
	UsersTopic    string        `mapstructure:"users_topic"`
	ProductsTopic string        `mapstructure:"products_topic"`
	OrdersTopic   string        `mapstructure:"orders_topic"`
	DLQTopic      string        `mapstructure:"dlq_topic"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Acks          string        `mapstructure:"acks"`
	Compression   string        `mapstructure:"compression"`

	Backoff backoff.Config         `mapstructure:"backoff"`
	Gate    ingestkafka.GateConfig `mapstructure:"gate"`
}

// Topics возвращает все входные топики для подписки.
func (k KafkaConfig) Topics() []string {
	return []string{k.UsersTopic, k.ProductsTopic, k.OrdersTopic}
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otel_endpoint"`
	Insecure     bool   `mapstructure:"insecure"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	DevMode bool   `mapstructure:"dev_mode"`
}

type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MetricsPath     string        `mapstructure:"metrics_path"`
	HealthzPath     string        `mapstructure:"healthz_path"`
	ReadyzPath      string        `mapstructure:"readyz_path"`
}

// -----------------------------------------------------------------------------
// Load
// -----------------------------------------------------------------------------

func Load(path string) (*Config, error) {
	v := viper.New()

	/* ---------- 1) defaults ---------- */

	v.SetDefault("service_name", "ingestor")
	v.SetDefault("service_version", "v1.0.0")

	// Kafka
	v.SetDefault("kafka.brokers", []string{"localhost:9094"})
	v.SetDefault("kafka.group_id", "clickhouse-consumer-group")
	v.SetDefault("kafka.version", "2.8.0")
	v.SetDefault("kafka.users_topic", "users-topic")
	v.SetDefault("kafka.products_topic", "products-topic")
	v.SetDefault("kafka.orders_topic", "orders-topic")
	v.SetDefault("kafka.dlq_topic", "dlq-topic")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.flush_interval", "1s")
	v.SetDefault("kafka.timeout", "15s")
	v.SetDefault("kafka.acks", "all")
	v.SetDefault("kafka.compression", "none")
	v.SetDefault("kafka.backoff.randomization_factor", 0.5)
	v.SetDefault("kafka.gate.initial_delay", "1s")
	v.SetDefault("kafka.gate.multiplier", 1.5)
	v.SetDefault("kafka.gate.max_delay", "5s")
	v.SetDefault("kafka.gate.max_retries", 15)

	// ClickHouse
	v.SetDefault("clickhouse.addr", "localhost:9000")
	v.SetDefault("clickhouse.database", "test")
	v.SetDefault("clickhouse.username", "admin")
	v.SetDefault("clickhouse.password", "admin123")
	v.SetDefault("clickhouse.dial_timeout", "5s")

	// Telemetry
	v.SetDefault("telemetry.otel_endpoint", "otel-collector:4317")
	v.SetDefault("telemetry.insecure", false)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dev_mode", false)

	// HTTP
	v.SetDefault("http.port", 8090)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.shutdown_timeout", "5s")
	v.SetDefault("http.metrics_path", "/metrics")
	v.SetDefault("http.healthz_path", "/healthz")
	v.SetDefault("http.readyz_path", "/readyz")

	/* ---------- 2) env ---------- */

	v.SetEnvPrefix("INGESTOR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	/* ---------- 3) optional file ---------- */

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	/* ---------- 4) decode ---------- */

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		func(f, t reflect.Kind, data interface{}) (interface{}, error) {
			if f == reflect.String && t == reflect.Bool {
				return strconv.ParseBool(data.(string))
			}
			return data, nil
		},
	)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "mapstructure",
		Result:     &cfg,
		DecodeHook: decodeHook,
	})
	if err != nil {
		return nil, fmt.Errorf("create config decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	/* ---------- 5) validate ---------- */

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// -----------------------------------------------------------------------------
// Validation helpers
// -----------------------------------------------------------------------------

func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version is required")
	}

	// kafka
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("kafka.group_id is required")
	}
	for _, t := range []struct{ key, val string }{
		{"kafka.users_topic", c.Kafka.UsersTopic},
		{"kafka.products_topic", c.Kafka.ProductsTopic},
		{"kafka.orders_topic", c.Kafka.OrdersTopic},
		{"kafka.dlq_topic", c.Kafka.DLQTopic},
	} {
		if t.val == "" {
			return fmt.Errorf("%s is required", t.key)
		}
	}
	if c.Kafka.BatchSize <= 0 {
		return fmt.Errorf("kafka.batch_size must be > 0")
	}
	if c.Kafka.FlushInterval <= 0 {
		return fmt.Errorf("kafka.flush_interval must be > 0")
	}
	switch strings.ToLower(c.Kafka.Acks) {
	case "all", "leader", "none":
	default:
		return fmt.Errorf("kafka.acks must be one of [all, leader, none]")
	}
	switch strings.ToLower(c.Kafka.Compression) {
	case "none", "gzip", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("kafka.compression must be one of [none, gzip, snappy, lz4, zstd]")
	}

	// clickhouse
	if c.ClickHouse.Addr == "" {
		return fmt.Errorf("clickhouse.addr is required")
	}
	if c.ClickHouse.Database == "" {
		return fmt.Errorf("clickhouse.database is required")
	}

	// telemetry
	if c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry.otel_endpoint is required")
	}

	// logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error]")
	}

	return validateHTTP(&c.HTTP)
}

func validateHTTP(h *HTTPConfig) error {
	if h.Port <= 0 || h.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535")
	}
	durations := map[string]time.Duration{
		"http.read_timeout":     h.ReadTimeout,
		"http.write_timeout":    h.WriteTimeout,
		"http.idle_timeout":     h.IdleTimeout,
		"http.shutdown_timeout": h.ShutdownTimeout,
	}
	for k, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", k)
		}
	}
	paths := map[string]string{
		"http.metrics_path": h.MetricsPath,
		"http.healthz_path": h.HealthzPath,
		"http.readyz_path":  h.ReadyzPath,
	}
	for k, p := range paths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with '/'", k)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Debug print
// -----------------------------------------------------------------------------

func (c *Config) Print() {
	b, _ := json.MarshalIndent(c, "", "  ")
	fmt.Println("Loaded configuration:\n", string(b))
}
