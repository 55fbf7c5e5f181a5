// Package config loads the pipeline configuration from defaults, an optional
// YAML file and CANDLES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"market-candle-lab/internal/domain"
	"market-candle-lab/internal/logger"
	"market-candle-lab/internal/retry"
)

// EnvPrefix is the environment variable prefix, e.g. CANDLES_PIPELINE_SKIP_COMPLETED.
const EnvPrefix = "CANDLES"

// Candle store backends.
const (
	BackendFiles      = "files"
	BackendClickhouse = "clickhouse"
)

// Config is the validated, immutable pipeline configuration.
type Config struct {
	Exchange   string           `mapstructure:"exchange"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Clickhouse ClickhouseConfig `mapstructure:"clickhouse"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Retry      retry.Config     `mapstructure:"retry"`
	Logging    logger.Config    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// StorageConfig locates the object store and chooses the candle backend.
type StorageConfig struct {
	DataDir      string `mapstructure:"data_dir"`
	Backend      string `mapstructure:"backend"` // files | clickhouse
	RowGroupSize int    `mapstructure:"row_group_size"`
}

// PostgresConfig configures the registry, availability and run-ledger database.
// An empty DSN selects the in-memory implementations.
type PostgresConfig struct {
	DSN            string        `mapstructure:"dsn"`
	MaxConns       int32         `mapstructure:"max_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// ClickhouseConfig configures the clickhouse candle backend.
type ClickhouseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// KafkaConfig configures completion events.
type KafkaConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Brokers []string      `mapstructure:"brokers"`
	Topic   string        `mapstructure:"topic"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MetricsConfig configures the /metrics listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// PipelineConfig holds the candle pipeline settings.
type PipelineConfig struct {
	BaseTimeframes          []string            `mapstructure:"base_timeframes"`
	AggregateTimeframes     []string            `mapstructure:"aggregate_timeframes"`
	BookTimeframes          []string            `mapstructure:"book_timeframes"`
	BaseFeeds               []string            `mapstructure:"base_feeds"`
	EmissionLatency         time.Duration       `mapstructure:"emission_latency"`
	MaxConcurrentDays       int                 `mapstructure:"max_concurrent_days"`
	MaxConcurrentUnits      int                 `mapstructure:"max_concurrent_units"`
	MaxConcurrentTimeframes int                 `mapstructure:"max_concurrent_timeframes"`
	BookBatchSize           int                 `mapstructure:"book_batch_size"`
	SkipCompleted           bool                `mapstructure:"skip_completed"`
	RequiredDataTypes       map[string][]string `mapstructure:"required_data_types"` // instrument type -> data types
}

func registerDefaults(v *viper.Viper) {
	v.SetDefault("exchange", "deribit")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.backend", BackendFiles)
	v.SetDefault("storage.row_group_size", 100_000)
	v.SetDefault("postgres.max_conns", 8)
	v.SetDefault("postgres.connect_timeout", "10s")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "candles.unit_completed")
	v.SetDefault("kafka.timeout", "5s")
	v.SetDefault("pipeline.base_timeframes", []string{"15s", "1m"})
	v.SetDefault("pipeline.aggregate_timeframes", []string{"5m", "15m", "1h", "4h", "24h"})
	v.SetDefault("pipeline.book_timeframes", []string{"15s", "1m", "5m", "15m", "1h", "4h", "24h"})
	v.SetDefault("pipeline.base_feeds", []string{
		string(domain.DataTypeTrades), string(domain.DataTypeLiquidations), string(domain.DataTypeDerivativeTicker),
	})
	v.SetDefault("pipeline.emission_latency", "200ms")
	v.SetDefault("pipeline.max_concurrent_days", 1)
	v.SetDefault("pipeline.max_concurrent_units", 4)
	v.SetDefault("pipeline.max_concurrent_timeframes", 4)
	v.SetDefault("pipeline.book_batch_size", 8192)
	v.SetDefault("pipeline.skip_completed", false)
	v.SetDefault("pipeline.required_data_types", map[string][]string{
		string(domain.InstrumentSpot):      {string(domain.DataTypeTrades)},
		string(domain.InstrumentPerpetual): {string(domain.DataTypeTrades), string(domain.DataTypeDerivativeTicker)},
		string(domain.InstrumentFuture):    {string(domain.DataTypeTrades), string(domain.DataTypeDerivativeTicker)},
		string(domain.InstrumentOption):    {string(domain.DataTypeTrades)},
	})
	v.SetDefault("retry.initial_interval", "200ms")
	v.SetDefault("retry.max_interval", "10s")
	v.SetDefault("retry.max_retries", 5)
	v.SetDefault("retry.per_attempt_timeout", "2m")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dev_mode", false)
}

// Load reads defaults, then path (if not empty), then the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	registerDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}

	var cfg Config
	if err := decode(v, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// decode unmarshals every known key. AllSettings only lists keys that have a
// default or file value, so env-only overrides are resolved per key via Get.
func decode(v *viper.Viper, out *Config) error {
	settings := make(map[string]interface{})
	for _, key := range v.AllKeys() {
		setNested(settings, strings.Split(key, "."), v.Get(key))
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "mapstructure",
		Result:  out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			stringToBoolHook,
		),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(settings)
}

func setNested(m map[string]interface{}, path []string, val interface{}) {
	for _, p := range path[:len(path)-1] {
		next, ok := m[p].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			m[p] = next
		}
		m = next
	}
	m[path[len(path)-1]] = val
}

func stringToBoolHook(f, t reflect.Kind, data interface{}) (interface{}, error) {
	if f == reflect.String && t == reflect.Bool {
		return strconv.ParseBool(data.(string))
	}
	return data, nil
}

// Validate checks every section. Called by Load.
func (c *Config) Validate() error {
	if c.Exchange == "" {
		return errors.New("exchange is required")
	}
	switch c.Storage.Backend {
	case BackendFiles:
	case BackendClickhouse:
		if c.Clickhouse.DSN == "" {
			return errors.New("clickhouse.dsn is required for the clickhouse backend")
		}
	default:
		return fmt.Errorf("storage.backend %q: want %s or %s", c.Storage.Backend, BackendFiles, BackendClickhouse)
	}
	if c.Storage.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if c.Storage.RowGroupSize <= 0 {
		return errors.New("storage.row_group_size must be > 0")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.New("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	if err := c.Pipeline.validate(); err != nil {
		return err
	}
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

func (p *PipelineConfig) validate() error {
	base, err := ParseTimeframes(p.BaseTimeframes)
	if err != nil {
		return fmt.Errorf("pipeline.base_timeframes: %w", err)
	}
	for _, tf := range base {
		if !tf.IsBase() {
			return fmt.Errorf("pipeline.base_timeframes: %s is not a base timeframe", tf)
		}
	}
	hasRollupSource := false
	for _, tf := range base {
		hasRollupSource = hasRollupSource || tf == domain.RollupSource
	}

	agg, err := ParseTimeframes(p.AggregateTimeframes)
	if err != nil {
		return fmt.Errorf("pipeline.aggregate_timeframes: %w", err)
	}
	for _, tf := range agg {
		if tf.IsBase() {
			return fmt.Errorf("pipeline.aggregate_timeframes: %s is a base timeframe", tf)
		}
	}
	if len(agg) > 0 && !hasRollupSource {
		return fmt.Errorf("pipeline: aggregate timeframes need %s in base_timeframes", domain.RollupSource)
	}
	if _, err := ParseTimeframes(p.BookTimeframes); err != nil {
		return fmt.Errorf("pipeline.book_timeframes: %w", err)
	}

	for _, dt := range p.BaseFeeds {
		d, err := domain.ParseDataType(dt)
		if err != nil {
			return fmt.Errorf("pipeline.base_feeds: %w", err)
		}
		if d == domain.DataTypeBookSnapshot5 {
			return fmt.Errorf("pipeline.base_feeds: %s feeds the book sampler, not base candles", d)
		}
	}

	if p.EmissionLatency < 0 {
		return errors.New("pipeline.emission_latency must be >= 0")
	}
	if p.MaxConcurrentDays <= 0 || p.MaxConcurrentUnits <= 0 || p.MaxConcurrentTimeframes <= 0 {
		return errors.New("pipeline: concurrency limits must be > 0")
	}
	if p.BookBatchSize <= 0 {
		return errors.New("pipeline.book_batch_size must be > 0")
	}
	for typ, dts := range p.RequiredDataTypes {
		if !domain.InstrumentType(typ).IsValid() {
			return fmt.Errorf("pipeline.required_data_types: unknown instrument type %q", typ)
		}
		for _, dt := range dts {
			if _, err := domain.ParseDataType(dt); err != nil {
				return fmt.Errorf("pipeline.required_data_types[%s]: %w", typ, err)
			}
		}
	}
	return nil
}

// ParseTimeframes parses and de-duplicates names, preserving order.
func ParseTimeframes(names []string) ([]domain.Timeframe, error) {
	out := make([]domain.Timeframe, 0, len(names))
	seen := make(map[domain.Timeframe]bool, len(names))
	for _, n := range names {
		tf, err := domain.ParseTimeframe(strings.TrimSpace(n))
		if err != nil {
			return nil, err
		}
		if !seen[tf] {
			seen[tf] = true
			out = append(out, tf)
		}
	}
	return out, nil
}

// Requirements converts RequiredDataTypes into typed form.
func (p *PipelineConfig) Requirements() map[domain.InstrumentType][]domain.DataType {
	out := make(map[domain.InstrumentType][]domain.DataType, len(p.RequiredDataTypes))
	for typ, dts := range p.RequiredDataTypes {
		for _, dt := range dts {
			out[domain.InstrumentType(typ)] = append(out[domain.InstrumentType(typ)], domain.DataType(dt))
		}
	}
	return out
}

// Feeds converts BaseFeeds into typed form.
func (p *PipelineConfig) Feeds() []domain.DataType {
	out := make([]domain.DataType, 0, len(p.BaseFeeds))
	for _, dt := range p.BaseFeeds {
		out = append(out, domain.DataType(dt))
	}
	return out
}

// EmissionLatencyUs returns the emission latency in microseconds.
func (p *PipelineConfig) EmissionLatencyUs() int64 {
	return p.EmissionLatency.Microseconds()
}
