// Package config loads senseval settings from defaults, an optional YAML
// file and SENSEVAL_* environment variables, in that order of precedence.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/ricesearch/senseval/internal/pkg/errors"
)

// Values accepted by Validate.
var (
	ValidMetrics    = []string{"jaccard", "gamma", "exact", "wndcg"}
	ValidLogLevels  = []string{"debug", "info", "warn", "error"}
	ValidLogFormats = []string{"text", "json"}
	ValidBusTypes   = []string{"none", "memory", "kafka"}
)

// Config is the full senseval configuration.
type Config struct {
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Log        LogConfig        `yaml:"log"`
	Bus        BusConfig        `yaml:"bus"`
	History    HistoryConfig    `yaml:"history"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// EvaluationConfig holds cross-validation settings.
type EvaluationConfig struct {
	Folds     int    `envconfig:"SENSEVAL_FOLDS" yaml:"folds"`
	Seed      uint64 `envconfig:"SENSEVAL_SEED" yaml:"seed"`
	Workers   int    `envconfig:"SENSEVAL_WORKERS" yaml:"workers"`
	Metric    string `envconfig:"SENSEVAL_METRIC" yaml:"metric"`
	Remapping bool   `envconfig:"SENSEVAL_REMAPPING" yaml:"remapping"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"SENSEVAL_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"SENSEVAL_LOG_FORMAT" yaml:"format"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"SENSEVAL_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"SENSEVAL_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"SENSEVAL_KAFKA_GROUP" yaml:"kafka_group"`
	Topic        string `envconfig:"SENSEVAL_BUS_TOPIC" yaml:"topic"`
	EventLog     string `envconfig:"SENSEVAL_EVENT_LOG" yaml:"event_log"` // JSON lines copy of published events
}

// HistoryConfig holds run history settings. An empty RedisURL disables
// history.
type HistoryConfig struct {
	RedisURL string `envconfig:"SENSEVAL_REDIS_URL" yaml:"redis_url"`
	TTLHours int    `envconfig:"SENSEVAL_HISTORY_TTL_HOURS" yaml:"ttl_hours"`
}

// MetricsConfig holds metrics export settings. An empty File disables the
// export.
type MetricsConfig struct {
	File string `envconfig:"SENSEVAL_METRICS_FILE" yaml:"file"`
}

// Load returns the defaults overlaid with the YAML file at path (skipped when
// path is empty) and then the environment. It does not validate, so callers
// can apply command line overrides first.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.IOError("reading config file", err).WithDetail("path", path)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, errors.Wrap(errors.CodeValidation, "parsing config file", err).WithDetail("path", path)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "reading environment", err)
	}
	return cfg, nil
}

// decodeYAML rejects keys that match no field, so typos are not silently
// ignored. An empty file leaves cfg unchanged.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Evaluation: EvaluationConfig{
			Folds:     5,
			Seed:      42,
			Workers:   1,
			Metric:    "jaccard",
			Remapping: true,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Bus: BusConfig{
			Type:         "none",
			KafkaBrokers: "localhost:9092",
			KafkaGroup:   "senseval",
			Topic:        "senseval.evaluation.completed",
		},
		History: HistoryConfig{TTLHours: 24 * 30},
	}
}

// Validate checks every setting and reports all problems in one validation
// error.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}
	oneOf := func(field, value string, allowed []string) {
		check(slices.Contains(allowed, value), "invalid %s %q (must be one of %s)", field, value, strings.Join(allowed, ", "))
	}

	check(c.Evaluation.Folds >= 1, "folds must be at least 1, got %d", c.Evaluation.Folds)
	check(c.Evaluation.Workers >= 1, "workers must be at least 1, got %d", c.Evaluation.Workers)
	oneOf("metric", strings.ToLower(c.Evaluation.Metric), ValidMetrics)

	oneOf("log level", strings.ToLower(c.Log.Level), ValidLogLevels)
	oneOf("log format", strings.ToLower(c.Log.Format), ValidLogFormats)

	oneOf("bus type", c.BusType(), ValidBusTypes)
	check(c.BusType() != "kafka" || strings.TrimSpace(c.Bus.KafkaBrokers) != "", "kafka_brokers is required for the kafka bus")
	check(c.Bus.Topic != "", "bus topic must not be empty")

	check(c.History.TTLHours >= 0, "ttl_hours must not be negative, got %d", c.History.TTLHours)

	if len(problems) > 0 {
		return errors.ValidationError("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

// BusType returns the bus type in the lower case the bus factory matches.
func (c *Config) BusType() string {
	return strings.ToLower(strings.TrimSpace(c.Bus.Type))
}

// HistoryEnabled reports whether runs are recorded in Redis.
func (c *Config) HistoryEnabled() bool {
	return c.History.RedisURL != ""
}
