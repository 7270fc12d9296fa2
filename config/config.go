// Package config loads engine settings from a YAML file with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-sequence"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "SEQUENCE_"

type Config struct {
	MaxRetries   Retries        `yaml:"max_retries" env:"MAX_RETRIES"`
	Backoff      Backoff        `yaml:"backoff" envPrefix:"BACKOFF_"`
	IdleBackoff  time.Duration  `yaml:"idle_backoff" env:"IDLE_BACKOFF"`
	ChainDepth   int            `yaml:"chain_depth" env:"CHAIN_DEPTH"`
	RetryLicense bool           `yaml:"retry_license" env:"RETRY_LICENSE"`
	Workers      int            `yaml:"workers" env:"WORKERS"`
	Listen       string         `yaml:"listen" env:"LISTEN"`
	ResultBuffer int            `yaml:"result_buffer" env:"RESULT_BUFFER"`
	LogLevel     string         `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat    string         `yaml:"log_format" env:"LOG_FORMAT"`
	Schedules    []Schedule     `yaml:"schedules"`
	Extra        map[string]int `yaml:"settings"`
}

// Retries is the max_retries setting. A value that is not a non-negative
// integer reads as sequence.DefaultMaxRetries instead of failing the load.
type Retries int

func (r *Retries) UnmarshalText(text []byte) error {
	*r = parseRetries(string(text))
	return nil
}

func (r *Retries) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		*r = sequence.DefaultMaxRetries
		return nil
	}
	*r = parseRetries(node.Value)
	return nil
}

func parseRetries(s string) Retries {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 0 {
		return sequence.DefaultMaxRetries
	}
	return Retries(v)
}

// Backoff shapes the delay between retry attempts: Base * 2^n plus up to
// Jitter, capped at Max when Max is positive.
type Backoff struct {
	Base   time.Duration `yaml:"base" env:"BASE"`
	Max    time.Duration `yaml:"max" env:"MAX"`
	Jitter time.Duration `yaml:"jitter" env:"JITTER"`
}

// Schedule enqueues one action on a cron expression. An empty Queue
// targets the production queue.
type Schedule struct {
	Expression string         `yaml:"expression"`
	ActionType string         `yaml:"action_type"`
	Queue      string         `yaml:"queue"`
	Payload    map[string]any `yaml:"payload"`
	Metadata   map[string]any `yaml:"metadata"`
}

func Default() Config {
	return Config{
		MaxRetries: sequence.DefaultMaxRetries,
		Backoff: Backoff{
			Base:   time.Second,
			Jitter: time.Second,
		},
		ChainDepth:   sequence.DefaultChainDepth,
		Workers:      4,
		Listen:       ":8080",
		ResultBuffer: 256,
		LogLevel:     "info",
		LogFormat:    "console",
	}
}

// Load reads path over the defaults, then applies SEQUENCE_* variables.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, errors.CategoryBadInput, fmt.Sprintf("read config %s", path))
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrap(err, errors.CategoryBadInput, fmt.Sprintf("parse config %s", path))
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, errors.Wrap(err, errors.CategoryBadInput, "parse env")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var problems []string
	if c.ChainDepth < 1 {
		problems = append(problems, "chain_depth must be at least 1")
	}
	if c.Backoff.Base < 0 || c.Backoff.Max < 0 {
		problems = append(problems, "backoff durations must not be negative")
	}
	if c.Workers < 1 {
		problems = append(problems, "workers must be at least 1")
	}
	for i, s := range c.Schedules {
		if s.Expression == "" || s.ActionType == "" {
			problems = append(problems, fmt.Sprintf("schedules[%d] needs expression and action_type", i))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration", errors.CategoryValidation).
		WithTextCode("INVALID_CONFIG").
		WithMetadata(map[string]any{"problems": problems})
}

// GetInt serves the named integer fields, then the free-form settings map.
func (c Config) GetInt(key string) (int, bool) {
	switch key {
	case sequence.SettingMaxRetries:
		return int(c.MaxRetries), true
	case "chain_depth":
		return c.ChainDepth, true
	case "workers":
		return c.Workers, true
	case "result_buffer":
		return c.ResultBuffer, true
	}
	v, ok := c.Extra[key]
	return v, ok
}

var _ sequence.Settings = Config{}
