// Package config loads bloom runtime configuration.
//
// Sources, later wins: built-in defaults, an optional YAML file, BLOOM_*
// environment variables. The merged result is checked against an embedded
// CUE schema before use.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config is the runtime configuration of the device.
type Config struct {
	DBPath           string `yaml:"db_path" json:"db_path" env:"BLOOM_DB_PATH"`
	HTTPAddr         string `yaml:"http_addr" json:"http_addr" env:"BLOOM_HTTP_ADDR"`
	MaxTasks         int    `yaml:"max_tasks" json:"max_tasks" env:"BLOOM_MAX_TASKS"`
	EventCapacity    int    `yaml:"event_capacity" json:"event_capacity" env:"BLOOM_EVENT_CAPACITY"`
	NotifierDepth    int    `yaml:"notifier_depth" json:"notifier_depth" env:"BLOOM_NOTIFIER_DEPTH"`
	TickIntervalMS   int    `yaml:"tick_interval_ms" json:"tick_interval_ms" env:"BLOOM_TICK_INTERVAL_MS"`
	SensorIntervalMS int    `yaml:"sensor_interval_ms" json:"sensor_interval_ms" env:"BLOOM_SENSOR_INTERVAL_MS"`
	FlipDebounceMS   int    `yaml:"flip_debounce_ms" json:"flip_debounce_ms" env:"BLOOM_FLIP_DEBOUNCE_MS"`
	FlipLow          int    `yaml:"flip_low" json:"flip_low" env:"BLOOM_FLIP_LOW"`
	FlipHigh         int    `yaml:"flip_high" json:"flip_high" env:"BLOOM_FLIP_HIGH"`
	LightThreshold   int    `yaml:"light_threshold" json:"light_threshold" env:"BLOOM_LIGHT_THRESHOLD"`
	LightReviveMS    int    `yaml:"light_revive_ms" json:"light_revive_ms" env:"BLOOM_LIGHT_REVIVE_MS"`
	MidnightCheck    bool   `yaml:"midnight_check" json:"midnight_check" env:"BLOOM_MIDNIGHT_CHECK"`
	Timezone         string `yaml:"timezone" json:"timezone" env:"BLOOM_TIMEZONE"`
}

// Default returns the device build's configuration.
func Default() Config {
	return Config{
		DBPath:           "bloom.db",
		HTTPAddr:         ":8080",
		MaxTasks:         10,
		EventCapacity:    32,
		NotifierDepth:    10,
		TickIntervalMS:   1000,
		SensorIntervalMS: 100,
		FlipDebounceMS:   500,
		FlipLow:          -10000,
		FlipHigh:         10000,
		LightThreshold:   3000,
		LightReviveMS:    3000,
		MidnightCheck:    true,
		Timezone:         "Local",
	}
}

// Load merges defaults, the YAML file at path (skipped when path is empty)
// and the environment, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks cfg against the embedded schema and resolves the
// timezone.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := def.Unify(ctx.Encode(c))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: timezone: %w", err)
	}
	return nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// TickInterval is one countdown unit.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// SensorInterval is the sensing loop period.
func (c Config) SensorInterval() time.Duration {
	return time.Duration(c.SensorIntervalMS) * time.Millisecond
}

// FlipDebounce is how long a flip reading must hold before it counts.
func (c Config) FlipDebounce() time.Duration {
	return time.Duration(c.FlipDebounceMS) * time.Millisecond
}

// LightRevive is the light exposure needed to revive a withered plant.
func (c Config) LightRevive() time.Duration {
	return time.Duration(c.LightReviveMS) * time.Millisecond
}
