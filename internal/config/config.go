// Package config loads tracer settings from an optional YAML file and the
// environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STEPTRACE_"

// Config holds the tunable limits of a tracing session.
type Config struct {
	// MaxSteps is the step ceiling of one run.
	MaxSteps int `json:"max_steps" yaml:"max_steps" validate:"gte=1"`
	// WallMS bounds the wall time of one run in milliseconds.
	WallMS int `json:"wall_ms" yaml:"wall_ms" validate:"gte=1"`
	// OutputKB caps captured program output.
	OutputKB int `json:"output_kb" yaml:"output_kb" validate:"gte=1"`
	// TimingRuns is how many uninstrumented runs the timing probe averages.
	// Zero disables the probe.
	TimingRuns int    `json:"timing_runs" yaml:"timing_runs" validate:"gte=0,lte=100"`
	LogLevel   string `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	// AuditDir receives one NDJSON line per session. Empty disables auditing.
	AuditDir string `json:"audit_dir" yaml:"audit_dir"`
}

var validate = validator.New()

// Default returns the built-in settings.
func Default() Config {
	return Config{
		MaxSteps:   500,
		WallMS:     5000,
		OutputKB:   64,
		TimingRuns: 10,
		LogLevel:   "info",
		AuditDir:   ".steptrace/audit",
	}
}

// Load applies the file at path (if any) and then the environment on top of
// the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	loadEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func loadEnv(cfg *Config) {
	ints := map[string]*int{
		"MAX_STEPS":   &cfg.MaxSteps,
		"WALL_MS":     &cfg.WallMS,
		"OUTPUT_KB":   &cfg.OutputKB,
		"TIMING_RUNS": &cfg.TimingRuns,
	}
	for name, dst := range ints {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := os.LookupEnv(EnvPrefix + "AUDIT_DIR"); ok {
		cfg.AuditDir = strings.TrimSpace(v)
	}
}

// Validate checks the value ranges of c.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level maps LogLevel to a slog level.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
