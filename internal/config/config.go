// Package config loads runtime settings for the radio tower binaries from an
// optional YAML file followed by environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/radio-towers/core"
	"github.com/signalsfoundry/radio-towers/internal/logging"
	"github.com/signalsfoundry/radio-towers/internal/observability"
	"gopkg.in/yaml.v3"
)

// Config is the top-level settings document.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Solver  SolverConfig  `yaml:"solver"`
	Server  ServerConfig  `yaml:"server"`
	Tracing TracingConfig `yaml:"tracing"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

type SolverConfig struct {
	TieBreak string        `yaml:"tie_break"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default returns the settings used when no file or environment overrides
// are present.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Solver:  SolverConfig{TieBreak: core.TieBreakLowestID.String(), Timeout: 30 * time.Second},
		Server:  ServerConfig{GRPCAddr: ":50061", MetricsAddr: ":9091"},
		Tracing: TracingConfig{
			ServiceName: "radio-towers",
			Exporter:    "stdout",
			SampleRatio: 1.0,
		},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadYAML(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, out)
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FORMAT", &c.Logging.Format)
	setString("RADIOTOWERS_TIE_BREAK", &c.Solver.TieBreak)
	setString("RADIOTOWERS_GRPC_ADDR", &c.Server.GRPCAddr)
	setString("RADIOTOWERS_METRICS_ADDR", &c.Server.MetricsAddr)
	setString("RADIOTOWERS_TRACING_SERVICE_NAME", &c.Tracing.ServiceName)
	setString("RADIOTOWERS_TRACING_EXPORTER", &c.Tracing.Exporter)
	setString("RADIOTOWERS_OTLP_ENDPOINT", &c.Tracing.Endpoint)

	if v := getenv("RADIOTOWERS_SOLVE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RADIOTOWERS_SOLVE_TIMEOUT: %w", err)
		}
		c.Solver.Timeout = d
	}
	if v := getenv("RADIOTOWERS_TRACING_ENABLED"); v != "" {
		c.Tracing.Enabled = strings.EqualFold(v, "true")
	}
	if v := getenv("RADIOTOWERS_TRACING_SAMPLE_RATIO"); v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RADIOTOWERS_TRACING_SAMPLE_RATIO: %w", err)
		}
		c.Tracing.SampleRatio = ratio
	}
	return nil
}

// Validate rejects settings the binaries cannot act on.
func (c Config) Validate() error {
	var errs []error
	if _, err := core.ParseTieBreak(c.Solver.TieBreak); err != nil {
		errs = append(errs, fmt.Errorf("solver.tie_break: %w", err))
	}
	if c.Solver.Timeout < 0 {
		errs = append(errs, fmt.Errorf("solver.timeout must not be negative, got %s", c.Solver.Timeout))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be within [0, 1], got %v", c.Tracing.SampleRatio))
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case "", "stdout", "otlp", "otlpgrpc":
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter: unsupported exporter %q", c.Tracing.Exporter))
	}
	return errors.Join(errs...)
}

// LoggerConfig converts the logging section for logging.New.
func (c Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		AddSource: c.Logging.AddSource,
	}
}

// TieBreak returns the parsed solver tie-break policy. Validate has already
// rejected unknown names.
func (c Config) TieBreak() core.TieBreak {
	tb, _ := core.ParseTieBreak(c.Solver.TieBreak)
	return tb
}

// TracingSettings converts the tracing section for observability.InitTracing.
func (c Config) TracingSettings() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    c.Tracing.Exporter,
		Endpoint:    c.Tracing.Endpoint,
		SampleRatio: c.Tracing.SampleRatio,
	}
}
