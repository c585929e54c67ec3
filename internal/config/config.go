// Package config loads hsnap settings from defaults, an optional YAML file,
// HSNAP_* environment variables and command-line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: HSNAP_REPORT_URL sets report.url.
const EnvPrefix = "HSNAP"

// Config is the resolved configuration of one invocation.
type Config struct {
	Host    HostConfig    `mapstructure:"host"`
	Report  ReportConfig  `mapstructure:"report"`
	Probes  ProbesConfig  `mapstructure:"probes"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Run     RunConfig     `mapstructure:"run"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// HostConfig identifies the host in the snapshot.
type HostConfig struct {
	ID string `mapstructure:"id"` // default: hostname
}

// ReportConfig controls encoding and delivery. An empty URL writes the
// document to standard output.
type ReportConfig struct {
	URL            string        `mapstructure:"url"`
	Token          string        `mapstructure:"token"`
	SigningKey     string        `mapstructure:"signing_key"`      // PEM text
	SigningKeyFile string        `mapstructure:"signing_key_file"` // path to a PEM file
	Format         string        `mapstructure:"format"`
	Gzip           bool          `mapstructure:"gzip"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Retries        int           `mapstructure:"retries"`
	Backoff        time.Duration `mapstructure:"backoff"`
}

// ProbesConfig bounds probe execution.
type ProbesConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxTimeout     time.Duration `mapstructure:"max_timeout"`
	MaxOutputBytes int64         `mapstructure:"max_output_bytes"`
	SpawnRate      float64       `mapstructure:"spawn_rate"` // commands per second, 0 = unlimited
}

// EngineConfig sizes the plugin pool.
type EngineConfig struct {
	Workers int `mapstructure:"workers"`
}

// RunConfig bounds the whole invocation.
type RunConfig struct {
	Deadline time.Duration `mapstructure:"deadline"`
}

// MetricsConfig enables the Prometheus textfile export.
type MetricsConfig struct {
	File string `mapstructure:"file"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"id":               "host.id",
	"url":              "report.url",
	"token":            "report.token",
	"signing-key":      "report.signing_key",
	"signing-key-file": "report.signing_key_file",
	"format":           "report.format",
	"gzip":             "report.gzip",
	"workers":          "engine.workers",
	"deadline":         "run.deadline",
	"metrics-file":     "metrics.file",
	"log-level":        "logging.level",
	"log-format":       "logging.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host.id", "")
	v.SetDefault("report.url", "")
	v.SetDefault("report.token", "")
	v.SetDefault("report.signing_key", "")
	v.SetDefault("report.signing_key_file", "")
	v.SetDefault("report.format", "json")
	v.SetDefault("report.gzip", false)
	v.SetDefault("report.timeout", "30s")
	v.SetDefault("report.retries", 3)
	v.SetDefault("report.backoff", "1s")
	v.SetDefault("probes.timeout", "10s")
	v.SetDefault("probes.max_timeout", "60s")
	v.SetDefault("probes.max_output_bytes", 64<<20)
	v.SetDefault("probes.spawn_rate", 0)
	v.SetDefault("engine.workers", 4)
	v.SetDefault("run.deadline", "5m")
	v.SetDefault("metrics.file", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load resolves the configuration. configPath names an explicit file that
// must exist; when empty, hsnap.yaml is looked up in the working directory
// and /etc/hsnap, and its absence is not an error. flags may be nil; only
// flags the user set override lower layers.
func Load(configPath string, flags *pflag.FlagSet) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, nil, fmt.Errorf("reading config: %w", err)
		}
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("hsnap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hsnap")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Report.Format) {
	case "json", "cbor":
	default:
		errs = append(errs, fmt.Errorf("report.format %q must be json or cbor", c.Report.Format))
	}
	if c.Report.Retries < 0 {
		errs = append(errs, errors.New("report.retries must not be negative"))
	}
	if c.Report.SigningKey != "" && c.Report.SigningKeyFile != "" {
		errs = append(errs, errors.New("report.signing_key and report.signing_key_file are mutually exclusive"))
	}
	if c.Probes.Timeout <= 0 {
		errs = append(errs, errors.New("probes.timeout must be positive"))
	}
	if c.Probes.MaxTimeout < c.Probes.Timeout {
		errs = append(errs, fmt.Errorf("probes.max_timeout (%s) is below probes.timeout (%s)", c.Probes.MaxTimeout, c.Probes.Timeout))
	}
	if c.Probes.MaxOutputBytes <= 0 {
		errs = append(errs, errors.New("probes.max_output_bytes must be positive"))
	}
	if c.Probes.SpawnRate < 0 {
		errs = append(errs, errors.New("probes.spawn_rate must not be negative"))
	}
	if c.Engine.Workers < 1 {
		errs = append(errs, errors.New("engine.workers must be at least 1"))
	}
	if c.Run.Deadline <= 0 {
		errs = append(errs, errors.New("run.deadline must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SigningKeyPEM returns the configured PEM key, or nil when signing is off.
// Keys passed through a single-line flag or variable may use literal "\n"
// sequences for line breaks.
func (c *Config) SigningKeyPEM() ([]byte, error) {
	switch {
	case c.Report.SigningKey != "":
		k := c.Report.SigningKey
		if !strings.Contains(k, "\n") {
			k = strings.ReplaceAll(k, `\n`, "\n")
		}
		return []byte(k), nil
	case c.Report.SigningKeyFile != "":
		data, err := os.ReadFile(c.Report.SigningKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read signing key: %w", err)
		}
		return data, nil
	}
	return nil, nil
}
