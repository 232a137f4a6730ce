package api

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigVersion is the config file format this build reads.
const ConfigVersion = "1"

var ErrInvalidConfig = errors.New("invalid config")

// Config is the on-disk configuration of a snowpak run. Command-line flags
// override the values loaded from file.
type Config struct {
	// Version of the config format.
	Version string `yaml:"version" json:"version"`
	// Workers bounds parallel file parsing. Zero means one per CPU.
	Workers int `yaml:"workers,omitempty" json:"workers,omitempty"`
	// HideKnownBugs silences the log lines of known archive issues.
	HideKnownBugs bool `yaml:"hide_known_bugs,omitempty" json:"hide_known_bugs,omitempty"`
	// KnownIssuesFile adds corrections to the built-in known-issue table.
	KnownIssuesFile string `yaml:"known_issues_file,omitempty" json:"known_issues_file,omitempty"`
	// Log configures the structured logger.
	Log Log `yaml:"log" json:"log"`
}

// Log defines logger output.
type Log struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`   // debug, info, warn, error
	Format string `yaml:"format,omitempty" json:"format,omitempty"` // text or json
}

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() Config {
	return Config{
		Version: ConfigVersion,
		Log:     Log{Level: "info", Format: "text"},
	}
}

// LoadConfig reads a YAML config file. Fields missing from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.Version != ConfigVersion {
		errs = append(errs, fmt.Errorf("%w: unsupported version %q", ErrInvalidConfig, c.Version))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("%w: workers must not be negative", ErrInvalidConfig))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format))
	}
	return errors.Join(errs...)
}
