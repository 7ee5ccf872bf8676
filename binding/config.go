package binding

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/delaneyj/bindparty/errs"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the defaults applied to every binding a Manager compiles.
type Config struct {
	DefaultMode     string        `yaml:"default_mode" default:"one-way" validate:"oneof=one-way two-way one-way-to-source one-time none"`
	Delay           time.Duration `yaml:"delay" default:"0s" validate:"gte=0"`
	TargetDelay     time.Duration `yaml:"target_delay" default:"0s" validate:"gte=0"`
	StrictLifecycle bool          `yaml:"strict_lifecycle"`
	LogLevel        string        `yaml:"log_level" default:"info" validate:"oneof=debug info warn error"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(err)
	}
	return c
}

var validate = validator.New()

// Validate checks c and reports problems as configuration errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errs.Wrap(errs.CodeConfiguration, "binding.Config", fmt.Errorf("validation failed: %w", err))
	}
	return nil
}

// LoadConfig reads a YAML config file, fills in defaults and validates it.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errs.Wrap(errs.CodeConfiguration, "binding.LoadConfig", err)
	}
	defer f.Close()
	return ReadConfig(f)
}

// ReadConfig is LoadConfig for an already open reader.
func ReadConfig(r io.Reader) (Config, error) {
	var c Config
	if err := yaml.NewDecoder(r).Decode(&c); err != nil && err != io.EOF {
		return Config{}, errs.Wrap(errs.CodeConfiguration, "binding.ReadConfig", err)
	}
	if err := defaults.Set(&c); err != nil {
		return Config{}, errs.Wrap(errs.CodeConfiguration, "binding.ReadConfig", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) mode() Mode {
	m, err := ParseMode(c.DefaultMode)
	if err != nil {
		return OneWay
	}
	return m
}

// Level maps LogLevel to a slog level.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// NewLogger returns a text logger writing to w at the configured level.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.Level()}))
}
