// Package config loads sheetd settings. values start from Default, are
// overlaid by a TOML or YAML file chosen by extension, then by SHEETD_*
// environment variables, and are validated before use. command line flags
// are applied by the caller on top of the loaded config.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFormat is returned for config files that are neither TOML nor YAML
var ErrUnknownFormat = errors.New("unknown config format")

var validate *validator.Validate

func init() {
	validate = validator.New()
	if err := validate.RegisterValidation("listen_addr", validateListenAddr); err != nil {
		panic(fmt.Sprintf("config: register listen_addr validation: %v", err))
	}
}

// validateListenAddr accepts host:port with an optional host and a port in
// 0-65535. port 0 picks a free port.
func validateListenAddr(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	n, err := strconv.ParseUint(port, 10, 16)
	return err == nil && n <= 65535
}

type Config struct {
	// ListenAddr is the TCP address for line protocol clients
	ListenAddr string `toml:"listen_addr" yaml:"listen_addr" validate:"required,listen_addr"`
	// AdminAddr is the HTTP address for the admin surface. empty disables it.
	AdminAddr string `toml:"admin_addr" yaml:"admin_addr" validate:"omitempty,listen_addr"`
	// QueueSize is the number of change events that may wait for the
	// recompute worker
	QueueSize int `toml:"queue_size" yaml:"queue_size" validate:"gte=1,lte=1048576"`

	Log       LogConfig       `toml:"log" yaml:"log"`
	RateLimit RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
	Tracing   TracingConfig   `toml:"tracing" yaml:"tracing"`
}

type LogConfig struct {
	Level string `toml:"level" yaml:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `toml:"json" yaml:"json"`
	// Dir additionally writes JSON logs to a daily file in this directory
	Dir string `toml:"dir" yaml:"dir"`
}

// RateLimitConfig limits messages per connection. 0 disables the limit.
type RateLimitConfig struct {
	PerSecond float64 `toml:"per_second" yaml:"per_second" validate:"gte=0"`
	Burst     int     `toml:"burst" yaml:"burst" validate:"gte=0"`
}

type TracingConfig struct {
	// Stdout exports spans as JSON to stdout
	Stdout bool `toml:"stdout" yaml:"stdout"`
}

func Default() Config {
	return Config{
		ListenAddr: "127.0.0.1:5050",
		AdminAddr:  "127.0.0.1:5051",
		QueueSize:  1024,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load returns the defaults overlaid by the file at path (if path is not
// empty) and by the environment, validated
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	return nil
}

// applyEnv overrides fields from SHEETD_* variables. unparseable numbers
// are ignored.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SHEETD_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("SHEETD_ADMIN_ADDR"); ok {
		cfg.AdminAddr = v
	}
	if v := os.Getenv("SHEETD_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueSize = n
		}
	}
	if v := os.Getenv("SHEETD_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SHEETD_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Log.JSON = b
		}
	}
}

// Validate checks every field against its constraints
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
