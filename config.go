package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// ModuleSetting is the operator-authored per-module configuration. Enabled
// is a pointer so an absent entry is distinguishable from an explicit
// false.
type ModuleSetting struct {
	Enabled *bool `yaml:"enabled" toml:"enabled"`
}

// Config is the runtime configuration for the platform daemon, loadable
// from YAML or TOML with PLATFORM_-prefixed environment overrides.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" toml:"listen"`

	// HookTimeoutSeconds bounds every lifecycle hook invocation.
	HookTimeoutSeconds int `yaml:"hookTimeoutSeconds" toml:"hookTimeoutSeconds"`

	// EventHistorySize is the event bus ring buffer capacity.
	EventHistorySize int `yaml:"eventHistorySize" toml:"eventHistorySize"`

	// SweepSchedule is the cron expression driving periodic health
	// sweeps, e.g. "@every 30s".
	SweepSchedule string `yaml:"sweepSchedule" toml:"sweepSchedule"`

	// AccessDBPath is the SQLite database file backing the
	// access-control module.
	AccessDBPath string `yaml:"accessDbPath" toml:"accessDbPath"`

	// Modules holds per-module operator intent keyed by module ID.
	Modules map[string]ModuleSetting `yaml:"modules" toml:"modules"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Listen:             ":8420",
		HookTimeoutSeconds: int(DefaultHookTimeout / time.Second),
		EventHistorySize:   DefaultEventHistorySize,
		SweepSchedule:      "@every 30s",
		AccessDBPath:       "platform.db",
		Modules:            make(map[string]ModuleSetting),
	}
}

// LoadConfig reads the file at path (format chosen by extension), overlays
// it on the defaults, applies environment overrides and validates. An
// empty path loads defaults plus environment only.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case ".toml":
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		default:
			return nil, fmt.Errorf("%w: %s", ErrConfigFormatUnknown, filepath.Ext(path))
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays PLATFORM_* environment variables, casting values to
// the target field types.
func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("PLATFORM_LISTEN"); ok {
		c.Listen = v
	}
	if v, ok := os.LookupEnv("PLATFORM_SWEEP_SCHEDULE"); ok {
		c.SweepSchedule = v
	}
	if v, ok := os.LookupEnv("PLATFORM_ACCESS_DB_PATH"); ok {
		c.AccessDBPath = v
	}
	for env, target := range map[string]*int{
		"PLATFORM_HOOK_TIMEOUT_SECONDS": &c.HookTimeoutSeconds,
		"PLATFORM_EVENT_HISTORY_SIZE":   &c.EventHistorySize,
	} {
		v, ok := os.LookupEnv(env)
		if !ok {
			continue
		}
		converted, err := cast.FromType(v, reflect.TypeOf(0))
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %s", ErrConfigInvalid, env, v, err)
		}
		*target = converted.(int)
	}
	return nil
}

// Validate rejects values the runtime cannot operate with.
func (c *Config) Validate() error {
	if c.HookTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: hookTimeoutSeconds must be positive", ErrConfigInvalid)
	}
	if c.EventHistorySize <= 0 {
		return fmt.Errorf("%w: eventHistorySize must be positive", ErrConfigInvalid)
	}
	if c.SweepSchedule == "" {
		return fmt.Errorf("%w: sweepSchedule must be set", ErrConfigInvalid)
	}
	return nil
}

// HookTimeout returns the hook deadline as a duration.
func (c *Config) HookTimeout() time.Duration {
	return time.Duration(c.HookTimeoutSeconds) * time.Second
}

// ModuleSettings flattens the explicit per-module enable flags for
// WithModuleSettings. Absent entries are omitted so the runtime keeps its
// enabled-by-default behavior.
func (c *Config) ModuleSettings() map[string]bool {
	out := make(map[string]bool, len(c.Modules))
	for id, setting := range c.Modules {
		if setting.Enabled != nil {
			out[id] = *setting.Enabled
		}
	}
	return out
}
