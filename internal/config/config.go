// Package config loads the supervisor's configuration using Viper, with a
// clear precedence: environment variables override the configuration file,
// which overrides the defaults below.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"m8msupervisor/internal/stratum"
)

// Default WS service settings.
const (
	DefaultMonitorPort        = 31000
	DefaultAdminPort          = 31001
	DefaultMonitorResource    = "/monitor"
	DefaultAdminResource      = "/admin"
	DefaultMonitorSubProtocol = "M8M-monitor"
	DefaultAdminSubProtocol   = "M8M-admin"
)

// Default loop timings.
const (
	DefaultPollPeriod             = 200 * time.Millisecond
	DefaultInactivityCeiling      = 120 * time.Second
	DefaultDebugInactivityCeiling = 30 * time.Minute
	DefaultReconnectBackoff       = 30 * time.Second
)

// Default logging settings.
const (
	DefaultLoggingLevel  = "info"
	DefaultLoggingFormat = "color"
)

// DefaultDiffMultiplier is the neutral difficulty multiplier. It is not
// filled in for a pool that omits its multipliers: an omitted multiplier
// stays zero and Validate rejects it.
const DefaultDiffMultiplier = 1.0

// WorkerConfig is one `user`/`pass` credential pair to authorize on a pool.
type WorkerConfig struct {
	Name     string `mapstructure:"name"`
	Password string `mapstructure:"password"`
}

// PoolConfig describes one upstream pool, in the wire shape the
// configuration file and environment variables use. DiffMode and
// MerkleMode are parsed lazily by ToStratum, not eagerly here, so a typo in
// the file surfaces through Validate with a precise message.
type PoolConfig struct {
	Name    string         `mapstructure:"name"`
	Host    string         `mapstructure:"host"`
	Port    int            `mapstructure:"port"`
	Algo    string         `mapstructure:"algo"`
	Workers []WorkerConfig `mapstructure:"workers"`

	DiffMode   string `mapstructure:"diff_mode"`
	MerkleMode string `mapstructure:"merkle_mode"`

	DiffMultiplierOne     float64 `mapstructure:"diff_multiplier_one"`
	DiffMultiplierShare   float64 `mapstructure:"diff_multiplier_share"`
	DiffMultiplierStratum float64 `mapstructure:"diff_multiplier_stratum"`
}

// ToStratum converts the wire shape into the type stratum.Supervisor
// consumes. Callers must run Validate first; this does not re-validate.
func (p PoolConfig) ToStratum() stratum.PoolConfig {
	mode, _ := stratum.ParseDiffMode(p.DiffMode)
	merkle, _ := stratum.ParseMerkleMode(p.MerkleMode)
	workers := make([]stratum.WorkerConfig, len(p.Workers))
	for i, w := range p.Workers {
		workers[i] = stratum.WorkerConfig{Name: w.Name, Password: w.Password}
	}
	return stratum.PoolConfig{
		Name:       p.Name,
		Host:       p.Host,
		Port:       p.Port,
		Algo:       p.Algo,
		Workers:    workers,
		DiffMode:   mode,
		MerkleMode: merkle,
		DiffMul: stratum.DiffMultipliers{
			One:     p.DiffMultiplierOne,
			Share:   p.DiffMultiplierShare,
			Stratum: p.DiffMultiplierStratum,
		},
	}
}

// WSServiceConfig is one of the two independent WS control-plane listeners.
type WSServiceConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig mirrors logging.Config's fields so it round-trips cleanly
// through Viper without a separate adapter struct.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	Quiet   bool   `mapstructure:"quiet"`
	Verbose bool   `mapstructure:"verbose"`
}

// Config is the full supervisor configuration.
type Config struct {
	Algo  string       `mapstructure:"algo"`
	Pools []PoolConfig `mapstructure:"pools"`

	Monitor WSServiceConfig `mapstructure:"monitor"`
	Admin   WSServiceConfig `mapstructure:"admin"`

	PollPeriod        time.Duration `mapstructure:"poll_period"`
	InactivityCeiling time.Duration `mapstructure:"inactivity_ceiling"`
	ReconnectBackoff  time.Duration `mapstructure:"reconnect_backoff"`
	Debug             bool          `mapstructure:"debug"`

	Logging LoggingConfig `mapstructure:"logging"`

	// UserConfiguration, if set in a non-user-specified bootstrap file, is
	// merged on top exactly once during Load.
	UserConfiguration string `mapstructure:"user_configuration"`
}

// EffectiveInactivityCeiling returns InactivityCeiling, or the debug
// ceiling when Debug is set and no explicit override was given.
func (c Config) EffectiveInactivityCeiling() time.Duration {
	if c.InactivityCeiling != DefaultInactivityCeiling {
		return c.InactivityCeiling
	}
	if c.Debug {
		return DefaultDebugInactivityCeiling
	}
	return c.InactivityCeiling
}

// Validate checks every field Load cannot express as a Viper default:
// cross-field constraints, enum membership, and port sanity.
func (c *Config) Validate() error {
	if c.Monitor.Port < 1 || c.Monitor.Port > 65535 {
		return fmt.Errorf("invalid monitor.port: %d (must be 1-65535)", c.Monitor.Port)
	}
	if c.Admin.Port < 1 || c.Admin.Port > 65535 {
		return fmt.Errorf("invalid admin.port: %d (must be 1-65535)", c.Admin.Port)
	}
	if c.Monitor.Port == c.Admin.Port {
		return fmt.Errorf("monitor.port and admin.port must differ, both are %d", c.Monitor.Port)
	}

	if c.PollPeriod <= 0 {
		return fmt.Errorf("poll_period must be positive, got %v", c.PollPeriod)
	}
	if c.InactivityCeiling <= 0 {
		return fmt.Errorf("inactivity_ceiling must be positive, got %v", c.InactivityCeiling)
	}
	if c.ReconnectBackoff <= 0 {
		return fmt.Errorf("reconnect_backoff must be positive, got %v", c.ReconnectBackoff)
	}

	seen := make(map[string]bool, len(c.Pools))
	for _, p := range c.Pools {
		if p.Name == "" {
			return fmt.Errorf("pool with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate pool name %q", p.Name)
		}
		seen[p.Name] = true

		if p.Host == "" {
			return fmt.Errorf("pool %q: host cannot be empty", p.Name)
		}
		if p.Port < 1 || p.Port > 65535 {
			return fmt.Errorf("pool %q: invalid port %d", p.Name, p.Port)
		}
		if _, ok := stratum.ParseDiffMode(p.DiffMode); !ok {
			return fmt.Errorf("pool %q: invalid diff_mode %q", p.Name, p.DiffMode)
		}
		if _, ok := stratum.ParseMerkleMode(p.MerkleMode); !ok {
			return fmt.Errorf("pool %q: invalid merkle_mode %q", p.Name, p.MerkleMode)
		}
		mul := stratum.DiffMultipliers{One: p.DiffMultiplierOne, Share: p.DiffMultiplierShare, Stratum: p.DiffMultiplierStratum}
		if !mul.Valid() {
			return fmt.Errorf("pool %q: diff multipliers must all be positive, got one=%v share=%v stratum=%v",
				p.Name, mul.One, mul.Share, mul.Stratum)
		}
		if len(p.Workers) == 0 {
			return fmt.Errorf("pool %q: at least one worker is required", p.Name)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if c.Logging.Level != "" && !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid logging.level: %q (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"text": true, "color": true, "json": true}
	if c.Logging.Format != "" && !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid logging.format: %q (must be text, color, or json)", c.Logging.Format)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("monitor.port", DefaultMonitorPort)
	v.SetDefault("admin.port", DefaultAdminPort)
	v.SetDefault("poll_period", DefaultPollPeriod)
	v.SetDefault("inactivity_ceiling", DefaultInactivityCeiling)
	v.SetDefault("reconnect_backoff", DefaultReconnectBackoff)
	v.SetDefault("debug", false)
	v.SetDefault("logging.level", DefaultLoggingLevel)
	v.SetDefault("logging.format", DefaultLoggingFormat)
	v.SetDefault("logging.quiet", false)
	v.SetDefault("logging.verbose", false)
}

// Load reads the supervisor configuration from defaults, file, and
// environment, in that increasing order of precedence. An explicit configPath
// is read as-is; an empty one searches the conventional locations and
// tolerates not finding anything (defaults apply). If the resolved config
// names a UserConfiguration file and configPath was not itself explicit,
// that file is merged on top exactly once.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	explicit := configPath != ""
	if explicit {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("supervisor-config")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.m8msupervisor")
		v.AddConfigPath("/etc/m8msupervisor")
	}

	v.SetEnvPrefix("M8M")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if !explicit && cfg.UserConfiguration != "" {
		v.SetConfigFile(cfg.UserConfiguration)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading user configuration %q: %w", cfg.UserConfiguration, err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("unmarshaling merged config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// LoadWithInfo behaves like Load, additionally returning an Info suitable
// for the admin service's configFile/getRawConfig/reload commands. The raw
// bytes it records are the resolved configuration re-encoded as JSON, not
// the original file's bytes, so they always reflect defaults and any
// merged UserConfiguration chain. Filename() only reports a path when the
// caller passed one explicitly; a file found via the default search path
// is not currently surfaced here.
func LoadWithInfo(configPath string) (*Config, *Info, error) {
	cfg, err := Load(configPath)
	path := configPath
	redirected := false
	if cfg != nil && !redirected {
		redirected = configPath == "" && cfg.UserConfiguration != ""
	}
	if err != nil {
		return nil, NewInfo(path, configPath != "", redirected, nil, err), err
	}
	raw, marshalErr := json.Marshal(cfg)
	if marshalErr != nil {
		raw = nil
	}
	return cfg, NewInfo(path, configPath != "", redirected, raw, nil), nil
}

// Watch starts a background watcher on the resolved configuration file(s)
// and invokes callback with the freshly validated configuration whenever
// the file changes. It stops when ctx is cancelled. A reload that fails to
// parse or validate is logged and ignored; the previous configuration
// stays in effect.
func Watch(ctx context.Context, configPath string, callback func(*Config), logger *slog.Logger) error {
	v := viper.New()
	setDefaults(v)

	explicit := configPath != ""
	if explicit {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("supervisor-config")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.m8msupervisor")
		v.AddConfigPath("/etc/m8msupervisor")
	}
	v.SetEnvPrefix("M8M")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		if logger != nil {
			logger.Info("configuration file changed", "file", e.Name, "operation", e.Op.String())
		}
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			if logger != nil {
				logger.Error("failed to unmarshal config on reload", "error", err, "file", e.Name)
			}
			return
		}
		if err := cfg.Validate(); err != nil {
			if logger != nil {
				logger.Error("invalid configuration after reload", "error", err, "file", e.Name)
			}
			return
		}
		if logger != nil {
			logger.Info("configuration reloaded successfully", "file", e.Name)
		}
		callback(&cfg)
	})

	go func() {
		<-ctx.Done()
		if logger != nil {
			logger.Debug("config watcher stopped", "reason", "context cancelled")
		}
	}()

	return nil
}
