// Package config loads twinsync settings from a YAML file, a .env file, the
// TWINSYNC_* environment and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/twinsync/internal/syncerr"
)

// EnvPrefix prefixes every environment override, e.g. TWINSYNC_HUB_DSN.
const EnvPrefix = "TWINSYNC"

// ReasonBadConfig marks Invalid errors raised by Validate.
const ReasonBadConfig = syncerr.ReasonBadConfig

// Side is one database connection.
type Side struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Sync holds cycle settings.
type Sync struct {
	Force         bool          `mapstructure:"force"`
	PersistRebase bool          `mapstructure:"persist_rebase"`
	Interval      time.Duration `mapstructure:"interval"`
	StopOnError   bool          `mapstructure:"stop_on_error"`
}

// Log holds logging settings. An empty File logs to stderr.
type Log struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Config is the full twinsync configuration.
type Config struct {
	Edge    Side   `mapstructure:"edge"`
	Hub     Side   `mapstructure:"hub"`
	Mapping string `mapstructure:"mapping"`
	Sync    Sync   `mapstructure:"sync"`
	Log     Log    `mapstructure:"log"`
}

// Options says where Load looks.
type Options struct {
	// ConfigFile is a YAML file. Empty skips it.
	ConfigFile string

	// EnvFile is loaded into the process environment without overriding
	// variables that are already set. Empty tries ./.env and ignores its
	// absence.
	EnvFile string

	// Flags are bound over every other source. Only flags listed in
	// FlagKeys and actually defined in the set are bound.
	Flags *pflag.FlagSet
}

// FlagKeys maps command-line flag names to config keys.
var FlagKeys = map[string]string{
	"edge-driver":    "edge.driver",
	"edge-dsn":       "edge.dsn",
	"hub-driver":     "hub.driver",
	"hub-dsn":        "hub.dsn",
	"mapping":        "mapping",
	"force":          "sync.force",
	"persist-rebase": "sync.persist_rebase",
	"interval":       "sync.interval",
	"stop-on-error":  "sync.stop_on_error",
	"log-level":      "log.level",
	"log-file":       "log.file",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("edge.driver", "sqlite3")
	v.SetDefault("edge.dsn", "")
	v.SetDefault("hub.driver", "sqlite3")
	v.SetDefault("hub.dsn", "")
	v.SetDefault("mapping", "")
	v.SetDefault("sync.force", false)
	v.SetDefault("sync.persist_rebase", true)
	v.SetDefault("sync.interval", 30*time.Second)
	v.SetDefault("sync.stop_on_error", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Load resolves the configuration. It does not validate it.
func Load(opts Options) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			f := opts.Flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag --%s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings a sync needs.
func (c *Config) Validate() error {
	var errs []error
	for _, s := range []struct {
		name string
		side Side
	}{{"edge", c.Edge}, {"hub", c.Hub}} {
		switch s.side.Driver {
		case "sqlite3", "mysql":
		default:
			errs = append(errs, invalid("%s.driver %q is not supported (want sqlite3 or mysql)", s.name, s.side.Driver))
		}
		if s.side.DSN == "" {
			errs = append(errs, invalid("%s.dsn is required", s.name))
		}
	}
	if c.Sync.Interval < 0 {
		errs = append(errs, invalid("sync.interval must not be negative, got %s", c.Sync.Interval))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, invalid("log.format %q is not supported (want text or json)", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return 0, invalid("log.level %q is not a level (want debug, info, warn or error)", name)
	}
	return l, nil
}

func invalid(format string, args ...any) error {
	return syncerr.NewInvalid(ReasonBadConfig, fmt.Sprintf(format, args...))
}
