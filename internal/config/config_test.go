package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/twinsync/internal/syncerr"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// noEnvFile points Load at an empty env file so a stray ./.env cannot leak in.
func noEnvFile(t *testing.T) string {
	return writeFile(t, "empty.env", "")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(Options{EnvFile: noEnvFile(t)})
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Edge.Driver)
	assert.Equal(t, "sqlite3", cfg.Hub.Driver)
	assert.True(t, cfg.Sync.PersistRebase)
	assert.False(t, cfg.Sync.Force)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 100, cfg.Log.MaxSizeMB)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "twinsync.yaml", `
edge:
  driver: sqlite3
  dsn: /var/lib/pos/edge.db
hub:
  driver: mysql
  dsn: "sync:secret@tcp(hub:3306)/pos"
mapping: /etc/twinsync/mapping.yaml
sync:
  persist_rebase: false
  interval: 10s
log:
  level: debug
  file: /var/log/twinsync.log
`)
	cfg, err := Load(Options{ConfigFile: path, EnvFile: noEnvFile(t)})
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/pos/edge.db", cfg.Edge.DSN)
	assert.Equal(t, "mysql", cfg.Hub.Driver)
	assert.Equal(t, "sync:secret@tcp(hub:3306)/pos", cfg.Hub.DSN)
	assert.Equal(t, "/etc/twinsync/mapping.yaml", cfg.Mapping)
	assert.False(t, cfg.Sync.PersistRebase)
	assert.Equal(t, 10*time.Second, cfg.Sync.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/var/log/twinsync.log", cfg.Log.File)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(Options{ConfigFile: filepath.Join(t.TempDir(), "absent.yaml"), EnvFile: noEnvFile(t)})
	assert.Error(t, err)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "twinsync.yaml", "hub:\n  dsn: from-file\nsync:\n  interval: 10s\n")
	t.Setenv("TWINSYNC_HUB_DSN", "from-env")
	t.Setenv("TWINSYNC_SYNC_INTERVAL", "2m")

	cfg, err := Load(Options{ConfigFile: path, EnvFile: noEnvFile(t)})
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Hub.DSN)
	assert.Equal(t, 2*time.Minute, cfg.Sync.Interval)
}

func TestLoad_EnvFile(t *testing.T) {
	const key = "TWINSYNC_EDGE_DSN"
	_, preset := os.LookupEnv(key)
	if preset {
		t.Skipf("%s is set in the environment", key)
	}
	t.Cleanup(func() { os.Unsetenv(key) })

	envFile := writeFile(t, "creds.env", key+"=/tmp/from-dotenv.db\n")
	cfg, err := Load(Options{EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-dotenv.db", cfg.Edge.DSN)
}

func TestLoad_MissingExplicitEnvFile(t *testing.T) {
	_, err := Load(Options{EnvFile: filepath.Join(t.TempDir(), "absent.env")})
	assert.Error(t, err)
}

func TestLoad_FlagsWin(t *testing.T) {
	path := writeFile(t, "twinsync.yaml", "hub:\n  dsn: from-file\n")
	t.Setenv("TWINSYNC_HUB_DSN", "from-env")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("hub-dsn", "", "")
	fs.Bool("force", false, "")
	fs.String("unrelated", "", "")
	require.NoError(t, fs.Parse([]string{"--hub-dsn", "from-flag", "--force"}))

	cfg, err := Load(Options{ConfigFile: path, EnvFile: noEnvFile(t), Flags: fs})
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Hub.DSN)
	assert.True(t, cfg.Sync.Force)
}

func TestLoad_UnsetFlagKeepsLowerSources(t *testing.T) {
	path := writeFile(t, "twinsync.yaml", "hub:\n  dsn: from-file\n")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("hub-dsn", "flag-default", "")
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load(Options{ConfigFile: path, EnvFile: noEnvFile(t), Flags: fs})
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Hub.DSN)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Edge: Side{Driver: "sqlite3", DSN: "edge.db"},
			Hub:  Side{Driver: "mysql", DSN: "u:p@tcp(h)/db"},
			Sync: Sync{Interval: time.Second},
			Log:  Log{Level: "warn", Format: "json"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing edge dsn", func(c *Config) { c.Edge.DSN = "" }, "edge.dsn is required"},
		{"unknown hub driver", func(c *Config) { c.Hub.Driver = "postgres" }, `hub.driver "postgres"`},
		{"negative interval", func(c *Config) { c.Sync.Interval = -time.Second }, "sync.interval"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, syncerr.IsInvalid(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	l, err = ParseLevel("ERROR")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelError, l)

	_, err = ParseLevel("")
	assert.Error(t, err)
}
