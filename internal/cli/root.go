package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/roach88/twinsync/internal/config"
)

// RootOptions holds global flags for all commands, and the configuration
// and logger resolved from them before a command runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	EnvFile    string

	Config *config.Config
	Logger *slog.Logger

	logSink io.Closer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the twinsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "twinsync",
		Short: "twinsync - edge/hub database sync",
		Long: `Keep an edge database and a hub database in step.

Each side records its inserts and updates in a trigger-maintained change log.
A sync cycle reads both logs past the stored watermark, resolves updates that
raced on the same row, and replays the rest on the opposite side with their
original timestamps.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.teardown()
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVarP(&opts.ConfigFile, "config", "c", "", "config file (YAML)")
	pf.StringVar(&opts.EnvFile, "env-file", "", "env file with TWINSYNC_* settings (default ./.env if present)")
	pf.String("edge-driver", "sqlite3", "edge database driver (sqlite3|mysql)")
	pf.String("edge-dsn", "", "edge database DSN")
	pf.String("hub-driver", "sqlite3", "hub database driver (sqlite3|mysql)")
	pf.String("hub-dsn", "", "hub database DSN")
	pf.String("mapping", "", "mapping overrides file (YAML)")
	pf.String("log-level", "info", "log level (debug|info|warn|error)")
	pf.String("log-file", "", "write logs to this file, rotated")

	cmd.AddCommand(NewProvisionCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewUnlockCommand(opts))
	cmd.AddCommand(NewMappingCommand(opts))

	return cmd
}

// setup loads the configuration and installs the logger.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(config.Options{
		ConfigFile: o.ConfigFile,
		EnvFile:    o.EnvFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	o.Config = cfg

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid log level", err)
	}
	if o.Verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = cmd.ErrOrStderr()
	if cfg.Log.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
		}
		o.logSink = lj
		w = lj
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	o.Logger = slog.New(handler)
	slog.SetDefault(o.Logger)
	return nil
}

func (o *RootOptions) teardown() error {
	if o.logSink == nil {
		return nil
	}
	err := o.logSink.Close()
	o.logSink = nil
	return err
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
