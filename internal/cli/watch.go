package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/twinsync/internal/daemon"
	"github.com/roach88/twinsync/internal/engine"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync on an interval until interrupted",
		Long: `Run a sync cycle immediately and then once per interval until
interrupted. Cycles refused by the hub lock are retried on the next tick.
When a mapping file is configured, edits to it take effect between cycles.

Example:
  twinsync watch --interval 15s --log-file /var/log/twinsync.log`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(rootOpts, cmd)
		},
	}

	cmd.Flags().Duration("interval", daemon.DefaultInterval, "time between cycle starts")
	cmd.Flags().Bool("stop-on-error", false, "exit on the first failed cycle")
	cmd.Flags().Bool("persist-rebase", true, "write rebased pre-images back to the origin change log")

	return cmd
}

func runWatch(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSides(ctx, opts.Config)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open databases", err)
	}
	defer s.Close()

	syncer, err := newSynchronizer(ctx, opts, s)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to start sync", err)
	}

	runner, err := daemon.New(syncer, daemon.Config{
		Interval:    opts.Config.Sync.Interval,
		MappingPath: opts.Config.Mapping,
		StopOnError: opts.Config.Sync.StopOnError,
		Logger:      opts.Logger,
		OnCycle: func(r *engine.Report, err error) {
			if err == nil && r != nil && r.Fetched() > 0 {
				formatter.VerboseLog("%s", r.String())
			}
		},
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid watch settings", err)
	}

	if opts.Format != "json" {
		fmt.Fprintf(cmd.OutOrStdout(), "Watching edge and hub every %s. Press Ctrl-C to stop.\n", opts.Config.Sync.Interval)
	}

	if err := runner.Run(ctx); err != nil {
		return formatter.Fail(ExitFailure, "watch stopped", err)
	}

	stats := runner.Stats()
	opts.Logger.Info("watch stopped", "cycles", stats.Cycles, "failures", stats.Failures, "rejected", stats.Rejected)
	return formatter.Result(
		fmt.Sprintf("Stopped after %d cycle(s): %d failed, %d rejected by the lock, %d mapping reload(s)",
			stats.Cycles, stats.Failures, stats.Rejected, stats.Reloads),
		stats)
}
