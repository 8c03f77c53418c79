package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/twinsync/internal/syncerr"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle",
		Long: `Run one sync cycle between the edge and the hub and print its report.

Without --force the cycle is refused while another cycle holds the hub lock.

Example:
  twinsync sync --config /etc/twinsync.yaml
  twinsync sync --force --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}

	cmd.Flags().Bool("force", false, "run even if the hub lock is held")
	cmd.Flags().Bool("persist-rebase", true, "write rebased pre-images back to the origin change log")

	return cmd
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	s, err := openSides(ctx, opts.Config)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open databases", err)
	}
	defer s.Close()

	syncer, err := newSynchronizer(ctx, opts, s)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to start sync", err)
	}

	report, err := syncer.SynchronizeChanges(ctx, opts.Config.Sync.Force)
	if err != nil {
		if syncerr.IsSyncInProgress(err) {
			return formatter.Fail(ExitFailure, "another sync holds the hub lock (use --force or unlock)", err)
		}
		return formatter.Fail(ExitFailure, "sync failed", err)
	}

	for _, r := range report.Results {
		formatter.VerboseLog("%s change %d %s.%s -> %s (affected %d)",
			r.Direction, r.ChangeID, r.Table, r.Kind, r.Outcome, r.Affected)
	}

	return formatter.Result(report.String(), report)
}
