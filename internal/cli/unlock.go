package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/twinsync/internal/dialect"
	"github.com/roach88/twinsync/internal/provision"
)

// NewUnlockCommand creates the unlock command.
func NewUnlockCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Clear a hub lock left by a cycle that never finished",
		Long: `Clear the hub's sync lock. Use only when no cycle is running,
for example after a sync process was killed mid-cycle.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			ctx := cmd.Context()

			hub, err := openSide(ctx, rootOpts.Config, dialect.RoleHub)
			if err != nil {
				return formatter.Fail(ExitCommandError, "failed to open hub", err)
			}
			defer hub.Close()

			if err := provision.Unlock(ctx, hub); err != nil {
				return formatter.Fail(ExitCommandError, "failed to clear lock", err)
			}
			return formatter.Result("✓ Hub lock cleared", map[string]bool{"lock_held": false})
		},
	}

	return cmd
}
