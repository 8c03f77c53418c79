package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/twinsync/internal/dialect"
	"github.com/roach88/twinsync/internal/provision"
	"github.com/roach88/twinsync/internal/syncerr"
)

// ProvisionOptions holds flags for the provision command.
type ProvisionOptions struct {
	*RootOptions
	Side string
}

// NewProvisionCommand creates the provision command.
func NewProvisionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProvisionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Prepare a database for sync",
		Long: `Create the change log and bookkeeping tables on one side, then add
insert and update capture triggers to every existing table.

The edge gets the watermark table; the hub gets the sync lock. Provisioning a
side twice is refused.

Example:
  twinsync provision --side edge --edge-dsn ./pos.db
  twinsync provision --side hub --hub-driver mysql --hub-dsn 'u:p@tcp(hub:3306)/pos'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Side, "side", "", "side to provision (edge|hub, required)")
	_ = cmd.MarkFlagRequired("side")

	return cmd
}

func runProvision(opts *ProvisionOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	role, err := dialect.ParseRole(opts.Side)
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid --side", err)
	}

	st, err := openSide(ctx, opts.Config, role)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	result, err := provision.Convert(ctx, st)
	if err != nil {
		if syncerr.IsAlreadyProvisioned(err) {
			return formatter.Fail(ExitCommandError, fmt.Sprintf("%s is already provisioned", role), err)
		}
		return formatter.Fail(ExitCommandError, "provisioning failed", err)
	}

	formatter.VerboseLog("Triggers: %s", strings.Join(result.Triggers, ", "))
	text := fmt.Sprintf("✓ Provisioned %s: %d bookkeeping table(s), %d trigger(s)",
		result.Side, len(result.Tables), len(result.Triggers))
	return formatter.Result(text, result)
}
