package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/twinsync/internal/store"
)

// StatusResult is what the status command reports.
type StatusResult struct {
	LockHeld     bool              `json:"lock_held"`
	EdgeLatestID int64             `json:"edge_latest_id"`
	HubLatestID  int64             `json:"hub_latest_id"`
	EdgePending  int               `json:"edge_pending"`
	HubPending   int               `json:"hub_pending"`
	Watermarks   []store.Watermark `json:"watermarks"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the lock, change-log heads and recent watermarks",
		Long: `Show whether the hub lock is held, the newest change id on each side,
how many changes each side has past the current watermark, and the most
recent watermark rows.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, limit, cmd)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of watermark rows to show")

	return cmd
}

func runStatus(opts *RootOptions, limit int, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	s, err := openSides(ctx, opts.Config)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open databases", err)
	}
	defer s.Close()

	var result StatusResult
	if result.LockHeld, err = s.hub.LockHeld(ctx); err != nil {
		return formatter.Fail(ExitCommandError, "failed to read lock", err)
	}
	if result.EdgeLatestID, err = s.edge.LatestID(ctx); err != nil {
		return formatter.Fail(ExitCommandError, "failed to read edge change log", err)
	}
	if result.HubLatestID, err = s.hub.LatestID(ctx); err != nil {
		return formatter.Fail(ExitCommandError, "failed to read hub change log", err)
	}
	if result.Watermarks, err = s.edge.WatermarkHistory(ctx, limit); err != nil {
		return formatter.Fail(ExitCommandError, "failed to read watermarks", err)
	}

	current, err := s.edge.LoadWatermark(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to read watermark", err)
	}
	edgePending, err := s.edge.RecordsAfter(ctx, current.LocalLastID)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to read edge change log", err)
	}
	hubPending, err := s.hub.RecordsAfter(ctx, current.RemoteLastID)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to read hub change log", err)
	}
	result.EdgePending = len(edgePending)
	result.HubPending = len(hubPending)

	return formatter.Result(statusText(result), result)
}

func statusText(r StatusResult) string {
	var b strings.Builder
	lock := "free"
	if r.LockHeld {
		lock = "HELD"
	}
	fmt.Fprintf(&b, "hub lock: %s\n", lock)
	fmt.Fprintf(&b, "edge: latest change %d, %d pending\n", r.EdgeLatestID, r.EdgePending)
	fmt.Fprintf(&b, "hub:  latest change %d, %d pending\n", r.HubLatestID, r.HubPending)
	if len(r.Watermarks) == 0 {
		b.WriteString("no sync has advanced the watermark yet")
		return b.String()
	}
	b.WriteString("watermarks (newest first):")
	for _, wm := range r.Watermarks {
		fmt.Fprintf(&b, "\n  #%d edge %d, hub %d at %s", wm.ID, wm.LocalLastID, wm.RemoteLastID, wm.SyncedAt)
	}
	return b.String()
}
