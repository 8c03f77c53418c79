package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/twinsync/internal/provision"
	"github.com/roach88/twinsync/internal/store"
)

// SideHealth is the validation outcome for one side.
type SideHealth struct {
	Side     string   `json:"side"`
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

// ValidationResult holds validation results for both sides.
type ValidationResult struct {
	Valid bool         `json:"valid"`
	Sides []SideHealth `json:"sides"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that both sides are provisioned",
		Long: `Check that the edge and the hub carry their change log, bookkeeping
tables and capture triggers. Every missing object is listed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	s, err := openSides(ctx, opts.Config)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open databases", err)
	}
	defer s.Close()

	result := ValidationResult{Valid: true}
	for _, st := range []*store.Store{s.edge, s.hub} {
		health := checkSide(ctx, st)
		result.Valid = result.Valid && health.Valid
		result.Sides = append(result.Sides, health)
	}

	if !result.Valid {
		if opts.Format == "json" {
			_ = formatter.Error("NOT_FOUND", "sides are not fully provisioned", result)
		} else {
			fmt.Fprintln(formatter.Writer, validationText(result))
		}
		return NewExitError(ExitCommandError, "validation failed")
	}

	return formatter.Result("✓ Edge and hub are provisioned", result)
}

func checkSide(ctx context.Context, st *store.Store) SideHealth {
	health := SideHealth{Side: st.Name(), Valid: true}
	err := provision.Validate(ctx, st)
	if err == nil {
		return health
	}
	health.Valid = false

	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			health.Problems = append(health.Problems, e.Error())
		}
	} else {
		health.Problems = []string{err.Error()}
	}
	return health
}

func validationText(r ValidationResult) string {
	var b strings.Builder
	for _, side := range r.Sides {
		if side.Valid {
			fmt.Fprintf(&b, "✓ %s\n", side.Side)
			continue
		}
		fmt.Fprintf(&b, "✗ %s\n", side.Side)
		for _, p := range side.Problems {
			fmt.Fprintf(&b, "  %s\n", p)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
