package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/twinsync/internal/mapper"
)

// TableView is one resolved table mapping. An empty side means the table or
// column has no counterpart and its changes are dropped.
type TableView struct {
	Local   string       `json:"local"`
	Remote  string       `json:"remote"`
	Columns []ColumnView `json:"columns,omitempty"`
}

// ColumnView is one resolved column mapping.
type ColumnView struct {
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

// NewMappingCommand creates the mapping command.
func NewMappingCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Print the resolved table and column mapping",
		Long: `Introspect both sides, apply the mapping overrides file and print
which edge table and column pairs with which hub table and column.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMapping(rootOpts, cmd)
		},
	}

	return cmd
}

func runMapping(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	s, err := openSides(ctx, opts.Config)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open databases", err)
	}
	defer s.Close()

	ov, err := mapper.LoadOverrides(opts.Config.Mapping)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to load mapping overrides", err)
	}
	m, err := mapper.Build(ctx, s.edge, s.hub, ov)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to build mapping", err)
	}

	views := mappingViews(m)
	return formatter.Result(mappingText(views), views)
}

func mappingViews(m *mapper.Mapper) []TableView {
	views := []TableView{}
	for _, tm := range m.Tables() {
		tv := TableView{Local: tm.Local, Remote: tm.Remote}
		for _, cm := range tm.Columns {
			tv.Columns = append(tv.Columns, ColumnView{Local: cm.Local, Remote: cm.Remote})
		}
		views = append(views, tv)
	}
	return views
}

func orNone(name string) string {
	if name == "" {
		return "(none)"
	}
	return name
}

func mappingText(views []TableView) string {
	if len(views) == 0 {
		return "no tables"
	}
	var b strings.Builder
	for i, tv := range views {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s -> %s", orNone(tv.Local), orNone(tv.Remote))
		for _, cv := range tv.Columns {
			fmt.Fprintf(&b, "\n  %s -> %s", orNone(cv.Local), orNone(cv.Remote))
		}
	}
	return b.String()
}
