package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/twinsync/internal/config"
	"github.com/roach88/twinsync/internal/dialect"
	"github.com/roach88/twinsync/internal/engine"
	"github.com/roach88/twinsync/internal/mapper"
	"github.com/roach88/twinsync/internal/store"
	"github.com/roach88/twinsync/internal/syncerr"
)

// sides holds the open edge and hub stores for one command.
type sides struct {
	edge *store.Store
	hub  *store.Store
}

func (s *sides) Close() error {
	return errors.Join(s.edge.Close(), s.hub.Close())
}

func sideConfig(cfg *config.Config, role dialect.Role) config.Side {
	if role == dialect.RoleHub {
		return cfg.Hub
	}
	return cfg.Edge
}

// openSide opens one side, checking only that side's settings.
func openSide(ctx context.Context, cfg *config.Config, role dialect.Role) (*store.Store, error) {
	sc := sideConfig(cfg, role)
	if sc.DSN == "" {
		return nil, syncerr.NewInvalid(config.ReasonBadConfig, fmt.Sprintf("%s.dsn is required", role))
	}
	st, err := store.Open(ctx, sc.Driver, sc.DSN, role)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", role, err)
	}
	return st, nil
}

// openSides validates the config and opens both sides.
func openSides(ctx context.Context, cfg *config.Config) (*sides, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	edge, err := openSide(ctx, cfg, dialect.RoleEdge)
	if err != nil {
		return nil, err
	}
	hub, err := openSide(ctx, cfg, dialect.RoleHub)
	if err != nil {
		edge.Close()
		return nil, err
	}
	return &sides{edge: edge, hub: hub}, nil
}

// newSynchronizer builds a synchronizer from the config's sync and mapping
// settings.
func newSynchronizer(ctx context.Context, opts *RootOptions, s *sides) (*engine.Synchronizer, error) {
	ov, err := mapper.LoadOverrides(opts.Config.Mapping)
	if err != nil {
		return nil, err
	}
	return engine.New(ctx, s.edge, s.hub,
		engine.WithLogger(opts.Logger),
		engine.WithOverrides(ov),
		engine.WithPersistRebase(opts.Config.Sync.PersistRebase),
	)
}
