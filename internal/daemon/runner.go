// Package daemon runs sync cycles on an interval for long-running edge
// deployments.
//
// Each tick runs one cycle. A cycle rejected because another process holds
// the hub lock is retried on the next tick. When a mapping overrides file is
// configured, edits to it rebuild the schema mapping between cycles.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/twinsync/internal/engine"
	"github.com/roach88/twinsync/internal/mapper"
	"github.com/roach88/twinsync/internal/syncerr"
)

// DefaultInterval is used when Config.Interval is zero.
const DefaultInterval = 30 * time.Second

// Syncer is the part of engine.Synchronizer the runner drives.
type Syncer interface {
	Synchronize(ctx context.Context) (*engine.Report, error)
	Remap(ctx context.Context, ov *mapper.Overrides) error
}

// Config holds runner settings.
type Config struct {
	// Interval between cycle starts.
	Interval time.Duration

	// MappingPath is the overrides file to watch. Empty disables reloads.
	MappingPath string

	// StopOnError ends Run on the first failed cycle. Lock contention never
	// stops the runner.
	StopOnError bool

	// OnCycle, if set, is called after every cycle.
	OnCycle func(*engine.Report, error)

	Logger *slog.Logger
}

// Stats counts what the runner has done so far.
type Stats struct {
	Cycles   int64
	Failures int64
	Rejected int64
	Reloads  int64
}

// Runner calls a Syncer on a ticker until its context ends.
type Runner struct {
	syncer Syncer
	cfg    Config
	logger *slog.Logger

	cycles   atomic.Int64
	failures atomic.Int64
	rejected atomic.Int64
	reloads  atomic.Int64
}

// New creates a runner.
func New(s Syncer, cfg Config) (*Runner, error) {
	if s == nil {
		return nil, syncerr.NewInvalid(syncerr.ReasonMissingArgument, "daemon needs a synchronizer")
	}
	if cfg.Interval < 0 {
		return nil, syncerr.NewInvalid(syncerr.ReasonMissingArgument, fmt.Sprintf("negative interval %s", cfg.Interval))
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{syncer: s, cfg: cfg, logger: logger}, nil
}

// Stats returns a snapshot of the counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Cycles:   r.cycles.Load(),
		Failures: r.failures.Load(),
		Rejected: r.rejected.Load(),
		Reloads:  r.reloads.Load(),
	}
}

// Run runs a cycle immediately and then once per interval. It returns nil
// when ctx is cancelled, or the cycle error when StopOnError is set.
func (r *Runner) Run(ctx context.Context) error {
	var changes <-chan struct{}
	if r.cfg.MappingPath != "" {
		w, err := WatchMapping(r.cfg.MappingPath, r.logger)
		if err != nil {
			return err
		}
		defer w.Close()
		changes = w.Changes()
	}

	r.logger.Info("daemon started", "interval", r.cfg.Interval.String(), "mapping", r.cfg.MappingPath)
	defer func() { r.logger.Info("daemon stopped", "cycles", r.cycles.Load()) }()

	if err := r.tick(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			r.reload(ctx)
		case <-ticker.C:
			if err := r.tick(ctx); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) tick(ctx context.Context) error {
	report, err := r.syncer.Synchronize(ctx)
	r.cycles.Add(1)
	if r.cfg.OnCycle != nil {
		r.cfg.OnCycle(report, err)
	}

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return nil
	case syncerr.IsSyncInProgress(err):
		r.rejected.Add(1)
		r.logger.Warn("sync skipped, hub lock held elsewhere")
		return nil
	}

	r.failures.Add(1)
	r.logger.Error("sync cycle failed", "error", err)
	if r.cfg.StopOnError {
		return fmt.Errorf("daemon: %w", err)
	}
	return nil
}

func (r *Runner) reload(ctx context.Context) {
	ov, err := mapper.LoadOverrides(r.cfg.MappingPath)
	if err == nil {
		err = r.syncer.Remap(ctx, ov)
	}
	if err != nil {
		r.logger.Error("mapping reload failed, keeping previous mapping",
			"code", string(syncerr.CodeOf(err)), "error", err)
		return
	}
	r.reloads.Add(1)
	r.logger.Info("mapping reloaded", "path", r.cfg.MappingPath)
}
