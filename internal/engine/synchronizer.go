package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/twinsync/internal/dialect"
	"github.com/roach88/twinsync/internal/mapper"
	"github.com/roach88/twinsync/internal/provision"
	"github.com/roach88/twinsync/internal/store"
	"github.com/roach88/twinsync/internal/syncerr"
)

// CycleState is a step of the sync cycle state machine.
type CycleState int32

const (
	StateIdle CycleState = iota
	StateLocking
	StateFetching
	StateMerging
	StateApplying
	StateAdvancing
	StateRejected
)

// String returns the state name.
func (s CycleState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLocking:
		return "locking"
	case StateFetching:
		return "fetching"
	case StateMerging:
		return "merging"
	case StateApplying:
		return "applying"
	case StateAdvancing:
		return "advancing"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Synchronizer keeps an edge and a hub in step. It owns the schema mapping
// for the session and runs one cycle at a time.
type Synchronizer struct {
	local  *store.Store
	remote *store.Store

	overrides     *mapper.Overrides
	mapper        *mapper.Mapper
	logger        *slog.Logger
	ids           CycleIDGenerator
	persistRebase bool

	mu    sync.Mutex // serializes cycles and Remap
	state atomic.Int32
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithOverrides sets the mapping overrides used to pair names.
func WithOverrides(ov *mapper.Overrides) Option {
	return func(s *Synchronizer) {
		s.overrides = ov
	}
}

// WithPersistRebase controls whether a rebased pre-image is written back to
// the origin change log. Defaults to true.
func WithPersistRebase(persist bool) Option {
	return func(s *Synchronizer) {
		s.persistRebase = persist
	}
}

// WithCycleIDGenerator sets the cycle id source. Defaults to UUIDv7.
func WithCycleIDGenerator(g CycleIDGenerator) Option {
	return func(s *Synchronizer) {
		if g != nil {
			s.ids = g
		}
	}
}

// New validates both sides and builds the session's schema mapping.
//
// local must be an edge and remote a hub. A side that lacks its bookkeeping
// tables or capture triggers yields an initialization failure.
func New(ctx context.Context, local, remote *store.Store, opts ...Option) (*Synchronizer, error) {
	if local == nil || remote == nil {
		return nil, syncerr.NewInvalid(syncerr.ReasonMissingArgument, "both an edge and a hub database are required")
	}
	if local.Role() != dialect.RoleEdge || remote.Role() != dialect.RoleHub {
		return nil, syncerr.NewInvalid(syncerr.ReasonMissingArgument,
			fmt.Sprintf("want edge and hub, got %s and %s", local.Role(), remote.Role()))
	}

	s := &Synchronizer{
		local:         local,
		remote:        remote,
		logger:        slog.Default(),
		ids:           UUIDv7Generator{},
		persistRebase: true,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, side := range []*store.Store{local, remote} {
		if err := provision.Validate(ctx, side); err != nil {
			return nil, syncerr.NewInitializationFailure(side.Name(), "side is not provisioned for sync", err)
		}
	}

	m, err := mapper.Build(ctx, local, remote, s.overrides)
	if err != nil {
		return nil, err
	}
	s.mapper = m

	return s, nil
}

// Mapper returns the current schema mapping.
func (s *Synchronizer) Mapper() *mapper.Mapper {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapper
}

// Remap rebuilds the schema mapping, for example after the overrides file
// changed. The old mapping stays in place if the rebuild fails.
func (s *Synchronizer) Remap(ctx context.Context, ov *mapper.Overrides) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := mapper.Build(ctx, s.local, s.remote, ov)
	if err != nil {
		return err
	}
	s.overrides = ov
	s.mapper = m
	s.logger.Info("schema mapping rebuilt", "tables", len(m.Tables()))
	return nil
}

// State returns the state of the cycle in progress, or StateIdle.
func (s *Synchronizer) State() CycleState {
	return CycleState(s.state.Load())
}

func (s *Synchronizer) setState(log *slog.Logger, st CycleState) {
	s.state.Store(int32(st))
	log.Debug("sync state", "state", st.String())
}

// Synchronize runs one unforced cycle.
func (s *Synchronizer) Synchronize(ctx context.Context) (*Report, error) {
	return s.SynchronizeChanges(ctx, false)
}

// SynchronizeChanges runs one full cycle from the stored watermarks.
//
// Without force, a held hub lock fails the cycle with a sync-in-progress
// error before anything is read. The returned Report is non-nil even on
// error and describes how far the cycle got.
func (s *Synchronizer) SynchronizeChanges(ctx context.Context, force bool) (report *Report, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	report = &Report{CycleID: s.ids.Generate(), Forced: force, Results: []ApplyResult{}}
	log := s.logger.With("cycle", report.CycleID)

	s.setState(log, StateLocking)
	if err := s.remote.AcquireLock(ctx, force); err != nil {
		if syncerr.IsSyncInProgress(err) {
			s.setState(log, StateRejected)
			log.Warn("sync rejected, lock held", "side", s.remote.Name())
		}
		s.setState(log, StateIdle)
		return report, err
	}

	defer func() {
		// Release even when ctx is cancelled.
		if relErr := s.remote.ReleaseLock(context.WithoutCancel(ctx)); relErr != nil {
			log.Error("release sync lock", "error", relErr)
			if err == nil {
				err = relErr
			}
		}
		s.setState(log, StateIdle)
		report.Elapsed = time.Since(started)
	}()

	if err := s.runCycle(ctx, log, report); err != nil {
		log.Error("sync cycle failed", "error", err)
		return report, err
	}

	log.Info("sync cycle complete",
		"local_fetched", report.LocalFetched,
		"remote_fetched", report.RemoteFetched,
		"absorbed", report.Absorbed,
		"applied", report.Applied,
		"dropped", report.Dropped,
		"advanced", report.Advanced)
	return report, nil
}

func (s *Synchronizer) runCycle(ctx context.Context, log *slog.Logger, report *Report) error {
	s.setState(log, StateFetching)
	wm, err := s.local.LoadWatermark(ctx)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	report.Before = wm

	localRecords, err := s.local.RecordsAfter(ctx, wm.LocalLastID)
	if err != nil {
		return fmt.Errorf("fetch edge changes: %w", err)
	}
	remoteRecords, err := s.remote.RecordsAfter(ctx, wm.RemoteLastID)
	if err != nil {
		return fmt.Errorf("fetch hub changes: %w", err)
	}
	report.LocalFetched = len(localRecords)
	report.RemoteFetched = len(remoteRecords)

	merged := append(wrap(localRecords, LocalToRemote, s.local), wrap(remoteRecords, RemoteToLocal, s.remote)...)

	s.setState(log, StateMerging)
	scheduled, absorbed := Coalesce(merged)
	report.Absorbed = len(absorbed)
	report.Scheduled = len(scheduled)
	if err := s.recordRebases(ctx, log, absorbed); err != nil {
		return err
	}

	s.setState(log, StateApplying)
	applier := NewApplier(s.mapper, s.local, s.remote, log)
	for _, dc := range scheduled {
		res, err := applier.Apply(ctx, dc)
		report.Results = append(report.Results, res)
		if err != nil {
			return err
		}
		if res.Outcome == OutcomeApplied {
			report.Applied++
		} else {
			report.Dropped++
		}
	}

	if len(merged) == 0 {
		return nil
	}

	s.setState(log, StateAdvancing)
	localLatest, err := s.local.LatestID(ctx)
	if err != nil {
		return fmt.Errorf("advance: %w", err)
	}
	remoteLatest, err := s.remote.LatestID(ctx)
	if err != nil {
		return fmt.Errorf("advance: %w", err)
	}
	if err := s.local.SaveWatermark(ctx, localLatest, remoteLatest); err != nil {
		return fmt.Errorf("advance: %w", err)
	}
	report.After = &store.Watermark{LocalLastID: localLatest, RemoteLastID: remoteLatest}
	report.Advanced = true

	return nil
}

// recordRebases writes each rebased pre-image back to its origin change log.
func (s *Synchronizer) recordRebases(ctx context.Context, log *slog.Logger, absorbed []Absorption) error {
	seen := make(map[*DirectedChange]bool)
	for _, abs := range absorbed {
		log.Debug("change absorbed",
			"change_id", abs.Absorbed.Record.ID,
			"direction", abs.Absorbed.Direction.String(),
			"table", abs.Absorbed.Record.Table,
			"rebased", len(abs.Rebased))
		for _, dc := range abs.Rebased {
			seen[dc] = true
		}
	}
	if !s.persistRebase {
		return nil
	}
	// Walk in absorption order so writes are deterministic.
	for _, abs := range absorbed {
		for _, dc := range abs.Rebased {
			if !seen[dc] {
				continue
			}
			delete(seen, dc)
			if err := dc.Origin.RewriteOldValues(ctx, dc.Record.ID, dc.Record.Old); err != nil {
				return fmt.Errorf("merge: %w", err)
			}
		}
	}
	return nil
}
