package addresses

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"addrstore/internal/model"
	"addrstore/internal/reconcile"
)

// DefaultMaxRetries is how many times a change is re-planned after a conflict.
const DefaultMaxRetries = 3

// Options tune an Engine. Zero values select the defaults.
type Options struct {
	MaxRetries int
}

// Engine is the public API hosts and sync managers call. It owns no state
// of its own beyond its collaborators.
type Engine struct {
	store      Store
	planner    *reconcile.Planner
	logger     Logger
	clock      Clock
	idgen      IDGenerator
	maxRetries int
}

// NewEngine creates an Engine with the provided dependencies.
func NewEngine(store Store, planner *reconcile.Planner, logger Logger, clock Clock, idgen IDGenerator, opts Options) *Engine {
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}
	return &Engine{
		store:      store,
		planner:    planner,
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
		maxRetries: retries,
	}
}

// Add stores a new address and returns it with its allocated guid.
func (e *Engine) Add(ctx context.Context, addr model.Address) (*model.LocalRecord, error) {
	rec, err := e.store.InsertLocal(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("adding address: %w", err)
	}
	e.logger.Info("address added", "guid", rec.GUID)
	return rec, nil
}

// Update applies patch to an existing address.
func (e *Engine) Update(ctx context.Context, guid string, patch model.Patch) (*model.LocalRecord, error) {
	rec, err := e.store.UpdateLocal(ctx, guid, patch)
	if err != nil {
		return nil, fmt.Errorf("updating address: %w", err)
	}
	e.logger.Info("address updated", "guid", guid, "fields", len(patch))
	return rec, nil
}

// Delete removes an address. It reports false if the guid was unknown.
func (e *Engine) Delete(ctx context.Context, guid string) (bool, error) {
	deleted, err := e.store.DeleteLocal(ctx, guid)
	if err != nil {
		return false, fmt.Errorf("deleting address: %w", err)
	}
	if deleted {
		e.logger.Info("address deleted", "guid", guid)
	}
	return deleted, nil
}

// Touch records that the address was used.
func (e *Engine) Touch(ctx context.Context, guid string) (*model.LocalRecord, error) {
	rec, err := e.store.Touch(ctx, guid)
	if err != nil {
		return nil, fmt.Errorf("touching address: %w", err)
	}
	return rec, nil
}

// Get returns the address with guid, or ErrNotFound.
func (e *Engine) Get(ctx context.Context, guid string) (*model.LocalRecord, error) {
	rec, err := e.store.GetLocal(ctx, guid)
	if err != nil {
		return nil, fmt.Errorf("getting address: %w", err)
	}
	if rec == nil {
		return nil, NotFound(guid)
	}
	return rec, nil
}

// List returns every visible address.
func (e *Engine) List(ctx context.Context) ([]*model.LocalRecord, error) {
	recs, err := e.store.AllLocal(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing addresses: %w", err)
	}
	return recs, nil
}

// ListUnsynced returns the addresses with edits not yet uploaded.
func (e *Engine) ListUnsynced(ctx context.Context) ([]*model.LocalRecord, error) {
	recs, err := e.store.AllUnsyncedLocal(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing unsynced addresses: %w", err)
	}
	return recs, nil
}

// ApplyIncoming reconciles a batch of remote changes one record at a time.
//
// Invalid records and records that keep conflicting after MaxRetries
// attempts are counted as failed and skipped. Any other store error aborts
// the round. Cancellation is checked between records; the partial outcome
// is returned together with the context error. Every round is recorded in
// the history, whatever its status.
func (e *Engine) ApplyIncoming(ctx context.Context, changes []reconcile.IncomingChange) (*RoundOutcome, error) {
	out := &RoundOutcome{
		ID:        e.idgen.New(),
		StartedAt: e.clock.Now(),
		Status:    RoundOK,
		Incoming:  len(changes),
	}
	changed := make(map[string]bool)

	e.logger.Info("sync round started", "round", out.ID, "incoming", len(changes))

	var roundErr error
	for _, change := range changes {
		if err := ctx.Err(); err != nil {
			out.Status = RoundCanceled
			roundErr = err
			break
		}

		if err := validateChange(change); err != nil {
			out.Failed++
			e.logger.Warn("skipping invalid incoming record", "round", out.ID, "error", err)
			continue
		}

		applied, conflicts, err := e.applyOne(ctx, change)
		out.Conflicts += conflicts
		if errors.Is(err, ErrConflict) {
			out.Failed++
			e.logger.Warn("giving up on conflicting record", "round", out.ID, "guid", change.IncomingGUID(), "attempts", conflicts)
			continue
		}
		if err != nil {
			out.Status = RoundFailed
			roundErr = fmt.Errorf("applying %s: %w", change.IncomingGUID(), err)
			break
		}

		switch applied.Kind {
		case reconcile.KindNoop:
			out.NoOps++
			continue
		case reconcile.KindMerge:
			out.Merged++
		case reconcile.KindDedupe:
			out.Deduped++
		}
		out.Applied++
		for _, guid := range applied.Changed {
			changed[guid] = true
		}
	}

	return out, e.finishRound(ctx, out, changed, roundErr)
}

// applyOne plans and applies one change, re-planning on conflict.
// It returns how many conflicts were seen.
func (e *Engine) applyOne(ctx context.Context, change reconcile.IncomingChange) (*reconcile.AppliedOutcome, int, error) {
	guid := change.IncomingGUID()
	conflicts := 0

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		plan, err := e.plan(ctx, change)
		if err != nil {
			return nil, conflicts, err
		}
		if plan.IsNoop() {
			return &reconcile.AppliedOutcome{GUID: guid, Kind: reconcile.KindNoop, Canonical: plan.Canonical}, conflicts, nil
		}

		applied, err := e.store.Apply(ctx, plan)
		if errors.Is(err, ErrConflict) {
			conflicts++
			e.logger.Debug("plan conflicted, retrying", "guid", guid, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, conflicts, err
		}

		e.logger.Debug("incoming change applied",
			"guid", guid, "kind", string(applied.Kind), "canonical", applied.Canonical, "mutations", applied.Mutations)
		return applied, conflicts, nil
	}

	return nil, conflicts, Conflict(guid)
}

func (e *Engine) plan(ctx context.Context, change reconcile.IncomingChange) (*reconcile.UpdatePlan, error) {
	state, err := e.store.LoadState(ctx, change.IncomingGUID())
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	var candidates []*reconcile.State
	if e.planner.NeedsCandidates(state, change) {
		remote := change.(reconcile.Remote)
		candidates, err = e.store.FindDuplicates(ctx, remote.Record.Address, e.planner.DedupeFields)
		if err != nil {
			return nil, fmt.Errorf("finding duplicates: %w", err)
		}
	}

	return e.planner.Plan(reconcile.Input{
		State:      state,
		Change:     change,
		Candidates: candidates,
	}), nil
}

func (e *Engine) finishRound(ctx context.Context, out *RoundOutcome, changed map[string]bool, roundErr error) error {
	out.FinishedAt = e.clock.Now()
	for guid := range changed {
		out.Changed = append(out.Changed, guid)
	}
	sort.Strings(out.Changed)

	// The round is recorded even when ctx was canceled.
	bg := context.WithoutCancel(ctx)

	if unsynced, err := e.store.AllUnsyncedLocal(bg); err != nil {
		roundErr = errors.Join(roundErr, fmt.Errorf("listing unsynced addresses: %w", err))
	} else {
		for _, rec := range unsynced {
			out.Unsynced = append(out.Unsynced, rec.GUID)
		}
	}

	if err := e.store.RecordRound(bg, out); err != nil {
		roundErr = errors.Join(roundErr, fmt.Errorf("recording sync round: %w", err))
	}

	e.logger.Info("sync round finished",
		"round", out.ID,
		"status", out.Status,
		"applied", out.Applied,
		"noops", out.NoOps,
		"merged", out.Merged,
		"deduped", out.Deduped,
		"conflicts", out.Conflicts,
		"failed", out.Failed,
		"duration", out.Duration().String(),
	)
	return roundErr
}

// Outgoing returns the unsynced Local rows and pending Tombstones.
func (e *Engine) Outgoing(ctx context.Context) (*Outgoing, error) {
	recs, err := e.store.AllUnsyncedLocal(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing unsynced addresses: %w", err)
	}
	tombs, err := e.store.AllTombstones(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tombstones: %w", err)
	}
	return &Outgoing{Records: recs, Tombstones: tombs}, nil
}

// MarkSynchronized records a completed upload.
func (e *Engine) MarkSynchronized(ctx context.Context, uploaded []Uploaded) error {
	if len(uploaded) == 0 {
		return nil
	}
	if err := e.store.MarkSynchronized(ctx, uploaded); err != nil {
		return fmt.Errorf("marking synchronized: %w", err)
	}
	e.logger.Info("upload recorded", "count", len(uploaded))
	return nil
}

// ResetSync disconnects the store from its sync account.
func (e *Engine) ResetSync(ctx context.Context) error {
	if err := e.store.ResetSync(ctx); err != nil {
		return fmt.Errorf("resetting sync state: %w", err)
	}
	e.logger.Warn("sync state reset; every address will be uploaded again")
	return nil
}

// History returns the most recent sync rounds, newest first.
func (e *Engine) History(ctx context.Context, limit int) ([]*RoundOutcome, error) {
	rounds, err := e.store.ListRounds(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync rounds: %w", err)
	}
	return rounds, nil
}

func validateChange(change reconcile.IncomingChange) error {
	switch ch := change.(type) {
	case reconcile.Remote:
		if ch.Record == nil {
			return fmt.Errorf("%w: remote change without a record", model.ErrInvalidGUID)
		}
		return ch.Record.Validate()
	case reconcile.RemoteTombstone:
		return model.ValidateGUID(ch.GUID)
	case nil:
		return fmt.Errorf("%w: nil change", model.ErrInvalidGUID)
	}
	return fmt.Errorf("unsupported incoming change %T", change)
}
