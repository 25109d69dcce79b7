package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fieldsync-api/internal/models"
	"github.com/noah-isme/fieldsync-api/pkg/config"
	"github.com/noah-isme/fieldsync-api/pkg/remote"
)

type syncQueueStore interface {
	ListPending(ctx context.Context) ([]models.SyncQueueEntry, error)
	ListByStatus(ctx context.Context, status models.SyncEntryStatus) ([]models.SyncQueueEntry, error)
	Delete(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id string, retryCount int, status models.SyncEntryStatus, errMsg string, nextAttemptAt *time.Time) error
	MarkConflict(ctx context.Context, id, errMsg string, serverState *string) error
	CountByStatus(ctx context.Context) (map[models.SyncEntryStatus]int, error)
	ResetFailed(ctx context.Context) (int64, error)
}

type syncStateWriter interface {
	SetSyncStatus(ctx context.Context, id string, status models.SyncState) error
}

type evidenceStateWriter interface {
	syncStateWriter
	PruneBlob(ctx context.Context, id string) error
}

type remotePusher interface {
	Push(ctx context.Context, entityType models.EntityType, action models.SyncAction, entityID string, payload models.SyncPayload) error
	Ping(ctx context.Context) error
}

// SyncEngine drains the durable queue against the remote mutation API.
//
// At most one drain pass runs at a time; concurrent triggers observe the
// in-flight guard and return immediately with Skipped set. Entries are
// processed oldest first, and once an entity hits a conflict or failure its
// remaining entries are deferred, within the pass and across passes, until
// the parked entry is resolved or revived, so per-entity ordering survives
// retries.
type SyncEngine struct {
	queue      syncQueueStore
	checklists syncStateWriter
	evidence   evidenceStateWriter
	findings   syncStateWriter
	remote     remotePusher
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        config.SyncConfig

	inFlight atomic.Bool

	mu          sync.Mutex
	lastSyncAt  *time.Time
	sessionSync int
}

// NewSyncEngine wires the engine. All collaborators are injected; the engine
// owns no global state.
func NewSyncEngine(
	queue syncQueueStore,
	checklists syncStateWriter,
	evidence evidenceStateWriter,
	findings syncStateWriter,
	remoteClient remotePusher,
	cfg config.SyncConfig,
	metrics *MetricsService,
	logger *zap.Logger,
) *SyncEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 5 * time.Minute
	}
	return &SyncEngine{
		queue:      queue,
		checklists: checklists,
		evidence:   evidence,
		findings:   findings,
		remote:     remoteClient,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// Drain runs one pass over the pending queue. It never returns an error for
// per-entry failures; those are recorded on the entries themselves. A second
// concurrent call returns an outcome with Skipped set instead of blocking.
func (e *SyncEngine) Drain(ctx context.Context) (models.SyncOutcome, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.logger.Debug("sync pass already in flight, skipping")
		return models.SyncOutcome{Skipped: true}, nil
	}
	defer e.inFlight.Store(false)

	started := time.Now()
	outcome, err := e.drain(ctx)
	result := "ok"
	if err != nil {
		result = "error"
	} else if outcome.Attempted == 0 && outcome.Deferred > 0 {
		result = "offline"
	}
	e.metrics.ObserveSyncPass(result, time.Since(started))
	return outcome, err
}

func (e *SyncEngine) drain(ctx context.Context) (models.SyncOutcome, error) {
	var outcome models.SyncOutcome

	entries, err := e.queue.ListPending(ctx)
	if err != nil {
		return outcome, err
	}
	if len(entries) == 0 {
		e.touchLastSync()
		return outcome, nil
	}

	// Offline fast path: one probe instead of n timeouts.
	if err := e.remote.Ping(ctx); err != nil {
		e.logger.Info("remote unreachable, deferring sync pass", zap.Int("pending", len(entries)), zap.Error(err))
		outcome.Deferred = len(entries)
		return outcome, nil
	}

	held, err := e.parkedEntities(ctx)
	if err != nil {
		return outcome, err
	}
	now := time.Now()

	for _, entry := range entries {
		if ctx.Err() != nil {
			outcome.Deferred++
			continue
		}
		if held[entry.Key()] {
			outcome.Deferred++
			e.metrics.CountSyncEntry("deferred")
			continue
		}
		if entry.NextAttemptAt != nil && entry.NextAttemptAt.After(now) {
			held[entry.Key()] = true
			outcome.Deferred++
			e.metrics.CountSyncEntry("deferred")
			continue
		}

		outcome.Attempted++
		pushErr := e.remote.Push(ctx, entry.EntityType, entry.Action, entry.EntityID, entry.Payload)

		switch {
		case pushErr == nil:
			e.finishEntry(ctx, entry, &outcome)

		case isConflict(pushErr):
			e.conflictEntry(ctx, entry, pushErr, held, &outcome)

		default:
			e.failEntry(ctx, entry, pushErr, held, &outcome)
		}
	}

	e.touchLastSync()
	e.refreshQueueDepth(ctx)
	return outcome, nil
}

// parkedEntities seeds the hold map with every entity that has a conflicted
// or failed entry sitting in the queue. Those entries no longer appear in the
// pending list, but later pending writes for the same entity must wait behind
// them: transmitting a newer edit first would let the parked payload overwrite
// it once the conflict is resolved keep-mine or the failure is retried.
func (e *SyncEngine) parkedEntities(ctx context.Context) (map[models.EntityKey]bool, error) {
	held := make(map[models.EntityKey]bool)
	for _, status := range []models.SyncEntryStatus{models.SyncEntryConflict, models.SyncEntryFailed} {
		parked, err := e.queue.ListByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		for _, entry := range parked {
			held[entry.Key()] = true
		}
	}
	return held, nil
}

// finishEntry deletes a transmitted entry and marks its entity synced. Local
// store errors here are logged and skipped; the next pass re-converges.
func (e *SyncEngine) finishEntry(ctx context.Context, entry models.SyncQueueEntry, outcome *models.SyncOutcome) {
	if err := e.queue.Delete(ctx, entry.ID); err != nil {
		e.logger.Error("failed to remove transmitted entry", zap.String("entry", entry.ID), zap.Error(err))
		return
	}
	if err := e.markEntity(ctx, entry, models.SyncStateSynced); err != nil {
		e.logger.Error("failed to mark entity synced", zap.String("entry", entry.ID), zap.Error(err))
	}
	outcome.Succeeded++
	e.metrics.CountSyncEntry("succeeded")

	e.mu.Lock()
	e.sessionSync++
	e.mu.Unlock()

	e.logger.Info("sync entry transmitted",
		zap.String("entity_type", string(entry.EntityType)),
		zap.String("entity_id", entry.EntityID),
		zap.String("action", string(entry.Action)))
}

// conflictEntry parks the entry for the resolver and holds the entity for the
// rest of the pass.
func (e *SyncEngine) conflictEntry(ctx context.Context, entry models.SyncQueueEntry, pushErr error, held map[models.EntityKey]bool, outcome *models.SyncOutcome) {
	var serverState *string
	var conflict *remote.ConflictError
	if errors.As(pushErr, &conflict) && len(conflict.ServerState) > 0 {
		s := string(conflict.ServerState)
		serverState = &s
	}

	if err := e.queue.MarkConflict(ctx, entry.ID, pushErr.Error(), serverState); err != nil {
		e.logger.Error("failed to mark entry conflicted", zap.String("entry", entry.ID), zap.Error(err))
	}
	if err := e.markEntity(ctx, entry, models.SyncStateConflict); err != nil {
		e.logger.Error("failed to mark entity conflicted", zap.String("entry", entry.ID), zap.Error(err))
	}

	held[entry.Key()] = true
	outcome.Conflicted++
	e.metrics.CountSyncEntry("conflicted")

	e.logger.Warn("sync conflict detected",
		zap.String("entity_type", string(entry.EntityType)),
		zap.String("entity_id", entry.EntityID),
		zap.Bool("server_state", serverState != nil))
}

// failEntry bumps retry bookkeeping with exponential backoff, flipping the
// entry to failed once the ceiling is hit.
func (e *SyncEngine) failEntry(ctx context.Context, entry models.SyncQueueEntry, pushErr error, held map[models.EntityKey]bool, outcome *models.SyncOutcome) {
	retryCount := entry.RetryCount + 1
	status := models.SyncEntryPending
	var nextAttempt *time.Time

	if retryCount >= entry.MaxRetries {
		status = models.SyncEntryFailed
	} else {
		at := time.Now().Add(e.backoff(entry.RetryCount))
		nextAttempt = &at
	}

	if err := e.queue.RecordFailure(ctx, entry.ID, retryCount, status, pushErr.Error(), nextAttempt); err != nil {
		e.logger.Error("failed to record sync failure", zap.String("entry", entry.ID), zap.Error(err))
	}

	held[entry.Key()] = true
	outcome.Failed++
	e.metrics.CountSyncEntry("failed")

	e.logger.Warn("sync entry failed",
		zap.String("entity_type", string(entry.EntityType)),
		zap.String("entity_id", entry.EntityID),
		zap.Int("retry_count", retryCount),
		zap.Int("max_retries", entry.MaxRetries),
		zap.String("status", string(status)),
		zap.Error(pushErr))
}

// markEntity flips the entity's local sync marker. The switch is exhaustive
// over the closed EntityType set.
func (e *SyncEngine) markEntity(ctx context.Context, entry models.SyncQueueEntry, state models.SyncState) error {
	if entry.Action == models.ActionDelete && state == models.SyncStateSynced {
		return nil
	}
	switch entry.EntityType {
	case models.EntityChecklistItem:
		return e.checklists.SetSyncStatus(ctx, entry.EntityID, state)
	case models.EntityFieldEvidence:
		if err := e.evidence.SetSyncStatus(ctx, entry.EntityID, state); err != nil {
			return err
		}
		if state == models.SyncStateSynced {
			return e.evidence.PruneBlob(ctx, entry.EntityID)
		}
		return nil
	case models.EntityDraftFinding:
		return e.findings.SetSyncStatus(ctx, entry.EntityID, state)
	default:
		e.logger.Error("unknown entity type in queue", zap.String("entity_type", string(entry.EntityType)))
		return nil
	}
}

// backoff computes the delay before retry n+1: base doubled per prior retry,
// capped at BackoffMax.
func (e *SyncEngine) backoff(retryCount int) time.Duration {
	d := e.cfg.BackoffBase
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= e.cfg.BackoffMax {
			return e.cfg.BackoffMax
		}
	}
	if d > e.cfg.BackoffMax {
		return e.cfg.BackoffMax
	}
	return d
}

// RunAuto drains the queue on a fixed interval until the context is
// cancelled. A zero interval disables automatic draining.
func (e *SyncEngine) RunAuto(ctx context.Context) {
	if e.cfg.AutoInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.AutoInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.Drain(ctx); err != nil {
				e.logger.Error("automatic sync pass failed", zap.Error(err))
			}
		}
	}
}

// RetryFailed revives every entry that exhausted its retries.
func (e *SyncEngine) RetryFailed(ctx context.Context) (int64, error) {
	n, err := e.queue.ResetFailed(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info("failed sync entries revived", zap.Int64("count", n))
	}
	return n, nil
}

// Status computes the aggregate view the UI panel polls.
func (e *SyncEngine) Status(ctx context.Context) (models.SyncStatus, error) {
	counts, err := e.queue.CountByStatus(ctx)
	if err != nil {
		return models.SyncStatus{}, err
	}

	status := models.SyncStatus{
		IsSyncing: e.inFlight.Load(),
		Pending:   counts[models.SyncEntryPending],
		Failed:    counts[models.SyncEntryFailed],
		Conflicts: counts[models.SyncEntryConflict],
	}
	status.IsOnline = e.remote.Ping(ctx) == nil

	e.mu.Lock()
	status.LastSyncAt = e.lastSyncAt
	status.SyncedThisSession = e.sessionSync
	e.mu.Unlock()

	return status, nil
}

func (e *SyncEngine) touchLastSync() {
	now := time.Now().UTC()
	e.mu.Lock()
	e.lastSyncAt = &now
	e.mu.Unlock()
}

func (e *SyncEngine) refreshQueueDepth(ctx context.Context) {
	counts, err := e.queue.CountByStatus(ctx)
	if err != nil {
		return
	}
	for _, s := range []models.SyncEntryStatus{models.SyncEntryPending, models.SyncEntryFailed, models.SyncEntryConflict} {
		e.metrics.SetQueueDepth(string(s), counts[s])
	}
}

// isConflict reports whether the push was rejected with a version mismatch.
func isConflict(err error) bool {
	var conflict *remote.ConflictError
	return errors.As(err, &conflict)
}
