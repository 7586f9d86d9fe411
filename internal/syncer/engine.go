package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/yatra/internal/model"
	"github.com/roach88/yatra/internal/remote"
	"github.com/roach88/yatra/internal/store"
)

// Default scheduling parameters.
const (
	DefaultIntervalOnline  = 5 * time.Second
	DefaultIntervalOffline = 30 * time.Second
	DefaultMaxAttempts     = 5
	// DefaultBatchSize bounds the records sent in one bulk create call.
	DefaultBatchSize = 500
)

// State is the engine's position in the sync state machine.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateBackoff State = "backoff"
)

// Status is a snapshot of the engine for display.
type Status struct {
	State             State      `json:"state"`
	Online            bool       `json:"online"`
	Pending           int        `json:"pending"`
	LastSyncAt        *time.Time `json:"last_sync_at,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	Attempt           int        `json:"attempt"`
	PersistentFailure bool       `json:"persistent_failure"`
}

// Engine runs sync cycles between a local store and a remote adapter.
//
// Thread-safety model:
//   - Run(), SyncNow(): at most one active at a time (ErrRunning otherwise)
//   - Trigger(), Push(), NotifyCompletion(), Status(): safe from any goroutine
type Engine struct {
	store  *store.Store
	remote remote.Adapter
	logger *slog.Logger
	now    func() time.Time

	intervalOnline  time.Duration
	intervalOffline time.Duration
	backoff         Backoff
	maxAttempts     int
	batchSize       int

	onCycle func(err error)
	onRetry func(attempt int, delay time.Duration)

	trigger chan struct{} // buffered, size 1: coalesces requests
	running atomic.Bool

	mu     sync.Mutex
	state  State
	online bool
	// attempt counts retries scheduled since the last success.
	attempt    int
	lastErr    string
	persistent bool

	pushCtx    context.Context
	pushCancel context.CancelFunc
	pushes     sync.WaitGroup
	closed     bool
	done       chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithNow sets the wall clock used to stamp last_sync_at.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIntervals sets the poll interval while online and while offline.
func WithIntervals(online, offline time.Duration) Option {
	return func(e *Engine) {
		e.intervalOnline = online
		e.intervalOffline = offline
	}
}

// WithBackoff sets the retry delay policy.
func WithBackoff(b Backoff) Option {
	return func(e *Engine) { e.backoff = b }
}

// WithMaxAttempts bounds the retries scheduled after consecutive failures.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) { e.maxAttempts = n }
}

// WithBatchSize sets how many pending records go in one bulk create call.
// Values below 1 restore DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(e *Engine) { e.batchSize = n }
}

// WithCycleHook calls fn after every cycle with its result.
func WithCycleHook(fn func(err error)) Option {
	return func(e *Engine) { e.onCycle = fn }
}

// WithRetryHook calls fn whenever a retry is scheduled.
func WithRetryHook(fn func(attempt int, delay time.Duration)) Option {
	return func(e *Engine) { e.onRetry = fn }
}

// New creates an Engine. It starts nothing: call Run for the scheduled loop
// or SyncNow for a single cycle.
func New(st *store.Store, rem remote.Adapter, opts ...Option) *Engine {
	e := &Engine{
		store:           st,
		remote:          rem,
		logger:          slog.Default(),
		now:             time.Now,
		intervalOnline:  DefaultIntervalOnline,
		intervalOffline: DefaultIntervalOffline,
		backoff:         DefaultBackoff(),
		maxAttempts:     DefaultMaxAttempts,
		batchSize:       DefaultBatchSize,
		trigger:         make(chan struct{}, 1),
		state:           StateIdle,
		online:          true,
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.batchSize < 1 {
		e.batchSize = DefaultBatchSize
	}
	e.pushCtx, e.pushCancel = context.WithCancel(context.Background())
	return e
}

// Run drives scheduled cycles until ctx is cancelled or Close is called.
// The first cycle starts immediately.
func (e *Engine) Run(ctx context.Context) error {
	if e.isClosed() {
		return ErrClosed
	}
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer e.running.Store(false)

	e.logger.Info("sync engine starting",
		"interval_online", e.intervalOnline,
		"interval_offline", e.intervalOffline)

	if err := ctx.Err(); err != nil {
		return err
	}
	timer := time.NewTimer(e.step(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("sync engine stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-e.done:
			e.logger.Info("sync engine stopping", "reason", "closed")
			return nil
		case <-timer.C:
		case <-e.trigger:
		}

		timer.Reset(e.step(ctx))
	}
}

// Trigger requests a cycle as soon as possible. Requests made while a cycle
// is in flight coalesce into a single rerun. During backoff a trigger runs
// the pending retry early.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// SyncNow runs one cycle on the caller's goroutine. It fails with ErrRunning
// while Run is active. A failed cycle updates the status but schedules no
// retry.
func (e *Engine) SyncNow(ctx context.Context) error {
	if e.isClosed() {
		return ErrClosed
	}
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer e.running.Store(false)

	err := e.cycle(ctx)
	e.mu.Lock()
	if err != nil {
		e.recordFailure(err)
	} else {
		e.recordSuccess()
	}
	e.state = StateIdle
	e.mu.Unlock()
	if e.onCycle != nil {
		e.onCycle(err)
	}
	return err
}

// Status returns the current engine snapshot.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	pending, err := e.store.PendingCount(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("status: %w", err)
	}
	last, ok, err := e.store.LastSyncAt(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("status: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		State:             e.state,
		Online:            e.online,
		Pending:           pending,
		LastError:         e.lastErr,
		Attempt:           e.attempt,
		PersistentFailure: e.persistent,
	}
	if ok {
		st.LastSyncAt = &last
	}
	return st, nil
}

// step runs one cycle and returns how long to wait before the next one.
func (e *Engine) step(ctx context.Context) time.Duration {
	err := e.cycle(ctx)
	next, retry := e.schedule(err)

	if retry > 0 {
		e.logger.Warn("sync failed, retrying", "attempt", retry, "delay", next, "error", err)
		if e.onRetry != nil {
			e.onRetry(retry, next)
		}
	}
	if e.onCycle != nil {
		e.onCycle(err)
	}
	return next
}

// schedule records the outcome of a cycle and picks the next wake-up.
// retry is the retry number when a backoff retry was scheduled, else 0.
func (e *Engine) schedule(err error) (next time.Duration, retry int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err == nil {
		e.recordSuccess()
		e.state = StateIdle
		return e.intervalOnline, 0
	}
	e.recordFailure(err)

	if e.attempt >= e.maxAttempts {
		e.logger.Error("sync retries exhausted", "attempts", e.attempt, "error", err)
		e.attempt = 0
		e.persistent = true
		e.state = StateIdle
		return e.idleInterval(), 0
	}

	delay := e.backoff.Delay(e.attempt)
	e.attempt++
	e.state = StateBackoff
	return delay, e.attempt
}

// recordSuccess resets failure tracking. Caller must hold mu.
func (e *Engine) recordSuccess() {
	e.attempt = 0
	e.online = true
	e.lastErr = ""
	e.persistent = false
}

// recordFailure notes err. Caller must hold mu.
func (e *Engine) recordFailure(err error) {
	e.lastErr = err.Error()
	if remote.IsUnavailable(err) {
		e.online = false
	}
}

// idleInterval returns the poll interval for the current connectivity.
// Caller must hold mu.
func (e *Engine) idleInterval() time.Duration {
	if e.online {
		return e.intervalOnline
	}
	return e.intervalOffline
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

// cycle performs pull, merge and push. Each store mutation is its own
// transaction, so a failure leaves nothing half-written.
func (e *Engine) cycle(ctx context.Context) error {
	e.setState(StateSyncing)
	start := time.Now()

	if err := e.pullRoster(ctx); err != nil {
		return err
	}

	remoteScans, err := e.remote.ListScanRecords(ctx)
	if err != nil {
		return fmt.Errorf("fetch scan records: %w", err)
	}

	var pending []model.ScanRecord
	err = e.store.Update(ctx, func(tx *store.Tx) error {
		local, err := tx.ReadScanLog(ctx)
		if err != nil {
			return err
		}
		pending, err = tx.ReadPending(ctx)
		if err != nil {
			return err
		}
		return tx.ReplaceScanLog(ctx, Merge(local, pending, remoteScans))
	})
	if err != nil {
		return fmt.Errorf("merge scan log: %w", err)
	}

	if err := e.pushPending(ctx, pending); err != nil {
		return err
	}

	at := e.now().UTC()
	if err := e.store.SetLastSyncAt(ctx, at); err != nil {
		return fmt.Errorf("record last sync: %w", err)
	}

	e.logger.Debug("sync cycle complete",
		"remote_records", len(remoteScans),
		"pushed", len(pending),
		"duration", time.Since(start))
	return nil
}

func (e *Engine) pullRoster(ctx context.Context) error {
	roster, err := e.remote.ListParticipants(ctx)
	if err != nil {
		return fmt.Errorf("fetch roster: %w", err)
	}
	roster = model.NormalizeRoster(roster)
	fp, err := model.RosterFingerprint(roster)
	if err != nil {
		return fmt.Errorf("fingerprint roster: %w", err)
	}

	err = e.store.Update(ctx, func(tx *store.Tx) error {
		old, _, err := tx.GetMeta(ctx, store.KeyRosterFingerprint)
		if err != nil {
			return err
		}
		if old == fp {
			return nil
		}
		if err := tx.ReplaceRoster(ctx, roster); err != nil {
			return err
		}
		e.logger.Info("roster updated", "participants", len(roster))
		return tx.SetMeta(ctx, store.KeyRosterFingerprint, fp)
	})
	if err != nil {
		return fmt.Errorf("cache roster: %w", err)
	}
	return nil
}

// pushPending sends the queue in batches of at most batchSize records and
// dequeues exactly the accepted IDs. Each batch is committed before the next
// is sent, so a failure mid-queue keeps the progress already made.
func (e *Engine) pushPending(ctx context.Context, pending []model.ScanRecord) error {
	if len(pending) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(pending))
	for start := 0; start < len(pending); start += e.batchSize {
		batch := pending[start:min(start+e.batchSize, len(pending))]
		res, err := e.remote.BulkCreateScanRecords(ctx, batch)
		if err != nil {
			return fmt.Errorf("push pending: %w", err)
		}

		inBatch := model.IDSet(batch)
		accepted := make([]string, 0, len(res.AcceptedIDs))
		for _, id := range res.AcceptedIDs {
			if _, ok := inBatch[id]; !ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			accepted = append(accepted, id)
		}

		if _, err := e.store.MarkSynced(ctx, accepted); err != nil {
			return fmt.Errorf("mark synced: %w", err)
		}
	}

	if len(seen) < len(pending) {
		remaining := make([]string, 0, len(pending)-len(seen))
		for _, r := range pending {
			if _, ok := seen[r.ID]; !ok {
				remaining = append(remaining, r.ID)
			}
		}
		return &PartialSyncError{Accepted: len(seen), Total: len(pending), Remaining: remaining}
	}
	return nil
}

// Push sends rec to the remote in the background. On acceptance the record
// is marked synced; on any failure it stays queued.
func (e *Engine) Push(rec model.ScanRecord) {
	e.async(func(ctx context.Context) {
		ok, err := e.remote.CreateScanRecord(ctx, rec)
		if err != nil || !ok {
			e.logger.Debug("push deferred to next sync", "scan_id", rec.ID, "error", err)
			return
		}
		if _, err := e.store.MarkSynced(ctx, []string{rec.ID}); err != nil {
			e.logger.Warn("mark pushed record synced", "scan_id", rec.ID, "error", err)
		}
	})
}

// NotifyCompletion reports a closed cycle in the background. Failures are
// logged and dropped: completion events are informational.
func (e *Engine) NotifyCompletion(ev model.CompletionEvent) {
	e.async(func(ctx context.Context) {
		if err := e.remote.CreateCompletionEvent(ctx, ev); err != nil {
			e.logger.Warn("completion event not delivered",
				"participant_id", ev.ParticipantID,
				"cycle", ev.CycleNumber,
				"error", err)
		}
	})
}

func (e *Engine) async(fn func(ctx context.Context)) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.pushes.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.pushes.Done()
		fn(e.pushCtx)
	}()
}

// Drain waits for background pushes to finish or for ctx to end.
func (e *Engine) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.pushes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops Run, cancels background pushes and waits for them to exit.
// Safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.done)
	e.mu.Unlock()

	e.pushCancel()
	e.pushes.Wait()
	return nil
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
