// Package ingest records checkpoint scans on the device.
//
// A scan is accepted only after it is durably in both the scan log and the
// pending queue. Network delivery happens afterwards, in the background,
// through a Pusher.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/roach88/yatra/internal/checkpoint"
	"github.com/roach88/yatra/internal/derive"
	"github.com/roach88/yatra/internal/guard"
	"github.com/roach88/yatra/internal/model"
	"github.com/roach88/yatra/internal/store"
)

// Pusher delivers freshly stored scans and completion events to the remote
// store without blocking the caller. Implemented by *syncer.Engine.
type Pusher interface {
	Push(rec model.ScanRecord)
	NotifyCompletion(ev model.CompletionEvent)
}

// Kind classifies an accepted scan by the role of its checkpoint.
type Kind string

const (
	KindDescentStarted Kind = "descent_started"
	KindCycleCompleted Kind = "cycle_completed"
	KindDayComplete    Kind = "day_complete"
)

// Result is the outcome of one scan. It carries enough derived state for the
// caller to render feedback without reading the store again.
type Result struct {
	Duplicate       bool              `json:"duplicate"`
	Participant     model.Participant `json:"participant"`
	Record          *model.ScanRecord `json:"record,omitempty"`
	Kind            Kind              `json:"kind,omitempty"`
	CompletionCount int               `json:"completion_count"`
	// CycleDuration is set when this scan closed a cycle.
	CycleDuration        *time.Duration `json:"-"`
	CycleDurationMinutes *int           `json:"cycle_duration_minutes,omitempty"`
	SaatJatra            bool           `json:"saat_jatra"`
	Message              string         `json:"message"`
	Status               derive.Status  `json:"status"`
}

// Ingester validates, de-duplicates and stores scans.
type Ingester struct {
	store  *store.Store
	pusher Pusher
	logger *slog.Logger
	window time.Duration
	opts   derive.Options

	mu       sync.Mutex
	deviceID string
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithPusher hands accepted scans to p for background delivery.
func WithPusher(p Pusher) Option {
	return func(in *Ingester) { in.pusher = p }
}

// WithDuplicateWindow overrides the duplicate-suppression window.
func WithDuplicateWindow(d time.Duration) Option {
	return func(in *Ingester) { in.window = d }
}

// WithDeriveOptions sets the thresholds used for derived status.
func WithDeriveOptions(o derive.Options) Option {
	return func(in *Ingester) { in.opts = o }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(in *Ingester) { in.logger = l }
}

// New creates an Ingester writing to st.
func New(st *store.Store, opts ...Option) *Ingester {
	in := &Ingester{
		store:  st,
		logger: slog.Default(),
		window: guard.DefaultWindow,
		opts:   derive.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// AddScan records that participant passed checkpointID at now.
//
// The duplicate check and the write run in one store transaction, so two
// concurrent scans of the same participant cannot both pass the guard. If
// the history cannot be read the scan is refused rather than recorded.
func (in *Ingester) AddScan(ctx context.Context, participant model.Participant, checkpointID checkpoint.ID, now time.Time) (Result, error) {
	if !checkpoint.Valid(checkpointID) {
		return Result{}, fmt.Errorf("add scan: %w: %d", ErrUnknownCheckpoint, int(checkpointID))
	}
	now = now.UTC()

	deviceID, err := in.device(ctx)
	if err != nil {
		return Result{}, &LocalPersistenceError{Op: "add scan", Err: err}
	}
	volunteerID, err := in.store.VolunteerID(ctx)
	if err != nil {
		return Result{}, &LocalPersistenceError{Op: "add scan", Err: err}
	}

	var (
		history   []model.ScanRecord
		duplicate bool
		rec       model.ScanRecord
	)
	err = in.store.Update(ctx, func(tx *store.Tx) error {
		h, err := tx.ParticipantHistory(ctx, participant.ID)
		if err != nil {
			return fmt.Errorf("read history: %w", err)
		}
		history = h
		if guard.IsDuplicate(history, participant.ID, checkpointID, now, in.window) {
			duplicate = true
			return nil
		}

		rec = model.ScanRecord{
			ID:            model.NewScanID(),
			ParticipantID: participant.ID,
			CheckpointID:  checkpointID,
			DeviceID:      deviceID,
			VolunteerID:   volunteerID,
			ScannedAt:     now,
		}
		if err := tx.AppendScan(ctx, rec); err != nil {
			return err
		}
		history = append(history, rec)
		return nil
	})
	if err != nil {
		in.logger.Error("scan not stored",
			"participant_id", participant.ID,
			"checkpoint", checkpointID.Name(),
			"error", err)
		return Result{}, &LocalPersistenceError{Op: "add scan", Err: err}
	}

	status := derive.Compute(participant.ID, history, now, in.opts)
	if duplicate {
		in.logger.Debug("duplicate scan suppressed",
			"participant_id", participant.ID,
			"checkpoint", checkpointID.Name())
		return Result{
			Duplicate:       true,
			Participant:     participant,
			CompletionCount: status.CompletionCount,
			Message:         fmt.Sprintf("Already scanned at this checkpoint within %d minutes", int(in.window.Minutes())),
			Status:          status,
		}, nil
	}

	res := Result{
		Participant:     participant,
		Record:          &rec,
		Kind:            kindOf(checkpointID),
		CompletionCount: status.CompletionCount,
		Status:          status,
	}

	closed := closedBy(status, rec)
	if closed != nil {
		d := closed.Duration
		res.CycleDuration = &d
		res.CycleDurationMinutes = closed.DurationMinutes
	}
	res.SaatJatra = checkpointID == checkpoint.Terminal && res.CompletionCount == checkpoint.SaatJatraTotal
	res.Message = message(res, checkpointID)

	in.logger.Info("scan recorded",
		"scan_id", rec.ID,
		"participant_id", participant.ID,
		"checkpoint", checkpointID.Name(),
		"completions", res.CompletionCount)

	if in.pusher != nil {
		in.pusher.Push(rec)
		if closed != nil {
			in.pusher.NotifyCompletion(model.CompletionEvent{
				ParticipantID:   participant.ID,
				CycleNumber:     res.CompletionCount,
				Start:           closed.Start,
				End:             rec.ScannedAt,
				DurationMinutes: *closed.DurationMinutes,
			})
		}
	}
	return res, nil
}

// ScanToken resolves a scanned QR token or badge number against the cached
// roster and records the scan.
func (in *Ingester) ScanToken(ctx context.Context, token string, checkpointID checkpoint.ID, now time.Time) (Result, error) {
	p, err := in.Resolve(ctx, token)
	if err != nil {
		return Result{}, err
	}
	return in.AddScan(ctx, p, checkpointID, now)
}

// Resolve finds the participant for a scanned token. The printed
// PALITANA_YATRA_ prefix is optional and a bare number is read as a badge.
func (in *Ingester) Resolve(ctx context.Context, token string) (model.Participant, error) {
	for _, candidate := range model.TokenCandidates(token) {
		p, err := in.store.FindParticipantByToken(ctx, candidate)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return model.Participant{}, &LocalPersistenceError{Op: "resolve token", Err: err}
		}
	}

	if badge, err := strconv.Atoi(strings.TrimSpace(token)); err == nil {
		p, err := in.store.FindParticipantByBadge(ctx, badge)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return model.Participant{}, &LocalPersistenceError{Op: "resolve token", Err: err}
		}
	}
	return model.Participant{}, fmt.Errorf("resolve %q: %w", token, ErrParticipantNotFound)
}

// closedBy returns the cycle rec closed, if any.
func closedBy(status derive.Status, rec model.ScanRecord) *derive.Cycle {
	if rec.CheckpointID != checkpoint.Terminal {
		return nil
	}
	for i := len(status.Cycles) - 1; i >= 0; i-- {
		c := status.Cycles[i]
		if c.Complete && c.End != nil && c.End.Equal(rec.ScannedAt) {
			return &status.Cycles[i]
		}
	}
	return nil
}

func kindOf(id checkpoint.ID) Kind {
	switch id {
	case checkpoint.Start:
		return KindDescentStarted
	case checkpoint.Terminal:
		return KindCycleCompleted
	case checkpoint.FinalOfDay:
		return KindDayComplete
	}
	return ""
}

func message(res Result, id checkpoint.ID) string {
	name := id.Name()
	switch res.Kind {
	case KindDescentStarted:
		return "Descent started from " + name
	case KindCycleCompleted:
		msg := fmt.Sprintf("Jatra #%d completed at %s!", res.CompletionCount, name)
		if res.CycleDurationMinutes != nil {
			msg = fmt.Sprintf("Jatra #%d completed in %d min at %s!", res.CompletionCount, *res.CycleDurationMinutes, name)
		}
		if res.SaatJatra {
			msg += " Saat Jatra complete!"
		}
		return msg
	case KindDayComplete:
		return fmt.Sprintf("Final descent recorded at %s - Day complete!", name)
	}
	return "Scan recorded successfully"
}

func (in *Ingester) device(ctx context.Context) (string, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.deviceID != "" {
		return in.deviceID, nil
	}
	id, err := in.store.DeviceID(ctx)
	if err != nil {
		return "", err
	}
	in.deviceID = id
	return id, nil
}
