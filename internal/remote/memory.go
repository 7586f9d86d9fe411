package remote

import (
	"context"
	"sort"
	"sync"

	"github.com/roach88/yatra/internal/model"
)

var _ Adapter = (*Memory)(nil)

// Memory is an in-memory authoritative store. It backs `yatra serve` and
// doubles as a fault-injectable remote in tests.
type Memory struct {
	mu          sync.Mutex
	roster      []model.Participant
	scans       map[string]model.ScanRecord
	completions []model.CompletionEvent

	fail      error
	failNext  int
	failErr   error
	rejectIDs map[string]struct{}
	calls     map[string]int
}

// NewMemory returns a store seeded with roster.
func NewMemory(roster []model.Participant) *Memory {
	m := &Memory{
		scans:     make(map[string]model.ScanRecord),
		rejectIDs: make(map[string]struct{}),
		calls:     make(map[string]int),
	}
	m.SetRoster(roster)
	return m
}

// SetRoster replaces the participant list.
func (m *Memory) SetRoster(roster []model.Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roster = append([]model.Participant{}, roster...)
}

// FailWith makes every call return err until cleared with FailWith(nil).
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// FailNext makes the next n calls return err.
func (m *Memory) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
	m.failErr = err
}

// RejectIDs makes bulk and single creates refuse the given record IDs.
func (m *Memory) RejectIDs(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.rejectIDs[id] = struct{}{}
	}
}

// ClearRejections accepts every record again.
func (m *Memory) ClearRejections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectIDs = make(map[string]struct{})
}

// PutScan stores rec directly, as if another device had synced it.
func (m *Memory) PutScan(rec model.ScanRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Synced = true
	m.scans[rec.ID] = rec
}

// Calls returns how many times the named operation was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Completions returns the completion events received so far.
func (m *Memory) Completions() []model.CompletionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.CompletionEvent{}, m.completions...)
}

// enter records a call and returns the injected failure, if any.
// Caller must hold mu.
func (m *Memory) enter(op string) error {
	m.calls[op]++
	if m.failNext > 0 {
		m.failNext--
		return m.failErr
	}
	return m.fail
}

func (m *Memory) ListParticipants(ctx context.Context) ([]model.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListParticipants"); err != nil {
		return nil, err
	}
	return append([]model.Participant{}, m.roster...), nil
}

// ListScanRecords returns every stored record, newest first.
func (m *Memory) ListScanRecords(ctx context.Context) ([]model.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListScanRecords"); err != nil {
		return nil, err
	}
	out := make([]model.ScanRecord, 0, len(m.scans))
	for _, rec := range m.scans {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScannedAt.Equal(out[j].ScannedAt) {
			return out[i].ScannedAt.After(out[j].ScannedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) CreateScanRecord(ctx context.Context, rec model.ScanRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateScanRecord"); err != nil {
		return false, err
	}
	if _, ok := m.rejectIDs[rec.ID]; ok {
		return false, &RejectedError{Status: 422, Message: "record " + rec.ID + " rejected"}
	}
	m.store(rec)
	return true, nil
}

func (m *Memory) BulkCreateScanRecords(ctx context.Context, recs []model.ScanRecord) (BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("BulkCreateScanRecords"); err != nil {
		return BulkResult{}, err
	}
	res := BulkResult{AcceptedIDs: []string{}}
	for _, rec := range recs {
		if _, ok := m.rejectIDs[rec.ID]; ok {
			continue
		}
		m.store(rec)
		res.AcceptedIDs = append(res.AcceptedIDs, rec.ID)
	}
	res.AcceptedCount = len(res.AcceptedIDs)
	return res, nil
}

func (m *Memory) CreateCompletionEvent(ctx context.Context, ev model.CompletionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateCompletionEvent"); err != nil {
		return err
	}
	m.completions = append(m.completions, ev)
	return nil
}

// store keeps the first copy of each ID. Caller must hold mu.
func (m *Memory) store(rec model.ScanRecord) {
	if _, ok := m.scans[rec.ID]; ok {
		return
	}
	rec.Synced = true
	m.scans[rec.ID] = rec
}
