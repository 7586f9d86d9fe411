package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/yatra/internal/checkpoint"
	"github.com/roach88/yatra/internal/model"
)

const scanColumns = `id, participant_id, checkpoint_id, device_id, volunteer_id, scanned_at`

// AppendScan adds rec to the scan log and, when it is unsynced, to the
// pending queue, in one transaction.
func (s *Store) AppendScan(ctx context.Context, rec model.ScanRecord) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.AppendScan(ctx, rec)
	})
}

// AppendScan adds rec to the scan log and, when it is unsynced, to the
// pending queue. A record with an existing ID is an error.
func (t *Tx) AppendScan(ctx context.Context, rec model.ScanRecord) error {
	if err := insertLog(ctx, t.tx, rec); err != nil {
		return fmt.Errorf("append scan: %w", err)
	}
	if rec.Synced {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO pending_queue (`+scanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`, scanArgs(rec)...)
	if err != nil {
		return fmt.Errorf("append scan: enqueue: %w", err)
	}
	return nil
}

// ReplaceScanLog atomically replaces the whole scan log with records.
func (s *Store) ReplaceScanLog(ctx context.Context, records []model.ScanRecord) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.ReplaceScanLog(ctx, records)
	})
}

// ReplaceScanLog replaces the whole scan log with records. The pending
// queue is untouched.
func (t *Tx) ReplaceScanLog(ctx context.Context, records []model.ScanRecord) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM scan_log`); err != nil {
		return fmt.Errorf("replace scan log: clear: %w", err)
	}
	for _, rec := range records {
		if err := insertLog(ctx, t.tx, rec); err != nil {
			return fmt.Errorf("replace scan log: %w", err)
		}
	}
	return nil
}

// ReadScanLog returns the scan log, newest first.
func (s *Store) ReadScanLog(ctx context.Context) ([]model.ScanRecord, error) {
	return readLog(ctx, s.db, `ORDER BY scanned_at DESC, id DESC`)
}

// ReadScanLog returns the scan log, newest first.
func (t *Tx) ReadScanLog(ctx context.Context) ([]model.ScanRecord, error) {
	return readLog(ctx, t.tx, `ORDER BY scanned_at DESC, id DESC`)
}

// ParticipantHistory returns participantID's records, oldest first.
func (s *Store) ParticipantHistory(ctx context.Context, participantID string) ([]model.ScanRecord, error) {
	return readLog(ctx, s.db, `WHERE participant_id = ? ORDER BY scanned_at ASC, id ASC`, participantID)
}

// ParticipantHistory returns participantID's records, oldest first.
func (t *Tx) ParticipantHistory(ctx context.Context, participantID string) ([]model.ScanRecord, error) {
	return readLog(ctx, t.tx, `WHERE participant_id = ? ORDER BY scanned_at ASC, id ASC`, participantID)
}

// ReadPending returns the pending queue, oldest first.
func (s *Store) ReadPending(ctx context.Context) ([]model.ScanRecord, error) {
	return readPending(ctx, s.db)
}

// ReadPending returns the pending queue, oldest first.
func (t *Tx) ReadPending(ctx context.Context) ([]model.ScanRecord, error) {
	return readPending(ctx, t.tx)
}

// PendingCount returns the number of queued records.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// MarkSynced flags the given records as synced in the log and removes them
// from the pending queue, in one transaction. Returns how many records left
// the queue; IDs that are not pending are ignored.
func (s *Store) MarkSynced(ctx context.Context, ids []string) (int, error) {
	var removed int
	err := s.Update(ctx, func(tx *Tx) error {
		n, err := tx.MarkSynced(ctx, ids)
		removed = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// MarkSynced flags the given records as synced and dequeues them.
func (t *Tx) MarkSynced(ctx context.Context, ids []string) (int, error) {
	removed := 0
	for _, id := range ids {
		if _, err := t.tx.ExecContext(ctx, `UPDATE scan_log SET synced = 1 WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("mark synced: update log: %w", err)
		}
		res, err := t.tx.ExecContext(ctx, `DELETE FROM pending_queue WHERE id = ?`, id)
		if err != nil {
			return 0, fmt.Errorf("mark synced: dequeue: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("mark synced: rows affected: %w", err)
		}
		removed += int(n)
	}
	return removed, nil
}

// ClearScans removes every scan, every pending record and the last sync
// time. The roster and device identity are kept. This is the explicit bulk
// clear; nothing in normal operation calls it.
func (s *Store) ClearScans(ctx context.Context) error {
	return s.Update(ctx, func(tx *Tx) error {
		for _, stmt := range []string{
			`DELETE FROM scan_log`,
			`DELETE FROM pending_queue`,
		} {
			if _, err := tx.tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("clear scans: %w", err)
			}
		}
		return tx.DeleteMeta(ctx, KeyLastSyncAt)
	})
}

func insertLog(ctx context.Context, q querier, rec model.ScanRecord) error {
	args := append(scanArgs(rec), boolToInt(rec.Synced))
	_, err := q.ExecContext(ctx, `
		INSERT INTO scan_log (`+scanColumns+`, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return fmt.Errorf("insert %s: %w", rec.ID, err)
	}
	return nil
}

func scanArgs(rec model.ScanRecord) []any {
	return []any{
		rec.ID,
		rec.ParticipantID,
		int(rec.CheckpointID),
		rec.DeviceID,
		rec.VolunteerID,
		rec.ScannedAt.UnixNano(),
	}
}

func readLog(ctx context.Context, q querier, clause string, args ...any) ([]model.ScanRecord, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+scanColumns+`, synced FROM scan_log `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("query scan log: %w", err)
	}
	defer rows.Close()

	records := []model.ScanRecord{}
	for rows.Next() {
		var synced int
		rec, err := scanRecord(rows, &synced)
		if err != nil {
			return nil, err
		}
		rec.Synced = synced != 0
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan log: %w", err)
	}
	return records, nil
}

func readPending(ctx context.Context, q querier) ([]model.ScanRecord, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+scanColumns+` FROM pending_queue ORDER BY scanned_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	records := []model.ScanRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending: %w", err)
	}
	return records, nil
}

// scanRecord reads the scanColumns, plus any extra destinations, from rows.
func scanRecord(rows *sql.Rows, extra ...any) (model.ScanRecord, error) {
	var (
		rec       model.ScanRecord
		cp        int
		scannedAt int64
	)
	dest := append([]any{&rec.ID, &rec.ParticipantID, &cp, &rec.DeviceID, &rec.VolunteerID, &scannedAt}, extra...)
	if err := rows.Scan(dest...); err != nil {
		return model.ScanRecord{}, fmt.Errorf("scan record: %w", err)
	}
	rec.CheckpointID = checkpoint.ID(cp)
	rec.ScannedAt = time.Unix(0, scannedAt).UTC()
	return rec, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
