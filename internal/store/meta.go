package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/yatra/internal/checkpoint"
	"github.com/roach88/yatra/internal/model"
)

// Metadata keys.
const (
	KeyDeviceID           = "device_id"
	KeyVolunteerID        = "volunteer_id"
	KeyLastSyncAt         = "last_sync_at"
	KeySelectedCheckpoint = "selected_checkpoint"
	KeyRosterFingerprint  = "roster_fingerprint"
)

// GetMeta returns the value stored under key and whether it exists.
func (s *Store) GetMeta(ctx context.Context, key string) (string, bool, error) {
	return getMeta(ctx, s.db, key)
}

// GetMeta returns the value stored under key and whether it exists.
func (t *Tx) GetMeta(ctx context.Context, key string) (string, bool, error) {
	return getMeta(ctx, t.tx, key)
}

// SetMeta stores value under key, replacing any previous value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	return setMeta(ctx, s.db, key, value)
}

// SetMeta stores value under key, replacing any previous value.
func (t *Tx) SetMeta(ctx context.Context, key, value string) error {
	return setMeta(ctx, t.tx, key, value)
}

// DeleteMeta removes key. Missing keys are not an error.
func (t *Tx) DeleteMeta(ctx context.Context, key string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM meta WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete meta %s: %w", key, err)
	}
	return nil
}

// DeviceID returns this device's identifier, creating and persisting one on
// first use.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	var id string
	err := s.Update(ctx, func(tx *Tx) error {
		v, ok, err := tx.GetMeta(ctx, KeyDeviceID)
		if err != nil {
			return err
		}
		if ok {
			id = v
			return nil
		}
		id = model.NewDeviceID()
		return tx.SetMeta(ctx, KeyDeviceID, id)
	})
	if err != nil {
		return "", fmt.Errorf("device id: %w", err)
	}
	return id, nil
}

// VolunteerID returns the configured volunteer, or "" if none.
func (s *Store) VolunteerID(ctx context.Context) (string, error) {
	v, _, err := s.GetMeta(ctx, KeyVolunteerID)
	return v, err
}

// SetVolunteerID records who is operating this device.
func (s *Store) SetVolunteerID(ctx context.Context, id string) error {
	return s.SetMeta(ctx, KeyVolunteerID, id)
}

// LastSyncAt returns the completion time of the last successful sync.
func (s *Store) LastSyncAt(ctx context.Context) (time.Time, bool, error) {
	v, ok, err := s.GetMeta(ctx, KeyLastSyncAt)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse %s: %w", KeyLastSyncAt, err)
	}
	return t, true, nil
}

// SetLastSyncAt records the completion time of a successful sync.
func (s *Store) SetLastSyncAt(ctx context.Context, t time.Time) error {
	return s.SetMeta(ctx, KeyLastSyncAt, t.UTC().Format(time.RFC3339Nano))
}

// SelectedCheckpoint returns the checkpoint this device scans at by default.
// Defaults to checkpoint.Start when unset.
func (s *Store) SelectedCheckpoint(ctx context.Context) (checkpoint.ID, error) {
	v, ok, err := s.GetMeta(ctx, KeySelectedCheckpoint)
	if err != nil {
		return 0, err
	}
	if !ok {
		return checkpoint.Start, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", KeySelectedCheckpoint, err)
	}
	return checkpoint.ID(n), nil
}

// SetSelectedCheckpoint persists the device's default checkpoint.
func (s *Store) SetSelectedCheckpoint(ctx context.Context, id checkpoint.ID) error {
	if !checkpoint.Valid(id) {
		return fmt.Errorf("set selected checkpoint: unknown checkpoint %d", int(id))
	}
	return s.SetMeta(ctx, KeySelectedCheckpoint, strconv.Itoa(int(id)))
}

func getMeta(ctx context.Context, q querier, key string) (string, bool, error) {
	var v string
	err := q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %s: %w", key, err)
	}
	return v, true, nil
}

func setMeta(ctx context.Context, q querier, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}
