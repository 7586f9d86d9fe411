package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/yatra/internal/model"
)

const rosterColumns = `id, badge_number, name, qr_token, age, blood_group, emergency_contact, self_contact, photo_url`

// ReplaceRoster atomically replaces the cached roster.
func (s *Store) ReplaceRoster(ctx context.Context, roster []model.Participant) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.ReplaceRoster(ctx, roster)
	})
}

// ReplaceRoster replaces the cached roster.
func (t *Tx) ReplaceRoster(ctx context.Context, roster []model.Participant) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM roster`); err != nil {
		return fmt.Errorf("replace roster: clear: %w", err)
	}
	for _, p := range roster {
		var age sql.NullInt64
		if p.Age != nil {
			age = sql.NullInt64{Int64: int64(*p.Age), Valid: true}
		}
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO roster (`+rosterColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.BadgeNumber, p.Name, p.QRToken, age, p.BloodGroup, p.EmergencyContact, p.SelfContact, p.PhotoURL)
		if err != nil {
			return fmt.Errorf("replace roster: insert %s: %w", p.ID, err)
		}
	}
	return nil
}

// ReadRoster returns the cached roster ordered by badge number.
func (s *Store) ReadRoster(ctx context.Context) ([]model.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+rosterColumns+` FROM roster ORDER BY badge_number ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()

	roster := []model.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		roster = append(roster, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster: %w", err)
	}
	return roster, nil
}

// FindParticipant looks a participant up by ID.
// Returns ErrNotFound if the roster has no such participant.
func (s *Store) FindParticipant(ctx context.Context, id string) (model.Participant, error) {
	return s.findOne(ctx, `id = ?`, id)
}

// FindParticipantByToken looks a participant up by exact QR token.
func (s *Store) FindParticipantByToken(ctx context.Context, token string) (model.Participant, error) {
	return s.findOne(ctx, `qr_token = ?`, token)
}

// FindParticipantByBadge looks a participant up by badge number.
func (s *Store) FindParticipantByBadge(ctx context.Context, badge int) (model.Participant, error) {
	return s.findOne(ctx, `badge_number = ?`, badge)
}

func (s *Store) findOne(ctx context.Context, where string, arg any) (model.Participant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rosterColumns+` FROM roster WHERE `+where+` ORDER BY id LIMIT 1`, arg)
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Participant{}, ErrNotFound
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(r rowScanner) (model.Participant, error) {
	var (
		p   model.Participant
		age sql.NullInt64
	)
	if err := r.Scan(&p.ID, &p.BadgeNumber, &p.Name, &p.QRToken, &age,
		&p.BloodGroup, &p.EmergencyContact, &p.SelfContact, &p.PhotoURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Participant{}, err
		}
		return model.Participant{}, fmt.Errorf("scan participant: %w", err)
	}
	if age.Valid {
		a := int(age.Int64)
		p.Age = &a
	}
	return p, nil
}
