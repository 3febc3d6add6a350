package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"shipease/internal/domain/booking"
	"shipease/internal/ports"
)

// MatchEventRepo persists match events using pgx and plain SQL.
type MatchEventRepo struct{}

// NewMatchEventRepo constructs a new MatchEventRepo.
func NewMatchEventRepo() ports.MatchEventRepository {
	return &MatchEventRepo{}
}

// Append inserts a new match_events row.
func (repo *MatchEventRepo) Append(ctx context.Context, event *booking.Event) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if err := event.Validate(); err != nil {
		return err
	}

	data, err := event.DataJSON()
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO match_events (booking_id, event_type, event_data)
		VALUES ($1, $2, $3::jsonb)
		RETURNING id, created_at
	`,
		event.BookingID,
		event.Type.String(),
		string(data),
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert match event: %w", err)
	}

	return nil
}

// ListByBooking returns the oldest events of a booking first, at most limit rows.
func (repo *MatchEventRepo) ListByBooking(ctx context.Context, bookingID string, limit int) ([]*booking.Event, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := tx.Query(ctx, `
		SELECT id, created_at, booking_id, event_type, event_data
		FROM match_events
		WHERE booking_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, bookingID, limit)
	if err != nil {
		return nil, fmt.Errorf("query match events: %w", err)
	}
	defer rows.Close()

	var events []*booking.Event
	for rows.Next() {
		var (
			ev        booking.Event
			eventType string
			raw       []byte
		)
		if err := rows.Scan(&ev.ID, &ev.CreatedAt, &ev.BookingID, &eventType, &raw); err != nil {
			return nil, fmt.Errorf("scan match event: %w", err)
		}
		ev.Type = booking.EventType(eventType)
		if err := json.Unmarshal(raw, &ev.Data); err != nil {
			return nil, fmt.Errorf("decode match event data: %w", err)
		}
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return events, nil
}
