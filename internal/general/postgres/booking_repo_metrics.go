package postgres

import (
	"context"
	"fmt"
	"time"

	"shipease/internal/domain/booking"
)

// CountByStatusSince groups bookings created at or after since by status.
func (repo *BookingRepo) CountByStatusSince(ctx context.Context, since time.Time) (map[booking.Status]int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT status, COUNT(*)
		FROM bookings
		WHERE created_at >= $1
		GROUP BY status
	`, since)
	if err != nil {
		return nil, fmt.Errorf("count bookings: %w", err)
	}
	defer rows.Close()

	counts := make(map[booking.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan booking count: %w", err)
		}
		counts[booking.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return counts, nil
}

// CountByTypeSince groups match events written at or after since by type.
func (repo *MatchEventRepo) CountByTypeSince(ctx context.Context, since time.Time) (map[booking.EventType]int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT event_type, COUNT(*)
		FROM match_events
		WHERE created_at >= $1
		GROUP BY event_type
	`, since)
	if err != nil {
		return nil, fmt.Errorf("count match events: %w", err)
	}
	defer rows.Close()

	counts := make(map[booking.EventType]int)
	for rows.Next() {
		var (
			eventType string
			n         int
		)
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, fmt.Errorf("scan match event count: %w", err)
		}
		counts[booking.EventType(eventType)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return counts, nil
}
