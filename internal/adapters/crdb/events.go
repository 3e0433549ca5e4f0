package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tessera-live/tessera/internal/domain"
)

func (r *Repository) CreateEvent(ctx context.Context, ev domain.Event) error {
	_, err := r.exec(ctx, `
		INSERT INTO events (id, title, status, capacity, issued_count, max_per_user)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.ID, ev.Title, ev.Status, ev.Capacity, ev.IssuedCount, ev.MaxPerUser)
	return err
}

func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	var ev domain.Event
	err := r.queryRow(ctx, `
		SELECT id, title, status, capacity, issued_count, max_per_user, created_at, updated_at
		FROM events WHERE id = $1
	`, id).Scan(&ev.ID, &ev.Title, &ev.Status, &ev.Capacity, &ev.IssuedCount, &ev.MaxPerUser, &ev.CreatedAt, &ev.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.Event{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Event{}, errors.Wrap(err, "get event")
	}
	return ev, nil
}

// ReserveCapacity is the oversell guard: a single conditional increment
// that only lands when the resulting count stays within capacity and the
// event is sellable. When the predicate fails the row is untouched and the
// row is re-read once to classify the refusal.
func (r *Repository) ReserveCapacity(ctx context.Context, eventID uuid.UUID, qty int) error {
	tag, err := r.exec(ctx, `
		UPDATE events
		SET issued_count = issued_count + $2, updated_at = now()
		WHERE id = $1 AND status = 'PUBLISHED' AND issued_count + $2 <= capacity
	`, eventID, qty)
	if err != nil {
		return errors.Wrap(err, "reserve capacity")
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	ev, err := r.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if !ev.Sellable() {
		return domain.ErrEventUnavailable
	}
	return &domain.InsufficientCapacityError{EventID: eventID, Requested: qty, Remaining: ev.Remaining()}
}

// ReleaseCapacity is the unconditional decrement used on expiry and
// cancellation, floored at zero. Reconciliation is the backstop if a
// release ever overshoots the true issued total.
func (r *Repository) ReleaseCapacity(ctx context.Context, eventID uuid.UUID, qty int) error {
	_, err := r.exec(ctx, `
		UPDATE events
		SET issued_count = GREATEST(issued_count - $2, 0), updated_at = now()
		WHERE id = $1
	`, eventID, qty)
	if err != nil {
		return errors.Wrap(err, "release capacity")
	}
	return nil
}

// SetIssuedCount overwrites the counter with a recomputed value. Used only
// by the reconciler.
func (r *Repository) SetIssuedCount(ctx context.Context, eventID uuid.UUID, count int) error {
	_, err := r.exec(ctx, `
		UPDATE events SET issued_count = $2, updated_at = now() WHERE id = $1
	`, eventID, count)
	if err != nil {
		return errors.Wrap(err, "set issued count")
	}
	return nil
}

func (r *Repository) ListSellableEvents(ctx context.Context) ([]domain.Event, error) {
	rows, err := r.query(ctx, `
		SELECT id, title, status, capacity, issued_count, max_per_user, created_at, updated_at
		FROM events WHERE status = 'PUBLISHED'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		if err := rows.Scan(&ev.ID, &ev.Title, &ev.Status, &ev.Capacity, &ev.IssuedCount, &ev.MaxPerUser, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
