package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tessera-live/tessera/internal/domain"
)

func (r *Repository) CreateReservation(ctx context.Context, res domain.Reservation) error {
	_, err := r.exec(ctx, `
		INSERT INTO reservations (id, event_id, user_id, quantity, status, expires_at, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, res.ID, res.EventID, res.UserID, res.Quantity, res.Status, res.ExpiresAt, res.IdempotencyKey, res.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrIdempotencyConflict
		}
		return errors.Wrap(err, "create reservation")
	}
	return nil
}

// FindReservationByKey returns nil without error when no reservation
// carries the key.
func (r *Repository) FindReservationByKey(ctx context.Context, key string) (*domain.Reservation, error) {
	var res domain.Reservation
	err := r.queryRow(ctx, `
		SELECT id, event_id, user_id, quantity, status, expires_at, idempotency_key, created_at
		FROM reservations WHERE idempotency_key = $1
	`, key).Scan(&res.ID, &res.EventID, &res.UserID, &res.Quantity, &res.Status, &res.ExpiresAt, &res.IdempotencyKey, &res.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find reservation by key")
	}
	return &res, nil
}

func (r *Repository) GetReservation(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	var res domain.Reservation
	err := r.queryRow(ctx, `
		SELECT id, event_id, user_id, quantity, status, expires_at, idempotency_key, created_at
		FROM reservations WHERE id = $1
	`, id).Scan(&res.ID, &res.EventID, &res.UserID, &res.Quantity, &res.Status, &res.ExpiresAt, &res.IdempotencyKey, &res.CreatedAt)
	if err == pgx.ErrNoRows {
		return domain.Reservation{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Reservation{}, errors.Wrap(err, "get reservation")
	}
	return res, nil
}

// MarkReservationConverted performs the conditional ACTIVE -> CONVERTED
// transition. Exactly one of two concurrent confirms lands; the loser
// observes ErrReservationInactive.
func (r *Repository) MarkReservationConverted(ctx context.Context, id uuid.UUID) error {
	tag, err := r.exec(ctx, `
		UPDATE reservations SET status = 'CONVERTED' WHERE id = $1 AND status = 'ACTIVE'
	`, id)
	if err != nil {
		return errors.Wrap(err, "mark reservation converted")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReservationInactive
	}
	return nil
}

// MarkReservationExpired reports whether this caller performed the
// transition; false means the reservation was already non-ACTIVE and the
// expiry is a no-op, guarding against double release.
func (r *Repository) MarkReservationExpired(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.exec(ctx, `
		UPDATE reservations SET status = 'EXPIRED' WHERE id = $1 AND status = 'ACTIVE'
	`, id)
	if err != nil {
		return false, errors.Wrap(err, "mark reservation expired")
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	rows, err := r.query(ctx, `
		SELECT id, event_id, user_id, quantity, status, expires_at, idempotency_key, created_at
		FROM reservations
		WHERE status = 'ACTIVE' AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.EventID, &res.UserID, &res.Quantity, &res.Status, &res.ExpiresAt, &res.IdempotencyKey, &res.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *Repository) SumActiveReservations(ctx context.Context, eventID uuid.UUID, now time.Time) (int, error) {
	var total int
	err := r.queryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM reservations
		WHERE event_id = $1 AND status = 'ACTIVE' AND expires_at > $2
	`, eventID, now).Scan(&total)
	if err != nil {
		return 0, errors.Wrap(err, "sum active reservations")
	}
	return total, nil
}

func (r *Repository) SumUserActiveReservations(ctx context.Context, eventID, userID uuid.UUID, now time.Time) (int, error) {
	var total int
	err := r.queryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM reservations
		WHERE event_id = $1 AND user_id = $2 AND status = 'ACTIVE' AND expires_at > $3
	`, eventID, userID, now).Scan(&total)
	if err != nil {
		return 0, errors.Wrap(err, "sum user active reservations")
	}
	return total, nil
}
