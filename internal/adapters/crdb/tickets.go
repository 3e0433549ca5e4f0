package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tessera-live/tessera/internal/domain"
)

const ticketColumns = `id, event_id, user_id, ticket_index, code, entry_token, status, validated_at, validated_by, created_at`

func scanTicket(row pgx.Row) (domain.Ticket, error) {
	var t domain.Ticket
	err := row.Scan(&t.ID, &t.EventID, &t.UserID, &t.TicketIndex, &t.Code, &t.EntryToken, &t.Status, &t.ValidatedAt, &t.ValidatedBy, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return domain.Ticket{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Ticket{}, errors.Wrap(err, "scan ticket")
	}
	return t, nil
}

func (r *Repository) CreateTicket(ctx context.Context, t domain.Ticket) error {
	_, err := r.exec(ctx, `
		INSERT INTO tickets (id, event_id, user_id, ticket_index, code, entry_token, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.EventID, t.UserID, t.TicketIndex, t.Code, t.EntryToken, t.Status, t.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "create ticket")
	}
	return nil
}

func (r *Repository) SetTicketToken(ctx context.Context, id uuid.UUID, token string) error {
	_, err := r.exec(ctx, `UPDATE tickets SET entry_token = $2 WHERE id = $1`, id, token)
	if err != nil {
		return errors.Wrap(err, "set ticket token")
	}
	return nil
}

func (r *Repository) GetTicket(ctx context.Context, id uuid.UUID) (domain.Ticket, error) {
	return scanTicket(r.queryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
}

func (r *Repository) GetTicketByCode(ctx context.Context, code string) (domain.Ticket, error) {
	return scanTicket(r.queryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE code = $1`, code))
}

func (r *Repository) CountUserTickets(ctx context.Context, eventID, userID uuid.UUID) (int, error) {
	var n int
	err := r.queryRow(ctx, `
		SELECT COUNT(*) FROM tickets WHERE event_id = $1 AND user_id = $2
	`, eventID, userID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count user tickets")
	}
	return n, nil
}

// CountAdmittableTickets counts the tickets that consume capacity: ISSUED
// and USED. CANCELLED tickets release their capacity.
func (r *Repository) CountAdmittableTickets(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	err := r.queryRow(ctx, `
		SELECT COUNT(*) FROM tickets WHERE event_id = $1 AND status IN ('ISSUED', 'USED')
	`, eventID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count admittable tickets")
	}
	return n, nil
}

// MarkTicketUsed performs the single-use transition, conditioned on status
// still being ISSUED at write time. Reports whether this caller won.
func (r *Repository) MarkTicketUsed(ctx context.Context, id, validatorID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.exec(ctx, `
		UPDATE tickets
		SET status = 'USED', validated_at = $2, validated_by = $3
		WHERE id = $1 AND status = 'ISSUED'
	`, id, at, validatorID)
	if err != nil {
		return false, errors.Wrap(err, "mark ticket used")
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) UpdateTicketOwner(ctx context.Context, id, newOwner uuid.UUID) error {
	tag, err := r.exec(ctx, `UPDATE tickets SET user_id = $2 WHERE id = $1`, id, newOwner)
	if err != nil {
		return errors.Wrap(err, "update ticket owner")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) ListUserTickets(ctx context.Context, userID uuid.UUID) ([]domain.Ticket, error) {
	rows, err := r.query(ctx, `
		SELECT `+ticketColumns+` FROM tickets WHERE user_id = $1 ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
