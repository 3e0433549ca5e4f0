package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tessera-live/tessera/internal/domain"
)

func (r *Repository) CreateTransfer(ctx context.Context, t domain.Transfer) error {
	_, err := r.exec(ctx, `
		INSERT INTO transfers (id, ticket_id, sender_id, receiver_email, transfer_code, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.TicketID, t.SenderID, t.ReceiverEmail, t.TransferCode, t.Status, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "create transfer")
	}
	return nil
}

func (r *Repository) GetTransferByCode(ctx context.Context, code string) (domain.Transfer, error) {
	var t domain.Transfer
	err := r.queryRow(ctx, `
		SELECT id, ticket_id, sender_id, receiver_email, transfer_code, status, expires_at, created_at
		FROM transfers WHERE transfer_code = $1
	`, code).Scan(&t.ID, &t.TicketID, &t.SenderID, &t.ReceiverEmail, &t.TransferCode, &t.Status, &t.ExpiresAt, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return domain.Transfer{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Transfer{}, errors.Wrap(err, "get transfer by code")
	}
	return t, nil
}

// MarkTransferCompleted is conditional on the transfer still being
// PENDING, so a code can be claimed at most once.
func (r *Repository) MarkTransferCompleted(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.exec(ctx, `
		UPDATE transfers SET status = 'COMPLETED' WHERE id = $1 AND status = 'PENDING'
	`, id)
	if err != nil {
		return false, errors.Wrap(err, "mark transfer completed")
	}
	return tag.RowsAffected() > 0, nil
}
