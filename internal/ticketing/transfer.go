package ticketing

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/tessera-live/tessera/internal/audit"
	"github.com/tessera-live/tessera/internal/domain"
)

// InitiateTransfer creates a pending, time-boxed transfer of an ISSUED
// ticket toward a receiver identified by email. The receiver claims it
// with the transfer code.
func (s *Service) InitiateTransfer(ctx context.Context, ticketID, senderID uuid.UUID, receiverEmail string) (domain.Transfer, error) {
	if receiverEmail == "" {
		return domain.Transfer{}, domain.ErrInvalidInput
	}

	now := s.clock.Now()
	var transfer domain.Transfer

	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		t, err := s.store.GetTicket(txCtx, ticketID)
		if err != nil {
			return err
		}
		if t.UserID != senderID {
			return domain.ErrNotFound
		}
		if t.Status != domain.TicketIssued {
			return domain.ErrTransferUnavailable
		}

		transfer = domain.Transfer{
			ID:            uuid.New(),
			TicketID:      ticketID,
			SenderID:      senderID,
			ReceiverEmail: receiverEmail,
			TransferCode:  newTransferCode(),
			Status:        domain.TransferPending,
			ExpiresAt:     now.Add(s.transferTTL),
			CreatedAt:     now,
		}
		if err := s.store.CreateTransfer(txCtx, transfer); err != nil {
			return err
		}
		return s.store.EnqueueEvent(txCtx, "ticket", ticketID, "ticket.transfer_initiated", map[string]any{
			"transfer_id":    transfer.ID,
			"receiver_email": receiverEmail,
		})
	})
	if err != nil {
		return domain.Transfer{}, err
	}

	s.sink.Record(ctx, senderID, audit.ActionTransferInitiated, "TICKET", ticketID, map[string]any{
		"transfer_id":    transfer.ID.String(),
		"receiver_email": receiverEmail,
		"transfer_code":  transfer.TransferCode,
	})
	return transfer, nil
}

// ClaimTransfer reassigns the ticket to the claimant. The conditional
// PENDING -> COMPLETED transition ensures a code is claimable at most
// once. The entry token is left as issued: validation cross-checks the
// ticket id, code and event, not the owner.
func (s *Service) ClaimTransfer(ctx context.Context, transferCode string, newOwner uuid.UUID) error {
	now := s.clock.Now()
	var transfer domain.Transfer

	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		tr, err := s.store.GetTransferByCode(txCtx, transferCode)
		if err != nil {
			return err
		}
		if tr.Status != domain.TransferPending {
			return domain.ErrTransferProcessed
		}
		if now.After(tr.ExpiresAt) {
			return domain.ErrTransferExpired
		}

		won, err := s.store.MarkTransferCompleted(txCtx, tr.ID)
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrTransferProcessed
		}
		if err := s.store.UpdateTicketOwner(txCtx, tr.TicketID, newOwner); err != nil {
			return err
		}

		transfer = tr
		return s.store.EnqueueEvent(txCtx, "ticket", tr.TicketID, "ticket.transferred", map[string]any{
			"transfer_id": tr.ID,
			"sender_id":   tr.SenderID,
			"receiver_id": newOwner,
		})
	})
	if err != nil {
		return err
	}

	s.sink.Record(ctx, newOwner, audit.ActionTransferCompleted, "TICKET", transfer.TicketID, map[string]any{
		"transfer_id": transfer.ID.String(),
		"sender_id":   transfer.SenderID.String(),
	})
	return nil
}

func newTransferCode() string {
	return "TRF-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}
