package ticketing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/tessera-live/tessera/internal/domain"
	"github.com/tessera-live/tessera/internal/token"
)

// issue creates quantity tickets for a confirmed reservation. Each ticket
// gets the next per-(user, event) index, an unguessable code, and a signed
// entry token persisted after the row exists (the token embeds the ticket
// id). Runs inside the confirm transaction.
func (s *Service) issue(ctx context.Context, res domain.Reservation, now time.Time) ([]domain.Ticket, error) {
	base, err := s.store.CountUserTickets(ctx, res.EventID, res.UserID)
	if err != nil {
		return nil, err
	}

	tickets := make([]domain.Ticket, 0, res.Quantity)
	for i := 0; i < res.Quantity; i++ {
		code, err := newTicketCode()
		if err != nil {
			return nil, err
		}

		t := domain.Ticket{
			ID:          uuid.New(),
			EventID:     res.EventID,
			UserID:      res.UserID,
			TicketIndex: base + i,
			Code:        code,
			Status:      domain.TicketIssued,
			CreatedAt:   now,
		}
		if err := s.store.CreateTicket(ctx, t); err != nil {
			return nil, err
		}

		tok, err := s.codec.Sign(token.Payload{
			TicketID:   t.ID,
			TicketCode: t.Code,
			EventID:    t.EventID,
			UserID:     t.UserID,
		})
		if err != nil {
			return nil, errors.Wrap(err, "sign entry token")
		}
		if err := s.store.SetTicketToken(ctx, t.ID, tok); err != nil {
			return nil, err
		}
		t.EntryToken = tok

		tickets = append(tickets, t)
	}
	return tickets, nil
}

func newTicketCode() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "generate ticket code")
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}
