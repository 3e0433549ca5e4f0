package checkin

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/tessera-live/tessera/internal/audit"
	"github.com/tessera-live/tessera/internal/clock"
	"github.com/tessera-live/tessera/internal/domain"
	"github.com/tessera-live/tessera/internal/observability"
	"github.com/tessera-live/tessera/internal/token"
)

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetTicket(ctx context.Context, id uuid.UUID) (domain.Ticket, error)
	GetTicketByCode(ctx context.Context, code string) (domain.Ticket, error)
	MarkTicketUsed(ctx context.Context, id, validatorID uuid.UUID, at time.Time) (bool, error)
	EnqueueEvent(ctx context.Context, aggregateType string, aggregateID uuid.UUID, eventType string, payload any) error
}

// Validator owns the single-use admission transition:
// ISSUED -> USED, with CANCELLED as the administrative terminal state.
// A scanned token and a typed code are two ways of naming the same
// ticket; both funnel into the same conditional write.
type Validator struct {
	store Store
	sink  audit.Sink
	codec *token.Codec
	clock clock.Clock
}

func NewValidator(store Store, sink audit.Sink, codec *token.Codec, clk clock.Clock) *Validator {
	return &Validator{store: store, sink: sink, codec: codec, clock: clk}
}

// Input carries either a signed entry token or a raw ticket code.
type Input struct {
	Token           string
	Code            string
	ExpectedEventID uuid.UUID
	ValidatorID     uuid.UUID
}

func (v *Validator) Validate(ctx context.Context, in Input) (domain.Ticket, error) {
	now := v.clock.Now()
	var admitted domain.Ticket

	err := v.store.WithTx(ctx, func(txCtx context.Context) error {
		t, err := v.resolve(txCtx, in)
		if err != nil {
			return err
		}

		if in.ExpectedEventID != uuid.Nil && t.EventID != in.ExpectedEventID {
			return domain.ErrEventMismatch
		}

		if err := rejectTerminal(t); err != nil {
			return err
		}

		won, err := v.store.MarkTicketUsed(txCtx, t.ID, in.ValidatorID, now)
		if err != nil {
			return err
		}
		if !won {
			// A concurrent scan got there first; report its admission.
			current, err := v.store.GetTicket(txCtx, t.ID)
			if err != nil {
				return err
			}
			return rejectTerminal(current)
		}

		t.Status = domain.TicketUsed
		t.ValidatedAt = &now
		t.ValidatedBy = &in.ValidatorID
		admitted = t

		return v.store.EnqueueEvent(txCtx, "ticket", t.ID, "ticket.used", map[string]any{
			"event_id":     t.EventID,
			"validated_by": in.ValidatorID,
		})
	})
	if err != nil {
		observability.CheckinsTotal.WithLabelValues(checkinOutcome(err)).Inc()
		return domain.Ticket{}, err
	}

	observability.CheckinsTotal.WithLabelValues("admitted").Inc()
	v.sink.Record(ctx, in.ValidatorID, audit.ActionTicketValidated, "TICKET", admitted.ID, map[string]any{
		"event_id": admitted.EventID.String(),
		"code":     admitted.Code,
	})
	return admitted, nil
}

// resolve turns the presented credential into a stored ticket and
// cross-checks the decoded fields against the row. Verify alone is never
// enough: a validly-signed token whose payload no longer matches the live
// row is still rejected.
func (v *Validator) resolve(ctx context.Context, in Input) (domain.Ticket, error) {
	switch {
	case in.Token != "":
		payload, err := v.codec.Verify(in.Token)
		if err != nil {
			return domain.Ticket{}, err
		}
		t, err := v.store.GetTicket(ctx, payload.TicketID)
		if err != nil {
			return domain.Ticket{}, err
		}
		if t.Code != payload.TicketCode || t.EventID != payload.EventID {
			return domain.Ticket{}, domain.ErrEventMismatch
		}
		return t, nil
	case in.Code != "":
		t, err := v.store.GetTicketByCode(ctx, in.Code)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Ticket{}, domain.ErrInvalidToken
		}
		return t, err
	default:
		return domain.Ticket{}, domain.ErrInvalidToken
	}
}

func rejectTerminal(t domain.Ticket) error {
	switch t.Status {
	case domain.TicketUsed:
		e := &domain.AlreadyUsedError{TicketID: t.ID}
		if t.ValidatedAt != nil {
			e.ValidatedAt = *t.ValidatedAt
		}
		if t.ValidatedBy != nil {
			e.ValidatedBy = *t.ValidatedBy
		}
		return e
	case domain.TicketCancelled:
		return domain.ErrTicketCancelled
	}
	return nil
}

func checkinOutcome(err error) string {
	var used *domain.AlreadyUsedError
	switch {
	case errors.As(err, &used):
		return "already_used"
	case errors.Is(err, domain.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, domain.ErrEventMismatch):
		return "event_mismatch"
	case errors.Is(err, domain.ErrTicketCancelled):
		return "cancelled"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
