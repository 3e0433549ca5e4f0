package ticketing

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

// Store is the transactional storage the lifecycle runs against. Every
// multi-step sequence executes inside one WithTx closure; the conditional
// methods (ReserveCapacity, MarkReservationConverted, MarkTransferCompleted)
// are the only mutual-exclusion mechanism.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error)
	ReserveCapacity(ctx context.Context, eventID uuid.UUID, qty int) error
	ReleaseCapacity(ctx context.Context, eventID uuid.UUID, qty int) error

	FindReservationByKey(ctx context.Context, key string) (*domain.Reservation, error)
	CreateReservation(ctx context.Context, res domain.Reservation) error
	GetReservation(ctx context.Context, id uuid.UUID) (domain.Reservation, error)
	MarkReservationConverted(ctx context.Context, id uuid.UUID) error
	MarkReservationExpired(ctx context.Context, id uuid.UUID) (bool, error)
	SumUserActiveReservations(ctx context.Context, eventID, userID uuid.UUID, now time.Time) (int, error)

	CountUserTickets(ctx context.Context, eventID, userID uuid.UUID) (int, error)
	CreateTicket(ctx context.Context, t domain.Ticket) error
	SetTicketToken(ctx context.Context, id uuid.UUID, tok string) error
	GetTicket(ctx context.Context, id uuid.UUID) (domain.Ticket, error)

	CreateTransfer(ctx context.Context, t domain.Transfer) error
	GetTransferByCode(ctx context.Context, code string) (domain.Transfer, error)
	MarkTransferCompleted(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateTicketOwner(ctx context.Context, ticketID, newOwner uuid.UUID) error

	EnqueueEvent(ctx context.Context, aggregateType string, aggregateID uuid.UUID, eventType string, payload any) error
}

const defaultReservationTTL = 10 * time.Minute
const defaultTransferTTL = 24 * time.Hour

type Service struct {
	store       Store
	sink        audit.Sink
	codec       *token.Codec
	clock       clock.Clock
	ttl         time.Duration
	transferTTL time.Duration
}

func NewService(store Store, sink audit.Sink, codec *token.Codec, clk clock.Clock, opts ...Option) *Service {
	s := &Service{
		store:       store,
		sink:        sink,
		codec:       codec,
		clock:       clk,
		ttl:         defaultReservationTTL,
		transferTTL: defaultTransferTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Option func(*Service)

// WithReservationTTL overrides the default hold window for new reservations.
func WithReservationTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithTransferTTL overrides how long a transfer code stays claimable.
func WithTransferTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.transferTTL = d
		}
	}
}

// Reserve places a time-boxed hold on event capacity. Retries with the
// same idempotency key return the original reservation without consuming
// capacity again.
func (s *Service) Reserve(ctx context.Context, userID, eventID uuid.UUID, quantity int, idempotencyKey string) (domain.Reservation, error) {
	if quantity <= 0 {
		return domain.Reservation{}, errors.Wrap(domain.ErrInvalidInput, "quantity must be positive")
	}
	if idempotencyKey == "" {
		return domain.Reservation{}, domain.ErrIdempotencyKeyRequired
	}

	now := s.clock.Now()
	var result domain.Reservation
	var created bool

	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		if existing, err := s.store.FindReservationByKey(txCtx, idempotencyKey); err != nil {
			return err
		} else if existing != nil {
			result = *existing
			return nil
		}

		ev, err := s.store.GetEvent(txCtx, eventID)
		if err != nil {
			return err
		}
		if !ev.Sellable() {
			return domain.ErrEventUnavailable
		}

		if ev.MaxPerUser > 0 {
			owned, err := s.ownedUnits(txCtx, eventID, userID, now)
			if err != nil {
				return err
			}
			if owned+quantity > ev.MaxPerUser {
				remaining := ev.MaxPerUser - owned
				if remaining < 0 {
					remaining = 0
				}
				return &domain.TicketLimitError{EventID: eventID, Limit: ev.MaxPerUser, Remaining: remaining}
			}
		}

		if err := s.store.ReserveCapacity(txCtx, eventID, quantity); err != nil {
			return err
		}

		res := domain.NewReservation(eventID, userID, quantity, idempotencyKey, now, s.ttl)
		if err := s.store.CreateReservation(txCtx, res); err != nil {
			return err
		}
		if err := s.store.EnqueueEvent(txCtx, "reservation", res.ID, "reservation.created", map[string]any{
			"event_id": eventID,
			"user_id":  userID,
			"quantity": quantity,
		}); err != nil {
			return err
		}

		result = res
		created = true
		return nil
	})
	// A concurrent request with the same key won the insert; its
	// reservation is the answer.
	if errors.Is(err, domain.ErrIdempotencyConflict) {
		existing, ferr := s.store.FindReservationByKey(ctx, idempotencyKey)
		if ferr == nil && existing != nil {
			return *existing, nil
		}
		return domain.Reservation{}, err
	}
	if err != nil {
		observability.ReservationsTotal.WithLabelValues(reserveOutcome(err)).Inc()
		return domain.Reservation{}, err
	}

	if created {
		observability.ReservationsTotal.WithLabelValues("created").Inc()
		s.sink.Record(ctx, userID, audit.ActionReservationCreated, "RESERVATION", result.ID, map[string]any{
			"event_id": eventID.String(),
			"quantity": quantity,
		})
	}
	return result, nil
}

func (s *Service) ownedUnits(ctx context.Context, eventID, userID uuid.UUID, now time.Time) (int, error) {
	tickets, err := s.store.CountUserTickets(ctx, eventID, userID)
	if err != nil {
		return 0, err
	}
	held, err := s.store.SumUserActiveReservations(ctx, eventID, userID, now)
	if err != nil {
		return 0, err
	}
	return tickets + held, nil
}

func reserveOutcome(err error) string {
	var insufficient *domain.InsufficientCapacityError
	switch {
	case errors.As(err, &insufficient):
		return "insufficient_capacity"
	case errors.Is(err, domain.ErrEventUnavailable):
		return "event_unavailable"
	default:
		return "error"
	}
}

// Confirm converts an ACTIVE reservation into tickets. Exactly one of two
// concurrent confirms issues tickets; the loser observes
// ErrReservationInactive via the conditional CONVERTED transition.
func (s *Service) Confirm(ctx context.Context, reservationID, userID uuid.UUID) ([]domain.Ticket, error) {
	now := s.clock.Now()
	var tickets []domain.Ticket

	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		res, err := s.store.GetReservation(txCtx, reservationID)
		if err != nil {
			return err
		}
		if res.UserID != userID {
			return domain.ErrNotFound
		}
		if res.Status != domain.ReservationActive {
			return domain.ErrReservationInactive
		}
		if res.Lapsed(now) {
			return domain.ErrReservationExpired
		}

		if err := s.store.MarkReservationConverted(txCtx, reservationID); err != nil {
			return err
		}

		tickets, err = s.issue(txCtx, res, now)
		if err != nil {
			return err
		}

		return s.store.EnqueueEvent(txCtx, "reservation", reservationID, "reservation.converted", map[string]any{
			"event_id": res.EventID,
			"count":    len(tickets),
		})
	})
	// Confirmation never succeeds past the hold window; process the
	// expiry now rather than waiting for the sweep.
	if errors.Is(err, domain.ErrReservationExpired) {
		if expErr := s.Expire(ctx, reservationID); expErr != nil {
			return nil, errors.CombineErrors(err, expErr)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	s.sink.Record(ctx, userID, audit.ActionTicketsIssued, "RESERVATION", reservationID, map[string]any{
		"count": len(tickets),
	})
	return tickets, nil
}

// Expire transitions an ACTIVE reservation to EXPIRED and releases its
// capacity. A reservation already in a terminal state is left untouched,
// preventing double release.
func (s *Service) Expire(ctx context.Context, reservationID uuid.UUID) error {
	var released bool
	var res domain.Reservation

	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		r, err := s.store.GetReservation(txCtx, reservationID)
		if err != nil {
			return err
		}
		won, err := s.store.MarkReservationExpired(txCtx, reservationID)
		if err != nil || !won {
			return err
		}
		if err := s.store.ReleaseCapacity(txCtx, r.EventID, r.Quantity); err != nil {
			return err
		}
		if err := s.store.EnqueueEvent(txCtx, "reservation", reservationID, "reservation.expired", map[string]any{
			"event_id": r.EventID,
			"quantity": r.Quantity,
		}); err != nil {
			return err
		}
		released = true
		res = r
		return nil
	})
	if err != nil {
		return err
	}

	if released {
		s.sink.Record(ctx, uuid.Nil, audit.ActionReservationExpired, "RESERVATION", reservationID, map[string]any{
			"event_id": res.EventID.String(),
			"quantity": res.Quantity,
		})
	}
	return nil
}
