package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventDraft     EventStatus = "DRAFT"
	EventPublished EventStatus = "PUBLISHED"
	EventClosed    EventStatus = "CLOSED"
)

// Event carries the capacity-bearing row. IssuedCount is mutated only
// through the ledger's conditional updates and the reconciler's overwrite.
type Event struct {
	ID          uuid.UUID
	Title       string
	Status      EventStatus
	Capacity    int
	IssuedCount int
	MaxPerUser  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (e Event) Sellable() bool {
	return e.Status == EventPublished
}

func (e Event) Remaining() int {
	return e.Capacity - e.IssuedCount
}

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationConverted ReservationStatus = "CONVERTED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// Reservation is a time-boxed hold on event capacity. ACTIVE is the only
// non-terminal state.
type Reservation struct {
	ID             uuid.UUID
	EventID        uuid.UUID
	UserID         uuid.UUID
	Quantity       int
	Status         ReservationStatus
	ExpiresAt      time.Time
	IdempotencyKey string
	CreatedAt      time.Time
}

func (r Reservation) Lapsed(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

type TicketStatus string

const (
	TicketIssued    TicketStatus = "ISSUED"
	TicketUsed      TicketStatus = "USED"
	TicketCancelled TicketStatus = "CANCELLED"
)

type Ticket struct {
	ID          uuid.UUID
	EventID     uuid.UUID
	UserID      uuid.UUID
	TicketIndex int
	Code        string
	EntryToken  string
	Status      TicketStatus
	ValidatedAt *time.Time
	ValidatedBy *uuid.UUID
	CreatedAt   time.Time
}

type TransferStatus string

const (
	TransferPending   TransferStatus = "PENDING"
	TransferCompleted TransferStatus = "COMPLETED"
	TransferCancelled TransferStatus = "CANCELLED"
)

type Transfer struct {
	ID            uuid.UUID
	TicketID      uuid.UUID
	SenderID      uuid.UUID
	ReceiverEmail string
	TransferCode  string
	Status        TransferStatus
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

func NewReservation(eventID, userID uuid.UUID, quantity int, idempotencyKey string, now time.Time, ttl time.Duration) Reservation {
	return Reservation{
		ID:             uuid.New(),
		EventID:        eventID,
		UserID:         userID,
		Quantity:       quantity,
		Status:         ReservationActive,
		ExpiresAt:      now.Add(ttl),
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
	}
}
