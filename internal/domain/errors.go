package domain

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")

	ErrEventUnavailable       = errors.New("event not available for sale")
	ErrReservationInactive    = errors.New("reservation is no longer active")
	ErrReservationExpired     = errors.New("reservation has expired")
	ErrInvalidToken           = errors.New("invalid or tampered entry token")
	ErrEventMismatch          = errors.New("ticket belongs to a different event")
	ErrTicketCancelled        = errors.New("ticket has been cancelled")
	ErrIdempotencyKeyRequired = errors.New("idempotency key required")
	ErrIdempotencyConflict    = errors.New("idempotency key already used")
	ErrTransferUnavailable    = errors.New("ticket is not in a transferable state")
	ErrTransferProcessed      = errors.New("transfer has already been processed")
	ErrTransferExpired        = errors.New("transfer code has expired")
)

// InsufficientCapacityError reports how many units remained when the
// conditional increment lost, so callers can relay it to a human.
type InsufficientCapacityError struct {
	EventID   uuid.UUID
	Requested int
	Remaining int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity for event %s: requested %d, %d remaining", e.EventID, e.Requested, e.Remaining)
}

// AlreadyUsedError carries the original admission so a gate operator can
// see who admitted the ticket and when.
type AlreadyUsedError struct {
	TicketID    uuid.UUID
	ValidatedAt time.Time
	ValidatedBy uuid.UUID
}

func (e *AlreadyUsedError) Error() string {
	return fmt.Sprintf("ticket %s already used at %s by %s", e.TicketID, e.ValidatedAt.Format(time.RFC3339), e.ValidatedBy)
}

// TicketLimitError reports the per-owner cap and how many more tickets the
// owner may still acquire for the event.
type TicketLimitError struct {
	EventID   uuid.UUID
	Limit     int
	Remaining int
}

func (e *TicketLimitError) Error() string {
	if e.Remaining > 0 {
		return fmt.Sprintf("ticket limit for event %s: only %d more allowed", e.EventID, e.Remaining)
	}
	return fmt.Sprintf("ticket limit of %d reached for event %s", e.Limit, e.EventID)
}
