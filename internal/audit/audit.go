// Package audit defines the append-only audit sink every component writes
// its state transitions to. The sink is an external collaborator: writes
// are fire-and-forget-but-durable and never participate in the caller's
// transaction.
package audit

import (
	"context"

	"github.com/google/uuid"
)

const (
	ActionReservationCreated = "RESERVATION_CREATED"
	ActionTicketsIssued      = "TICKETS_ISSUED"
	ActionReservationExpired = "RESERVATION_EXPIRED"
	ActionTicketValidated    = "TICKET_VALIDATED"
	ActionTransferInitiated  = "TICKET_TRANSFER_INITIATED"
	ActionTransferCompleted  = "TICKET_TRANSFER_COMPLETED"
	ActionCapacityReconciled = "CAPACITY_RECONCILED"
)

// Sink records one entry per state transition. ActorID is uuid.Nil for
// system-initiated transitions (expiry sweep, reconciliation).
type Sink interface {
	Record(ctx context.Context, actorID uuid.UUID, action, entityType string, entityID uuid.UUID, metadata map[string]any)
}

// Nop discards entries. Useful in tests that don't assert on auditing.
type Nop struct{}

func (Nop) Record(context.Context, uuid.UUID, string, string, uuid.UUID, map[string]any) {}
