package crdb

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('DRAFT', 'PUBLISHED', 'CLOSED')),
	capacity INT NOT NULL CHECK (capacity >= 0),
	issued_count INT NOT NULL DEFAULT 0 CHECK (issued_count >= 0),
	max_per_user INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reservations (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL,
	user_id UUID NOT NULL,
	quantity INT NOT NULL CHECK (quantity > 0),
	status TEXT NOT NULL CHECK (status IN ('ACTIVE', 'CONVERTED', 'EXPIRED')),
	expires_at TIMESTAMPTZ NOT NULL,
	idempotency_key TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS reservations_active_expiry ON reservations (status, expires_at);
CREATE INDEX IF NOT EXISTS reservations_by_event ON reservations (event_id, status);

CREATE TABLE IF NOT EXISTS tickets (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL,
	user_id UUID NOT NULL,
	ticket_index INT NOT NULL,
	code TEXT NOT NULL UNIQUE,
	entry_token TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL CHECK (status IN ('ISSUED', 'USED', 'CANCELLED')),
	validated_at TIMESTAMPTZ,
	validated_by UUID,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS tickets_by_owner ON tickets (user_id, event_id);
CREATE INDEX IF NOT EXISTS tickets_by_event ON tickets (event_id, status);

CREATE TABLE IF NOT EXISTS transfers (
	id UUID PRIMARY KEY,
	ticket_id UUID NOT NULL,
	sender_id UUID NOT NULL,
	receiver_email TEXT NOT NULL,
	transfer_code TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL CHECK (status IN ('PENDING', 'COMPLETED', 'CANCELLED')),
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'NEW',
	dedupe_key TEXT NOT NULL
);
`

// Migrate applies the schema. Statements are idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}
