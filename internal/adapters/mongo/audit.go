package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tessera-live/tessera/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditSink writes append-only audit entries to a Mongo collection.
// Failures are logged, never returned: the sink must not abort the state
// transition it is recording.
type AuditSink struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditSink(db *mongo.Database, logger observability.Logger) *AuditSink {
	return &AuditSink{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type auditEntry struct {
	ID         uuid.UUID `bson:"_id"`
	ActorID    string    `bson:"actor_id,omitempty"`
	Action     string    `bson:"action"`
	EntityType string    `bson:"entity_type"`
	EntityID   uuid.UUID `bson:"entity_id"`
	Timestamp  time.Time `bson:"timestamp"`
	Metadata   bson.M    `bson:"metadata"`
}

func (a *AuditSink) Record(ctx context.Context, actorID uuid.UUID, action, entityType string, entityID uuid.UUID, metadata map[string]any) {
	entry := auditEntry{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Timestamp:  time.Now().UTC(),
		Metadata:   bson.M(metadata),
	}
	if actorID != uuid.Nil {
		entry.ActorID = actorID.String()
	}
	if _, err := a.coll.InsertOne(ctx, entry); err != nil {
		a.logger.WithField("action", action).Error("failed to insert audit entry", err)
	}
}
