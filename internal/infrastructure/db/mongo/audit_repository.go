package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/99minutos/identity-service/internal/core/domain"
)

const auditCollection = "auth_events"

// AuditRepository implements ports.AuditRepository on the auth_events collection.
type AuditRepository struct {
	coll *mongo.Collection
}

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{coll: db.Collection(auditCollection)}
}

type mongoAuthEvent struct {
	ID         string    `bson:"_id"`
	Type       string    `bson:"type"`
	Subject    string    `bson:"subject"`
	UserID     int64     `bson:"user_id,omitempty"`
	Actor      string    `bson:"actor,omitempty"`
	Role       string    `bson:"role,omitempty"`
	Timestamp  time.Time `bson:"timestamp"`
	RecordedAt time.Time `bson:"recorded_at"`
}

// EnsureIndexes creates the lookup indexes used by audit queries.
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "subject", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create audit indexes: %w", err)
	}
	return nil
}

// InsertEvent persists one event. Re-delivery of the same id is ignored.
func (r *AuditRepository) InsertEvent(ctx context.Context, event *domain.AuthEvent) error {
	if _, err := r.coll.InsertOne(ctx, toAuditDocument(event, time.Now())); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func toAuditDocument(event *domain.AuthEvent, recordedAt time.Time) mongoAuthEvent {
	return mongoAuthEvent{
		ID:         event.ID,
		Type:       string(event.Type),
		Subject:    event.Subject,
		UserID:     event.UserID,
		Actor:      event.Actor,
		Role:       string(event.Role),
		Timestamp:  event.Timestamp.UTC(),
		RecordedAt: recordedAt.UTC(),
	}
}
