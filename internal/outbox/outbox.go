package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Publish statuses for outbox messages.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusPublished  = "PUBLISHED"
	StatusFailed     = "FAILED"
	StatusDead       = "DEAD"
)

// Topics dispatched through the outbox.
const (
	TopicStorageRecalculate = "storage.recalculate"
	TopicOrderReceived      = "order.received"
)

// Message is one transactional outbox row. Rows are written in the same
// transaction as the state change they announce and picked up by the
// dispatcher afterwards.
type Message struct {
	ID            int64
	Topic         string
	Payload       []byte
	Status        string
	Attempts      int
	LastError     *string
	NextAttemptAt *time.Time
	LockedAt      *time.Time
	LockedBy      *string
	CreatedAt     time.Time
}

// EnqueueTx writes a pending message inside the caller's transaction. The
// payload is marshalled to JSON.
func EnqueueTx(ctx context.Context, tx pgx.Tx, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload for %s: %w", topic, err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO outbox_messages (topic, payload, status)
		VALUES ($1, $2, $3)`,
		topic, body, StatusPending,
	); err != nil {
		return fmt.Errorf("enqueue outbox message for %s: %w", topic, err)
	}
	return nil
}
