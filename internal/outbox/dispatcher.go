package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Handler processes one claimed message. A nil return marks the message
// published; an error schedules a retry with exponential backoff.
type Handler func(ctx context.Context, msg Message) error

// Dispatcher polls the outbox table and delivers pending messages to their
// topic handlers. Claims use SKIP LOCKED so multiple dispatchers can run
// side by side; rows stuck in PROCESSING past LockTimeout are reclaimed.
type Dispatcher struct {
	Pool         *pgxpool.Pool
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration

	handlers map[string]Handler
}

// NewDispatcher constructs a Dispatcher with production defaults.
func NewDispatcher(pool *pgxpool.Pool, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		Pool:           pool,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
		handlers:       map[string]Handler{},
	}
}

// Handle registers the handler for a topic. Messages on topics with no
// handler fail and retry until a handler appears or they go dead.
func (d *Dispatcher) Handle(topic string, h Handler) {
	d.handlers[topic] = h
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := d.DispatchOnce(ctx); err != nil {
			d.Logger.WithError(err).Warn("outbox dispatch cycle failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims a batch and processes it. Claiming runs in one short
// transaction; handlers run outside it so a slow handler never holds row
// locks.
func (d *Dispatcher) DispatchOnce(ctx context.Context) error {
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)

	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin outbox claim: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, topic, payload, status, attempts, last_error,
		       next_attempt_at, locked_at, locked_by, created_at
		FROM outbox_messages
		WHERE (status IN ($1, $2) AND (next_attempt_at IS NULL OR next_attempt_at <= $3))
		   OR (status = $4 AND locked_at IS NOT NULL AND locked_at <= $5)
		ORDER BY id
		LIMIT $6
		FOR UPDATE SKIP LOCKED`,
		StatusPending, StatusFailed, now, StatusProcessing, staleBefore, d.BatchSize,
	)
	if err != nil {
		return fmt.Errorf("select outbox batch: %w", err)
	}
	var claimed []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Status, &m.Attempts, &m.LastError,
			&m.NextAttemptAt, &m.LockedAt, &m.LockedBy, &m.CreatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan outbox message: %w", err)
		}
		claimed = append(claimed, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(claimed) == 0 {
		return tx.Commit(ctx)
	}

	live := claimed[:0]
	for _, m := range claimed {
		// Poison messages go terminal instead of retrying forever.
		if d.MaxAttempts > 0 && m.Attempts >= d.MaxAttempts {
			reason := fmt.Sprintf("max attempts exceeded (%d)", d.MaxAttempts)
			if _, err := tx.Exec(ctx, `
				UPDATE outbox_messages
				SET status = $1, last_error = $2, next_attempt_at = NULL,
				    locked_at = NULL, locked_by = NULL
				WHERE id = $3`,
				StatusDead, reason, m.ID,
			); err != nil {
				return fmt.Errorf("mark outbox message %d dead: %w", m.ID, err)
			}
			d.Logger.WithFields(logrus.Fields{"message_id": m.ID, "topic": m.Topic}).
				Error("outbox message exceeded max attempts")
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE outbox_messages
			SET status = $1, locked_at = $2, locked_by = $3,
			    attempts = attempts + 1, last_error = NULL, next_attempt_at = NULL
			WHERE id = $4`,
			StatusProcessing, now, d.DispatcherID, m.ID,
		); err != nil {
			return fmt.Errorf("claim outbox message %d: %w", m.ID, err)
		}
		m.Attempts++
		live = append(live, m)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit outbox claim: %w", err)
	}

	for _, m := range live {
		d.process(ctx, m)
	}
	return nil
}

func (d *Dispatcher) process(ctx context.Context, m Message) {
	log := d.Logger.WithFields(logrus.Fields{"message_id": m.ID, "topic": m.Topic, "attempt": m.Attempts})

	handler, ok := d.handlers[m.Topic]
	var handleErr error
	if !ok {
		handleErr = fmt.Errorf("no handler registered for topic %s", m.Topic)
	} else {
		handleErr = handler(ctx, m)
	}

	if handleErr == nil {
		if _, err := d.Pool.Exec(ctx, `
			UPDATE outbox_messages
			SET status = $1, locked_at = NULL, locked_by = NULL, last_error = NULL
			WHERE id = $2`,
			StatusPublished, m.ID,
		); err != nil {
			log.WithError(err).Warn("failed to mark outbox message published")
		}
		return
	}

	backoff := d.InitialBackoff * time.Duration(1<<uint(min(m.Attempts-1, 10)))
	nextAttempt := time.Now().UTC().Add(backoff)
	log.WithError(handleErr).Warn("outbox handler failed, scheduling retry")
	if _, err := d.Pool.Exec(ctx, `
		UPDATE outbox_messages
		SET status = $1, last_error = $2, next_attempt_at = $3,
		    locked_at = NULL, locked_by = NULL
		WHERE id = $4`,
		StatusFailed, handleErr.Error(), nextAttempt, m.ID,
	); err != nil {
		log.WithError(err).Warn("failed to schedule outbox retry")
	}
}
