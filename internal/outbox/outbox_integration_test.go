package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"importdesk/internal/outbox"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func setupOutboxTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if _, err := pool.Exec(ctx, "TRUNCATE TABLE outbox_messages"); err != nil {
		t.Fatalf("truncate outbox: %v", err)
	}
	return pool
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func enqueue(t *testing.T, pool *pgxpool.Pool, topic string, payload any) {
	t.Helper()
	ctx := context.Background()
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)
	if err := outbox.EnqueueTx(ctx, tx, topic, payload); err != nil {
		t.Fatalf("EnqueueTx: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func messageStatus(t *testing.T, pool *pgxpool.Pool, topic string) (status string, attempts int) {
	t.Helper()
	err := pool.QueryRow(context.Background(),
		"SELECT status, attempts FROM outbox_messages WHERE topic = $1 ORDER BY id DESC LIMIT 1",
		topic,
	).Scan(&status, &attempts)
	if err != nil {
		t.Fatalf("query message status: %v", err)
	}
	return status, attempts
}

func TestDispatcher_DeliversAndPublishes(t *testing.T) {
	pool := setupOutboxTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	d := outbox.NewDispatcher(pool, quietLogger())

	delivered := make(chan []byte, 1)
	d.Handle("test.topic", func(ctx context.Context, msg outbox.Message) error {
		delivered <- msg.Payload
		return nil
	})

	enqueue(t, pool, "test.topic", map[string]any{"order_id": 42})

	if err := d.DispatchOnce(ctx); err != nil {
		t.Fatalf("DispatchOnce: %v", err)
	}

	select {
	case payload := <-delivered:
		var body map[string]any
		if err := json.Unmarshal(payload, &body); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if body["order_id"] != float64(42) {
			t.Errorf("payload order_id = %v, want 42", body["order_id"])
		}
	default:
		t.Fatal("handler was not invoked")
	}

	status, attempts := messageStatus(t, pool, "test.topic")
	if status != outbox.StatusPublished {
		t.Errorf("status = %s, want PUBLISHED", status)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDispatcher_RetriesWithBackoff(t *testing.T) {
	pool := setupOutboxTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	d := outbox.NewDispatcher(pool, quietLogger())
	d.Handle("flaky.topic", func(ctx context.Context, msg outbox.Message) error {
		return errors.New("downstream unavailable")
	})

	enqueue(t, pool, "flaky.topic", map[string]any{"n": 1})

	if err := d.DispatchOnce(ctx); err != nil {
		t.Fatalf("DispatchOnce: %v", err)
	}

	status, attempts := messageStatus(t, pool, "flaky.topic")
	if status != outbox.StatusFailed {
		t.Errorf("status = %s, want FAILED", status)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}

	var nextAttempt *time.Time
	pool.QueryRow(ctx,
		"SELECT next_attempt_at FROM outbox_messages WHERE topic = 'flaky.topic'",
	).Scan(&nextAttempt)
	if nextAttempt == nil || !nextAttempt.After(time.Now()) {
		t.Errorf("next_attempt_at = %v, want a future time", nextAttempt)
	}

	// A failed message with a future next_attempt_at is not reclaimed yet.
	if err := d.DispatchOnce(ctx); err != nil {
		t.Fatalf("DispatchOnce second: %v", err)
	}
	if _, attempts = messageStatus(t, pool, "flaky.topic"); attempts != 1 {
		t.Errorf("attempts after early poll = %d, want still 1", attempts)
	}
}

func TestDispatcher_PoisonGoesDead(t *testing.T) {
	pool := setupOutboxTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	d := outbox.NewDispatcher(pool, quietLogger())
	d.MaxAttempts = 2
	d.Handle("poison.topic", func(ctx context.Context, msg outbox.Message) error {
		return errors.New("always fails")
	})

	enqueue(t, pool, "poison.topic", map[string]any{})

	for i := 0; i < 3; i++ {
		// Force the failed row eligible again without waiting for backoff.
		pool.Exec(ctx, "UPDATE outbox_messages SET next_attempt_at = NOW() - INTERVAL '1 second' WHERE topic = 'poison.topic'")
		if err := d.DispatchOnce(ctx); err != nil {
			t.Fatalf("DispatchOnce %d: %v", i, err)
		}
	}

	status, attempts := messageStatus(t, pool, "poison.topic")
	if status != outbox.StatusDead {
		t.Errorf("status = %s, want DEAD", status)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 (capped)", attempts)
	}
}

func TestDispatcher_UnknownTopicRetries(t *testing.T) {
	pool := setupOutboxTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	d := outbox.NewDispatcher(pool, quietLogger())

	enqueue(t, pool, "orphan.topic", map[string]any{})

	if err := d.DispatchOnce(ctx); err != nil {
		t.Fatalf("DispatchOnce: %v", err)
	}
	status, _ := messageStatus(t, pool, "orphan.topic")
	if status != outbox.StatusFailed {
		t.Errorf("status = %s, want FAILED for unhandled topic", status)
	}
}
