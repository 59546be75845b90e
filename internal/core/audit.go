package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEvent is one recorded mutation of an order: who did what, with the
// before/after values of the fields that changed.
type AuditEvent struct {
	OrderID   int               `json:"order_id"`
	Action    string            `json:"action"`
	ActorID   int               `json:"actor_id"`
	OldValues map[string]string `json:"old_values,omitempty"`
	NewValues map[string]string `json:"new_values,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Audit actions.
const (
	AuditActionCreate       = "CREATE"
	AuditActionStageChange  = "STAGE_CHANGE"
	AuditActionCancel       = "CANCEL"
	AuditActionSplit        = "SPLIT"
	AuditActionReceive      = "RECEIVE"
	AuditActionMarks        = "MARKS_GENERATED"
	AuditActionArchive      = "ARCHIVE"
	AuditActionFieldsUpdate = "FIELDS_UPDATE"
)

// AuditSink records audit events. RecordTx runs inside the caller's
// transaction so the trail commits or rolls back with the mutation it
// describes.
type AuditSink interface {
	RecordTx(ctx context.Context, tx pgx.Tx, ev AuditEvent) error
	ListForOrder(ctx context.Context, orderID int) ([]AuditEvent, error)
}

type pgAuditSink struct {
	pool *pgxpool.Pool
}

// NewAuditSink constructs an AuditSink backed by the order_audit_log table.
func NewAuditSink(pool *pgxpool.Pool) AuditSink {
	return &pgAuditSink{pool: pool}
}

func (s *pgAuditSink) RecordTx(ctx context.Context, tx pgx.Tx, ev AuditEvent) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_audit_log (order_id, action, actor_id, old_values, new_values)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.OrderID, ev.Action, ev.ActorID, ev.OldValues, ev.NewValues,
	); err != nil {
		return fmt.Errorf("record audit event %s for order %d: %w", ev.Action, ev.OrderID, err)
	}
	return nil
}

func (s *pgAuditSink) ListForOrder(ctx context.Context, orderID int) ([]AuditEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT order_id, action, actor_id, old_values, new_values, created_at
		FROM order_audit_log
		WHERE order_id = $1
		ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("load audit log for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var ev AuditEvent
		if err := rows.Scan(&ev.OrderID, &ev.Action, &ev.ActorID, &ev.OldValues, &ev.NewValues, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
