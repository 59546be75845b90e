package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ReferenceGenerator issues strictly increasing, group-scoped reference
// strings for orders, PO numbers and commercial invoices. Sequences advance
// inside the caller's transaction; the unique indexes on the consuming
// columns detect collisions (e.g. a reference minted by a transaction that
// later rolled back and was re-minted concurrently), which the caller handles
// by retrying the whole transaction body.
type ReferenceGenerator interface {
	NextOrderRef(ctx context.Context, tx pgx.Tx, skuGroup string) (string, error)
	NextPONumber(ctx context.Context, tx pgx.Tx, skuGroup string) (string, error)
	NextInvoiceNumber(ctx context.Context, tx pgx.Tx, skuGroup string) (string, error)
}

type referenceGenerator struct{}

// NewReferenceGenerator returns the sequence-table backed generator.
func NewReferenceGenerator() ReferenceGenerator {
	return referenceGenerator{}
}

func (referenceGenerator) NextOrderRef(ctx context.Context, tx pgx.Tx, skuGroup string) (string, error) {
	n, err := nextSequence(ctx, tx, "order:"+skuGroup)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%s-%05d", strings.ToUpper(skuGroup), n), nil
}

func (referenceGenerator) NextPONumber(ctx context.Context, tx pgx.Tx, skuGroup string) (string, error) {
	n, err := nextSequence(ctx, tx, "po:"+skuGroup)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PO-%s-%05d", strings.ToUpper(skuGroup), n), nil
}

func (referenceGenerator) NextInvoiceNumber(ctx context.Context, tx pgx.Tx, skuGroup string) (string, error) {
	n, err := nextSequence(ctx, tx, "inv:"+skuGroup)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CI-%s-%06d", strings.ToUpper(skuGroup), n), nil
}

// nextSequence advances the named sequence and returns the new value.
// The upsert serializes concurrent callers on the sequence row, so values are
// strictly increasing per scope.
func nextSequence(ctx context.Context, tx pgx.Tx, scope string) (int64, error) {
	var n int64
	err := tx.QueryRow(ctx, `
		INSERT INTO reference_sequences (scope, last_number)
		VALUES ($1, 1)
		ON CONFLICT (scope)
		DO UPDATE SET last_number = reference_sequences.last_number + 1
		RETURNING last_number`,
		scope,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("advance reference sequence %s: %w", scope, err)
	}
	return n, nil
}

// refSeparator marks internal split-sibling suffixes on order references.
// "ORD-GRP-00012~2" is the second sibling of split group ORD-GRP-00012; the
// public-facing reference strips everything from the separator on.
const refSeparator = "~"

// PublicRef strips the internal split-sibling suffix from a reference.
func PublicRef(ref string) string {
	if i := strings.Index(ref, refSeparator); i >= 0 {
		return ref[:i]
	}
	return ref
}

// siblingOrderRef derives the internal reference for the nth split sibling of
// the given order reference (n >= 2; the original keeps the bare reference).
func siblingOrderRef(ref string, n int) string {
	return fmt.Sprintf("%s%s%d", PublicRef(ref), refSeparator, n)
}

// lotRefFor derives the unique lot reference for a SKU on an order.
func lotRefFor(orderRef, skuCode string) string {
	return orderRef + "-" + skuCode
}
