package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// DocumentService manages the document and invoice records the stage gates
// check. File content lives in external storage; only metadata is kept here.
type DocumentService interface {
	AddDocument(ctx context.Context, actor User, orderID int, stage Status, docType DocumentType, docKey, fileRef string) (*OrderDocument, error)
	ListDocuments(ctx context.Context, orderID int) ([]OrderDocument, error)

	// AddInvoice records a supplier invoice. A commercial invoice with an
	// empty number gets the next sequenced one for the order's SKU group.
	AddInvoice(ctx context.Context, actor User, orderID int, kind InvoiceKind, invoiceNumber string, amount decimal.Decimal, currency string) (*OrderInvoice, error)
	ListInvoices(ctx context.Context, orderID int) ([]OrderInvoice, error)
}

type documentService struct {
	pool *pgxpool.Pool
	refs ReferenceGenerator
}

// NewDocumentService constructs a DocumentService backed by PostgreSQL.
func NewDocumentService(pool *pgxpool.Pool, refs ReferenceGenerator) DocumentService {
	return &documentService{pool: pool, refs: refs}
}

func (s *documentService) AddDocument(ctx context.Context, actor User, orderID int, stage Status, docType DocumentType, docKey, fileRef string) (*OrderDocument, error) {
	if fileRef == "" {
		return nil, validationErrorf("a file reference is required")
	}
	switch docType {
	case DocTypeProformaInvoice, DocTypeCommercialInvoice, DocTypeBillOfLading, DocTypePackingList:
	default:
		return nil, validationErrorf("unknown document type %q", docType)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	po, err := loadOrderForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if po.Status.IsTerminal() {
		return nil, conflictErrorf("order %s is %s; documents can no longer be attached", PublicRef(po.OrderRef), po.Status)
	}

	doc := &OrderDocument{
		OrderID:    orderID,
		Stage:      stage,
		Type:       docType,
		DocKey:     NormalizeDocKey(docKey),
		FileRef:    fileRef,
		UploadedBy: actor.Name,
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO order_documents (order_id, stage, type, doc_key, file_ref, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		doc.OrderID, string(doc.Stage), string(doc.Type), doc.DocKey, doc.FileRef, doc.UploadedBy,
	).Scan(&doc.ID, &doc.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert document for order %d: %w", orderID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit document: %w", err)
	}
	return doc, nil
}

func (s *documentService) ListDocuments(ctx context.Context, orderID int) ([]OrderDocument, error) {
	return loadOrderDocuments(ctx, s.pool, orderID)
}

func (s *documentService) AddInvoice(ctx context.Context, actor User, orderID int, kind InvoiceKind, invoiceNumber string, amount decimal.Decimal, currency string) (*OrderInvoice, error) {
	if kind != InvoiceKindProforma && kind != InvoiceKindCommercial {
		return nil, validationErrorf("unknown invoice kind %q", kind)
	}
	if !amount.IsPositive() {
		return nil, validationErrorf("invoice amount must be positive")
	}

	var inv *OrderInvoice
	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		po, err := loadOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if po.Status.IsTerminal() {
			return conflictErrorf("order %s is %s; invoices can no longer be attached", PublicRef(po.OrderRef), po.Status)
		}

		number := invoiceNumber
		if number == "" {
			if kind != InvoiceKindCommercial {
				return validationErrorf("an invoice number is required")
			}
			number, err = s.refs.NextInvoiceNumber(ctx, tx, po.SKUGroup)
			if err != nil {
				return err
			}
		}

		rec := &OrderInvoice{
			OrderID:       orderID,
			Kind:          kind,
			InvoiceNumber: number,
			Amount:        amount,
			Currency:      currency,
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO order_invoices (order_id, kind, invoice_number, amount, currency)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at`,
			rec.OrderID, string(rec.Kind), rec.InvoiceNumber, rec.Amount, rec.Currency,
		).Scan(&rec.ID, &rec.CreatedAt); err != nil {
			return fmt.Errorf("insert invoice for order %d: %w", orderID, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit invoice: %w", err)
		}
		inv = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *documentService) ListInvoices(ctx context.Context, orderID int) ([]OrderInvoice, error) {
	return loadOrderInvoices(ctx, s.pool, orderID)
}
