package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInvoiceNotFound is returned when a payment hash has no matching row.
var ErrInvoiceNotFound = errors.New("lightning invoice not found")

// InvoiceRepository is the durable home of LightningInvoice rows.
type InvoiceRepository struct {
	db *pgxpool.Pool
}

func NewInvoiceRepository(db *DB) *InvoiceRepository {
	return &InvoiceRepository{db: db.pool}
}

// Create inserts a new invoice row.
func (r *InvoiceRepository) Create(ctx context.Context, inv *LightningInvoice) error {
	query := `INSERT INTO lightning_invoices (
		payment_hash, bolt11, session_id, amount_sats, asset_id, status, invoice_type, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		inv.PaymentHash, inv.Bolt11, inv.SessionID, inv.AmountSats, inv.AssetID,
		inv.Status, inv.InvoiceType, inv.CreatedAt, inv.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create invoice %s: %w", inv.PaymentHash, err)
	}
	return nil
}

// GetByPaymentHash retrieves an invoice by its primary key.
func (r *InvoiceRepository) GetByPaymentHash(ctx context.Context, paymentHash string) (*LightningInvoice, error) {
	query := `SELECT payment_hash, bolt11, session_id, amount_sats, asset_id, status, invoice_type, created_at, expires_at, paid_at
		FROM lightning_invoices WHERE payment_hash = $1`

	var inv LightningInvoice
	err := r.db.QueryRow(ctx, query, paymentHash).Scan(
		&inv.PaymentHash, &inv.Bolt11, &inv.SessionID, &inv.AmountSats, &inv.AssetID,
		&inv.Status, &inv.InvoiceType, &inv.CreatedAt, &inv.ExpiresAt, &inv.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice %s: %w", paymentHash, err)
	}
	return &inv, nil
}

// MarkPaid transitions an invoice to paid and stamps paid_at, used by the
// lift invoice monitor once a preimage is verified against payment_hash.
func (r *InvoiceRepository) MarkPaid(ctx context.Context, paymentHash string, paidAt time.Time) error {
	query := `UPDATE lightning_invoices SET status = 'paid', paid_at = $2 WHERE payment_hash = $1`
	tag, err := r.db.Exec(ctx, query, paymentHash, paidAt)
	if err != nil {
		return fmt.Errorf("failed to mark invoice %s paid: %w", paymentHash, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// UpdateStatus sets an invoice's status directly (e.g. failed, expired).
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, paymentHash string, status InvoiceStatus) error {
	query := `UPDATE lightning_invoices SET status = $2 WHERE payment_hash = $1`
	tag, err := r.db.Exec(ctx, query, paymentHash, status)
	if err != nil {
		return fmt.Errorf("failed to update invoice %s status: %w", paymentHash, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

// ListExpired returns pending invoices whose expiry has passed, for the
// sweeper loop.
func (r *InvoiceRepository) ListExpired(ctx context.Context, before time.Time) ([]*LightningInvoice, error) {
	query := `SELECT payment_hash, bolt11, session_id, amount_sats, asset_id, status, invoice_type, created_at, expires_at, paid_at
		FROM lightning_invoices
		WHERE expires_at < $1 AND status IN ('pending', 'pending_payment')`

	rows, err := r.db.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*LightningInvoice
	for rows.Next() {
		var inv LightningInvoice
		if err := rows.Scan(
			&inv.PaymentHash, &inv.Bolt11, &inv.SessionID, &inv.AmountSats, &inv.AssetID,
			&inv.Status, &inv.InvoiceType, &inv.CreatedAt, &inv.ExpiresAt, &inv.PaidAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invoice row: %w", err)
		}
		invoices = append(invoices, &inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during invoice row iteration: %w", err)
	}
	return invoices, nil
}
