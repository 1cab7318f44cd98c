package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sajian-pos/api/internal/enum"
)

const paymentColumns = `id, order_id, method, status, amount, payment_type, is_adjustment,
	direction, related_payment_id, revision_id, reference_number, paid_at, processed_by, created_at`

func scanPayment(row interface{ Scan(dest ...any) error }) (Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Method, &p.Status, &p.Amount, &p.PaymentType, &p.IsAdjustment,
		&p.Direction, &p.RelatedPaymentID, &p.RevisionID, &p.ReferenceNumber, &p.PaidAt,
		&p.ProcessedBy, &p.CreatedAt,
	)
	return p, err
}

func (q *Queries) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	const query = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(q.db.QueryRow(ctx, query, id))
}

func (q *Queries) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	const query = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY created_at, id`
	rows, err := q.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

type CreatePaymentParams struct {
	OrderID          uuid.UUID
	Method           enum.PaymentMethod
	Status           enum.PaymentStatus
	Amount           pgtype.Numeric
	PaymentType      enum.PaymentType
	IsAdjustment     bool
	Direction        pgtype.Text
	RelatedPaymentID pgtype.UUID
	RevisionID       pgtype.UUID
	ReferenceNumber  pgtype.Text
	PaidAt           pgtype.Timestamptz
	ProcessedBy      uuid.UUID
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	const query = `INSERT INTO payments (
		order_id, method, status, amount, payment_type, is_adjustment,
		direction, related_payment_id, revision_id, reference_number, paid_at, processed_by
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING ` + paymentColumns
	return scanPayment(q.db.QueryRow(ctx, query,
		arg.OrderID, arg.Method, arg.Status, arg.Amount, arg.PaymentType, arg.IsAdjustment,
		arg.Direction, arg.RelatedPaymentID, arg.RevisionID, arg.ReferenceNumber, arg.PaidAt,
		arg.ProcessedBy,
	))
}

type UpdatePendingPaymentAmountParams struct {
	ID     uuid.UUID
	Amount pgtype.Numeric
}

// UpdatePendingPaymentAmount rewrites the amount of a still-pending payment.
// The status guard keeps a revision from ever touching a settled row.
func (q *Queries) UpdatePendingPaymentAmount(ctx context.Context, arg UpdatePendingPaymentAmountParams) (Payment, error) {
	const query = `UPDATE payments SET amount = $2
		WHERE id = $1 AND status = 'PENDING'
		RETURNING ` + paymentColumns
	return scanPayment(q.db.QueryRow(ctx, query, arg.ID, arg.Amount))
}

type UpdatePaymentStatusParams struct {
	ID     uuid.UUID
	Status enum.PaymentStatus
	PaidAt pgtype.Timestamptz
}

func (q *Queries) UpdatePaymentStatus(ctx context.Context, arg UpdatePaymentStatusParams) (Payment, error) {
	const query = `UPDATE payments SET status = $2, paid_at = $3
		WHERE id = $1
		RETURNING ` + paymentColumns
	return scanPayment(q.db.QueryRow(ctx, query, arg.ID, arg.Status, arg.PaidAt))
}

type CapturePaymentParams struct {
	ID              uuid.UUID
	Status          enum.PaymentStatus
	Method          enum.PaymentMethod
	ReferenceNumber pgtype.Text
	PaidAt          pgtype.Timestamptz
}

// CapturePayment records a gateway outcome: the method the customer actually
// used, the gateway reference, and the terminal status.
func (q *Queries) CapturePayment(ctx context.Context, arg CapturePaymentParams) (Payment, error) {
	const query = `UPDATE payments SET status = $2, method = $3, reference_number = $4, paid_at = $5
		WHERE id = $1
		RETURNING ` + paymentColumns
	return scanPayment(q.db.QueryRow(ctx, query, arg.ID, arg.Status, arg.Method, arg.ReferenceNumber, arg.PaidAt))
}

// SumSettledPaymentsByOrder returns collected minus refunded settled amounts.
func (q *Queries) SumSettledPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (pgtype.Numeric, error) {
	const query = `SELECT COALESCE(SUM(CASE WHEN direction = 'REFUND' THEN -amount ELSE amount END), 0)
		FROM payments WHERE order_id = $1 AND status = 'SETTLEMENT'`
	var n pgtype.Numeric
	err := q.db.QueryRow(ctx, query, orderID).Scan(&n)
	return n, err
}

// --- Payment adjustments ---

const adjustmentColumns = `id, order_id, revision_id, payment_id, direction, amount, status, created_at`

func scanAdjustment(row interface{ Scan(dest ...any) error }) (PaymentAdjustment, error) {
	var a PaymentAdjustment
	err := row.Scan(
		&a.ID, &a.OrderID, &a.RevisionID, &a.PaymentID, &a.Direction, &a.Amount, &a.Status, &a.CreatedAt,
	)
	return a, err
}

func (q *Queries) GetPaymentAdjustment(ctx context.Context, id uuid.UUID) (PaymentAdjustment, error) {
	const query = `SELECT ` + adjustmentColumns + ` FROM payment_adjustments WHERE id = $1`
	return scanAdjustment(q.db.QueryRow(ctx, query, id))
}

func (q *Queries) ListPaymentAdjustmentsByOrder(ctx context.Context, orderID uuid.UUID) ([]PaymentAdjustment, error) {
	const query = `SELECT ` + adjustmentColumns + ` FROM payment_adjustments WHERE order_id = $1 ORDER BY created_at, id`
	rows, err := q.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var adjustments []PaymentAdjustment
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

func (q *Queries) ListPaymentAdjustmentsByPayment(ctx context.Context, paymentID uuid.UUID) ([]PaymentAdjustment, error) {
	const query = `SELECT ` + adjustmentColumns + ` FROM payment_adjustments WHERE payment_id = $1 ORDER BY created_at, id`
	rows, err := q.db.Query(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var adjustments []PaymentAdjustment
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

type CreatePaymentAdjustmentParams struct {
	OrderID    uuid.UUID
	RevisionID uuid.UUID
	PaymentID  uuid.UUID
	Direction  enum.PaymentDirection
	Amount     pgtype.Numeric
	Status     enum.PaymentStatus
}

func (q *Queries) CreatePaymentAdjustment(ctx context.Context, arg CreatePaymentAdjustmentParams) (PaymentAdjustment, error) {
	const query = `INSERT INTO payment_adjustments (
		order_id, revision_id, payment_id, direction, amount, status
	) VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING ` + adjustmentColumns
	return scanAdjustment(q.db.QueryRow(ctx, query,
		arg.OrderID, arg.RevisionID, arg.PaymentID, arg.Direction, arg.Amount, arg.Status,
	))
}

type UpdatePaymentAdjustmentStatusParams struct {
	ID     uuid.UUID
	Status enum.PaymentStatus
}

func (q *Queries) UpdatePaymentAdjustmentStatus(ctx context.Context, arg UpdatePaymentAdjustmentStatusParams) (PaymentAdjustment, error) {
	const query = `UPDATE payment_adjustments SET status = $2
		WHERE id = $1
		RETURNING ` + adjustmentColumns
	return scanAdjustment(q.db.QueryRow(ctx, query, arg.ID, arg.Status))
}
