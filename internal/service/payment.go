package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sajian-pos/api/internal/clock"
	"github.com/sajian-pos/api/internal/database"
	"github.com/sajian-pos/api/internal/enum"
)

var (
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrPaymentNotPending     = errors.New("payment is not pending")
	ErrAdjustmentNotFound    = errors.New("payment adjustment not found")
	ErrAdjustmentNotPending  = errors.New("payment adjustment is not pending")
	ErrAdjustmentNotCharge   = errors.New("only charge adjustments are captured")
	ErrInvalidCaptureOutcome = errors.New("capture outcome must be SETTLEMENT or FAILED")
)

// PaymentStore defines the DB methods settlement and capture need inside
// their transactions. Satisfied by *database.Queries.
type PaymentStore interface {
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error)
	GetPayment(ctx context.Context, id uuid.UUID) (database.Payment, error)
	UpdatePaymentStatus(ctx context.Context, arg database.UpdatePaymentStatusParams) (database.Payment, error)
	CapturePayment(ctx context.Context, arg database.CapturePaymentParams) (database.Payment, error)
	GetPaymentAdjustment(ctx context.Context, id uuid.UUID) (database.PaymentAdjustment, error)
	ListPaymentAdjustmentsByPayment(ctx context.Context, paymentID uuid.UUID) ([]database.PaymentAdjustment, error)
	UpdatePaymentAdjustmentStatus(ctx context.Context, arg database.UpdatePaymentAdjustmentStatusParams) (database.PaymentAdjustment, error)
	SumSettledPaymentsByOrder(ctx context.Context, orderID uuid.UUID) (pgtype.Numeric, error)
	CompleteOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
}

type NewPaymentStore func(db database.DBTX) PaymentStore

// PaymentService moves payments and their adjustments through the
// PENDING -> SETTLEMENT/FAILED state machine and completes orders once the
// settled total covers the grand total.
type PaymentService struct {
	pool     TxBeginner
	newStore NewPaymentStore
	clock    clock.Clock
}

func NewPaymentService(pool TxBeginner, newStore NewPaymentStore, clk clock.Clock) *PaymentService {
	return &PaymentService{pool: pool, newStore: newStore, clock: clk}
}

type SettlePaymentRequest struct {
	OutletID  uuid.UUID
	OrderID   uuid.UUID
	PaymentID uuid.UUID
}

// SettlementResult reports the payment's new state and whether the settlement
// tipped the order into COMPLETED.
type SettlementResult struct {
	Payment        database.Payment
	OrderCompleted bool
}

// SettlePayment marks a pending payment collected. Any pending adjustments
// that were waiting on this payment settle with it.
func (s *PaymentService) SettlePayment(ctx context.Context, req SettlePaymentRequest) (*SettlementResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// Lock order first; every writer that touches both tables takes the
	// order lock before the payment row.
	order, err := store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{ID: req.OrderID, OutletID: req.OutletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	payment, err := store.GetPayment(ctx, req.PaymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if payment.OrderID != order.ID {
		return nil, ErrPaymentNotFound
	}
	if payment.Status != enum.PaymentStatusPending {
		return nil, fmt.Errorf("%w: payment %s is %s", ErrPaymentNotPending, payment.ID, payment.Status)
	}

	now := s.clock.Now()
	payment, err = store.UpdatePaymentStatus(ctx, database.UpdatePaymentStatusParams{
		ID:     payment.ID,
		Status: enum.PaymentStatusSettlement,
		PaidAt: pgtype.Timestamptz{Time: now, Valid: true},
	})
	if err != nil {
		return nil, fmt.Errorf("settle payment: %w", err)
	}

	if err := s.settleLinkedAdjustments(ctx, store, payment.ID); err != nil {
		return nil, err
	}

	completed, err := s.maybeCompleteOrder(ctx, store, order)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &SettlementResult{Payment: payment, OrderCompleted: completed}, nil
}

type CaptureAdjustmentRequest struct {
	OutletID        uuid.UUID
	OrderID         uuid.UUID
	AdjustmentID    uuid.UUID
	Outcome         enum.PaymentStatus
	Method          enum.PaymentMethod
	ReferenceNumber string
}

type CaptureResult struct {
	Adjustment     database.PaymentAdjustment
	Payment        database.Payment
	OrderCompleted bool
}

// CaptureAdjustment records the gateway outcome of a pending charge
// adjustment. The adjustment and its payment move together: SETTLEMENT means
// the extra amount was collected, FAILED means collection has to be retried
// out of band. Refund adjustments are born settled and never pass through
// here.
func (s *PaymentService) CaptureAdjustment(ctx context.Context, req CaptureAdjustmentRequest) (*CaptureResult, error) {
	if req.Outcome != enum.PaymentStatusSettlement && req.Outcome != enum.PaymentStatusFailed {
		return nil, ErrInvalidCaptureOutcome
	}
	if !req.Method.Valid() {
		return nil, fmt.Errorf("invalid payment method %q", req.Method)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{ID: req.OrderID, OutletID: req.OutletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	adj, err := store.GetPaymentAdjustment(ctx, req.AdjustmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAdjustmentNotFound
		}
		return nil, fmt.Errorf("get adjustment: %w", err)
	}
	if adj.OrderID != order.ID {
		return nil, ErrAdjustmentNotFound
	}
	if adj.Direction != enum.DirectionCharge {
		return nil, ErrAdjustmentNotCharge
	}
	if adj.Status != enum.PaymentStatusPending {
		return nil, fmt.Errorf("%w: adjustment %s is %s", ErrAdjustmentNotPending, adj.ID, adj.Status)
	}

	var paidAt pgtype.Timestamptz
	if req.Outcome == enum.PaymentStatusSettlement {
		paidAt = pgtype.Timestamptz{Time: s.clock.Now(), Valid: true}
	}
	payment, err := store.CapturePayment(ctx, database.CapturePaymentParams{
		ID:              adj.PaymentID,
		Status:          req.Outcome,
		Method:          req.Method,
		ReferenceNumber: textOrNull(req.ReferenceNumber),
		PaidAt:          paidAt,
	})
	if err != nil {
		return nil, fmt.Errorf("capture payment: %w", err)
	}
	adj, err = store.UpdatePaymentAdjustmentStatus(ctx, database.UpdatePaymentAdjustmentStatusParams{
		ID:     adj.ID,
		Status: req.Outcome,
	})
	if err != nil {
		return nil, fmt.Errorf("update adjustment: %w", err)
	}

	completed := false
	if req.Outcome == enum.PaymentStatusSettlement {
		completed, err = s.maybeCompleteOrder(ctx, store, order)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &CaptureResult{Adjustment: adj, Payment: payment, OrderCompleted: completed}, nil
}

func (s *PaymentService) settleLinkedAdjustments(ctx context.Context, store PaymentStore, paymentID uuid.UUID) error {
	adjs, err := store.ListPaymentAdjustmentsByPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("list adjustments: %w", err)
	}
	for _, a := range adjs {
		if a.Status != enum.PaymentStatusPending {
			continue
		}
		if _, err := store.UpdatePaymentAdjustmentStatus(ctx, database.UpdatePaymentAdjustmentStatusParams{
			ID:     a.ID,
			Status: enum.PaymentStatusSettlement,
		}); err != nil {
			return fmt.Errorf("settle adjustment: %w", err)
		}
	}
	return nil
}

// maybeCompleteOrder closes an open order once its settled net (collections
// minus refunds) covers the grand total.
func (s *PaymentService) maybeCompleteOrder(ctx context.Context, store PaymentStore, order database.Order) (bool, error) {
	if order.Status != enum.OrderStatusOpen {
		return false, nil
	}
	sum, err := store.SumSettledPaymentsByOrder(ctx, order.ID)
	if err != nil {
		return false, fmt.Errorf("sum settled payments: %w", err)
	}
	if numericToDecimal(sum).LessThan(numericToDecimal(order.GrandTotal)) {
		return false, nil
	}
	if _, err := store.CompleteOrder(ctx, order.ID); err != nil {
		return false, fmt.Errorf("complete order: %w", err)
	}
	return true, nil
}
