package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sajian-pos/api/internal/clock"
	"github.com/sajian-pos/api/internal/database"
	"github.com/sajian-pos/api/internal/enum"
	"github.com/shopspring/decimal"
)

// maxOrderNumberRetries bounds how often order creation retries when two
// cashiers race for the same daily sequence number.
const maxOrderNumberRetries = 3

var (
	ErrEmptyOrder         = errors.New("order must have at least one line")
	ErrInvalidDiscount    = errors.New("invalid discount")
	ErrInvalidDownPayment = errors.New("down payment must be positive and below the grand total")
	ErrInvalidKitchenMove = errors.New("invalid kitchen status")
)

// OrderStore defines the DB methods order creation and kitchen updates need.
// Satisfied by *database.Queries.
type OrderStore interface {
	CatalogStore
	GetNextOrderNumber(ctx context.Context, arg database.GetNextOrderNumberParams) (int32, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderLine(ctx context.Context, arg database.CreateOrderLineParams) (database.OrderLine, error)
	CreateOrderLineModifier(ctx context.Context, arg database.CreateOrderLineModifierParams) (database.OrderLineModifier, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	TagOrderLinesPayment(ctx context.Context, arg database.TagOrderLinesPaymentParams) error
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	GetOrderLine(ctx context.Context, id uuid.UUID) (database.OrderLine, error)
	UpdateKitchenStatus(ctx context.Context, arg database.UpdateKitchenStatusParams) (database.OrderLine, error)
}

type NewOrderStore func(db database.DBTX) OrderStore

// OrderService opens orders and moves their lines through the kitchen.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
	catalog  CatalogStore
	clock    clock.Clock
}

// NewOrderService wires the order service. catalog is the read path used for
// pricing; it may be a cache in front of the same store.
func NewOrderService(pool TxBeginner, newStore NewOrderStore, catalog CatalogStore, clk clock.Clock) *OrderService {
	return &OrderService{pool: pool, newStore: newStore, catalog: catalog, clock: clk}
}

type CreateOrderLineRequest struct {
	CatalogItemID string   `json:"catalog_item_id"`
	Quantity      int32    `json:"quantity"`
	AddonIDs      []string `json:"addon_ids,omitempty"`
	ToppingIDs    []string `json:"topping_ids,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

type CreateOrderRequest struct {
	OutletID          uuid.UUID
	Lines             []CreateOrderLineRequest
	DiscountType      string
	DiscountValue     decimal.Decimal
	TaxRate           decimal.Decimal
	ServiceFeeRate    decimal.Decimal
	DownPaymentAmount decimal.Decimal
	Notes             string
	CreatedBy         uuid.UUID
}

type CreateOrderResult struct {
	Order    database.Order
	Lines    []database.OrderLine
	Payments []database.Payment
}

// CreateOrder opens an order at version 1, batch 1: prices every line, totals
// the order under the given tax and service terms, and opens either a single
// pending FULL payment or a DOWN_PAYMENT plus pending FINAL_PAYMENT pair.
//
// Order numbers are a daily per-outlet sequence. Two concurrent creations can
// read the same next sequence; the unique constraint on (outlet_id,
// order_number) rejects the loser and the whole transaction is retried with a
// fresh number.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyOrder
	}
	disc := DiscountConfig{Value: req.DiscountValue}
	if req.DiscountType != "" {
		disc.Type = enum.DiscountType(req.DiscountType)
		if !disc.Type.Valid() || req.DiscountValue.IsNegative() {
			return nil, ErrInvalidDiscount
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.createOrderTx(ctx, req, disc)
		if err == nil {
			return result, nil
		}
		if isOrderNumberConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("create order: number conflict after %d attempts: %w", maxOrderNumberRetries, lastErr)
}

// isOrderNumberConflict reports whether err is the unique violation on
// (outlet_id, order_number), i.e. another cashier claimed the same sequence
// between our MAX read and the insert.
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == "23505" &&
		pgErr.ConstraintName == "orders_outlet_id_order_number_key"
}

func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest, disc DiscountConfig) (*CreateOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	var lines []Line
	for i, lr := range req.Lines {
		if lr.Quantity <= 0 {
			return nil, fmt.Errorf("line[%d]: %w", i, ErrInvalidQuantity)
		}
		itemID, err := uuid.Parse(lr.CatalogItemID)
		if err != nil {
			return nil, fmt.Errorf("line[%d]: %w", i, ErrInvalidCatalogItemID)
		}
		addons, err := parseIDs(lr.AddonIDs)
		if err != nil {
			return nil, fmt.Errorf("line[%d]: invalid addon id: %w", i, err)
		}
		toppings, err := parseIDs(lr.ToppingIDs)
		if err != nil {
			return nil, fmt.Errorf("line[%d]: invalid topping id: %w", i, err)
		}
		priced, err := ResolvePricedLine(ctx, s.catalog, req.OutletID, itemID, addons, toppings)
		if err != nil {
			return nil, fmt.Errorf("line[%d]: %w", i, err)
		}
		lines = append(lines, Line{
			ID:            uuid.New(),
			CatalogItemID: priced.CatalogItemID,
			Name:          priced.Name,
			Quantity:      lr.Quantity,
			BasePrice:     priced.BasePrice,
			Modifiers:     priced.Modifiers,
			Subtotal:      lineSubtotal(lr.Quantity, priced.BasePrice, priced.Modifiers),
			Notes:         lr.Notes,
			BatchNumber:   1,
			KitchenStatus: enum.KitchenStatusPending,
		})
	}

	totals := computeTotals(lines, disc, Rates{Tax: req.TaxRate, Service: req.ServiceFeeRate})

	if !req.DownPaymentAmount.IsZero() {
		if req.DownPaymentAmount.IsNegative() || req.DownPaymentAmount.GreaterThanOrEqual(totals.Grand) {
			return nil, ErrInvalidDownPayment
		}
	}

	prefix := "SJN-" + s.clock.Now().Format("20060102")
	seq, err := store.GetNextOrderNumber(ctx, database.GetNextOrderNumberParams{
		OutletID: req.OutletID,
		Prefix:   prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("next order number: %w", err)
	}

	var discType pgtype.Text
	var discValue pgtype.Numeric
	if disc.Type != "" {
		discType = pgtype.Text{String: string(disc.Type), Valid: true}
		discValue = decimalToNumeric(disc.Value)
	}
	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OutletID:            req.OutletID,
		OrderNumber:         fmt.Sprintf("%s-%03d", prefix, seq),
		Status:              enum.OrderStatusOpen,
		DiscountType:        discType,
		DiscountValue:       discValue,
		DiscountAmount:      decimalToNumeric(totals.BeforeDiscount.Sub(totals.AfterDiscount)),
		TotalBeforeDiscount: decimalToNumeric(totals.BeforeDiscount),
		TotalAfterDiscount:  decimalToNumeric(totals.AfterDiscount),
		TaxAmount:           decimalToNumeric(totals.Tax),
		ServiceFeeAmount:    decimalToNumeric(totals.ServiceFee),
		GrandTotal:          decimalToNumeric(totals.Grand),
		Notes:               textOrNull(req.Notes),
		CreatedBy:           req.CreatedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	result := &CreateOrderResult{Order: order}
	lineIDs := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		row, err := store.CreateOrderLine(ctx, database.CreateOrderLineParams{
			ID:            l.ID,
			OrderID:       order.ID,
			CatalogItemID: l.CatalogItemID,
			Name:          l.Name,
			Quantity:      l.Quantity,
			BasePrice:     decimalToNumeric(l.BasePrice),
			Subtotal:      decimalToNumeric(l.Subtotal),
			Notes:         textOrNull(l.Notes),
			BatchNumber:   l.BatchNumber,
			KitchenStatus: l.KitchenStatus,
		})
		if err != nil {
			return nil, fmt.Errorf("create line: %w", err)
		}
		for _, m := range l.Modifiers {
			if _, err := store.CreateOrderLineModifier(ctx, database.CreateOrderLineModifierParams{
				LineID: l.ID,
				Kind:   m.Kind,
				Name:   m.Name,
				Price:  decimalToNumeric(m.Price),
			}); err != nil {
				return nil, fmt.Errorf("create line modifier: %w", err)
			}
		}
		result.Lines = append(result.Lines, row)
		lineIDs = append(lineIDs, l.ID)
	}

	if req.DownPaymentAmount.IsPositive() {
		dp, err := store.CreatePayment(ctx, database.CreatePaymentParams{
			OrderID:     order.ID,
			Method:      enum.PaymentMethodCash,
			Status:      enum.PaymentStatusPending,
			Amount:      decimalToNumeric(roundMoney(req.DownPaymentAmount)),
			PaymentType: enum.PaymentTypeDownPayment,
			ProcessedBy: req.CreatedBy,
		})
		if err != nil {
			return nil, fmt.Errorf("create down payment: %w", err)
		}
		final, err := store.CreatePayment(ctx, database.CreatePaymentParams{
			OrderID:          order.ID,
			Method:           enum.PaymentMethodCash,
			Status:           enum.PaymentStatusPending,
			Amount:           decimalToNumeric(totals.Grand.Sub(roundMoney(req.DownPaymentAmount))),
			PaymentType:      enum.PaymentTypeFinalPayment,
			RelatedPaymentID: pgtype.UUID{Bytes: dp.ID, Valid: true},
			ProcessedBy:      req.CreatedBy,
		})
		if err != nil {
			return nil, fmt.Errorf("create final payment: %w", err)
		}
		result.Payments = append(result.Payments, dp, final)
		if err := store.TagOrderLinesPayment(ctx, database.TagOrderLinesPaymentParams{
			LineIDs:   lineIDs,
			PaymentID: final.ID,
		}); err != nil {
			return nil, fmt.Errorf("tag lines: %w", err)
		}
	} else {
		full, err := store.CreatePayment(ctx, database.CreatePaymentParams{
			OrderID:     order.ID,
			Method:      enum.PaymentMethodCash,
			Status:      enum.PaymentStatusPending,
			Amount:      decimalToNumeric(totals.Grand),
			PaymentType: enum.PaymentTypeFull,
			ProcessedBy: req.CreatedBy,
		})
		if err != nil {
			return nil, fmt.Errorf("create payment: %w", err)
		}
		result.Payments = append(result.Payments, full)
		if err := store.TagOrderLinesPayment(ctx, database.TagOrderLinesPaymentParams{
			LineIDs:   lineIDs,
			PaymentID: full.ID,
		}); err != nil {
			return nil, fmt.Errorf("tag lines: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

type UpdateKitchenStatusRequest struct {
	OutletID uuid.UUID
	OrderID  uuid.UUID
	LineID   uuid.UUID
	Status   enum.KitchenStatus
}

// kitchenOrder fixes the forward direction of the kitchen lifecycle.
var kitchenOrder = map[enum.KitchenStatus]int{
	enum.KitchenStatusPending: 0,
	enum.KitchenStatusPrinted: 1,
	enum.KitchenStatusCooking: 2,
	enum.KitchenStatusReady:   3,
	enum.KitchenStatusServed:  4,
}

// UpdateKitchenStatus moves one line forward through the kitchen lifecycle.
// Moving backward is rejected; a commissary that started cooking does not
// un-cook.
func (s *OrderService) UpdateKitchenStatus(ctx context.Context, req UpdateKitchenStatusRequest) (database.OrderLine, error) {
	if !req.Status.Valid() {
		return database.OrderLine{}, fmt.Errorf("%w: %q", ErrInvalidKitchenMove, req.Status)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.OrderLine{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if _, err := store.GetOrder(ctx, database.GetOrderParams{ID: req.OrderID, OutletID: req.OutletID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.OrderLine{}, ErrOrderNotFound
		}
		return database.OrderLine{}, fmt.Errorf("get order: %w", err)
	}

	current, err := store.GetOrderLine(ctx, req.LineID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.OrderLine{}, ErrItemNotFound
		}
		return database.OrderLine{}, fmt.Errorf("get line: %w", err)
	}
	if current.OrderID != req.OrderID {
		return database.OrderLine{}, ErrItemNotFound
	}
	if kitchenOrder[req.Status] < kitchenOrder[current.KitchenStatus] {
		return database.OrderLine{}, fmt.Errorf("%w: %s cannot move back to %s",
			ErrInvalidKitchenMove, current.KitchenStatus, req.Status)
	}

	line, err := store.UpdateKitchenStatus(ctx, database.UpdateKitchenStatusParams{
		ID:            req.LineID,
		OrderID:       req.OrderID,
		KitchenStatus: req.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.OrderLine{}, ErrItemNotFound
		}
		return database.OrderLine{}, fmt.Errorf("update kitchen status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.OrderLine{}, fmt.Errorf("commit tx: %w", err)
	}
	return line, nil
}
