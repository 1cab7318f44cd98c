package service

import (
	"context"
	"encoding/json"
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

// Errors returned by the revision engine.
var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderCancelled       = errors.New("order is cancelled")
	ErrItemNotFound         = errors.New("order line not found")
	ErrItemAlreadyCommitted = errors.New("kitchen already committed to this line")
	ErrOrderVersionMismatch = errors.New("order version mismatch")
	ErrInvalidOperation     = errors.New("invalid operation kind")
	ErrEmptyOperations      = errors.New("operations are required")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrQuantityMismatch     = errors.New("from_qty does not match the line's current quantity")
	ErrInvalidLineID        = errors.New("invalid line_id")
	ErrInvalidCatalogItemID = errors.New("invalid catalog_item_id")
	ErrInvalidReason        = errors.New("invalid reason_code")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RevisionStore defines the DB methods a revision needs inside its
// transaction. Satisfied by *database.Queries.
type RevisionStore interface {
	CatalogStore
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderForUpdateParams) (database.Order, error)
	ListOrderLinesByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderLine, error)
	ListOrderLineModifiersByLine(ctx context.Context, lineID uuid.UUID) ([]database.OrderLineModifier, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
	CreateOrderLine(ctx context.Context, arg database.CreateOrderLineParams) (database.OrderLine, error)
	CreateOrderLineModifier(ctx context.Context, arg database.CreateOrderLineModifierParams) (database.OrderLineModifier, error)
	ReplaceOrderLine(ctx context.Context, arg database.ReplaceOrderLineParams) error
	DeleteOrderLine(ctx context.Context, id uuid.UUID) error
	DeleteOrderLineModifiers(ctx context.Context, lineID uuid.UUID) error
	TagOrderLinesPayment(ctx context.Context, arg database.TagOrderLinesPaymentParams) error
	UpdateOrderRevision(ctx context.Context, arg database.UpdateOrderRevisionParams) (int64, error)
	CreateRevision(ctx context.Context, arg database.CreateRevisionParams) (database.OrderRevision, error)
	GetRevisionByIdempotencyKey(ctx context.Context, arg database.GetRevisionByIdempotencyKeyParams) (database.OrderRevision, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	UpdatePendingPaymentAmount(ctx context.Context, arg database.UpdatePendingPaymentAmountParams) (database.Payment, error)
	CreatePaymentAdjustment(ctx context.Context, arg database.CreatePaymentAdjustmentParams) (database.PaymentAdjustment, error)
}

// NewRevisionStore creates a RevisionStore from a DBTX (pool or tx).
type NewRevisionStore func(db database.DBTX) RevisionStore

// Line is the in-memory working representation of one order line. All mutation
// during a revision happens on copies of these; nothing touches the database
// until every operation has been validated.
type Line struct {
	ID            uuid.UUID
	CatalogItemID uuid.UUID
	Name          string
	Quantity      int32
	BasePrice     decimal.Decimal
	Modifiers     []LineModifier
	Subtotal      decimal.Decimal
	Notes         string
	BatchNumber   int32
	KitchenStatus enum.KitchenStatus
}

// Operation is one submitted edit. After the engine applies it, PriceDelta
// holds the realized subtotal change and the operation batch is persisted on
// the revision ledger entry as its audit record.
type Operation struct {
	Kind          enum.OperationKind `json:"kind"`
	LineID        string             `json:"line_id,omitempty"`
	CatalogItemID string             `json:"catalog_item_id,omitempty"`
	Quantity      int32              `json:"quantity,omitempty"`
	FromQty       int32              `json:"from_qty,omitempty"`
	ToQty         int32              `json:"to_qty,omitempty"`
	AddonIDs      []string           `json:"addon_ids,omitempty"`
	ToppingIDs    []string           `json:"topping_ids,omitempty"`
	Notes         string             `json:"notes,omitempty"`
	PriceDelta    decimal.Decimal    `json:"price_delta"`
}

// SubmitRevisionRequest is the validated input for one atomic edit.
type SubmitRevisionRequest struct {
	OrderID        uuid.UUID
	OutletID       uuid.UUID
	BaseVersion    int32
	Operations     []Operation
	ReasonCode     string
	ReasonNote     string
	CreatedBy      uuid.UUID
	ApprovedBy     string
	IdempotencyKey string
}

// RevisionDiff is the before/after comparison of the order's line list.
type RevisionDiff struct {
	Added   []Line
	Removed []Line
	Updated []Line
}

// RevisionResult is the complete outcome of an accepted revision.
type RevisionResult struct {
	Revision database.OrderRevision
	Order    database.Order
	Diff     RevisionDiff
	Effects  AllocationEffects
	Replayed bool
}

// RevisionService applies audited edits to live orders.
type RevisionService struct {
	pool     TxBeginner
	newStore NewRevisionStore
	clock    clock.Clock
}

func NewRevisionService(pool TxBeginner, newStore NewRevisionStore, clk clock.Clock) *RevisionService {
	return &RevisionService{pool: pool, newStore: newStore, clock: clk}
}

// SubmitRevision runs one atomic order edit: guards, repricing, totals, diff,
// payment allocation, and the ledger write all commit together or not at all.
// A request replaying a known idempotency key returns the original revision
// without touching anything.
func (s *RevisionService) SubmitRevision(ctx context.Context, req SubmitRevisionRequest) (*RevisionResult, error) {
	if len(req.Operations) == 0 {
		return nil, ErrEmptyOperations
	}
	if !enum.ReasonCode(req.ReasonCode).Valid() {
		return nil, ErrInvalidReason
	}
	var approvedBy pgtype.UUID
	if req.ApprovedBy != "" {
		id, err := uuid.Parse(req.ApprovedBy)
		if err != nil {
			return nil, fmt.Errorf("invalid approved_by: %w", err)
		}
		approvedBy = pgtype.UUID{Bytes: id, Valid: true}
	}

	result, err := s.submitTx(ctx, req, approvedBy)
	if err == nil {
		return result, nil
	}
	// A concurrent request with the same idempotency key won the insert race.
	// Its revision is the committed truth; return it.
	if req.IdempotencyKey != "" && isIdempotencyConflict(err) {
		return s.replay(ctx, req)
	}
	return nil, err
}

func isIdempotencyConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "order_revisions_order_id_idempotency_key_key"
	}
	return false
}

func (s *RevisionService) replay(ctx context.Context, req SubmitRevisionRequest) (*RevisionResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	rev, err := store.GetRevisionByIdempotencyKey(ctx, database.GetRevisionByIdempotencyKeyParams{
		OrderID:        req.OrderID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("replay revision: %w", err)
	}
	order, err := store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{ID: req.OrderID, OutletID: req.OutletID})
	if err != nil {
		return nil, fmt.Errorf("replay order: %w", err)
	}
	return &RevisionResult{Revision: rev, Order: order, Replayed: true}, nil
}

func (s *RevisionService) submitTx(ctx context.Context, req SubmitRevisionRequest, approvedBy pgtype.UUID) (*RevisionResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// Idempotency short-circuit: a committed revision with this key is the
	// answer, no matter what the rest of the request says.
	if req.IdempotencyKey != "" {
		rev, err := store.GetRevisionByIdempotencyKey(ctx, database.GetRevisionByIdempotencyKeyParams{
			OrderID:        req.OrderID,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err == nil {
			order, err := store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{ID: req.OrderID, OutletID: req.OutletID})
			if err != nil {
				return nil, fmt.Errorf("get order: %w", err)
			}
			return &RevisionResult{Revision: rev, Order: order, Replayed: true}, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	order, err := store.GetOrderForUpdate(ctx, database.GetOrderForUpdateParams{ID: req.OrderID, OutletID: req.OutletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.Status == enum.OrderStatusCancelled {
		return nil, ErrOrderCancelled
	}
	if order.Version != req.BaseVersion {
		return nil, fmt.Errorf("%w: order is at version %d, revision built from %d",
			ErrOrderVersionMismatch, order.Version, req.BaseVersion)
	}

	before, err := s.loadLines(ctx, store, order.ID)
	if err != nil {
		return nil, err
	}
	payments, err := store.ListPaymentsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	// Apply every operation to a working copy. Nothing is written until the
	// whole batch validates.
	working := cloneLines(before)
	ops := make([]Operation, len(req.Operations))
	copy(ops, req.Operations)

	nextBatch := order.CurrentBatch + 1
	batchUsed := false
	itemDelta := decimal.Zero
	for i := range ops {
		delta, usedBatch, err := s.applyOperation(ctx, store, order.OutletID, &working, &ops[i], nextBatch)
		if err != nil {
			return nil, fmt.Errorf("operation[%d]: %w", i, err)
		}
		ops[i].PriceDelta = delta
		itemDelta = itemDelta.Add(delta)
		batchUsed = batchUsed || usedBatch
	}

	oldBefore := numericToDecimal(order.TotalBeforeDiscount)
	oldGrand := numericToDecimal(order.GrandTotal)
	rates := impliedRates(oldBefore, numericToDecimal(order.TaxAmount), numericToDecimal(order.ServiceFeeAmount))
	totals := computeTotals(working, DiscountConfig{
		Type:  enum.DiscountType(order.DiscountType.String),
		Value: numericToDecimal(order.DiscountValue),
	}, rates)

	// The per-operation deltas and the recomputed totals are two independent
	// derivations of the same item-level change. Disagreement means the
	// engine, not the caller, is broken.
	if !itemDelta.Equal(totals.BeforeDiscount.Sub(oldBefore)) {
		return nil, fmt.Errorf("internal: operation deltas sum to %s but totals moved by %s",
			itemDelta, totals.BeforeDiscount.Sub(oldBefore))
	}
	grandDelta := totals.Grand.Sub(oldGrand)

	currentBatch := order.CurrentBatch
	if batchUsed {
		currentBatch = nextBatch
	}

	// Conditional write: the version check is the optimistic lock.
	affected, err := store.UpdateOrderRevision(ctx, database.UpdateOrderRevisionParams{
		ID:                  order.ID,
		VersionFrom:         order.Version,
		CurrentBatch:        currentBatch,
		DiscountAmount:      decimalToNumeric(totals.BeforeDiscount.Sub(totals.AfterDiscount)),
		TotalBeforeDiscount: decimalToNumeric(totals.BeforeDiscount),
		TotalAfterDiscount:  decimalToNumeric(totals.AfterDiscount),
		TaxAmount:           decimalToNumeric(totals.Tax),
		ServiceFeeAmount:    decimalToNumeric(totals.ServiceFee),
		GrandTotal:          decimalToNumeric(totals.Grand),
	})
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	if affected == 0 {
		return nil, ErrOrderVersionMismatch
	}

	opsJSON, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("marshal operations: %w", err)
	}
	revision, err := store.CreateRevision(ctx, database.CreateRevisionParams{
		OrderID:        order.ID,
		VersionFrom:    order.Version,
		VersionTo:      order.Version + 1,
		ReasonCode:     enum.ReasonCode(req.ReasonCode),
		ReasonNote:     textOrNull(req.ReasonNote),
		CreatedBy:      req.CreatedBy,
		ApprovedBy:     approvedBy,
		DeltaAmount:    decimalToNumeric(grandDelta),
		Operations:     opsJSON,
		IdempotencyKey: textOrNull(req.IdempotencyKey),
	})
	if err != nil {
		return nil, fmt.Errorf("create revision: %w", err)
	}

	diff := diffLines(before, working)
	if err := s.writeLineChanges(ctx, store, order.ID, diff); err != nil {
		return nil, err
	}

	effects, err := s.applyAllocation(ctx, store, order, revision, grandDelta, payments, diff, req.CreatedBy)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	updated := order
	updated.Version = order.Version + 1
	updated.CurrentBatch = currentBatch
	updated.DiscountAmount = decimalToNumeric(totals.BeforeDiscount.Sub(totals.AfterDiscount))
	updated.TotalBeforeDiscount = decimalToNumeric(totals.BeforeDiscount)
	updated.TotalAfterDiscount = decimalToNumeric(totals.AfterDiscount)
	updated.TaxAmount = decimalToNumeric(totals.Tax)
	updated.ServiceFeeAmount = decimalToNumeric(totals.ServiceFee)
	updated.GrandTotal = decimalToNumeric(totals.Grand)

	return &RevisionResult{
		Revision: revision,
		Order:    updated,
		Diff:     diff,
		Effects:  effects,
	}, nil
}

// applyOperation mutates the working line list for one operation and returns
// its realized price delta. usedBatch reports that the operation placed a line
// into the revision's kitchen batch.
func (s *RevisionService) applyOperation(ctx context.Context, store RevisionStore, outletID uuid.UUID, working *[]Line, op *Operation, nextBatch int32) (decimal.Decimal, bool, error) {
	switch op.Kind {
	case enum.OpAdd:
		if op.Quantity <= 0 {
			return decimal.Zero, false, ErrInvalidQuantity
		}
		itemID, err := uuid.Parse(op.CatalogItemID)
		if err != nil {
			return decimal.Zero, false, ErrInvalidCatalogItemID
		}
		priced, err := s.resolve(ctx, store, outletID, itemID, op.AddonIDs, op.ToppingIDs)
		if err != nil {
			return decimal.Zero, false, err
		}
		line := Line{
			ID:            uuid.New(),
			CatalogItemID: priced.CatalogItemID,
			Name:          priced.Name,
			Quantity:      op.Quantity,
			BasePrice:     priced.BasePrice,
			Modifiers:     priced.Modifiers,
			Subtotal:      lineSubtotal(op.Quantity, priced.BasePrice, priced.Modifiers),
			Notes:         op.Notes,
			BatchNumber:   nextBatch,
			KitchenStatus: enum.KitchenStatusPending,
		}
		*working = append(*working, line)
		return line.Subtotal, true, nil

	case enum.OpUpdateQty:
		idx, err := findLine(*working, op.LineID)
		if err != nil {
			return decimal.Zero, false, err
		}
		line := &(*working)[idx]
		if line.KitchenStatus.Committed() {
			return decimal.Zero, false, fmt.Errorf("%w: line %s is %s", ErrItemAlreadyCommitted, line.ID, line.KitchenStatus)
		}
		if op.ToQty <= 0 {
			return decimal.Zero, false, ErrInvalidQuantity
		}
		if op.FromQty != line.Quantity {
			return decimal.Zero, false, fmt.Errorf("%w: line %s has quantity %d", ErrQuantityMismatch, line.ID, line.Quantity)
		}
		// Unit price is derived from the stored subtotal, not re-resolved
		// from the catalog: the line keeps whatever rounding it was
		// originally priced with.
		unit := line.Subtotal.Div(decimal.NewFromInt32(op.FromQty))
		delta := roundMoney(unit.Mul(decimal.NewFromInt32(op.ToQty - op.FromQty)))
		line.Quantity = op.ToQty
		line.Subtotal = line.Subtotal.Add(delta)
		return delta, false, nil

	case enum.OpRemove:
		idx, err := findLine(*working, op.LineID)
		if err != nil {
			return decimal.Zero, false, err
		}
		line := (*working)[idx]
		if line.KitchenStatus.Committed() {
			return decimal.Zero, false, fmt.Errorf("%w: line %s is %s", ErrItemAlreadyCommitted, line.ID, line.KitchenStatus)
		}
		*working = append((*working)[:idx], (*working)[idx+1:]...)
		return line.Subtotal.Neg(), false, nil

	case enum.OpSubstitute:
		idx, err := findLine(*working, op.LineID)
		if err != nil {
			return decimal.Zero, false, err
		}
		line := &(*working)[idx]
		itemID, err := uuid.Parse(op.CatalogItemID)
		if err != nil {
			return decimal.Zero, false, ErrInvalidCatalogItemID
		}
		priced, err := s.resolve(ctx, store, outletID, itemID, op.AddonIDs, op.ToppingIDs)
		if err != nil {
			return decimal.Zero, false, err
		}
		// Quantity survives the swap; the replacement re-enters the kitchen.
		oldSubtotal := line.Subtotal
		line.CatalogItemID = priced.CatalogItemID
		line.Name = priced.Name
		line.BasePrice = priced.BasePrice
		line.Modifiers = priced.Modifiers
		line.Subtotal = lineSubtotal(line.Quantity, priced.BasePrice, priced.Modifiers)
		line.KitchenStatus = enum.KitchenStatusPending
		line.BatchNumber = nextBatch
		return line.Subtotal.Sub(oldSubtotal), true, nil
	}

	return decimal.Zero, false, fmt.Errorf("%w: %q", ErrInvalidOperation, op.Kind)
}

func (s *RevisionService) resolve(ctx context.Context, store RevisionStore, outletID, itemID uuid.UUID, addonIDs, toppingIDs []string) (PricedLine, error) {
	addons, err := parseIDs(addonIDs)
	if err != nil {
		return PricedLine{}, fmt.Errorf("invalid addon id: %w", err)
	}
	toppings, err := parseIDs(toppingIDs)
	if err != nil {
		return PricedLine{}, fmt.Errorf("invalid topping id: %w", err)
	}
	return ResolvePricedLine(ctx, store, outletID, itemID, addons, toppings)
}

func parseIDs(in []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(in))
	for _, s := range in {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func findLine(lines []Line, lineID string) (int, error) {
	id, err := uuid.Parse(lineID)
	if err != nil {
		return 0, ErrInvalidLineID
	}
	for i := range lines {
		if lines[i].ID == id {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrItemNotFound, id)
}

func (s *RevisionService) loadLines(ctx context.Context, store RevisionStore, orderID uuid.UUID) ([]Line, error) {
	rows, err := store.ListOrderLinesByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order lines: %w", err)
	}
	lines := make([]Line, 0, len(rows))
	for _, r := range rows {
		mods, err := store.ListOrderLineModifiersByLine(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("list line modifiers: %w", err)
		}
		line := Line{
			ID:            r.ID,
			CatalogItemID: r.CatalogItemID,
			Name:          r.Name,
			Quantity:      r.Quantity,
			BasePrice:     numericToDecimal(r.BasePrice),
			Subtotal:      numericToDecimal(r.Subtotal),
			Notes:         r.Notes.String,
			BatchNumber:   r.BatchNumber,
			KitchenStatus: r.KitchenStatus,
		}
		for _, m := range mods {
			line.Modifiers = append(line.Modifiers, LineModifier{
				Kind:  m.Kind,
				Name:  m.Name,
				Price: numericToDecimal(m.Price),
			})
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func cloneLines(lines []Line) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	for i := range out {
		mods := make([]LineModifier, len(out[i].Modifiers))
		copy(mods, out[i].Modifiers)
		out[i].Modifiers = mods
	}
	return out
}

// writeLineChanges persists the before/after diff: inserts for added lines,
// quantity or identity rewrites for updated ones, deletes for removed ones.
func (s *RevisionService) writeLineChanges(ctx context.Context, store RevisionStore, orderID uuid.UUID, diff RevisionDiff) error {
	for _, l := range diff.Removed {
		if err := store.DeleteOrderLineModifiers(ctx, l.ID); err != nil {
			return fmt.Errorf("delete line modifiers: %w", err)
		}
		if err := store.DeleteOrderLine(ctx, l.ID); err != nil {
			return fmt.Errorf("delete line: %w", err)
		}
	}
	for _, l := range diff.Added {
		if _, err := store.CreateOrderLine(ctx, database.CreateOrderLineParams{
			ID:            l.ID,
			OrderID:       orderID,
			CatalogItemID: l.CatalogItemID,
			Name:          l.Name,
			Quantity:      l.Quantity,
			BasePrice:     decimalToNumeric(l.BasePrice),
			Subtotal:      decimalToNumeric(l.Subtotal),
			Notes:         textOrNull(l.Notes),
			BatchNumber:   l.BatchNumber,
			KitchenStatus: l.KitchenStatus,
		}); err != nil {
			return fmt.Errorf("create line: %w", err)
		}
		if err := s.insertModifiers(ctx, store, l); err != nil {
			return err
		}
	}
	for _, l := range diff.Updated {
		if err := store.ReplaceOrderLine(ctx, database.ReplaceOrderLineParams{
			ID:            l.ID,
			CatalogItemID: l.CatalogItemID,
			Name:          l.Name,
			Quantity:      l.Quantity,
			BasePrice:     decimalToNumeric(l.BasePrice),
			Subtotal:      decimalToNumeric(l.Subtotal),
			BatchNumber:   l.BatchNumber,
			KitchenStatus: l.KitchenStatus,
		}); err != nil {
			return fmt.Errorf("replace line: %w", err)
		}
		if err := store.DeleteOrderLineModifiers(ctx, l.ID); err != nil {
			return fmt.Errorf("delete line modifiers: %w", err)
		}
		if err := s.insertModifiers(ctx, store, l); err != nil {
			return err
		}
	}
	return nil
}

func (s *RevisionService) insertModifiers(ctx context.Context, store RevisionStore, l Line) error {
	for _, m := range l.Modifiers {
		if _, err := store.CreateOrderLineModifier(ctx, database.CreateOrderLineModifierParams{
			LineID: l.ID,
			Kind:   m.Kind,
			Name:   m.Name,
			Price:  decimalToNumeric(m.Price),
		}); err != nil {
			return fmt.Errorf("create line modifier: %w", err)
		}
	}
	return nil
}

// applyAllocation executes the planned payment effects inside the revision's
// transaction and mirrors each one with a PaymentAdjustment audit row.
func (s *RevisionService) applyAllocation(ctx context.Context, store RevisionStore, order database.Order, revision database.OrderRevision, grandDelta decimal.Decimal, payments []database.Payment, diff RevisionDiff, actor uuid.UUID) (AllocationEffects, error) {
	var effects AllocationEffects
	plan := planAllocation(grandDelta, payments)

	for _, adj := range plan.PendingAdjustments {
		if _, err := store.UpdatePendingPaymentAmount(ctx, database.UpdatePendingPaymentAmountParams{
			ID:     adj.PaymentID,
			Amount: decimalToNumeric(adj.NewAmount),
		}); err != nil {
			return effects, fmt.Errorf("adjust pending payment: %w", err)
		}
		if _, err := store.CreatePaymentAdjustment(ctx, database.CreatePaymentAdjustmentParams{
			OrderID:    order.ID,
			RevisionID: revision.ID,
			PaymentID:  adj.PaymentID,
			Direction:  adj.Direction,
			Amount:     decimalToNumeric(adj.AmountDelta.Abs()),
			Status:     enum.PaymentStatusPending,
		}); err != nil {
			return effects, fmt.Errorf("create payment adjustment: %w", err)
		}
		effects.PendingPaymentAdjusted = append(effects.PendingPaymentAdjusted, PendingPaymentEffect{
			PaymentID:   adj.PaymentID,
			AmountDelta: adj.AmountDelta.StringFixed(2),
		})
	}

	if np := plan.NewPending; np != nil {
		var related pgtype.UUID
		if np.HasRelated {
			related = pgtype.UUID{Bytes: np.RelatedPaymentID, Valid: true}
		}
		payment, err := store.CreatePayment(ctx, database.CreatePaymentParams{
			OrderID:          order.ID,
			Method:           enum.PaymentMethodCash,
			Status:           enum.PaymentStatusPending,
			Amount:           decimalToNumeric(np.Amount),
			PaymentType:      np.Type,
			RelatedPaymentID: related,
			RevisionID:       pgtype.UUID{Bytes: revision.ID, Valid: true},
			ProcessedBy:      actor,
		})
		if err != nil {
			return effects, fmt.Errorf("create pending payment: %w", err)
		}
		if _, err := store.CreatePaymentAdjustment(ctx, database.CreatePaymentAdjustmentParams{
			OrderID:    order.ID,
			RevisionID: revision.ID,
			PaymentID:  payment.ID,
			Direction:  enum.DirectionCharge,
			Amount:     decimalToNumeric(np.Amount),
			Status:     enum.PaymentStatusPending,
		}); err != nil {
			return effects, fmt.Errorf("create payment adjustment: %w", err)
		}
		// Only the lines this revision added are collected by the new
		// pending payment; existing lines keep their original tags.
		if len(diff.Added) > 0 {
			ids := make([]uuid.UUID, len(diff.Added))
			for i, l := range diff.Added {
				ids[i] = l.ID
			}
			if err := store.TagOrderLinesPayment(ctx, database.TagOrderLinesPaymentParams{
				LineIDs:   ids,
				PaymentID: payment.ID,
			}); err != nil {
				return effects, fmt.Errorf("tag lines: %w", err)
			}
		}
		effects.NewPendingPaymentID = &payment.ID
	}

	if rf := plan.Refund; rf != nil {
		// A refund is an instantly-settled cash-out with its own audit trail.
		now := s.clock.Now()
		payment, err := store.CreatePayment(ctx, database.CreatePaymentParams{
			OrderID:          order.ID,
			Method:           enum.PaymentMethodCash,
			Status:           enum.PaymentStatusSettlement,
			Amount:           decimalToNumeric(rf.Amount),
			PaymentType:      enum.PaymentTypeFull,
			IsAdjustment:     true,
			Direction:        pgtype.Text{String: string(enum.DirectionRefund), Valid: true},
			RelatedPaymentID: pgtype.UUID{Bytes: rf.RelatedPaymentID, Valid: true},
			RevisionID:       pgtype.UUID{Bytes: revision.ID, Valid: true},
			PaidAt:           pgtype.Timestamptz{Time: now, Valid: true},
			ProcessedBy:      actor,
		})
		if err != nil {
			return effects, fmt.Errorf("create refund payment: %w", err)
		}
		if _, err := store.CreatePaymentAdjustment(ctx, database.CreatePaymentAdjustmentParams{
			OrderID:    order.ID,
			RevisionID: revision.ID,
			PaymentID:  payment.ID,
			Direction:  enum.DirectionRefund,
			Amount:     decimalToNumeric(rf.Amount),
			Status:     enum.PaymentStatusSettlement,
		}); err != nil {
			return effects, fmt.Errorf("create refund adjustment: %w", err)
		}
		effects.RefundPaymentID = &payment.ID
	}

	return effects, nil
}
