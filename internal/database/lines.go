package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sajian-pos/api/internal/enum"
)

const lineColumns = `id, order_id, catalog_item_id, name, quantity, base_price, subtotal,
	notes, batch_number, kitchen_status, payment_id, created_at`

func scanLine(row interface{ Scan(dest ...any) error }) (OrderLine, error) {
	var l OrderLine
	err := row.Scan(
		&l.ID, &l.OrderID, &l.CatalogItemID, &l.Name, &l.Quantity, &l.BasePrice, &l.Subtotal,
		&l.Notes, &l.BatchNumber, &l.KitchenStatus, &l.PaymentID, &l.CreatedAt,
	)
	return l, err
}

func (q *Queries) GetOrderLine(ctx context.Context, id uuid.UUID) (OrderLine, error) {
	const query = `SELECT ` + lineColumns + ` FROM order_lines WHERE id = $1`
	return scanLine(q.db.QueryRow(ctx, query, id))
}

func (q *Queries) ListOrderLinesByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error) {
	const query = `SELECT ` + lineColumns + ` FROM order_lines WHERE order_id = $1 ORDER BY created_at, id`
	rows, err := q.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

type CreateOrderLineParams struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	CatalogItemID uuid.UUID
	Name          string
	Quantity      int32
	BasePrice     pgtype.Numeric
	Subtotal      pgtype.Numeric
	Notes         pgtype.Text
	BatchNumber   int32
	KitchenStatus enum.KitchenStatus
	PaymentID     pgtype.UUID
}

func (q *Queries) CreateOrderLine(ctx context.Context, arg CreateOrderLineParams) (OrderLine, error) {
	const query = `INSERT INTO order_lines (
		id, order_id, catalog_item_id, name, quantity, base_price, subtotal,
		notes, batch_number, kitchen_status, payment_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING ` + lineColumns
	return scanLine(q.db.QueryRow(ctx, query,
		arg.ID, arg.OrderID, arg.CatalogItemID, arg.Name, arg.Quantity, arg.BasePrice, arg.Subtotal,
		arg.Notes, arg.BatchNumber, arg.KitchenStatus, arg.PaymentID,
	))
}

type ReplaceOrderLineParams struct {
	ID            uuid.UUID
	CatalogItemID uuid.UUID
	Name          string
	Quantity      int32
	BasePrice     pgtype.Numeric
	Subtotal      pgtype.Numeric
	BatchNumber   int32
	KitchenStatus enum.KitchenStatus
}

// ReplaceOrderLine rewrites a line in place, keeping the line id (and
// therefore its audit trail) stable. One statement covers both substitutions
// and quantity changes.
func (q *Queries) ReplaceOrderLine(ctx context.Context, arg ReplaceOrderLineParams) error {
	const query = `UPDATE order_lines SET
		catalog_item_id = $2, name = $3, quantity = $4, base_price = $5,
		subtotal = $6, batch_number = $7, kitchen_status = $8
	WHERE id = $1`
	_, err := q.db.Exec(ctx, query,
		arg.ID, arg.CatalogItemID, arg.Name, arg.Quantity, arg.BasePrice,
		arg.Subtotal, arg.BatchNumber, arg.KitchenStatus,
	)
	return err
}

func (q *Queries) DeleteOrderLine(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM order_lines WHERE id = $1`
	_, err := q.db.Exec(ctx, query, id)
	return err
}

type UpdateKitchenStatusParams struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	KitchenStatus enum.KitchenStatus
}

func (q *Queries) UpdateKitchenStatus(ctx context.Context, arg UpdateKitchenStatusParams) (OrderLine, error) {
	const query = `UPDATE order_lines SET kitchen_status = $3
		WHERE id = $1 AND order_id = $2
		RETURNING ` + lineColumns
	return scanLine(q.db.QueryRow(ctx, query, arg.ID, arg.OrderID, arg.KitchenStatus))
}

type TagOrderLinesPaymentParams struct {
	LineIDs   []uuid.UUID
	PaymentID uuid.UUID
}

// TagOrderLinesPayment stamps newly added lines with the pending payment that
// was created to collect for them. Existing lines are never re-tagged.
func (q *Queries) TagOrderLinesPayment(ctx context.Context, arg TagOrderLinesPaymentParams) error {
	const query = `UPDATE order_lines SET payment_id = $2 WHERE id = ANY($1)`
	_, err := q.db.Exec(ctx, query, arg.LineIDs, arg.PaymentID)
	return err
}

// --- Line modifiers ---

func (q *Queries) ListOrderLineModifiersByLine(ctx context.Context, lineID uuid.UUID) ([]OrderLineModifier, error) {
	const query = `SELECT id, line_id, kind, name, price FROM order_line_modifiers WHERE line_id = $1 ORDER BY kind, name`
	rows, err := q.db.Query(ctx, query, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mods []OrderLineModifier
	for rows.Next() {
		var m OrderLineModifier
		if err := rows.Scan(&m.ID, &m.LineID, &m.Kind, &m.Name, &m.Price); err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, rows.Err()
}

type CreateOrderLineModifierParams struct {
	LineID uuid.UUID
	Kind   enum.ModifierKind
	Name   string
	Price  pgtype.Numeric
}

func (q *Queries) CreateOrderLineModifier(ctx context.Context, arg CreateOrderLineModifierParams) (OrderLineModifier, error) {
	const query = `INSERT INTO order_line_modifiers (line_id, kind, name, price)
		VALUES ($1, $2, $3, $4)
		RETURNING id, line_id, kind, name, price`
	var m OrderLineModifier
	err := q.db.QueryRow(ctx, query, arg.LineID, arg.Kind, arg.Name, arg.Price).
		Scan(&m.ID, &m.LineID, &m.Kind, &m.Name, &m.Price)
	return m, err
}

func (q *Queries) DeleteOrderLineModifiers(ctx context.Context, lineID uuid.UUID) error {
	const query = `DELETE FROM order_line_modifiers WHERE line_id = $1`
	_, err := q.db.Exec(ctx, query, lineID)
	return err
}
