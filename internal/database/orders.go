package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sajian-pos/api/internal/enum"
)

const orderColumns = `id, outlet_id, order_number, status, version, current_batch,
	discount_type, discount_value, discount_amount,
	total_before_discount, total_after_discount, tax_amount, service_fee_amount, grand_total,
	notes, created_by, created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OutletID, &o.OrderNumber, &o.Status, &o.Version, &o.CurrentBatch,
		&o.DiscountType, &o.DiscountValue, &o.DiscountAmount,
		&o.TotalBeforeDiscount, &o.TotalAfterDiscount, &o.TaxAmount, &o.ServiceFeeAmount, &o.GrandTotal,
		&o.Notes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

type GetOrderParams struct {
	ID       uuid.UUID
	OutletID uuid.UUID
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND outlet_id = $2`
	return scanOrder(q.db.QueryRow(ctx, query, arg.ID, arg.OutletID))
}

type GetOrderForUpdateParams struct {
	ID       uuid.UUID
	OutletID uuid.UUID
}

// GetOrderForUpdate locks the order row for the duration of the enclosing
// transaction. The version check is still the authority on conflicts; the lock
// only serializes writers that would otherwise both see zero rows affected.
func (q *Queries) GetOrderForUpdate(ctx context.Context, arg GetOrderForUpdateParams) (Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND outlet_id = $2 FOR NO KEY UPDATE`
	return scanOrder(q.db.QueryRow(ctx, query, arg.ID, arg.OutletID))
}

func (q *Queries) GetOrderByID(ctx context.Context, id uuid.UUID) (Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(q.db.QueryRow(ctx, query, id))
}

// CompleteOrder marks an open order completed once its balance is covered.
func (q *Queries) CompleteOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	const query = `UPDATE orders SET status = 'COMPLETED', updated_at = now()
		WHERE id = $1 AND status = 'OPEN'
		RETURNING ` + orderColumns
	return scanOrder(q.db.QueryRow(ctx, query, id))
}

type ListOrdersParams struct {
	OutletID uuid.UUID
	Limit    int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE outlet_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := q.db.Query(ctx, query, arg.OutletID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type GetNextOrderNumberParams struct {
	OutletID uuid.UUID
	Prefix   string
}

// GetNextOrderNumber returns the next free sequence within one outlet's daily
// number series, e.g. prefix SJN-20260115 yields the NNN of SJN-20260115-NNN.
// The read is not locked; the unique constraint on (outlet_id, order_number)
// catches concurrent claims of the same value.
func (q *Queries) GetNextOrderNumber(ctx context.Context, arg GetNextOrderNumberParams) (int32, error) {
	const query = `SELECT COALESCE(MAX(CAST(SUBSTRING(order_number FROM LENGTH($2) + 2) AS int)), 0) + 1
		FROM orders WHERE outlet_id = $1 AND order_number LIKE $2 || '-%'`
	var n int32
	err := q.db.QueryRow(ctx, query, arg.OutletID, arg.Prefix).Scan(&n)
	return n, err
}

type CreateOrderParams struct {
	OutletID            uuid.UUID
	OrderNumber         string
	Status              enum.OrderStatus
	DiscountType        pgtype.Text
	DiscountValue       pgtype.Numeric
	DiscountAmount      pgtype.Numeric
	TotalBeforeDiscount pgtype.Numeric
	TotalAfterDiscount  pgtype.Numeric
	TaxAmount           pgtype.Numeric
	ServiceFeeAmount    pgtype.Numeric
	GrandTotal          pgtype.Numeric
	Notes               pgtype.Text
	CreatedBy           uuid.UUID
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	const query = `INSERT INTO orders (
		outlet_id, order_number, status, version, current_batch,
		discount_type, discount_value, discount_amount,
		total_before_discount, total_after_discount, tax_amount, service_fee_amount, grand_total,
		notes, created_by
	) VALUES ($1, $2, $3, 1, 1, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	RETURNING ` + orderColumns
	return scanOrder(q.db.QueryRow(ctx, query,
		arg.OutletID, arg.OrderNumber, arg.Status,
		arg.DiscountType, arg.DiscountValue, arg.DiscountAmount,
		arg.TotalBeforeDiscount, arg.TotalAfterDiscount, arg.TaxAmount, arg.ServiceFeeAmount, arg.GrandTotal,
		arg.Notes, arg.CreatedBy,
	))
}

type UpdateOrderRevisionParams struct {
	ID                  uuid.UUID
	VersionFrom         int32
	CurrentBatch        int32
	DiscountAmount      pgtype.Numeric
	TotalBeforeDiscount pgtype.Numeric
	TotalAfterDiscount  pgtype.Numeric
	TaxAmount           pgtype.Numeric
	ServiceFeeAmount    pgtype.Numeric
	GrandTotal          pgtype.Numeric
}

// UpdateOrderRevision performs the optimistic-concurrency write: the order's
// totals, batch counter, and version advance only if the stored version still
// equals VersionFrom. Returns the number of rows affected; zero means the
// snapshot this revision was built from is stale.
func (q *Queries) UpdateOrderRevision(ctx context.Context, arg UpdateOrderRevisionParams) (int64, error) {
	const query = `UPDATE orders SET
		version = version + 1,
		current_batch = $3,
		discount_amount = $4,
		total_before_discount = $5,
		total_after_discount = $6,
		tax_amount = $7,
		service_fee_amount = $8,
		grand_total = $9,
		updated_at = now()
	WHERE id = $1 AND version = $2`
	tag, err := q.db.Exec(ctx, query,
		arg.ID, arg.VersionFrom, arg.CurrentBatch,
		arg.DiscountAmount, arg.TotalBeforeDiscount, arg.TotalAfterDiscount,
		arg.TaxAmount, arg.ServiceFeeAmount, arg.GrandTotal,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
