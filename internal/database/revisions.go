package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sajian-pos/api/internal/enum"
)

const revisionColumns = `id, order_id, version_from, version_to, reason_code, reason_note,
	created_by, approved_by, delta_amount, operations, idempotency_key, created_at`

func scanRevision(row interface{ Scan(dest ...any) error }) (OrderRevision, error) {
	var r OrderRevision
	err := row.Scan(
		&r.ID, &r.OrderID, &r.VersionFrom, &r.VersionTo, &r.ReasonCode, &r.ReasonNote,
		&r.CreatedBy, &r.ApprovedBy, &r.DeltaAmount, &r.Operations, &r.IdempotencyKey, &r.CreatedAt,
	)
	return r, err
}

func (q *Queries) GetRevision(ctx context.Context, id uuid.UUID) (OrderRevision, error) {
	const query = `SELECT ` + revisionColumns + ` FROM order_revisions WHERE id = $1`
	return scanRevision(q.db.QueryRow(ctx, query, id))
}

type GetRevisionByIdempotencyKeyParams struct {
	OrderID        uuid.UUID
	IdempotencyKey string
}

func (q *Queries) GetRevisionByIdempotencyKey(ctx context.Context, arg GetRevisionByIdempotencyKeyParams) (OrderRevision, error) {
	const query = `SELECT ` + revisionColumns + ` FROM order_revisions
		WHERE order_id = $1 AND idempotency_key = $2`
	return scanRevision(q.db.QueryRow(ctx, query, arg.OrderID, arg.IdempotencyKey))
}

func (q *Queries) ListRevisionsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderRevision, error) {
	const query = `SELECT ` + revisionColumns + ` FROM order_revisions WHERE order_id = $1 ORDER BY version_from`
	rows, err := q.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revisions []OrderRevision
	for rows.Next() {
		r, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, r)
	}
	return revisions, rows.Err()
}

type CreateRevisionParams struct {
	OrderID        uuid.UUID
	VersionFrom    int32
	VersionTo      int32
	ReasonCode     enum.ReasonCode
	ReasonNote     pgtype.Text
	CreatedBy      uuid.UUID
	ApprovedBy     pgtype.UUID
	DeltaAmount    pgtype.Numeric
	Operations     []byte
	IdempotencyKey pgtype.Text
}

func (q *Queries) CreateRevision(ctx context.Context, arg CreateRevisionParams) (OrderRevision, error) {
	const query = `INSERT INTO order_revisions (
		order_id, version_from, version_to, reason_code, reason_note,
		created_by, approved_by, delta_amount, operations, idempotency_key
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING ` + revisionColumns
	return scanRevision(q.db.QueryRow(ctx, query,
		arg.OrderID, arg.VersionFrom, arg.VersionTo, arg.ReasonCode, arg.ReasonNote,
		arg.CreatedBy, arg.ApprovedBy, arg.DeltaAmount, arg.Operations, arg.IdempotencyKey,
	))
}
