package database

import (
	"context"

	"github.com/google/uuid"
)

func (q *Queries) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	const query = `SELECT id, outlet_id, name, pin_hash, role, created_at FROM users WHERE id = $1`
	var u User
	err := q.db.QueryRow(ctx, query, id).
		Scan(&u.ID, &u.OutletID, &u.Name, &u.PinHash, &u.Role, &u.CreatedAt)
	return u, err
}

type GetUserByOutletAndNameParams struct {
	OutletID uuid.UUID
	Name     string
}

func (q *Queries) GetUserByOutletAndName(ctx context.Context, arg GetUserByOutletAndNameParams) (User, error) {
	const query = `SELECT id, outlet_id, name, pin_hash, role, created_at
		FROM users WHERE outlet_id = $1 AND name = $2`
	var u User
	err := q.db.QueryRow(ctx, query, arg.OutletID, arg.Name).
		Scan(&u.ID, &u.OutletID, &u.Name, &u.PinHash, &u.Role, &u.CreatedAt)
	return u, err
}

func (q *Queries) ListUsersByOutlet(ctx context.Context, outletID uuid.UUID) ([]User, error) {
	const query = `SELECT id, outlet_id, name, pin_hash, role, created_at
		FROM users WHERE outlet_id = $1 ORDER BY name`
	rows, err := q.db.Query(ctx, query, outletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.OutletID, &u.Name, &u.PinHash, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
