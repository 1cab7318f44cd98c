package database

import (
	"context"

	"github.com/google/uuid"
)

type GetCatalogItemParams struct {
	ID       uuid.UUID
	OutletID uuid.UUID
}

func (q *Queries) GetCatalogItem(ctx context.Context, arg GetCatalogItemParams) (CatalogItem, error) {
	const query = `SELECT id, outlet_id, name, base_price, active, created_at
		FROM catalog_items WHERE id = $1 AND outlet_id = $2 AND active`
	var c CatalogItem
	err := q.db.QueryRow(ctx, query, arg.ID, arg.OutletID).
		Scan(&c.ID, &c.OutletID, &c.Name, &c.BasePrice, &c.Active, &c.CreatedAt)
	return c, err
}

func (q *Queries) ListCatalogModifiersByItem(ctx context.Context, itemID uuid.UUID) ([]CatalogModifier, error) {
	const query = `SELECT id, item_id, kind, group_name, name, price, is_default
		FROM catalog_modifiers WHERE item_id = $1 ORDER BY kind, group_name, name`
	rows, err := q.db.Query(ctx, query, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mods []CatalogModifier
	for rows.Next() {
		var m CatalogModifier
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Kind, &m.GroupName, &m.Name, &m.Price, &m.IsDefault); err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, rows.Err()
}
