package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sajian-pos/api/internal/database"
	"github.com/sajian-pos/api/internal/enum"
	"github.com/shopspring/decimal"
)

var ErrCatalogItemNotFound = errors.New("catalog item not found")

// CatalogStore is the read-only price lookup the resolver depends on.
// Satisfied by *database.Queries and by the cache decorator.
type CatalogStore interface {
	GetCatalogItem(ctx context.Context, arg database.GetCatalogItemParams) (database.CatalogItem, error)
	ListCatalogModifiersByItem(ctx context.Context, itemID uuid.UUID) ([]database.CatalogModifier, error)
}

// LineModifier is one resolved unit component beyond the base price.
type LineModifier struct {
	Kind  enum.ModifierKind
	Name  string
	Price decimal.Decimal
}

// PricedLine is the resolver's output: everything needed to price a line.
type PricedLine struct {
	CatalogItemID uuid.UUID
	Name          string
	BasePrice     decimal.Decimal
	Modifiers     []LineModifier
}

// ResolvePricedLine looks up the catalog item and resolves the selected addon
// and topping ids against its modifier list. A missing base item is fatal;
// unresolvable modifier ids are dropped with a log line so a stale menu can
// never block an order edit. Addon groups with no explicit selection fall back
// to the group's default option when one exists.
func ResolvePricedLine(ctx context.Context, store CatalogStore, outletID, itemID uuid.UUID, addonIDs, toppingIDs []uuid.UUID) (PricedLine, error) {
	item, err := store.GetCatalogItem(ctx, database.GetCatalogItemParams{ID: itemID, OutletID: outletID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PricedLine{}, fmt.Errorf("%w: %s", ErrCatalogItemNotFound, itemID)
		}
		return PricedLine{}, fmt.Errorf("get catalog item: %w", err)
	}

	mods, err := store.ListCatalogModifiersByItem(ctx, itemID)
	if err != nil {
		return PricedLine{}, fmt.Errorf("list catalog modifiers: %w", err)
	}

	byID := make(map[uuid.UUID]database.CatalogModifier, len(mods))
	for _, m := range mods {
		byID[m.ID] = m
	}

	priced := PricedLine{
		CatalogItemID: item.ID,
		Name:          item.Name,
		BasePrice:     numericToDecimal(item.BasePrice),
	}

	// Addons: explicit selections win; any group left unselected contributes
	// its default option, if the menu designates one.
	selectedGroups := make(map[string]bool)
	for _, id := range addonIDs {
		m, ok := byID[id]
		if !ok || m.Kind != enum.ModifierAddon {
			log.Printf("pricing: dropping unresolvable addon %s for item %s", id, itemID)
			continue
		}
		selectedGroups[m.GroupName.String] = true
		priced.Modifiers = append(priced.Modifiers, LineModifier{
			Kind:  enum.ModifierAddon,
			Name:  m.Name,
			Price: numericToDecimal(m.Price),
		})
	}
	for _, m := range mods {
		if m.Kind != enum.ModifierAddon || !m.IsDefault {
			continue
		}
		if selectedGroups[m.GroupName.String] {
			continue
		}
		selectedGroups[m.GroupName.String] = true
		priced.Modifiers = append(priced.Modifiers, LineModifier{
			Kind:  enum.ModifierAddon,
			Name:  m.Name,
			Price: numericToDecimal(m.Price),
		})
	}

	for _, id := range toppingIDs {
		m, ok := byID[id]
		if !ok || m.Kind != enum.ModifierTopping {
			log.Printf("pricing: dropping unresolvable topping %s for item %s", id, itemID)
			continue
		}
		priced.Modifiers = append(priced.Modifiers, LineModifier{
			Kind:  enum.ModifierTopping,
			Name:  m.Name,
			Price: numericToDecimal(m.Price),
		})
	}

	return priced, nil
}

// lineSubtotal is the line pricer: quantity times the sum of unit components,
// rounded to the smallest currency unit. Pure.
func lineSubtotal(quantity int32, basePrice decimal.Decimal, modifiers []LineModifier) decimal.Decimal {
	unit := basePrice
	for _, m := range modifiers {
		unit = unit.Add(m.Price)
	}
	return roundMoney(unit.Mul(decimal.NewFromInt32(quantity)))
}
