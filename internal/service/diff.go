package service

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// diffLines compares the line list before and after a revision by line id.
// A surviving line counts as updated when its quantity, subtotal, catalog
// identity, batch, kitchen status, or modifier set changed.
func diffLines(before, after []Line) RevisionDiff {
	var diff RevisionDiff

	prev := make(map[uuid.UUID]Line, len(before))
	for _, l := range before {
		prev[l.ID] = l
	}
	seen := make(map[uuid.UUID]bool, len(after))

	for _, l := range after {
		seen[l.ID] = true
		old, ok := prev[l.ID]
		if !ok {
			diff.Added = append(diff.Added, l)
			continue
		}
		if lineChanged(old, l) {
			diff.Updated = append(diff.Updated, l)
		}
	}
	for _, l := range before {
		if !seen[l.ID] {
			diff.Removed = append(diff.Removed, l)
		}
	}
	return diff
}

func lineChanged(old, cur Line) bool {
	if old.CatalogItemID != cur.CatalogItemID ||
		old.Quantity != cur.Quantity ||
		!old.Subtotal.Equal(cur.Subtotal) ||
		old.BatchNumber != cur.BatchNumber ||
		old.KitchenStatus != cur.KitchenStatus {
		return true
	}
	return modifierSignature(old.Modifiers) != modifierSignature(cur.Modifiers)
}

// modifierSignature is an order-insensitive fingerprint of a line's modifier
// set: sorted, deduplicated (name, price) pairs.
func modifierSignature(mods []LineModifier) string {
	keys := make([]string, 0, len(mods))
	for _, m := range mods {
		keys = append(keys, m.Name+"@"+m.Price.StringFixed(2))
	}
	sort.Strings(keys)
	uniq := keys[:0]
	var last string
	for i, k := range keys {
		if i == 0 || k != last {
			uniq = append(uniq, k)
		}
		last = k
	}
	return strings.Join(uniq, "|")
}
