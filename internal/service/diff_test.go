package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/sajian-pos/api/internal/enum"
)

func namedLine(id uuid.UUID, name string, qty int32, subtotal string) Line {
	return Line{
		ID:            id,
		CatalogItemID: uuid.New(),
		Name:          name,
		Quantity:      qty,
		Subtotal:      dec(subtotal),
		BatchNumber:   1,
		KitchenStatus: enum.KitchenStatusPending,
	}
}

func TestDiffLines_AddedRemovedUpdated(t *testing.T) {
	kept := namedLine(uuid.New(), "Nasi Goreng", 1, "25000")
	removed := namedLine(uuid.New(), "Es Teh", 2, "10000")
	changed := namedLine(uuid.New(), "Mie Ayam", 1, "20000")
	added := namedLine(uuid.New(), "Sate Ayam", 1, "30000")

	before := []Line{kept, removed, changed}

	after := []Line{kept, changed, added}
	after[1].Quantity = 3
	after[1].Subtotal = dec("60000")

	diff := diffLines(before, after)

	if len(diff.Added) != 1 || diff.Added[0].ID != added.ID {
		t.Errorf("added = %+v, want just %s", diff.Added, added.ID)
	}
	if len(diff.Removed) != 1 || diff.Removed[0].ID != removed.ID {
		t.Errorf("removed = %+v, want just %s", diff.Removed, removed.ID)
	}
	if len(diff.Updated) != 1 || diff.Updated[0].ID != changed.ID {
		t.Errorf("updated = %+v, want just %s", diff.Updated, changed.ID)
	}
	if diff.Updated[0].Quantity != 3 {
		t.Errorf("updated quantity = %d, want 3", diff.Updated[0].Quantity)
	}
}

func TestDiffLines_NoChanges(t *testing.T) {
	l := namedLine(uuid.New(), "Nasi Goreng", 1, "25000")
	diff := diffLines([]Line{l}, []Line{l})

	if len(diff.Added)+len(diff.Removed)+len(diff.Updated) != 0 {
		t.Errorf("identical lists should diff empty, got %+v", diff)
	}
}

func TestDiffLines_KitchenStatusChangeCounts(t *testing.T) {
	l := namedLine(uuid.New(), "Nasi Goreng", 1, "25000")
	after := l
	after.KitchenStatus = enum.KitchenStatusCooking

	diff := diffLines([]Line{l}, []Line{after})
	if len(diff.Updated) != 1 {
		t.Errorf("kitchen status change must surface as an update, got %+v", diff)
	}
}

func TestDiffLines_SubstitutionCountsAsUpdate(t *testing.T) {
	l := namedLine(uuid.New(), "Mie Ayam", 2, "40000")
	after := l
	after.CatalogItemID = uuid.New()
	after.Name = "Mie Goreng"
	after.Subtotal = dec("44000")
	after.BatchNumber = 2

	diff := diffLines([]Line{l}, []Line{after})
	if len(diff.Updated) != 1 || len(diff.Added) != 0 || len(diff.Removed) != 0 {
		t.Errorf("substitution keeps the line id and diffs as update, got %+v", diff)
	}
}

func TestModifierSignature_OrderInsensitive(t *testing.T) {
	a := []LineModifier{
		{Name: "Pedas", Price: dec("0")},
		{Name: "Telur", Price: dec("5000")},
	}
	b := []LineModifier{
		{Name: "Telur", Price: dec("5000")},
		{Name: "Pedas", Price: dec("0")},
	}
	if modifierSignature(a) != modifierSignature(b) {
		t.Errorf("signature must ignore ordering: %q vs %q", modifierSignature(a), modifierSignature(b))
	}
}

func TestModifierSignature_PriceMatters(t *testing.T) {
	a := []LineModifier{{Name: "Telur", Price: dec("5000")}}
	b := []LineModifier{{Name: "Telur", Price: dec("6000")}}
	if modifierSignature(a) == modifierSignature(b) {
		t.Error("same name at a different price must change the signature")
	}
}

func TestDiffLines_ModifierChangeCounts(t *testing.T) {
	l := namedLine(uuid.New(), "Nasi Goreng", 1, "25000")
	l.Modifiers = []LineModifier{{Kind: enum.ModifierAddon, Name: "Pedas", Price: dec("0")}}

	after := l
	after.Modifiers = []LineModifier{{Kind: enum.ModifierAddon, Name: "Tidak Pedas", Price: dec("0")}}

	diff := diffLines([]Line{l}, []Line{after})
	if len(diff.Updated) != 1 {
		t.Errorf("modifier swap must surface as an update, got %+v", diff)
	}
}
