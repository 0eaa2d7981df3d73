package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func line(total string, qty int) CartItem {
	return CartItem{ProductID: "p", Quantity: qty, LineTotal: decimal.RequireFromString(total)}
}

func TestCart_SubtotalTracksMutations(t *testing.T) {
	c := NewCart("acme")
	if !c.IsEmpty() {
		t.Fatal("new cart should be empty")
	}

	c.Add(line("35.98", 2))
	c.Add(line("4.50", 1))
	if got := FormatMoney(c.Subtotal()); got != "40.48" {
		t.Errorf("Subtotal = %s, want 40.48", got)
	}

	if err := c.Replace(1, line("9.00", 2)); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if got := FormatMoney(c.Subtotal()); got != "44.98" {
		t.Errorf("Subtotal after replace = %s, want 44.98", got)
	}

	if err := c.Remove(0); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := FormatMoney(c.Subtotal()); got != "9.00" {
		t.Errorf("Subtotal after remove = %s, want 9.00", got)
	}
	if c.ItemCount() != 2 {
		t.Errorf("ItemCount = %d, want 2", c.ItemCount())
	}

	c.Clear()
	if !c.Subtotal().IsZero() {
		t.Errorf("Subtotal after clear = %s, want 0", c.Subtotal())
	}
}

func TestCart_RemoveOutOfRange(t *testing.T) {
	c := NewCart("acme")
	if err := c.Remove(0); err == nil {
		t.Error("Remove on empty cart should fail")
	}
}

func TestCart_SnapshotIsDeep(t *testing.T) {
	c := NewCart("acme")
	c.Add(CartItem{ProductID: "p", Quantity: 1, Selection: Selection{Modifiers: []ModifierChoice{{GroupID: "g", OptionID: "o"}}}})

	snap := c.Snapshot()
	c.Items[0].Selection.Modifiers[0].OptionID = "changed"
	c.Items[0].Quantity = 5

	if snap.Items[0].Selection.Modifiers[0].OptionID != "o" {
		t.Error("snapshot modifiers alias the live cart")
	}
	if snap.Items[0].Quantity != 1 {
		t.Error("snapshot quantity changed with the live cart")
	}
}
