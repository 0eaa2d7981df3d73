package model

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ModifierChoice references one option of one modifier group.
type ModifierChoice struct {
	GroupID  string `json:"group_id"`
	OptionID string `json:"option_id"`
}

// Selection is what the customer picked for a product.
// Presentation Mode uses PresentationID + Modifiers; Multiplier Mode uses Size + AddOns.
type Selection struct {
	PresentationID string           `json:"presentation_id,omitempty"`
	Size           string           `json:"size,omitempty"`
	Modifiers      []ModifierChoice `json:"modifiers,omitempty"`
	AddOns         []string         `json:"add_ons,omitempty"`
}

// Clone returns a deep copy so drafts never alias cart items.
func (s Selection) Clone() Selection {
	out := s
	out.Modifiers = append([]ModifierChoice(nil), s.Modifiers...)
	out.AddOns = append([]string(nil), s.AddOns...)
	return out
}

// CartItem is a priced line in a cart.
// UnitPrice already includes per-unit option deltas; LineTotal = UnitPrice × Quantity.
type CartItem struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name"`
	Mode          PricingMode     `json:"mode"`
	Source        Source          `json:"source"`
	Quantity      int             `json:"quantity"`
	Selection     Selection       `json:"selection"`
	BasePrice     decimal.Decimal `json:"base_price"`     // presentation price, or base × size factor
	ModifierTotal decimal.Decimal `json:"modifier_total"` // Σ per-unit option deltas
	UnitPrice     decimal.Decimal `json:"unit_price"`
	LineTotal     decimal.Decimal `json:"line_total"`
}

// Cart holds the items of one conversation. The subtotal is always derived.
type Cart struct {
	ID       string     `json:"id"`
	TenantID string     `json:"tenant_id"`
	Items    []CartItem `json:"items"`
}

// NewCart creates an empty cart with a fresh id.
func NewCart(tenantID string) *Cart {
	return &Cart{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Items:    []CartItem{},
	}
}

// Subtotal returns the sum of line totals.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal)
	}
	return total
}

// IsEmpty reports whether the cart has no items.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// ItemCount returns the total quantity across all lines.
func (c *Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// Add appends a priced item, assigning a line id when missing.
func (c *Cart) Add(item CartItem) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	c.Items = append(c.Items, item)
}

// Remove deletes the line at index (0-based).
func (c *Cart) Remove(index int) error {
	if index < 0 || index >= len(c.Items) {
		return NewValidationError("item", fmt.Sprintf("no cart line at position %d", index+1))
	}
	c.Items = append(c.Items[:index], c.Items[index+1:]...)
	return nil
}

// Replace swaps the line at index for a re-priced item, keeping its id.
func (c *Cart) Replace(index int, item CartItem) error {
	if index < 0 || index >= len(c.Items) {
		return NewValidationError("item", fmt.Sprintf("no cart line at position %d", index+1))
	}
	item.ID = c.Items[index].ID
	c.Items[index] = item
	return nil
}

// Clear removes every item.
func (c *Cart) Clear() {
	c.Items = []CartItem{}
}

// HasSource reports whether any line came from the given catalog source.
func (c *Cart) HasSource(src Source) bool {
	for _, item := range c.Items {
		if item.Source == src {
			return true
		}
	}
	return false
}

// Snapshot returns a deep copy suitable for embedding in an order.
func (c *Cart) Snapshot() Cart {
	out := Cart{ID: c.ID, TenantID: c.TenantID, Items: make([]CartItem, len(c.Items))}
	for i, item := range c.Items {
		item.Selection = item.Selection.Clone()
		out.Items[i] = item
	}
	return out
}
