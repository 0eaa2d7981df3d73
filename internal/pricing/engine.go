// Package pricing computes line and order totals under the two pricing regimes.
//
// Multiplier Mode (local catalog): unit = base price × size factor + Σ add-on prices.
// Presentation Mode (remote catalog): unit = presentation price + Σ modifier deltas.
// In both, line total = unit × quantity. Every selection is validated before
// anything is computed, and the regimes never fall back to each other.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"order-engine/internal/model"
)

// Engine prices cart items.
type Engine struct {
	MaxQuantity int
}

// New creates an Engine with the given per-line quantity bound.
func New(maxQuantity int) *Engine {
	return &Engine{MaxQuantity: maxQuantity}
}

// PriceItem validates a selection against product and returns the priced line.
// On a validation failure nothing is computed and the error wraps ErrValidation.
func (e *Engine) PriceItem(product model.Product, quantity int, sel model.Selection) (model.CartItem, error) {
	if quantity < 1 {
		return model.CartItem{}, model.NewValidationError("quantity", "must be at least 1")
	}
	if e.MaxQuantity > 0 && quantity > e.MaxQuantity {
		return model.CartItem{}, model.NewValidationError("quantity", fmt.Sprintf("at most %d per line", e.MaxQuantity))
	}
	if !product.Available {
		return model.CartItem{}, model.NewValidationError("product", fmt.Sprintf("%s is not available", product.Name))
	}

	var (
		base, extras decimal.Decimal
		normalized   model.Selection
		err          error
	)
	switch product.Mode {
	case model.ModePresentation:
		base, extras, normalized, err = pricePresentation(product, sel)
	case model.ModeMultiplier:
		base, extras, normalized, err = priceMultiplier(product, sel)
	default:
		err = model.NewValidationError("product", fmt.Sprintf("%s has no pricing mode", product.ID))
	}
	if err != nil {
		return model.CartItem{}, err
	}

	unit := base.Add(extras)
	return model.CartItem{
		ProductID:     product.ID,
		ProductName:   product.Name,
		Mode:          product.Mode,
		Source:        product.Source,
		Quantity:      quantity,
		Selection:     normalized,
		BasePrice:     base,
		ModifierTotal: extras,
		UnitPrice:     unit,
		LineTotal:     unit.Mul(decimal.NewFromInt(int64(quantity))),
	}, nil
}

func pricePresentation(p model.Product, sel model.Selection) (decimal.Decimal, decimal.Decimal, model.Selection, error) {
	zero := decimal.Zero
	if sel.Size != "" || len(sel.AddOns) > 0 {
		return zero, zero, sel, model.NewValidationError("selection", "sizes and add-ons do not apply to "+p.Name)
	}
	if sel.PresentationID == "" {
		return zero, zero, sel, model.NewValidationError("presentation", "choose a presentation for "+p.Name)
	}
	pres, ok := p.Presentation(sel.PresentationID)
	if !ok {
		return zero, zero, sel, model.NewValidationError("presentation", fmt.Sprintf("unknown presentation %s", sel.PresentationID))
	}

	counts := make(map[string]int, len(p.ModifierGroups))
	seen := make(map[model.ModifierChoice]bool, len(sel.Modifiers))
	deltas := decimal.Zero
	for _, choice := range sel.Modifiers {
		group, ok := p.ModifierGroup(choice.GroupID)
		if !ok {
			return zero, zero, sel, model.NewValidationError("modifier", fmt.Sprintf("unknown modifier group %s", choice.GroupID))
		}
		opt, ok := group.Option(choice.OptionID)
		if !ok {
			return zero, zero, sel, model.NewValidationError("modifier", fmt.Sprintf("unknown option %s in %s", choice.OptionID, group.Name))
		}
		if seen[choice] {
			return zero, zero, sel, model.NewValidationError("modifier", fmt.Sprintf("%s chosen twice", opt.Name))
		}
		seen[choice] = true
		counts[group.ID]++
		deltas = deltas.Add(opt.Delta)
	}

	for _, g := range p.ModifierGroups {
		n := counts[g.ID]
		if n < g.Min {
			return zero, zero, sel, model.NewValidationError("modifier", fmt.Sprintf("choose at least %d from %s", g.Min, g.Name))
		}
		if g.Max > 0 && n > g.Max {
			return zero, zero, sel, model.NewValidationError("modifier", fmt.Sprintf("choose at most %d from %s", g.Max, g.Name))
		}
	}

	return pres.Price, deltas, sel.Clone(), nil
}

func priceMultiplier(p model.Product, sel model.Selection) (decimal.Decimal, decimal.Decimal, model.Selection, error) {
	zero := decimal.Zero
	if sel.PresentationID != "" || len(sel.Modifiers) > 0 {
		return zero, zero, sel, model.NewValidationError("selection", "presentations and modifiers do not apply to "+p.Name)
	}

	normalized := sel.Clone()
	factor := decimal.NewFromInt(1)
	switch {
	case sel.Size != "":
		size, ok := p.Size(sel.Size)
		if !ok {
			return zero, zero, sel, model.NewValidationError("size", fmt.Sprintf("unknown size %s", sel.Size))
		}
		factor = size.Factor
	case len(p.Sizes) == 1:
		normalized.Size = p.Sizes[0].Name
		factor = p.Sizes[0].Factor
	case len(p.Sizes) > 1:
		return zero, zero, sel, model.NewValidationError("size", "choose a size for "+p.Name)
	}

	seen := make(map[string]bool, len(sel.AddOns))
	extras := decimal.Zero
	for _, id := range sel.AddOns {
		addOn, ok := p.AddOn(id)
		if !ok {
			return zero, zero, sel, model.NewValidationError("add-on", fmt.Sprintf("unknown add-on %s", id))
		}
		if seen[id] {
			return zero, zero, sel, model.NewValidationError("add-on", fmt.Sprintf("%s chosen twice", addOn.Name))
		}
		seen[id] = true
		extras = extras.Add(addOn.Price)
	}

	return model.RoundMoney(p.BasePrice.Mul(factor)), extras, normalized, nil
}

// UpdateQuantity re-prices the line at index with a new quantity, keeping its
// selection and line id. product must be the line's current catalog record.
func (e *Engine) UpdateQuantity(cart *model.Cart, index, quantity int, product model.Product) error {
	if index < 0 || index >= len(cart.Items) {
		return model.NewValidationError("item", fmt.Sprintf("no cart line at position %d", index+1))
	}
	item, err := e.PriceItem(product, quantity, cart.Items[index].Selection)
	if err != nil {
		return err
	}
	return cart.Replace(index, item)
}

// Reprice re-prices every line against fresh product records. lookup returns
// the product for a line; any failure leaves the cart untouched.
func (e *Engine) Reprice(cart *model.Cart, lookup func(item model.CartItem) (model.Product, error)) error {
	repriced := make([]model.CartItem, len(cart.Items))
	for i, item := range cart.Items {
		product, err := lookup(item)
		if err != nil {
			return err
		}
		next, err := e.PriceItem(product, item.Quantity, item.Selection)
		if err != nil {
			return err
		}
		next.ID = item.ID
		repriced[i] = next
	}
	cart.Items = repriced
	return nil
}
