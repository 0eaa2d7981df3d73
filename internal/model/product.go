// Package model defines the engine's catalog, cart, order and directive types.
package model

import (
	"github.com/shopspring/decimal"
)

// PricingMode selects which pricing regime applies to a product.
// The two regimes never mix on a single product.
type PricingMode string

const (
	// ModeMultiplier prices a product as base price × size factor plus flat add-on prices.
	// Used by the static local catalog.
	ModeMultiplier PricingMode = "multiplier"

	// ModePresentation prices a product by an absolute presentation price plus
	// modifier option deltas. Used by remote catalog records.
	ModePresentation PricingMode = "presentation"
)

// Source records where a product record came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Product is the canonical catalog record the engine prices against.
// Exactly one of the multiplier fields (BasePrice, Sizes, AddOns) or the
// presentation fields (Presentations, ModifierGroups) is meaningful, per Mode.
type Product struct {
	ID         string      `json:"id"`
	LegacyID   string      `json:"legacy_id,omitempty"`
	CategoryID string      `json:"category_id,omitempty"`
	Name       string      `json:"name"`
	Available  bool        `json:"available"`
	Mode       PricingMode `json:"mode"`
	Source     Source      `json:"source"`

	// Multiplier Mode
	BasePrice decimal.Decimal `json:"base_price,omitempty"`
	Sizes     []Size          `json:"sizes,omitempty"`
	AddOns    []AddOn         `json:"add_ons,omitempty"`

	// Presentation Mode
	Presentations  []Presentation  `json:"presentations,omitempty"`
	ModifierGroups []ModifierGroup `json:"modifier_groups,omitempty"`
}

// Size is a Multiplier Mode size with its price factor (e.g. "large" → 1.5).
type Size struct {
	Name   string          `json:"name"`
	Factor decimal.Decimal `json:"factor"`
}

// AddOn is a Multiplier Mode extra with a flat per-unit price.
type AddOn struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Presentation is a priced variant of a product under Presentation Mode.
type Presentation struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// ModifierGroup is a named set of options with a selection-count constraint.
type ModifierGroup struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Min     int              `json:"min"`
	Max     int              `json:"max"`
	Options []ModifierOption `json:"options"`
}

// ModifierOption is one choice inside a modifier group, priced as a delta per unit.
type ModifierOption struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Delta decimal.Decimal `json:"delta"`
}

// Category groups products for browsing.
type Category struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	ProductIDs []string `json:"product_ids,omitempty"`
	Source     Source   `json:"source"`
}

// Presentation returns the presentation with the given id.
func (p *Product) Presentation(id string) (Presentation, bool) {
	for _, pr := range p.Presentations {
		if pr.ID == id {
			return pr, true
		}
	}
	return Presentation{}, false
}

// ModifierGroup returns the modifier group with the given id.
func (p *Product) ModifierGroup(id string) (ModifierGroup, bool) {
	for _, g := range p.ModifierGroups {
		if g.ID == id {
			return g, true
		}
	}
	return ModifierGroup{}, false
}

// Size returns the size with the given name.
func (p *Product) Size(name string) (Size, bool) {
	for _, s := range p.Sizes {
		if s.Name == name {
			return s, true
		}
	}
	return Size{}, false
}

// AddOn returns the add-on with the given id.
func (p *Product) AddOn(id string) (AddOn, bool) {
	for _, a := range p.AddOns {
		if a.ID == id {
			return a, true
		}
	}
	return AddOn{}, false
}

// Option returns the option with the given id inside the group.
func (g ModifierGroup) Option(id string) (ModifierOption, bool) {
	for _, o := range g.Options {
		if o.ID == id {
			return o, true
		}
	}
	return ModifierOption{}, false
}
