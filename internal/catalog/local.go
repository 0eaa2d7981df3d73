package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"order-engine/internal/model"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// catalogFile is the YAML layout of the static catalog.
// Prices are strings so they parse exactly into decimals.
type catalogFile struct {
	Categories []struct {
		ID       string `yaml:"id"`
		Name     string `yaml:"name"`
		Products []struct {
			ID        string `yaml:"id"`
			Name      string `yaml:"name"`
			BasePrice string `yaml:"base_price"`
			Available *bool  `yaml:"available"`
			Sizes     []struct {
				Name   string `yaml:"name"`
				Factor string `yaml:"factor"`
			} `yaml:"sizes"`
			AddOns []struct {
				ID    string `yaml:"id"`
				Name  string `yaml:"name"`
				Price string `yaml:"price"`
			} `yaml:"add_ons"`
		} `yaml:"products"`
	} `yaml:"categories"`
}

// LocalCatalog is the static Multiplier Mode catalog used when the remote
// catalog is disabled or failing. It is immutable after loading.
type LocalCatalog struct {
	categories []model.Category
	products   map[string]model.Product
	byLegacy   map[string]string // "{category}_{index}" -> product id
}

// LoadLocal reads the catalog from path, or the embedded default when path is empty.
func LoadLocal(path string) (*LocalCatalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading catalog file: %w", err)
		}
	}
	return ParseLocal(data)
}

// ParseLocal builds a LocalCatalog from YAML.
func ParseLocal(data []byte) (*LocalCatalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	lc := &LocalCatalog{
		products: make(map[string]model.Product),
		byLegacy: make(map[string]string),
	}
	for _, c := range f.Categories {
		if c.ID == "" {
			return nil, fmt.Errorf("catalog category without id")
		}
		cat := model.Category{ID: c.ID, Name: c.Name, Source: model.SourceLocal}
		for i, p := range c.Products {
			if p.ID == "" {
				return nil, fmt.Errorf("category %s: product %d has no id", c.ID, i+1)
			}
			if _, dup := lc.products[p.ID]; dup {
				return nil, fmt.Errorf("duplicate product id %s", p.ID)
			}
			base, err := decimal.NewFromString(p.BasePrice)
			if err != nil {
				return nil, fmt.Errorf("product %s: invalid base_price %q", p.ID, p.BasePrice)
			}
			legacy := LegacyRef{Category: c.ID, Index: i + 1}.String()
			prod := model.Product{
				ID:         p.ID,
				LegacyID:   legacy,
				CategoryID: c.ID,
				Name:       p.Name,
				Available:  p.Available == nil || *p.Available,
				Mode:       model.ModeMultiplier,
				Source:     model.SourceLocal,
				BasePrice:  base,
			}
			for _, s := range p.Sizes {
				factor, err := decimal.NewFromString(s.Factor)
				if err != nil || !factor.IsPositive() {
					return nil, fmt.Errorf("product %s: invalid size factor %q", p.ID, s.Factor)
				}
				prod.Sizes = append(prod.Sizes, model.Size{Name: s.Name, Factor: factor})
			}
			for _, a := range p.AddOns {
				price, err := decimal.NewFromString(a.Price)
				if err != nil || price.IsNegative() {
					return nil, fmt.Errorf("product %s: invalid add-on price %q", p.ID, a.Price)
				}
				prod.AddOns = append(prod.AddOns, model.AddOn{ID: a.ID, Name: a.Name, Price: price})
			}
			lc.products[p.ID] = prod
			lc.byLegacy[legacy] = p.ID
			cat.ProductIDs = append(cat.ProductIDs, p.ID)
		}
		lc.categories = append(lc.categories, cat)
	}
	return lc, nil
}

// Categories returns all categories in file order.
func (lc *LocalCatalog) Categories() []model.Category {
	return append([]model.Category(nil), lc.categories...)
}

// Category returns one category by id.
func (lc *LocalCatalog) Category(id string) (model.Category, bool) {
	for _, c := range lc.categories {
		if c.ID == id {
			return c, true
		}
	}
	return model.Category{}, false
}

// Product looks up a product by canonical id or by its legacy composite id.
func (lc *LocalCatalog) Product(id string) (model.Product, bool) {
	if p, ok := lc.products[id]; ok {
		return p, true
	}
	if pid, ok := lc.byLegacy[id]; ok {
		return lc.products[pid], true
	}
	return model.Product{}, false
}

// ByPosition resolves a legacy positional reference.
func (lc *LocalCatalog) ByPosition(ref LegacyRef) (model.Product, bool) {
	return lc.Product(ref.String())
}

// ProductsInCategory returns the category's products in order.
func (lc *LocalCatalog) ProductsInCategory(categoryID string) ([]model.Product, bool) {
	cat, ok := lc.Category(categoryID)
	if !ok {
		return nil, false
	}
	out := make([]model.Product, 0, len(cat.ProductIDs))
	for _, id := range cat.ProductIDs {
		out = append(out, lc.products[id])
	}
	return out, true
}
