package catalog

import (
	"order-engine/internal/adapter"
	"order-engine/internal/model"
)

// fromRemoteProduct converts a remote record to a canonical Presentation Mode product.
func fromRemoteProduct(rp adapter.RemoteProduct) model.Product {
	p := model.Product{
		ID:         rp.ID,
		CategoryID: rp.CategoryID,
		Name:       rp.Name,
		Available:  rp.Available,
		Mode:       model.ModePresentation,
		Source:     model.SourceRemote,
	}
	for _, pr := range rp.Presentations {
		p.Presentations = append(p.Presentations, model.Presentation{ID: pr.ID, Name: pr.Name, Price: pr.Price})
	}
	for _, g := range rp.ModifierGroups {
		group := model.ModifierGroup{ID: g.ID, Name: g.Name, Min: g.MinSelect, Max: g.MaxSelect}
		for _, o := range g.Options {
			group.Options = append(group.Options, model.ModifierOption{ID: o.ID, Name: o.Name, Delta: o.PriceDelta})
		}
		p.ModifierGroups = append(p.ModifierGroups, group)
	}
	return p
}

func fromRemoteCategories(rcs []adapter.RemoteCategory) []model.Category {
	out := make([]model.Category, 0, len(rcs))
	for _, rc := range rcs {
		out = append(out, model.Category{
			ID:         rc.ID,
			Name:       rc.Name,
			ProductIDs: append([]string(nil), rc.ProductIDs...),
			Source:     model.SourceRemote,
		})
	}
	return out
}
