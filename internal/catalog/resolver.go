package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"order-engine/internal/adapter"
	"order-engine/internal/cache"
	"order-engine/internal/config"
	"order-engine/internal/model"
)

// Strategy names where a resolution was served from.
type Strategy string

const (
	StrategyCache  Strategy = "cache"
	StrategyRemote Strategy = "remote"
	StrategyLocal  Strategy = "local"
)

// Decision records which source served a lookup and why. Each lookup makes
// exactly one decision and logs it once.
type Decision struct {
	Strategy Strategy `json:"strategy"`
	Reason   string   `json:"reason"`
}

// Mapping translates legacy composites to canonical remote product ids.
type Mapping map[string]string

// Lookup returns the canonical id mapped for a legacy reference.
func (m Mapping) Lookup(ref LegacyRef) (string, bool) {
	id, ok := m[ref.String()]
	return id, ok && id != ""
}

// ResolverConfig sizes the resolver caches.
type ResolverConfig struct {
	ProductTTL time.Duration
	CatalogTTL time.Duration
	MaxEntries int
	Shared     cache.Store // optional shared tier
	Now        func() time.Time
}

// Resolver serves catalog lookups: cached remote record, then the remote API,
// then the local catalog.
type Resolver struct {
	remote     adapter.Commerce // nil when no tenant has a remote catalog
	local      *LocalCatalog
	tenants    map[string]config.Tenant
	products   *cache.Tiered[model.Product]
	categories *cache.Tiered[[]model.Category]
	logger     *slog.Logger
}

// NewResolver creates a resolver. remote may be nil.
func NewResolver(remote adapter.Commerce, local *LocalCatalog, tenants map[string]config.Tenant, cfg ResolverConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		remote:  remote,
		local:   local,
		tenants: tenants,
		products: cache.NewTiered[model.Product](cache.Config{
			TTL: cfg.ProductTTL, MaxEntries: cfg.MaxEntries, Now: cfg.Now,
		}, cfg.Shared, "product:", logger),
		categories: cache.NewTiered[[]model.Category](cache.Config{
			TTL: cfg.CatalogTTL, MaxEntries: cfg.MaxEntries, Now: cfg.Now,
		}, cfg.Shared, "categories:", logger),
		logger: logger,
	}
}

// remoteEnabled reports whether remote lookups apply to the tenant, and why not.
func (r *Resolver) remoteEnabled(tenant config.Tenant) (bool, string) {
	if !tenant.RemoteCatalog {
		return false, "remote catalog disabled for tenant"
	}
	if r.remote == nil {
		return false, "no remote client configured"
	}
	return true, ""
}

func (r *Resolver) tenant(id string) (config.Tenant, error) {
	t, ok := r.tenants[id]
	if !ok {
		return config.Tenant{}, model.NewNotFoundError(fmt.Sprintf("tenant %s", id))
	}
	return t, nil
}

// ResolveProduct finds the product for ref.
func (r *Resolver) ResolveProduct(ctx context.Context, tenantID string, ref Ref) (model.Product, Decision, error) {
	tenant, err := r.tenant(tenantID)
	if err != nil {
		return model.Product{}, Decision{}, err
	}

	var canonicalID string
	switch ref := ref.(type) {
	case CanonicalRef:
		if ref.Kind != KindProduct {
			return model.Product{}, Decision{}, model.NewValidationError("reference", ref.String()+" is not a product")
		}
		canonicalID = ref.ID
	case LegacyRef:
		canonicalID, _ = Mapping(tenant.LegacyMap).Lookup(ref)
	default:
		return model.Product{}, Decision{}, model.NewValidationError("reference", "unsupported reference")
	}

	reason := ""
	if ok, why := r.remoteEnabled(tenant); !ok {
		reason = why
	} else if canonicalID == "" {
		reason = "no canonical mapping for " + ref.String()
	} else {
		p, d, err := r.remoteProduct(ctx, tenantID, canonicalID)
		if err == nil {
			r.log(tenantID, ref, d, slog.LevelDebug)
			return p, d, nil
		}
		reason = fallbackReason(err)
	}

	var (
		p     model.Product
		found bool
	)
	switch ref := ref.(type) {
	case LegacyRef:
		p, found = r.local.ByPosition(ref)
	case CanonicalRef:
		p, found = r.local.Product(ref.ID)
	}
	if !found {
		r.logger.Info("catalog lookup failed", "tenant", tenantID, "ref", ref.String(), "reason", reason)
		return model.Product{}, Decision{}, model.NewNotFoundError("product " + ref.String())
	}

	d := Decision{Strategy: StrategyLocal, Reason: reason}
	r.log(tenantID, ref, d, fallbackLevel(tenant))
	return p, d, nil
}

// remoteProduct serves one canonical id from cache or the remote API.
func (r *Resolver) remoteProduct(ctx context.Context, tenantID, id string) (model.Product, Decision, error) {
	key := tenantID + ":" + id
	if p, ok := r.products.Get(ctx, key); ok {
		return p, Decision{Strategy: StrategyCache, Reason: "cached remote record"}, nil
	}

	rps, err := r.remote.GetProducts(ctx, tenantID, []string{id})
	if err != nil {
		return model.Product{}, Decision{}, err
	}
	for _, rp := range rps {
		if rp.ID == id {
			p := fromRemoteProduct(rp)
			r.products.Set(ctx, key, p)
			return p, Decision{Strategy: StrategyRemote, Reason: "fetched from remote"}, nil
		}
	}
	return model.Product{}, Decision{}, model.NewNotFoundError("remote product " + id)
}

// Categories lists the tenant's categories.
func (r *Resolver) Categories(ctx context.Context, tenantID string) ([]model.Category, Decision, error) {
	tenant, err := r.tenant(tenantID)
	if err != nil {
		return nil, Decision{}, err
	}

	ok, reason := r.remoteEnabled(tenant)
	if ok {
		cats, d, err := r.remoteCategories(ctx, tenantID)
		if err == nil {
			r.log(tenantID, nil, d, slog.LevelDebug)
			return cats, d, nil
		}
		reason = fallbackReason(err)
	}

	d := Decision{Strategy: StrategyLocal, Reason: reason}
	r.log(tenantID, nil, d, fallbackLevel(tenant))
	return r.local.Categories(), d, nil
}

func (r *Resolver) remoteCategories(ctx context.Context, tenantID string) ([]model.Category, Decision, error) {
	if cats, ok := r.categories.Get(ctx, tenantID); ok {
		return cats, Decision{Strategy: StrategyCache, Reason: "cached remote categories"}, nil
	}
	rcs, err := r.remote.GetCategories(ctx, tenantID)
	if err != nil {
		return nil, Decision{}, err
	}
	if len(rcs) == 0 {
		return nil, Decision{}, model.NewNotFoundError("remote categories")
	}
	cats := fromRemoteCategories(rcs)
	r.categories.Set(ctx, tenantID, cats)
	return cats, Decision{Strategy: StrategyRemote, Reason: "fetched from remote"}, nil
}

// ProductsInCategory lists the products of one category in display order.
// Product records already cached are not fetched again; the rest are fetched
// in a single request.
func (r *Resolver) ProductsInCategory(ctx context.Context, tenantID, categoryID string) ([]model.Product, Decision, error) {
	tenant, err := r.tenant(tenantID)
	if err != nil {
		return nil, Decision{}, err
	}

	ok, reason := r.remoteEnabled(tenant)
	if ok {
		products, d, err := r.remoteCategoryProducts(ctx, tenantID, categoryID)
		if err == nil {
			r.log(tenantID, CanonicalRef{Kind: KindCategory, ID: categoryID}, d, slog.LevelDebug)
			return products, d, nil
		}
		reason = fallbackReason(err)
	}

	products, found := r.local.ProductsInCategory(categoryID)
	if !found {
		return nil, Decision{}, model.NewNotFoundError("category " + categoryID)
	}
	d := Decision{Strategy: StrategyLocal, Reason: reason}
	r.log(tenantID, CanonicalRef{Kind: KindCategory, ID: categoryID}, d, fallbackLevel(tenant))
	return products, d, nil
}

func (r *Resolver) remoteCategoryProducts(ctx context.Context, tenantID, categoryID string) ([]model.Product, Decision, error) {
	cats, catDecision, err := r.remoteCategories(ctx, tenantID)
	if err != nil {
		return nil, Decision{}, err
	}
	var cat *model.Category
	for i := range cats {
		if cats[i].ID == categoryID {
			cat = &cats[i]
			break
		}
	}
	if cat == nil {
		return nil, Decision{}, model.NewNotFoundError("remote category " + categoryID)
	}

	byID := make(map[string]model.Product, len(cat.ProductIDs))
	var missing []string
	for _, id := range cat.ProductIDs {
		if p, ok := r.products.Get(ctx, tenantID+":"+id); ok {
			byID[id] = p
		} else {
			missing = append(missing, id)
		}
	}

	d := catDecision
	if len(missing) > 0 {
		rps, err := r.remote.GetProducts(ctx, tenantID, missing)
		if err != nil {
			return nil, Decision{}, err
		}
		for _, rp := range rps {
			p := fromRemoteProduct(rp)
			r.products.Set(ctx, tenantID+":"+p.ID, p)
			byID[p.ID] = p
		}
		d = Decision{Strategy: StrategyRemote, Reason: "fetched from remote"}
	}

	out := make([]model.Product, 0, len(cat.ProductIDs))
	for _, id := range cat.ProductIDs {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, d, nil
}

// Invalidate drops a cached product so the next lookup refetches it.
func (r *Resolver) Invalidate(ctx context.Context, tenantID, productID string) {
	r.products.Delete(ctx, tenantID+":"+productID)
}

func (r *Resolver) log(tenantID string, ref Ref, d Decision, level slog.Level) {
	attrs := []any{"tenant", tenantID, "strategy", d.Strategy, "reason", d.Reason}
	if ref != nil {
		attrs = append(attrs, "ref", ref.String())
	}
	r.logger.Log(context.Background(), level, "catalog decision", attrs...)
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, model.ErrRemoteUnavailable):
		return "remote unavailable"
	case errors.Is(err, model.ErrRemoteRejected):
		return "remote rejected request"
	case errors.Is(err, model.ErrNotFound):
		return "not in remote catalog"
	default:
		return "remote lookup failed: " + err.Error()
	}
}

func fallbackLevel(t config.Tenant) slog.Level {
	if t.RemoteCatalog {
		return slog.LevelWarn
	}
	return slog.LevelDebug
}
