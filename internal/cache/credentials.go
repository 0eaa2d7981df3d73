package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"order-engine/internal/config"
	"order-engine/internal/model"
)

// CredentialCache holds decrypted tenant credentials. Each tenant's secret is
// opened at most once per TTL window; concurrent misses share one decrypt.
type CredentialCache struct {
	cache   *TTLCache[model.TenantCredential]
	source  SecretSource
	tenants map[string]config.Tenant
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewCredentialCache creates a cache over the configured tenants.
func NewCredentialCache(tenants map[string]config.Tenant, source SecretSource, cfg Config, logger *slog.Logger) *CredentialCache {
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	cfg.Now = now
	return &CredentialCache{
		cache:   New[model.TenantCredential](cfg),
		source:  source,
		tenants: tenants,
		ttl:     cfg.TTL,
		now:     now,
		logger:  logger,
	}
}

// Get returns the tenant's credential, decrypting it when absent or expired.
func (c *CredentialCache) Get(ctx context.Context, tenantID string) (model.TenantCredential, error) {
	return c.cache.GetOrLoad(ctx, tenantID, func(ctx context.Context) (model.TenantCredential, error) {
		tenant, ok := c.tenants[tenantID]
		if !ok {
			return model.TenantCredential{}, model.NewNotFoundError(fmt.Sprintf("tenant %s", tenantID))
		}
		secret, err := c.source.Open(ctx, tenantID, tenant)
		if err != nil {
			return model.TenantCredential{}, fmt.Errorf("opening credential: %w", err)
		}
		c.logger.Debug("tenant credential refreshed", "tenant", tenantID)
		return model.TenantCredential{
			Subdomain: tenant.Subdomain,
			Secret:    secret,
			ExpiresAt: c.now().Add(c.ttl),
		}, nil
	})
}

// Invalidate forces the next Get to decrypt again, e.g. after a 401.
func (c *CredentialCache) Invalidate(tenantID string) {
	c.cache.Delete(tenantID)
}
