package adapter

import (
	"context"

	"order-engine/internal/model"
)

// Mock implements Commerce for testing.
// Each method can be configured via function fields.
type Mock struct {
	GetCategoriesFunc func(ctx context.Context, tenantID string) ([]RemoteCategory, error)
	GetProductsFunc   func(ctx context.Context, tenantID string, ids []string) ([]RemoteProduct, error)
	CreateOrderFunc   func(ctx context.Context, tenantID string, payload *OrderPayload) (*RemoteOrder, error)
	GetOrderFunc      func(ctx context.Context, tenantID, remoteID string) (*RemoteOrder, error)
}

// GetCategories calls the configured GetCategoriesFunc or returns no categories.
func (m *Mock) GetCategories(ctx context.Context, tenantID string) ([]RemoteCategory, error) {
	if m.GetCategoriesFunc != nil {
		return m.GetCategoriesFunc(ctx, tenantID)
	}
	return nil, nil
}

// GetProducts calls the configured GetProductsFunc or returns no products.
func (m *Mock) GetProducts(ctx context.Context, tenantID string, ids []string) ([]RemoteProduct, error) {
	if m.GetProductsFunc != nil {
		return m.GetProductsFunc(ctx, tenantID, ids)
	}
	return nil, nil
}

// CreateOrder calls the configured CreateOrderFunc or reports the remote as unavailable.
func (m *Mock) CreateOrder(ctx context.Context, tenantID string, payload *OrderPayload) (*RemoteOrder, error) {
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, tenantID, payload)
	}
	return nil, model.NewRemoteUnavailableError("create_order", nil)
}

// GetOrder calls the configured GetOrderFunc or returns not found.
func (m *Mock) GetOrder(ctx context.Context, tenantID, remoteID string) (*RemoteOrder, error) {
	if m.GetOrderFunc != nil {
		return m.GetOrderFunc(ctx, tenantID, remoteID)
	}
	return nil, model.NewNotFoundError("order")
}

// Verify Mock implements Commerce at compile time.
var _ Commerce = (*Mock)(nil)
