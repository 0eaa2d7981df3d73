package remote

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"order-engine/internal/adapter"
	"order-engine/internal/model"
)

// GetCategories lists the tenant's categories.
func (c *Client) GetCategories(ctx context.Context, tenantID string) ([]adapter.RemoteCategory, error) {
	var out []adapter.RemoteCategory
	err := c.do(ctx, call{
		op:     "get_categories",
		tenant: tenantID,
		method: http.MethodGet,
		path:   "/v1/categories",
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetProducts fetches products by id in one request.
func (c *Client) GetProducts(ctx context.Context, tenantID string, ids []string) ([]adapter.RemoteProduct, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []adapter.RemoteProduct
	err := c.do(ctx, call{
		op:     "get_products",
		tenant: tenantID,
		method: http.MethodGet,
		path:   "/v1/products",
		query:  url.Values{"ids": {strings.Join(ids, ",")}},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateOrder submits an order. The local order id doubles as the idempotency
// key so a retried or resubmitted request cannot create a second remote order.
func (c *Client) CreateOrder(ctx context.Context, tenantID string, payload *adapter.OrderPayload) (*adapter.RemoteOrder, error) {
	var out adapter.RemoteOrder
	err := c.do(ctx, call{
		op:      "create_order",
		tenant:  tenantID,
		method:  http.MethodPost,
		path:    "/v1/orders",
		body:    payload,
		headers: http.Header{"Idempotency-Key": {payload.ExternalID}},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		c.logger.Warn("remote accepted order without an id", "tenant", tenantID, "external_id", payload.ExternalID)
		return nil, model.NewRemoteRejectedError("create_order", http.StatusOK, "response carried no order id")
	}
	return &out, nil
}

// GetOrder fetches a remote order.
func (c *Client) GetOrder(ctx context.Context, tenantID, remoteID string) (*adapter.RemoteOrder, error) {
	var out adapter.RemoteOrder
	err := c.do(ctx, call{
		op:     "get_order",
		tenant: tenantID,
		method: http.MethodGet,
		path:   "/v1/orders/" + url.PathEscape(remoteID),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
