// Package adapter defines the interface to the remote commerce API and its wire types.
// The engine talks to the remote only through Commerce, so tests can swap in Mock.
package adapter

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Commerce abstracts the remote commerce API that owns remote pricing,
// inventory and order numbers. All methods are tenant-scoped.
//
// Errors follow the model taxonomy: ErrRemoteUnavailable after retries are
// exhausted, ErrRemoteRejected for non-retryable responses, ErrNotFound for
// unknown ids.
type Commerce interface {
	// GetCategories lists the tenant's remote categories.
	GetCategories(ctx context.Context, tenantID string) ([]RemoteCategory, error)

	// GetProducts fetches product records by canonical id. Unknown ids are
	// omitted from the result rather than failing the call.
	GetProducts(ctx context.Context, tenantID string, ids []string) ([]RemoteProduct, error)

	// CreateOrder submits a priced order. Payload.ExternalID carries the local
	// order id so the remote can de-duplicate resubmissions.
	CreateOrder(ctx context.Context, tenantID string, payload *OrderPayload) (*RemoteOrder, error)

	// GetOrder fetches a remote order by its remote id.
	GetOrder(ctx context.Context, tenantID, remoteID string) (*RemoteOrder, error)
}

// RemoteCategory is a category as the remote API returns it.
type RemoteCategory struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	ProductIDs []string `json:"product_ids"`
}

// RemoteProduct is a product record in the remote's presentation pricing regime.
type RemoteProduct struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	CategoryID     string                `json:"category_id"`
	Available      bool                  `json:"available"`
	Presentations  []RemotePresentation  `json:"presentations"`
	ModifierGroups []RemoteModifierGroup `json:"modifier_groups"`
}

// RemotePresentation is a priced product variant.
type RemotePresentation struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// RemoteModifierGroup carries a selection-count constraint over its options.
type RemoteModifierGroup struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	MinSelect int                    `json:"min_select"`
	MaxSelect int                    `json:"max_select"`
	Options   []RemoteModifierOption `json:"options"`
}

// RemoteModifierOption is priced as a per-unit delta.
type RemoteModifierOption struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	PriceDelta decimal.Decimal `json:"price_delta"`
}

// OrderPayload is the body of a remote order submission.
// Enum fields use the remote's upper-case vocabulary.
type OrderPayload struct {
	ExternalID    string          `json:"external_id"`
	Customer      PayloadCustomer `json:"customer"`
	DeliveryType  string          `json:"delivery_type"` // PICKUP | DELIVERY
	Address       string          `json:"address,omitempty"`
	PaymentMethod string          `json:"payment_method"` // CASH | CARD | TRANSFER
	PromoCode     string          `json:"promo_code,omitempty"`
	Items         []OrderLine     `json:"items"`
	ExpectedTotal decimal.Decimal `json:"expected_total"`
}

// PayloadCustomer identifies the buyer.
type PayloadCustomer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// OrderLine is one cart line in a submission.
type OrderLine struct {
	ProductID      string          `json:"product_id"`
	PresentationID string          `json:"presentation_id"`
	Quantity       int             `json:"quantity"`
	Modifiers      []OrderModifier `json:"modifiers,omitempty"`
}

// OrderModifier references one chosen option.
type OrderModifier struct {
	GroupID  string `json:"group_id"`
	OptionID string `json:"option_id"`
}

// RemoteOrder is an order as the remote API reports it.
type RemoteOrder struct {
	ID        string            `json:"id"`
	Number    string            `json:"number"`
	Status    string            `json:"status"`
	Items     []RemoteOrderLine `json:"items"`
	Subtotal  decimal.Decimal   `json:"subtotal"`
	Total     decimal.Decimal   `json:"total"`
	CreatedAt time.Time         `json:"created_at"`
}

// RemoteOrderLine is a priced line of a remote order.
type RemoteOrderLine struct {
	ProductID      string          `json:"product_id"`
	PresentationID string          `json:"presentation_id"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	LineTotal      decimal.Decimal `json:"line_total"`
}
