package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the local status vocabulary for orders.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"    // persisted, remote outcome not yet known
	StatusLocalOnly  OrderStatus = "local-only" // no remote order exists
	StatusSubmitted  OrderStatus = "submitted"  // remote accepted the payload
	StatusConfirmed  OrderStatus = "confirmed"
	StatusPreparing  OrderStatus = "preparing"
	StatusDispatched OrderStatus = "dispatched"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// statusRank orders statuses along the only direction they may move.
var statusRank = map[OrderStatus]int{
	StatusPending:    0,
	StatusLocalOnly:  1,
	StatusSubmitted:  2,
	StatusConfirmed:  3,
	StatusPreparing:  4,
	StatusDispatched: 5,
	StatusDelivered:  6,
	StatusCancelled:  7,
}

// IsValid checks if the status is part of the vocabulary.
func (s OrderStatus) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank returns the position of s in the advancing sequence, or -1 when unknown.
func (s OrderStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanAdvanceTo reports whether moving from s to next keeps the sequence monotonic.
// Cancellation is reachable from every non-terminal status.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	if !s.IsValid() || !next.IsValid() || s.IsTerminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return next.Rank() > s.Rank()
}

// DeliveryMode is how the customer receives the order.
type DeliveryMode string

const (
	DeliveryPickup   DeliveryMode = "pickup"
	DeliveryDelivery DeliveryMode = "delivery"
)

// IsValid checks if the delivery mode is known.
func (d DeliveryMode) IsValid() bool {
	return d == DeliveryPickup || d == DeliveryDelivery
}

// PaymentMethod is how the customer intends to pay. Payment itself is external.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

// IsValid checks if the payment method is known.
func (p PaymentMethod) IsValid() bool {
	return p == PaymentCash || p == PaymentCard || p == PaymentTransfer
}

// Customer identifies who placed the order.
type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Delivery holds the delivery selection.
type Delivery struct {
	Mode    DeliveryMode `json:"mode"`
	Address string       `json:"address,omitempty"`
}

// Payment holds the payment selection.
type Payment struct {
	Method PaymentMethod `json:"method"`
}

// Totals are computed once at order creation and never rewritten.
type Totals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Tax         decimal.Decimal `json:"tax"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
}

// Order is the durable record of a checkout.
// RemoteID/RemoteNumber are set only after a successful remote submission.
type Order struct {
	ID             string      `json:"id"`
	Number         string      `json:"number"`
	TenantID       string      `json:"tenant_id"`
	ConversationID string      `json:"conversation_id,omitempty"`
	RemoteID       string      `json:"remote_id,omitempty"`
	RemoteNumber   string      `json:"remote_number,omitempty"`
	Cart           Cart        `json:"cart"`
	Customer       Customer    `json:"customer"`
	Delivery       Delivery    `json:"delivery"`
	Payment        Payment     `json:"payment"`
	PromoCode      string      `json:"promo_code,omitempty"`
	Currency       string      `json:"currency"`
	Totals         Totals      `json:"totals"`
	Status         OrderStatus `json:"status"`
	StatusReason   string      `json:"status_reason,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	ConfirmedAt    *time.Time  `json:"confirmed_at,omitempty"`
}

// HasRemote reports whether the order was accepted by the remote API.
func (o *Order) HasRemote() bool {
	return o.RemoteID != ""
}

// DisplayNumber is the reference shown to the customer: the remote number when
// one exists, the local number otherwise.
func (o *Order) DisplayNumber() string {
	if o.RemoteNumber != "" {
		return o.RemoteNumber
	}
	return o.Number
}
