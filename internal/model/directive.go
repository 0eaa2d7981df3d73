package model

import "errors"

// DirectiveKind names the next step the channel-rendering layer should show.
type DirectiveKind string

const (
	DirectiveShowCategories    DirectiveKind = "show_categories"
	DirectiveShowProducts      DirectiveKind = "show_products"
	DirectiveShowPresentations DirectiveKind = "show_presentations"
	DirectiveShowSizes         DirectiveKind = "show_sizes"
	DirectiveShowModifiers     DirectiveKind = "show_modifiers"
	DirectiveShowCart          DirectiveKind = "show_cart"
	DirectiveAskDelivery       DirectiveKind = "ask_delivery"
	DirectiveAskPayment        DirectiveKind = "ask_payment"
	DirectiveShowConfirmation  DirectiveKind = "show_order_confirmation"
	DirectiveShowError         DirectiveKind = "show_error"
	DirectivePassThrough       DirectiveKind = "pass_through"
)

// Directive is pure data for the rendering layer. It never carries markup.
// Only the fields relevant to Kind are populated.
type Directive struct {
	Kind DirectiveKind `json:"kind"`

	Categories []Category `json:"categories,omitempty"`
	CategoryID string     `json:"category_id,omitempty"`
	Products   []Product  `json:"products,omitempty"`
	Product    *Product   `json:"product,omitempty"`

	// GroupID is the modifier group to present next, for show_modifiers.
	GroupID string `json:"group_id,omitempty"`

	Cart     *Cart  `json:"cart,omitempty"`
	Subtotal string `json:"subtotal,omitempty"`

	// Checkout progress for ask_delivery and ask_payment.
	AwaitingAddress bool   `json:"awaiting_address,omitempty"`
	PaymentMethod   string `json:"payment_method,omitempty"`
	PromoCode       string `json:"promo_code,omitempty"`

	OrderID     string `json:"order_id,omitempty"`
	OrderNumber string `json:"order_number,omitempty"`
	OrderStatus string `json:"order_status,omitempty"`
	Total       string `json:"total,omitempty"`

	// Code and Message describe a show_error directive.
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorDirective builds a show_error directive from an error.
// APIError codes and messages pass through; anything else is generic.
func ErrorDirective(err error) Directive {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return Directive{Kind: DirectiveShowError, Code: apiErr.Code, Message: apiErr.Message}
	}
	return Directive{Kind: DirectiveShowError, Code: "INTERNAL_ERROR", Message: "something went wrong, please try again"}
}
