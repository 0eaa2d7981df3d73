// Package conversation runs the per-conversation ordering state machine.
//
// Each stage has its own record type holding only the fields that are legal
// in that stage. Records are validated whenever a transition produces one, so
// an invalid combination (a checkout with an empty cart, a confirmation
// without an order) can never be stored.
package conversation

import (
	"order-engine/internal/model"
)

// State is the stage record of a conversation.
type State interface {
	Stage() model.Stage
	validate(cart *model.Cart) error
}

// Draft is the item being customized before it is added to the cart.
type Draft struct {
	Quantity  int             `json:"quantity"`
	Selection model.Selection `json:"selection"`
}

// BrowsingState shows categories.
type BrowsingState struct{}

// SelectingState lists the products of one category.
type SelectingState struct {
	CategoryID string
}

// CustomizingState holds the product being configured.
type CustomizingState struct {
	Product model.Product
	Draft   Draft
}

// ReviewingCartState shows the cart.
type ReviewingCartState struct{}

// CheckoutState collects the delivery selection.
type CheckoutState struct {
	Delivery        model.Delivery
	AwaitingAddress bool
	PromoCode       string
}

// PaymentState collects the payment selection.
type PaymentState struct {
	Delivery  model.Delivery
	Payment   model.Payment
	PromoCode string
}

// ConfirmedState references the persisted order.
type ConfirmedState struct {
	OrderID     string
	OrderNumber string
	Status      model.OrderStatus
}

func (BrowsingState) Stage() model.Stage      { return model.StageBrowsing }
func (SelectingState) Stage() model.Stage     { return model.StageSelecting }
func (CustomizingState) Stage() model.Stage   { return model.StageCustomizing }
func (ReviewingCartState) Stage() model.Stage { return model.StageReviewingCart }
func (CheckoutState) Stage() model.Stage      { return model.StageCheckout }
func (PaymentState) Stage() model.Stage       { return model.StagePayment }
func (ConfirmedState) Stage() model.Stage     { return model.StageConfirmed }

func (BrowsingState) validate(*model.Cart) error { return nil }

func (s SelectingState) validate(*model.Cart) error {
	if s.CategoryID == "" {
		return model.NewValidationError("category", "no category selected")
	}
	return nil
}

func (s CustomizingState) validate(*model.Cart) error {
	if s.Product.ID == "" {
		return model.NewValidationError("product", "no product selected")
	}
	if s.Draft.Quantity < 1 {
		return model.NewValidationError("quantity", "must be at least 1")
	}
	return nil
}

func (ReviewingCartState) validate(*model.Cart) error { return nil }

func (s CheckoutState) validate(cart *model.Cart) error {
	if cart.IsEmpty() {
		return model.NewValidationError("cart", "add something to your cart before checking out")
	}
	if s.AwaitingAddress && s.Delivery.Mode != model.DeliveryDelivery {
		return model.NewValidationError("address", "only delivery orders need an address")
	}
	return nil
}

func (s PaymentState) validate(cart *model.Cart) error {
	if cart.IsEmpty() {
		return model.NewValidationError("cart", "add something to your cart before checking out")
	}
	if !s.Delivery.Mode.IsValid() {
		return model.NewValidationError("delivery", "choose pickup or delivery")
	}
	if s.Delivery.Mode == model.DeliveryDelivery && s.Delivery.Address == "" {
		return model.NewValidationError("address", "delivery orders need an address")
	}
	if s.Payment.Method != "" && !s.Payment.Method.IsValid() {
		return model.NewValidationError("payment", string(s.Payment.Method))
	}
	return nil
}

func (s ConfirmedState) validate(*model.Cart) error {
	if s.OrderID == "" {
		return model.NewValidationError("order", "confirmation requires a persisted order")
	}
	return nil
}

// cloneState copies the mutable parts of a state record.
func cloneState(s State) State {
	if c, ok := s.(CustomizingState); ok {
		c.Draft.Selection = c.Draft.Selection.Clone()
		return c
	}
	return s
}

// View is the JSON shape of a state record.
type View struct {
	Stage           model.Stage       `json:"stage"`
	CategoryID      string            `json:"category_id,omitempty"`
	ProductID       string            `json:"product_id,omitempty"`
	Draft           *Draft            `json:"draft,omitempty"`
	Delivery        *model.Delivery   `json:"delivery,omitempty"`
	AwaitingAddress bool              `json:"awaiting_address,omitempty"`
	Payment         *model.Payment    `json:"payment,omitempty"`
	PromoCode       string            `json:"promo_code,omitempty"`
	OrderID         string            `json:"order_id,omitempty"`
	OrderNumber     string            `json:"order_number,omitempty"`
	OrderStatus     model.OrderStatus `json:"order_status,omitempty"`
}

// ViewOf flattens a state record for display.
func ViewOf(s State) View {
	v := View{Stage: s.Stage()}
	switch st := s.(type) {
	case SelectingState:
		v.CategoryID = st.CategoryID
	case CustomizingState:
		v.ProductID = st.Product.ID
		d := st.Draft
		v.Draft = &d
	case CheckoutState:
		if st.Delivery.Mode != "" {
			d := st.Delivery
			v.Delivery = &d
		}
		v.AwaitingAddress = st.AwaitingAddress
		v.PromoCode = st.PromoCode
	case PaymentState:
		d, p := st.Delivery, st.Payment
		v.Delivery = &d
		if p.Method != "" {
			v.Payment = &p
		}
		v.PromoCode = st.PromoCode
	case ConfirmedState:
		v.OrderID = st.OrderID
		v.OrderNumber = st.OrderNumber
		v.OrderStatus = st.Status
	}
	return v
}
