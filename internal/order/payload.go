package order

import (
	"fmt"
	"strings"

	"order-engine/internal/adapter"
	"order-engine/internal/model"
)

var deliveryTypes = map[model.DeliveryMode]string{
	model.DeliveryPickup:   "PICKUP",
	model.DeliveryDelivery: "DELIVERY",
}

var paymentMethods = map[model.PaymentMethod]string{
	model.PaymentCash:     "CASH",
	model.PaymentCard:     "CARD",
	model.PaymentTransfer: "TRANSFER",
}

// remoteStatuses maps the remote status vocabulary to local statuses.
var remoteStatuses = map[string]model.OrderStatus{
	"PENDING":    model.StatusSubmitted,
	"ACCEPTED":   model.StatusConfirmed,
	"CONFIRMED":  model.StatusConfirmed,
	"PREPARING":  model.StatusPreparing,
	"SHIPPED":    model.StatusDispatched,
	"ON_THE_WAY": model.StatusDispatched,
	"DELIVERED":  model.StatusDelivered,
	"CANCELLED":  model.StatusCancelled,
	"REJECTED":   model.StatusCancelled,
}

// MapRemoteStatus converts a remote status. Unknown values map to submitted,
// since the remote did accept the order.
func MapRemoteStatus(remote string) model.OrderStatus {
	if s, ok := remoteStatuses[strings.ToUpper(strings.TrimSpace(remote))]; ok {
		return s
	}
	return model.StatusSubmitted
}

// BuildPayload converts a persisted order into a remote submission.
// The local id doubles as the idempotency key.
func BuildPayload(o *model.Order) (*adapter.OrderPayload, error) {
	deliveryType, ok := deliveryTypes[o.Delivery.Mode]
	if !ok {
		return nil, model.NewValidationError("delivery", fmt.Sprintf("unknown mode %q", o.Delivery.Mode))
	}
	payment, ok := paymentMethods[o.Payment.Method]
	if !ok {
		return nil, model.NewValidationError("payment", fmt.Sprintf("unknown method %q", o.Payment.Method))
	}

	p := &adapter.OrderPayload{
		ExternalID:    o.ID,
		Customer:      adapter.PayloadCustomer{Name: o.Customer.Name, Phone: o.Customer.Phone},
		DeliveryType:  deliveryType,
		PaymentMethod: payment,
		PromoCode:     o.PromoCode,
		Items:         make([]adapter.OrderLine, 0, len(o.Cart.Items)),
		ExpectedTotal: o.Totals.Total,
	}
	if o.Delivery.Mode == model.DeliveryDelivery {
		p.Address = o.Delivery.Address
	}

	for i, item := range o.Cart.Items {
		if item.Mode != model.ModePresentation || item.Selection.PresentationID == "" {
			return nil, model.NewValidationError("item", fmt.Sprintf("line %d has no remote presentation", i+1))
		}
		line := adapter.OrderLine{
			ProductID:      item.ProductID,
			PresentationID: item.Selection.PresentationID,
			Quantity:       item.Quantity,
		}
		for _, m := range item.Selection.Modifiers {
			line.Modifiers = append(line.Modifiers, adapter.OrderModifier{GroupID: m.GroupID, OptionID: m.OptionID})
		}
		p.Items = append(p.Items, line)
	}
	return p, nil
}
