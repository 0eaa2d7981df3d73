// Package interaction turns raw channel events into typed actions.
//
// Classification is pure: the same event and snapshot always produce the same
// action, nothing is mutated, and unknown input yields KindNone rather than an
// error so the caller can pass it through.
package interaction

import (
	"strconv"
	"strings"

	"order-engine/internal/catalog"
	"order-engine/internal/model"
)

// EventKind is the channel element that produced an event.
type EventKind string

const (
	EventButton EventKind = "button"
	EventList   EventKind = "list"
	EventText   EventKind = "text"
)

// Event is an inbound interaction. ID is the machine identifier of the tapped
// element; Text is free text typed by the customer.
type Event struct {
	Kind  EventKind `json:"kind"`
	ID    string    `json:"id,omitempty"`
	Title string    `json:"title,omitempty"`
	Text  string    `json:"text,omitempty"`

	// Sender is filled by the channel layer from the customer's profile.
	Sender model.Customer `json:"sender,omitempty"`
}

// Snapshot is the slice of conversation state classification may look at.
type Snapshot struct {
	Stage           model.Stage
	AwaitingAddress bool

	// SelectsProducts is set when the stage accepts a product selection.
	// Legacy composite ids are only read then, so "pizzas_2" never shadows
	// anything else a stage might mean.
	SelectsProducts bool
}

// ActionKind is what the customer asked for.
type ActionKind string

const (
	KindNone               ActionKind = "none"
	KindShowMenu           ActionKind = "show_menu"
	KindSelectCategory     ActionKind = "select_category"
	KindSelectProduct      ActionKind = "select_product"
	KindSelectPresentation ActionKind = "select_presentation"
	KindSelectSize         ActionKind = "select_size"
	KindToggleModifier     ActionKind = "toggle_modifier"
	KindToggleAddOn        ActionKind = "toggle_add_on"
	KindSetQuantity        ActionKind = "set_quantity"
	KindAddToCart          ActionKind = "add_to_cart"
	KindViewCart           ActionKind = "view_cart"
	KindRemoveItem         ActionKind = "remove_item"
	KindUpdateLine         ActionKind = "update_line"
	KindClearCart          ActionKind = "clear_cart"
	KindContinueShopping   ActionKind = "continue_shopping"
	KindCheckout           ActionKind = "checkout"
	KindSelectDelivery     ActionKind = "select_delivery"
	KindProvideAddress     ActionKind = "provide_address"
	KindSelectPayment      ActionKind = "select_payment"
	KindApplyPromo         ActionKind = "apply_promo"
	KindConfirmOrder       ActionKind = "confirm_order"
	KindCancelCheckout     ActionKind = "cancel_checkout"
	KindPaymentFailed      ActionKind = "payment_failed"
)

// Action is a classified event. Only the fields relevant to Kind are set.
type Action struct {
	Kind ActionKind `json:"kind"`

	// Ref is set for SelectCategory and SelectProduct.
	Ref catalog.Ref `json:"-"`

	// Value carries a presentation id, size name, add-on id, delivery mode,
	// payment method, promo code or address text.
	Value string `json:"value,omitempty"`

	GroupID  string `json:"group_id,omitempty"`
	OptionID string `json:"option_id,omitempty"`

	// Number is a quantity, or a 1-based cart line for RemoveItem and UpdateLine.
	Number int `json:"number,omitempty"`

	// Quantity is the new line quantity for UpdateLine.
	Quantity int `json:"quantity,omitempty"`
}

// RefString renders Ref for logs and JSON.
func (a Action) RefString() string {
	if a.Ref == nil {
		return ""
	}
	return a.Ref.String()
}

var commands = map[string]ActionKind{
	"menu":              KindShowMenu,
	"view_cart":         KindViewCart,
	"add_to_cart":       KindAddToCart,
	"clear_cart":        KindClearCart,
	"continue_shopping": KindContinueShopping,
	"checkout":          KindCheckout,
	"confirm_order":     KindConfirmOrder,
	"cancel_checkout":   KindCancelCheckout,
	"payment_failed":    KindPaymentFailed,
}

// textCommands are typed words accepted in place of button ids.
var textCommands = map[string]ActionKind{
	"menu":     KindShowMenu,
	"cart":     KindViewCart,
	"checkout": KindCheckout,
	"cancel":   KindCancelCheckout,
	"confirm":  KindConfirmOrder,
}

// Classify maps an event to an action. It never fails.
func Classify(ev Event, snap Snapshot) Action {
	switch ev.Kind {
	case EventText:
		return classifyText(ev.Text, snap)
	case EventButton, EventList:
		return classifyID(strings.TrimSpace(ev.ID), snap)
	}
	return Action{Kind: KindNone}
}

func classifyText(text string, snap Snapshot) Action {
	t := strings.TrimSpace(text)
	if kind, ok := textCommands[strings.ToLower(t)]; ok {
		return Action{Kind: kind}
	}
	if snap.Stage == model.StageCheckout && snap.AwaitingAddress && t != "" {
		return Action{Kind: KindProvideAddress, Value: t}
	}
	return Action{Kind: KindNone}
}

func classifyID(id string, snap Snapshot) Action {
	if id == "" {
		return Action{Kind: KindNone}
	}
	if kind, ok := commands[id]; ok {
		return Action{Kind: kind}
	}

	// Known tags win over the legacy composite reading.
	tag, rest, found := strings.Cut(id, "_")
	if found && rest != "" {
		if a, ok := classifyTag(tag, rest); ok {
			return a
		}
	}

	if snap.SelectsProducts {
		if ref, ok := catalog.ParseLegacy(id); ok {
			return Action{Kind: KindSelectProduct, Ref: ref}
		}
	}
	return Action{Kind: KindNone}
}

func classifyTag(tag, rest string) (Action, bool) {
	switch tag {
	case "cat":
		return Action{Kind: KindSelectCategory, Ref: catalog.CanonicalRef{Kind: catalog.KindCategory, ID: rest}}, true
	case "prod":
		return Action{Kind: KindSelectProduct, Ref: catalog.ProductRef(rest)}, true
	case "pres":
		return Action{Kind: KindSelectPresentation, Value: rest}, true
	case "size":
		return Action{Kind: KindSelectSize, Value: rest}, true
	case "addon":
		return Action{Kind: KindToggleAddOn, Value: rest}, true
	case "mod":
		group, option, ok := strings.Cut(rest, "_")
		if !ok || group == "" || option == "" {
			return Action{}, false
		}
		return Action{Kind: KindToggleModifier, GroupID: group, OptionID: option}, true
	case "qty":
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return Action{}, false
		}
		return Action{Kind: KindSetQuantity, Number: n}, true
	case "remove":
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return Action{}, false
		}
		return Action{Kind: KindRemoveItem, Number: n}, true
	case "line":
		// line_{position}_{quantity}
		pos, qty, ok := strings.Cut(rest, "_")
		if !ok {
			return Action{}, false
		}
		n, err1 := strconv.Atoi(pos)
		q, err2 := strconv.Atoi(qty)
		if err1 != nil || err2 != nil || n < 1 || q < 1 {
			return Action{}, false
		}
		return Action{Kind: KindUpdateLine, Number: n, Quantity: q}, true
	case "delivery":
		mode := model.DeliveryMode(rest)
		if !mode.IsValid() {
			return Action{}, false
		}
		return Action{Kind: KindSelectDelivery, Value: rest}, true
	case "pay":
		method := model.PaymentMethod(rest)
		if !method.IsValid() {
			return Action{}, false
		}
		return Action{Kind: KindSelectPayment, Value: rest}, true
	case "promo":
		return Action{Kind: KindApplyPromo, Value: rest}, true
	}
	return Action{}, false
}
