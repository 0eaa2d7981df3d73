package conversation

import (
	"sort"

	"order-engine/internal/interaction"
	"order-engine/internal/model"
)

type actionSet map[interaction.ActionKind]bool

func accept(kinds ...interaction.ActionKind) actionSet {
	s := make(actionSet, len(kinds))
	for _, k := range kinds {
		s[k] = true
	}
	return s
}

// transitions lists the actions each stage accepts. Anything else is rejected
// with the conversation left as it was.
var transitions = map[model.Stage]actionSet{
	model.StageBrowsing: accept(
		interaction.KindShowMenu,
		interaction.KindSelectCategory,
		interaction.KindSelectProduct,
		interaction.KindViewCart,
		interaction.KindClearCart,
		interaction.KindCheckout,
	),
	model.StageSelecting: accept(
		interaction.KindShowMenu,
		interaction.KindSelectCategory,
		interaction.KindSelectProduct,
		interaction.KindViewCart,
		interaction.KindClearCart,
		interaction.KindContinueShopping,
		interaction.KindCheckout,
	),
	model.StageCustomizing: accept(
		interaction.KindShowMenu,
		interaction.KindSelectPresentation,
		interaction.KindSelectSize,
		interaction.KindToggleModifier,
		interaction.KindToggleAddOn,
		interaction.KindSetQuantity,
		interaction.KindAddToCart,
		interaction.KindViewCart,
		interaction.KindContinueShopping,
	),
	model.StageReviewingCart: accept(
		interaction.KindShowMenu,
		interaction.KindSelectCategory,
		interaction.KindSelectProduct,
		interaction.KindViewCart,
		interaction.KindRemoveItem,
		interaction.KindUpdateLine,
		interaction.KindClearCart,
		interaction.KindContinueShopping,
		interaction.KindCheckout,
	),
	model.StageCheckout: accept(
		interaction.KindSelectDelivery,
		interaction.KindProvideAddress,
		interaction.KindApplyPromo,
		interaction.KindViewCart,
		interaction.KindCancelCheckout,
	),
	model.StagePayment: accept(
		interaction.KindSelectPayment,
		interaction.KindApplyPromo,
		interaction.KindConfirmOrder,
		interaction.KindViewCart,
		interaction.KindCancelCheckout,
		interaction.KindPaymentFailed,
	),
	// Confirmed is terminal; menu starts a new ordering cycle.
	model.StageConfirmed: accept(
		interaction.KindShowMenu,
	),
}

// Accepts reports whether stage accepts the action kind.
func Accepts(stage model.Stage, kind interaction.ActionKind) bool {
	return transitions[stage][kind]
}

// AcceptedActions returns what a stage accepts, for diagnostics.
func AcceptedActions(stage model.Stage) []interaction.ActionKind {
	out := make([]interaction.ActionKind, 0, len(transitions[stage]))
	for k := range transitions[stage] {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// enter validates a state record against the cart before it may be stored.
func enter(next State, cart *model.Cart) (State, error) {
	if err := next.validate(cart); err != nil {
		return nil, err
	}
	return next, nil
}
