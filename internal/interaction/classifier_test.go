package interaction

import (
	"reflect"
	"testing"

	"order-engine/internal/catalog"
	"order-engine/internal/model"
)

func TestClassify(t *testing.T) {
	browsing := Snapshot{Stage: model.StageBrowsing, SelectsProducts: true}
	selecting := Snapshot{Stage: model.StageSelecting, SelectsProducts: true}
	reviewing := Snapshot{Stage: model.StageReviewingCart, SelectsProducts: true}
	customizing := Snapshot{Stage: model.StageCustomizing}

	tests := []struct {
		name string
		ev   Event
		snap Snapshot
		want Action
	}{
		{"menu command", Event{Kind: EventButton, ID: "menu"}, customizing, Action{Kind: KindShowMenu}},
		{"checkout command", Event{Kind: EventButton, ID: "checkout"}, browsing, Action{Kind: KindCheckout}},
		{"payment failed", Event{Kind: EventButton, ID: "payment_failed"}, browsing, Action{Kind: KindPaymentFailed}},
		{"category tag", Event{Kind: EventList, ID: "cat_c1"}, browsing,
			Action{Kind: KindSelectCategory, Ref: catalog.CanonicalRef{Kind: catalog.KindCategory, ID: "c1"}}},
		{"product tag", Event{Kind: EventList, ID: "prod_prod001"}, selecting,
			Action{Kind: KindSelectProduct, Ref: catalog.ProductRef("prod001")}},
		{"product tag with underscores", Event{Kind: EventList, ID: "prod_big_pizza"}, selecting,
			Action{Kind: KindSelectProduct, Ref: catalog.ProductRef("big_pizza")}},
		{"presentation", Event{Kind: EventButton, ID: "pres_pres002"}, customizing,
			Action{Kind: KindSelectPresentation, Value: "pres002"}},
		{"size", Event{Kind: EventButton, ID: "size_large"}, customizing, Action{Kind: KindSelectSize, Value: "large"}},
		{"modifier", Event{Kind: EventButton, ID: "mod_crust_opt_001"}, customizing,
			Action{Kind: KindToggleModifier, GroupID: "crust", OptionID: "opt_001"}},
		{"add-on", Event{Kind: EventButton, ID: "addon_bacon"}, customizing, Action{Kind: KindToggleAddOn, Value: "bacon"}},
		{"quantity", Event{Kind: EventButton, ID: "qty_3"}, customizing, Action{Kind: KindSetQuantity, Number: 3}},
		{"remove line", Event{Kind: EventButton, ID: "remove_2"}, Snapshot{Stage: model.StageReviewingCart},
			Action{Kind: KindRemoveItem, Number: 2}},
		{"update line", Event{Kind: EventButton, ID: "line_1_4"}, Snapshot{Stage: model.StageReviewingCart},
			Action{Kind: KindUpdateLine, Number: 1, Quantity: 4}},
		{"update line missing quantity", Event{Kind: EventButton, ID: "line_1"}, Snapshot{Stage: model.StageReviewingCart},
			Action{Kind: KindNone}},
		{"delivery", Event{Kind: EventButton, ID: "delivery_pickup"}, Snapshot{Stage: model.StageCheckout},
			Action{Kind: KindSelectDelivery, Value: "pickup"}},
		{"payment", Event{Kind: EventButton, ID: "pay_card"}, Snapshot{Stage: model.StagePayment},
			Action{Kind: KindSelectPayment, Value: "card"}},
		{"promo code", Event{Kind: EventButton, ID: "promo_SAVE10"}, Snapshot{Stage: model.StagePayment},
			Action{Kind: KindApplyPromo, Value: "SAVE10"}},
		{"legacy composite while selecting", Event{Kind: EventList, ID: "pizzas_2"}, selecting,
			Action{Kind: KindSelectProduct, Ref: catalog.LegacyRef{Category: "pizzas", Index: 2}}},
		{"legacy composite while browsing", Event{Kind: EventList, ID: "ice_cream_1"}, browsing,
			Action{Kind: KindSelectProduct, Ref: catalog.LegacyRef{Category: "ice_cream", Index: 1}}},
		{"legacy composite while reviewing cart", Event{Kind: EventList, ID: "pizzas_1"}, reviewing,
			Action{Kind: KindSelectProduct, Ref: catalog.LegacyRef{Category: "pizzas", Index: 1}}},
		{"legacy composite outside browsing", Event{Kind: EventList, ID: "pizzas_2"}, customizing, Action{Kind: KindNone}},
		{"known tag beats legacy reading", Event{Kind: EventList, ID: "qty_2"}, selecting, Action{Kind: KindSetQuantity, Number: 2}},
		{"malformed tag falls to legacy", Event{Kind: EventList, ID: "mod_4"}, selecting,
			Action{Kind: KindSelectProduct, Ref: catalog.LegacyRef{Category: "mod", Index: 4}}},
		{"unknown delivery mode", Event{Kind: EventButton, ID: "delivery_drone"}, Snapshot{Stage: model.StageCheckout}, Action{Kind: KindNone}},
		{"zero quantity", Event{Kind: EventButton, ID: "qty_0"}, customizing, Action{Kind: KindNone}},
		{"unknown id", Event{Kind: EventButton, ID: "hello"}, browsing, Action{Kind: KindNone}},
		{"empty id", Event{Kind: EventButton}, browsing, Action{Kind: KindNone}},
		{"unknown event kind", Event{Kind: "reaction", ID: "menu"}, browsing, Action{Kind: KindNone}},
		{"typed command", Event{Kind: EventText, Text: "  Cart "}, browsing, Action{Kind: KindViewCart}},
		{"address while awaiting", Event{Kind: EventText, Text: "12 Main St"},
			Snapshot{Stage: model.StageCheckout, AwaitingAddress: true}, Action{Kind: KindProvideAddress, Value: "12 Main St"}},
		{"free text otherwise", Event{Kind: EventText, Text: "12 Main St"}, browsing, Action{Kind: KindNone}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.ev, tt.snap)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Classify() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	events := []Event{
		{Kind: EventList, ID: "pizzas_1"},
		{Kind: EventButton, ID: "mod_crust_opt001"},
		{Kind: EventButton, ID: "confirm_order"},
		{Kind: EventText, Text: "whatever"},
	}
	snaps := []Snapshot{
		{Stage: model.StageBrowsing, SelectsProducts: true},
		{Stage: model.StageSelecting, SelectsProducts: true},
		{Stage: model.StageCustomizing},
		{Stage: model.StagePayment},
	}

	for _, ev := range events {
		for _, snap := range snaps {
			stage := snap.Stage
			first := Classify(ev, snap)
			for i := 0; i < 3; i++ {
				if again := Classify(ev, snap); !reflect.DeepEqual(first, again) {
					t.Errorf("Classify(%+v, %s) changed between calls: %+v then %+v", ev, stage, first, again)
				}
			}
		}
	}
}
