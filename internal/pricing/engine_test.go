package pricing

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"order-engine/internal/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func remotePizza() model.Product {
	return model.Product{
		ID: "prod001", Name: "Pizza", Available: true,
		Mode: model.ModePresentation, Source: model.SourceRemote,
		Presentations: []model.Presentation{
			{ID: "pres001", Name: "Small", Price: d("11.99")},
			{ID: "pres002", Name: "Large", Price: d("15.99")},
		},
		ModifierGroups: []model.ModifierGroup{
			{ID: "crust", Name: "Crust", Min: 0, Max: 1, Options: []model.ModifierOption{
				{ID: "opt001", Name: "Stuffed", Delta: d("2.00")},
				{ID: "opt002", Name: "Thin", Delta: d("0")},
				{ID: "opt003", Name: "Gluten free", Delta: d("3.00")},
			}},
			{ID: "toppings", Name: "Toppings", Min: 0, Max: 3, Options: []model.ModifierOption{
				{ID: "basil", Name: "Basil", Delta: d("0.50")},
				{ID: "ham", Name: "Ham", Delta: d("1.25")},
			}},
		},
	}
}

func localBurger() model.Product {
	return model.Product{
		ID: "loc-classic-burger", Name: "Classic Burger", Available: true,
		Mode: model.ModeMultiplier, Source: model.SourceLocal,
		BasePrice: d("9.50"),
		Sizes:     []model.Size{{Name: "single", Factor: d("1")}, {Name: "double", Factor: d("1.6")}},
		AddOns:    []model.AddOn{{ID: "bacon", Name: "Bacon", Price: d("2.00")}, {ID: "cheddar", Name: "Cheddar", Price: d("1.00")}},
	}
}

func TestPresentationLineTotal(t *testing.T) {
	e := New(50)
	item, err := e.PriceItem(remotePizza(), 2, model.Selection{
		PresentationID: "pres002",
		Modifiers:      []model.ModifierChoice{{GroupID: "crust", OptionID: "opt001"}},
	})
	if err != nil {
		t.Fatalf("PriceItem: %v", err)
	}
	if !item.LineTotal.Equal(d("35.98")) {
		t.Errorf("LineTotal = %s, want 35.98", item.LineTotal)
	}
	if !item.UnitPrice.Equal(d("17.99")) {
		t.Errorf("UnitPrice = %s, want 17.99", item.UnitPrice)
	}
	if !item.ModifierTotal.Equal(d("2.00")) {
		t.Errorf("ModifierTotal = %s, want 2.00", item.ModifierTotal)
	}
	if item.Source != model.SourceRemote || item.Mode != model.ModePresentation {
		t.Errorf("source/mode = %s/%s", item.Source, item.Mode)
	}
}

func TestMultiplierLineTotal(t *testing.T) {
	e := New(50)
	tests := []struct {
		name string
		sel  model.Selection
		qty  int
		want string
	}{
		{"single no add-ons", model.Selection{Size: "single"}, 1, "9.50"},
		{"double with bacon", model.Selection{Size: "double", AddOns: []string{"bacon"}}, 1, "17.20"},
		{"double with both, three", model.Selection{Size: "double", AddOns: []string{"bacon", "cheddar"}}, 3, "54.60"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := e.PriceItem(localBurger(), tt.qty, tt.sel)
			if err != nil {
				t.Fatalf("PriceItem: %v", err)
			}
			if !item.LineTotal.Equal(d(tt.want)) {
				t.Errorf("LineTotal = %s, want %s", item.LineTotal, tt.want)
			}
		})
	}
}

func TestMultiplierDefaultsSingleSize(t *testing.T) {
	p := localBurger()
	p.Sizes = p.Sizes[:1]
	item, err := New(50).PriceItem(p, 2, model.Selection{})
	if err != nil {
		t.Fatalf("PriceItem: %v", err)
	}
	if item.Selection.Size != "single" {
		t.Errorf("Size = %q, want single", item.Selection.Size)
	}
	if !item.LineTotal.Equal(d("19.00")) {
		t.Errorf("LineTotal = %s, want 19.00", item.LineTotal)
	}
}

func TestPriceItemValidation(t *testing.T) {
	unavailable := remotePizza()
	unavailable.Available = false

	tests := []struct {
		name    string
		product model.Product
		qty     int
		sel     model.Selection
		wantMsg string
	}{
		{
			name:    "group max exceeded",
			product: remotePizza(),
			qty:     1,
			sel: model.Selection{PresentationID: "pres001", Modifiers: []model.ModifierChoice{
				{GroupID: "crust", OptionID: "opt001"},
				{GroupID: "crust", OptionID: "opt002"},
				{GroupID: "crust", OptionID: "opt003"},
			}},
			wantMsg: "at most 1 from Crust",
		},
		{
			name:    "missing presentation",
			product: remotePizza(),
			qty:     1,
			sel:     model.Selection{},
			wantMsg: "choose a presentation",
		},
		{
			name:    "unknown presentation",
			product: remotePizza(),
			qty:     1,
			sel:     model.Selection{PresentationID: "pres999"},
			wantMsg: "unknown presentation",
		},
		{
			name:    "size on presentation product",
			product: remotePizza(),
			qty:     1,
			sel:     model.Selection{PresentationID: "pres001", Size: "large"},
			wantMsg: "do not apply",
		},
		{
			name:    "unknown modifier option",
			product: remotePizza(),
			qty:     1,
			sel:     model.Selection{PresentationID: "pres001", Modifiers: []model.ModifierChoice{{GroupID: "crust", OptionID: "nope"}}},
			wantMsg: "unknown option",
		},
		{
			name:    "zero quantity",
			product: remotePizza(),
			qty:     0,
			sel:     model.Selection{PresentationID: "pres001"},
			wantMsg: "at least 1",
		},
		{
			name:    "quantity over bound",
			product: remotePizza(),
			qty:     51,
			sel:     model.Selection{PresentationID: "pres001"},
			wantMsg: "at most 50",
		},
		{
			name:    "unavailable",
			product: unavailable,
			qty:     1,
			sel:     model.Selection{PresentationID: "pres001"},
			wantMsg: "not available",
		},
		{
			name:    "size required",
			product: localBurger(),
			qty:     1,
			sel:     model.Selection{},
			wantMsg: "choose a size",
		},
		{
			name:    "modifier on multiplier product",
			product: localBurger(),
			qty:     1,
			sel:     model.Selection{Size: "single", Modifiers: []model.ModifierChoice{{GroupID: "crust", OptionID: "opt001"}}},
			wantMsg: "do not apply",
		},
		{
			name:    "unknown add-on",
			product: localBurger(),
			qty:     1,
			sel:     model.Selection{Size: "single", AddOns: []string{"truffle"}},
			wantMsg: "unknown add-on",
		},
	}

	e := New(50)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := e.PriceItem(tt.product, tt.qty, tt.sel)
			if !errors.Is(err, model.ErrValidation) {
				t.Fatalf("error = %v, want ErrValidation", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %v, want message containing %q", err, tt.wantMsg)
			}
			if !item.LineTotal.IsZero() {
				t.Errorf("LineTotal = %s, want nothing computed", item.LineTotal)
			}
		})
	}
}

func TestMinimumGroupSelection(t *testing.T) {
	p := remotePizza()
	p.ModifierGroups[0].Min = 1
	_, err := New(50).PriceItem(p, 1, model.Selection{PresentationID: "pres001"})
	if !errors.Is(err, model.ErrValidation) || !strings.Contains(err.Error(), "at least 1 from Crust") {
		t.Errorf("error = %v, want minimum selection failure", err)
	}
}

func TestCartTotalsThroughMutations(t *testing.T) {
	e := New(50)
	cart := model.NewCart("acme")

	pizza, _ := e.PriceItem(remotePizza(), 2, model.Selection{
		PresentationID: "pres002",
		Modifiers:      []model.ModifierChoice{{GroupID: "crust", OptionID: "opt001"}},
	})
	burger, _ := e.PriceItem(localBurger(), 1, model.Selection{Size: "single", AddOns: []string{"cheddar"}})
	cart.Add(pizza)
	cart.Add(burger)
	if got := CartSubtotal(cart); !got.Equal(d("46.48")) {
		t.Fatalf("subtotal = %s, want 46.48", got)
	}

	// Quantity update keeps the selection and the line id
	id := cart.Items[1].ID
	if err := e.UpdateQuantity(cart, 1, 3, localBurger()); err != nil {
		t.Fatalf("UpdateQuantity: %v", err)
	}
	if cart.Items[1].ID != id {
		t.Error("UpdateQuantity changed the line id")
	}
	if got := CartSubtotal(cart); !got.Equal(d("67.48")) {
		t.Errorf("subtotal after update = %s, want 67.48", got)
	}

	// Invalid update leaves the cart untouched
	if err := e.UpdateQuantity(cart, 1, 0, localBurger()); !errors.Is(err, model.ErrValidation) {
		t.Errorf("UpdateQuantity(0) error = %v, want ErrValidation", err)
	}
	if got := CartSubtotal(cart); !got.Equal(d("67.48")) {
		t.Errorf("subtotal after rejected update = %s, want 67.48", got)
	}

	if err := cart.Remove(0); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := CartSubtotal(cart); !got.Equal(d("31.50")) {
		t.Errorf("subtotal after remove = %s, want 31.50", got)
	}
}

func TestReprice(t *testing.T) {
	e := New(50)
	cart := model.NewCart("acme")
	item, _ := e.PriceItem(remotePizza(), 1, model.Selection{PresentationID: "pres001"})
	cart.Add(item)

	cheaper := remotePizza()
	cheaper.Presentations[0].Price = d("9.99")
	if err := e.Reprice(cart, func(model.CartItem) (model.Product, error) { return cheaper, nil }); err != nil {
		t.Fatalf("Reprice: %v", err)
	}
	if !cart.Subtotal().Equal(d("9.99")) {
		t.Errorf("subtotal = %s, want 9.99", cart.Subtotal())
	}

	gone := remotePizza()
	gone.Presentations = nil
	if err := e.Reprice(cart, func(model.CartItem) (model.Product, error) { return gone, nil }); err == nil {
		t.Error("Reprice with missing presentation = nil error")
	}
	if !cart.Subtotal().Equal(d("9.99")) {
		t.Errorf("subtotal after failed reprice = %s, want unchanged 9.99", cart.Subtotal())
	}
}

func TestOrderTotals(t *testing.T) {
	cart := model.NewCart("acme")
	cart.Add(model.CartItem{Quantity: 1, LineTotal: d("20.00")})

	tests := []struct {
		name string
		in   TotalsInput
		want model.Totals
	}{
		{
			name: "pickup no tax",
			in:   TotalsInput{Delivery: model.DeliveryPickup, DeliveryFee: d("3.50")},
			want: model.Totals{Subtotal: d("20"), Total: d("20")},
		},
		{
			name: "delivery with tax",
			in:   TotalsInput{Delivery: model.DeliveryDelivery, DeliveryFee: d("3.50"), TaxRate: d("0.08")},
			want: model.Totals{Subtotal: d("20"), Tax: d("1.60"), DeliveryFee: d("3.50"), Total: d("25.10")},
		},
		{
			name: "discount then tax, rounded half up",
			in:   TotalsInput{Delivery: model.DeliveryPickup, TaxRate: d("0.0825"), DiscountPercent: d("15")},
			want: model.Totals{Subtotal: d("20"), Discount: d("3.00"), Tax: d("1.40"), Total: d("18.40")},
		},
		{
			name: "full discount never negative",
			in:   TotalsInput{Delivery: model.DeliveryPickup, DiscountPercent: d("150")},
			want: model.Totals{Subtotal: d("20"), Discount: d("20"), Total: d("0")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OrderTotals(cart, tt.in)
			check := func(field string, got, want decimal.Decimal) {
				if !got.Equal(want) {
					t.Errorf("%s = %s, want %s", field, got, want)
				}
			}
			check("Subtotal", got.Subtotal, tt.want.Subtotal)
			check("Tax", got.Tax, tt.want.Tax)
			check("DeliveryFee", got.DeliveryFee, tt.want.DeliveryFee)
			check("Discount", got.Discount, tt.want.Discount)
			check("Total", got.Total, tt.want.Total)
		})
	}
}
