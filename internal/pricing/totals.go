package pricing

import (
	"github.com/shopspring/decimal"

	"order-engine/internal/model"
)

// TotalsInput carries the tenant and checkout parameters for order totals.
type TotalsInput struct {
	TaxRate         decimal.Decimal // fraction, e.g. 0.08
	DeliveryFee     decimal.Decimal
	Delivery        model.DeliveryMode
	DiscountPercent decimal.Decimal // 0-100
}

// CartSubtotal is the sum of line totals.
func CartSubtotal(cart *model.Cart) decimal.Decimal {
	if cart == nil {
		return decimal.Zero
	}
	return cart.Subtotal()
}

// OrderTotals computes the order breakdown, each component rounded half-up to cents.
// The discount applies to the subtotal, tax applies to the discounted subtotal,
// and the delivery fee applies only to delivery orders. The total is never negative.
func OrderTotals(cart *model.Cart, in TotalsInput) model.Totals {
	subtotal := model.RoundMoney(CartSubtotal(cart))

	discount := decimal.Zero
	if in.DiscountPercent.IsPositive() {
		pct := decimal.Min(in.DiscountPercent, decimal.NewFromInt(100))
		discount = model.RoundMoney(subtotal.Mul(pct).Div(decimal.NewFromInt(100)))
	}

	tax := decimal.Zero
	if in.TaxRate.IsPositive() {
		tax = model.RoundMoney(subtotal.Sub(discount).Mul(in.TaxRate))
	}

	fee := decimal.Zero
	if in.Delivery == model.DeliveryDelivery && in.DeliveryFee.IsPositive() {
		fee = model.RoundMoney(in.DeliveryFee)
	}

	total := subtotal.Add(tax).Add(fee).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return model.Totals{
		Subtotal:    subtotal,
		Tax:         tax,
		DeliveryFee: fee,
		Discount:    discount,
		Total:       total,
	}
}
