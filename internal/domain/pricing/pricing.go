// Package pricing computes checkout totals. The engine is a pure function of
// a cart snapshot, a delivery rule, and an optional promo discount: same
// inputs, same totals, every time. Payment amount integrity checks depend on
// that determinism.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/terangacraft/marketplace/internal/domain/cart"
)

// Totals is the full breakdown for a cart snapshot. Amounts are whole FCFA.
type Totals struct {
	Subtotal      decimal.Decimal
	DeliveryFee   decimal.Decimal
	PromoDiscount decimal.Decimal
	Total         decimal.Decimal
}

// Engine holds the delivery-fee rule. Zero-value thresholds are valid: a zero
// FreeDeliveryThreshold makes every order free-delivery.
type Engine struct {
	// DeliveryFee is the flat fee charged below the free-delivery threshold.
	DeliveryFee decimal.Decimal
	// FreeDeliveryThreshold is the subtotal at or above which delivery is free.
	FreeDeliveryThreshold decimal.Decimal
}

// NewEngine creates a pricing engine with the given flat fee and threshold.
func NewEngine(deliveryFee, freeDeliveryThreshold decimal.Decimal) *Engine {
	return &Engine{
		DeliveryFee:           deliveryFee,
		FreeDeliveryThreshold: freeDeliveryThreshold,
	}
}

// Quote computes totals for the given lines and an already-resolved promo
// discount. No side effects. The grand total is floored at zero: a discount
// can never produce a negative charge. All amounts are rounded to whole
// units, FCFA having no subunit.
func (e *Engine) Quote(lines []cart.Line, promoDiscount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Subtotal())
	}

	fee := e.DeliveryFee
	if subtotal.GreaterThanOrEqual(e.FreeDeliveryThreshold) {
		fee = decimal.Zero
	}

	total := subtotal.Add(fee).Sub(promoDiscount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal:      subtotal.Round(0),
		DeliveryFee:   fee.Round(0),
		PromoDiscount: promoDiscount.Round(0),
		Total:         total.Round(0),
	}
}
