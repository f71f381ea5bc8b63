package services

import (
	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
)

var (
	// FreeShippingThreshold is the subtotal that must be exceeded for free shipping.
	FreeShippingThreshold = decimal.RequireFromString("100.00")
	// FlatShippingFee is charged on orders at or below the threshold.
	FlatShippingFee = decimal.RequireFromString("10.00")
	// TaxRate applies to the subtotal only.
	TaxRate = decimal.RequireFromString("0.07")
)

// OrderCalculator derives order totals from cart lines. It holds no state.
// Values are never rounded here; callers round at display time.
type OrderCalculator struct{}

// LineTotal returns price × quantity for one line.
func (OrderCalculator) LineTotal(line domain.CartLine) decimal.Decimal {
	return line.Product.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
}

// Calculate applies the pricing rules to the lines. An empty list still carries the flat shipping fee.
func (c OrderCalculator) Calculate(lines []domain.CartLine) domain.OrderTotals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(c.LineTotal(line))
	}

	shipping := FlatShippingFee
	if subtotal.GreaterThan(FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax := subtotal.Mul(TaxRate)

	return domain.OrderTotals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal.Add(shipping).Add(tax),
	}
}

// Summarize is what display surfaces read. An empty cart shows zero for every figure.
func (c OrderCalculator) Summarize(cart domain.Cart) domain.OrderSummary {
	if cart.IsEmpty() {
		return domain.OrderSummary{
			Totals: domain.OrderTotals{
				Subtotal: decimal.Zero,
				Shipping: decimal.Zero,
				Tax:      decimal.Zero,
				Total:    decimal.Zero,
			},
			Empty: true,
		}
	}
	return domain.OrderSummary{
		Totals:    c.Calculate(cart.Items),
		ItemCount: cart.ItemCount(),
	}
}
