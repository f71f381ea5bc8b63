package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// FreeShippingNote is shown next to the shipping line.
const FreeShippingNote = "(Orders over $100)"

// FreeShippingLabel replaces the amount when shipping costs nothing.
const FreeShippingLabel = "Free"

// Money renders an amount as a fixed two-digit string without a symbol.
// Example: Money(decimal.RequireFromString("7.5")) => "7.50"
func Money(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// Currency renders a dollar amount rounded to cents.
// Example: Currency(decimal.RequireFromString("1234.5")) => "$1,234.50"
func Currency(amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)
	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")
	major, cents, _ := strings.Cut(fixed, ".")
	out := "$" + thousandSep(major) + "." + cents
	if neg && fixed != "0.00" {
		return "-" + out
	}
	return out
}

// ShippingLabel is "Free" when a non-empty order ships for nothing. An empty cart
// shows flatFee, the charge its first item would carry.
func ShippingLabel(summary domain.OrderSummary, flatFee decimal.Decimal) string {
	switch {
	case summary.Empty:
		return Currency(flatFee)
	case summary.Totals.Shipping.IsZero():
		return FreeShippingLabel
	default:
		return Currency(summary.Totals.Shipping)
	}
}

// ItemCount renders "1 item" or "N items".
func ItemCount(n int) string {
	if n == 1 {
		return "1 item"
	}
	return fmt.Sprintf("%d items", n)
}

// Date formats a confirmation timestamp.
func Date(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006")
}

func thousandSep(digits string) string {
	out := ""
	for i, c := range digits {
		if i != 0 && (len(digits)-i)%3 == 0 {
			out += ","
		}
		out += string(c)
	}
	return out
}
