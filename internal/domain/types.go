package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog record. The catalog owns it; the cart only keeps copies.
type Product struct {
	ID          int
	Title       string
	Price       decimal.Decimal
	Description string
	Category    string
	Image       string
	Rating      ProductRating
}

// ProductRating summarises customer reviews for a product.
type ProductRating struct {
	Rate  float64
	Count int
}

// CartLine pairs a product with the quantity held in the cart.
type CartLine struct {
	Product  Product
	Quantity int
}

// Cart is the ordered list of lines. Order follows insertion and never affects totals.
type Cart struct {
	Items []CartLine
}

// Len returns the number of distinct lines.
func (c Cart) Len() int {
	return len(c.Items)
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// ItemCount sums quantities across all lines.
func (c Cart) ItemCount() int {
	total := 0
	for _, line := range c.Items {
		total += line.Quantity
	}
	return total
}

// Find returns the index of the line for productID or -1.
func (c Cart) Find(productID int) int {
	for i, line := range c.Items {
		if line.Product.ID == productID {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no backing array with c.
func (c Cart) Clone() Cart {
	if len(c.Items) == 0 {
		return Cart{Items: []CartLine{}}
	}
	items := make([]CartLine, len(c.Items))
	copy(items, c.Items)
	return Cart{Items: items}
}

// OrderTotals are derived from a cart on every read and never stored on their own.
type OrderTotals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Rounded returns the totals rounded to cents for display.
func (t OrderTotals) Rounded() OrderTotals {
	return OrderTotals{
		Subtotal: t.Subtotal.Round(2),
		Shipping: t.Shipping.Round(2),
		Tax:      t.Tax.Round(2),
		Total:    t.Total.Round(2),
	}
}

// OrderSummary is the display-facing view of a cart's totals.
type OrderSummary struct {
	Totals    OrderTotals
	Empty     bool
	ItemCount int
}

// CheckoutState enumerates the checkout attempt lifecycle.
type CheckoutState string

const (
	// CheckoutStateEditing collects shipping and payment details.
	CheckoutStateEditing CheckoutState = "editing"
	// CheckoutStateSubmitting marks an in-flight order placement.
	CheckoutStateSubmitting CheckoutState = "submitting"
	// CheckoutStateConfirmed is terminal for an attempt.
	CheckoutStateConfirmed CheckoutState = "confirmed"
)

// CheckoutForm holds the shipping and payment fields collected while editing.
type CheckoutForm struct {
	FirstName  string
	LastName   string
	Email      string
	Address    string
	City       string
	State      string
	Zip        string
	Country    string
	CardName   string
	CardNumber string
	ExpDate    string
	CVV        string
}

// DefaultCheckoutCountry is preselected on a fresh checkout form.
const DefaultCheckoutCountry = "United States"

// CheckoutCountries lists the countries accepted for shipping.
var CheckoutCountries = []string{"United States", "Canada", "United Kingdom", "Australia"}

// OrderConfirmation is captured when an attempt reaches the confirmed state.
type OrderConfirmation struct {
	OrderNumber string
	Lines       []CartLine
	Summary     OrderSummary
	ConfirmedAt time.Time
}

// CheckoutAttempt is a snapshot of the workflow for one checkout.
type CheckoutAttempt struct {
	ID           string
	State        CheckoutState
	Form         CheckoutForm
	Summary      OrderSummary
	Confirmation *OrderConfirmation
	FormHints    map[string]string
	LastError    string
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// NotificationKind identifies a user-facing notification.
type NotificationKind string

const (
	// NotificationItemAdded acknowledges an add-to-cart action.
	NotificationItemAdded NotificationKind = "item_added"
	// NotificationOrderConfirmed announces a placed order.
	NotificationOrderConfirmed NotificationKind = "order_confirmed"
)

// Notification is a fire-and-forget message for the display layer.
type Notification struct {
	Kind        NotificationKind
	Title       string
	Message     string
	ProductID   int
	Quantity    int
	OrderNumber string
	OccurredAt  time.Time
}
