package services

import (
	"context"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// CartService is the cart surface consumed by HTTP handlers.
type CartService interface {
	Snapshot() domain.Cart
	Summary() domain.OrderSummary
	AddToCart(ctx context.Context, product domain.Product, quantity int) (domain.Cart, error)
	RemoveFromCart(ctx context.Context, productID int) (domain.Cart, error)
	UpdateQuantity(ctx context.Context, productID, quantity int) (domain.Cart, error)
	ClearCart(ctx context.Context) error
}

// CheckoutService is the checkout surface consumed by HTTP handlers.
type CheckoutService interface {
	Begin(ctx context.Context) (domain.CheckoutAttempt, error)
	Submit(ctx context.Context, form domain.CheckoutForm) (domain.CheckoutAttempt, error)
	Cancel(ctx context.Context) (domain.CheckoutAttempt, error)
	Current() (domain.CheckoutAttempt, error)
	Reset(ctx context.Context) error
}

// HealthReporter exposes readiness and build metadata.
type HealthReporter interface {
	HealthReport(ctx context.Context) (domain.HealthReport, error)
	BuildInfo() domain.BuildInfo
}

var (
	_ CartService     = (*CartStore)(nil)
	_ CheckoutCart    = (*CartStore)(nil)
	_ CheckoutService = (*CheckoutWorkflow)(nil)
	_ HealthReporter  = (*SystemService)(nil)
)
