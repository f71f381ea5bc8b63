package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

var errCartRepositoryRequired = errors.New("cart store: repository is required")

// ErrCartInvalidInput indicates the caller supplied an invalid product or quantity.
var ErrCartInvalidInput = errors.New("cart store: invalid input")

// ErrCartUnavailable indicates the snapshot could not be loaded or saved.
var ErrCartUnavailable = errors.New("cart store: unavailable")

// ErrCartLocked indicates a checkout submission holds the cart.
var ErrCartLocked = errors.New("cart store: locked by checkout")

// CartStoreDeps wires the persistence and notification collaborators.
type CartStoreDeps struct {
	Repository repositories.CartSnapshotRepository
	Notifier   Notifier
	Calculator OrderCalculator
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

// CartStore owns the single shopping cart. Mutations are serialised and each effective
// mutation is saved before it becomes visible, so memory and storage never diverge.
type CartStore struct {
	mu       sync.RWMutex
	cart     domain.Cart
	repo     repositories.CartSnapshotRepository
	notifier Notifier
	calc     OrderCalculator
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
	holds    int
}

// NewCartStore loads the persisted snapshot. A missing or undecodable snapshot starts
// an empty cart; only backend outages fail construction.
func NewCartStore(ctx context.Context, deps CartStoreDeps) (*CartStore, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}

	store := &CartStore{
		repo:     deps.Repository,
		notifier: notifier,
		calc:     deps.Calculator,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}

	cart, err := deps.Repository.Load(ctx)
	switch {
	case err == nil:
		store.cart = normaliseCart(cart)
	case repositories.IsNotFound(err):
		store.cart = domain.Cart{Items: []domain.CartLine{}}
	case repositories.IsCorrupt(err):
		logger(ctx, "cart.snapshot_discarded", map[string]any{"error": err.Error()})
		store.cart = domain.Cart{Items: []domain.CartLine{}}
	default:
		return nil, fmt.Errorf("%w: load snapshot: %v", ErrCartUnavailable, err)
	}

	logger(ctx, "cart.loaded", map[string]any{
		"lines":     store.cart.Len(),
		"itemCount": store.cart.ItemCount(),
	})
	return store, nil
}

// Snapshot returns a copy of the current cart.
func (s *CartStore) Snapshot() domain.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone()
}

// ItemCount returns the total quantity across all lines.
func (s *CartStore) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.ItemCount()
}

// Totals applies the calculator to the current cart.
func (s *CartStore) Totals() domain.OrderTotals {
	return s.calc.Calculate(s.Snapshot().Items)
}

// Summary returns the display summary of the current cart.
func (s *CartStore) Summary() domain.OrderSummary {
	return s.calc.Summarize(s.Snapshot())
}

// AddToCart merges quantity into the product's line or appends a new line.
func (s *CartStore) AddToCart(ctx context.Context, product domain.Product, quantity int) (domain.Cart, error) {
	if quantity < 1 {
		return domain.Cart{}, fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}
	if err := validateProduct(product); err != nil {
		return domain.Cart{}, err
	}

	cart, err := s.mutate(ctx, "cart.item_added", func(cart *domain.Cart) bool {
		if idx := cart.Find(product.ID); idx >= 0 {
			cart.Items[idx].Quantity += quantity
			return true
		}
		cart.Items = append(cart.Items, domain.CartLine{Product: product, Quantity: quantity})
		return true
	})
	if err != nil {
		return domain.Cart{}, err
	}

	s.notifier.Notify(ctx, domain.Notification{
		Kind:       domain.NotificationItemAdded,
		Title:      "Added to cart",
		Message:    itemAddedMessage(product.Title, quantity),
		ProductID:  product.ID,
		Quantity:   quantity,
		OccurredAt: s.now(),
	})
	return cart, nil
}

// RemoveFromCart drops the product's line. An absent product is a no-op.
func (s *CartStore) RemoveFromCart(ctx context.Context, productID int) (domain.Cart, error) {
	return s.mutate(ctx, "cart.item_removed", func(cart *domain.Cart) bool {
		idx := cart.Find(productID)
		if idx < 0 {
			return false
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		return true
	})
}

// UpdateQuantity sets the product's quantity. Quantities below 1 are rejected; an absent product is a no-op.
func (s *CartStore) UpdateQuantity(ctx context.Context, productID, quantity int) (domain.Cart, error) {
	if quantity < 1 {
		return domain.Cart{}, fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}
	return s.mutate(ctx, "cart.quantity_updated", func(cart *domain.Cart) bool {
		idx := cart.Find(productID)
		if idx < 0 || cart.Items[idx].Quantity == quantity {
			return false
		}
		cart.Items[idx].Quantity = quantity
		return true
	})
}

// ClearCart removes every line.
func (s *CartStore) ClearCart(ctx context.Context) error {
	_, err := s.mutate(ctx, "cart.cleared", clearLines)
	return err
}

// HoldForCheckout rejects mutations with ErrCartLocked until the matching
// ReleaseCheckoutHold, and returns the cart being ordered.
func (s *CartStore) HoldForCheckout() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holds++
	return s.cart.Clone()
}

// ReleaseCheckoutHold drops one hold. When the order was placed the cart is cleared
// before any other mutation can run.
func (s *CartStore) ReleaseCheckoutHold(ctx context.Context, orderPlaced bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holds > 0 {
		s.holds--
	}
	if !orderPlaced {
		return nil
	}
	_, err := s.apply(ctx, "cart.cleared", clearLines)
	return err
}

func clearLines(cart *domain.Cart) bool {
	if cart.IsEmpty() {
		return false
	}
	cart.Items = []domain.CartLine{}
	return true
}

func (s *CartStore) mutate(ctx context.Context, event string, fn func(cart *domain.Cart) bool) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holds > 0 {
		return domain.Cart{}, ErrCartLocked
	}
	return s.apply(ctx, event, fn)
}

// apply runs fn on a copy of the cart and swaps it in only after a successful save. Callers hold s.mu.
func (s *CartStore) apply(ctx context.Context, event string, fn func(cart *domain.Cart) bool) (domain.Cart, error) {
	next := s.cart.Clone()
	if !fn(&next) {
		return s.cart.Clone(), nil
	}

	if err := s.repo.Save(ctx, next); err != nil {
		s.logger(ctx, "cart.persist_failed", map[string]any{
			"operation": event,
			"error":     err.Error(),
		})
		return domain.Cart{}, translateCartRepoError(err)
	}

	s.cart = next
	s.logger(ctx, event, map[string]any{
		"lines":     next.Len(),
		"itemCount": next.ItemCount(),
	})
	return next.Clone(), nil
}

func translateCartRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsConflict() {
		return fmt.Errorf("%w: concurrent write: %v", ErrCartUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
}

func validateProduct(product domain.Product) error {
	if product.ID <= 0 {
		return fmt.Errorf("%w: product id must be positive", ErrCartInvalidInput)
	}
	if product.Price.IsNegative() {
		return fmt.Errorf("%w: product price must not be negative", ErrCartInvalidInput)
	}
	return nil
}

// normaliseCart repairs a loaded snapshot: duplicate lines are merged in first-seen
// order and lines with invalid products or quantities are dropped.
func normaliseCart(cart domain.Cart) domain.Cart {
	out := domain.Cart{Items: make([]domain.CartLine, 0, len(cart.Items))}
	for _, line := range cart.Items {
		if line.Quantity < 1 || validateProduct(line.Product) != nil {
			continue
		}
		if idx := out.Find(line.Product.ID); idx >= 0 {
			out.Items[idx].Quantity += line.Quantity
			continue
		}
		out.Items = append(out.Items, line)
	}
	return out
}

func itemAddedMessage(title string, quantity int) string {
	title = strings.TrimSpace(title)
	if quantity == 1 {
		return title + " added to your cart."
	}
	return fmt.Sprintf("%d x %s added to your cart.", quantity, title)
}
