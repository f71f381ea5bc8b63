package services

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func product(id int, title, price string) domain.Product {
	return domain.Product{ID: id, Title: title, Price: dec(price), Category: "electronics"}
}

type stubSnapshotRepository struct {
	mu       sync.Mutex
	loadFunc func(ctx context.Context) (domain.Cart, error)
	saveFunc func(ctx context.Context, cart domain.Cart) error
	saved    []domain.Cart
}

func (s *stubSnapshotRepository) Load(ctx context.Context) (domain.Cart, error) {
	if s.loadFunc != nil {
		return s.loadFunc(ctx)
	}
	return domain.Cart{}, repositories.NewNotFoundError("stub load")
}

func (s *stubSnapshotRepository) Save(ctx context.Context, cart domain.Cart) error {
	if s.saveFunc != nil {
		if err := s.saveFunc(ctx, cart); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.saved = append(s.saved, cart.Clone())
	s.mu.Unlock()
	return nil
}

func (s *stubSnapshotRepository) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []domain.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, notification domain.Notification) {
	n.mu.Lock()
	n.notifications = append(n.notifications, notification)
	n.mu.Unlock()
}

func (n *recordingNotifier) all() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notification(nil), n.notifications...)
}
