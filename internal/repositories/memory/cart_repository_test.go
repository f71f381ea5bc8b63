package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

func TestCartRepositoryLoadBeforeSaveIsNotFound(t *testing.T) {
	repo := NewCartRepository()
	_, err := repo.Load(context.Background())
	if !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCartRepositoryRoundTrip(t *testing.T) {
	repo := NewCartRepository()
	ctx := context.Background()
	cart := domain.Cart{Items: []domain.CartLine{
		{Product: domain.Product{ID: 2, Title: "Shirt", Price: decimal.RequireFromString("22.30")}, Quantity: 2},
		{Product: domain.Product{ID: 7, Title: "Ring", Price: decimal.RequireFromString("9.99")}, Quantity: 1},
	}}
	if err := repo.Save(ctx, cart); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// mutating the caller's slice must not leak into the stored snapshot
	cart.Items[0].Quantity = 99

	loaded, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Len() != 2 || loaded.Items[0].Product.ID != 2 || loaded.Items[0].Quantity != 2 || loaded.Items[1].Product.ID != 7 {
		t.Fatalf("unexpected loaded cart %#v", loaded)
	}
}
