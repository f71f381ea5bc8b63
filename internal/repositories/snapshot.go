package repositories

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// DefaultStorageKey names the persisted cart in every backend.
const DefaultStorageKey = "shopping-cart"

// SnapshotVersion is the envelope version written by EncodeCart.
const SnapshotVersion = 0

// ErrUnsupportedSnapshotVersion is returned when a stored envelope has an unknown version.
var ErrUnsupportedSnapshotVersion = errors.New("cart snapshot: unsupported version")

type snapshotEnvelope struct {
	State   snapshotState `json:"state"`
	Version int           `json:"version"`
}

type snapshotState struct {
	Items []snapshotLine `json:"items"`
}

type snapshotLine struct {
	Product  snapshotProduct `json:"product"`
	Quantity int             `json:"quantity"`
}

type snapshotProduct struct {
	ID          int             `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Rating      snapshotRating  `json:"rating"`
}

type snapshotRating struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

// EncodeCart serialises the cart into the persisted envelope.
func EncodeCart(cart domain.Cart) ([]byte, error) {
	envelope := snapshotEnvelope{
		State:   snapshotState{Items: make([]snapshotLine, 0, len(cart.Items))},
		Version: SnapshotVersion,
	}
	for _, line := range cart.Items {
		envelope.State.Items = append(envelope.State.Items, snapshotLine{
			Product:  productToSnapshot(line.Product),
			Quantity: line.Quantity,
		})
	}
	return json.Marshal(envelope)
}

// DecodeCart parses a persisted envelope. Line order is preserved.
func DecodeCart(data []byte) (domain.Cart, error) {
	var envelope snapshotEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return domain.Cart{}, fmt.Errorf("cart snapshot: decode: %w", err)
	}
	if envelope.Version != SnapshotVersion {
		return domain.Cart{}, fmt.Errorf("%w: %d", ErrUnsupportedSnapshotVersion, envelope.Version)
	}
	cart := domain.Cart{Items: make([]domain.CartLine, 0, len(envelope.State.Items))}
	for _, line := range envelope.State.Items {
		cart.Items = append(cart.Items, domain.CartLine{
			Product:  productFromSnapshot(line.Product),
			Quantity: line.Quantity,
		})
	}
	return cart, nil
}

func productToSnapshot(p domain.Product) snapshotProduct {
	return snapshotProduct{
		ID:          p.ID,
		Title:       p.Title,
		Price:       p.Price,
		Description: p.Description,
		Category:    p.Category,
		Image:       p.Image,
		Rating:      snapshotRating{Rate: p.Rating.Rate, Count: p.Rating.Count},
	}
}

func productFromSnapshot(p snapshotProduct) domain.Product {
	return domain.Product{
		ID:          p.ID,
		Title:       p.Title,
		Price:       p.Price,
		Description: p.Description,
		Category:    p.Category,
		Image:       p.Image,
		Rating:      domain.ProductRating{Rate: p.Rating.Rate, Count: p.Rating.Count},
	}
}
