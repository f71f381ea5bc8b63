package memory

import (
	"context"
	"sync"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

// CartRepository keeps the encoded snapshot in process memory. Storing the encoded form keeps
// behaviour identical to the durable backends.
type CartRepository struct {
	mu   sync.RWMutex
	data []byte
}

var _ repositories.CartSnapshotRepository = (*CartRepository)(nil)

// NewCartRepository constructs an empty memory-backed cart repository.
func NewCartRepository() *CartRepository {
	return &CartRepository{}
}

// Load implements repositories.CartSnapshotRepository.
func (r *CartRepository) Load(ctx context.Context) (domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return domain.Cart{}, err
	}
	r.mu.RLock()
	data := r.data
	r.mu.RUnlock()
	if data == nil {
		return domain.Cart{}, repositories.NewNotFoundError("memory cart load")
	}
	cart, err := repositories.DecodeCart(data)
	if err != nil {
		return domain.Cart{}, repositories.NewCorruptError("memory cart load", err)
	}
	return cart, nil
}

// Save implements repositories.CartSnapshotRepository.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := repositories.EncodeCart(cart)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.data = data
	r.mu.Unlock()
	return nil
}
