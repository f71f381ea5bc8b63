package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const defaultCollection = "carts"

// ClientProvider hands out the shared Firestore client.
type ClientProvider interface {
	Client(ctx context.Context) (*firestore.Client, error)
}

// CartRepository persists the cart snapshot as one document at {collection}/{storageKey}.
type CartRepository struct {
	provider   ClientProvider
	collection string
	docID      string
	clock      func() time.Time
}

var _ repositories.CartSnapshotRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider ClientProvider, collection, storageKey string) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("firestore cart repository: provider is required")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = defaultCollection
	}
	storageKey = strings.TrimSpace(storageKey)
	if storageKey == "" {
		storageKey = repositories.DefaultStorageKey
	}
	return &CartRepository{
		provider:   provider,
		collection: collection,
		docID:      storageKey,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Load implements repositories.CartSnapshotRepository.
func (r *CartRepository) Load(ctx context.Context) (domain.Cart, error) {
	ref, err := r.docRef(ctx)
	if err != nil {
		return domain.Cart{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("firestore cart load", err)
	}
	var doc cartDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Cart{}, repositories.NewCorruptError("firestore cart load", err)
	}
	cart, err := doc.toDomain()
	if err != nil {
		return domain.Cart{}, repositories.NewCorruptError("firestore cart load", err)
	}
	return cart, nil
}

// Save implements repositories.CartSnapshotRepository. The whole document is replaced.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	ref, err := r.docRef(ctx)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, newCartDocument(cart, r.clock())); err != nil {
		return pfirestore.WrapError("firestore cart save", err)
	}
	return nil
}

// Ping reads the snapshot document to confirm Firestore is reachable.
func (r *CartRepository) Ping(ctx context.Context) error {
	_, err := r.Load(ctx)
	if err == nil || repositories.IsNotFound(err) {
		return nil
	}
	return err
}

func (r *CartRepository) docRef(ctx context.Context) (*firestore.DocumentRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, repositories.NewUnavailableError("firestore cart client", err)
	}
	return client.Collection(r.collection).Doc(r.docID), nil
}

type cartDocument struct {
	State     cartState `firestore:"state"`
	Version   int       `firestore:"version"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type cartState struct {
	Items []cartLineDocument `firestore:"items"`
}

type cartLineDocument struct {
	Product  productDocument `firestore:"product"`
	Quantity int             `firestore:"quantity"`
}

type productDocument struct {
	ID          int            `firestore:"id"`
	Title       string         `firestore:"title"`
	Price       string         `firestore:"price"`
	Description string         `firestore:"description"`
	Category    string         `firestore:"category"`
	Image       string         `firestore:"image"`
	Rating      ratingDocument `firestore:"rating"`
}

type ratingDocument struct {
	Rate  float64 `firestore:"rate"`
	Count int     `firestore:"count"`
}

func newCartDocument(cart domain.Cart, now time.Time) cartDocument {
	doc := cartDocument{
		State:     cartState{Items: make([]cartLineDocument, 0, len(cart.Items))},
		Version:   repositories.SnapshotVersion,
		UpdatedAt: now,
	}
	for _, line := range cart.Items {
		p := line.Product
		doc.State.Items = append(doc.State.Items, cartLineDocument{
			Product: productDocument{
				ID:          p.ID,
				Title:       p.Title,
				Price:       p.Price.String(),
				Description: p.Description,
				Category:    p.Category,
				Image:       p.Image,
				Rating:      ratingDocument{Rate: p.Rating.Rate, Count: p.Rating.Count},
			},
			Quantity: line.Quantity,
		})
	}
	return doc
}

func (d cartDocument) toDomain() (domain.Cart, error) {
	if d.Version != repositories.SnapshotVersion {
		return domain.Cart{}, fmt.Errorf("%w: %d", repositories.ErrUnsupportedSnapshotVersion, d.Version)
	}
	cart := domain.Cart{Items: make([]domain.CartLine, 0, len(d.State.Items))}
	for _, line := range d.State.Items {
		price, err := decimal.NewFromString(line.Product.Price)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("product %d price: %w", line.Product.ID, err)
		}
		cart.Items = append(cart.Items, domain.CartLine{
			Product: domain.Product{
				ID:          line.Product.ID,
				Title:       line.Product.Title,
				Price:       price,
				Description: line.Product.Description,
				Category:    line.Product.Category,
				Image:       line.Product.Image,
				Rating:      domain.ProductRating{Rate: line.Product.Rating.Rate, Count: line.Product.Rating.Count},
			},
			Quantity: line.Quantity,
		})
	}
	return cart, nil
}
