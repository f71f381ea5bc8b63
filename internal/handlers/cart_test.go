package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
	"github.com/hanko-field/storefront/internal/repositories/memory"
	"github.com/hanko-field/storefront/internal/services"
)

type failingCartRepository struct{}

func (failingCartRepository) Load(context.Context) (domain.Cart, error) {
	return domain.Cart{}, repositories.NewNotFoundError("empty")
}

func (failingCartRepository) Save(context.Context, domain.Cart) error {
	return errors.New("disk full")
}

func newCartRouter(t *testing.T, repo repositories.CartSnapshotRepository, cat ProductCatalog) http.Handler {
	t.Helper()
	store, err := services.NewCartStore(context.Background(), services.CartStoreDeps{Repository: repo})
	if err != nil {
		t.Fatalf("NewCartStore: %v", err)
	}
	return NewRouter(WithCartRoutes(func(r chi.Router) {
		NewCartHandlers(store, cat).Routes(r)
	}))
}

func TestCartAddItemDefaultsQuantity(t *testing.T) {
	cat := &stubCatalog{products: testProducts()}
	router := newCartRouter(t, memory.NewCartRepository(), cat)

	rr := doRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":2}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = doRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":2,"quantity":2}`)
	body := decodeBody(t, rr)

	items := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one merged line, got %d", len(items))
	}
	line := items[0].(map[string]any)
	if line["quantity"] != float64(3) || line["lineTotal"] != "66.90" {
		t.Fatalf("unexpected line %v", line)
	}
	summary := body["summary"].(map[string]any)
	if summary["subtotal"] != "66.90" || summary["shipping"] != "10.00" || summary["tax"] != "4.68" || summary["total"] != "81.58" {
		t.Fatalf("unexpected summary %v", summary)
	}
	if summary["shippingLabel"] != "$10.00" || summary["freeShippingNote"] != "(Orders over $100)" {
		t.Fatalf("unexpected shipping display %v", summary)
	}
	if cat.fetchCalls != 2 {
		t.Fatalf("expected catalog lookups per add, got %d", cat.fetchCalls)
	}
}

func TestCartFreeShippingLabel(t *testing.T) {
	router := newCartRouter(t, memory.NewCartRepository(), &stubCatalog{products: testProducts()})
	doRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":1}`)

	body := decodeBody(t, doRequest(t, router, http.MethodGet, "/api/v1/cart/totals", ""))
	summary := body["summary"].(map[string]any)
	if summary["shipping"] != "0.00" || summary["shippingLabel"] != "Free" {
		t.Fatalf("expected free shipping over 100, got %v", summary)
	}
	if summary["total"] != "117.65" {
		t.Fatalf("unexpected total %v", summary["total"])
	}
}

func TestCartUpdateRemoveAndClear(t *testing.T) {
	router := newCartRouter(t, memory.NewCartRepository(), &stubCatalog{products: testProducts()})
	doRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":2}`)
	doRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":4}`)

	body := decodeBody(t, doRequest(t, router, http.MethodPatch, "/api/v1/cart/items/4", `{"quantity":5}`))
	if body["itemCount"] != float64(6) {
		t.Fatalf("expected 6 items after update, got %v", body["itemCount"])
	}

	assertErrorCode(t, doRequest(t, router, http.MethodPatch, "/api/v1/cart/items/4", `{"quantity":0}`), http.StatusBadRequest, "invalid_request")
	assertErrorCode(t, doRequest(t, router, http.MethodPatch, "/api/v1/cart/items/4", `{}`), http.StatusBadRequest, "invalid_request")

	body = decodeBody(t, doRequest(t, router, http.MethodDelete, "/api/v1/cart/items/99", ""))
	if body["itemCount"] != float64(6) {
		t.Fatalf("removing an absent product must not change the cart, got %v", body["itemCount"])
	}
	body = decodeBody(t, doRequest(t, router, http.MethodDelete, "/api/v1/cart/items/2", ""))
	if len(body["items"].([]any)) != 1 {
		t.Fatalf("expected one line after remove, got %v", body["items"])
	}

	rr := doRequest(t, router, http.MethodDelete, "/api/v1/cart", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	body = decodeBody(t, doRequest(t, router, http.MethodGet, "/api/v1/cart", ""))
	summary := body["summary"].(map[string]any)
	if summary["empty"] != true || summary["total"] != "0.00" {
		t.Fatalf("expected empty zero summary, got %v", summary)
	}
}

func TestCartAddItemErrors(t *testing.T) {
	router := newCartRouter(t, memory.NewCartRepository(), &stubCatalog{products: testProducts()})

	assertErrorCode(t, doRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":99}`), http.StatusNotFound, "product_not_found")
	assertErrorCode(t, doRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":1,"quantity":-1}`), http.StatusBadRequest, "invalid_request")
	assertErrorCode(t, doRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":1,"extra":true}`), http.StatusBadRequest, "invalid_request")
	assertErrorCode(t, doRequest(t, router, http.MethodPost, "/api/v1/cart/items", ``), http.StatusBadRequest, "invalid_request")
}

func TestCartPersistFailureIsUnavailable(t *testing.T) {
	router := newCartRouter(t, failingCartRepository{}, &stubCatalog{products: testProducts()})

	assertErrorCode(t, doRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":1}`), http.StatusServiceUnavailable, "cart_service_unavailable")

	body := decodeBody(t, doRequest(t, router, http.MethodGet, "/api/v1/cart", ""))
	if body["itemCount"] != float64(0) {
		t.Fatalf("failed save must leave the cart unchanged, got %v", body["itemCount"])
	}
}

func TestCartMutationsConflictDuringCheckout(t *testing.T) {
	ctx := context.Background()
	store, err := services.NewCartStore(ctx, services.CartStoreDeps{Repository: memory.NewCartRepository()})
	if err != nil {
		t.Fatalf("NewCartStore: %v", err)
	}
	router := NewRouter(WithCartRoutes(NewCartHandlers(store, &stubCatalog{products: testProducts()}).Routes))

	if rr := doRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":1}`); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	store.HoldForCheckout()

	assertErrorCode(t, doRequest(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":2}`), http.StatusConflict, "cart_locked")
	assertErrorCode(t, doRequest(t, router, http.MethodPatch, "/api/v1/cart/items/1", `{"quantity":4}`), http.StatusConflict, "cart_locked")
	assertErrorCode(t, doRequest(t, router, http.MethodDelete, "/api/v1/cart", ""), http.StatusConflict, "cart_locked")

	if err := store.ReleaseCheckoutHold(ctx, false); err != nil {
		t.Fatalf("ReleaseCheckoutHold: %v", err)
	}
	if rr := doRequest(t, router, http.MethodPatch, "/api/v1/cart/items/1", `{"quantity":4}`); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 after release, got %d: %s", rr.Code, rr.Body.String())
	}
}
