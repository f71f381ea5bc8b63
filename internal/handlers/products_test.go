package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/catalog"
)

func newProductRouter(cat ProductCatalog) http.Handler {
	return NewRouter(WithProductRoutes(func(r chi.Router) {
		NewProductHandlers(cat).Routes(r)
	}))
}

func productIDs(t *testing.T, items any) []int {
	t.Helper()
	list, ok := items.([]any)
	if !ok {
		t.Fatalf("expected list, got %T", items)
	}
	ids := make([]int, 0, len(list))
	for _, item := range list {
		ids = append(ids, int(item.(map[string]any)["id"].(float64)))
	}
	return ids
}

func TestProductsListAppliesQuery(t *testing.T) {
	router := newProductRouter(&stubCatalog{products: testProducts()})

	rr := doRequest(t, router, http.MethodGet, "/api/v1/products?category=men%27s+clothing&sort=price-high&maxPrice=100", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if got := fmt.Sprint(productIDs(t, body["items"])); got != "[4 2]" {
		t.Fatalf("unexpected ids %s", got)
	}
	first := body["items"].([]any)[0].(map[string]any)
	if first["price"] != "55.99" {
		t.Fatalf("expected fixed two-digit price, got %v", first["price"])
	}
}

func TestProductsListRejectsBadQuery(t *testing.T) {
	router := newProductRouter(&stubCatalog{products: testProducts()})

	for _, target := range []string{
		"/api/v1/products?sort=newest",
		"/api/v1/products?minPrice=abc",
		"/api/v1/products?minPrice=50&maxPrice=10",
		"/api/v1/products?ids=1,abc",
		"/api/v1/products?ids=0",
	} {
		rr := doRequest(t, router, http.MethodGet, target, "")
		assertErrorCode(t, rr, http.StatusBadRequest, "invalid_request")
	}
}

func TestProductsListLooksUpIDs(t *testing.T) {
	cat := &stubCatalog{products: testProducts()}
	router := newProductRouter(cat)

	rr := doRequest(t, router, http.MethodGet, "/api/v1/products?ids=5,2,5&sort=price-low", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := fmt.Sprint(productIDs(t, decodeBody(t, rr)["items"])); got != "[2 5]" {
		t.Fatalf("unexpected ids %s", got)
	}
	if cat.fetchCalls != 2 {
		t.Fatalf("expected one lookup per distinct id, got %d", cat.fetchCalls)
	}

	assertErrorCode(t, doRequest(t, router, http.MethodGet, "/api/v1/products?ids=1,99", ""), http.StatusNotFound, "product_not_found")
}

func TestProductsCategoriesAndFeatured(t *testing.T) {
	router := newProductRouter(&stubCatalog{products: testProducts()})

	body := decodeBody(t, doRequest(t, router, http.MethodGet, "/api/v1/products/categories", ""))
	if got := fmt.Sprint(body["categories"]); got != "[all men's clothing jewelery electronics]" {
		t.Fatalf("unexpected categories %s", got)
	}

	body = decodeBody(t, doRequest(t, router, http.MethodGet, "/api/v1/products/featured", ""))
	if got := fmt.Sprint(productIDs(t, body["items"])); got != "[1 2 3 4]" {
		t.Fatalf("unexpected featured %s", got)
	}
}

func TestProductDetailIncludesRelated(t *testing.T) {
	router := newProductRouter(&stubCatalog{products: testProducts()})

	rr := doRequest(t, router, http.MethodGet, "/api/v1/products/2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	product := body["product"].(map[string]any)
	if product["title"] != "T-Shirt" {
		t.Fatalf("unexpected product %v", product)
	}
	if got := fmt.Sprint(productIDs(t, body["related"])); got != "[1 4]" {
		t.Fatalf("unexpected related %s", got)
	}
}

func TestProductDetailErrors(t *testing.T) {
	router := newProductRouter(&stubCatalog{products: testProducts()})
	assertErrorCode(t, doRequest(t, router, http.MethodGet, "/api/v1/products/99", ""), http.StatusNotFound, "product_not_found")
	assertErrorCode(t, doRequest(t, router, http.MethodGet, "/api/v1/products/abc", ""), http.StatusBadRequest, "invalid_request")

	failing := newProductRouter(&stubCatalog{fetchErr: fmt.Errorf("%w: %w", catalog.ErrFetchProduct, fmt.Errorf("unexpected status 503"))})
	body := assertErrorCode(t, doRequest(t, failing, http.MethodGet, "/api/v1/products/1", ""), http.StatusBadGateway, "catalog_unavailable")
	if body["message"] != "Failed to fetch product" {
		t.Fatalf("unexpected message %v", body["message"])
	}

	listFailing := newProductRouter(&stubCatalog{listErr: fmt.Errorf("%w: timeout", catalog.ErrFetchProducts)})
	body = assertErrorCode(t, doRequest(t, listFailing, http.MethodGet, "/api/v1/products", ""), http.StatusBadGateway, "catalog_unavailable")
	if body["message"] != "Failed to fetch products" {
		t.Fatalf("unexpected message %v", body["message"])
	}
}
