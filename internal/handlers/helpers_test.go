package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hanko-field/storefront/internal/catalog"
	domain "github.com/hanko-field/storefront/internal/domain"
)

type stubCatalog struct {
	products   []domain.Product
	listErr    error
	fetchErr   error
	fetchCalls int
}

func (s *stubCatalog) FetchAllProducts(context.Context) ([]domain.Product, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]domain.Product(nil), s.products...), nil
}

func (s *stubCatalog) FetchProduct(_ context.Context, id int) (domain.Product, error) {
	s.fetchCalls++
	if s.fetchErr != nil {
		return domain.Product{}, s.fetchErr
	}
	for _, p := range s.products {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Product{}, catalog.ErrProductNotFound
}

func (s *stubCatalog) FetchProducts(ctx context.Context, ids []int) ([]domain.Product, error) {
	products := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		p, err := s.FetchProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func testProducts() []domain.Product {
	mk := func(id int, title, price, category string, rate float64) domain.Product {
		return domain.Product{
			ID:       id,
			Title:    title,
			Price:    decimal.RequireFromString(price),
			Category: category,
			Image:    "https://fakestoreapi.com/img/" + title + ".jpg",
			Rating:   domain.ProductRating{Rate: rate, Count: 10},
		}
	}
	return []domain.Product{
		mk(1, "Backpack", "109.95", "men's clothing", 3.9),
		mk(2, "T-Shirt", "22.30", "men's clothing", 4.1),
		mk(3, "Bracelet", "695.00", "jewelery", 4.6),
		mk(4, "Jacket", "55.99", "men's clothing", 4.7),
		mk(5, "SSD", "109.00", "electronics", 4.8),
	}
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["error"] != code {
		t.Fatalf("expected error code %s, got %v", code, body["error"])
	}
	return body
}
