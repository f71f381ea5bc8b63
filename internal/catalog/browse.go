package catalog

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// AllCategories is the category filter value that matches every product.
const AllCategories = "all"

// Sort orders accepted by Filter.
const (
	SortDefault   = "default"
	SortPriceLow  = "price-low"
	SortPriceHigh = "price-high"
	SortRating    = "rating"
)

// Query narrows and orders a product list. Nil price bounds are open.
type Query struct {
	Search   string
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     string
}

// Filter returns the products matching q in the requested order. The input is not modified.
func Filter(products []domain.Product, q Query) []domain.Product {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	category := strings.TrimSpace(q.Category)

	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if search != "" && !strings.Contains(strings.ToLower(p.Title), search) {
			continue
		}
		if category != "" && category != AllCategories && p.Category != category {
			continue
		}
		if q.MinPrice != nil && p.Price.LessThan(*q.MinPrice) {
			continue
		}
		if q.MaxPrice != nil && p.Price.GreaterThan(*q.MaxPrice) {
			continue
		}
		out = append(out, p)
	}

	switch q.Sort {
	case SortPriceLow:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	case SortPriceHigh:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.GreaterThan(out[j].Price) })
	case SortRating:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Rating.Rate > out[j].Rating.Rate })
	}
	return out
}

// Categories returns "all" followed by each distinct category in first-seen order.
func Categories(products []domain.Product) []string {
	seen := map[string]struct{}{}
	categories := []string{AllCategories}
	for _, p := range products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}
	return categories
}

// Featured returns the first n products.
func Featured(products []domain.Product, n int) []domain.Product {
	if n < 0 {
		n = 0
	}
	if n > len(products) {
		n = len(products)
	}
	return append([]domain.Product(nil), products[:n]...)
}

// Related returns up to n products sharing product's category, excluding product itself.
func Related(products []domain.Product, product domain.Product, n int) []domain.Product {
	if n <= 0 {
		return nil
	}
	related := make([]domain.Product, 0, n)
	for _, p := range products {
		if len(related) >= n {
			break
		}
		if p.ID == product.ID || p.Category != product.Category {
			continue
		}
		related = append(related, p)
	}
	return related
}
