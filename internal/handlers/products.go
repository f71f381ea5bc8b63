package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/catalog"
	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

const (
	featuredCount = 4
	relatedCount  = 4
	maxLookupIDs  = 20
)

// ProductCatalog is the read side of the remote catalog.
type ProductCatalog interface {
	FetchAllProducts(ctx context.Context) ([]domain.Product, error)
	FetchProduct(ctx context.Context, id int) (domain.Product, error)
	FetchProducts(ctx context.Context, ids []int) ([]domain.Product, error)
}

// ProductHandlers exposes catalog browsing endpoints.
type ProductHandlers struct {
	catalog ProductCatalog
}

// NewProductHandlers constructs product handlers backed by the catalog client.
func NewProductHandlers(catalog ProductCatalog) *ProductHandlers {
	return &ProductHandlers{catalog: catalog}
}

// Routes wires the /products endpoints onto the provided router.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/categories", h.listCategories)
	r.Get("/featured", h.listFeatured)
	r.Get("/{productId}", h.getProduct)
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	query, err := parseProductQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	ids, err := parseProductIDs(r.URL.Query().Get("ids"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var products []domain.Product
	if len(ids) > 0 {
		products, err = h.catalog.FetchProducts(ctx, ids)
	} else {
		products, err = h.catalog.FetchAllProducts(ctx)
	}
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	filtered := catalog.Filter(products, query)
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items": buildProductList(filtered),
		"total": len(filtered),
	})
}

func (h *ProductHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}
	products, err := h.catalog.FetchAllProducts(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"categories": catalog.Categories(products)})
}

func (h *ProductHandlers) listFeatured(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}
	products, err := h.catalog.FetchAllProducts(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": buildProductList(catalog.Featured(products, featuredCount))})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	id, err := parseProductID(chi.URLParam(r, "productId"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	product, err := h.catalog.FetchProduct(ctx, id)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	related := []domain.Product{}
	if all, err := h.catalog.FetchAllProducts(ctx); err != nil {
		requestctx.Logger(ctx).Warn("related products unavailable", zap.Int("productId", id), zap.Error(err))
	} else {
		related = catalog.Related(all, product, relatedCount)
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"product": buildProductPayload(product),
		"related": buildProductList(related),
	})
}

func parseProductQuery(r *http.Request) (catalog.Query, error) {
	values := r.URL.Query()
	query := catalog.Query{
		Search:   strings.TrimSpace(values.Get("search")),
		Category: strings.TrimSpace(values.Get("category")),
		Sort:     strings.TrimSpace(values.Get("sort")),
	}

	switch query.Sort {
	case "", catalog.SortDefault, catalog.SortPriceLow, catalog.SortPriceHigh, catalog.SortRating:
	default:
		return catalog.Query{}, errors.New("sort must be one of default, price-low, price-high, rating")
	}

	var err error
	if query.MinPrice, err = parsePriceBound(values.Get("minPrice"), "minPrice"); err != nil {
		return catalog.Query{}, err
	}
	if query.MaxPrice, err = parsePriceBound(values.Get("maxPrice"), "maxPrice"); err != nil {
		return catalog.Query{}, err
	}
	if query.MinPrice != nil && query.MaxPrice != nil && query.MinPrice.GreaterThan(*query.MaxPrice) {
		return catalog.Query{}, errors.New("minPrice must not exceed maxPrice")
	}
	return query, nil
}

func parsePriceBound(raw, name string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil || value.IsNegative() {
		return nil, errors.New(name + " must be a non-negative number")
	}
	return &value, nil
}

func parseProductID(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, errors.New("productId must be a positive integer")
	}
	return id, nil
}

// parseProductIDs reads a comma separated id list. Duplicates are dropped, first occurrence wins.
func parseProductIDs(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int, 0, len(parts))
	seen := make(map[int]struct{}, len(parts))
	for _, part := range parts {
		id, err := parseProductID(part)
		if err != nil {
			return nil, errors.New("ids must be a comma separated list of positive integers")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) > maxLookupIDs {
		return nil, errors.New("ids must list at most " + strconv.Itoa(maxLookupIDs) + " products")
	}
	return ids, nil
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, catalog.ErrFetchProducts):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", catalog.ErrFetchProducts.Error(), http.StatusBadGateway))
	case errors.Is(err, catalog.ErrCatalogFetch):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", catalog.ErrFetchProduct.Error(), http.StatusBadGateway))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_timeout", "catalog request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to read catalog", http.StatusInternalServerError))
	}
}
