package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	domain "github.com/hanko-field/storefront/internal/domain"
)

const (
	// DefaultBaseURL is the public product API.
	DefaultBaseURL     = "https://fakestoreapi.com"
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 3
	fetchConcurrency   = 4
	maxBodyBytes       = 4 << 20
)

// ErrCatalogFetch matches every catalog fetch failure.
var ErrCatalogFetch = errors.New("catalog: fetch failed")

// ErrProductNotFound is returned when the API has no product for the id.
var ErrProductNotFound = errors.New("catalog: product not found")

// errUpstreamNotFound marks an HTTP 404. Only single-product fetches read it as a missing product.
var errUpstreamNotFound = errors.New("upstream status 404")

type fetchError string

func (e fetchError) Error() string { return string(e) }

func (e fetchError) Is(target error) bool { return target == ErrCatalogFetch }

var (
	// ErrFetchProduct wraps failures of a single-product fetch.
	ErrFetchProduct error = fetchError("Failed to fetch product")
	// ErrFetchProducts wraps failures of the product list fetch.
	ErrFetchProducts error = fetchError("Failed to fetch products")
)

// Options configures the Client.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	HTTPClient  *http.Client
	Backoff     gax.Backoff
	Logger      func(context.Context, string, map[string]any)
}

// Client reads products from the remote catalog API.
type Client struct {
	baseURL     string
	http        *http.Client
	maxAttempts int
	backoff     gax.Backoff
	logger      func(context.Context, string, map[string]any)
	group       singleflight.Group
}

// NewClient constructs a catalog client.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("catalog: base url %q must be http(s)", baseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	backoff := opts.Backoff
	if backoff.Initial <= 0 {
		backoff = gax.Backoff{Initial: 200 * time.Millisecond, Max: 2 * time.Second, Multiplier: 2}
	}
	logger := opts.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Client{
		baseURL:     baseURL,
		http:        httpClient,
		maxAttempts: attempts,
		backoff:     backoff,
		logger:      logger,
	}, nil
}

// FetchProduct returns the product with the given id.
func (c *Client) FetchProduct(ctx context.Context, id int) (domain.Product, error) {
	if id <= 0 {
		return domain.Product{}, fmt.Errorf("%w: %d", ErrProductNotFound, id)
	}
	path := "/products/" + strconv.Itoa(id)
	v, err := c.shared(ctx, path, func(ctx context.Context) (any, error) {
		body, err := c.get(ctx, path)
		if errors.Is(err, errUpstreamNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrProductNotFound, id)
		}
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(body)) == 0 || bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
			return nil, fmt.Errorf("%w: %d", ErrProductNotFound, id)
		}
		var payload productPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("%w: decode: %v", ErrFetchProduct, err)
		}
		return payload.toDomain(), nil
	})
	if err != nil {
		if errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrCatalogFetch) {
			return domain.Product{}, err
		}
		return domain.Product{}, fmt.Errorf("%w: %w", ErrFetchProduct, err)
	}
	return v.(domain.Product), nil
}

// FetchAllProducts returns the whole catalog in API order.
func (c *Client) FetchAllProducts(ctx context.Context) ([]domain.Product, error) {
	v, err := c.shared(ctx, "/products", func(ctx context.Context) (any, error) {
		body, err := c.get(ctx, "/products")
		if err != nil {
			return nil, err
		}
		var payload []productPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("%w: decode: %v", ErrFetchProducts, err)
		}
		products := make([]domain.Product, 0, len(payload))
		for _, p := range payload {
			products = append(products, p.toDomain())
		}
		return products, nil
	})
	if err != nil {
		if errors.Is(err, ErrCatalogFetch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrFetchProducts, err)
	}
	products := v.([]domain.Product)
	return append([]domain.Product(nil), products...), nil
}

// FetchProducts fetches several products concurrently. The result follows the order of ids.
func (c *Client) FetchProducts(ctx context.Context, ids []int) ([]domain.Product, error) {
	products := make([]domain.Product, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			product, err := c.FetchProduct(gctx, id)
			if err != nil {
				return err
			}
			products[i] = product
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return products, nil
}

// shared collapses concurrent requests for the same path. The fetch itself is detached
// from any one caller so an early cancellation does not fail the others.
func (c *Client) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	backoff := c.backoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, retry, err := c.do(ctx, path)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry || attempt == c.maxAttempts {
			break
		}
		pause := backoff.Pause()
		c.logger(ctx, "catalog.fetch_retry", map[string]any{
			"path":    path,
			"attempt": attempt,
			"pause":   pause.String(),
			"error":   err.Error(),
		})
		if err := gax.Sleep(ctx, pause); err != nil {
			return nil, err
		}
	}
	c.logger(ctx, "catalog.fetch_failed", map[string]any{"path": path, "error": lastErr.Error()})
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, path string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, errUpstreamNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, true, fmt.Errorf("unexpected status %d", resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, false, nil
}

type productPayload struct {
	ID          int             `json:"id"`
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Rating      struct {
		Rate  float64 `json:"rate"`
		Count int     `json:"count"`
	} `json:"rating"`
}

func (p productPayload) toDomain() domain.Product {
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
