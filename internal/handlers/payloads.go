package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/format"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

const defaultBodyLimit = 16 * 1024

type productPayload struct {
	ID          int           `json:"id"`
	Title       string        `json:"title"`
	Price       string        `json:"price"`
	Description string        `json:"description,omitempty"`
	Category    string        `json:"category"`
	Image       string        `json:"image,omitempty"`
	Rating      ratingPayload `json:"rating"`
}

type ratingPayload struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

type cartLinePayload struct {
	Product   productPayload `json:"product"`
	Quantity  int            `json:"quantity"`
	LineTotal string         `json:"lineTotal"`
}

type summaryPayload struct {
	Subtotal         string `json:"subtotal"`
	Shipping         string `json:"shipping"`
	Tax              string `json:"tax"`
	Total            string `json:"total"`
	Empty            bool   `json:"empty"`
	ItemCount        int    `json:"itemCount"`
	ShippingLabel    string `json:"shippingLabel"`
	FreeShippingNote string `json:"freeShippingNote"`
}

type cartPayload struct {
	Items     []cartLinePayload `json:"items"`
	ItemCount int               `json:"itemCount"`
	Summary   summaryPayload    `json:"summary"`
}

func buildProductPayload(p domain.Product) productPayload {
	return productPayload{
		ID:          p.ID,
		Title:       p.Title,
		Price:       format.Money(p.Price),
		Description: p.Description,
		Category:    p.Category,
		Image:       p.Image,
		Rating:      ratingPayload{Rate: p.Rating.Rate, Count: p.Rating.Count},
	}
}

func buildProductList(products []domain.Product) []productPayload {
	out := make([]productPayload, 0, len(products))
	for _, p := range products {
		out = append(out, buildProductPayload(p))
	}
	return out
}

func buildLinePayloads(calc services.OrderCalculator, lines []domain.CartLine) []cartLinePayload {
	out := make([]cartLinePayload, 0, len(lines))
	for _, line := range lines {
		out = append(out, cartLinePayload{
			Product:   buildProductPayload(line.Product),
			Quantity:  line.Quantity,
			LineTotal: format.Money(calc.LineTotal(line)),
		})
	}
	return out
}

func buildSummaryPayload(summary domain.OrderSummary) summaryPayload {
	totals := summary.Totals
	return summaryPayload{
		Subtotal:         format.Money(totals.Subtotal),
		Shipping:         format.Money(totals.Shipping),
		Tax:              format.Money(totals.Tax),
		Total:            format.Money(totals.Total),
		Empty:            summary.Empty,
		ItemCount:        summary.ItemCount,
		ShippingLabel:    format.ShippingLabel(summary, services.FlatShippingFee),
		FreeShippingNote: format.FreeShippingNote,
	}
}

func buildCartPayload(calc services.OrderCalculator, cart domain.Cart) cartPayload {
	return cartPayload{
		Items:     buildLinePayloads(calc, cart.Items),
		ItemCount: cart.ItemCount(),
		Summary:   buildSummaryPayload(calc.Summarize(cart)),
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func decodeStrict(data []byte, dst any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errors.New("invalid JSON payload")
	}
	return nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

func setNoStoreHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
}
