package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

const maxCheckoutBodySize = 8 * 1024

// CheckoutHandlers exposes the checkout workflow.
type CheckoutHandlers struct {
	checkout services.CheckoutService
	calc     services.OrderCalculator
	submitMW []func(http.Handler) http.Handler
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithSubmitMiddlewares wraps the submit endpoint, e.g. with idempotency protection.
func WithSubmitMiddlewares(mw ...func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		for _, m := range mw {
			if m != nil {
				h.submitMW = append(h.submitMW, m)
			}
		}
	}
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{checkout: checkout}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.begin)
	r.Delete("/", h.reset)
	r.With(h.submitMW...).Post("/submit", h.submit)
	r.Post("/cancel", h.cancel)
}

type checkoutFormRequest struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	Zip        string `json:"zip"`
	Country    string `json:"country"`
	CardName   string `json:"cardName"`
	CardNumber string `json:"cardNumber"`
	ExpDate    string `json:"expDate"`
	CVV        string `json:"cvv"`
}

func (req checkoutFormRequest) toDomain() domain.CheckoutForm {
	return domain.CheckoutForm{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Address:    req.Address,
		City:       req.City,
		State:      req.State,
		Zip:        req.Zip,
		Country:    req.Country,
		CardName:   req.CardName,
		CardNumber: req.CardNumber,
		ExpDate:    req.ExpDate,
		CVV:        req.CVV,
	}
}

type checkoutFormPayload struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	Address        string `json:"address"`
	City           string `json:"city"`
	State          string `json:"state"`
	Zip            string `json:"zip"`
	Country        string `json:"country"`
	CardName       string `json:"cardName"`
	CardNumberLast string `json:"cardNumberLast4,omitempty"`
	ExpDate        string `json:"expDate"`
}

type confirmationPayload struct {
	OrderNumber string            `json:"orderNumber"`
	Items       []cartLinePayload `json:"items"`
	Summary     summaryPayload    `json:"summary"`
	ConfirmedAt string            `json:"confirmedAt"`
}

type checkoutPayload struct {
	ID           string               `json:"id"`
	State        string               `json:"state"`
	Form         checkoutFormPayload  `json:"form"`
	Summary      summaryPayload       `json:"summary"`
	Confirmation *confirmationPayload `json:"confirmation,omitempty"`
	FormHints    map[string]string    `json:"formHints,omitempty"`
	LastError    string               `json:"lastError,omitempty"`
	StartedAt    string               `json:"startedAt"`
	UpdatedAt    string               `json:"updatedAt"`
	Countries    []string             `json:"countries"`
}

func (h *CheckoutHandlers) buildPayload(attempt domain.CheckoutAttempt) checkoutPayload {
	form := attempt.Form
	payload := checkoutPayload{
		ID:    attempt.ID,
		State: string(attempt.State),
		Form: checkoutFormPayload{
			FirstName: form.FirstName,
			LastName:  form.LastName,
			Email:     form.Email,
			Address:   form.Address,
			City:      form.City,
			State:     form.State,
			Zip:       form.Zip,
			Country:   form.Country,
			CardName:  form.CardName,
			ExpDate:   form.ExpDate,
		},
		Summary:   buildSummaryPayload(attempt.Summary),
		FormHints: attempt.FormHints,
		LastError: attempt.LastError,
		StartedAt: formatTimestamp(attempt.StartedAt),
		UpdatedAt: formatTimestamp(attempt.UpdatedAt),
		Countries: domain.CheckoutCountries,
	}
	if n := len(form.CardNumber); n >= 4 {
		payload.Form.CardNumberLast = form.CardNumber[n-4:]
	}
	if c := attempt.Confirmation; c != nil {
		payload.Confirmation = &confirmationPayload{
			OrderNumber: c.OrderNumber,
			Items:       buildLinePayloads(h.calc, c.Lines),
			Summary:     buildSummaryPayload(c.Summary),
			ConfirmedAt: formatTimestamp(c.ConfirmedAt),
		}
	}
	return payload
}

func (h *CheckoutHandlers) begin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}
	attempt, err := h.checkout.Begin(ctx)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	setNoStoreHeaders(w)
	writeJSONResponse(w, http.StatusOK, h.buildPayload(attempt))
}

func (h *CheckoutHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}
	var req checkoutFormRequest
	if err := decodeStrict(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	attempt, err := h.checkout.Submit(ctx, req.toDomain())
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	setNoStoreHeaders(w)
	writeJSONResponse(w, http.StatusOK, h.buildPayload(attempt))
}

func (h *CheckoutHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}
	attempt, err := h.checkout.Cancel(ctx)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	setNoStoreHeaders(w)
	writeJSONResponse(w, http.StatusOK, h.buildPayload(attempt))
}

func (h *CheckoutHandlers) reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}
	if err := h.checkout.Reset(ctx); err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var formErr *services.FormError
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidForm):
		apiErr := httpx.NewError("checkout_invalid_form", "checkout form is invalid", http.StatusUnprocessableEntity)
		if errors.As(err, &formErr) && formErr != nil {
			apiErr = apiErr.WithDetails(map[string]any{"fields": formErr.Fields})
		}
		httpx.WriteError(ctx, w, apiErr)
	case errors.Is(err, services.ErrCheckoutCartEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_cart_empty", "your cart is empty", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutInFlight):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_in_flight", "an order is already being placed", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutCancelled):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_cancelled", "checkout was cancelled", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutFailed):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_failed", "order could not be placed", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutNoAttempt):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_not_found", "no checkout in progress", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "checkout failed", http.StatusInternalServerError))
	}
}
