package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
)

var errCheckoutCartRequired = errors.New("checkout workflow: cart is required")

var (
	// ErrCheckoutCartEmpty is returned when checkout is entered with nothing to buy.
	ErrCheckoutCartEmpty = errors.New("checkout workflow: cart is empty")
	// ErrCheckoutInFlight is returned while a submission is being processed.
	ErrCheckoutInFlight = errors.New("checkout workflow: submission in flight")
	// ErrCheckoutInvalidForm wraps a *FormError describing the bad fields.
	ErrCheckoutInvalidForm = errors.New("checkout workflow: invalid form")
	// ErrCheckoutFailed is returned when the order processor reports a failure.
	ErrCheckoutFailed = errors.New("checkout workflow: order placement failed")
	// ErrCheckoutCancelled is returned when a submission is cancelled before it completes.
	ErrCheckoutCancelled = errors.New("checkout workflow: cancelled")
	// ErrCheckoutNoAttempt is returned when no checkout has been started.
	ErrCheckoutNoAttempt = errors.New("checkout workflow: no attempt")
)

const defaultProcessingDelay = 2 * time.Second

// OrderRequest is handed to the OrderProcessor with the totals frozen at submit time.
type OrderRequest struct {
	AttemptID string
	Form      domain.CheckoutForm
	Lines     []domain.CartLine
	Summary   domain.OrderSummary
}

// OrderProcessor places an order. It must return promptly once ctx is done.
type OrderProcessor interface {
	PlaceOrder(ctx context.Context, req OrderRequest) error
}

// SimulatedProcessor waits for Delay and then succeeds.
type SimulatedProcessor struct {
	Delay time.Duration
}

// PlaceOrder implements OrderProcessor.
func (p SimulatedProcessor) PlaceOrder(ctx context.Context, _ OrderRequest) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CheckoutCart is the part of the cart store the workflow depends on. A hold keeps
// the cart frozen while an order is placed; releasing it with orderPlaced clears the cart.
type CheckoutCart interface {
	Snapshot() domain.Cart
	HoldForCheckout() domain.Cart
	ReleaseCheckoutHold(ctx context.Context, orderPlaced bool) error
}

// CheckoutWorkflowDeps wires the workflow collaborators.
type CheckoutWorkflowDeps struct {
	Cart         CheckoutCart
	Processor    OrderProcessor
	Notifier     Notifier
	Calculator   OrderCalculator
	Clock        func() time.Time
	Logger       func(context.Context, string, map[string]any)
	AttemptIDs   func() string
	OrderNumbers func() string
}

// CheckoutWorkflow drives one checkout attempt at a time through
// editing, submitting and confirmed.
type CheckoutWorkflow struct {
	cart      CheckoutCart
	processor OrderProcessor
	notifier  Notifier
	calc      OrderCalculator
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
	attemptID func() string
	orderID   func() string

	mu      sync.Mutex
	attempt *domain.CheckoutAttempt
	seq     uint64
	cancel  context.CancelFunc
}

// NewCheckoutWorkflow constructs a workflow. The processor defaults to a SimulatedProcessor with a two second delay.
func NewCheckoutWorkflow(deps CheckoutWorkflowDeps) (*CheckoutWorkflow, error) {
	if deps.Cart == nil {
		return nil, errCheckoutCartRequired
	}
	processor := deps.Processor
	if processor == nil {
		processor = SimulatedProcessor{Delay: defaultProcessingDelay}
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	attemptIDs := deps.AttemptIDs
	if attemptIDs == nil {
		attemptIDs = uuid.NewString
	}
	orderNumbers := deps.OrderNumbers
	if orderNumbers == nil {
		orderNumbers = func() string { return ulid.Make().String() }
	}

	return &CheckoutWorkflow{
		cart:      deps.Cart,
		processor: processor,
		notifier:  notifier,
		calc:      deps.Calculator,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:    logger,
		attemptID: attemptIDs,
		orderID:   orderNumbers,
	}, nil
}

// Begin enters checkout. A confirmed attempt stays visible while the cart is empty.
func (w *CheckoutWorkflow) Begin(ctx context.Context) (domain.CheckoutAttempt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cart := w.cart.Snapshot()
	if w.attempt != nil {
		switch w.attempt.State {
		case domain.CheckoutStateSubmitting:
			return copyAttempt(w.attempt), nil
		case domain.CheckoutStateConfirmed:
			if cart.IsEmpty() {
				return copyAttempt(w.attempt), nil
			}
		case domain.CheckoutStateEditing:
			if cart.IsEmpty() {
				w.attempt = nil
				return domain.CheckoutAttempt{}, ErrCheckoutCartEmpty
			}
			w.attempt.Summary = w.calc.Summarize(cart)
			w.attempt.UpdatedAt = w.now()
			return copyAttempt(w.attempt), nil
		}
	}

	if cart.IsEmpty() {
		return domain.CheckoutAttempt{}, ErrCheckoutCartEmpty
	}
	w.attempt = w.newAttempt(cart)
	w.logger(ctx, "checkout.started", map[string]any{
		"attemptId": w.attempt.ID,
		"itemCount": cart.ItemCount(),
	})
	return copyAttempt(w.attempt), nil
}

// Submit validates the form and places the order. It blocks until the processor
// finishes, fails, or the submission is cancelled.
func (w *CheckoutWorkflow) Submit(ctx context.Context, form domain.CheckoutForm) (domain.CheckoutAttempt, error) {
	normalised, validationErr := ValidateCheckoutForm(form)

	w.mu.Lock()
	if w.attempt != nil && w.attempt.State == domain.CheckoutStateSubmitting {
		w.mu.Unlock()
		return domain.CheckoutAttempt{}, ErrCheckoutInFlight
	}

	cart := w.cart.Snapshot()
	if w.attempt == nil || w.attempt.State == domain.CheckoutStateConfirmed {
		if cart.IsEmpty() {
			w.mu.Unlock()
			return domain.CheckoutAttempt{}, ErrCheckoutCartEmpty
		}
		w.attempt = w.newAttempt(cart)
	}
	attempt := w.attempt
	attempt.Form = normalised
	attempt.FormHints = CheckoutFormHints(normalised)
	attempt.UpdatedAt = w.now()

	if validationErr != nil {
		attempt.LastError = ""
		snapshot := copyAttempt(attempt)
		w.mu.Unlock()
		return snapshot, fmt.Errorf("%w: %w", ErrCheckoutInvalidForm, validationErr)
	}
	cart = w.cart.HoldForCheckout()
	if cart.IsEmpty() {
		w.release(ctx, attempt.ID, false)
		w.mu.Unlock()
		return domain.CheckoutAttempt{}, ErrCheckoutCartEmpty
	}

	lines := cart.Clone().Items
	summary := w.calc.Summarize(cart)
	attempt.Summary = summary
	attempt.State = domain.CheckoutStateSubmitting
	attempt.LastError = ""

	runCtx, cancel := context.WithCancel(ctx)
	w.seq++
	seq := w.seq
	w.cancel = cancel
	req := OrderRequest{AttemptID: attempt.ID, Form: normalised, Lines: lines, Summary: summary}
	w.mu.Unlock()

	w.logger(ctx, "checkout.submitted", map[string]any{
		"attemptId": req.AttemptID,
		"total":     summary.Totals.Total.StringFixed(2),
	})

	placeErr := w.processor.PlaceOrder(runCtx, req)
	cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.seq != seq || w.attempt == nil || w.attempt.State != domain.CheckoutStateSubmitting {
		w.release(ctx, req.AttemptID, false)
		w.logger(ctx, "checkout.cancelled", map[string]any{"attemptId": req.AttemptID})
		if w.attempt == nil {
			return domain.CheckoutAttempt{}, ErrCheckoutCancelled
		}
		return copyAttempt(w.attempt), ErrCheckoutCancelled
	}
	w.cancel = nil
	attempt = w.attempt
	attempt.UpdatedAt = w.now()

	switch {
	case placeErr == nil:
		return w.confirm(ctx, attempt, lines, summary), nil
	case ctx.Err() != nil || errors.Is(placeErr, context.Canceled):
		w.release(ctx, attempt.ID, false)
		attempt.State = domain.CheckoutStateEditing
		attempt.LastError = "checkout cancelled"
		w.logger(ctx, "checkout.cancelled", map[string]any{"attemptId": attempt.ID})
		return copyAttempt(attempt), ErrCheckoutCancelled
	default:
		w.release(ctx, attempt.ID, false)
		attempt.State = domain.CheckoutStateEditing
		attempt.LastError = placeErr.Error()
		w.logger(ctx, "checkout.submit_failed", map[string]any{
			"attemptId": attempt.ID,
			"error":     placeErr.Error(),
		})
		return copyAttempt(attempt), fmt.Errorf("%w: %v", ErrCheckoutFailed, placeErr)
	}
}

// confirm moves the attempt to confirmed and clears the cart. Callers hold w.mu.
func (w *CheckoutWorkflow) confirm(ctx context.Context, attempt *domain.CheckoutAttempt, lines []domain.CartLine, summary domain.OrderSummary) domain.CheckoutAttempt {
	now := w.now()
	attempt.State = domain.CheckoutStateConfirmed
	attempt.Confirmation = &domain.OrderConfirmation{
		OrderNumber: w.orderID(),
		Lines:       lines,
		Summary:     summary,
		ConfirmedAt: now,
	}

	// the order is placed; a failed clear must not undo the confirmation
	w.release(ctx, attempt.ID, true)

	w.logger(ctx, "checkout.confirmed", map[string]any{
		"attemptId":   attempt.ID,
		"orderNumber": attempt.Confirmation.OrderNumber,
		"total":       summary.Totals.Total.StringFixed(2),
	})
	w.notifier.Notify(ctx, domain.Notification{
		Kind:        domain.NotificationOrderConfirmed,
		Title:       "Order placed successfully!",
		Message:     "Your order has been confirmed.",
		OrderNumber: attempt.Confirmation.OrderNumber,
		OccurredAt:  now,
	})
	return copyAttempt(attempt)
}

// release drops the cart hold taken by Submit, clearing the cart when the order was placed.
func (w *CheckoutWorkflow) release(ctx context.Context, attemptID string, orderPlaced bool) {
	if err := w.cart.ReleaseCheckoutHold(context.WithoutCancel(ctx), orderPlaced); err != nil {
		w.logger(ctx, "checkout.clear_cart_failed", map[string]any{
			"attemptId": attemptID,
			"error":     err.Error(),
		})
	}
}

// Cancel aborts an in-flight submission and returns the attempt to editing.
// It is a no-op in any other state.
func (w *CheckoutWorkflow) Cancel(ctx context.Context) (domain.CheckoutAttempt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.attempt == nil {
		return domain.CheckoutAttempt{}, ErrCheckoutNoAttempt
	}
	if w.attempt.State != domain.CheckoutStateSubmitting {
		return copyAttempt(w.attempt), nil
	}
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.attempt.State = domain.CheckoutStateEditing
	w.attempt.LastError = "checkout cancelled"
	w.attempt.UpdatedAt = w.now()
	w.logger(ctx, "checkout.cancel_requested", map[string]any{"attemptId": w.attempt.ID})
	return copyAttempt(w.attempt), nil
}

// Current returns a snapshot of the attempt.
func (w *CheckoutWorkflow) Current() (domain.CheckoutAttempt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.attempt == nil {
		return domain.CheckoutAttempt{}, ErrCheckoutNoAttempt
	}
	return copyAttempt(w.attempt), nil
}

// Reset discards an editing or confirmed attempt so a fresh checkout can start.
func (w *CheckoutWorkflow) Reset(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.attempt == nil {
		return nil
	}
	if w.attempt.State == domain.CheckoutStateSubmitting {
		return ErrCheckoutInFlight
	}
	w.logger(ctx, "checkout.reset", map[string]any{"attemptId": w.attempt.ID, "state": string(w.attempt.State)})
	w.attempt = nil
	return nil
}

func (w *CheckoutWorkflow) newAttempt(cart domain.Cart) *domain.CheckoutAttempt {
	now := w.now()
	return &domain.CheckoutAttempt{
		ID:        w.attemptID(),
		State:     domain.CheckoutStateEditing,
		Form:      NewCheckoutForm(),
		Summary:   w.calc.Summarize(cart),
		StartedAt: now,
		UpdatedAt: now,
	}
}

func copyAttempt(attempt *domain.CheckoutAttempt) domain.CheckoutAttempt {
	out := *attempt
	if attempt.FormHints != nil {
		out.FormHints = make(map[string]string, len(attempt.FormHints))
		for field, hint := range attempt.FormHints {
			out.FormHints[field] = hint
		}
	}
	if attempt.Confirmation != nil {
		confirmation := *attempt.Confirmation
		confirmation.Lines = append([]domain.CartLine(nil), attempt.Confirmation.Lines...)
		out.Confirmation = &confirmation
	}
	return out
}
