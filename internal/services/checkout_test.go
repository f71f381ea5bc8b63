package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories/memory"
)

func validForm() domain.CheckoutForm {
	return domain.CheckoutForm{
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Email:      "ada@example.com",
		Address:    "12 Analytical Way",
		City:       "London",
		State:      "Greater London",
		Zip:        "NW1 6XE",
		Country:    "United Kingdom",
		CardName:   "Ada Lovelace",
		CardNumber: "4242 4242 4242 4242",
		ExpDate:    "12/29",
		CVV:        "123",
	}
}

type stubProcessor struct {
	placeFunc func(ctx context.Context, req OrderRequest) error
}

func (s stubProcessor) PlaceOrder(ctx context.Context, req OrderRequest) error {
	if s.placeFunc != nil {
		return s.placeFunc(ctx, req)
	}
	return nil
}

type countingCart struct {
	*CartStore
	clears atomic.Int32
}

func (c *countingCart) ReleaseCheckoutHold(ctx context.Context, orderPlaced bool) error {
	if orderPlaced {
		c.clears.Add(1)
	}
	return c.CartStore.ReleaseCheckoutHold(ctx, orderPlaced)
}

type checkoutFixture struct {
	cart     *countingCart
	workflow *CheckoutWorkflow
	notifier *recordingNotifier
}

func newCheckoutFixture(t *testing.T, processor OrderProcessor) checkoutFixture {
	t.Helper()
	store := newTestCartStore(t, memory.NewCartRepository(), nil)
	ctx := context.Background()
	if _, err := store.AddToCart(ctx, product(1, "A", "29.99"), 2); err != nil {
		t.Fatalf("add A: %v", err)
	}
	if _, err := store.AddToCart(ctx, product(2, "B", "15.00"), 1); err != nil {
		t.Fatalf("add B: %v", err)
	}

	cart := &countingCart{CartStore: store}
	notifier := &recordingNotifier{}
	workflow, err := NewCheckoutWorkflow(CheckoutWorkflowDeps{
		Cart:         cart,
		Processor:    processor,
		Notifier:     notifier,
		Clock:        func() time.Time { return fixedNow },
		AttemptIDs:   func() string { return "attempt-1" },
		OrderNumbers: func() string { return "01HZORDER" },
	})
	if err != nil {
		t.Fatalf("NewCheckoutWorkflow: %v", err)
	}
	return checkoutFixture{cart: cart, workflow: workflow, notifier: notifier}
}

func TestCheckoutBeginRequiresItems(t *testing.T) {
	store := newTestCartStore(t, memory.NewCartRepository(), nil)
	workflow, err := NewCheckoutWorkflow(CheckoutWorkflowDeps{Cart: store})
	if err != nil {
		t.Fatalf("NewCheckoutWorkflow: %v", err)
	}
	if _, err := workflow.Begin(context.Background()); !errors.Is(err, ErrCheckoutCartEmpty) {
		t.Fatalf("expected ErrCheckoutCartEmpty, got %v", err)
	}
	if _, err := workflow.Current(); !errors.Is(err, ErrCheckoutNoAttempt) {
		t.Fatalf("expected ErrCheckoutNoAttempt, got %v", err)
	}
}

func TestCheckoutBeginOpensEditingAttempt(t *testing.T) {
	fx := newCheckoutFixture(t, nil)
	attempt, err := fx.workflow.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if attempt.ID != "attempt-1" || attempt.State != domain.CheckoutStateEditing {
		t.Fatalf("unexpected attempt %+v", attempt)
	}
	if attempt.Form.Country != domain.DefaultCheckoutCountry {
		t.Fatalf("expected default country, got %q", attempt.Form.Country)
	}
	if attempt.Summary.Totals.Rounded().Total.StringFixed(2) != "90.23" {
		t.Fatalf("unexpected summary total %s", attempt.Summary.Totals.Total)
	}
}

func TestCheckoutSubmitConfirmsAndClearsCart(t *testing.T) {
	var received OrderRequest
	fx := newCheckoutFixture(t, stubProcessor{placeFunc: func(_ context.Context, req OrderRequest) error {
		received = req
		return nil
	}})
	ctx := context.Background()
	if _, err := fx.workflow.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	attempt, err := fx.workflow.Submit(ctx, validForm())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if attempt.State != domain.CheckoutStateConfirmed || attempt.Confirmation == nil {
		t.Fatalf("expected confirmed attempt, got %+v", attempt)
	}
	if attempt.Confirmation.OrderNumber != "01HZORDER" || len(attempt.Confirmation.Lines) != 2 {
		t.Fatalf("unexpected confirmation %+v", attempt.Confirmation)
	}
	if attempt.Confirmation.Summary.Totals.Rounded().Total.StringFixed(2) != "90.23" {
		t.Fatalf("confirmation must keep totals frozen at submit, got %s", attempt.Confirmation.Summary.Totals.Total)
	}
	if received.Form.CardNumber != "4242424242424242" || len(received.Lines) != 2 {
		t.Fatalf("unexpected order request %+v", received)
	}
	if fx.cart.clears.Load() != 1 || !fx.cart.Snapshot().IsEmpty() {
		t.Fatalf("expected cart cleared exactly once")
	}

	sent := fx.notifier.all()
	if len(sent) != 1 || sent[0].Kind != domain.NotificationOrderConfirmed || sent[0].Title != "Order placed successfully!" || sent[0].Message != "Your order has been confirmed." {
		t.Fatalf("unexpected notifications %+v", sent)
	}

	again, err := fx.workflow.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin after confirm: %v", err)
	}
	if again.State != domain.CheckoutStateConfirmed {
		t.Fatalf("expected confirmed attempt to remain visible, got %s", again.State)
	}

	if err := fx.workflow.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := fx.workflow.Begin(ctx); !errors.Is(err, ErrCheckoutCartEmpty) {
		t.Fatalf("expected empty cart after reset, got %v", err)
	}
}

func TestCheckoutSubmitRejectsInvalidForm(t *testing.T) {
	fx := newCheckoutFixture(t, stubProcessor{placeFunc: func(context.Context, OrderRequest) error {
		t.Fatal("processor must not run for an invalid form")
		return nil
	}})
	form := validForm()
	form.Email = "not-an-email"
	form.CVV = ""

	attempt, err := fx.workflow.Submit(context.Background(), form)
	if !errors.Is(err, ErrCheckoutInvalidForm) {
		t.Fatalf("expected ErrCheckoutInvalidForm, got %v", err)
	}
	var formErr *FormError
	if !errors.As(err, &formErr) {
		t.Fatalf("expected *FormError in chain")
	}
	if formErr.Fields["email"] == "" || formErr.Fields["cvv"] == "" {
		t.Fatalf("unexpected field errors %v", formErr.Fields)
	}
	if attempt.State != domain.CheckoutStateEditing {
		t.Fatalf("expected editing state, got %s", attempt.State)
	}
	if fx.cart.clears.Load() != 0 {
		t.Fatalf("cart must be untouched")
	}
}

func TestCheckoutFailureReturnsToEditing(t *testing.T) {
	fx := newCheckoutFixture(t, stubProcessor{placeFunc: func(context.Context, OrderRequest) error {
		return errors.New("gateway timeout")
	}})

	attempt, err := fx.workflow.Submit(context.Background(), validForm())
	if !errors.Is(err, ErrCheckoutFailed) {
		t.Fatalf("expected ErrCheckoutFailed, got %v", err)
	}
	if attempt.State != domain.CheckoutStateEditing || attempt.LastError != "gateway timeout" {
		t.Fatalf("unexpected attempt %+v", attempt)
	}
	if fx.cart.clears.Load() != 0 || fx.cart.Snapshot().Len() != 2 {
		t.Fatalf("cart must be untouched on failure")
	}
	if len(fx.notifier.all()) != 0 {
		t.Fatalf("no confirmation should be sent on failure")
	}
}

func TestCheckoutCancelReturnsToEditing(t *testing.T) {
	started := make(chan struct{})
	fx := newCheckoutFixture(t, stubProcessor{placeFunc: func(ctx context.Context, _ OrderRequest) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}})
	ctx := context.Background()

	type result struct {
		attempt domain.CheckoutAttempt
		err     error
	}
	done := make(chan result, 1)
	go func() {
		attempt, err := fx.workflow.Submit(ctx, validForm())
		done <- result{attempt, err}
	}()

	<-started
	current, err := fx.workflow.Current()
	if err != nil || current.State != domain.CheckoutStateSubmitting {
		t.Fatalf("expected submitting attempt, got %+v (%v)", current, err)
	}
	if _, err := fx.workflow.Submit(ctx, validForm()); !errors.Is(err, ErrCheckoutInFlight) {
		t.Fatalf("expected ErrCheckoutInFlight, got %v", err)
	}
	if err := fx.workflow.Reset(ctx); !errors.Is(err, ErrCheckoutInFlight) {
		t.Fatalf("expected reset to be refused while submitting, got %v", err)
	}

	cancelled, err := fx.workflow.Cancel(ctx)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.State != domain.CheckoutStateEditing {
		t.Fatalf("expected editing after cancel, got %s", cancelled.State)
	}

	select {
	case res := <-done:
		if !errors.Is(res.err, ErrCheckoutCancelled) {
			t.Fatalf("expected ErrCheckoutCancelled, got %v", res.err)
		}
		if res.attempt.State != domain.CheckoutStateEditing {
			t.Fatalf("expected editing, got %s", res.attempt.State)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("submit did not return after cancel")
	}
	if fx.cart.clears.Load() != 0 || fx.cart.Snapshot().Len() != 2 {
		t.Fatalf("cart must be untouched on cancel")
	}
}

func TestCheckoutCallerContextCancellation(t *testing.T) {
	fx := newCheckoutFixture(t, SimulatedProcessor{Delay: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	attempt, err := fx.workflow.Submit(ctx, validForm())
	if !errors.Is(err, ErrCheckoutCancelled) {
		t.Fatalf("expected ErrCheckoutCancelled, got %v", err)
	}
	if attempt.State != domain.CheckoutStateEditing {
		t.Fatalf("expected editing, got %s", attempt.State)
	}
	if fx.cart.Snapshot().Len() != 2 {
		t.Fatalf("cart must be untouched")
	}
}

func TestCheckoutRapidSubmitsConfirmOnce(t *testing.T) {
	release := make(chan struct{})
	var placed atomic.Int32
	fx := newCheckoutFixture(t, stubProcessor{placeFunc: func(context.Context, OrderRequest) error {
		placed.Add(1)
		<-release
		return nil
	}})
	ctx := context.Background()

	const submits = 10
	var (
		wg        sync.WaitGroup
		confirmed atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < submits; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			attempt, err := fx.workflow.Submit(ctx, validForm())
			switch {
			case err == nil && attempt.State == domain.CheckoutStateConfirmed:
				confirmed.Add(1)
			case errors.Is(err, ErrCheckoutInFlight), errors.Is(err, ErrCheckoutCartEmpty):
				rejected.Add(1)
			default:
				t.Errorf("unexpected submit outcome %+v, %v", attempt, err)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if confirmed.Load() != 1 || rejected.Load() != submits-1 {
		t.Fatalf("expected 1 confirmation and %d rejections, got %d / %d", submits-1, confirmed.Load(), rejected.Load())
	}
	if placed.Load() != 1 || fx.cart.clears.Load() != 1 {
		t.Fatalf("expected one placement and one clear, got %d / %d", placed.Load(), fx.cart.clears.Load())
	}
}

func TestCheckoutHoldsCartWhileSubmitting(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fx := newCheckoutFixture(t, stubProcessor{placeFunc: func(context.Context, OrderRequest) error {
		close(started)
		<-release
		return nil
	}})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := fx.workflow.Submit(ctx, validForm())
		done <- err
	}()

	<-started
	if _, err := fx.cart.AddToCart(ctx, product(3, "C", "5.00"), 1); !errors.Is(err, ErrCartLocked) {
		t.Fatalf("expected ErrCartLocked while submitting, got %v", err)
	}
	if _, err := fx.cart.RemoveFromCart(ctx, 1); !errors.Is(err, ErrCartLocked) {
		t.Fatalf("expected ErrCartLocked for remove, got %v", err)
	}
	if err := fx.cart.ClearCart(ctx); !errors.Is(err, ErrCartLocked) {
		t.Fatalf("expected ErrCartLocked for clear, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Submit: %v", err)
	}

	current, err := fx.workflow.Current()
	if err != nil || current.Confirmation == nil || len(current.Confirmation.Lines) != 2 {
		t.Fatalf("expected confirmation with 2 lines, got %+v (%v)", current, err)
	}
	if !fx.cart.Snapshot().IsEmpty() {
		t.Fatalf("expected ordered cart to be cleared")
	}
	if _, err := fx.cart.AddToCart(ctx, product(3, "C", "5.00"), 1); err != nil {
		t.Fatalf("expected cart to accept changes after confirmation, got %v", err)
	}
}

func TestCheckoutReleasesHoldOnFailureAndCancel(t *testing.T) {
	fx := newCheckoutFixture(t, stubProcessor{placeFunc: func(context.Context, OrderRequest) error {
		return errors.New("card declined")
	}})
	ctx := context.Background()
	if _, err := fx.workflow.Submit(ctx, validForm()); !errors.Is(err, ErrCheckoutFailed) {
		t.Fatalf("expected ErrCheckoutFailed, got %v", err)
	}
	if _, err := fx.cart.AddToCart(ctx, product(3, "C", "5.00"), 1); err != nil {
		t.Fatalf("expected cart unlocked after failure, got %v", err)
	}

	cancelled := newCheckoutFixture(t, SimulatedProcessor{Delay: time.Minute})
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := cancelled.workflow.Submit(runCtx, validForm()); !errors.Is(err, ErrCheckoutCancelled) {
		t.Fatalf("expected ErrCheckoutCancelled, got %v", err)
	}
	if _, err := cancelled.cart.UpdateQuantity(ctx, 1, 5); err != nil {
		t.Fatalf("expected cart unlocked after cancel, got %v", err)
	}
}

func TestSimulatedProcessorHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (SimulatedProcessor{Delay: time.Hour}).PlaceOrder(ctx, OrderRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := (SimulatedProcessor{Delay: time.Millisecond}).PlaceOrder(context.Background(), OrderRequest{}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}
