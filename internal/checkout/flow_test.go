package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"jarvisai/internal/cart"
	"jarvisai/internal/orders"
	"jarvisai/internal/session"
	"jarvisai/pkg/domain"
	"jarvisai/pkg/kv"
)

type fixture struct {
	session *session.Store
	cart    *cart.Store
	orders  *orders.Store
	backend *kv.MemoryStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	return fixture{
		session: session.New(ctx, kv.NewMemoryStore(), session.Options{}),
		cart:    cart.New(),
		orders:  orders.New(ctx, backend, orders.Options{}),
		backend: backend,
	}
}

var validForm = Form{
	FullName:        "Ann Smith",
	Phone:           "+998 90 123 45 67",
	SiteDescription: "Online flower shop",
}

func TestSubmitCreatesOrderAndClearsCart(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	user, err := fx.session.Login(ctx, "Ann", "ann@example.com")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	_, _ = fx.cart.AddTier("basic")
	_, _ = fx.cart.AddTier("pro")
	fx.cart.SetOrderFormOpen(true)

	flow := New(fx.session, fx.cart, fx.orders, Options{})
	id, err := flow.Submit(ctx, validForm)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	order, ok := fx.orders.Order(id)
	if !ok {
		t.Fatalf("order not stored")
	}
	if order.Status != domain.OrderPending || order.UserID != user.ID || order.UserEmail != user.Email {
		t.Fatalf("unexpected order: %+v", order)
	}
	if len(order.Items) != 2 || order.Items[0].ID != "basic" || order.Items[1].ID != "pro" {
		t.Fatalf("unexpected items: %+v", order.Items)
	}
	if fx.cart.TotalItems() != 0 || fx.cart.OrderFormOpen() {
		t.Fatalf("cart should be cleared and the form closed")
	}
	if st := flow.Status(); st.State != StateIdle || st.OrderID != id {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestSubmitHoldsConfirmationBeforeClearing(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, _ = fx.session.Login(ctx, "Ann", "ann@example.com")
	_, _ = fx.cart.AddTier("max")

	flow := New(fx.session, fx.cart, fx.orders, Options{ConfirmationHold: 50 * time.Millisecond})
	defer flow.Close()
	if _, err := flow.Submit(ctx, validForm); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if flow.Status().State != StateSucceeded || fx.cart.TotalItems() != 1 {
		t.Fatalf("cart must survive until the hold elapses")
	}
	deadline := time.Now().Add(2 * time.Second)
	for fx.cart.TotalItems() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("cart was not cleared after the hold")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmitDuringConfirmationHoldIsRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, _ = fx.session.Login(ctx, "Ann", "ann@example.com")
	_, _ = fx.cart.AddTier("pro")

	flow := New(fx.session, fx.cart, fx.orders, Options{ConfirmationHold: time.Hour})
	defer flow.Close()
	id, err := flow.Submit(ctx, validForm)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := flow.Submit(ctx, validForm); !errors.Is(err, ErrInProgress) {
		t.Fatalf("expected ErrInProgress during hold, got %v", err)
	}
	if n := len(fx.orders.AllOrders()); n != 1 {
		t.Fatalf("expected a single order, got %d", n)
	}
	if st := flow.Status(); st.State != StateSucceeded || st.OrderID != id {
		t.Fatalf("hold should keep the confirmation: %+v", st)
	}
}

func TestSubmitRequiresIdentity(t *testing.T) {
	fx := newFixture(t)
	_, _ = fx.cart.AddTier("basic")
	flow := New(fx.session, fx.cart, fx.orders, Options{})
	if _, err := flow.Submit(context.Background(), validForm); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	if len(fx.orders.AllOrders()) != 0 {
		t.Fatalf("no order may be created without identity")
	}
}

func TestSubmitRequiresItems(t *testing.T) {
	fx := newFixture(t)
	_, _ = fx.session.Login(context.Background(), "Ann", "ann@example.com")
	flow := New(fx.session, fx.cart, fx.orders, Options{})
	if _, err := flow.Submit(context.Background(), validForm); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestSubmitValidatesForm(t *testing.T) {
	fx := newFixture(t)
	_, _ = fx.session.Login(context.Background(), "Ann", "ann@example.com")
	_, _ = fx.cart.AddTier("basic")
	flow := New(fx.session, fx.cart, fx.orders, Options{})

	_, err := flow.Submit(context.Background(), Form{FullName: "Ann", ReferenceLink: "not a url"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Fields) != 2 || verr.Fields[0] != "phone" || verr.Fields[1] != "siteDescription" {
		t.Fatalf("unexpected missing fields: %v", verr.Fields)
	}
}

func TestSubmitFailureShowsNotice(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, _ = fx.session.Login(ctx, "Ann", "ann@example.com")
	_, _ = fx.cart.AddTier("basic")
	fx.backend.FailWrites(errors.New("unavailable"))

	flow := New(fx.session, fx.cart, fx.orders, Options{})
	if _, err := flow.Submit(ctx, validForm); err == nil {
		t.Fatalf("expected failure")
	}
	st := flow.Status()
	if st.State != StateFailed || st.Notice != FailureNotice {
		t.Fatalf("unexpected status: %+v", st)
	}
	if fx.cart.TotalItems() != 1 {
		t.Fatalf("cart must be kept after a failed submission")
	}
}

func TestSubmitHonoursContextDuringDelay(t *testing.T) {
	fx := newFixture(t)
	_, _ = fx.session.Login(context.Background(), "Ann", "ann@example.com")
	_, _ = fx.cart.AddTier("basic")
	flow := New(fx.session, fx.cart, fx.orders, Options{SubmitDelay: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := flow.Submit(ctx, validForm); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if len(fx.orders.AllOrders()) != 0 {
		t.Fatalf("cancelled submission must not create an order")
	}
}
