// Package checkout turns a visitor's cart and contact form into an order.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"jarvisai/internal/cart"
	"jarvisai/internal/session"
	"jarvisai/internal/util"
	"jarvisai/pkg/domain"
)

const (
	DefaultSubmitDelay      = 2 * time.Second
	DefaultConfirmationHold = 3 * time.Second
)

type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Form is the contact form. ReferenceLink is optional and not validated.
type Form struct {
	FullName        string `json:"fullName"`
	Phone           string `json:"phone"`
	SiteDescription string `json:"siteDescription"`
	ReferenceLink   string `json:"referenceLink,omitempty"`
}

// Status is the visible state of the flow.
type Status struct {
	State   State  `json:"state"`
	OrderID string `json:"orderId,omitempty"`
	Notice  string `json:"notice,omitempty"`
	Form    Form   `json:"form"`
}

// OrderCreator is the part of the order store the flow needs.
type OrderCreator interface {
	CreateOrder(ctx context.Context, draft domain.OrderDraft) (string, error)
}

// Options are taken literally: a zero duration means no wait.
type Options struct {
	SubmitDelay      time.Duration
	ConfirmationHold time.Duration
	Logger           *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		SubmitDelay:      DefaultSubmitDelay,
		ConfirmationHold: DefaultConfirmationHold,
	}
}

type Flow struct {
	session *session.Store
	cart    *cart.Store
	orders  OrderCreator
	opts    Options
	logger  *slog.Logger

	mu     sync.Mutex
	status Status
	hold   *time.Timer
}

func New(sess *session.Store, c *cart.Store, orders OrderCreator, opts Options) *Flow {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		session: sess,
		cart:    c,
		orders:  orders,
		opts:    opts,
		logger:  logger,
		status:  Status{State: StateIdle},
	}
}

// Submit validates the preconditions, waits the simulated processing delay
// and creates the order. On success the cart is cleared and the order form
// closed once the confirmation hold elapses.
func (f *Flow) Submit(ctx context.Context, form Form) (string, error) {
	identity, ok := f.session.Current()
	if !ok {
		return "", ErrAuthRequired
	}
	items := f.cart.Items()
	if len(items) == 0 {
		return "", ErrEmptyCart
	}
	form = trimForm(form)
	if err := validateForm(form); err != nil {
		return "", err
	}

	f.mu.Lock()
	// The cart is only cleared when the confirmation hold ends, so a new
	// submit before then would order the same items twice.
	if f.status.State == StateSubmitting || f.status.State == StateSucceeded {
		f.mu.Unlock()
		return "", ErrInProgress
	}
	f.status = Status{State: StateSubmitting, Form: form}
	f.mu.Unlock()

	logger := util.LoggerFromContext(ctx)
	if err := sleepContext(ctx, f.opts.SubmitDelay); err != nil {
		f.fail(form)
		return "", fmt.Errorf("submit order: %w", err)
	}

	orderID, err := f.orders.CreateOrder(ctx, domain.OrderDraft{
		UserID:    identity.ID,
		UserEmail: identity.Email,
		Items:     lo.Map(items, func(item domain.CartItem, _ int) domain.OrderItem { return domain.OrderItemFromCart(item) }),
		CustomerInfo: domain.CustomerInfo{
			FullName:        form.FullName,
			Phone:           form.Phone,
			SiteDescription: form.SiteDescription,
			ReferenceLink:   form.ReferenceLink,
		},
	})
	if err != nil {
		logger.Error("order submission failed", "user_id", identity.ID, "err", err)
		f.fail(form)
		return "", fmt.Errorf("submit order: %w", err)
	}
	logger.Info("order submitted", "order_id", orderID, "user_id", identity.ID, "items", len(items))

	f.mu.Lock()
	f.status = Status{State: StateSucceeded, OrderID: orderID, Form: form}
	if f.opts.ConfirmationHold > 0 {
		f.hold = time.AfterFunc(f.opts.ConfirmationHold, f.finish)
		f.mu.Unlock()
		return orderID, nil
	}
	f.mu.Unlock()
	f.finish()
	return orderID, nil
}

// Status returns the current state of the flow.
func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Close cancels a pending confirmation hold.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hold != nil {
		f.hold.Stop()
		f.hold = nil
	}
}

func (f *Flow) finish() {
	f.cart.Clear()
	f.cart.SetOrderFormOpen(false)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = nil
	if f.status.State == StateSucceeded {
		f.status = Status{State: StateIdle, OrderID: f.status.OrderID}
	}
}

func (f *Flow) fail(form Form) {
	f.mu.Lock()
	f.status = Status{State: StateFailed, Notice: FailureNotice, Form: form}
	f.mu.Unlock()
}

func trimForm(form Form) Form {
	form.FullName = strings.TrimSpace(form.FullName)
	form.Phone = strings.TrimSpace(form.Phone)
	form.SiteDescription = strings.TrimSpace(form.SiteDescription)
	form.ReferenceLink = strings.TrimSpace(form.ReferenceLink)
	return form
}

func validateForm(form Form) error {
	var missing []string
	if form.FullName == "" {
		missing = append(missing, "fullName")
	}
	if form.Phone == "" {
		missing = append(missing, "phone")
	}
	if form.SiteDescription == "" {
		missing = append(missing, "siteDescription")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
