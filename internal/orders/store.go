// Package orders owns the global order collection. Every mutation is
// written through to the key-value store before it becomes visible.
package orders

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"jarvisai/internal/notify"
	"jarvisai/internal/util"
	"jarvisai/pkg/domain"
	"jarvisai/pkg/kv"
)

// Key holds the whole collection as one JSON array.
const Key = "jarvis_orders"

type ChangeKind string

const (
	ChangeCreated       ChangeKind = "created"
	ChangeStatusChanged ChangeKind = "status_changed"
	ChangeCleared       ChangeKind = "cleared"
)

// Change is delivered to observers after a mutation has been persisted.
// Order is zero for ChangeCleared.
type Change struct {
	Kind  ChangeKind
	Order domain.Order
}

type Options struct {
	Logger *slog.Logger
	Now    func() time.Time
}

// Writers hold publishMu across commit and publish so observers see changes
// in commit order. Observers may read the store but must not mutate it.
type Store struct {
	publishMu sync.Mutex
	mu        sync.Mutex
	kv        kv.Store
	orders    []domain.Order
	now       func() time.Time
	logger    *slog.Logger
	hub       notify.Hub[Change]
}

// New restores the persisted collection. Restore fails open: unreadable
// data is logged and the store starts empty.
func New(ctx context.Context, store kv.Store, opts Options) *Store {
	s := &Store{kv: store, now: opts.Now, logger: opts.Logger}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = util.LoggerFromContext(ctx)
	}
	var restored []domain.Order
	if _, err := kv.LoadJSON(ctx, store, Key, &restored); err != nil {
		s.logger.Warn("orders restore failed", "err", err)
		restored = nil
	}
	s.orders = restored
	return s
}

// CreateOrder assigns id, timestamps and pending status, then persists the
// whole collection before returning the id.
func (s *Store) CreateOrder(ctx context.Context, draft domain.OrderDraft) (string, error) {
	if len(draft.Items) == 0 {
		return "", ErrEmptyOrder
	}
	now := s.now().UTC()
	order := domain.Order{
		ID:           util.NewTimestampID("order", now),
		UserID:       draft.UserID,
		UserEmail:    draft.UserEmail,
		Items:        append([]domain.OrderItem(nil), draft.Items...),
		CustomerInfo: draft.CustomerInfo,
		Status:       domain.OrderPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	next := append(cloneOrders(s.orders), order)
	if err := s.persistLocked(ctx, next); err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.orders = next
	s.mu.Unlock()

	s.hub.Publish(Change{Kind: ChangeCreated, Order: cloneOrder(order)})
	return order.ID, nil
}

// UpdateOrderStatus moves a pending order to confirmed or rejected. An
// unknown id is a silent no-op (found=false, nil error); repeating the
// current status changes nothing.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, bool, error) {
	if _, ok := domain.ParseOrderStatus(string(status)); !ok {
		return domain.Order{}, false, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	idx := s.indexLocked(orderID)
	if idx < 0 {
		s.mu.Unlock()
		return domain.Order{}, false, nil
	}
	current := s.orders[idx]
	if current.Status == status {
		s.mu.Unlock()
		return cloneOrder(current), true, nil
	}
	if current.Status.Final() || status == domain.OrderPending {
		s.mu.Unlock()
		return cloneOrder(current), true, fmt.Errorf("%w: %s -> %s", ErrStatusFinal, current.Status, status)
	}

	next := cloneOrders(s.orders)
	updated := next[idx]
	updated.Status = status
	updated.UpdatedAt = s.now().UTC()
	if !updated.UpdatedAt.After(current.UpdatedAt) {
		updated.UpdatedAt = current.UpdatedAt.Add(time.Millisecond)
	}
	next[idx] = updated
	if err := s.persistLocked(ctx, next); err != nil {
		s.mu.Unlock()
		return cloneOrder(current), true, err
	}
	s.orders = next
	s.mu.Unlock()

	s.hub.Publish(Change{Kind: ChangeStatusChanged, Order: cloneOrder(updated)})
	return cloneOrder(updated), true, nil
}

// UserOrders returns the orders placed by userID in insertion order.
func (s *Store) UserOrders(userID string) []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneOrders(lo.Filter(s.orders, func(o domain.Order, _ int) bool {
		return o.UserID == userID
	}))
}

func (s *Store) AllOrders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneOrders(s.orders)
}

func (s *Store) Order(orderID string) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(orderID)
	if idx < 0 {
		return domain.Order{}, false
	}
	return cloneOrder(s.orders[idx]), true
}

// Clear removes every order and the persisted collection.
func (s *Store) Clear(ctx context.Context) error {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	if err := s.kv.Delete(ctx, Key); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("delete orders: %w", err)
	}
	s.orders = nil
	s.mu.Unlock()

	s.hub.Publish(Change{Kind: ChangeCleared})
	return nil
}

func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	return s.hub.Subscribe(fn)
}

func (s *Store) persistLocked(ctx context.Context, orders []domain.Order) error {
	if orders == nil {
		orders = []domain.Order{}
	}
	if err := kv.SaveJSON(ctx, s.kv, Key, orders); err != nil {
		return fmt.Errorf("persist orders: %w", err)
	}
	return nil
}

func (s *Store) indexLocked(orderID string) int {
	_, idx, ok := lo.FindIndexOf(s.orders, func(o domain.Order) bool { return o.ID == orderID })
	if !ok {
		return -1
	}
	return idx
}

func cloneOrders(orders []domain.Order) []domain.Order {
	out := make([]domain.Order, len(orders))
	for i, o := range orders {
		out[i] = cloneOrder(o)
	}
	return out
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}
