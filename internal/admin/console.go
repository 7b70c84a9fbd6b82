// Package admin implements the order-management console.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"jarvisai/internal/orders"
	"jarvisai/internal/util"
	"jarvisai/pkg/auth"
	"jarvisai/pkg/domain"
	"jarvisai/pkg/kv"
)

// FlagKey marks the console as unlocked. It never expires.
const FlagKey = "admin_authenticated"

var flagValue = []byte("true")

// Stats summarizes the order collection.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Rejected  int `json:"rejected"`
}

type Console struct {
	kv         kv.Store
	orders     *orders.Store
	credential auth.Credential
	logger     *slog.Logger

	mu            sync.Mutex
	authenticated bool
	selectedID    string
}

// New restores the persisted flag. Read failures leave the console locked.
func New(ctx context.Context, store kv.Store, orderStore *orders.Store, credential auth.Credential, logger *slog.Logger) *Console {
	if logger == nil {
		logger = util.LoggerFromContext(ctx)
	}
	c := &Console{kv: store, orders: orderStore, credential: credential, logger: logger}
	raw, ok, err := store.Get(ctx, FlagKey)
	if err != nil {
		logger.Warn("admin flag restore failed", "err", err)
	}
	c.authenticated = ok && string(raw) == string(flagValue)
	return c
}

func (c *Console) Login(ctx context.Context, password string) error {
	if !c.credential.Configured() {
		return ErrNotConfigured
	}
	if !c.credential.Check(password) {
		return ErrInvalidPassword
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.kv.Set(ctx, FlagKey, flagValue); err != nil {
		return fmt.Errorf("persist admin flag: %w", err)
	}
	c.authenticated = true
	return nil
}

// Logout locks the console and forgets the selection.
func (c *Console) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authenticated = false
	c.selectedID = ""
	if err := c.kv.Delete(ctx, FlagKey); err != nil {
		return fmt.Errorf("delete admin flag: %w", err)
	}
	return nil
}

func (c *Console) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// Orders lists every order in insertion order.
func (c *Console) Orders() ([]domain.Order, error) {
	if !c.IsAuthenticated() {
		return nil, ErrUnauthorized
	}
	return c.orders.AllOrders(), nil
}

func (c *Console) Stats() (Stats, error) {
	all, err := c.Orders()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Total: len(all)}
	for _, o := range all {
		switch o.Status {
		case domain.OrderPending:
			stats.Pending++
		case domain.OrderConfirmed:
			stats.Confirmed++
		case domain.OrderRejected:
			stats.Rejected++
		}
	}
	return stats, nil
}

func (c *Console) Confirm(ctx context.Context, orderID string) (domain.Order, error) {
	return c.setStatus(ctx, orderID, domain.OrderConfirmed)
}

func (c *Console) Reject(ctx context.Context, orderID string) (domain.Order, error) {
	return c.setStatus(ctx, orderID, domain.OrderRejected)
}

func (c *Console) setStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error) {
	if !c.IsAuthenticated() {
		return domain.Order{}, ErrUnauthorized
	}
	order, found, err := c.orders.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		return order, err
	}
	if !found {
		return domain.Order{}, ErrOrderNotFound
	}
	util.LoggerFromContext(ctx).Info("order status changed", "order_id", orderID, "status", order.Status)
	return order, nil
}

// Select remembers which order the detail view shows. Only the id is kept.
func (c *Console) Select(orderID string) error {
	if !c.IsAuthenticated() {
		return ErrUnauthorized
	}
	c.mu.Lock()
	c.selectedID = orderID
	c.mu.Unlock()
	return nil
}

// Selected re-reads the selected order from the store, so the detail view
// reflects status changes made since selection.
func (c *Console) Selected() (domain.Order, bool, error) {
	if !c.IsAuthenticated() {
		return domain.Order{}, false, ErrUnauthorized
	}
	c.mu.Lock()
	id := c.selectedID
	c.mu.Unlock()
	if id == "" {
		return domain.Order{}, false, nil
	}
	order, ok := c.orders.Order(id)
	return order, ok, nil
}

func (c *Console) ClearSelection() {
	c.mu.Lock()
	c.selectedID = ""
	c.mu.Unlock()
}

// ClearOrders wipes the whole order collection.
func (c *Console) ClearOrders(ctx context.Context) error {
	if !c.IsAuthenticated() {
		return ErrUnauthorized
	}
	if err := c.orders.Clear(ctx); err != nil {
		return err
	}
	c.ClearSelection()
	return nil
}
