// Package cart keeps one visitor's selected tiers. Nothing here is persisted.
package cart

import (
	"errors"
	"sync"

	"github.com/samber/lo"

	"jarvisai/internal/notify"
	"jarvisai/pkg/domain"
)

var ErrUnknownTier = errors.New("unknown tier")

// Snapshot is what observers receive after each change.
type Snapshot struct {
	Items         []domain.CartItem `json:"items"`
	TotalItems    int               `json:"totalItems"`
	CartOpen      bool              `json:"cartOpen"`
	OrderFormOpen bool              `json:"orderFormOpen"`
}

type Store struct {
	mu            sync.Mutex
	items         []domain.CartItem
	cartOpen      bool
	orderFormOpen bool
	hub           notify.Hub[Snapshot]
}

func New() *Store {
	return &Store{}
}

// AddItem appends item unless a line with the same id exists. It reports
// whether the cart changed.
func (s *Store) AddItem(item domain.CartItem) bool {
	s.mu.Lock()
	if lo.ContainsBy(s.items, func(existing domain.CartItem) bool { return existing.ID == item.ID }) {
		s.mu.Unlock()
		return false
	}
	item.Features = append([]string(nil), item.Features...)
	s.items = append(s.items, item)
	s.mu.Unlock()

	s.publish()
	return true
}

// AddTier resolves a catalog tier and adds it.
func (s *Store) AddTier(tierID string) (bool, error) {
	tier, ok := domain.TierByID(tierID)
	if !ok {
		return false, ErrUnknownTier
	}
	return s.AddItem(tier.CartItem()), nil
}

// RemoveItem drops the line with id; absent ids are ignored.
func (s *Store) RemoveItem(id string) bool {
	s.mu.Lock()
	before := len(s.items)
	s.items = lo.Reject(s.items, func(item domain.CartItem, _ int) bool { return item.ID == id })
	changed := len(s.items) != before
	s.mu.Unlock()

	if changed {
		s.publish()
	}
	return changed
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
	s.publish()
}

func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Items returns a copy of the line items in insertion order.
func (s *Store) Items() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items)
}

// Total sums the line prices.
func (s *Store) Total() (domain.Money, error) {
	items := s.Items()
	return domain.SumPrices(lo.Map(items, func(item domain.CartItem, _ int) string { return item.Price }))
}

func (s *Store) SetCartOpen(open bool) {
	s.mu.Lock()
	s.cartOpen = open
	s.mu.Unlock()
	s.publish()
}

func (s *Store) CartOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartOpen
}

func (s *Store) SetOrderFormOpen(open bool) {
	s.mu.Lock()
	s.orderFormOpen = open
	s.mu.Unlock()
	s.publish()
}

func (s *Store) OrderFormOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderFormOpen
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Items:         cloneItems(s.items),
		TotalItems:    len(s.items),
		CartOpen:      s.cartOpen,
		OrderFormOpen: s.orderFormOpen,
	}
}

func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return s.hub.Subscribe(fn)
}

func (s *Store) publish() {
	s.hub.Publish(s.Snapshot())
}

func cloneItems(items []domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, len(items))
	for i, item := range items {
		item.Features = append([]string(nil), item.Features...)
		out[i] = item
	}
	return out
}
