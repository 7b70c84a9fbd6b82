package cart

import (
	"errors"
	"testing"

	"jarvisai/pkg/domain"
)

func TestAddTierIsIdempotent(t *testing.T) {
	s := New()
	added, err := s.AddTier("pro")
	if err != nil || !added {
		t.Fatalf("first add: added=%v err=%v", added, err)
	}
	added, err = s.AddTier("pro")
	if err != nil || added {
		t.Fatalf("duplicate add should be a no-op: added=%v err=%v", added, err)
	}
	if s.TotalItems() != 1 {
		t.Fatalf("TotalItems = %d, want 1", s.TotalItems())
	}
}

func TestAddTierUnknown(t *testing.T) {
	if _, err := New().AddTier("ultra"); !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("expected ErrUnknownTier, got %v", err)
	}
}

func TestRemoveAndClear(t *testing.T) {
	s := New()
	_, _ = s.AddTier("basic")
	_, _ = s.AddTier("max")

	if s.RemoveItem("pro") {
		t.Fatalf("removing an absent id should be a no-op")
	}
	if !s.RemoveItem("basic") {
		t.Fatalf("expected basic to be removed")
	}
	items := s.Items()
	if len(items) != 1 || items[0].ID != "max" {
		t.Fatalf("unexpected items: %+v", items)
	}
	s.Clear()
	if s.TotalItems() != 0 {
		t.Fatalf("cart should be empty")
	}
}

func TestItemsReturnsCopy(t *testing.T) {
	s := New()
	_, _ = s.AddTier("basic")
	items := s.Items()
	items[0].Name = "mutated"
	items[0].Features[0] = "mutated"
	again := s.Items()
	if again[0].Name == "mutated" || again[0].Features[0] == "mutated" {
		t.Fatalf("Items must not expose internal state")
	}
}

func TestTotal(t *testing.T) {
	s := New()
	_, _ = s.AddTier("basic")
	_, _ = s.AddTier("pro")
	total, err := s.Total()
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if got := total.Display(); got != "6 500 000 UZS" {
		t.Fatalf("total = %q", got)
	}
}

func TestPanelsAndObservers(t *testing.T) {
	s := New()
	var snaps []Snapshot
	unsubscribe := s.Subscribe(func(snap Snapshot) { snaps = append(snaps, snap) })
	defer unsubscribe()

	s.AddItem(domain.CartItem{ID: "custom", Price: "1 000"})
	s.SetCartOpen(true)
	s.SetOrderFormOpen(true)

	if !s.CartOpen() || !s.OrderFormOpen() {
		t.Fatalf("panels should be open")
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(snaps))
	}
	last := snaps[2]
	if last.TotalItems != 1 || !last.CartOpen || !last.OrderFormOpen {
		t.Fatalf("unexpected final snapshot: %+v", last)
	}
}
