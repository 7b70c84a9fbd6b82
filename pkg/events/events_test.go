package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"jarvisai/internal/orders"
	"jarvisai/pkg/domain"
	"jarvisai/pkg/kv"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingPublisher) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestDispatcherPublishesOrderChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, 16, nil)
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	store := orders.New(context.Background(), kv.NewMemoryStore(), orders.Options{})
	store.Subscribe(d.OrderChanged)
	tier, _ := domain.TierByID("basic")
	id, err := store.CreateOrder(context.Background(), domain.OrderDraft{
		UserID: "user_1",
		Items:  []domain.OrderItem{domain.OrderItemFromCart(tier.CartItem())},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := store.UpdateOrderStatus(context.Background(), id, domain.OrderConfirmed); err != nil {
		t.Fatalf("update: %v", err)
	}

	cancel()
	<-done
	got := pub.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != TypeOrderCreated || got[0].OrderID != id || got[0].UserID != "user_1" {
		t.Fatalf("unexpected created event: %+v", got[0])
	}
	if got[1].Type != TypeOrderStatusChanged || got[1].Status != "confirmed" || got[1].Order == nil {
		t.Fatalf("unexpected status event: %+v", got[1])
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, 1, nil)
	d.Enqueue(Event{Type: TypeOrderCreated, OrderID: "a"})
	d.Enqueue(Event{Type: TypeOrderCreated, OrderID: "b"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = d.Run(ctx)
	got := pub.snapshot()
	if len(got) != 1 || got[0].OrderID != "a" {
		t.Fatalf("expected only the first event, got %+v", got)
	}
}

func TestRedisStreamPublisher(t *testing.T) {
	mr := miniredis.RunT(t)
	pub, err := NewRedisStreamPublisher(RedisStreamConfig{Addr: mr.Addr(), Stream: "test:events"})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	defer pub.Close()

	evt := Event{ID: "evt-1", Type: TypeOrderCreated, OrderID: "order_1", OccurredAt: time.Now().UTC()}
	if err := pub.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}
	entries, err := mr.Stream("test:events")
	if err != nil || len(entries) != 1 {
		t.Fatalf("stream entries: %v %v", entries, err)
	}
	values := map[string]string{}
	for i := 0; i+1 < len(entries[0].Values); i += 2 {
		values[entries[0].Values[i]] = entries[0].Values[i+1]
	}
	if values["type"] != TypeOrderCreated || values["order_id"] != "order_1" {
		t.Fatalf("unexpected values: %v", values)
	}
	var decoded Event
	if err := json.Unmarshal([]byte(values["payload"]), &decoded); err != nil || decoded.ID != "evt-1" {
		t.Fatalf("payload: %+v %v", decoded, err)
	}
}

func TestNewRedisStreamPublisherRequiresAddr(t *testing.T) {
	if p, err := NewRedisStreamPublisher(RedisStreamConfig{}); err == nil || p != nil {
		t.Fatalf("expected constructor error")
	}
}

func TestNewAMQPPublisherRequiresURL(t *testing.T) {
	if p, err := NewAMQPPublisher(" ", ""); err == nil || p != nil {
		t.Fatalf("expected constructor error")
	}
}
