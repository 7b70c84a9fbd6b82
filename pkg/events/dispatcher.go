package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"jarvisai/internal/orders"
)

// Dispatcher decouples store observers from the publisher: Enqueue never
// blocks and Run drains the buffer on its own goroutine.
type Dispatcher struct {
	publisher Publisher
	queue     chan Event
	logger    *slog.Logger
	now       func() time.Time

	closeOnce sync.Once
	done      chan struct{}
}

func NewDispatcher(publisher Publisher, buffer int, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		publisher: publisher,
		queue:     make(chan Event, buffer),
		logger:    logger,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// OrderChanged converts a store change into an event and enqueues it.
// Register it with orders.Store.Subscribe.
func (d *Dispatcher) OrderChanged(change orders.Change) {
	evt := Event{
		ID:         uuid.NewString(),
		OccurredAt: d.now().UTC(),
	}
	switch change.Kind {
	case orders.ChangeCreated:
		evt.Type = TypeOrderCreated
	case orders.ChangeStatusChanged:
		evt.Type = TypeOrderStatusChanged
	case orders.ChangeCleared:
		evt.Type = TypeOrdersCleared
	default:
		return
	}
	if change.Kind != orders.ChangeCleared {
		order := change.Order
		evt.OrderID = order.ID
		evt.UserID = order.UserID
		evt.Status = string(order.Status)
		evt.Order = &order
	}
	d.Enqueue(evt)
}

// Enqueue drops the event when the buffer is full or the dispatcher is closed.
func (d *Dispatcher) Enqueue(evt Event) {
	select {
	case <-d.done:
		d.logger.Warn("order event dropped after shutdown", "type", evt.Type, "order_id", evt.OrderID)
		return
	default:
	}
	select {
	case d.queue <- evt:
	default:
		d.logger.Warn("order event dropped, buffer full", "type", evt.Type, "order_id", evt.OrderID)
	}
}

// Run publishes queued events until ctx is cancelled, then flushes what is
// already buffered.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-d.queue:
			d.publish(ctx, evt)
		case <-ctx.Done():
			d.closeOnce.Do(func() { close(d.done) })
			d.flush()
			return nil
		}
	}
}

func (d *Dispatcher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case evt := <-d.queue:
			d.publish(ctx, evt)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, evt Event) {
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.publisher.Publish(pubCtx, evt); err != nil {
		d.logger.Error("order event publish failed", "type", evt.Type, "order_id", evt.OrderID, "err", err)
	}
}
