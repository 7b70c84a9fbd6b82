// Package events publishes order lifecycle events to downstream consumers.
package events

import (
	"context"
	"time"

	"jarvisai/pkg/domain"
)

const (
	TypeOrderCreated       = "order.created"
	TypeOrderStatusChanged = "order.status_changed"
	TypeOrdersCleared      = "orders.cleared"
)

type Event struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	OrderID    string        `json:"orderId,omitempty"`
	UserID     string        `json:"userId,omitempty"`
	Status     string        `json:"status,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
	Order      *domain.Order `json:"order,omitempty"`
}

// Publisher delivers one event. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}
