package events

import (
	"context"
	"log/slog"
)

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, evt Event) error {
	p.logger.InfoContext(ctx, "order_event",
		"event_id", evt.ID,
		"type", evt.Type,
		"order_id", evt.OrderID,
		"user_id", evt.UserID,
		"status", evt.Status,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
