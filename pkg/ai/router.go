package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Router tries the primary provider and falls back to the secondary one when
// the primary fails before producing a response.
type Router struct {
	primary  Provider
	fallback Provider
	logger   *slog.Logger
}

// NewRouter builds a router. Either provider may be nil, not both.
func NewRouter(primary, fallback Provider, logger *slog.Logger) (*Router, error) {
	if primary == nil && fallback == nil {
		return nil, errors.New("router requires at least one provider")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{primary: primary, fallback: fallback, logger: logger}, nil
}

func (r *Router) Name() string { return "router" }

func (r *Router) Model() string {
	if r.primary != nil {
		return r.primary.Model()
	}
	return r.fallback.Model()
}

// Primary and Fallback return nil when that slot is empty.
func (r *Router) Primary() Provider  { return r.primary }
func (r *Router) Fallback() Provider { return r.fallback }

// Providers lists the configured providers, primary first.
func (r *Router) Providers() []Provider {
	out := make([]Provider, 0, 2)
	for _, p := range []Provider{r.primary, r.fallback} {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (r *Router) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	var errs []error
	for i, p := range r.Providers() {
		text, err := p.Chat(ctx, messages)
		if err == nil {
			return text, nil
		}
		errs = append(errs, err)
		r.logFailure(ctx, i, p, err)
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(errs...))
}

// StreamChat falls back only while opening the stream. Once fragments flow,
// errors are returned to the reader as-is.
func (r *Router) StreamChat(ctx context.Context, messages []ChatMessage) (Stream, error) {
	var errs []error
	for i, p := range r.Providers() {
		stream, err := p.StreamChat(ctx, messages)
		if err == nil {
			return stream, nil
		}
		errs = append(errs, err)
		r.logFailure(ctx, i, p, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(errs...))
}

func (r *Router) logFailure(ctx context.Context, idx int, p Provider, err error) {
	role := "primary"
	if idx > 0 || r.primary == nil {
		role = "fallback"
	}
	r.logger.WarnContext(ctx, "chat provider failed", "role", role, "provider", p.Name(), "model", p.Model(), "err", err)
}
