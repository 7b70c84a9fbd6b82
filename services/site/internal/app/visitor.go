package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jarvisai/internal/cart"
	"jarvisai/internal/checkout"
	"jarvisai/internal/session"
	"jarvisai/pkg/kv"
)

// Visitor is one anonymous browser session. Its identity is persisted under a
// per-visitor key prefix. The cart lives in memory only.
type Visitor struct {
	ID       string
	Session  *session.Store
	Cart     *cart.Store
	Checkout *checkout.Flow

	lastSeen time.Time
}

func (v *Visitor) close() {
	v.Checkout.Close()
}

// NewVisitorID returns a fresh visitor id.
func NewVisitorID() string {
	return uuid.NewString()
}

// Visitor returns the state for id, restoring it on first use. Ids must be
// UUIDs so they can be used as key prefixes.
func (a *App) Visitor(ctx context.Context, id string) (*Visitor, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVisitor, err)
	}
	id = parsed.String()

	a.mu.Lock()
	if v, ok := a.visitors[id]; ok {
		v.lastSeen = a.now()
		a.mu.Unlock()
		return v, nil
	}
	a.mu.Unlock()

	// Restore outside the lock; the session read may hit the network.
	sess := session.New(ctx, kv.WithPrefix(a.kv, "visitor:"+id), session.Options{Logger: a.logger, Now: a.now})
	c := cart.New()
	v := &Visitor{
		ID:       id,
		Session:  sess,
		Cart:     c,
		Checkout: checkout.New(sess, c, a.orders, a.checkout),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.visitors[id]; ok {
		existing.lastSeen = a.now()
		return existing, nil
	}
	v.lastSeen = a.now()
	a.visitors[id] = v
	return v, nil
}

// PruneVisitors drops visitors idle for longer than idle. Their persisted
// identity survives and is restored on the next request.
func (a *App) PruneVisitors(idle time.Duration) int {
	cutoff := a.now().Add(-idle)
	var dropped []*Visitor
	a.mu.Lock()
	for id, v := range a.visitors {
		if v.lastSeen.Before(cutoff) {
			dropped = append(dropped, v)
			delete(a.visitors, id)
		}
	}
	a.mu.Unlock()
	for _, v := range dropped {
		v.close()
	}
	return len(dropped)
}

// VisitorCount reports the number of in-memory visitors.
func (a *App) VisitorCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.visitors)
}

// RunJanitor prunes idle visitors every interval until ctx is done.
func (a *App) RunJanitor(ctx context.Context, interval, idle time.Duration) error {
	if interval <= 0 || idle <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := a.PruneVisitors(idle); n > 0 {
				a.logger.Info("pruned idle visitors", "count", n)
			}
		}
	}
}
