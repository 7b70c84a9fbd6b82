package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"jarvisai/internal/checkout"
	"jarvisai/pkg/ai"
	"jarvisai/pkg/auth"
	"jarvisai/pkg/events"
	"jarvisai/pkg/kv"
	"jarvisai/pkg/speech"
)

type stubProvider struct{}

func (stubProvider) Name() string  { return "stub" }
func (stubProvider) Model() string { return "stub-model" }
func (stubProvider) Chat(context.Context, []ai.ChatMessage) (string, error) {
	return "ok", nil
}
func (stubProvider) StreamChat(context.Context, []ai.ChatMessage) (ai.Stream, error) {
	return nil, errors.New("not implemented")
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestApp(t *testing.T, store kv.Store, cfg Config) *App {
	t.Helper()
	router, err := ai.NewRouter(stubProvider{}, nil, nil)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	tokens, err := auth.NewAdminTokens("0123456789abcdef", auth.AdminTokenOptions{})
	if err != nil {
		t.Fatalf("new admin tokens: %v", err)
	}
	cfg.KV = store
	cfg.Chat = router
	cfg.AdminTokens = tokens
	cfg.AdminCredential = auth.Credential{Plain: "secret"}
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without kv store")
	}
}

func TestVisitorRejectsMalformedID(t *testing.T) {
	a := newTestApp(t, kv.NewMemoryStore(), Config{})
	_, err := a.Visitor(context.Background(), "../../admin_authenticated")
	if !errors.Is(err, ErrInvalidVisitor) {
		t.Fatalf("expected ErrInvalidVisitor, got %v", err)
	}
}

func TestVisitorsAreIsolatedAndRestored(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	a := newTestApp(t, store, Config{})

	aliceID, bobID := NewVisitorID(), NewVisitorID()
	alice, err := a.Visitor(ctx, aliceID)
	if err != nil {
		t.Fatalf("visitor: %v", err)
	}
	if _, err := alice.Session.Login(ctx, "Alice", "alice@example.com"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := alice.Cart.AddTier("pro"); err != nil {
		t.Fatalf("add tier: %v", err)
	}
	again, err := a.Visitor(ctx, aliceID)
	if err != nil || again != alice {
		t.Fatalf("expected cached visitor, got %p (%v)", again, err)
	}

	bob, err := a.Visitor(ctx, bobID)
	if err != nil {
		t.Fatalf("visitor: %v", err)
	}
	if bob.Session.IsAuthenticated() || bob.Cart.TotalItems() != 0 {
		t.Fatalf("visitor state leaked between visitors")
	}

	// A fresh process over the same store restores the identity but not the cart.
	restarted := newTestApp(t, store, Config{})
	alice2, err := restarted.Visitor(ctx, aliceID)
	if err != nil {
		t.Fatalf("visitor: %v", err)
	}
	got, ok := alice2.Session.Current()
	if !ok || got.Email != "alice@example.com" {
		t.Fatalf("expected restored identity, got %+v ok=%v", got, ok)
	}
	if alice2.Cart.TotalItems() != 0 {
		t.Fatalf("cart must not be persisted")
	}
}

func TestPruneVisitors(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	a := newTestApp(t, kv.NewMemoryStore(), Config{Now: clock})
	if _, err := a.Visitor(context.Background(), NewVisitorID()); err != nil {
		t.Fatalf("visitor: %v", err)
	}
	if n := a.PruneVisitors(time.Hour); n != 0 {
		t.Fatalf("expected nothing pruned, got %d", n)
	}
	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()
	if n := a.PruneVisitors(time.Hour); n != 1 {
		t.Fatalf("expected one pruned visitor, got %d", n)
	}
	if a.VisitorCount() != 0 {
		t.Fatalf("expected empty registry")
	}
}

func TestOrderChangesReachPublisher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pub := &capturePublisher{}
	dispatcher := events.NewDispatcher(pub, 8, nil)
	done := make(chan struct{})
	go func() {
		_ = dispatcher.Run(ctx)
		close(done)
	}()

	a := newTestApp(t, kv.NewMemoryStore(), Config{Events: dispatcher, Checkout: checkout.Options{}})
	v, err := a.Visitor(ctx, NewVisitorID())
	if err != nil {
		t.Fatalf("visitor: %v", err)
	}
	if _, err := v.Session.Login(ctx, "Alice", "alice@example.com"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := v.Cart.AddTier("basic"); err != nil {
		t.Fatalf("add tier: %v", err)
	}
	orderID, err := v.Checkout.Submit(ctx, checkout.Form{FullName: "Alice", Phone: "+998901234567", SiteDescription: "shop"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := a.Admin().Login(ctx, "secret"); err != nil {
		t.Fatalf("admin login: %v", err)
	}
	if _, err := a.Admin().Confirm(ctx, orderID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	cancel()
	<-done
	got := pub.types()
	want := []string{events.TypeOrderCreated, events.TypeOrderStatusChanged}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected events %v, got %v", want, got)
	}
}

func TestSynthesizeWithoutBackend(t *testing.T) {
	a := newTestApp(t, kv.NewMemoryStore(), Config{})
	_, err := a.Synthesize(context.Background(), speech.Request{Text: "привет"})
	if !errors.Is(err, ErrSpeechDisabled) {
		t.Fatalf("expected ErrSpeechDisabled, got %v", err)
	}
}
