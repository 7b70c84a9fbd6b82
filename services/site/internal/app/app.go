package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"jarvisai/internal/admin"
	"jarvisai/internal/checkout"
	"jarvisai/internal/orders"
	"jarvisai/pkg/ai"
	"jarvisai/pkg/auth"
	"jarvisai/pkg/events"
	"jarvisai/pkg/kv"
	"jarvisai/pkg/speech"
)

// Config holds runtime dependencies for the core application.
type Config struct {
	KV              kv.Store
	Chat            *ai.Router
	Speech          speech.Synthesizer
	AdminCredential auth.Credential
	AdminTokens     *auth.AdminTokens
	Events          *events.Dispatcher
	Checkout        checkout.Options
	Logger          *slog.Logger
	Now             func() time.Time
}

// App wires the shared order collection, the admin console and the per-visitor
// session, cart and checkout state.
type App struct {
	kv       kv.Store
	orders   *orders.Store
	admin    *admin.Console
	chat     *ai.Router
	speech   speech.Synthesizer
	tokens   *auth.AdminTokens
	checkout checkout.Options
	logger   *slog.Logger
	now      func() time.Time

	unsubscribe func()

	mu       sync.Mutex
	visitors map[string]*Visitor
}

// New restores the global order collection and admin flag from cfg.KV.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.KV == nil {
		return nil, errors.New("kv store required")
	}
	if cfg.Chat == nil {
		return nil, errors.New("chat router required")
	}
	if cfg.AdminTokens == nil {
		return nil, errors.New("admin token issuer required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.Checkout.Logger == nil {
		cfg.Checkout.Logger = logger
	}

	orderStore := orders.New(ctx, cfg.KV, orders.Options{Logger: logger, Now: now})
	a := &App{
		kv:       cfg.KV,
		orders:   orderStore,
		admin:    admin.New(ctx, cfg.KV, orderStore, cfg.AdminCredential, logger),
		chat:     cfg.Chat,
		speech:   cfg.Speech,
		tokens:   cfg.AdminTokens,
		checkout: cfg.Checkout,
		logger:   logger,
		now:      now,
		visitors: make(map[string]*Visitor),
	}
	if cfg.Events != nil {
		a.unsubscribe = orderStore.Subscribe(cfg.Events.OrderChanged)
	}
	return a, nil
}

func (a *App) Orders() *orders.Store { return a.orders }

func (a *App) Admin() *admin.Console { return a.admin }

func (a *App) AdminTokens() *auth.AdminTokens { return a.tokens }

func (a *App) Chat() *ai.Router { return a.chat }

// Synthesize renders text with the configured speech backend.
func (a *App) Synthesize(ctx context.Context, req speech.Request) ([]byte, error) {
	if a.speech == nil {
		return nil, ErrSpeechDisabled
	}
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	audio, err := a.speech.Synthesize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	return audio, nil
}

// Close stops event forwarding and pending checkout holds.
func (a *App) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.mu.Lock()
	visitors := a.visitors
	a.visitors = make(map[string]*Visitor)
	a.mu.Unlock()
	for _, v := range visitors {
		v.close()
	}
}
