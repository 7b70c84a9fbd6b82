// Package session holds the simulated logged-in identity of one visitor.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"jarvisai/internal/notify"
	"jarvisai/internal/util"
	"jarvisai/pkg/domain"
	"jarvisai/pkg/kv"
)

// Key is the persisted identity record.
const Key = "jarvis_user"

type Options struct {
	Logger *slog.Logger
	Now    func() time.Time
}

// Store is the single source of truth for the current identity.
type Store struct {
	mu       sync.Mutex
	kv       kv.Store
	identity *domain.Identity
	now      func() time.Time
	logger   *slog.Logger
	hub      notify.Hub[*domain.Identity]
}

// New builds a store and restores a persisted identity. A corrupt record is
// logged and ignored; the store then starts logged out.
func New(ctx context.Context, store kv.Store, opts Options) *Store {
	s := &Store{kv: store, now: opts.Now, logger: opts.Logger}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = util.LoggerFromContext(ctx)
	}
	var restored domain.Identity
	ok, err := kv.LoadJSON(ctx, store, Key, &restored)
	switch {
	case err != nil:
		s.logger.Warn("session restore failed", "err", err)
	case ok && restored.ID != "":
		s.identity = &restored
	}
	return s
}

// Login fabricates a fresh identity, replacing any previous one.
func (s *Store) Login(ctx context.Context, name, email string) (domain.Identity, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if !validIdentity(name, email) {
		return domain.Identity{}, ErrInvalidIdentity
	}
	identity := domain.Identity{
		ID:    util.NewTimestampID("user", s.now()),
		Name:  name,
		Email: email,
	}

	s.mu.Lock()
	if err := kv.SaveJSON(ctx, s.kv, Key, identity); err != nil {
		s.mu.Unlock()
		return domain.Identity{}, fmt.Errorf("persist identity: %w", err)
	}
	s.identity = &identity
	s.mu.Unlock()

	s.publish()
	return identity, nil
}

// Register checks the password pair and then behaves like Login. The
// password is not stored anywhere.
func (s *Store) Register(ctx context.Context, name, email, password, confirm string) (domain.Identity, error) {
	if password == "" {
		return domain.Identity{}, ErrPasswordRequired
	}
	if password != confirm {
		return domain.Identity{}, ErrPasswordMismatch
	}
	return s.Login(ctx, name, email)
}

// Logout clears the identity even if removing the persisted record fails.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.identity = nil
	err := s.kv.Delete(ctx, Key)
	s.mu.Unlock()

	s.publish()
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

// Current returns a copy of the identity.
func (s *Store) Current() (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return domain.Identity{}, false
	}
	return *s.identity, true
}

func (s *Store) IsAuthenticated() bool {
	_, ok := s.Current()
	return ok
}

// Subscribe registers fn to receive the identity (nil when logged out)
// after every change.
func (s *Store) Subscribe(fn func(*domain.Identity)) (unsubscribe func()) {
	return s.hub.Subscribe(fn)
}

func (s *Store) publish() {
	identity, ok := s.Current()
	if !ok {
		s.hub.Publish(nil)
		return
	}
	s.hub.Publish(&identity)
}

func validIdentity(name, email string) bool {
	if name == "" || email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	// Reject display-name forms like "Ann <ann@example.com>".
	return addr.Address == email
}
