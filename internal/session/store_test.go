package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"

	"jarvisai/pkg/domain"
	"jarvisai/pkg/kv"
)

func fixedClock() time.Time {
	return time.UnixMilli(1700000000000)
}

func TestLoginPersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	s := New(ctx, backend, Options{Now: fixedClock})

	name, email := gofakeit.Name(), gofakeit.Email()
	identity, err := s.Login(ctx, name, email)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.HasPrefix(identity.ID, "user_1700000000000_") {
		t.Fatalf("unexpected id %q", identity.ID)
	}
	if !s.IsAuthenticated() {
		t.Fatalf("expected authenticated session")
	}

	restored := New(ctx, backend, Options{})
	got, ok := restored.Current()
	if !ok {
		t.Fatalf("expected restored identity")
	}
	if diff := cmp.Diff(identity, got); diff != "" {
		t.Fatalf("restored identity mismatch (-want +got):\n%s", diff)
	}
}

func TestLoginReplacesPreviousIdentity(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, kv.NewMemoryStore(), Options{})
	first, err := s.Login(ctx, "Ann", "ann@example.com")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	second, err := s.Login(ctx, "Ann", "ann@example.com")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("each login should fabricate a new id")
	}
	if cur, _ := s.Current(); cur.ID != second.ID {
		t.Fatalf("current identity should be the latest")
	}
}

func TestLoginValidation(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, kv.NewMemoryStore(), Options{})
	cases := []struct{ name, email string }{
		{"", "ann@example.com"},
		{"  ", "ann@example.com"},
		{"Ann", ""},
		{"Ann", "not-an-email"},
		{"Ann", "Ann <ann@example.com>"},
	}
	for _, tc := range cases {
		if _, err := s.Login(ctx, tc.name, tc.email); !errors.Is(err, ErrInvalidIdentity) {
			t.Fatalf("login(%q,%q) err = %v, want ErrInvalidIdentity", tc.name, tc.email, err)
		}
	}
	if s.IsAuthenticated() {
		t.Fatalf("failed logins must not authenticate")
	}
}

func TestRegisterPasswordChecks(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	s := New(ctx, backend, Options{})
	if _, err := s.Register(ctx, "Ann", "ann@example.com", "secret", "other"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if _, err := s.Register(ctx, "Ann", "ann@example.com", "", ""); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected password required, got %v", err)
	}
	if _, err := s.Register(ctx, "Ann", "ann@example.com", "secret", "secret"); err != nil {
		t.Fatalf("register: %v", err)
	}
	raw, _, _ := backend.Get(ctx, Key)
	if strings.Contains(string(raw), "secret") {
		t.Fatalf("password must not be persisted: %s", raw)
	}
}

func TestLogoutClearsPersistedRecord(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	s := New(ctx, backend, Options{})
	if _, err := s.Login(ctx, "Ann", "ann@example.com"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := s.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if s.IsAuthenticated() {
		t.Fatalf("expected logged out")
	}
	if _, ok, _ := backend.Get(ctx, Key); ok {
		t.Fatalf("persisted identity should be removed")
	}
	if New(ctx, backend, Options{}).IsAuthenticated() {
		t.Fatalf("restore after logout should be logged out")
	}
}

func TestCorruptRecordStartsLoggedOut(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	_ = backend.Set(ctx, Key, []byte("{broken"))
	if New(ctx, backend, Options{}).IsAuthenticated() {
		t.Fatalf("corrupt record must be ignored")
	}
}

func TestLoginPersistFailureKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	s := New(ctx, backend, Options{})
	backend.FailWrites(errors.New("unavailable"))
	if _, err := s.Login(ctx, "Ann", "ann@example.com"); err == nil {
		t.Fatalf("expected persist error")
	}
	if s.IsAuthenticated() {
		t.Fatalf("identity must not change when persisting fails")
	}
}

func TestObserversSeeEveryChange(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, kv.NewMemoryStore(), Options{})
	var seen []*domain.Identity
	unsubscribe := s.Subscribe(func(id *domain.Identity) { seen = append(seen, id) })
	defer unsubscribe()

	if _, err := s.Login(ctx, "Ann", "ann@example.com"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := s.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(seen) != 2 || seen[0] == nil || seen[0].Name != "Ann" || seen[1] != nil {
		t.Fatalf("unexpected notifications: %+v", seen)
	}
}
