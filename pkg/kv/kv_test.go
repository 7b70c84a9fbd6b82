package kv

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

type visitorRecord struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "jarvis_user"); err != nil || ok {
		t.Fatalf("expected absent key, ok=%v err=%v", ok, err)
	}
	if err := SaveJSON(ctx, s, "jarvis_user", visitorRecord{Name: "Ann", Email: "ann@example.com"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	var got visitorRecord
	ok, err := LoadJSON(ctx, s, "jarvis_user", &got)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.Name != "Ann" || got.Email != "ann@example.com" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if err := s.Set(ctx, "jarvis_user", []byte(`{"name":"Bob"}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	raw, _, _ := s.Get(ctx, "jarvis_user")
	if string(raw) != `{"name":"Bob"}` {
		t.Fatalf("overwrite should replace the whole value, got %s", raw)
	}
	if err := s.Delete(ctx, "jarvis_user"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "jarvis_user"); err != nil {
		t.Fatalf("deleting an absent key should succeed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "jarvis_user"); ok {
		t.Fatalf("key should be gone")
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(mr.Addr(), "", "test:kv")
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)

	if err := s.Set(context.Background(), "jarvis_orders", []byte("[]")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("test:kv:jarvis_orders") {
		t.Fatalf("expected namespaced redis key")
	}
	if ttl := mr.TTL("test:kv:jarvis_orders"); ttl != 0 {
		t.Fatalf("values must not expire, ttl=%v", ttl)
	}
}

func TestRedisStoreRequiresAddr(t *testing.T) {
	if s, err := NewRedisStore(" ", "", ""); err == nil || s != nil {
		t.Fatalf("expected constructor error for empty addr")
	}
}

func TestWithPrefixIsolatesVisitors(t *testing.T) {
	base := NewMemoryStore()
	a := WithPrefix(base, "visitor-a")
	b := WithPrefix(base, "visitor-b")
	ctx := context.Background()

	if err := a.Set(ctx, "jarvis_user", []byte(`"a"`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "jarvis_user"); ok {
		t.Fatalf("prefixed stores must not share keys")
	}
	if _, ok, _ := base.Get(ctx, "visitor-a:jarvis_user"); !ok {
		t.Fatalf("expected key under prefix")
	}
	if WithPrefix(base, "") != Store(base) {
		t.Fatalf("empty prefix should return the inner store")
	}
}

func TestLoadJSONMalformed(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Set(ctx, "jarvis_orders", []byte("{not json"))
	var out []string
	ok, err := LoadJSON(ctx, s, "jarvis_orders", &out)
	if ok || !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreFailWrites(t *testing.T) {
	s := NewMemoryStore()
	boom := errors.New("disk full")
	s.FailWrites(boom)
	if err := s.Set(context.Background(), "k", []byte("1")); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	s.FailWrites(nil)
	if err := s.Set(context.Background(), "k", []byte("1")); err != nil {
		t.Fatalf("set after reset: %v", err)
	}
}
