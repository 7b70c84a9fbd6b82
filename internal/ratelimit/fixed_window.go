// Package ratelimit enforces per-client request quotas for the site API.
// Counters live in Redis so every site replica shares them.
package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// The window opens on the first hit and the reply carries the time left in it.
var hitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// OnError says what a quota does when Redis cannot be reached.
type OnError int

const (
	// Allow keeps the endpoint usable; chat and speech degrade rather than stop.
	Allow OnError = iota
	// Deny rejects the request; used where a quota guards credentials.
	Deny
)

// Quota is an allowance for one group of endpoints.
type Quota struct {
	Name    string
	Limit   int
	Window  time.Duration
	OnError OnError
}

// Site quotas. Limits are per client per minute.
var (
	Chat       = Quota{Name: "chat", Limit: 30, Window: time.Minute, OnError: Allow}
	Speech     = Quota{Name: "tts", Limit: 60, Window: time.Minute, OnError: Allow}
	AdminLogin = Quota{Name: "admin_login", Limit: 5, Window: time.Minute, OnError: Deny}
)

// WithLimit returns q with a positive limit override applied.
func (q Quota) WithLimit(limit int) Quota {
	if limit > 0 {
		q.Limit = limit
	}
	return q
}

// Decision is the outcome of one hit.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	// Err is set when Redis failed and the quota's OnError policy decided.
	Err error
}

// Limiter counts hits in fixed windows keyed by quota and client.
type Limiter struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// NewRedis dials a dedicated client for the limiter.
func NewRedis(addr, password, prefix string) (*Limiter, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	return New(redis.NewClient(&redis.Options{Addr: addr, Password: password}), prefix), nil
}

func New(client redis.UniversalClient, prefix string) *Limiter {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "jarvis:ratelimit"
	}
	return &Limiter{client: client, prefix: prefix, timeout: 2 * time.Second}
}

func (l *Limiter) Close() error {
	return l.client.Close()
}

// Allow records one hit by client against q. The request ctx bounds the
// Redis round trip.
func (l *Limiter) Allow(ctx context.Context, q Quota, client string) Decision {
	if q.Limit <= 0 || q.Window <= 0 {
		return Decision{Allowed: true}
	}
	client = strings.TrimSpace(client)
	if client == "" {
		client = "unknown"
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := hitScript.Run(ctx, l.client, []string{l.key(q, client)}, q.Window.Milliseconds()).Int64Slice()
	if err == nil && len(res) != 2 {
		err = errors.New("rate limiter: unexpected script reply")
	}
	if err != nil {
		d := Decision{Allowed: q.OnError == Allow, Err: err}
		if !d.Allowed {
			d.RetryAfter = q.Window
		}
		return d
	}

	count, ttl := res[0], time.Duration(res[1])*time.Millisecond
	if ttl <= 0 {
		ttl = q.Window
	}
	d := Decision{Remaining: max(q.Limit-int(count), 0)}
	if count <= int64(q.Limit) {
		d.Allowed = true
		return d
	}
	d.RetryAfter = ttl
	return d
}

func (l *Limiter) key(q Quota, client string) string {
	return l.prefix + ":" + q.Name + ":" + client
}
