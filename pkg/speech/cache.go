package speech

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"jarvisai/pkg/storage"
)

// CacheTTL matches the public caching window of the audio endpoint.
const CacheTTL = time.Hour

// sharedTimeout bounds one collapsed upstream synthesis.
const sharedTimeout = 2 * time.Minute

// AudioCache stores synthesized audio by request key.
type AudioCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, audio []byte) error
}

// CacheKey identifies a synthesis request.
func CacheKey(voice string, req Request) string {
	sum := sha256.Sum256([]byte(voice + "\x00" + req.Rate + "\x00" + req.Text))
	return hex.EncodeToString(sum[:])
}

// CachedSynthesizer serves repeated requests from a cache and collapses
// concurrent identical requests into one upstream call.
type CachedSynthesizer struct {
	inner  Synthesizer
	cache  AudioCache
	voice  string
	group  singleflight.Group
	logger *slog.Logger
}

func NewCachedSynthesizer(inner Synthesizer, cache AudioCache, logger *slog.Logger) *CachedSynthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSynthesizer{inner: inner, cache: cache, voice: Voice, logger: logger}
}

// Synthesize never fails because of the cache; cache errors are logged.
func (c *CachedSynthesizer) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	key := CacheKey(c.voice, req)
	if c.cache != nil {
		audio, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.WarnContext(ctx, "tts cache read failed", "err", err)
		} else if ok {
			return audio, nil
		}
	}

	// The shared call outlives any single caller; each caller only stops
	// waiting when its own ctx is done.
	ch := c.group.DoChan(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedTimeout)
		defer cancel()
		audio, err := c.inner.Synthesize(sctx, req)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			if err := c.cache.Set(sctx, key, audio); err != nil {
				c.logger.WarnContext(sctx, "tts cache write failed", "err", err)
			}
		}
		return audio, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// RedisAudioCache keeps audio in Redis with a fixed TTL.
type RedisAudioCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisAudioCache(addr, password, prefix string, ttl time.Duration) (*RedisAudioCache, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("tts cache redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "jarvis:tts"
	}
	if ttl <= 0 {
		ttl = CacheTTL
	}
	return &RedisAudioCache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (c *RedisAudioCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+":"+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisAudioCache) Set(ctx context.Context, key string, audio []byte) error {
	return c.client.Set(ctx, c.prefix+":"+key, audio, c.ttl).Err()
}

func (c *RedisAudioCache) Close() error {
	return c.client.Close()
}

// ObjectAudioCache keeps audio in object storage. Objects older than the TTL
// count as misses and are overwritten on the next synthesis.
type ObjectAudioCache struct {
	store  storage.ObjectStore
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewObjectAudioCache(store storage.ObjectStore, prefix string, ttl time.Duration) *ObjectAudioCache {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "tts"
	}
	if ttl <= 0 {
		ttl = CacheTTL
	}
	return &ObjectAudioCache{store: store, prefix: prefix, ttl: ttl, now: time.Now}
}

func (c *ObjectAudioCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	obj, ok, err := c.store.Get(ctx, c.objectKey(key))
	if err != nil || !ok {
		return nil, false, err
	}
	if c.now().Sub(obj.LastModified) > c.ttl {
		return nil, false, nil
	}
	return obj.Data, true, nil
}

func (c *ObjectAudioCache) Set(ctx context.Context, key string, audio []byte) error {
	if err := c.store.Put(ctx, c.objectKey(key), bytes.NewReader(audio), int64(len(audio)), ContentType); err != nil {
		return fmt.Errorf("cache audio: %w", err)
	}
	return nil
}

func (c *ObjectAudioCache) objectKey(key string) string {
	return c.prefix + "/" + key + ".mp3"
}
