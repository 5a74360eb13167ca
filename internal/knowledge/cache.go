package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss means the key is not cached.
var ErrCacheMiss = errors.New("cache miss")

// DefaultCacheTTL is how long cached search results live.
const DefaultCacheTTL = time.Hour

const cacheKeyPrefix = "suricare:knowledge:search:"

// KVStore is the key/value contract the search cache needs.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// RedisKVStore implements KVStore with go-redis.
type RedisKVStore struct {
	client *redis.Client
}

// NewRedisKVStore wraps an existing client.
func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

// DialRedis connects to addr and checks the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// CachedSearcher serves repeated searches from a KVStore. Cache failures are logged and
// the underlying searcher is used.
type CachedSearcher struct {
	next Searcher
	kv   KVStore
	ttl  time.Duration
}

// NewCachedSearcher wraps next with a cache. A non-positive ttl uses DefaultCacheTTL.
func NewCachedSearcher(next Searcher, kv KVStore, ttl time.Duration) *CachedSearcher {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedSearcher{next: next, kv: kv, ttl: ttl}
}

// CacheKey returns the cache key for a normalised query and k.
func CacheKey(query string, k int) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", k, norm)))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

// Search returns cached sources when present, otherwise searches and caches the result.
func (c *CachedSearcher) Search(ctx context.Context, query string, k int) ([]Source, error) {
	if k <= 0 {
		k = DefaultK
	}
	key := CacheKey(query, k)
	if val, err := c.kv.Get(ctx, key); err == nil {
		var sources []Source
		if jerr := json.Unmarshal([]byte(val), &sources); jerr == nil {
			slog.Debug("CachedSearcher.Search: cache hit", "results", len(sources))
			return sources, nil
		}
		slog.Warn("CachedSearcher.Search: corrupt cache entry", "key", key)
	} else if !errors.Is(err, ErrCacheMiss) {
		slog.Warn("CachedSearcher.Search: cache read failed", "error", err)
	}

	sources, err := c.next.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(sources)
	if err == nil {
		err = c.kv.Set(ctx, key, string(data), c.ttl)
	}
	if err != nil {
		slog.Warn("CachedSearcher.Search: cache write failed", "error", err)
	}
	return sources, nil
}
