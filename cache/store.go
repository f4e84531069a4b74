package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Backend is the narrow key/value surface the store needs. The production
// implementation wraps go-redis; tests substitute an in-memory fake.
type Backend interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRangeByScore(ctx context.Context, key string, min float64) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

type redisBackend struct {
	rdb *redis.Client
}

func (b *redisBackend) Exists(ctx context.Context, key string) (bool, error) {
	if b.rdb == nil {
		return false, nil
	}
	n, err := b.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *redisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	if b.rdb == nil {
		return "", false, nil
	}
	val, err := b.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func (b *redisBackend) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if b.rdb == nil {
		return nil
	}
	return b.rdb.Set(ctx, key, value, ttl).Err()
}

func (b *redisBackend) Del(ctx context.Context, keys ...string) (int64, error) {
	if b.rdb == nil || len(keys) == 0 {
		return 0, nil
	}
	return b.rdb.Del(ctx, keys...).Result()
}

// Keys iterates with SCAN rather than KEYS so bulk invalidation does not
// block the server.
func (b *redisBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	if b.rdb == nil {
		return nil, nil
	}
	var keys []string
	var cursor uint64
	for {
		batch, next, err := b.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (b *redisBackend) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if b.rdb == nil {
		return nil
	}
	return b.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (b *redisBackend) ZRangeByScore(ctx context.Context, key string, min float64) ([]string, error) {
	if b.rdb == nil {
		return nil, nil
	}
	return b.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: formatScore(min),
		Max: "+inf",
	}).Result()
}

func (b *redisBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if b.rdb == nil {
		return nil
	}
	return b.rdb.Expire(ctx, key, ttl).Err()
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Store is a generic JSON read-through cache with per-entry TTL.
// Backend errors on read are logged and treated as a miss; errors on write
// are logged and never propagated to the caller.
type Store struct {
	backend Backend
	logger  *logrus.Logger
	now     func() time.Time
}

func NewStore(rdb *redis.Client, logger *logrus.Logger) *Store {
	return NewStoreWithBackend(&redisBackend{rdb: rdb}, logger)
}

func NewStoreWithBackend(backend Backend, logger *logrus.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Store) Exists(ctx context.Context, key string) bool {
	ok, err := s.backend.Exists(ctx, key)
	if err != nil {
		s.logError("Exists", key, err)
		return false
	}
	return ok
}

// Get unmarshals the cached JSON into dest. Returns false on a miss or on
// any backend/decode error.
func (s *Store) Get(ctx context.Context, key string, dest any) bool {
	val, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.logError("Get", key, err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		s.logError("Get", key, err)
		return false
	}
	return true
}

func (s *Store) Set(ctx context.Context, key string, obj any, ttl time.Duration) {
	data, err := json.Marshal(obj)
	if err != nil {
		s.logError("Set", key, err)
		return
	}
	if err := s.backend.Set(ctx, key, string(data), ttl); err != nil {
		s.logError("Set", key, err)
	}
}

func (s *Store) Delete(ctx context.Context, keys ...string) {
	if _, err := s.backend.Del(ctx, keys...); err != nil {
		s.logError("Delete", "", err)
	}
}

// DeletePattern removes every key matching the glob pattern and returns the
// number deleted.
func (s *Store) DeletePattern(ctx context.Context, pattern string) int {
	keys, err := s.backend.Keys(ctx, pattern)
	if err != nil {
		s.logError("DeletePattern", pattern, err)
		return 0
	}
	if len(keys) == 0 {
		return 0
	}
	n, err := s.backend.Del(ctx, keys...)
	if err != nil {
		s.logError("DeletePattern", pattern, err)
		return 0
	}
	return int(n)
}

func (s *Store) logError(funcName, key string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"module":   "cache",
		"funcName": funcName,
		"key":      key,
	}).Warn(err.Error())
}

// WithCache is the read-through helper: return the cached value when present,
// otherwise invoke fetcher once, cache a non-zero result and return it.
//
// No cross-process lock is taken. Concurrent misses on the same key may each
// invoke fetcher; that is deliberate — fetchers here are idempotent read-only
// computations, so the writers race benignly and the last one wins.
func WithCache[T any](ctx context.Context, s *Store, key string, ttl time.Duration, fetcher func(context.Context) (T, error)) (T, error) {
	var cached T
	if s.Exists(ctx, key) {
		if s.Get(ctx, key, &cached) {
			return cached, nil
		}
	}

	result, err := fetcher(ctx)
	if err != nil {
		return result, err
	}
	s.Set(ctx, key, result, ttl)
	return result, nil
}
