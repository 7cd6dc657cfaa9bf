package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"insurance-agent/internal/domain"
)

const (
	redisKeyPrefix      = "insurance-agent:session:"
	redisVerifiedPrefix = "insurance-agent:verified:"
	defaultRedisTTL     = 24 * time.Hour
	verifiedTTL         = 365 * 24 * time.Hour
)

// redisAPI is the subset of *redis.Client used by RedisStore.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps sessions as JSON strings with a sliding expiry.
type RedisStore struct {
	api redisAPI
	ttl time.Duration
}

// NewRedisStore wraps a Redis client. A non-positive ttl uses 24h.
func NewRedisStore(api redisAPI, ttl time.Duration) (*RedisStore, error) {
	if api == nil {
		return nil, errors.New("session: redis client must not be nil")
	}
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{api: api, ttl: ttl}, nil
}

// DialRedis opens a client for addr.
func DialRedis(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func redisKey(key string) string {
	return redisKeyPrefix + strings.TrimSpace(key)
}

func (r *RedisStore) Load(ctx context.Context, key string) (*domain.Session, error) {
	raw, err := r.api.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: redis get: %w", err)
	}
	return Decode(raw)
}

func (r *RedisStore) Save(ctx context.Context, key string, s *domain.Session) error {
	raw, err := Encode(s)
	if err != nil {
		return err
	}
	if err := r.api.Set(ctx, redisKey(key), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, key string) error {
	if err := r.api.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}

func (r *RedisStore) HasVerified(ctx context.Context, key string) (bool, error) {
	n, err := r.api.Exists(ctx, redisVerifiedPrefix+strings.TrimSpace(key)).Result()
	if err != nil {
		return false, fmt.Errorf("session: redis exists: %w", err)
	}
	return n > 0, nil
}

// MarkVerified writes a marker that outlives the session record.
func (r *RedisStore) MarkVerified(ctx context.Context, key string) error {
	if err := r.api.Set(ctx, redisVerifiedPrefix+strings.TrimSpace(key), "1", verifiedTTL).Err(); err != nil {
		return fmt.Errorf("session: redis set verified: %w", err)
	}
	return nil
}
