package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scttfrdmn/acbench/aggregate"
	acerrors "github.com/scttfrdmn/acbench/errors"
)

// RedisStore keeps comparisons in Redis.
//
// Redis data structure:
//   - Key: "{prefix}:comparison:{id}", a string holding the JSON document,
//     expiring after the TTL when one is set
//   - Key: "{prefix}:comparisons", a sorted set of ids scored by creation
//     time (unix seconds)
//
// Index entries whose document expired are removed lazily by List.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore creates a store for redisURL, e.g.
// "redis://localhost:6379/0". No connection is made until the first
// command.
func NewRedisStore(redisURL, keyPrefix string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	return NewRedisStoreWithClient(redis.NewClient(opts), keyPrefix, ttl), nil
}

// NewRedisStoreWithClient wraps an existing client. An empty prefix uses
// "acbench".
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "acbench"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (r *RedisStore) comparisonKey(id string) string {
	return fmt.Sprintf("%s:comparison:%s", r.keyPrefix, id)
}

func (r *RedisStore) indexKey() string {
	return r.keyPrefix + ":comparisons"
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// Save writes the document and its index entry in one transaction.
func (r *RedisStore) Save(ctx context.Context, c *aggregate.ScenarioComparison) error {
	if err := checkID("RedisStore.Save", c); err != nil {
		return err
	}
	data, err := encode(c)
	if err != nil {
		return err
	}

	score := float64(c.CreatedAt.UnixNano()) / 1e9
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.comparisonKey(c.ID), data, r.ttl)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: score, Member: c.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store comparison: %w", err)
	}
	return nil
}

// Load reads the document.
func (r *RedisStore) Load(ctx context.Context, id string) (*aggregate.ScenarioComparison, error) {
	if id == "" {
		return nil, acerrors.NewArgumentError("RedisStore.Load", "empty id")
	}
	data, err := r.client.Get(ctx, r.comparisonKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load comparison: %w", err)
	}
	return decode(data)
}

// List walks the index newest first.
func (r *RedisStore) List(ctx context.Context, limit int) ([]*aggregate.ScenarioComparison, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.client.ZRevRange(ctx, r.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list comparisons: %w", err)
	}
	if len(ids) == 0 {
		return []*aggregate.ScenarioComparison{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.comparisonKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load comparisons: %w", err)
	}

	out := make([]*aggregate.ScenarioComparison, 0, len(values))
	var expired []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		c, err := decode([]byte(s))
		if err != nil {
			continue // Skip malformed documents
		}
		out = append(out, c)
	}
	if len(expired) > 0 {
		if err := r.client.ZRem(ctx, r.indexKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("failed to clean index: %w", err)
		}
	}
	return out, nil
}

// Delete removes the document and its index entry.
func (r *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, r.comparisonKey(id))
		pipe.ZRem(ctx, r.indexKey(), id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete comparison: %w", err)
	}
	return del.Val() > 0, nil
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
