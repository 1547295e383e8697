package runstate

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const (
	valueRunning = "1"
	valueStopped = "0"
)

// RedisOption applies a configuration option to the RedisStore.
type RedisOption func(*RedisStore)

// WithKey sets the key holding the flag.
func WithKey(key string) RedisOption {
	return func(r *RedisStore) {
		if key != "" {
			r.key = key
		}
	}
}

// RedisStore keeps the flag in a single Redis string key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store on an existing client. The caller owns the client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	r := &RedisStore{client: client, key: DefaultKey}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Key returns the key the flag is stored under.
func (r *RedisStore) Key() string { return r.key }

// Get reads the flag. A missing key reads as false.
func (r *RedisStore) Get(ctx context.Context) (bool, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: get %s: %w", ErrStore, r.key, err)
	}
	running, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q", ErrCorruptValue, r.key, val)
	}
	return running, nil
}

// Set writes the flag without expiry.
func (r *RedisStore) Set(ctx context.Context, running bool) error {
	val := valueStopped
	if running {
		val = valueRunning
	}
	if err := r.client.Set(ctx, r.key, val, 0).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrStore, r.key, err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrStore, err)
	}
	return nil
}
