package storage

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
)

const (
	lockKeyPrefix        = "lock:"
	idempotencyKeyPrefix = "idempotency:"
	idempotencyKeyTTL    = 24 * time.Hour
	changesChannel       = "warehouse:changes"
)

var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]

if redis.call('GET', key) == token then
	return redis.call('DEL', key)
end

return 0
`)

// RedisAdapter provides entity locks, idempotency tokens and the
// cross-process change feed.
type RedisAdapter struct {
	client  *redis.Client
	lockTTL time.Duration
}

func NewRedisAdapter(client *redis.Client, lockTTL time.Duration) *RedisAdapter {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}
	return &RedisAdapter{client: client, lockTTL: lockTTL}
}

func (r *RedisAdapter) Lock(ctx context.Context, keys ...string) (func(context.Context) error, error) {
	keys = normalizeKeys(keys)
	token := uuid.NewString()

	held := make([]string, 0, len(keys))
	for _, key := range keys {
		ok, err := r.client.SetNX(ctx, lockKeyPrefix+key, token, r.lockTTL).Result()
		if err != nil {
			_ = r.release(ctx, held, token)
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if !ok {
			_ = r.release(ctx, held, token)
			return nil, fmt.Errorf("%w: %s", domain.ErrBusy, key)
		}
		held = append(held, key)
	}

	return func(ctx context.Context) error {
		return r.release(ctx, held, token)
	}, nil
}

func (r *RedisAdapter) release(ctx context.Context, keys []string, token string) error {
	var firstErr error
	for _, key := range keys {
		if err := releaseLockScript.Run(ctx, r.client, []string{lockKeyPrefix + key}, token).Err(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("release lock %s: %w", key, err)
		}
	}
	return firstErr
}

func (r *RedisAdapter) Remember(ctx context.Context, token string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+token, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) Forget(ctx context.Context, token string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+token).Err()
}

func (r *RedisAdapter) Publish(ctx context.Context, c domain.Collection) error {
	return r.client.Publish(ctx, changesChannel, string(c)).Err()
}

// Listen blocks, calling fn for every published change, until ctx is done.
func (r *RedisAdapter) Listen(ctx context.Context, fn func(domain.Collection)) error {
	sub := r.client.Subscribe(ctx, changesChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", changesChannel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn(domain.Collection(msg.Payload))
		}
	}
}

// normalizeKeys sorts and dedupes so every caller claims locks in the same order.
func normalizeKeys(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}
