package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zoobzio/clockz"
)

// RedisStore claims with SET NX PX. Redis expires keys itself, so an expired
// claim is simply absent and re-claiming it reports Created, and Purge has
// nothing to do.
type RedisStore struct {
	client *redis.Client
	prefix string
	clock  clockz.Clock
}

func NewRedisStore(client *redis.Client, prefix string, clock clockz.Clock) *RedisStore {
	if clock == nil {
		clock = clockz.RealClock
	}
	return &RedisStore{client: client, prefix: prefix, clock: clock}
}

func (s *RedisStore) Claim(ctx context.Context, fingerprint string, ttl time.Duration) (Claim, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+fingerprint, s.clock.Now().UnixMilli(), ttl).Result()
	if err != nil {
		return Claim{}, fmt.Errorf("redis claim: %w", err)
	}
	if ok {
		return claimed(), nil
	}
	return alreadyProcessed(ReasonAlreadyProcessed), nil
}

func (s *RedisStore) Purge(ctx context.Context, batchSize int) (int, error) {
	return 0, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
