package nonces

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/matenet/backend/internal/common"
	"github.com/matenet/backend/internal/server/models"
)

const redisKeyPrefix = "matenet:nonce:"

// RedisRepository keeps each nonce as a key with a TTL; consuming deletes
// the key, so expiry and single use are both enforced by Redis.
type RedisRepository struct {
	client redis.UniversalClient
}

func NewRedisRepository(client redis.UniversalClient) *RedisRepository {
	return &RedisRepository{client: client}
}

func (r *RedisRepository) Save(ctx context.Context, n *models.Nonce) error {
	ttl := n.ExpiresAt.Sub(n.IssuedAt)
	if ttl <= 0 {
		return fmt.Errorf("%w: nonce already expired", common.ErrValidation)
	}

	ok, err := r.client.SetNX(ctx, redisKeyPrefix+n.Value, n.IssuedAt.Unix(), ttl).Result()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	if !ok {
		return common.ErrAlreadyExists
	}
	return nil
}

func (r *RedisRepository) Consume(ctx context.Context, value string, _ time.Time) error {
	n, err := r.client.Del(ctx, redisKeyPrefix+value).Result()
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// PurgeExpired is a no-op; Redis evicts expired keys itself.
func (r *RedisRepository) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
