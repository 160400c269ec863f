package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisRepo struct {
	client *redis.Client
}

func New(ctx context.Context, addr, pass string, db int) (*RedisRepo, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{
		client: client,
	}, nil
}

// MarkStepTokenUsed marks a step token's jti as consumed, atomically via SETNX.
// Returns true the first time a jti is seen and false on replay. The key lives
// only for the token's remaining TTL.
func (r *RedisRepo) MarkStepTokenUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	const op = "storage.redis.MarkStepTokenUsed"

	key := fmt.Sprintf("step:used:%s", jti)

	success, err := r.client.SetNX(ctx, key, "used", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return success, nil
}

func (r *RedisRepo) Close() {
	r.client.Close()
}
