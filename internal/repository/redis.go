package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hotelledger/internal/config"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisOccupancyCache stores room statuses under room_status:<id>.
type RedisOccupancyCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisOccupancyCache(client *redis.Client, ttl time.Duration) *RedisOccupancyCache {
	return &RedisOccupancyCache{
		client: client,
		ttl:    ttl,
	}
}

func roomStatusKey(roomID int64) string {
	return fmt.Sprintf("room_status:%d", roomID)
}

func (r *RedisOccupancyCache) GetRoomStatus(ctx context.Context, roomID int64) (string, bool, error) {
	if r.client == nil {
		return "", false, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, roomStatusKey(roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get room status from redis: %w", err)
	}
	return val, true, nil
}

func (r *RedisOccupancyCache) SetRoomStatus(ctx context.Context, roomID int64, status string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Set(ctx, roomStatusKey(roomID), status, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set room status in redis: %w", err)
	}
	return nil
}

func (r *RedisOccupancyCache) ClearRoomStatus(ctx context.Context, roomID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, roomStatusKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to delete room status from redis: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
