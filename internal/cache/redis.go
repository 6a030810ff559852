package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Domenick1991/ferrybook/config"
	"github.com/Domenick1991/ferrybook/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client        *redis.Client
	departuresTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, departuresTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:        redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		departuresTTL: departuresTTL,
	}
}

func (c *RedisCache) GetDepartures(ctx context.Context) ([]domain.Departure, error) {
	data, err := c.client.Get(ctx, departuresKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var departures []domain.Departure
	if err := json.Unmarshal(data, &departures); err != nil {
		return nil, err
	}
	return departures, nil
}

func (c *RedisCache) SetDepartures(ctx context.Context, departures []domain.Departure) error {
	payload, err := json.Marshal(departures)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, departuresKey(), payload, c.departuresTTL).Err()
}

func (c *RedisCache) InvalidateDepartures(ctx context.Context) error {
	return c.client.Del(ctx, departuresKey()).Err()
}

// AcquireOrderLock takes a short-lived lock keyed by gateway order id so that
// concurrent webhook deliveries for the same order are processed one at a
// time across all instances.
func (c *RedisCache) AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, orderLockKey(orderID), "locked", ttl).Result()
}

func (c *RedisCache) ReleaseOrderLock(ctx context.Context, orderID string) error {
	return c.client.Del(ctx, orderLockKey(orderID)).Err()
}

func departuresKey() string {
	return "cache:departures"
}

func orderLockKey(orderID string) string {
	return fmt.Sprintf("lock:order:%s", orderID)
}
