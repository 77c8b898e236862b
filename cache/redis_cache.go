package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/warp/bonus-recap/recap"
)

type RedisRecapCache struct {
	client *redis.Client
}

func NewRedisRecapCache(addr string, password string, db int) *RedisRecapCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisRecapCache{client: client}
}

func (c *RedisRecapCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisRecapCache) Close() error {
	return c.client.Close()
}

func (c *RedisRecapCache) Get(ctx context.Context, period recap.Period) ([]recap.RecapRow, bool, error) {
	val, err := c.client.Get(ctx, Key(period)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var payload []cachedRow
	if err := json.Unmarshal([]byte(val), &payload); err != nil {
		return nil, false, err
	}
	rows := make([]recap.RecapRow, len(payload))
	for i, p := range payload {
		rows[i] = p.toRow()
	}
	return rows, true, nil
}

func (c *RedisRecapCache) Set(ctx context.Context, period recap.Period, rows []recap.RecapRow, ttl time.Duration) error {
	payload := make([]cachedRow, len(rows))
	for i, r := range rows {
		payload[i] = fromRow(r)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, Key(period), data, ttl).Err()
}
