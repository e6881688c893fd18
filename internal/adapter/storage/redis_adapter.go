package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/inventory-sync/internal/core/domain"
)

const (
	inventoryKeyPrefix = "inventory:"
	watermarkKeyPrefix = "reconcile:watermark:"
	idempotencyKeyTTL  = 24 * time.Hour
)

// putInventoryScript stores a cached record unless a newer version is already cached,
// so a slow writer cannot overwrite a fresher value.
var putInventoryScript = redis.NewScript(`
local key = KEYS[1]
local version = tonumber(ARGV[1])

local current = redis.call('HGET', key, 'version')
if current and tonumber(current) > version then
	return 0
end

redis.call('HSET', key, 'version', ARGV[1], 'data', ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('PEXPIRE', key, ttl)
end
return 1
`)

type RedisAdapter struct {
	client   *redis.Client
	cacheTTL time.Duration
	idemTTL  time.Duration
}

func NewRedisAdapter(client *redis.Client, cacheTTL time.Duration) *RedisAdapter {
	return &RedisAdapter{client: client, cacheTTL: cacheTTL, idemTTL: idempotencyKeyTTL}
}

func inventoryKey(storeID, productID string) string {
	return fmt.Sprintf("%s%s:%s", inventoryKeyPrefix, storeID, productID)
}

func (r *RedisAdapter) Get(ctx context.Context, storeID, productID string) (*domain.InventoryRecord, error) {
	data, err := r.client.HGet(ctx, inventoryKey(storeID, productID), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec domain.InventoryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode cached inventory: %w", err)
	}
	return &rec, nil
}

func (r *RedisAdapter) Put(ctx context.Context, rec domain.InventoryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode inventory: %w", err)
	}

	key := inventoryKey(rec.StoreID, rec.ProductID)
	return putInventoryScript.Run(ctx, r.client, []string{key},
		rec.LastUpdated.UnixNano(), data, r.cacheTTL.Milliseconds(),
	).Err()
}

func (r *RedisAdapter) Invalidate(ctx context.Context, storeID, productID string) error {
	return r.client.Del(ctx, inventoryKey(storeID, productID)).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, r.idemTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ClaimIdempotency(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, 1, ttl).Result()
}

func (r *RedisAdapter) HasIdempotency(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisAdapter) ClearIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisAdapter) GetWatermark(ctx context.Context, storeID, productID string) (int, error) {
	v, err := r.client.HGet(ctx, watermarkKeyPrefix+storeID, productID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}

func (r *RedisAdapter) SetWatermark(ctx context.Context, storeID, productID string, quantity int) error {
	return r.client.HSet(ctx, watermarkKeyPrefix+storeID, productID, quantity).Err()
}
