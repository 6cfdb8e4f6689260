// services/redis.go
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is an optional fast path: webhook duplicate suppression and
// affiliate-stats caching. The engine is fully correct without it — the DB
// status CAS stays authoritative — so callers simply skip a nil cache.
type RedisCache struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisCache connects to REDIS_URL-style addr. Returns an error rather
// than a nil client so main can decide to run without Redis.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{client: client, ctx: ctx}, nil
}

const webhookSeenTTL = 10 * time.Minute

func webhookSeenKey(gatewayTxID, status string) string {
	return fmt.Sprintf("webhook:%s:%s", gatewayTxID, status)
}

// WebhookSeen reports whether this (transaction, status) delivery already
// settled. A Redis error reads as unseen so the delivery falls through to
// the DB path.
func (c *RedisCache) WebhookSeen(gatewayTxID, status string) bool {
	n, err := c.client.Exists(c.ctx, webhookSeenKey(gatewayTxID, status)).Result()
	if err != nil {
		log.Printf("[Redis] webhook dedupe unavailable: %v", err)
		return false
	}
	return n > 0
}

// MarkWebhookSeen records a settled (transaction, status) delivery so repeats
// within the TTL can be dropped without a DB roundtrip. Callers mark only
// after settlement succeeded; a delivery that errored must stay retryable.
func (c *RedisCache) MarkWebhookSeen(gatewayTxID, status string) {
	if err := c.client.Set(c.ctx, webhookSeenKey(gatewayTxID, status), 1, webhookSeenTTL).Err(); err != nil {
		log.Printf("[Redis] failed to mark webhook seen: %v", err)
	}
}

const statsCacheTTL = 30 * time.Second

func statsKey(userID string, from, to time.Time) string {
	return fmt.Sprintf("affstats:%s:%d:%d", userID, from.Unix(), to.Unix())
}

func (c *RedisCache) GetAffiliateStats(userID string, from, to time.Time) ([]byte, bool) {
	data, err := c.client.Get(c.ctx, statsKey(userID, from, to)).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *RedisCache) SetAffiliateStats(userID string, from, to time.Time, data []byte) {
	if err := c.client.Set(c.ctx, statsKey(userID, from, to), data, statsCacheTTL).Err(); err != nil {
		log.Printf("[Redis] failed to cache affiliate stats: %v", err)
	}
}
