package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"affiliate-system/models"

	"github.com/redis/go-redis/v9"
)

const linkCachePrefix = "affiliate:link:"

// RedisLinkCache caches code -> link. Codes never change once issued,
// so entries only expire to bound memory.
type RedisLinkCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisLinkCache(client *redis.Client, ttl time.Duration) *RedisLinkCache {
	return &RedisLinkCache{Client: client, TTL: ttl}
}

func (c *RedisLinkCache) Get(ctx context.Context, code string) (*models.AffiliateLink, error) {
	raw, err := c.Client.Get(ctx, linkCachePrefix+code).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var link models.AffiliateLink
	if err := json.Unmarshal(raw, &link); err != nil {
		return nil, fmt.Errorf("decode cached link: %w", err)
	}
	return &link, nil
}

func (c *RedisLinkCache) Set(ctx context.Context, link *models.AffiliateLink) error {
	raw, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("encode link: %w", err)
	}
	if err := c.Client.Set(ctx, linkCachePrefix+link.Code, raw, c.TTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
