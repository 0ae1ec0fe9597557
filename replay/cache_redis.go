package replay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares accepted values between instances with SET NX.
type RedisCache struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache keeps entries for twice window.
func NewRedisCache(client redis.UniversalClient, prefix string, window time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "srp"
	}
	return &RedisCache{redis: client, prefix: prefix, ttl: 2 * window}
}

func (c *RedisCache) key(value string) string {
	sum := sha256.Sum256([]byte(value))
	return c.prefix + ":" + hex.EncodeToString(sum[:])
}

func (c *RedisCache) Insert(ctx context.Context, value string, issuedAt time.Time) (bool, error) {
	ok, err := c.redis.SetNX(ctx, c.key(value), strconv.FormatInt(issuedAt.UnixMilli(), 10), c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return ok, nil
}
