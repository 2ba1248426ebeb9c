// Package cache invalidates cached public survey pages of a practice.
package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/practicepulse/services/practice-service/internal/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "pagecache"
	DefaultChannel   = "pagecache.invalidate"
	scanCount        = 200
)

type Invalidator interface {
	InvalidatePractice(ctx context.Context, practiceID string) error
}

// Nop is used when no Redis is configured.
type Nop struct{}

func (Nop) InvalidatePractice(context.Context, string) error { return nil }

// redisClient is the subset of redis.Cmdable the invalidator needs.
type redisClient interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisInvalidator deletes every key under <prefix>:practice:<id>: and
// publishes the practice id so other nodes drop their in-process copies.
type RedisInvalidator struct {
	rdb     redisClient
	prefix  string
	channel string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewRedisInvalidator(rdb redisClient, prefix, channel string, logger *slog.Logger, m *metrics.Metrics) *RedisInvalidator {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisInvalidator{rdb: rdb, prefix: prefix, channel: channel, logger: logger, metrics: m}
}

func (c *RedisInvalidator) PracticePattern(practiceID string) string {
	return fmt.Sprintf("%s:practice:%s:*", c.prefix, practiceID)
}

func (c *RedisInvalidator) InvalidatePractice(ctx context.Context, practiceID string) error {
	err := c.invalidate(ctx, practiceID)
	c.metrics.CacheInvalidation(err == nil)
	if err != nil {
		c.logger.Warn("page cache invalidation failed", "err", err, "practice_id", practiceID)
	}
	return err
}

func (c *RedisInvalidator) invalidate(ctx context.Context, practiceID string) error {
	var cursor uint64
	pattern := c.PracticePattern(practiceID)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("del: %w", err)
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	if err := c.rdb.Publish(ctx, c.channel, practiceID).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
