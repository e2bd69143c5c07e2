// Package historycache caches portfolio history series in Redis.
package historycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bobmcallan/sharesrus/internal/common"
	"github.com/bobmcallan/sharesrus/internal/interfaces"
	"github.com/bobmcallan/sharesrus/internal/models"
)

const keyPrefix = "history"

var _ interfaces.HistoryCache = (*RedisCache)(nil)

// ErrStaleEpoch is returned by Set when the portfolio was invalidated after
// the caller read its epoch.
var ErrStaleEpoch = errors.New("history cache: portfolio invalidated since epoch was read")

// RedisCache stores whole series as JSON under history:{id}:{range}. Each
// invalidation increments history:{id}:epoch, which Set watches.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *common.Logger
}

// NewRedisCache connects using the [cache] config section and verifies the
// connection with a ping.
func NewRedisCache(cfg *common.CacheConfig, logger *common.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheWithClient(client, cfg.GetTTL(), logger), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration, logger *common.Logger) *RedisCache {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	if ttl <= 0 {
		ttl = common.FreshnessHistory
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func cacheKey(portfolioID string, r models.TimeRange) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, portfolioID, r)
}

func epochKey(portfolioID string) string {
	return fmt.Sprintf("%s:%s:epoch", keyPrefix, portfolioID)
}

// Epoch returns the portfolio's invalidation count.
func (c *RedisCache) Epoch(ctx context.Context, portfolioID string) (uint64, error) {
	return readEpoch(ctx, c.client, portfolioID)
}

func readEpoch(ctx context.Context, cmd redis.Cmdable, portfolioID string) (uint64, error) {
	n, err := cmd.Get(ctx, epochKey(portfolioID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("history cache epoch: %w", err)
	}
	return n, nil
}

// Get returns the cached series for (id, range).
func (c *RedisCache) Get(ctx context.Context, portfolioID string, r models.TimeRange) ([]models.HistoryPoint, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(portfolioID, r)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("history cache get: %w", err)
	}

	var points []models.HistoryPoint
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, false, fmt.Errorf("history cache decode: %w", err)
	}
	return points, true, nil
}

// Set stores a series with the configured TTL, provided the portfolio is
// still at epoch. Otherwise it returns ErrStaleEpoch and stores nothing.
func (c *RedisCache) Set(ctx context.Context, portfolioID string, r models.TimeRange, points []models.HistoryPoint, epoch uint64) error {
	if points == nil {
		points = []models.HistoryPoint{}
	}
	raw, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("history cache encode: %w", err)
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readEpoch(ctx, tx, portfolioID)
		if err != nil {
			return err
		}
		if current != epoch {
			return ErrStaleEpoch
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(portfolioID, r), raw, c.ttl)
			return nil
		})
		return err
	}, epochKey(portfolioID))

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStaleEpoch), errors.Is(err, redis.TxFailedErr):
		return ErrStaleEpoch
	default:
		return fmt.Errorf("history cache set: %w", err)
	}
}

// Invalidate deletes every range cached for a portfolio and advances its
// epoch, so fetches already in flight cannot store their result.
func (c *RedisCache) Invalidate(ctx context.Context, portfolioID string) error {
	keys := make([]string, 0, len(models.TimeRanges))
	for _, r := range models.TimeRanges {
		keys = append(keys, cacheKey(portfolioID, r))
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, epochKey(portfolioID))
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("history cache invalidate: %w", err)
	}
	c.logger.Debug().Str("portfolio_id", portfolioID).Msg("History cache invalidated")
	return nil
}

// Ping checks that Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
