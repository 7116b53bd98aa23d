package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"affiliate-network-backend/internal/domain"
	"affiliate-network-backend/internal/logger"
)

const (
	scheduleKey = "commission:schedule"

	fieldVersion = "version"
	fieldData    = "data"

	setAttempts = 10
)

// ErrMiss is returned when no schedule snapshot is cached.
var ErrMiss = errors.New("cache miss")

var errStale = errors.New("newer schedule cached")

// Client holds the Redis client
type Client struct {
	Redis *redis.Client
}

// NewClient parses redisURL and pings the server before returning.
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed connecting to redis: %w", err)
	}

	logger.Info("Redis connected", "addr", opts.Addr)
	return &Client{Redis: client}, nil
}

func (c *Client) Close() error {
	return c.Redis.Close()
}

// ScheduleCache stores the current commission schedule snapshot in a hash
// holding its version next to the encoded data. Registry writes invalidate
// it; readers repopulate it from the store on a miss.
type ScheduleCache struct {
	client *Client
	ttl    time.Duration
}

func NewScheduleCache(client *Client, ttl time.Duration) *ScheduleCache {
	return &ScheduleCache{client: client, ttl: ttl}
}

func (c *ScheduleCache) Get(ctx context.Context) (*domain.CommissionSchedule, error) {
	raw, err := c.client.Redis.HGet(ctx, scheduleKey, fieldData).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule: %w", err)
	}

	var schedule domain.CommissionSchedule
	if err := json.Unmarshal(raw, &schedule); err != nil {
		logger.Warn("Dropping undecodable schedule snapshot", "error", err)
		_ = c.Invalidate(ctx)
		return nil, ErrMiss
	}
	return &schedule, nil
}

// Set writes the snapshot unless a newer version is already cached. The
// version check and the write run under WATCH, so a stale reader cannot
// overwrite a newer snapshot.
func (c *ScheduleCache) Set(ctx context.Context, schedule *domain.CommissionSchedule) error {
	raw, err := json.Marshal(schedule)
	if err != nil {
		return err
	}

	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, scheduleKey, fieldVersion).Int64()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		case current > schedule.Version:
			return errStale
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, scheduleKey, fieldVersion, schedule.Version, fieldData, raw)
			p.Expire(ctx, scheduleKey, c.ttl)
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= setAttempts; attempt++ {
		err = c.client.Redis.Watch(ctx, txf, scheduleKey)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, errStale):
			logger.Debug("Skipping stale schedule snapshot", "version", schedule.Version)
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return fmt.Errorf("failed to write schedule: %w", err)
		}
	}
	return fmt.Errorf("failed to write schedule: %w", err)
}

func (c *ScheduleCache) Invalidate(ctx context.Context) error {
	return c.client.Redis.Del(ctx, scheduleKey).Err()
}
