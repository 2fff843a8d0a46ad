package statuscheck

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisScheduler keeps jobs in a sorted set scored by due time (unix ms).
type RedisScheduler struct {
	rdb *redis.Client
	key string
}

func NewRedisScheduler(rdb *redis.Client, key string) *RedisScheduler {
	return &RedisScheduler{rdb: rdb, key: key}
}

func (s *RedisScheduler) Schedule(ctx context.Context, job Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := s.rdb.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(job.DueAt.UnixMilli()),
		Member: string(b),
	}).Err(); err != nil {
		return fmt.Errorf("zadd %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisScheduler) Close() error { return nil }

// RedisSource polls the sorted set for due jobs. A job belongs to whichever
// worker removes it first, so several workers can share one set.
type RedisSource struct {
	rdb      *redis.Client
	key      string
	interval time.Duration
	log      *zap.Logger
}

func NewRedisSource(rdb *redis.Client, key string, interval time.Duration, log *zap.Logger) *RedisSource {
	if interval <= 0 {
		interval = time.Second
	}
	return &RedisSource{rdb: rdb, key: key, interval: interval, log: log}
}

func (s *RedisSource) Fetch(ctx context.Context) (Delivery, error) {
	for {
		job, ok, err := s.claim(ctx)
		if err != nil {
			return Delivery{}, err
		}
		if ok {
			return Delivery{Job: job, Ack: func(context.Context) error { return nil }}, nil
		}

		select {
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		case <-time.After(s.interval):
		}
	}
}

func (s *RedisSource) claim(ctx context.Context) (Job, bool, error) {
	members, err := s.rdb.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(time.Now().UnixMilli(), 10),
		Count: 10,
	}).Result()
	if err != nil {
		return Job{}, false, fmt.Errorf("zrangebyscore %s: %w", s.key, err)
	}

	for _, m := range members {
		removed, err := s.rdb.ZRem(ctx, s.key, m).Result()
		if err != nil {
			return Job{}, false, fmt.Errorf("zrem %s: %w", s.key, err)
		}
		if removed == 0 {
			continue // claimed by another worker
		}

		var job Job
		if err := json.Unmarshal([]byte(m), &job); err != nil {
			s.log.Warn("bad status-check job", zap.String("value", m), zap.Error(err))
			continue
		}
		return job, true, nil
	}
	return Job{}, false, nil
}

func (s *RedisSource) Close() error { return s.rdb.Close() }
