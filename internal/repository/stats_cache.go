package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"roadmap_analysis/internal/model"

	"github.com/go-redis/redis/v8"
)

const (
	statsCacheKeyPrefix = "analysis:stats:"
	statsGenKeyPrefix   = "analysis:stats:gen:"
)

// ErrStaleStats 计算期间该归属的缓存已被作废，结果不再写入
var ErrStaleStats = errors.New("dashboard stats computed before the latest invalidation")

// StatsCache 仪表盘统计缓存：每个归属一个 hash，field 为 "年份:当天日期"
type StatsCache struct {
	Redis *redis.Client
}

func NewStatsCache(rdb *redis.Client) *StatsCache {
	return &StatsCache{Redis: rdb}
}

func statsCacheKey(scope model.OwnerScope) string {
	return statsCacheKeyPrefix + scope.String()
}

func statsGenKey(scope model.OwnerScope) string {
	return statsGenKeyPrefix + scope.String()
}

func StatsCacheField(year int, today string) string {
	return fmt.Sprintf("%d:%s", year, today)
}

// Get 未命中时返回 nil, nil
func (c *StatsCache) Get(ctx context.Context, scope model.OwnerScope, field string) (*model.DashboardStatsResponse, error) {
	raw, err := c.Redis.HGet(ctx, statsCacheKey(scope), field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stats model.DashboardStatsResponse
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Generation 当前作废代数，读库之前取一次，写缓存时原样带回
func (c *StatsCache) Generation(ctx context.Context, scope model.OwnerScope) (int64, error) {
	gen, err := c.Redis.Get(ctx, statsGenKey(scope)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Set 仅当代数未变化时写入，否则返回 ErrStaleStats
func (c *StatsCache) Set(ctx context.Context, scope model.OwnerScope, field string, gen int64, stats *model.DashboardStatsResponse, ttl time.Duration) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}

	key := statsCacheKey(scope)
	genKey := statsGenKey(scope)
	err = c.Redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return ErrStaleStats
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, raw)
			pipe.Expire(ctx, key, ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrStaleStats
	}
	return err
}

// Invalidate 推进作废代数并删除该归属下所有年份的缓存
func (c *StatsCache) Invalidate(ctx context.Context, scope model.OwnerScope) error {
	pipe := c.Redis.TxPipeline()
	pipe.Incr(ctx, statsGenKey(scope))
	pipe.Del(ctx, statsCacheKey(scope))
	_, err := pipe.Exec(ctx)
	return err
}
