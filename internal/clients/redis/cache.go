package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mabquiz/mabquiz-backend/internal/domain"
	"github.com/mabquiz/mabquiz-backend/internal/platform/logger"
)

const (
	metricsTTL     = 1 * time.Hour
	globalStatsTTL = 10 * time.Minute
)

// MetricsCache is a read-through cache in front of the difficulty
// metrics store. All methods are best-effort: a miss and a cache outage
// look the same to callers.
type MetricsCache interface {
	GetMetrics(ctx context.Context, questionID string) (*domain.QuestionMetrics, bool)
	SetMetrics(ctx context.Context, m *domain.QuestionMetrics)
	InvalidateMetrics(ctx context.Context, questionID string)
	GetGlobalStats(ctx context.Context, windowDays int, out interface{}) bool
	SetGlobalStats(ctx context.Context, windowDays int, stats interface{})
	Close() error
}

type metricsCache struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewMetricsCache(log *logger.Logger) (MetricsCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &metricsCache{
		log: log.With("service", "MetricsCache"),
		rdb: rdb,
	}, nil
}

// NewNoopMetricsCache is the stand-in used when Redis is unavailable:
// every read misses and every write is dropped.
func NewNoopMetricsCache(log *logger.Logger) MetricsCache {
	return &metricsCache{log: log.With("service", "MetricsCache"), rdb: nil}
}

func metricsKey(questionID string) string {
	return "metrics:" + questionID
}

func globalStatsKey(windowDays int) string {
	return fmt.Sprintf("stats:global:%d", windowDays)
}

func (c *metricsCache) GetMetrics(ctx context.Context, questionID string) (*domain.QuestionMetrics, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, metricsKey(questionID)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn("metrics cache read failed", "question_id", questionID, "error", err.Error())
		}
		return nil, false
	}
	var m domain.QuestionMetrics
	if err := json.Unmarshal(raw, &m); err != nil {
		c.log.Warn("metrics cache entry corrupt", "question_id", questionID, "error", err.Error())
		return nil, false
	}
	return &m, true
}

func (c *metricsCache) SetMetrics(ctx context.Context, m *domain.QuestionMetrics) {
	if c == nil || c.rdb == nil || m == nil {
		return
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, metricsKey(m.QuestionID), raw, metricsTTL).Err(); err != nil {
		c.log.Warn("metrics cache write failed", "question_id", m.QuestionID, "error", err.Error())
	}
}

func (c *metricsCache) InvalidateMetrics(ctx context.Context, questionID string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, metricsKey(questionID)).Err(); err != nil {
		c.log.Warn("metrics cache invalidate failed", "question_id", questionID, "error", err.Error())
	}
}

func (c *metricsCache) GetGlobalStats(ctx context.Context, windowDays int, out interface{}) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	raw, err := c.rdb.Get(ctx, globalStatsKey(windowDays)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn("global stats cache read failed", "error", err.Error())
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false
	}
	return true
}

func (c *metricsCache) SetGlobalStats(ctx context.Context, windowDays int, stats interface{}) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, globalStatsKey(windowDays), raw, globalStatsTTL).Err(); err != nil {
		c.log.Warn("global stats cache write failed", "error", err.Error())
	}
}

func (c *metricsCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
