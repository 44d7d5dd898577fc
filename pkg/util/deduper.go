package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper remembers processed ids in Redis for a fixed TTL.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{rdb: rdb, ttl: ttl, logger: logger}
}

func dedupKey(scope, id string) string {
	return "dedup:" + scope + ":" + id
}

// AcquireOnce returns true the first time scope+id is seen within the TTL.
// When Redis is unavailable processing is allowed.
func (d *Deduper) AcquireOnce(ctx context.Context, scope, id string) bool {
	key := dedupKey(scope, id)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("scope", scope),
			zap.String("id", id),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Debug("Skipped duplicate",
			zap.String("scope", scope),
			zap.String("id", id),
		)
	}
	return ok
}

// Release forgets scope+id so a failed attempt can be retried.
func (d *Deduper) Release(ctx context.Context, scope, id string) {
	if err := d.rdb.Del(ctx, dedupKey(scope, id)).Err(); err != nil {
		d.logger.Warn("Redis dedup release failed", zap.String("scope", scope), zap.String("id", id), zap.Error(err))
	}
}
