package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper remembers finished jobs so that a redelivery whose ack was lost
// does not run the handler again.
type Deduper struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewDeduper creates a deduper; logger may be nil.
func NewDeduper(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func dedupKey(kind, jobID string) string {
	return fmt.Sprintf("dedup:%s:%s", kind, jobID)
}

// AlreadyDone reports whether jobID of kind has completed before.
// Redis 不可用时返回 false，不阻止处理
func (d *Deduper) AlreadyDone(ctx context.Context, kind, jobID string) bool {
	if jobID == "" {
		return false
	}
	n, err := d.rdb.Exists(ctx, dedupKey(kind, jobID)).Result()
	if err != nil {
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("kind", kind),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return false
	}
	if n > 0 {
		d.logger.Info("Skipped duplicated job",
			zap.String("kind", kind),
			zap.String("job_id", jobID),
		)
		return true
	}
	return false
}

// MarkDone records that jobID of kind completed.
func (d *Deduper) MarkDone(ctx context.Context, kind, jobID string) {
	if jobID == "" {
		return
	}
	if err := d.rdb.Set(ctx, dedupKey(kind, jobID), 1, d.ttl).Err(); err != nil {
		d.logger.Warn("Redis dedup mark failed",
			zap.String("kind", kind),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
}
