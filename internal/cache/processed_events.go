package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/sale-promotion/pkg/logger"
)

// ProcessedEvents is a fast-path cache of payment event ids that have been fully
// finalized. The ledger table stays authoritative: a miss or a redis error only
// means the caller falls through to the ledger claim.
//
// A nil *ProcessedEvents is valid and behaves as an always-miss cache.
type ProcessedEvents struct {
	cache *redis.Client
	ttl   time.Duration

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

func NewProcessedEvents(cache *redis.Client, ttl time.Duration) *ProcessedEvents {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ProcessedEvents{cache: cache, ttl: ttl}
}

func key(eventID string) string {
	return fmt.Sprintf("payment:event:processed:%s", eventID)
}

func (p *ProcessedEvents) IsProcessed(ctx context.Context, eventID string) bool {
	if p == nil || p.cache == nil {
		return false
	}
	n, err := p.cache.Exists(ctx, key(eventID)).Result()
	if err != nil {
		p.errors.Add(1)
		logger.Warn("processed-event cache read failed", zap.String("event_id", eventID), zap.Error(err))
		return false
	}
	if n > 0 {
		p.hits.Add(1)
		return true
	}
	p.misses.Add(1)
	return false
}

func (p *ProcessedEvents) MarkProcessed(ctx context.Context, eventID string) {
	if p == nil || p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, key(eventID), time.Now().UTC().Unix(), p.ttl).Err(); err != nil {
		p.errors.Add(1)
		logger.Warn("processed-event cache write failed", zap.String("event_id", eventID), zap.Error(err))
	}
}

// Stats returns hit, miss and error counters since construction.
func (p *ProcessedEvents) Stats() (hits, misses, errs int64) {
	if p == nil {
		return 0, 0, 0
	}
	return p.hits.Load(), p.misses.Load(), p.errors.Load()
}
