package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantor/momentum-engine/internal/model"
)

// CachedSource wraps a primary Source with a Redis read-through cache.
// Reads check Redis first and fall back to the primary; hits skip the
// remote fetch entirely. Historical daily bars rarely change, so a
// generous TTL is safe.
type CachedSource struct {
	primary Source
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedSource creates a cached wrapper around a primary source.
func NewCachedSource(primary Source, rdb *redis.Client, ttl time.Duration) *CachedSource {
	return &CachedSource{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// Compile-time interface check.
var _ Source = (*CachedSource)(nil)

// GetStockPrices serves the series from cache when present, otherwise
// fetches from the primary and populates the cache. Cache write failures
// are ignored; the fetched series is still returned.
func (s *CachedSource) GetStockPrices(ctx context.Context, symbol string, count int) ([]model.Tick, error) {
	key := seriesKey(symbol, count)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var ticks []model.Tick
		if json.Unmarshal(data, &ticks) == nil {
			return ticks, nil
		}
	}

	// Cache miss: read from primary.
	ticks, err := s.primary.GetStockPrices(ctx, symbol, count)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(ticks); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return ticks, nil
}

func seriesKey(symbol string, count int) string {
	return fmt.Sprintf("series:%s:%d", symbol, count)
}
