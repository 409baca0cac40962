package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/quantor/momentum-engine/internal/model"
)

// MemorySource serves fixed price series from memory. Used for testing
// and development runs without an external quote service or database.
type MemorySource struct {
	mu     sync.RWMutex
	series map[string]model.PriceSeries
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		series: make(map[string]model.PriceSeries),
	}
}

// Compile-time interface check.
var _ Source = (*MemorySource)(nil)

// SetSeries installs the bars served for a symbol. The slice is copied
// and sorted ascending so the caller cannot mutate served data.
func (s *MemorySource) SetSeries(symbol string, ticks []model.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make(model.PriceSeries, len(ticks))
	copy(cp, ticks)
	cp.Sort()
	s.series[symbol] = cp
}

// GetStockPrices returns up to count of the most recent bars for symbol,
// oldest first.
func (s *MemorySource) GetStockPrices(_ context.Context, symbol string, count int) ([]model.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.series[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}

	if count > 0 && len(series) > count {
		series = series[len(series)-count:]
	}

	out := make([]model.Tick, len(series))
	copy(out, series)
	return out, nil
}
