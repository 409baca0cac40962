// Package source defines the historical price bar contract consumed by
// the trader. Implementations include a CSV-over-HTTP quote fetcher, a
// PostgreSQL-backed query, an in-memory fixture (for testing), and a
// Redis read-through cache wrapper.
package source

import (
	"context"
	"errors"

	"github.com/quantor/momentum-engine/internal/model"
)

// Source produces an ordered price series for a symbol and a lookback
// window: oldest first, at most count bars. A failure here is fatal to a
// backtest run; retry policy, if any, belongs to the implementation.
type Source interface {
	GetStockPrices(ctx context.Context, symbol string, count int) ([]model.Tick, error)
}

var (
	// ErrUnavailable is returned when the underlying source cannot be
	// reached.
	ErrUnavailable = errors.New("source: data source unavailable")

	// ErrBadRow is returned when a fetched row has unparsable date or
	// decimal fields.
	ErrBadRow = errors.New("source: malformed price row")

	// ErrNoData is returned when the source has no bars for the symbol.
	ErrNoData = errors.New("source: no price data for symbol")
)
