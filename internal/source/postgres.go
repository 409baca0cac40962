package source

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quantor/momentum-engine/internal/model"
)

// PostgresSource reads daily price bars from a relational store. Prices
// are stored as NUMERIC and scanned as TEXT for exact decimal precision.
type PostgresSource struct {
	pool *pgxpool.Pool

	// asOf anchors the lookback window; injected rather than read from
	// the clock so backtests are reproducible.
	asOf time.Time
}

// NewPostgresSource creates a query-backed source. The lookback window
// for GetStockPrices is measured backwards from asOf.
func NewPostgresSource(pool *pgxpool.Pool, asOf time.Time) *PostgresSource {
	return &PostgresSource{pool: pool, asOf: asOf}
}

// Compile-time interface check.
var _ Source = (*PostgresSource)(nil)

// GetStockPrices selects bars for symbol with date within count days of
// the as-of date, descending by date, maps them to Tick with AdjClose
// defaulted to zero, and reverses to oldest-first order.
func (s *PostgresSource) GetStockPrices(ctx context.Context, symbol string, count int) ([]model.Tick, error) {
	since := s.asOf.AddDate(0, 0, -count)

	rows, err := s.pool.Query(ctx,
		`SELECT date,
		        open::TEXT, high::TEXT, low::TEXT, close::TEXT, volume::TEXT
		 FROM daily_prices
		 WHERE symbol = $1 AND date >= $2 AND date <= $3
		 ORDER BY date DESC`,
		symbol, since, s.asOf)
	if err != nil {
		return nil, fmt.Errorf("%w: query bars for %s: %v", ErrUnavailable, symbol, err)
	}
	defer rows.Close()

	var ticks []model.Tick
	for rows.Next() {
		var t model.Tick
		var open, high, low, close, volume string

		if err := rows.Scan(&t.Date, &open, &high, &low, &close, &volume); err != nil {
			return nil, fmt.Errorf("%w: scan bar row: %v", ErrBadRow, err)
		}

		if t.Open, err = decimal.NewFromString(open); err != nil {
			return nil, fmt.Errorf("%w: open %q", ErrBadRow, open)
		}
		if t.High, err = decimal.NewFromString(high); err != nil {
			return nil, fmt.Errorf("%w: high %q", ErrBadRow, high)
		}
		if t.Low, err = decimal.NewFromString(low); err != nil {
			return nil, fmt.Errorf("%w: low %q", ErrBadRow, low)
		}
		if t.Close, err = decimal.NewFromString(close); err != nil {
			return nil, fmt.Errorf("%w: close %q", ErrBadRow, close)
		}
		if t.Volume, err = decimal.NewFromString(volume); err != nil {
			return nil, fmt.Errorf("%w: volume %q", ErrBadRow, volume)
		}
		t.AdjClose = decimal.Zero // table carries no adjusted close

		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate bar rows: %v", ErrUnavailable, err)
	}

	// Reverse to oldest-first order.
	for i, j := 0, len(ticks)-1; i < j; i, j = i+1, j-1 {
		ticks[i], ticks[j] = ticks[j], ticks[i]
	}

	return ticks, nil
}
