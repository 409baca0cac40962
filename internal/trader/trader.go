// Package trader evaluates the momentum trading rules tick by tick and
// emits orders into the portfolio ledger.
//
// Per-tick policy, strict priority (first matching rule wins):
//  1. price < VWAP × shortThreshold and positions above the short floor
//     → open a Short of fixed size at price
//  2. price > VWAP × longThreshold and positions below the long ceiling
//     → open a Long of fixed size at price
//  3. otherwise, cover every open short whose per-share entry notional
//     is at least coverRatio × price
//
// The trigger price is the tick's low. Rule 3 only fires when rules 1
// and 2 both fail, so opening a position and covering shorts never
// happen on the same tick.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantor/momentum-engine/internal/exposure"
	"github.com/quantor/momentum-engine/internal/model"
	"github.com/quantor/momentum-engine/internal/portfolio"
	"github.com/quantor/momentum-engine/internal/source"
	"github.com/quantor/momentum-engine/internal/vwap"
)

// Reference policy defaults.
var (
	defaultShortThreshold = decimal.NewFromFloat(0.995)
	defaultLongThreshold  = decimal.NewFromFloat(1.001)
	defaultCoverRatio     = decimal.NewFromFloat(0.8)
)

// DefaultTradeSize is the fixed per-trade share size of the reference
// policy.
const DefaultTradeSize int64 = 5

// Config holds the strategy parameters. Zero values fall back to the
// reference policy defaults.
type Config struct {
	Symbol       string
	LookbackDays int   // bars fetched at construction
	TradeSize    int64 // shares per opening order

	// AsOf is the fixed reference date for the VWAP window filter. It is
	// injected rather than read from the clock so runs are reproducible.
	AsOf time.Time

	VWAPPeriodDays int
	VWAPWindow     vwap.Window

	ShortThreshold decimal.Decimal // short when price < VWAP × this
	LongThreshold  decimal.Decimal // long when price > VWAP × this
	CoverRatio     decimal.Decimal // cover when entry price ≥ this × price

	// Epsilon is the long-side exposure headroom; zero uses
	// exposure.DefaultEpsilon.
	Epsilon decimal.Decimal
}

func (c Config) withDefaults() Config {
	if c.TradeSize <= 0 {
		c.TradeSize = DefaultTradeSize
	}
	if c.VWAPPeriodDays <= 0 {
		c.VWAPPeriodDays = 10
	}
	if c.ShortThreshold.IsZero() {
		c.ShortThreshold = defaultShortThreshold
	}
	if c.LongThreshold.IsZero() {
		c.LongThreshold = defaultLongThreshold
	}
	if c.CoverRatio.IsZero() {
		c.CoverRatio = defaultCoverRatio
	}
	return c
}

// Trader consumes a price series and a portfolio reference. The series
// is fetched once at construction and never mutated; the portfolio is
// mutated only through its own operations.
type Trader struct {
	cfg    Config
	series model.PriceSeries
	pf     *portfolio.Portfolio
	limits exposure.Limits
}

// New fetches the price series for (symbol, lookbackDays) from the data
// source and constructs a trader around it. Fetch failure is fatal to
// the run; no retry happens here.
func New(ctx context.Context, src source.Source, pf *portfolio.Portfolio, cfg Config) (*Trader, error) {
	cfg = cfg.withDefaults()

	ticks, err := src.GetStockPrices(ctx, cfg.Symbol, cfg.LookbackDays)
	if err != nil {
		return nil, fmt.Errorf("fetch price series for %s: %w", cfg.Symbol, err)
	}

	series := model.PriceSeries(ticks)
	series.Sort()

	return NewFromSeries(series, pf, cfg), nil
}

// NewFromSeries constructs a trader over an already fetched series.
// The series must be sorted ascending by date.
func NewFromSeries(series model.PriceSeries, pf *portfolio.Portfolio, cfg Config) *Trader {
	cfg = cfg.withDefaults()
	return &Trader{
		cfg:    cfg,
		series: series,
		pf:     pf,
		limits: exposure.NewLimits(pf.StartingCash(), cfg.Epsilon),
	}
}

// Series returns the immutable price series the trader was built over.
func (t *Trader) Series() model.PriceSeries { return t.series }

// Limits returns the exposure limits derived from starting cash.
func (t *Trader) Limits() exposure.Limits { return t.limits }

// EvaluateTick applies the trading rules to one bar and returns the
// orders appended to the ledger (one opening order, or the cover orders
// emitted by rule 3; nil when nothing fired).
func (t *Trader) EvaluateTick(tick model.Tick) ([]*model.Order, error) {
	price := tick.Low

	avg, err := vwap.Compute(t.series, t.cfg.AsOf, t.cfg.VWAPPeriodDays, t.cfg.VWAPWindow)
	if err != nil {
		return nil, fmt.Errorf("vwap for %s: %w", t.cfg.Symbol, err)
	}

	positionsValue := t.pf.PositionsValue()

	switch {
	case price.LessThan(avg.Mul(t.cfg.ShortThreshold)) && t.limits.CanOpenShort(positionsValue):
		order := t.openShort(price)
		return []*model.Order{order}, nil

	case price.GreaterThan(avg.Mul(t.cfg.LongThreshold)) && t.limits.CanOpenLong(positionsValue):
		order := t.openLong(price)
		return []*model.Order{order}, nil

	default:
		return t.coverEligibleShorts(price)
	}
}

func (t *Trader) openShort(price decimal.Decimal) *model.Order {
	size := decimal.NewFromInt(t.cfg.TradeSize)
	order := &model.Order{
		ID:       uuid.New().String(),
		Symbol:   t.cfg.Symbol,
		Quantity: -t.cfg.TradeSize,
		Type:     model.OrderTypeShort,
		Value:    size.Mul(price).Neg(),
	}
	t.pf.AddPosition(order)

	slog.Info("short opened",
		"symbol", t.cfg.Symbol,
		"qty", order.Quantity,
		"price", price.String(),
		"value", order.Value.String(),
	)
	return order
}

func (t *Trader) openLong(price decimal.Decimal) *model.Order {
	size := decimal.NewFromInt(t.cfg.TradeSize)
	order := &model.Order{
		ID:       uuid.New().String(),
		Symbol:   t.cfg.Symbol,
		Quantity: t.cfg.TradeSize,
		Type:     model.OrderTypeLong,
		Value:    size.Mul(price),
	}
	t.pf.AddPosition(order)

	slog.Info("long opened",
		"symbol", t.cfg.Symbol,
		"qty", order.Quantity,
		"price", price.String(),
		"value", order.Value.String(),
	)
	return order
}

// coverEligibleShorts closes every open short whose per-share entry
// notional is at least coverRatio × price. Multiple shorts may close on
// the same tick.
func (t *Trader) coverEligibleShorts(price decimal.Decimal) ([]*model.Order, error) {
	size := decimal.NewFromInt(t.cfg.TradeSize)
	floor := t.cfg.CoverRatio.Mul(price)

	var covers []*model.Order
	for _, short := range t.pf.ShortPositions() {
		if short.Covered {
			continue
		}
		entryPrice := short.Value.Div(size).Abs()
		if entryPrice.LessThan(floor) {
			continue
		}

		qty := short.Quantity
		if qty < 0 {
			qty = -qty
		}
		cover := &model.Order{
			ID:       uuid.New().String(),
			Symbol:   t.cfg.Symbol,
			Quantity: qty,
			Type:     model.OrderTypeCover,
			Value:    decimal.NewFromInt(qty).Mul(price),
			Covered:  true,
		}

		if err := t.pf.CloseShortPosition(short, cover); err != nil {
			return covers, fmt.Errorf("close short %s: %w", short.ID, err)
		}
		covers = append(covers, cover)
	}

	slog.Info("short positions closed", "count", len(covers), "symbol", t.cfg.Symbol)
	return covers, nil
}
