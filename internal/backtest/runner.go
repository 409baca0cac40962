// Package backtest drives a trader over its historical price series in
// chronological order and reports summary counts.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantor/momentum-engine/internal/model"
	"github.com/quantor/momentum-engine/internal/portfolio"
	"github.com/quantor/momentum-engine/internal/trader"
)

// Config controls runner behavior.
type Config struct {
	// MarkAtTick marks positions at each bar's own close instead of the
	// reference behavior of pinning the mark to the final bar's close
	// for the whole run. Default false preserves the reference policy.
	MarkAtTick bool
}

// TickFunc is an optional per-tick observer. It receives the bar index,
// the total bar count, the bar, and the orders it produced. Called
// synchronously; keep it cheap.
type TickFunc func(index, total int, tick model.Tick, orders []*model.Order)

// Result holds the summary of one backtest run.
type Result struct {
	RunID  string `json:"run_id"`
	Symbol string `json:"symbol"`

	Ticks         int   `json:"ticks"`
	Orders        int   `json:"orders"`
	SharesBought  int64 `json:"shares_bought"`
	SharesSold    int64 `json:"shares_sold"`
	SharesCovered int64 `json:"shares_covered"`

	FinalCash           decimal.Decimal `json:"final_cash"`
	FinalPositionsValue decimal.Decimal `json:"final_positions_value"`
	FinalPortfolioValue decimal.Decimal `json:"final_portfolio_value"`
	ProfitAndLoss       decimal.Decimal `json:"profit_and_loss"`
	Returns             decimal.Decimal `json:"returns"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Runner executes one backtest: a sequential, deterministic fold over
// the trader's immutable series with the portfolio as the only mutable
// state. Single writer, no concurrent readers, no locking.
type Runner struct {
	symbol string
	tr     *trader.Trader
	pf     *portfolio.Portfolio
	cfg    Config
	onTick TickFunc
}

// NewRunner creates a runner for one trader/portfolio pair.
func NewRunner(symbol string, tr *trader.Trader, pf *portfolio.Portfolio, cfg Config) *Runner {
	return &Runner{
		symbol: symbol,
		tr:     tr,
		pf:     pf,
		cfg:    cfg,
	}
}

// SetObserver installs a per-tick callback. Must be called before Run.
func (r *Runner) SetObserver(fn TickFunc) { r.onTick = fn }

// Run iterates the series strictly in ascending-date order. Before each
// tick's signal evaluation the portfolio mark is set: to the final bar's
// close by default (reference behavior), or to the current bar's close
// when MarkAtTick is set. An empty series completes with zero orders and
// unchanged cash.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	result := &Result{
		RunID:     uuid.New().String(),
		Symbol:    r.symbol,
		StartedAt: time.Now().UTC(),
	}

	series := r.tr.Series()
	slog.Info("backtest started",
		"run_id", result.RunID,
		"symbol", r.symbol,
		"ticks", len(series),
		"starting_cash", r.pf.StartingCash().String(),
	)

	finalTick, hasBars := series.Last()

	for i, tick := range series {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest %s aborted: %w", result.RunID, err)
		}

		if r.cfg.MarkAtTick {
			r.pf.SetCurrentPrice(tick.Close)
		} else if hasBars {
			r.pf.SetCurrentPrice(finalTick.Close)
		}

		orders, err := r.tr.EvaluateTick(tick)
		if err != nil {
			return nil, fmt.Errorf("tick %d (%s): %w", i, tick.Date.Format("2006-01-02"), err)
		}

		for _, o := range orders {
			result.Orders++
			switch o.Type {
			case model.OrderTypeLong:
				result.SharesBought += o.Quantity
			case model.OrderTypeShort:
				result.SharesSold += -o.Quantity
			case model.OrderTypeCover:
				result.SharesCovered += o.Quantity
			}
		}
		result.Ticks++

		if r.onTick != nil {
			r.onTick(i, len(series), tick, orders)
		}
	}

	result.FinalCash = r.pf.Cash()
	result.FinalPositionsValue = r.pf.PositionsValue()
	result.FinalPortfolioValue = r.pf.PortfolioValue()
	result.ProfitAndLoss = r.pf.ProfitAndLoss()
	result.Returns = r.pf.Returns()
	result.FinishedAt = time.Now().UTC()

	slog.Info("backtest finished",
		"run_id", result.RunID,
		"symbol", r.symbol,
		"shares_sold", result.SharesSold,
		"shares_bought", result.SharesBought,
		"shares_covered", result.SharesCovered,
		"pnl", result.ProfitAndLoss.String(),
	)

	return result, nil
}
