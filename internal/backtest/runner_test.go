package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantor/momentum-engine/internal/model"
	"github.com/quantor/momentum-engine/internal/portfolio"
	"github.com/quantor/momentum-engine/internal/trader"
	"github.com/quantor/momentum-engine/internal/vwap"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func day(offset int) time.Time {
	return time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func bar(date time.Time, high, low, close, volume float64) model.Tick {
	return model.Tick{
		Date:   date,
		Open:   d(low),
		High:   d(high),
		Low:    d(low),
		Close:  d(close),
		Volume: d(volume),
	}
}

func testConfig() trader.Config {
	return trader.Config{
		Symbol:         "ACME",
		AsOf:           day(1),
		VWAPPeriodDays: 10,
		VWAPWindow:     vwap.WindowWithin,
	}
}

// scenarioSeries has VWAP = 100 (only the first bar carries volume) and
// produces exactly: Short −5 @ 90, Long +5 @ 101, Cover 5 @ 99.6.
func scenarioSeries() model.PriceSeries {
	return model.PriceSeries{
		bar(day(0), 110, 90, 100, 3000), // price 90 < 99.5 → short
		bar(day(1), 103, 101, 102, 0),   // price 101 > 100.1 → long
		bar(day(2), 100, 99.6, 99.8, 0), // neutral → cover the short
	}
}

func newRun(series model.PriceSeries, cfg Config) (*Runner, *portfolio.Portfolio) {
	pf := portfolio.New(d(10000), day(0))
	tr := trader.NewFromSeries(series, pf, testConfig())
	return NewRunner("ACME", tr, pf, cfg), pf
}

func TestRun_EmptySeries(t *testing.T) {
	runner, pf := newRun(model.PriceSeries{}, Config{})

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Orders != 0 || result.Ticks != 0 {
		t.Errorf("expected zero orders and ticks, got %d/%d", result.Orders, result.Ticks)
	}
	if !pf.Cash().Equal(d(10000)) {
		t.Errorf("starting cash must be unchanged, got %s", pf.Cash())
	}
	if !result.ProfitAndLoss.IsZero() {
		t.Errorf("expected zero P&L, got %s", result.ProfitAndLoss)
	}
}

func TestRun_CountsSharesByOrderType(t *testing.T) {
	runner, _ := newRun(scenarioSeries(), Config{})

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.SharesSold != 5 {
		t.Errorf("expected 5 shares sold short, got %d", result.SharesSold)
	}
	if result.SharesBought != 5 {
		t.Errorf("expected 5 shares bought, got %d", result.SharesBought)
	}
	if result.SharesCovered != 5 {
		t.Errorf("expected 5 shares covered, got %d", result.SharesCovered)
	}
	if result.Orders != 3 {
		t.Errorf("expected 3 orders, got %d", result.Orders)
	}
	if result.Ticks != 3 {
		t.Errorf("expected 3 ticks, got %d", result.Ticks)
	}
}

func TestRun_FinalAccounting(t *testing.T) {
	runner, pf := newRun(scenarioSeries(), Config{})

	result, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Cash: 10000 − (−450 + 505) = 9945.
	if !result.FinalCash.Equal(d(9945)) {
		t.Errorf("expected final cash 9945, got %s", result.FinalCash)
	}
	// Positions at final close 99.8: 5×99.8 + 450 − 5×99.8 = 450.
	if !result.FinalPositionsValue.Equal(d(450)) {
		t.Errorf("expected final positions value 450, got %s", result.FinalPositionsValue)
	}
	if !result.FinalPortfolioValue.Equal(d(10395)) {
		t.Errorf("expected final portfolio value 10395, got %s", result.FinalPortfolioValue)
	}
	if !result.ProfitAndLoss.Equal(d(395)) {
		t.Errorf("expected P&L 395, got %s", result.ProfitAndLoss)
	}

	// The invariant portfolioValue == cash + positionsValue holds at the
	// final observation point.
	if !pf.PortfolioValue().Equal(pf.Cash().Add(pf.PositionsValue())) {
		t.Error("portfolio value != cash + positions value")
	}
}

func TestRun_MarkPinnedToFinalClose(t *testing.T) {
	var marks []decimal.Decimal
	runner, pf := newRun(scenarioSeries(), Config{})
	runner.SetObserver(func(_, _ int, _ model.Tick, _ []*model.Order) {
		marks = append(marks, pf.CurrentPrice())
	})

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Reference behavior: every tick is marked at the final bar's close.
	for i, mark := range marks {
		if !mark.Equal(d(99.8)) {
			t.Errorf("tick %d: expected mark 99.8, got %s", i, mark)
		}
	}
}

func TestRun_MarkAtTickUsesContemporaneousClose(t *testing.T) {
	var marks []decimal.Decimal
	runner, pf := newRun(scenarioSeries(), Config{MarkAtTick: true})
	runner.SetObserver(func(_, _ int, _ model.Tick, _ []*model.Order) {
		marks = append(marks, pf.CurrentPrice())
	})

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []decimal.Decimal{d(100), d(102), d(99.8)}
	if len(marks) != len(want) {
		t.Fatalf("expected %d marks, got %d", len(want), len(marks))
	}
	for i := range want {
		if !marks[i].Equal(want[i]) {
			t.Errorf("tick %d: expected mark %s, got %s", i, want[i], marks[i])
		}
	}
}

func TestRun_Deterministic(t *testing.T) {
	run := func() (*Result, []*model.Order) {
		runner, pf := newRun(scenarioSeries(), Config{})
		result, err := runner.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return result, pf.Positions()
	}

	r1, orders1 := run()
	r2, orders2 := run()

	if len(orders1) != len(orders2) {
		t.Fatalf("order counts differ: %d vs %d", len(orders1), len(orders2))
	}
	for i := range orders1 {
		a, b := orders1[i], orders2[i]
		if a.Type != b.Type || a.Quantity != b.Quantity || !a.Value.Equal(b.Value) || a.Covered != b.Covered {
			t.Errorf("order %d differs between runs: %+v vs %+v", i, a, b)
		}
	}
	if !r1.ProfitAndLoss.Equal(r2.ProfitAndLoss) {
		t.Errorf("P&L differs between runs: %s vs %s", r1.ProfitAndLoss, r2.ProfitAndLoss)
	}
}

func TestRun_CoveredFlagTransitionsAtMostOnce(t *testing.T) {
	runner, pf := newRun(scenarioSeries(), Config{})

	var flips int
	seen := make(map[*model.Order]bool)
	runner.SetObserver(func(_, _ int, _ model.Tick, _ []*model.Order) {
		for _, o := range pf.Positions() {
			if o.Type != model.OrderTypeShort {
				continue
			}
			if o.Covered && !seen[o] {
				seen[o] = true
				flips++
			}
			if !o.Covered && seen[o] {
				t.Fatal("covered flag reverted true→false")
			}
		}
	})

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flips != 1 {
		t.Errorf("expected exactly one short to flip covered, got %d", flips)
	}
}

func TestRun_ObserverReceivesOrders(t *testing.T) {
	runner, _ := newRun(scenarioSeries(), Config{})

	var perTick []int
	runner.SetObserver(func(_, total int, _ model.Tick, orders []*model.Order) {
		if total != 3 {
			t.Errorf("expected total 3, got %d", total)
		}
		perTick = append(perTick, len(orders))
	})

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []int{1, 1, 1}
	if len(perTick) != len(want) {
		t.Fatalf("expected %d observer calls, got %d", len(want), len(perTick))
	}
	for i := range want {
		if perTick[i] != want[i] {
			t.Errorf("tick %d: expected %d orders, got %d", i, want[i], perTick[i])
		}
	}
}

func TestRun_CancelledContext(t *testing.T) {
	runner, _ := newRun(scenarioSeries(), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := runner.Run(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
