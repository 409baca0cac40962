package trader

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantor/momentum-engine/internal/model"
	"github.com/quantor/momentum-engine/internal/portfolio"
	"github.com/quantor/momentum-engine/internal/source"
	"github.com/quantor/momentum-engine/internal/vwap"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func day(offset int) time.Time {
	return time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

// bar builds a tick; typical price is (high+low+close)/3.
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

func testConfig() Config {
	return Config{
		Symbol:         "ACME",
		LookbackDays:   30,
		AsOf:           day(0),
		VWAPPeriodDays: 10,
		VWAPWindow:     vwap.WindowWithin,
	}
}

// anchorSeries yields VWAP = 100 exactly: one heavy bar with typical
// price (110+90+100)/3 = 100 and all other volume zero.
func anchorSeries(extra ...model.Tick) model.PriceSeries {
	series := model.PriceSeries{bar(day(0), 110, 90, 100, 3000)}
	series = append(series, extra...)
	series.Sort()
	return series
}

func TestEvaluateTick_OpensShortBelowThreshold(t *testing.T) {
	// VWAP = 100, trigger price 90 < 99.5, minLimit −10000 < 0.
	pf := portfolio.New(d(10000), day(0))
	tr := NewFromSeries(anchorSeries(), pf, testConfig())

	orders, err := tr.EvaluateTick(bar(day(1), 95, 90, 92, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	o := orders[0]
	if o.Type != model.OrderTypeShort {
		t.Fatalf("expected short, got %s", o.Type)
	}
	if o.Quantity != -5 {
		t.Errorf("expected quantity -5, got %d", o.Quantity)
	}
	if !o.Value.Equal(d(-450)) {
		t.Errorf("expected value -450, got %s", o.Value)
	}
	// Cash subtracts the signed value: 10000 − (−450) = 10450.
	if !pf.Cash().Equal(d(10450)) {
		t.Errorf("expected cash 10450, got %s", pf.Cash())
	}
}

func TestEvaluateTick_OpensLongAboveThreshold(t *testing.T) {
	// VWAP = 100, trigger price 101 > 100.1.
	pf := portfolio.New(d(10000), day(0))
	tr := NewFromSeries(anchorSeries(), pf, testConfig())

	orders, err := tr.EvaluateTick(bar(day(1), 103, 101, 102, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	o := orders[0]
	if o.Type != model.OrderTypeLong {
		t.Fatalf("expected long, got %s", o.Type)
	}
	if o.Quantity != 5 {
		t.Errorf("expected quantity 5, got %d", o.Quantity)
	}
	if !o.Value.Equal(d(505)) {
		t.Errorf("expected value 505, got %s", o.Value)
	}
	if !pf.Cash().Equal(d(9495)) {
		t.Errorf("expected cash 9495, got %s", pf.Cash())
	}
}

func TestEvaluateTick_NeutralPriceCoversEligibleShorts(t *testing.T) {
	// Open short at entry price 100 (value −500). Trigger price 99.6 is
	// neither below 99.5 nor above 100.1; entry 100 ≥ 0.8×99.6 = 79.68,
	// so the short is covered with quantity 5 and value 5×99.6 = 498.
	pf := portfolio.New(d(10000), day(0))
	tr := NewFromSeries(anchorSeries(), pf, testConfig())

	short := &model.Order{
		Symbol:   "ACME",
		Quantity: -5,
		Type:     model.OrderTypeShort,
		Value:    d(-500),
	}
	pf.AddPosition(short)

	orders, err := tr.EvaluateTick(bar(day(1), 100, 99.6, 99.8, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(orders) != 1 {
		t.Fatalf("expected 1 cover, got %d orders", len(orders))
	}
	cover := orders[0]
	if cover.Type != model.OrderTypeCover {
		t.Fatalf("expected cover, got %s", cover.Type)
	}
	if cover.Quantity != 5 {
		t.Errorf("expected cover quantity 5, got %d", cover.Quantity)
	}
	if !cover.Value.Equal(d(498)) {
		t.Errorf("expected cover value 498, got %s", cover.Value)
	}
	if !cover.Covered {
		t.Error("cover order should be constructed covered")
	}
	if !short.Covered {
		t.Error("original short should be marked covered")
	}
}

func TestEvaluateTick_IneligibleShortStaysOpen(t *testing.T) {
	// Entry price 50 < 0.8×99.6 = 79.68: not eligible.
	pf := portfolio.New(d(10000), day(0))
	tr := NewFromSeries(anchorSeries(), pf, testConfig())

	short := &model.Order{
		Symbol:   "ACME",
		Quantity: -5,
		Type:     model.OrderTypeShort,
		Value:    d(-250),
	}
	pf.AddPosition(short)

	orders, err := tr.EvaluateTick(bar(day(1), 100, 99.6, 99.8, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(orders) != 0 {
		t.Fatalf("expected no orders, got %d", len(orders))
	}
	if short.Covered {
		t.Error("ineligible short must stay open")
	}
}

func TestEvaluateTick_MultipleShortsCoverOnSameTick(t *testing.T) {
	pf := portfolio.New(d(10000), day(0))
	tr := NewFromSeries(anchorSeries(), pf, testConfig())

	s1 := &model.Order{Symbol: "ACME", Quantity: -5, Type: model.OrderTypeShort, Value: d(-500)}
	s2 := &model.Order{Symbol: "ACME", Quantity: -5, Type: model.OrderTypeShort, Value: d(-450)}
	pf.AddPosition(s1)
	pf.AddPosition(s2)

	orders, err := tr.EvaluateTick(bar(day(1), 100, 99.6, 99.8, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(orders) != 2 {
		t.Fatalf("expected 2 covers, got %d", len(orders))
	}
	if !s1.Covered || !s2.Covered {
		t.Error("both shorts should be covered")
	}
}

func TestEvaluateTick_OpeningWinsOverCovering(t *testing.T) {
	// Price 90 triggers rule 1, so the eligible short must NOT be
	// covered on the same tick.
	pf := portfolio.New(d(10000), day(0))
	tr := NewFromSeries(anchorSeries(), pf, testConfig())

	short := &model.Order{Symbol: "ACME", Quantity: -5, Type: model.OrderTypeShort, Value: d(-500)}
	pf.AddPosition(short)

	orders, err := tr.EvaluateTick(bar(day(1), 95, 90, 92, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(orders) != 1 || orders[0].Type != model.OrderTypeShort {
		t.Fatalf("expected a single new short, got %v", orders)
	}
	if short.Covered {
		t.Error("rule 3 must not fire when rule 1 matched")
	}
}

func TestEvaluateTick_VWAPErrorsPropagate(t *testing.T) {
	pf := portfolio.New(d(10000), day(0))

	// Empty series: the window filter leaves nothing to average.
	tr := NewFromSeries(model.PriceSeries{}, pf, testConfig())
	_, err := tr.EvaluateTick(bar(day(1), 95, 90, 92, 0))
	if err == nil {
		t.Fatal("expected error for empty series")
	}

	// Zero total volume.
	zeroVol := model.PriceSeries{bar(day(0), 110, 90, 100, 0)}
	tr = NewFromSeries(zeroVol, pf, testConfig())
	_, err = tr.EvaluateTick(bar(day(1), 95, 90, 92, 0))
	if err == nil {
		t.Fatal("expected error for zero total volume")
	}
}

func TestNew_FetchesSeriesFromSource(t *testing.T) {
	src := source.NewMemorySource()
	src.SetSeries("ACME", anchorSeries())

	pf := portfolio.New(d(10000), day(0))
	tr, err := New(context.Background(), src, pf, testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tr.Series()) != 1 {
		t.Errorf("expected 1 bar fetched, got %d", len(tr.Series()))
	}
}

func TestNew_FetchFailureIsFatal(t *testing.T) {
	src := source.NewMemorySource() // no series installed
	pf := portfolio.New(d(10000), day(0))

	if _, err := New(context.Background(), src, pf, testConfig()); err == nil {
		t.Fatal("expected error when the data source has no data")
	}
}

func TestLimits_DerivedOnceFromStartingCash(t *testing.T) {
	pf := portfolio.New(d(10000), day(0))
	tr := NewFromSeries(anchorSeries(), pf, testConfig())

	if !tr.Limits().Min.Equal(d(-10000)) {
		t.Errorf("expected min limit -10000, got %s", tr.Limits().Min)
	}
	if !tr.Limits().Max.GreaterThan(d(10000)) {
		t.Errorf("expected max limit above 10000, got %s", tr.Limits().Max)
	}
}
