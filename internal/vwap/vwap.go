// Package vwap computes the volume-weighted average price over a window
// of daily bars:
//
//	VWAP = Σ(typicalPrice × volume) / Σ(volume)
//
// where typicalPrice = (high + low + close) / 3.
//
// The reference policy this engine reproduces filters the series against
// the inclusive window [refDate − periodDays, refDate + periodDays] and —
// counterintuitively — averages the bars that fall OUTSIDE it. That
// behavior is preserved as WindowOutside; the evidently intended
// "within the last N days" filter is available as WindowWithin.
//
// The reference date is always passed in, never read from the clock, so
// results are reproducible.
//
// All prices use shopspring/decimal — never float64 for money.
package vwap

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantor/momentum-engine/internal/model"
)

var (
	// ErrInsufficientData is returned when the window filter leaves no
	// bars to average.
	ErrInsufficientData = errors.New("vwap: no ticks in window")

	// ErrZeroVolume is returned when the filtered bars carry zero total
	// volume, which would make the average degenerate.
	ErrZeroVolume = errors.New("vwap: total volume is zero")
)

// Window selects which side of the period filter contributes to the
// average.
type Window int

const (
	// WindowOutside averages bars whose date falls outside
	// [refDate − period, refDate + period]. Reference policy behavior.
	WindowOutside Window = iota

	// WindowWithin averages bars inside the same inclusive window.
	WindowWithin
)

// Compute returns the volume-weighted average price of the bars selected
// by the window filter. The filter boundary is inclusive on both ends.
func Compute(series model.PriceSeries, refDate time.Time, periodDays int, window Window) (decimal.Decimal, error) {
	lo := refDate.AddDate(0, 0, -periodDays)
	hi := refDate.AddDate(0, 0, periodDays)

	weighted := decimal.Zero
	volume := decimal.Zero
	selected := 0

	for _, tick := range series {
		inside := !tick.Date.Before(lo) && !tick.Date.After(hi)
		if (window == WindowOutside) == inside {
			continue
		}
		weighted = weighted.Add(tick.TypicalPrice().Mul(tick.Volume))
		volume = volume.Add(tick.Volume)
		selected++
	}

	if selected == 0 {
		return decimal.Zero, ErrInsufficientData
	}
	if volume.IsZero() {
		return decimal.Zero, ErrZeroVolume
	}

	return weighted.Div(volume), nil
}
