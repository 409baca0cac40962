// Package exposure enforces the fixed exposure cap on open positions.
//
// Both limits are computed once from the portfolio's starting cash:
// new longs are blocked once the open-position value reaches
// startingCash + ε, new shorts once it falls to −startingCash. The ε
// headroom keeps a fully invested portfolio from being rejected on exact
// equality.
package exposure

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrLongLimitExceeded is returned when a long would push the open
	// position value beyond the maximum.
	ErrLongLimitExceeded = errors.New("exposure: long position limit exceeded")

	// ErrShortLimitExceeded is returned when a short would push the open
	// position value below the minimum.
	ErrShortLimitExceeded = errors.New("exposure: short position limit exceeded")
)

// DefaultEpsilon is the headroom added to the long-side limit. One cent.
var DefaultEpsilon = decimal.NewFromFloat(0.01)

// Limits holds the max/min allowed value of open positions before new
// same-direction trades are blocked. Computed once per backtest run.
type Limits struct {
	// Max is the ceiling for opening new longs: startingCash + ε.
	Max decimal.Decimal

	// Min is the floor for opening new shorts: −startingCash.
	Min decimal.Decimal
}

// NewLimits derives limits from starting cash. A non-positive epsilon
// falls back to DefaultEpsilon.
func NewLimits(startingCash, epsilon decimal.Decimal) Limits {
	if epsilon.LessThanOrEqual(decimal.Zero) {
		epsilon = DefaultEpsilon
	}
	return Limits{
		Max: startingCash.Add(epsilon),
		Min: startingCash.Neg(),
	}
}

// CanOpenLong reports whether a new long is allowed at the given open
// position value.
func (l Limits) CanOpenLong(positionsValue decimal.Decimal) bool {
	return positionsValue.LessThan(l.Max)
}

// CanOpenShort reports whether a new short is allowed at the given open
// position value.
func (l Limits) CanOpenShort(positionsValue decimal.Decimal) bool {
	return positionsValue.GreaterThan(l.Min)
}

// CheckLong returns ErrLongLimitExceeded when a long is not allowed.
func (l Limits) CheckLong(positionsValue decimal.Decimal) error {
	if !l.CanOpenLong(positionsValue) {
		return ErrLongLimitExceeded
	}
	return nil
}

// CheckShort returns ErrShortLimitExceeded when a short is not allowed.
func (l Limits) CheckShort(positionsValue decimal.Decimal) error {
	if !l.CanOpenShort(positionsValue) {
		return ErrShortLimitExceeded
	}
	return nil
}
