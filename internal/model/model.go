// Package model defines the core domain types shared across the backtest
// engine. All prices and monetary values use shopspring/decimal — never
// float64 for money.
package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Tick is one day's OHLCV price bar for a symbol. Immutable once
// constructed.
type Tick struct {
	Date     time.Time       `json:"date" db:"date"`
	Open     decimal.Decimal `json:"open" db:"open"`
	High     decimal.Decimal `json:"high" db:"high"`
	Low      decimal.Decimal `json:"low" db:"low"`
	Close    decimal.Decimal `json:"close" db:"close"`
	Volume   decimal.Decimal `json:"volume" db:"volume"`
	AdjClose decimal.Decimal `json:"adj_close" db:"adj_close"`
}

// TypicalPrice returns (high + low + close) / 3, the per-bar price used
// by volume-weighted averages.
func (t Tick) TypicalPrice() decimal.Decimal {
	return t.High.Add(t.Low).Add(t.Close).Div(decimal.NewFromInt(3))
}

// PriceSeries is an ordered sequence of Tick, ascending by date (oldest
// first). The ordering is an invariant consumed by every downstream
// computation.
type PriceSeries []Tick

// Sort orders the series ascending by date in place.
func (s PriceSeries) Sort() {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].Date.Before(s[j].Date)
	})
}

// Last returns the most recent tick. ok is false for an empty series.
func (s PriceSeries) Last() (Tick, bool) {
	if len(s) == 0 {
		return Tick{}, false
	}
	return s[len(s)-1], true
}

// OrderType is the closed set of order variants. Long and Short open
// trades; Cover closes a previously opened Short.
type OrderType string

const (
	OrderTypeLong  OrderType = "LONG"
	OrderTypeShort OrderType = "SHORT"
	OrderTypeCover OrderType = "COVER"
)

// ParseOrderType validates a string against the closed variant set.
func ParseOrderType(s string) (OrderType, error) {
	switch OrderType(s) {
	case OrderTypeLong, OrderTypeShort, OrderTypeCover:
		return OrderType(s), nil
	default:
		return "", fmt.Errorf("model: unknown order type %q", s)
	}
}

func (t OrderType) String() string { return string(t) }

// Order is one row of the trade ledger.
//
// Sign conventions:
//   - Long:  Quantity > 0, Value > 0 (cash outflow as positive cost basis)
//   - Short: Quantity < 0, Value < 0 (negative sign marks the short notional)
//   - Cover: Quantity = |short quantity| > 0, Value = Quantity × cover price
//
// Covered starts false and transitions to true at most once, only through
// the portfolio's close-short operation. It is set on the Short being
// closed; Cover orders are constructed with Covered already true.
type Order struct {
	ID       string          `json:"id" db:"id"`
	Symbol   string          `json:"symbol" db:"symbol"`
	Quantity int64           `json:"quantity" db:"quantity"`
	Type     OrderType       `json:"type" db:"type"`
	Value    decimal.Decimal `json:"value" db:"value"`
	Covered  bool            `json:"covered" db:"covered"`
}
