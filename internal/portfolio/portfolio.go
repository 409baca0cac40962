// Package portfolio implements the accounting ledger for a single-symbol
// backtest: cash, an append-only sequence of orders, and the computed
// valuation views derived from them.
//
// Accounting conventions (deliberate, not a generic ledger):
//   - Cash subtracts the signed value of opening orders only. A short sale
//     carries a negative value, so opening it increases cash; Cover orders
//     never touch cash — the cover leg's P&L surfaces through
//     PositionsValue instead.
//   - Long legs are marked to the current price, Short legs are held at
//     their locked-in notional, Cover legs reduce exposure at the current
//     price.
//
// All monetary values use shopspring/decimal — never float64 for money.
package portfolio

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantor/momentum-engine/internal/model"
)

var (
	// ErrNotShort is returned when close-short is invoked on an order
	// that is not a Short.
	ErrNotShort = errors.New("portfolio: close-short target is not a short order")

	// ErrAlreadyCovered is returned when close-short is invoked on a
	// short that has already been covered. The covered flag transitions
	// false→true at most once and is never reset.
	ErrAlreadyCovered = errors.New("portfolio: short position already covered")
)

// Portfolio is the mutable ledger of cash and positions. It exclusively
// owns its order list; callers mutate it only through AddPosition and
// CloseShortPosition. The ledger only grows — orders are never removed,
// only marked covered.
//
// Portfolio is not safe for concurrent use. A backtest has exactly one
// writer and no concurrent readers, so no locking is needed.
type Portfolio struct {
	startingCash decimal.Decimal
	startDate    time.Time
	currentPrice decimal.Decimal
	positions    []*model.Order
}

// New creates a portfolio with the given starting cash and start date.
func New(startingCash decimal.Decimal, startDate time.Time) *Portfolio {
	return &Portfolio{
		startingCash: startingCash,
		startDate:    startDate,
	}
}

// StartingCash returns the cash the portfolio was created with.
func (p *Portfolio) StartingCash() decimal.Decimal { return p.startingCash }

// StartDate returns the backtest start date.
func (p *Portfolio) StartDate() time.Time { return p.startDate }

// SetCurrentPrice updates the single shared mark-to-market price used by
// every valuation view. Callers must set it before reading
// value-dependent properties.
func (p *Portfolio) SetCurrentPrice(price decimal.Decimal) {
	p.currentPrice = price
}

// CurrentPrice returns the current mark price.
func (p *Portfolio) CurrentPrice() decimal.Decimal { return p.currentPrice }

// AddPosition appends an order to the ledger. No validation is performed;
// the caller guarantees the order sign invariants.
func (p *Portfolio) AddPosition(order *model.Order) {
	p.positions = append(p.positions, order)
}

// CloseShortPosition marks the given short as covered and appends the
// cover order to the ledger. It fails loudly on contract violations
// rather than silently corrupting the ledger.
func (p *Portfolio) CloseShortPosition(short *model.Order, cover *model.Order) error {
	if short.Type != model.OrderTypeShort {
		return ErrNotShort
	}
	if short.Covered {
		return ErrAlreadyCovered
	}
	short.Covered = true
	p.positions = append(p.positions, cover)
	return nil
}

// Positions returns the full ledger in append order.
func (p *Portfolio) Positions() []*model.Order { return p.positions }

// ShortPositions returns the sub-sequence of Short orders (any covered
// state) in ledger order.
func (p *Portfolio) ShortPositions() []*model.Order {
	var shorts []*model.Order
	for _, o := range p.positions {
		if o.Type == model.OrderTypeShort {
			shorts = append(shorts, o)
		}
	}
	return shorts
}

// Cash returns startingCash minus the sum of signed values of opening
// (Long and Short) orders. Cover orders do not affect this figure.
func (p *Portfolio) Cash() decimal.Decimal {
	spent := decimal.Zero
	for _, o := range p.positions {
		if o.Type == model.OrderTypeLong || o.Type == model.OrderTypeShort {
			spent = spent.Add(o.Value)
		}
	}
	return p.startingCash.Sub(spent)
}

// PositionsValue marks long quantity to the current price, holds short
// legs at their locked-in notional, and reduces exposure by covered
// quantity at the current price.
func (p *Portfolio) PositionsValue() decimal.Decimal {
	longQty := decimal.Zero
	shortNotional := decimal.Zero
	coverQty := decimal.Zero

	for _, o := range p.positions {
		switch o.Type {
		case model.OrderTypeLong:
			longQty = longQty.Add(decimal.NewFromInt(o.Quantity))
		case model.OrderTypeShort:
			shortNotional = shortNotional.Add(o.Value.Abs())
		case model.OrderTypeCover:
			coverQty = coverQty.Add(decimal.NewFromInt(o.Quantity))
		}
	}

	return longQty.Mul(p.currentPrice).
		Add(shortNotional).
		Sub(coverQty.Mul(p.currentPrice))
}

// ShortPositionsValue sums the signed value of open (uncovered) shorts.
func (p *Portfolio) ShortPositionsValue() decimal.Decimal {
	total := decimal.Zero
	for _, o := range p.positions {
		if o.Type == model.OrderTypeShort && !o.Covered {
			total = total.Add(o.Value)
		}
	}
	return total
}

// PortfolioValue is cash plus positions value.
func (p *Portfolio) PortfolioValue() decimal.Decimal {
	return p.Cash().Add(p.PositionsValue())
}

// ProfitAndLoss is portfolio value minus starting cash.
func (p *Portfolio) ProfitAndLoss() decimal.Decimal {
	return p.PortfolioValue().Sub(p.startingCash)
}

// Returns is profit and loss as a fraction of starting cash.
func (p *Portfolio) Returns() decimal.Decimal {
	if p.startingCash.IsZero() {
		return decimal.Zero
	}
	return p.ProfitAndLoss().Div(p.startingCash)
}
