// Package symbol validates equity ticker symbols before they reach a
// data source or a backtest run.
package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// symbolRegex matches 1-5 uppercase letters with an optional exchange
// suffix, e.g. AAPL, F, BHP.AX.
var symbolRegex = regexp.MustCompile(`^[A-Z]{1,5}(\.[A-Z]{1,3})?$`)

// ErrInvalidSymbol is returned for tickers that do not match the
// accepted format.
var ErrInvalidSymbol = errors.New("symbol: invalid ticker format")

// Normalize upper-cases and trims a raw ticker, returning an error if
// the result is not a valid symbol.
func Normalize(raw string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	if !symbolRegex.MatchString(sym) {
		return "", fmt.Errorf("%w: %q (expected 1-5 letters, optional .XX suffix)",
			ErrInvalidSymbol, raw)
	}
	return sym, nil
}

// Validate checks a ticker without normalizing it.
func Validate(sym string) error {
	if !symbolRegex.MatchString(sym) {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, sym)
	}
	return nil
}
