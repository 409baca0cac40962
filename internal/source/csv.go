package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantor/momentum-engine/internal/model"
)

// csvDateLayout is the date column format of the historical quote table.
const csvDateLayout = "2006-01-02"

// CSVSource fetches a comma-separated historical quote table over HTTP.
// The endpoint serves one row per day, most recent first, after a header
// row: date, open, high, low, close, volume, adjClose.
type CSVSource struct {
	baseURL string
	client  *http.Client
}

// NewCSVSource creates a CSV quote fetcher for the given endpoint.
// Pass nil to use a default client with a 30s timeout.
func NewCSVSource(baseURL string, client *http.Client) *CSVSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &CSVSource{baseURL: baseURL, client: client}
}

// Compile-time interface check.
var _ Source = (*CSVSource)(nil)

// GetStockPrices fetches the quote table for symbol, parses each row
// after the header into a Tick, keeps the most recent count rows, and
// reverses them to oldest-first order.
func (s *CSVSource) GetStockPrices(ctx context.Context, symbol string, count int) ([]model.Tick, error) {
	endpoint := fmt.Sprintf("%s?s=%s", s.baseURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrUnavailable, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch %s: status %d", ErrUnavailable, symbol, resp.StatusCode)
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = 7

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRow, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}

	// Skip header; rows arrive newest first.
	rows := records[1:]
	if count > 0 && len(rows) > count {
		rows = rows[:count]
	}

	ticks := make([]model.Tick, 0, len(rows))
	for i, row := range rows {
		tick, err := parseCSVRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		ticks = append(ticks, tick)
	}

	// Reverse to oldest-first order.
	for i, j := 0, len(ticks)-1; i < j; i, j = i+1, j-1 {
		ticks[i], ticks[j] = ticks[j], ticks[i]
	}

	return ticks, nil
}

// parseCSVRow maps one data row to a Tick. Columns:
// date, open, high, low, close, volume, adjClose.
func parseCSVRow(row []string) (model.Tick, error) {
	date, err := time.Parse(csvDateLayout, row[0])
	if err != nil {
		return model.Tick{}, fmt.Errorf("%w: date %q", ErrBadRow, row[0])
	}

	fields := make([]decimal.Decimal, 6)
	for i, raw := range row[1:] {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return model.Tick{}, fmt.Errorf("%w: column %d value %q", ErrBadRow, i+1, raw)
		}
		fields[i] = v
	}

	return model.Tick{
		Date:     date,
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
		AdjClose: fields[5],
	}, nil
}
