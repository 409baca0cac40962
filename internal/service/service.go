// Package service provides the HTTP handlers for launching backtest runs
// and querying their results. Results live in an in-memory registry for
// the lifetime of the process — they are deliberately not persisted.
//
// All monetary values use shopspring/decimal — never float64 for money.
package service

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/quantor/momentum-engine/internal/backtest"
	"github.com/quantor/momentum-engine/internal/metrics"
	"github.com/quantor/momentum-engine/internal/model"
	"github.com/quantor/momentum-engine/internal/portfolio"
	"github.com/quantor/momentum-engine/internal/source"
	"github.com/quantor/momentum-engine/internal/symbol"
	"github.com/quantor/momentum-engine/internal/trader"
	"github.com/quantor/momentum-engine/internal/vwap"
)

// dateLayout is the wire format for dates in requests.
const dateLayout = "2006-01-02"

// Service runs backtests against a shared data source and keeps finished
// runs in memory for querying.
type Service struct {
	src   source.Source
	wsHub *WSHub // optional hub for progress broadcasts

	mu   sync.RWMutex
	runs map[string]*runEntry
}

// runEntry pairs a run's summary with a snapshot of its order ledger.
type runEntry struct {
	result *backtest.Result
	orders []model.Order
}

// NewService creates a backtest service over the given data source.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(src source.Source, hub *WSHub) *Service {
	return &Service{
		src:   src,
		wsHub: hub,
		runs:  make(map[string]*runEntry),
	}
}

// --- Request/Response types ---

// RunRequest is the JSON body for POST /api/v1/backtests.
type RunRequest struct {
	Symbol         string          `json:"symbol"`
	StartingCash   decimal.Decimal `json:"starting_cash"`
	LookbackDays   int             `json:"lookback_days"`
	TradeSize      int64           `json:"trade_size"`       // 0 → reference default
	VWAPPeriodDays int             `json:"vwap_period_days"` // 0 → reference default
	VWAPWindow     string          `json:"vwap_window"`      // "outside" (default) or "within"
	AsOf           string          `json:"as_of"`            // YYYY-MM-DD; empty → today (UTC)
	MarkAtTick     bool            `json:"mark_at_tick"`
}

// --- HTTP Handlers ---

// RunBacktest handles POST /api/v1/backtests.
// Constructs a portfolio and trader from the request, drives the run to
// completion, and returns the result summary.
func (s *Service) RunBacktest(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sym, err := symbol.Normalize(req.Symbol)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !req.StartingCash.IsPositive() {
		writeError(w, "starting_cash must be positive", http.StatusBadRequest)
		return
	}
	if req.LookbackDays <= 0 {
		writeError(w, "lookback_days must be positive", http.StatusBadRequest)
		return
	}

	asOf := time.Now().UTC().Truncate(24 * time.Hour)
	if req.AsOf != "" {
		asOf, err = time.Parse(dateLayout, req.AsOf)
		if err != nil {
			writeError(w, "as_of must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}

	window := vwap.WindowOutside
	switch req.VWAPWindow {
	case "", "outside":
	case "within":
		window = vwap.WindowWithin
	default:
		writeError(w, "vwap_window must be \"outside\" or \"within\"", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	pf := portfolio.New(req.StartingCash, asOf)

	fetchStart := time.Now()
	tr, err := trader.New(ctx, s.src, pf, trader.Config{
		Symbol:         sym,
		LookbackDays:   req.LookbackDays,
		TradeSize:      req.TradeSize,
		AsOf:           asOf,
		VWAPPeriodDays: req.VWAPPeriodDays,
		VWAPWindow:     window,
	})
	if err != nil {
		metrics.BacktestsTotal.WithLabelValues("fetch_error").Inc()
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	metrics.SourceFetchDuration.WithLabelValues("primary").Observe(time.Since(fetchStart).Seconds())

	runner := backtest.NewRunner(sym, tr, pf, backtest.Config{MarkAtTick: req.MarkAtTick})
	runner.SetObserver(func(i, total int, tick model.Tick, orders []*model.Order) {
		for _, o := range orders {
			metrics.OrdersEmitted.WithLabelValues(o.Type.String()).Inc()
		}
		if s.wsHub != nil {
			s.wsHub.Broadcast(WSMessage{
				Type:       "tick",
				Symbol:     sym,
				Index:      i,
				Total:      total,
				Date:       tick.Date.Format(dateLayout),
				Close:      tick.Close.String(),
				OrderCount: len(orders),
			})
		}
	})

	runStart := time.Now()
	result, err := runner.Run(ctx)
	if err != nil {
		metrics.BacktestsTotal.WithLabelValues("error").Inc()
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.BacktestsTotal.WithLabelValues("ok").Inc()
	metrics.BacktestDuration.Observe(time.Since(runStart).Seconds())

	// Snapshot the ledger so the response surface cannot observe later
	// mutation (there is none after a run, but the copy is cheap).
	ledger := pf.Positions()
	orders := make([]model.Order, 0, len(ledger))
	for _, o := range ledger {
		orders = append(orders, *o)
	}

	s.mu.Lock()
	s.runs[result.RunID] = &runEntry{result: result, orders: orders}
	s.mu.Unlock()

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:       "run_finished",
			RunID:      result.RunID,
			Symbol:     sym,
			OrderCount: result.Orders,
			PnL:        result.ProfitAndLoss.String(),
		})
	}

	slog.Info("backtest run stored",
		"run_id", result.RunID,
		"symbol", sym,
		"orders", result.Orders,
		"pnl", result.ProfitAndLoss.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// ListBacktests handles GET /api/v1/backtests.
func (s *Service) ListBacktests(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	results := make([]*backtest.Result, 0, len(s.runs))
	for _, entry := range s.runs {
		results = append(results, entry.result)
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// GetBacktest handles GET /api/v1/backtests/{runID}.
func (s *Service) GetBacktest(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	s.mu.RLock()
	entry, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		writeError(w, "run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry.result)
}

// GetBacktestOrders handles GET /api/v1/backtests/{runID}/orders.
// Returns the full order ledger of the run in append order.
func (s *Service) GetBacktestOrders(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	s.mu.RLock()
	entry, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		writeError(w, "run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry.orders)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
