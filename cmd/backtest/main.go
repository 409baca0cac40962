// Command backtest runs a single backtest from the command line and
// prints the result summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quantor/momentum-engine/internal/backtest"
	"github.com/quantor/momentum-engine/internal/portfolio"
	"github.com/quantor/momentum-engine/internal/source"
	"github.com/quantor/momentum-engine/internal/symbol"
	"github.com/quantor/momentum-engine/internal/trader"
	"github.com/quantor/momentum-engine/internal/vwap"
)

const dateLayout = "2006-01-02"

func main() {
	// Run parameters
	sym := flag.String("symbol", "", "Ticker symbol to backtest (required)")
	cash := flag.Float64("cash", 10000, "Starting cash")
	lookbackDays := flag.Int("lookback-days", 30, "Number of daily bars to fetch")
	tradeSize := flag.Int64("trade-size", 0, "Shares per opening order (0 = default)")
	asOf := flag.String("as-of", "", "Reference date YYYY-MM-DD (default today UTC)")

	// Strategy parameters
	vwapPeriodDays := flag.Int("vwap-period-days", 10, "VWAP window length in days")
	vwapWindow := flag.String("vwap-window", "outside", "VWAP window filter: outside or within")
	markAtTick := flag.Bool("mark-at-tick", false, "Mark positions at each bar's close instead of the final close")

	// Data source
	quotesURL := flag.String("quotes-url", "", "Base URL of the CSV quote service")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")

	// Output
	outputJSON := flag.Bool("json", false, "Output as JSON")
	verbose := flag.Bool("verbose", false, "Log every order as it happens")

	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *sym == "" {
		fatal("--symbol is required")
	}
	normalized, err := symbol.Normalize(*sym)
	if err != nil {
		fatal("invalid symbol %q: %v", *sym, err)
	}

	asOfDate := time.Now().UTC().Truncate(24 * time.Hour)
	if *asOf != "" {
		asOfDate, err = time.Parse(dateLayout, *asOf)
		if err != nil {
			fatal("--as-of must be YYYY-MM-DD: %v", err)
		}
	}

	var window vwap.Window
	switch *vwapWindow {
	case "outside":
		window = vwap.WindowOutside
	case "within":
		window = vwap.WindowWithin
	default:
		fatal("--vwap-window must be outside or within, got %q", *vwapWindow)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Warn("signal received, cancelling run", "signal", sig.String())
		cancel()
	}()

	// --- Data source ---
	var src source.Source
	switch {
	case *quotesURL != "":
		src = source.NewCSVSource(*quotesURL, &http.Client{Timeout: 10 * time.Second})
	case *postgresDSN != "":
		pool, err := pgxpool.New(ctx, *postgresDSN)
		if err != nil {
			fatal("connect to postgres: %v", err)
		}
		defer pool.Close()
		src = source.NewPostgresSource(pool, asOfDate)
	default:
		fatal("one of --quotes-url or --postgres-dsn is required")
	}

	// --- Run ---
	startingCash := decimal.NewFromFloat(*cash)
	if !startingCash.IsPositive() {
		fatal("--cash must be positive")
	}

	pf := portfolio.New(startingCash, asOfDate)
	tr, err := trader.New(ctx, src, pf, trader.Config{
		Symbol:         normalized,
		LookbackDays:   *lookbackDays,
		TradeSize:      *tradeSize,
		AsOf:           asOfDate,
		VWAPPeriodDays: *vwapPeriodDays,
		VWAPWindow:     window,
	})
	if err != nil {
		fatal("build trader: %v", err)
	}

	runner := backtest.NewRunner(normalized, tr, pf, backtest.Config{MarkAtTick: *markAtTick})
	result, err := runner.Run(ctx)
	if err != nil {
		fatal("backtest failed: %v", err)
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
	} else {
		printResult(result)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// printResult outputs a human-readable run summary.
func printResult(r *backtest.Result) {
	fmt.Println()
	fmt.Println("=== Backtest Result ===")
	fmt.Printf("Run ID:             %s\n", r.RunID)
	fmt.Printf("Symbol:             %s\n", r.Symbol)
	fmt.Printf("Ticks:              %d\n", r.Ticks)
	fmt.Println()

	fmt.Println("Orders:")
	fmt.Printf("  Total:            %d\n", r.Orders)
	fmt.Printf("  Shares Bought:    %d\n", r.SharesBought)
	fmt.Printf("  Shares Sold:      %d\n", r.SharesSold)
	fmt.Printf("  Shares Covered:   %d\n", r.SharesCovered)
	fmt.Println()

	fmt.Println("Final Accounting:")
	fmt.Printf("  Cash:             %s\n", r.FinalCash)
	fmt.Printf("  Positions Value:  %s\n", r.FinalPositionsValue)
	fmt.Printf("  Portfolio Value:  %s\n", r.FinalPortfolioValue)
	fmt.Printf("  Profit and Loss:  %s\n", r.ProfitAndLoss)
	fmt.Printf("  Returns:          %s%%\n", r.Returns.Mul(decimal.NewFromInt(100)))
	fmt.Println()

	fmt.Printf("Elapsed:            %v\n", r.FinishedAt.Sub(r.StartedAt))
}
