// Command analyze runs the options flow analysis once, outside the service.
//
//	analyze AAPL TSLA
//	analyze --registry --persist
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"optionsflow/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "analyze [TICKER...]",
	Short: "Analyze option chains and print the payloads as JSON",
	Long: `Fetch the nearest-expiration option chain of each ticker, compute Layer-2
metrics, max pain and the narrative, and print the payloads to stdout.

Tickers come from the arguments, or from the Redis registry with --registry.
With --persist the records are appended to the PostgreSQL analysis history.

Examples:
  analyze AAPL TSLA
  analyze --registry --persist
  analyze NVDA --pretty`,
	RunE:          runAnalyze,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	fromRegistry bool
	persist      bool
	pretty       bool
	concurrency  int
	logLevel     string
)

func init() {
	rootCmd.Flags().BoolVar(&fromRegistry, "registry", false, "Read tickers from the Redis ticker registry")
	rootCmd.Flags().BoolVar(&persist, "persist", false, "Append results to the PostgreSQL analysis history")
	rootCmd.Flags().BoolVar(&pretty, "pretty", false, "Indent JSON output")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 4, "Tickers analyzed in parallel")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level (debug|info|warn|error)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Get().Errorw("analyze failed", "error", err)
		os.Exit(1)
	}
}
