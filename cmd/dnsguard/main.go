package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dnsguard/dnsguard/pkg/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	rulesFile string
	quiet     bool
	verbose   bool
)

// runtimeCfg is loaded once at startup from DNSGUARD_ environment
// variables; CLI flags override individual values.
var runtimeCfg *config.Runtime

var rootCmd = &cobra.Command{
	Use:   "dnsguard",
	Short: "DNS tunneling detector",
	Long: `DNSGuard - DNS tunneling detection for query logs

Scores DNS query names with a trained model plus ordered
heuristic rules:
  • analyze - batch-score a captured query log (CSV)
  • watch   - follow a live query log and flag suspicious names
  • capture - recording DNS proxy that feeds the query log

Output formats:
  • JSONL (default) - streaming, pipe to jq
  • CSV             - qname, verdict, confidence
  • Parquet         - columnar, query with DuckDB`,

	Example: `  # Batch-analyze a capture
  dnsguard analyze dns_log.csv --model model.json

  # CSV report to a file
  dnsguard analyze dns_log.csv --model model.json --format csv -o report.csv

  # Follow the live log, persist flagged names
  dnsguard watch dns_log.csv --model model.json --store flags.db

  # Record DNS traffic for later analysis
  dnsguard capture --listen 127.0.0.1:5353 --upstream 8.8.8.8`,

	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("dnsguard %s (commit: %s, built: %s)\n", version, commit, date))
	rootCmd.Version = version

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rulesFile, "config", "c", "", "Detection rules file (YAML)")
	pf.BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
}

func initLogger() {
	var level slog.Level
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	default:
		level = logLevel(runtimeCfg.LogLevel)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("stopping...")
		cancel()
	}()

	return ctx, cancel
}

func main() {
	var err error
	runtimeCfg, err = config.LoadRuntime()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
