package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dnsguard/dnsguard/pkg/capture"
)

// capture flags
var (
	listenAddr  string
	upstream    string
	captureLog  string
	captureRate float64
)

var captureCmd = &cobra.Command{
	Use:   "capture [flags]",
	Short: "Recording DNS proxy that feeds the query log",
	Long: `Serves DNS on a local address, forwards queries to the upstream
resolver and appends every exchange to the CSV query log that analyze
and watch consume. Point clients (or a stub resolver) at the listen
address.`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

func init() {
	f := captureCmd.Flags()

	f.StringVarP(&listenAddr, "listen", "l", "127.0.0.1:5353", "Local DNS listen address")
	f.StringVarP(&upstream, "upstream", "u", "8.8.8.8", "Upstream resolver")
	f.StringVar(&captureLog, "log", "dns_log.csv", "Query log to append to")
	f.Float64Var(&captureRate, "rate", 0, "Max forwarded queries/second (0 = unlimited)")

	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	initLogger()

	ctx, cancel := signalContext()
	defer cancel()

	log, err := capture.OpenLog(captureLog)
	if err != nil {
		return err
	}
	defer log.Close()

	proxy, err := capture.NewProxy(capture.ProxyConfig{
		Listen:    listenAddr,
		Upstream:  upstream,
		RateLimit: captureRate,
	}, log)
	if err != nil {
		return err
	}

	err = proxy.Run(ctx)
	if errors.Is(err, context.Canceled) {
		slog.Info("capture stopped", "entries", log.Written())
		return nil
	}
	return err
}
