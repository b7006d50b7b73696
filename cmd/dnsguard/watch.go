package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dnsguard/dnsguard/pkg/config"
	"github.com/dnsguard/dnsguard/pkg/feature"
	"github.com/dnsguard/dnsguard/pkg/input"
	"github.com/dnsguard/dnsguard/pkg/pipeline"
	"github.com/dnsguard/dnsguard/pkg/score"
	"github.com/dnsguard/dnsguard/pkg/store"
	"github.com/dnsguard/dnsguard/pkg/tail"
	"github.com/dnsguard/dnsguard/pkg/verdict"
)

// watch flags
var (
	watchModel   string
	watchStore   string
	metricsAddr  string
	pollInterval time.Duration
	fromStart    bool
	useFsnotify  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [flags] <log.csv>",
	Short: "Follow a live query log and flag suspicious names",
	Long: `Tails the query log from the last checkpointed offset, gates new
names through the fast pre-filter and scores the survivors. Flagged
names are persisted to the store so findings survive restarts.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	f := watchCmd.Flags()

	f.StringVarP(&watchModel, "model", "m", "model.json", "Scoring model artifact (JSON)")
	f.StringVar(&watchStore, "store", "", "Flagged-query database (default from DNSGUARD_STORE_PATH)")
	f.StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address")
	f.DurationVar(&pollInterval, "poll-interval", 0, "Wait between log polls (default from DNSGUARD_POLL_INTERVAL)")
	f.BoolVar(&fromStart, "from-start", false, "Ignore the checkpoint and re-read the whole log")
	f.BoolVar(&useFsnotify, "fsnotify", true, "Wake on filesystem events instead of waiting out the poll interval")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	initLogger()

	ctx, cancel := signalContext()
	defer cancel()

	logPath := args[0]

	rules, err := config.LoadRules(rulesFile)
	if err != nil {
		return err
	}

	artifact, err := score.LoadArtifact(watchModel)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}

	engine, err := rules.Engine()
	if err != nil {
		return err
	}

	storePath := watchStore
	if storePath == "" {
		storePath = runtimeCfg.StorePath
	}
	st, err := store.Open(storePath)
	if err != nil {
		return err
	}
	defer st.Close()

	var offset int64
	if !fromStart {
		if offset, err = st.Offset(logPath); err != nil {
			return err
		}
	}

	p, err := pipeline.New(feature.NewBuilder(rules.ReferenceSets()), artifact, engine, pipeline.Config{
		Workers:   runtimeCfg.Workers,
		RateLimit: int(runtimeCfg.RateLimit),
		Quiet:     quiet,
	})
	if err != nil {
		return err
	}

	addr := metricsAddr
	if addr == "" {
		addr = runtimeCfg.MetricsAddr
	}
	if addr != "" {
		go serveMetrics(ctx, addr)
	}

	interval := pollInterval
	if interval <= 0 {
		interval = runtimeCfg.PollInterval
	}

	tailer := tail.New(logPath, offset, rules.Prefilter, tail.Options{
		PollInterval: interval,
		Watch:        useFsnotify,
	})

	slog.Info("watching query log", "path", logPath, "offset", offset, "store", storePath, "model", artifact.Name)

	err = tailer.Run(ctx, func(c tail.Candidate) error {
		return scoreCandidate(ctx, p, st, logPath, c)
	})
	if ctx.Err() != nil {
		slog.Info("watch stopped", "offset", tailer.Offset())
		return nil
	}
	return err
}

// scoreCandidate runs one pre-filtered name through the pipeline,
// persists it when flagged and checkpoints the tail offset.
func scoreCandidate(ctx context.Context, p *pipeline.Pipeline, st *store.Store, logPath string, c tail.Candidate) error {
	_, err := p.Run(ctx, []input.Record{{QName: c.QName}}, func(row *pipeline.Row) error {
		if row.Verdict.Label != verdict.LabelSuspicious {
			return nil
		}
		slog.Warn("suspicious query",
			"qname", row.QName,
			"confidence", row.Verdict.Confidence,
			"score", row.Score)
		return st.Put(store.Flagged{
			QName:      row.QName,
			Verdict:    row.Verdict.Label.Marker(),
			Confidence: row.Verdict.Confidence,
			Score:      row.Score,
			ObservedAt: c.ObservedAt,
			Source:     logPath,
		})
	})
	if err != nil {
		return err
	}
	return st.SaveOffset(logPath, c.Offset)
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("metrics server failed", "error", err)
	}
}
