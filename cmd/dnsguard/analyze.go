package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dnsguard/dnsguard/pkg/config"
	"github.com/dnsguard/dnsguard/pkg/feature"
	"github.com/dnsguard/dnsguard/pkg/input"
	"github.com/dnsguard/dnsguard/pkg/output"
	"github.com/dnsguard/dnsguard/pkg/pipeline"
	"github.com/dnsguard/dnsguard/pkg/score"
)

// analyze flags
var (
	modelPath    string
	outputFile   string
	outputFormat string
	workers      int
	rateLimit    int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [flags] <log.csv>",
	Short: "Batch-analyze a captured query log",
	Long: `Reads a CSV query log, extracts lexical features from every query
name, scores them with the model and prints one verdict per row.
Rows without a usable qname are dropped and counted, never guessed.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()

	f.StringVarP(&modelPath, "model", "m", "model.json", "Scoring model artifact (JSON)")
	f.StringVarP(&outputFile, "output", "o", "-", "Output file (- for stdout)")
	f.StringVar(&outputFormat, "format", "jsonl", "Output format: jsonl, csv, parquet")
	f.IntVarP(&workers, "workers", "w", 0, "Feature extraction workers (0 = auto)")
	f.IntVarP(&rateLimit, "rate", "r", 0, "Max rows/second (0 = unlimited)")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	initLogger()

	ctx, cancel := signalContext()
	defer cancel()

	rules, err := config.LoadRules(rulesFile)
	if err != nil {
		return err
	}

	artifact, err := score.LoadArtifact(modelPath)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}

	engine, err := rules.Engine()
	if err != nil {
		return err
	}

	batch, err := input.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading query log: %w", err)
	}
	slog.Info("query log loaded", "file", args[0], "records", len(batch.Records), "dropped", batch.Dropped, "skipped", batch.Skipped)

	p, err := pipeline.New(feature.NewBuilder(rules.ReferenceSets()), artifact, engine, pipeline.Config{
		Workers:   workers,
		RateLimit: rateLimit,
		Quiet:     quiet,
	})
	if err != nil {
		return err
	}

	writeRow, closeWriter, err := createReportWriter()
	if err != nil {
		return err
	}

	startTime := time.Now()

	stats, runErr := p.Run(ctx, batch.Records, writeRow)

	if closeErr := closeWriter(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	if runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("analysis failed: %w", runErr)
	}

	slog.Info("analysis completed",
		"run_id", stats.RunID,
		"model", stats.Model,
		"total", stats.Total,
		"safe", stats.Safe,
		"suspicious", stats.Suspicious,
		"dropped", stats.Dropped+batch.Dropped,
		"duration", time.Since(startTime).Round(time.Millisecond))

	return nil
}

func createReportWriter() (func(*pipeline.Row) error, func() error, error) {
	switch strings.ToLower(outputFormat) {
	case "parquet":
		if outputFile == "-" {
			return nil, nil, fmt.Errorf("parquet cannot write to stdout, use -o report.parquet")
		}
		pw, err := output.NewParquetWriter(outputFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create parquet writer: %w", err)
		}
		return pw.Write, pw.Close, nil

	case "csv":
		cw, err := output.NewCSVWriter(outputFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create csv writer: %w", err)
		}
		return cw.Write, cw.Close, nil

	default: // jsonl
		jw, err := output.NewJSONLWriter(outputFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create writer: %w", err)
		}
		return jw.Write, jw.Close, nil
	}
}
