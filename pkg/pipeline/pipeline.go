// Package pipeline orchestrates the batch path: feature extraction, the
// external scorer, and the decision engine over a collection of query
// records, producing one labeled row per usable record.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dnsguard/dnsguard/pkg/feature"
	"github.com/dnsguard/dnsguard/pkg/input"
	"github.com/dnsguard/dnsguard/pkg/score"
	"github.com/dnsguard/dnsguard/pkg/verdict"
)

// Row is the labeled output for one query record: a named value type with
// fixed fields rather than an ad-hoc record.
type Row struct {
	QName   string          `json:"qname"`
	Verdict verdict.Verdict `json:"verdict"`
	Score   float64         `json:"score"`
	Vector  feature.Vector  `json:"features"`
	Record  input.Record    `json:"record"`
}

// Stats summarizes one batch run.
type Stats struct {
	RunID      string        `json:"run_id"`
	Model      string        `json:"model"`
	Total      int           `json:"total"`
	Dropped    int           `json:"dropped"`
	Safe       int           `json:"safe"`
	Suspicious int           `json:"suspicious"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Config contains pipeline tuning knobs.
type Config struct {
	// Workers bounds the feature-extraction fan-out. 0 or negative means
	// auto: max(4, 4*GOMAXPROCS).
	Workers int

	// RateLimit caps rows fed per second. 0 or negative means no limit.
	RateLimit int

	Quiet bool
}

// Pipeline wires the builder, scorer artifact and decision engine
// together. Rows are independent; processing order never affects per-row
// results, so extraction runs on a worker pool purely for throughput.
type Pipeline struct {
	builder  feature.Builder
	artifact *score.Artifact
	engine   *verdict.Engine
	cfg      Config
	limiter  *rate.Limiter
}

// New creates a pipeline. The artifact must carry a non-nil scorer.
func New(builder feature.Builder, artifact *score.Artifact, engine *verdict.Engine, cfg Config) (*Pipeline, error) {
	if artifact == nil || artifact.Scorer == nil {
		return nil, fmt.Errorf("pipeline requires a loaded scorer artifact")
	}

	if cfg.Workers <= 0 {
		cpus := runtime.GOMAXPROCS(0)
		cfg.Workers = max(4, cpus*4)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	} else {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}

	return &Pipeline{
		builder:  builder,
		artifact: artifact,
		engine:   engine,
		cfg:      cfg,
		limiter:  limiter,
	}, nil
}

// Run processes records end to end and calls handler once per row, in
// input order. Records with an unusable qname are dropped and counted.
// A scorer failure or an out-of-range score aborts the batch: scores are
// validated, never guessed.
func (p *Pipeline) Run(ctx context.Context, records []input.Record, handler func(*Row) error) (Stats, error) {
	start := time.Now()
	stats := Stats{RunID: uuid.NewString(), Model: p.artifact.Name}

	// Drop unusable rows up front so vector index == score index.
	usable := make([]input.Record, 0, len(records))
	for _, rec := range records {
		if rec.QName == "" {
			stats.Dropped++
			continue
		}
		usable = append(usable, rec)
	}
	stats.Total = len(usable)

	if len(usable) == 0 {
		stats.Elapsed = time.Since(start)
		return stats, ctx.Err()
	}

	vectors, err := p.extract(ctx, usable)
	if err != nil {
		return stats, err
	}

	scores, err := p.artifact.Scorer.Score(ctx, vectors)
	if err != nil {
		return stats, fmt.Errorf("scorer %s failed: %w", p.artifact.Name, err)
	}
	if len(scores) != len(vectors) {
		return stats, fmt.Errorf("scorer %s returned %d scores for %d rows", p.artifact.Name, len(scores), len(vectors))
	}
	if err := score.ValidateScores(scores); err != nil {
		return stats, fmt.Errorf("scorer %s: %w", p.artifact.Name, err)
	}

	for i, rec := range usable {
		v, err := p.engine.Decide(rec.QName, vectors[i], scores[i])
		if err != nil {
			return stats, err
		}

		switch v.Label {
		case verdict.LabelSuspicious:
			stats.Suspicious++
		default:
			stats.Safe++
		}

		row := &Row{
			QName:   rec.QName,
			Verdict: v,
			Score:   scores[i],
			Vector:  vectors[i],
			Record:  rec,
		}
		if !p.cfg.Quiet {
			p.logRow(row)
		}
		if err := handler(row); err != nil {
			return stats, fmt.Errorf("row handler failed: %w", err)
		}
	}

	stats.Elapsed = time.Since(start)
	if stats.Dropped > 0 {
		slog.Warn("dropped rows without a usable qname", "dropped", stats.Dropped)
	}
	return stats, ctx.Err()
}

// extract builds feature vectors on a bounded worker pool. Workers write
// to disjoint indices, so no locking is needed and output order matches
// input order.
func (p *Pipeline) extract(ctx context.Context, records []input.Record) ([]feature.Vector, error) {
	vectors := make([]feature.Vector, len(records))
	jobs := make(chan int, p.cfg.Workers)

	var wg sync.WaitGroup
	for range p.cfg.Workers {
		wg.Go(func() {
			for i := range jobs {
				vectors[i] = p.builder.Build(records[i].QName)
			}
		})
	}

	var feedErr error
	for i := range records {
		if err := p.limiter.Wait(ctx); err != nil {
			feedErr = err
			break
		}
		select {
		case <-ctx.Done():
			feedErr = ctx.Err()
		case jobs <- i:
			continue
		}
		break
	}
	close(jobs)
	wg.Wait()

	if feedErr != nil {
		return nil, feedErr
	}
	return vectors, nil
}

func (p *Pipeline) logRow(row *Row) {
	if row.Verdict.Label != verdict.LabelSuspicious {
		slog.Debug("query scored",
			slog.String("qname", row.QName),
			slog.Float64("confidence", row.Verdict.Confidence),
		)
		return
	}
	slog.Info("suspicious query",
		slog.String("qname", row.QName),
		slog.Float64("confidence", row.Verdict.Confidence),
		slog.Group("signals",
			slog.Bool("encoded_label", row.Vector.Base64LabelPresent != 0),
			slog.Bool("tunneling_keyword", row.Vector.TunnelingKeywordPresent != 0),
			slog.Bool("uncommon_tld", row.Vector.TLDUncommon != 0),
			slog.Float64("entropy", row.Vector.EntropyFull),
		),
	)
}
