package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnsguard/dnsguard/pkg/config"
	"github.com/dnsguard/dnsguard/pkg/feature"
	"github.com/dnsguard/dnsguard/pkg/input"
	"github.com/dnsguard/dnsguard/pkg/pipeline"
	"github.com/dnsguard/dnsguard/pkg/score"
	"github.com/dnsguard/dnsguard/pkg/store"
	"github.com/dnsguard/dnsguard/pkg/tail"
	"github.com/dnsguard/dnsguard/pkg/verdict"
)

// writeModel writes a flat logistic artifact whose score is driven
// entirely by the intercept, so heuristic rules decide the verdicts.
func writeModel(t *testing.T, dir string, intercept float64) string {
	t.Helper()

	weights := make(map[string]float64, feature.NumColumns)
	for _, col := range feature.Columns() {
		weights[col] = 0
	}
	buf, err := json.Marshal(map[string]any{
		"name":      "logistic-test",
		"intercept": intercept,
		"weights":   weights,
	})
	require.NoError(t, err)

	path := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func logLine(qname string) string {
	return "2025-01-02 10:00:00,0,192.168.1.5,8.8.8.8," + qname + ",1,0,\n"
}

func TestBatchDetection(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dir := t.TempDir()

	// sigmoid(2) ~ 0.88: above the suspicious threshold, below the
	// whitelist override.
	modelPath := writeModel(t, dir, 2)

	logPath := filepath.Join(dir, "dns_log.csv")
	encoded := strings.Repeat("aB3dEfgH", 8) + ".evil.xyz"
	logContent := "timestamp,is_response,src_ip,dst_ip,qname,qtype,ans_count,response_ips\n" +
		logLine("www.google.com") +
		logLine(encoded) +
		logLine("") +
		logLine("dnscat.tunnel.example.net")
	require.NoError(t, os.WriteFile(logPath, []byte(logContent), 0o644))

	rules, err := config.LoadRules("")
	require.NoError(t, err)
	rules.Whitelist = []string{"google.com"}

	artifact, err := score.LoadArtifact(modelPath)
	require.NoError(t, err)

	engine, err := rules.Engine()
	require.NoError(t, err)

	batch, err := input.ReadFile(logPath)
	require.NoError(t, err)
	require.Len(t, batch.Records, 3)
	assert.Equal(t, 1, batch.Dropped, "empty qname rows are dropped, not guessed")

	p, err := pipeline.New(feature.NewBuilder(rules.ReferenceSets()), artifact, engine, pipeline.Config{Quiet: true})
	require.NoError(t, err)

	byName := map[string]*pipeline.Row{}
	stats, err := p.Run(context.Background(), batch.Records, func(row *pipeline.Row) error {
		byName[row.QName] = row
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, "logistic-test", stats.Model)

	require.Contains(t, byName, "www.google.com")
	assert.Equal(t, verdict.LabelSafe, byName["www.google.com"].Verdict.Label,
		"whitelisted name below the override threshold stays safe")

	require.Contains(t, byName, encoded)
	assert.Equal(t, verdict.LabelSuspicious, byName[encoded].Verdict.Label)

	require.Contains(t, byName, "dnscat.tunnel.example.net")
	assert.Equal(t, verdict.LabelSuspicious, byName["dnscat.tunnel.example.net"].Verdict.Label,
		"tunneling keyword plus high score flags the name")

	for _, row := range byName {
		assert.InDelta(t, row.Score*100, row.Verdict.Confidence, 0.005,
			"confidence always tracks the model score")
	}
}

func TestLiveDetection(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dir := t.TempDir()
	modelPath := writeModel(t, dir, 2)
	logPath := filepath.Join(dir, "dns_log.csv")

	rules, err := config.LoadRules("")
	require.NoError(t, err)

	artifact, err := score.LoadArtifact(modelPath)
	require.NoError(t, err)

	engine, err := rules.Engine()
	require.NoError(t, err)

	p, err := pipeline.New(feature.NewBuilder(rules.ReferenceSets()), artifact, engine, pipeline.Config{Quiet: true})
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(dir, "flags.db"))
	require.NoError(t, err)
	defer st.Close()

	// Short names never reach the scorer; the long encoded one does.
	encoded := strings.Repeat("x9", 30) + ".evil.xyz"
	logContent := "timestamp,is_response,src_ip,dst_ip,qname,qtype,ans_count,response_ips\n" +
		logLine("www.google.com") +
		logLine(encoded)
	require.NoError(t, os.WriteFile(logPath, []byte(logContent), 0o644))

	tailer := tail.New(logPath, 0, rules.Prefilter, tail.Options{PollInterval: 10 * time.Millisecond})

	candidates, err := tailer.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1, "pre-filter admits only the long name")

	for _, c := range candidates {
		_, err := p.Run(context.Background(), []input.Record{{QName: c.QName}}, func(row *pipeline.Row) error {
			if row.Verdict.Label != verdict.LabelSuspicious {
				return nil
			}
			return st.Put(store.Flagged{
				QName:      row.QName,
				Verdict:    row.Verdict.Label.Marker(),
				Confidence: row.Verdict.Confidence,
				Score:      row.Score,
				Source:     logPath,
			})
		})
		require.NoError(t, err)
		require.NoError(t, st.SaveOffset(logPath, c.Offset))
	}

	flagged, err := st.Recent(10)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, encoded, flagged[0].QName)

	// A new tailer resumes from the checkpoint and sees nothing new.
	off, err := st.Offset(logPath)
	require.NoError(t, err)
	require.Positive(t, off)

	resumed := tail.New(logPath, off, rules.Prefilter, tail.Options{})
	again, err := resumed.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again)
}
