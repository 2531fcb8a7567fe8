// Copyright 2025 James Ross
package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flocknet/flocknet/internal/metrics"
)

func sampleSnapshots() []metrics.Snapshot {
	return []metrics.Snapshot{
		{ElapsedSeconds: 1, PacketsSent: 100, PacketsReceived: 98, PacketsDropped: 2, ThroughputBPS: 1_000_000, AvgLatencyMS: 5, QueueLength: 10, LossRate: 0.02},
		{ElapsedSeconds: 2, PacketsSent: 200, PacketsReceived: 190, PacketsDropped: 10, ThroughputBPS: 1_200_000, AvgLatencyMS: 8, QueueLength: 20, LossRate: 0.05},
		{ElapsedSeconds: 3, PacketsSent: 300, PacketsReceived: 280, PacketsDropped: 20, ThroughputBPS: 900_000, AvgLatencyMS: 4, QueueLength: 5, LossRate: 0.066},
	}
}

func TestPersistWritesAllThreeArtifacts(t *testing.T) {
	dir := t.TempDir()
	paths, analysis, err := Persist(dir, "codel", 1700000000, sampleSnapshots())
	require.NoError(t, err)

	for _, p := range []string{paths.CSV, paths.Analysis, paths.Plot} {
		_, err := os.Stat(p)
		assert.NoErrorf(t, err, "expected artifact to exist: %s", p)
	}
	assert.Equal(t, 20, analysis.PeakQueueLength)
	assert.Equal(t, "codel", analysis.Strategy)
}

func TestSummarizeComputesAveragesAndJitter(t *testing.T) {
	a := Summarize("run-1", "pie", 1700000000, sampleSnapshots())
	if a.AvgQueueLength != (10.0+20.0+5.0)/3.0 {
		t.Fatalf("unexpected avg queue length: %v", a.AvgQueueLength)
	}
	if a.JitterMS <= 0 {
		t.Fatalf("expected nonzero jitter for varying latencies, got %v", a.JitterMS)
	}
}

func TestSummarizeHandlesEmptySeries(t *testing.T) {
	a := Summarize("run-2", "blue", 1700000000, nil)
	if a.AvgThroughputMbps != 0 || a.PeakQueueLength != 0 {
		t.Fatalf("expected zero-valued analysis for empty series, got %+v", a)
	}
}

func TestScanAnalysesValidatesAndParses(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := Persist(dir, "red", 1700000001, sampleSnapshots()); err != nil {
		t.Fatalf("persist failed: %v", err)
	}
	if _, _, err := Persist(dir, "blue", 1700000002, sampleSnapshots()); err != nil {
		t.Fatalf("persist failed: %v", err)
	}

	results, errs := ScanAnalyses(dir, "*_analysis.json")
	assert.Empty(t, errs)
	assert.Len(t, results, 2)
}

func TestScanAnalysesRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken_analysis.json")
	if err := os.WriteFile(bad, []byte(`{"strategy": "x"}`), 0o644); err != nil {
		t.Fatalf("setup write failed: %v", err)
	}

	results, errs := ScanAnalyses(dir, "*_analysis.json")
	if len(results) != 0 {
		t.Fatalf("expected no parsed results from malformed file, got %d", len(results))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 validation error, got %d", len(errs))
	}
}

func TestExtractFieldResolvesJSONPath(t *testing.T) {
	a := Summarize("run-3", "fq-codel", 1700000003, sampleSnapshots())
	v, err := ExtractField(a, "$.loss_rate")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.(float64) != a.LossRate {
		t.Fatalf("expected %v, got %v", a.LossRate, v)
	}
}

func TestAverageComputesMeanAcrossRepetitions(t *testing.T) {
	runs := []*Analysis{
		{AvgThroughputMbps: 10, AvgLatencyMS: 5, LossRate: 0.1},
		{AvgThroughputMbps: 20, AvgLatencyMS: 15, LossRate: 0.3},
	}
	row := Average("codel", runs)
	if row.AvgThroughputMbps != 15 || row.AvgLatencyMS != 10 || row.LossRate != 0.2 {
		t.Fatalf("unexpected averaged row: %+v", row)
	}
	if row.Repetitions != 2 {
		t.Fatalf("expected repetitions=2, got %d", row.Repetitions)
	}
}

func TestFormatTableAndLaTeXIncludeEveryStrategy(t *testing.T) {
	rows := []ComparisonRow{
		{Strategy: "pie", AvgThroughputMbps: 90},
		{Strategy: "blue", AvgThroughputMbps: 80},
	}
	table := FormatTable(rows)
	latex := FormatLaTeX(rows)

	for _, name := range []string{"pie", "blue"} {
		if !strings.Contains(table, name) {
			t.Fatalf("expected table to mention %q:\n%s", name, table)
		}
		if !strings.Contains(latex, name) {
			t.Fatalf("expected latex to mention %q:\n%s", name, latex)
		}
	}
}
