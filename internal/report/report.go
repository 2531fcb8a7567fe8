// Copyright 2025 James Ross
// Package report persists and re-renders simulation results: the
// per-second snapshot CSV, the summary analysis JSON, plot data, and the
// optional LaTeX/detailed/figure renderings of saved analyses.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/flocknet/flocknet/internal/metrics"
)

// Analysis is the summary report persisted as `{name}_{ts}_analysis.json`.
type Analysis struct {
	RunID             string  `json:"run_id"`
	Strategy          string  `json:"strategy"`
	Timestamp         int64   `json:"timestamp"`
	AvgThroughputMbps float64 `json:"avg_throughput_mbps"`
	AvgLatencyMS      float64 `json:"avg_latency_ms"`
	LossRate          float64 `json:"loss_rate"`
	PeakQueueLength   int     `json:"peak_queue_length"`
	AvgQueueLength    float64 `json:"avg_queue_length"`
	JitterMS          float64 `json:"jitter_ms"`
}

// Paths is the set of artifact paths a single Persist call writes.
type Paths struct {
	CSV      string
	Analysis string
	Plot     string
}

// artifactBase returns the "{dir}/{strategy}_{ts}" stem every artifact for
// one run shares, and the run's generated identifier.
func artifactBase(dir, strategy string, ts int64) (string, string) {
	runID := uuid.NewString()
	stem := fmt.Sprintf("%s_%d", strategy, ts)
	return filepath.Join(dir, stem), runID
}

// Persist writes the CSV snapshot series, the JSON analysis summary, and
// the plot data file for one simulation run, returning their paths.
func Persist(dir, strategy string, ts int64, snapshots []metrics.Snapshot) (*Paths, *Analysis, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("report: create results dir: %w", err)
	}

	base, runID := artifactBase(dir, strategy, ts)
	paths := &Paths{
		CSV:      base + ".csv",
		Analysis: base + "_analysis.json",
		Plot:     base + "_plot.dat",
	}

	if err := writeCSV(paths.CSV, snapshots); err != nil {
		return nil, nil, err
	}

	analysis := Summarize(runID, strategy, ts, snapshots)
	if err := writeJSON(paths.Analysis, analysis); err != nil {
		return nil, nil, err
	}

	if err := writePlotData(paths.Plot, snapshots); err != nil {
		return nil, nil, err
	}

	return paths, analysis, nil
}

// writeCSV emits one row per snapshot, in the order they were recorded.
func writeCSV(path string, snapshots []metrics.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"elapsed_seconds", "packets_sent", "packets_received", "packets_dropped",
		"throughput_bps", "avg_latency_ms", "queue_length", "loss_rate",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("report: write csv header: %w", err)
	}

	for _, s := range snapshots {
		row := []string{
			strconv.FormatFloat(s.ElapsedSeconds, 'f', 3, 64),
			strconv.FormatUint(s.PacketsSent, 10),
			strconv.FormatUint(s.PacketsReceived, 10),
			strconv.FormatUint(s.PacketsDropped, 10),
			strconv.FormatFloat(s.ThroughputBPS, 'f', 2, 64),
			strconv.FormatFloat(s.AvgLatencyMS, 'f', 3, 64),
			strconv.Itoa(s.QueueLength),
			strconv.FormatFloat(s.LossRate, 'f', 4, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("report: write csv row: %w", err)
		}
	}
	return w.Error()
}

// writePlotData emits a two-column (elapsed_seconds, queue_length) file
// suitable for gnuplot-style plotting.
func writePlotData(path string, snapshots []metrics.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer f.Close()

	for _, s := range snapshots {
		if _, err := fmt.Fprintf(f, "%.3f %d\n", s.ElapsedSeconds, s.QueueLength); err != nil {
			return fmt.Errorf("report: write plot data: %w", err)
		}
	}
	return nil
}

// writeJSON marshals v as indented JSON to path.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal analysis: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}

// Summarize reduces a snapshot series to the analysis JSON's summary
// fields: average throughput/latency, loss rate, peak and
// average queue length, and jitter (the standard deviation of per-second
// latency deltas).
func Summarize(runID, strategy string, ts int64, snapshots []metrics.Snapshot) *Analysis {
	a := &Analysis{RunID: runID, Strategy: strategy, Timestamp: ts}
	if len(snapshots) == 0 {
		return a
	}

	var throughputSum, latencySum, lossSum, queueSum float64
	peakQueue := 0
	for _, s := range snapshots {
		throughputSum += s.ThroughputBPS
		latencySum += s.AvgLatencyMS
		lossSum += s.LossRate
		queueSum += float64(s.QueueLength)
		if s.QueueLength > peakQueue {
			peakQueue = s.QueueLength
		}
	}
	n := float64(len(snapshots))

	a.AvgThroughputMbps = throughputSum / n / 1_000_000
	a.AvgLatencyMS = latencySum / n
	a.LossRate = lossSum / n
	a.PeakQueueLength = peakQueue
	a.AvgQueueLength = queueSum / n
	a.JitterMS = jitter(snapshots)
	return a
}

// jitter is the population standard deviation of consecutive avg-latency
// deltas, a standard RFC 3550-style jitter estimator.
func jitter(snapshots []metrics.Snapshot) float64 {
	if len(snapshots) < 2 {
		return 0
	}
	deltas := make([]float64, 0, len(snapshots)-1)
	for i := 1; i < len(snapshots); i++ {
		deltas = append(deltas, snapshots[i].AvgLatencyMS-snapshots[i-1].AvgLatencyMS)
	}
	var mean float64
	for _, d := range deltas {
		mean += d
	}
	mean /= float64(len(deltas))

	var variance float64
	for _, d := range deltas {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(len(deltas))
	return math.Sqrt(variance)
}

// Timestamp returns the integer Unix-second stamp artifact filenames are
// tagged with. Callers pass this into Persist/artifactBase so the same
// value names the CSV, analysis, and plot files for one run.
func Timestamp(t time.Time) int64 {
	return t.Unix()
}
