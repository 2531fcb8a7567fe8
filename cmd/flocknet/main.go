// Copyright 2025 James Ross
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/flocknet/flocknet/internal/config"
	"github.com/flocknet/flocknet/internal/dashboard"
	"github.com/flocknet/flocknet/internal/metrics"
	"github.com/flocknet/flocknet/internal/obs"
	"github.com/flocknet/flocknet/internal/report"
	"github.com/flocknet/flocknet/internal/sim"
	"github.com/flocknet/flocknet/internal/strategy"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(os.Args[2:])
	case "compare":
		err = compareCmd(os.Args[2:])
	case "export":
		err = exportCmd(os.Args[2:])
	case "analyze":
		err = analyzeCmd(os.Args[2:])
	case "list":
		err = listCmd(os.Args[2:])
	case "-version", "--version", "version":
		fmt.Println(version)
		return
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "flocknet: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `flocknet - AQM benchmarking harness

Usage:
  flocknet run --strategy <name> --agents N --servers M --duration S --traffic {constant|bursty|poisson|peak|sine} [options]
  flocknet compare --strategies <csv> --agents --servers --duration --repetitions R [--latex] [--webhook url]
  flocknet export <input> --output <path> --format {table|detailed|figure|all}
  flocknet analyze <path>
  flocknet list`)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, and forces
// exit on a second signal.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		select {
		case <-sigCh:
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()
	return ctx, cancel
}

// runCmd executes a single simulation.
func runCmd(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (optional; flags below override it)")
	strategyName := fs.String("strategy", "drop-tail", "AQM strategy name")
	agents := fs.Int("agents", 10, "Number of traffic-generating agents")
	servers := fs.Int("servers", 1, "Number of server queue engines")
	duration := fs.Int("duration", 30, "Run duration in seconds")
	trafficName := fs.String("traffic", "constant", "Traffic pattern: constant|bursty|poisson|peak|sine")
	rate := fs.Float64("rate", 100, "Constant/Bursty/Poisson/Sine rate in packets/sec")
	burstSize := fs.Int("burst-size", 20, "Bursty pattern burst size")
	baseRate := fs.Float64("base-rate", 50, "PeakTraffic base rate in packets/sec")
	peakRate := fs.Float64("peak-rate", 500, "PeakTraffic peak rate in packets/sec")
	peakDuration := fs.Float64("peak-duration", 10, "PeakTraffic peak window in seconds")
	transportKind := fs.String("transport", "local", "Delivery transport: local|tcp")
	watch := fs.Bool("watch", false, "Drive a live bubbletea dashboard alongside the progress log lines")
	resultsDir := fs.String("results-dir", "./results", "Directory results are persisted under")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Strategy = *strategyName
	cfg.Simulation.NumAgents = *agents
	cfg.Simulation.NumServers = *servers
	cfg.Simulation.DurationSec = *duration
	cfg.Transport.Kind = *transportKind
	cfg.ResultsDir = *resultsDir
	if err := applyTraffic(&cfg.Traffic, *trafficName, *rate, *burstSize, *baseRate, *peakRate, *peakDuration); err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := strategy.Create(cfg.Strategy, cfg.Network.BufferSize); err != nil {
		return err
	}

	log, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	s, err := sim.New(cfg, log)
	if err != nil {
		return fmt.Errorf("build simulation: %w", err)
	}

	httpSrv := obs.StartHTTPServer(cfg, s.Readiness)
	defer httpSrv.Shutdown(context.Background())

	ctx, cancel := signalContext()
	defer cancel()

	var snapshots []metrics.Snapshot
	if *watch {
		snapshots, err = runWatched(ctx, cfg, s, log)
	} else {
		var result *sim.Result
		result, err = s.Run(ctx)
		if result != nil {
			snapshots = result.Snapshots
		}
	}
	if err != nil {
		return fmt.Errorf("run simulation: %w", err)
	}

	return persistAndPrint(cfg, snapshots)
}

// simOutcome carries a background Run call's result back to the
// foreground goroutine driving the dashboard.
type simOutcome struct {
	result *sim.Result
	err    error
}

// runWatched drives the live dashboard alongside the simulation in a
// background goroutine, both fed by the same metrics.Collector
// (`run --watch`). The dashboard exits on its own when
// the configured duration elapses or the user presses q; either way this
// function then waits for the simulation goroutine to finish and return
// its snapshot series.
func runWatched(ctx context.Context, cfg *config.Config, s *sim.Simulation, log *zap.Logger) ([]metrics.Snapshot, error) {
	outcomeCh := make(chan simOutcome, 1)
	go func() {
		result, err := s.Run(ctx)
		outcomeCh <- simOutcome{result: result, err: err}
	}()

	duration := time.Duration(cfg.Simulation.DurationSec) * time.Second
	interval := time.Duration(cfg.Simulation.SnapshotInterval * float64(time.Second))
	if interval <= 0 {
		interval = time.Second
	}
	if err := dashboard.Run(cfg.Strategy, duration, interval, s.Metrics()); err != nil {
		log.Warn("dashboard exited with error", obs.Err(err))
	}

	outcome := <-outcomeCh
	if outcome.err != nil {
		return nil, outcome.err
	}
	return outcome.result.Snapshots, nil
}

// persistAndPrint writes the per-run result artifacts and prints a
// one-line summary to stdout.
func persistAndPrint(cfg *config.Config, snapshots []metrics.Snapshot) error {
	ts := report.Timestamp(time.Now())
	paths, analysis, err := report.Persist(cfg.ResultsDir, cfg.Strategy, ts, snapshots)
	if err != nil {
		return fmt.Errorf("persist results: %w", err)
	}
	fmt.Printf("wrote %s\nwrote %s\nwrote %s\n", paths.CSV, paths.Analysis, paths.Plot)
	fmt.Printf("strategy=%s avg_throughput_mbps=%.2f avg_latency_ms=%.2f loss_rate=%.4f peak_queue=%d avg_queue=%.2f jitter_ms=%.2f\n",
		analysis.Strategy, analysis.AvgThroughputMbps, analysis.AvgLatencyMS, analysis.LossRate,
		analysis.PeakQueueLength, analysis.AvgQueueLength, analysis.JitterMS)
	return nil
}

// applyTraffic maps the `run`/`compare` CLI's flat flag set onto a
// config.Traffic tagged variant.
func applyTraffic(t *config.Traffic, pattern string, rate float64, burstSize int, baseRate, peakRate, peakDuration float64) error {
	switch strings.ToLower(pattern) {
	case "constant":
		t.Pattern = config.Constant
		t.RateLps = rate
	case "bursty":
		t.Pattern = config.Bursty
		t.RateLps = rate
		t.BurstSize = burstSize
	case "poisson":
		t.Pattern = config.Poisson
		t.RateLps = rate
	case "peak":
		t.Pattern = config.PeakTraffic
		t.PeakBaseLps = baseRate
		t.PeakRateLps = peakRate
		t.PeakDurationS = peakDuration
	case "sine":
		t.Pattern = config.Sine
		t.RateLps = rate
	default:
		return fmt.Errorf("unknown traffic pattern %q", pattern)
	}
	return nil
}

// listCmd enumerates every registered strategy name.
func listCmd(args []string) error {
	for _, name := range strategy.List() {
		fmt.Println(name)
	}
	return nil
}

// compareCmd runs each named strategy --repetitions times under
// PeakTraffic(50, 500, 10) and averages the results.
func compareCmd(args []string) error {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (optional; flags below override it)")
	strategiesCSV := fs.String("strategies", "", "Comma-separated strategy names")
	agents := fs.Int("agents", 10, "Number of traffic-generating agents")
	servers := fs.Int("servers", 1, "Number of server queue engines")
	duration := fs.Int("duration", 30, "Run duration in seconds, per repetition")
	repetitions := fs.Int("repetitions", 3, "Repetitions per strategy")
	latex := fs.Bool("latex", false, "Also render a LaTeX comparison table")
	webhook := fs.String("webhook", "", "POST the averaged report to this URL on completion")
	resultsDir := fs.String("results-dir", "./results", "Directory results are persisted under")
	_ = fs.Parse(args)

	if strings.TrimSpace(*strategiesCSV) == "" {
		return fmt.Errorf("compare requires --strategies")
	}
	if *repetitions < 1 {
		return fmt.Errorf("compare requires --repetitions >= 1")
	}

	baseCfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	baseCfg.Simulation.NumAgents = *agents
	baseCfg.Simulation.NumServers = *servers
	baseCfg.Simulation.DurationSec = *duration
	baseCfg.ResultsDir = *resultsDir
	baseCfg.Traffic.Pattern = config.PeakTraffic
	baseCfg.Traffic.PeakBaseLps = 50
	baseCfg.Traffic.PeakRateLps = 500
	baseCfg.Traffic.PeakDurationS = 10
	if err := config.Validate(baseCfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := obs.NewLogger(baseCfg.Observability.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	names := strings.Split(*strategiesCSV, ",")
	var rows []report.ComparisonRow
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, err := strategy.Create(name, baseCfg.Network.BufferSize); err != nil {
			return err
		}

		runCfg := *baseCfg
		runCfg.Strategy = name

		var analyses []*report.Analysis
		for rep := 0; rep < *repetitions; rep++ {
			s, err := sim.New(&runCfg, log)
			if err != nil {
				return fmt.Errorf("build simulation for %s rep %d: %w", name, rep, err)
			}
			result, err := s.Run(ctx)
			if err != nil {
				return fmt.Errorf("run %s rep %d: %w", name, rep, err)
			}
			ts := report.Timestamp(time.Now())
			_, analysis, err := report.Persist(runCfg.ResultsDir, name, ts, result.Snapshots)
			if err != nil {
				return fmt.Errorf("persist %s rep %d: %w", name, rep, err)
			}
			analyses = append(analyses, analysis)
		}
		rows = append(rows, report.Average(name, analyses))
	}

	fmt.Println(report.FormatTable(rows))

	if *latex {
		rendered := report.FormatLaTeX(rows)
		texPath := filepath.Join(baseCfg.ResultsDir, fmt.Sprintf("compare_%d.tex", time.Now().Unix()))
		if err := os.WriteFile(texPath, []byte(rendered), 0o644); err != nil {
			return fmt.Errorf("write latex table: %w", err)
		}
		fmt.Printf("wrote %s\n", texPath)
	}

	if *webhook != "" {
		if err := report.PostWebhook(*webhook, rows); err != nil {
			log.Warn("webhook delivery failed", obs.Err(err))
		}
	}
	return nil
}

// analyzeCmd prints a comparison table over a directory of analysis JSON
// files.
func analyzeCmd(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	pattern := fs.String("pattern", "", "doublestar glob pattern (default *_analysis.json)")
	_ = fs.Parse(args)

	rest := fs.Args()
	if len(rest) < 1 {
		return fmt.Errorf("analyze requires a directory path")
	}
	dir := rest[0]

	analyses, errs := report.ScanAnalyses(dir, *pattern)
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "flocknet: %v\n", e)
	}
	if len(analyses) == 0 {
		return fmt.Errorf("no analysis files found under %s", dir)
	}

	fmt.Println(report.FormatTable(averagedByStrategy(analyses)))
	return nil
}

// exportCmd re-renders saved analyses as a table, a detailed JSON dump, or
// plot-data figure.
func exportCmd(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	output := fs.String("output", "", "Output file path")
	format := fs.String("format", "table", "table|detailed|figure|all")
	pattern := fs.String("pattern", "", "doublestar glob pattern over a directory input")
	field := fs.String("field", "", "JSONPath expression to extract and print from each analysis record")
	_ = fs.Parse(args)

	rest := fs.Args()
	if len(rest) < 1 {
		return fmt.Errorf("export requires an input path")
	}
	if strings.TrimSpace(*output) == "" {
		return fmt.Errorf("export requires --output")
	}
	input := rest[0]

	analyses, err := loadAnalyses(input, *pattern)
	if err != nil {
		return err
	}

	if *field != "" {
		for _, a := range analyses {
			v, err := report.ExtractField(a, *field)
			if err != nil {
				fmt.Fprintf(os.Stderr, "flocknet: field extraction failed for run %s: %v\n", a.RunID, err)
				continue
			}
			fmt.Printf("%s: %v\n", a.RunID, v)
		}
	}

	switch strings.ToLower(*format) {
	case "table":
		return writeTable(*output, analyses)
	case "detailed":
		return writeDetailed(*output, analyses)
	case "figure":
		return writeFigure(*output, analyses)
	case "all":
		ext := filepath.Ext(*output)
		base := strings.TrimSuffix(*output, ext)
		if err := writeTable(base+"_table.txt", analyses); err != nil {
			return err
		}
		if err := writeDetailed(base+"_detailed.json", analyses); err != nil {
			return err
		}
		return writeFigure(base+"_figure.dat", analyses)
	default:
		return fmt.Errorf("unknown export format %q", *format)
	}
}

// loadAnalyses resolves input as either a single analysis JSON file or a
// directory scanned with report.ScanAnalyses.
func loadAnalyses(input, pattern string) ([]*report.Analysis, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", input, err)
	}
	if info.IsDir() {
		analyses, errs := report.ScanAnalyses(input, pattern)
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "flocknet: %v\n", e)
		}
		if len(analyses) == 0 {
			return nil, fmt.Errorf("no analysis files found under %s", input)
		}
		return analyses, nil
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", input, err)
	}
	var a report.Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", input, err)
	}
	return []*report.Analysis{&a}, nil
}

// averagedByStrategy groups analyses by strategy name and averages each
// group into a ComparisonRow, in stable strategy-name order.
func averagedByStrategy(analyses []*report.Analysis) []report.ComparisonRow {
	grouped := make(map[string][]*report.Analysis)
	for _, a := range analyses {
		grouped[a.Strategy] = append(grouped[a.Strategy], a)
	}
	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]report.ComparisonRow, 0, len(names))
	for _, name := range names {
		rows = append(rows, report.Average(name, grouped[name]))
	}
	return rows
}

func writeTable(path string, analyses []*report.Analysis) error {
	return os.WriteFile(path, []byte(report.FormatTable(averagedByStrategy(analyses))), 0o644)
}

func writeDetailed(path string, analyses []*report.Analysis) error {
	data, err := json.MarshalIndent(analyses, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal detailed export: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// writeFigure emits a two-column (run index, average queue length) plot
// data file across the loaded analyses, in the same gnuplot-friendly
// shape as report.Persist's per-run plot.dat.
func writeFigure(path string, analyses []*report.Analysis) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	for i, a := range analyses {
		if _, err := fmt.Fprintf(f, "%d %.3f\n", i, a.AvgQueueLength); err != nil {
			return fmt.Errorf("write figure data: %w", err)
		}
	}
	return nil
}
