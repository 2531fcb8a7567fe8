// Copyright 2025 James Ross
// Package dashboard is the live bubbletea view `run --watch` drives,
// sharing the same metrics.Collector the simulation harness feeds.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	asciigraph "github.com/guptarohit/asciigraph"

	"github.com/flocknet/flocknet/internal/metrics"
)

// seriesMax bounds how many samples each sparkline keeps.
const seriesMax = 120

type tickMsg time.Time

// Model is the bubbletea model for a single simulation's live view.
type Model struct {
	strategy string
	duration time.Duration
	start    time.Time
	interval time.Duration

	collector *metrics.Collector

	throughput []float64
	latency    []float64
	queueLen   []float64

	titleStyle lipgloss.Style
	boxStyle   lipgloss.Style
	pb         progress.Model

	done bool
}

// New builds a dashboard Model bound to collector, for a run expected to
// last duration and sampled every interval.
func New(strategy string, duration, interval time.Duration, collector *metrics.Collector) Model {
	return Model{
		strategy:   strategy,
		duration:   duration,
		interval:   interval,
		collector:  collector,
		titleStyle: lipgloss.NewStyle().Bold(true),
		boxStyle:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		pb:         progress.New(progress.WithDefaultGradient()),
	}
}

// Init starts the sampling ticker.
func (m Model) Init() tea.Cmd {
	return tick(m.interval)
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update samples the collector on every tick and quits once the
// configured duration has elapsed, or on a quit keypress.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.pb.Width = msg.Width - 4
		if m.pb.Width > 60 {
			m.pb.Width = 60
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.done = true
			return m, tea.Quit
		}
	case tickMsg:
		if m.start.IsZero() {
			m.start = time.Time(msg)
		}
		snap := m.collector.Snapshot()
		m.throughput = appendBounded(m.throughput, snap.ThroughputBPS/1_000_000)
		m.latency = appendBounded(m.latency, snap.AvgLatencyMS)
		m.queueLen = appendBounded(m.queueLen, float64(snap.QueueLength))

		var cmd tea.Cmd
		if m.duration > 0 {
			cmd = m.pb.SetPercent(clampFraction(time.Since(m.start).Seconds() / m.duration.Seconds()))
		}

		if m.duration > 0 && time.Since(m.start) >= m.duration {
			m.done = true
			return m, tea.Quit
		}
		return m, tea.Batch(tick(m.interval), cmd)
	default:
		newPb, cmd := m.pb.Update(msg)
		if p, ok := newPb.(progress.Model); ok {
			m.pb = p
		}
		return m, cmd
	}
	return m, nil
}

func clampFraction(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func appendBounded(series []float64, v float64) []float64 {
	series = append(series, v)
	if len(series) > seriesMax {
		series = series[len(series)-seriesMax:]
	}
	return series
}

// View renders three sparklines (throughput, latency, queue length) plus
// a status line.
func (m Model) View() string {
	if m.done {
		return m.titleStyle.Render(fmt.Sprintf("flocknet run (%s) finished\n", m.strategy))
	}

	var b strings.Builder
	b.WriteString(m.titleStyle.Render(fmt.Sprintf("flocknet run / strategy=%s", m.strategy)))
	b.WriteString("\n\n")
	if m.duration > 0 {
		b.WriteString(m.pb.View())
		b.WriteString("\n\n")
	}
	b.WriteString(plot("throughput (mbps)", m.throughput))
	b.WriteString("\n\n")
	b.WriteString(plot("avg latency (ms)", m.latency))
	b.WriteString("\n\n")
	b.WriteString(plot("queue length", m.queueLen))
	b.WriteString("\n\n(press q to quit)\n")
	return b.String()
}

func plot(title string, data []float64) string {
	if len(data) == 0 {
		return fmt.Sprintf("%s\n(no data yet)", title)
	}
	return asciigraph.Plot(data, asciigraph.Height(8), asciigraph.Width(60), asciigraph.Caption(title))
}

// Run drives the dashboard program to completion, blocking until the
// user quits or the configured duration elapses.
func Run(strategy string, duration, interval time.Duration, collector *metrics.Collector) error {
	p := tea.NewProgram(New(strategy, duration, interval, collector))
	_, err := p.Run()
	return err
}
