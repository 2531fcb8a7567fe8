// Copyright 2025 James Ross
package dashboard

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/flocknet/flocknet/internal/metrics"
)

func TestUpdateAppendsSamplesOnTick(t *testing.T) {
	collector := metrics.New()
	collector.PacketSent()
	collector.PacketReceived(2 * time.Millisecond)
	collector.RecordQueueLength(7)

	m := New("codel", 0, time.Millisecond, collector)
	updated, cmd := m.Update(tickMsg(time.Now()))
	model := updated.(Model)

	if len(model.throughput) != 1 || len(model.latency) != 1 || len(model.queueLen) != 1 {
		t.Fatalf("expected one sample per series, got %+v", model)
	}
	if model.queueLen[0] != 7 {
		t.Fatalf("expected queue length sample 7, got %v", model.queueLen[0])
	}
	if cmd == nil {
		t.Fatal("expected another tick to be scheduled")
	}
}

func TestUpdateQuitsAfterDurationElapses(t *testing.T) {
	collector := metrics.New()
	m := New("pie", 1, time.Millisecond, collector)
	m.start = time.Now().Add(-time.Hour)

	updated, _ := m.Update(tickMsg(time.Now()))
	model := updated.(Model)
	if !model.done {
		t.Fatal("expected model to be marked done once duration elapses")
	}
}

func TestKeyPressQuits(t *testing.T) {
	m := New("blue", 0, time.Second, metrics.New())
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	model := updated.(Model)
	if !model.done {
		t.Fatal("expected ctrl+c to mark the model done")
	}
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
}

func TestAppendBoundedTrimsToSeriesMax(t *testing.T) {
	var series []float64
	for i := 0; i < seriesMax+10; i++ {
		series = appendBounded(series, float64(i))
	}
	if len(series) != seriesMax {
		t.Fatalf("expected series trimmed to %d, got %d", seriesMax, len(series))
	}
	if series[len(series)-1] != float64(seriesMax+9) {
		t.Fatalf("expected last sample to be the most recent, got %v", series[len(series)-1])
	}
}
