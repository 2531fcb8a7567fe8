// Copyright 2025 James Ross
// Package metrics is FlockNet's own simulation telemetry: packet counters,
// latency aggregates, and the per-second snapshot series consumed by the
// report and dashboard packages. It is distinct from internal/obs, which
// exposes process-level Prometheus metrics for operators.
package metrics

import (
	"sync"
	"time"
)

// Snapshot is an immutable point-in-time view of the collector's state.
type Snapshot struct {
	ElapsedSeconds  float64
	PacketsSent     uint64
	PacketsReceived uint64
	PacketsDropped  uint64
	ThroughputBPS   float64
	AvgLatencyMS    float64
	QueueLength     int
	LossRate        float64
}

const (
	// bytesPerPacket is the nominal packet size (1500 bytes) used to turn
	// a received-packet count into a bits-per-second throughput figure.
	bytesPerPacket = 1500

	// maxValidLatencyMS discards individual samples above this as
	// measurement anomalies; they never reach the running sum.
	maxValidLatencyMS = 30_000.0

	// maxValidAvgLatencyMS is a second, coarser safeguard applied to the
	// computed mean itself: even if every sample was individually valid,
	// a mean above this is treated as corrupted data and reported as zero.
	maxValidAvgLatencyMS = 10_000.0

	// maxQueueLengthSamples bounds the sliding window of recorded queue
	// lengths retained in memory; only the most recent value is surfaced
	// by Snapshot, but the window exists for future jitter/variance work.
	maxQueueLengthSamples = 1000
)

// Collector is shared by every agent and server in a simulation. It is
// protected by a single read-write lock: mutations take the write lock,
// Snapshot takes the read lock.
type Collector struct {
	mu sync.RWMutex

	packetsSent     uint64
	packetsReceived uint64
	packetsDropped  uint64
	totalLatencyMS  float64
	latencySamples  uint64
	queueLengths    []int
	snapshots       []Snapshot

	start time.Time
}

// New returns a ready-to-use Collector with its clock started now.
func New() *Collector {
	return &Collector{start: time.Now()}
}

// PacketSent increments the sent counter. Called once per packet an agent
// attempts to deliver, regardless of outcome.
func (c *Collector) PacketSent() {
	c.mu.Lock()
	c.packetsSent++
	c.mu.Unlock()
}

// PacketReceived records a successful dequeue with the given sojourn
// latency. Samples above maxValidLatencyMS are discarded as measurement
// anomalies and never pollute the running average.
func (c *Collector) PacketReceived(latency time.Duration) {
	latencyMS := latency.Seconds() * 1000.0
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packetsReceived++
	if latencyMS > maxValidLatencyMS {
		return
	}
	c.totalLatencyMS += latencyMS
	c.latencySamples++
}

// PacketDropped increments the dropped counter, whether the drop happened
// at the agent (delivery failure) or at the server (strategy decision).
func (c *Collector) PacketDropped() {
	c.mu.Lock()
	c.packetsDropped++
	c.mu.Unlock()
}

// RecordQueueLength appends the current server queue length to the
// sliding sample window.
func (c *Collector) RecordQueueLength(n int) {
	c.mu.Lock()
	c.queueLengths = append(c.queueLengths, n)
	if len(c.queueLengths) > maxQueueLengthSamples {
		c.queueLengths = c.queueLengths[len(c.queueLengths)-maxQueueLengthSamples:]
	}
	c.mu.Unlock()
}

// Snapshot computes a point-in-time view under the read lock. All
// divisions guard against zero denominators: loss rate is zero with no
// sends, average latency is zero with no
// samples, and a mean above the safeguard threshold is suppressed to zero.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	elapsed := time.Since(c.start).Seconds()

	var throughput float64
	if elapsed > 0 {
		throughput = (float64(c.packetsReceived) * bytesPerPacket * 8) / elapsed
	}

	var avgLatency float64
	if c.latencySamples > 0 {
		avgLatency = c.totalLatencyMS / float64(c.latencySamples)
		if avgLatency > maxValidAvgLatencyMS {
			avgLatency = 0
		}
	}

	var lossRate float64
	if c.packetsSent > 0 {
		lossRate = float64(c.packetsDropped) / float64(c.packetsSent)
	}

	var queueLen int
	if n := len(c.queueLengths); n > 0 {
		queueLen = c.queueLengths[n-1]
	}

	return Snapshot{
		ElapsedSeconds:  elapsed,
		PacketsSent:     c.packetsSent,
		PacketsReceived: c.packetsReceived,
		PacketsDropped:  c.packetsDropped,
		ThroughputBPS:   throughput,
		AvgLatencyMS:    avgLatency,
		QueueLength:     queueLen,
		LossRate:        lossRate,
	}
}

// SaveSnapshot takes a Snapshot and appends it to the persisted series.
func (c *Collector) SaveSnapshot() {
	s := c.Snapshot()
	c.mu.Lock()
	c.snapshots = append(c.snapshots, s)
	c.mu.Unlock()
}

// Snapshots returns a copy of the saved snapshot series, in the order they
// were recorded.
func (c *Collector) Snapshots() []Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Snapshot, len(c.snapshots))
	copy(out, c.snapshots)
	return out
}
