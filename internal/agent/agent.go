// Copyright 2025 James Ross
// Package agent implements the traffic-generating side of a simulation:
// one goroutine per agent, each firing packets at a randomly chosen
// server under a configured arrival pattern.
package agent

import (
	"context"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/flocknet/flocknet/internal/config"
	"github.com/flocknet/flocknet/internal/metrics"
	"github.com/flocknet/flocknet/internal/obs"
	"github.com/flocknet/flocknet/internal/packet"
)

// Transport abstracts how a packet reaches a server: in-process
// (internal/transport.Local) or over the network
// (internal/transport.TCP). Deliver returning an error counts as a drop.
type Transport interface {
	Deliver(ctx context.Context, serverIndex int, p packet.Packet) error
}

const minInterval = time.Millisecond

// Agent owns an id, the set of server endpoints it may address, a
// monotonic packet counter, and the traffic pattern it was configured
// with. Destination selection is uniform random across numServers on
// every packet, with no per-server affinity.
type Agent struct {
	ID         int
	NumServers int
	Traffic    config.Traffic
	PacketSize int

	Transport Transport
	Metrics   *metrics.Collector
	Log       *zap.Logger

	counter uint64
	rng     *rand.Rand
}

// New returns an Agent. Each agent gets its own rand.Rand seeded from its
// ID so destination selection and Poisson/jitter draws are reproducible
// per agent without contending on the global source.
func New(id, numServers int, traffic config.Traffic, packetSize int, transport Transport, collector *metrics.Collector, log *zap.Logger) *Agent {
	return &Agent{
		ID:         id,
		NumServers: numServers,
		Traffic:    traffic,
		PacketSize: packetSize,
		Transport:  transport,
		Metrics:    collector,
		Log:        log,
		rng:        rand.New(rand.NewSource(int64(id) + 1)),
	}
}

// Run emits packets according to the configured pattern until ctx is
// canceled.
func (a *Agent) Run(ctx context.Context) {
	start := time.Now()
	for ctx.Err() == nil {
		switch a.Traffic.Pattern {
		case config.Bursty:
			a.runBurst(ctx)
		default:
			a.sendOne(ctx)
		}

		wait := a.nextInterval(time.Since(start))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// runBurst emits burst_size packets spaced 100us apart. The outer
// interval between bursts is computed by nextInterval.
func (a *Agent) runBurst(ctx context.Context) {
	for i := 0; i < a.Traffic.BurstSize; i++ {
		if ctx.Err() != nil {
			return
		}
		a.sendOne(ctx)
		if i < a.Traffic.BurstSize-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Microsecond):
			}
		}
	}
}

// nextInterval computes the sleep before the next packet (or burst),
// given elapsed time since the agent started.
func (a *Agent) nextInterval(elapsed time.Duration) time.Duration {
	switch a.Traffic.Pattern {
	case config.Constant:
		return rateInterval(a.Traffic.RateLps)

	case config.Bursty:
		if a.Traffic.RateLps <= 0 || a.Traffic.BurstSize <= 0 {
			return minInterval
		}
		seconds := float64(a.Traffic.BurstSize) / a.Traffic.RateLps
		return time.Duration(seconds * float64(time.Second))

	case config.Poisson:
		lambda := a.Traffic.RateLps
		if lambda <= 0 {
			return minInterval
		}
		return time.Duration(a.rng.ExpFloat64() / lambda * float64(time.Second))

	case config.PeakTraffic:
		rate := a.Traffic.PeakBaseLps
		if elapsed.Seconds() < a.Traffic.PeakDurationS {
			rate = a.Traffic.PeakRateLps
		}
		return rateInterval(rate)

	case config.Sine:
		// Rate oscillates sinusoidally around rate_packets_per_sec with
		// the configured period and amplitude fraction.
		period := a.Traffic.SinePeriodS
		if period <= 0 {
			period = 1
		}
		phase := 2 * math.Pi * elapsed.Seconds() / period
		rate := a.Traffic.RateLps * (1 + a.Traffic.SineAmplitude*math.Sin(phase))
		return rateInterval(rate)

	default:
		return rateInterval(a.Traffic.RateLps)
	}
}

func rateInterval(ratePps float64) time.Duration {
	if ratePps <= 0 {
		return minInterval
	}
	d := time.Duration(1000.0 / ratePps * float64(time.Millisecond))
	if d < minInterval {
		return minInterval
	}
	return d
}

// sendOne builds one packet, picks a uniformly random destination server,
// and delivers it. A delivery failure is surfaced to metrics as a drop;
// there is no retry or acknowledgement.
func (a *Agent) sendOne(ctx context.Context) {
	id := packet.ID(atomic.AddUint64(&a.counter, 1))
	dest := uint32(a.rng.Intn(a.NumServers))
	p := packet.New(id, uint32(a.ID), dest, uint32(a.PacketSize), packet.Normal)

	a.Metrics.PacketSent()
	obs.PacketsSent.Inc()

	if err := a.Transport.Deliver(ctx, int(dest), p); err != nil {
		a.Metrics.PacketDropped()
		obs.PacketsDropped.Inc()
		a.Log.Debug("delivery failed",
			obs.Int("agent_id", a.ID),
			obs.Int("dest_server", int(dest)),
			obs.Err(err),
		)
	}
}
