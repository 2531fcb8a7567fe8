// Copyright 2025 James Ross
// Package sim implements the simulation harness: it wires together
// servers, agents, and a transport, runs them for a configured duration,
// and collects the resulting metrics snapshot series.
package sim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/flocknet/flocknet/internal/agent"
	"github.com/flocknet/flocknet/internal/config"
	"github.com/flocknet/flocknet/internal/metrics"
	"github.com/flocknet/flocknet/internal/obs"
	"github.com/flocknet/flocknet/internal/server"
	"github.com/flocknet/flocknet/internal/strategy"
	"github.com/flocknet/flocknet/internal/transport"
)

// shutdownGrace bounds how long the harness waits for the drainer/agent
// goroutines to notice cancellation before it gives up and moves on.
const shutdownGrace = 2 * time.Second

// portReleaseDelay is a final pause after cancellation, giving any TCP
// listeners time to release their bound port before the process exits or
// a subsequent run reuses it.
const portReleaseDelay = 500 * time.Millisecond

// peakPerturbation derives the per-agent PeakTraffic jitter factor
// 1 + ((i*0.01) mod 0.1) - 0.05, so a fleet of agents doesn't ramp in
// lockstep.
func peakPerturbation(i int) float64 {
	return 1 + float64(i%10)*0.01 - 0.05
}

// Simulation owns every server and agent in one benchmark run and drives
// them through the spawn/wait/cancel lifecycle.
type Simulation struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Collector

	servers []*server.Server
	ready   atomic.Bool
}

// Result is everything a run produces: the snapshot series and the final
// cumulative counters.
type Result struct {
	Snapshots []metrics.Snapshot
	Final     metrics.Snapshot
}

// New constructs a Simulation from cfg. The strategy is instantiated once
// per server via the registry, so no state is ever shared across servers.
func New(cfg *config.Config, log *zap.Logger) (*Simulation, error) {
	collector := metrics.New()

	servers := make([]*server.Server, cfg.Simulation.NumServers)
	for i := range servers {
		strat, err := strategy.Create(cfg.Strategy, cfg.Network.BufferSize)
		if err != nil {
			return nil, fmt.Errorf("sim: %w", err)
		}
		servers[i] = server.New(i, cfg.Network.BandwidthBps, cfg.Network.BufferSize, strat, collector, log)
	}

	return &Simulation{
		cfg:     cfg,
		log:     log,
		metrics: collector,
		servers: servers,
	}, nil
}

// Metrics returns the shared collector every server and agent in this run
// feeds, so a caller (e.g. the dashboard) can sample it concurrently with
// Run.
func (s *Simulation) Metrics() *metrics.Collector {
	return s.metrics
}

// Readiness backs the /readyz endpoint: it returns nil once every server
// in this run has passed the ready barrier (including, in TCP mode, its
// acceptor listening on its endpoint).
func (s *Simulation) Readiness(context.Context) error {
	if s.ready.Load() {
		return nil
	}
	return fmt.Errorf("sim: servers not ready")
}

// Run spawns the servers, waits out the ready barrier and settle delay,
// spawns the agents, snapshots once per interval, then cancels everything
// and returns the collected result. Agents and drainers run under a
// context derived from ctx, so canceling ctx stops them; the snapshot
// loop does not watch ctx and returns only once cfg.Simulation.DurationSec
// has elapsed.
func (s *Simulation) Run(ctx context.Context) (*Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var ready sync.WaitGroup
	ready.Add(len(s.servers))
	if s.cfg.Transport.Kind == "tcp" {
		// TCP acceptors join the barrier too: a server is not ready until
		// its endpoint is accepting input.
		ready.Add(len(s.servers))
	}

	for _, srv := range s.servers {
		wg.Add(1)
		go func(srv *server.Server) {
			defer wg.Done()
			ready.Done()
			srv.Run(runCtx, s.cfg.Network.PacketSize)
		}(srv)
	}

	addrs := make([]string, len(s.servers))
	if s.cfg.Transport.Kind == "tcp" {
		for i, srv := range s.servers {
			addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.Transport.BasePort+i)
			addrs[i] = addr
			wg.Add(1)
			go func(srv *server.Server, addr string) {
				defer wg.Done()
				if err := transport.ListenAndServe(runCtx, addr, srv, ready.Done, s.log); err != nil {
					s.log.Warn("tcp acceptor exited", obs.String("addr", addr), obs.Err(err))
				}
			}(srv, addr)
		}
	}

	readyCh := make(chan struct{})
	go func() { ready.Wait(); close(readyCh) }()
	select {
	case <-readyCh:
	case <-time.After(shutdownGrace):
		return nil, fmt.Errorf("sim: servers did not become ready in time")
	}
	s.ready.Store(true)
	settle := time.Duration(s.cfg.Simulation.SettleDelayMS) * time.Millisecond
	time.Sleep(settle)

	var agentTransport agent.Transport = transport.NewLocal(s.servers)
	var tcpTransports []*transport.TCP

	for i := 0; i < s.cfg.Simulation.NumAgents; i++ {
		traffic := s.perturbedTraffic(i)
		if s.cfg.Transport.Kind == "tcp" {
			// One TCP transport per agent, so connections and breakers are
			// kept per (agent, server) pair.
			tcpTransport := transport.NewTCP(addrs, s.cfg.Transport.DialTimeout, s.cfg.Transport.WriteTimeout, s.cfg.CircuitBreaker, s.log)
			tcpTransports = append(tcpTransports, tcpTransport)
			agentTransport = tcpTransport
		}
		a := agent.New(i, len(s.servers), traffic, s.cfg.Network.PacketSize, agentTransport, s.metrics, s.log)
		wg.Add(1)
		go func(a *agent.Agent) {
			defer wg.Done()
			a.Run(runCtx)
		}(a)
	}

	duration := time.Duration(s.cfg.Simulation.DurationSec) * time.Second
	snapshotInterval := time.Duration(s.cfg.Simulation.SnapshotInterval * float64(time.Second))
	if snapshotInterval <= 0 {
		snapshotInterval = time.Second
	}
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()
	deadline := time.After(duration)

loop:
	for {
		select {
		case <-deadline:
			break loop
		case <-ticker.C:
			s.metrics.SaveSnapshot()
			snap := s.metrics.Snapshot()
			s.log.Info("progress",
				obs.Int("elapsed_s", int(snap.ElapsedSeconds)),
				obs.Int("queue_length", snap.QueueLength),
			)
		}
	}

	cancel()
	for _, tcpTransport := range tcpTransports {
		tcpTransport.Close()
	}

	doneCh := make(chan struct{})
	go func() { wg.Wait(); close(doneCh) }()
	select {
	case <-doneCh:
	case <-time.After(shutdownGrace):
		s.log.Warn("simulation shutdown exceeded grace period")
	}

	time.Sleep(portReleaseDelay)

	return &Result{
		Snapshots: s.metrics.Snapshots(),
		Final:     s.metrics.Snapshot(),
	}, nil
}

// perturbedTraffic applies the per-agent PeakTraffic jitter; every other
// pattern is passed through unchanged.
func (s *Simulation) perturbedTraffic(i int) config.Traffic {
	t := s.cfg.Traffic
	if t.Pattern != config.PeakTraffic {
		return t
	}
	factor := peakPerturbation(i)
	t.PeakBaseLps *= factor
	t.PeakRateLps *= factor
	return t
}
