// Copyright 2025 James Ross
// Package server implements the bounded packet buffer every simulated
// server owns: a mutex-guarded deque coupled to an AQM strategy, drained
// by a single paced goroutine at the link's nominal bit rate.
package server

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flocknet/flocknet/internal/metrics"
	"github.com/flocknet/flocknet/internal/obs"
	"github.com/flocknet/flocknet/internal/packet"
	"github.com/flocknet/flocknet/internal/strategy"
)

// updateCadence is how many drain ticks elapse between calls to the
// strategy's periodic Update.
const updateCadence = 3

// sojournWindow bounds the sliding window of recent sojourn samples fed
// into Update's mean.
const sojournWindow = 100

// Server owns one bounded packet buffer, the AQM strategy governing it,
// and the drainer goroutine that paces departures at bandwidthBps. ID
// identifies it in logs and metrics labels (its index among the
// simulation's servers).
type Server struct {
	ID           int
	bandwidthBps int
	bufferSize   int

	mu       sync.Mutex
	buffer   []packet.Packet
	strategy strategy.Strategy
	managed  strategy.SelfManagedQueue // non-nil iff strategy implements it

	metrics *metrics.Collector
	log     *zap.Logger

	sojourns []float64
	tick     int
	served   int
}

// New constructs a Server. If strat implements strategy.SelfManagedQueue,
// the generic buffer is bypassed entirely and all storage decisions are
// delegated to it. If it
// implements strategy.BandwidthAware, SetBandwidthBps is called once here.
func New(id int, bandwidthBps, bufferSize int, strat strategy.Strategy, collector *metrics.Collector, log *zap.Logger) *Server {
	if aware, ok := strat.(strategy.BandwidthAware); ok {
		aware.SetBandwidthBps(bandwidthBps)
	}

	s := &Server{
		ID:           id,
		bandwidthBps: bandwidthBps,
		bufferSize:   bufferSize,
		strategy:     strat,
		metrics:      collector,
		log:          log,
	}
	if managed, ok := strat.(strategy.SelfManagedQueue); ok {
		s.managed = managed
	}
	return s
}

// Enqueue is the critical section every agent delivery calls: it decides
// Accept/Drop/Mark under a single mutex covering both the buffer and the
// strategy, and always records the post-decision queue
// length in metrics.
func (s *Server) Enqueue(p packet.Packet) strategy.Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	var action strategy.Action
	if s.managed != nil {
		action = s.managed.Enqueue(p)
	} else {
		action = s.strategy.OnEnqueue(p, len(s.buffer))
		if action != strategy.Drop {
			s.buffer = append(s.buffer, p)
		}
	}

	if action == strategy.Drop {
		s.metrics.PacketDropped()
		obs.PacketsDropped.Inc()
	}
	s.metrics.RecordQueueLength(s.queueLen())
	obs.ServerQueueLength.WithLabelValues(serverLabel(s.ID)).Set(float64(s.queueLen()))
	return action
}

func (s *Server) queueLen() int {
	if s.managed != nil {
		return s.managed.Len()
	}
	return len(s.buffer)
}

// packetTime is the nominal transmission time the drainer sleeps
// between dequeues: packet_size_bits / bandwidth_bps seconds.
func (s *Server) packetTime(packetSizeBytes int) time.Duration {
	bits := float64(packetSizeBytes) * 8
	seconds := bits / float64(s.bandwidthBps)
	return time.Duration(seconds * float64(time.Second))
}

// Run drains the buffer at the nominal line rate until ctx is canceled.
// packetSizeBytes sets the pacing interval; the server itself places no
// restriction on the size of packets it actually carries.
func (s *Server) Run(ctx context.Context, packetSizeBytes int) {
	interval := s.packetTime(packetSizeBytes)
	if interval <= 0 {
		interval = time.Millisecond
	}
	s.log.Debug("server drainer started",
		obs.Int("server_id", s.ID),
		obs.String("strategy", s.strategy.Name()),
	)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drainOne()
		}
	}
}

func (s *Server) drainOne() {
	s.mu.Lock()

	var served packet.Packet
	var ok bool
	var internalDrops int

	if s.managed != nil {
		served, internalDrops, ok = s.managed.Dequeue()
	} else if len(s.buffer) > 0 {
		served = s.buffer[0]
		s.buffer = s.buffer[1:]
		ok = true
	}

	if !ok {
		s.mu.Unlock()
		return
	}

	for i := 0; i < internalDrops; i++ {
		s.metrics.PacketDropped()
		obs.PacketsDropped.Inc()
	}

	sojourn := served.SojournTime()
	newLen := s.queueLen()

	if s.managed == nil {
		s.strategy.OnDequeue(newLen)
	}

	s.sojourns = append(s.sojourns, float64(sojourn)/float64(time.Millisecond))
	if len(s.sojourns) > sojournWindow {
		s.sojourns = s.sojourns[len(s.sojourns)-sojournWindow:]
	}

	s.tick++
	runUpdate := s.tick%updateCadence == 0
	var avg float64
	if runUpdate {
		avg = meanOf(s.sojourns)
		s.strategy.Update(newLen, avg)
	}

	s.served++
	if s.served <= 10 {
		s.log.Debug("packet served",
			obs.Int("server_id", s.ID),
			obs.Int("served", s.served),
			obs.Float64("sojourn_ms", float64(sojourn)/float64(time.Millisecond)),
			obs.Int("queue_length", newLen),
		)
	} else if s.served%100 == 0 {
		s.log.Debug("drain summary",
			obs.Int("server_id", s.ID),
			obs.Int("served", s.served),
			obs.Float64("avg_sojourn_ms", meanOf(s.sojourns)),
			obs.Int("queue_length", newLen),
		)
	}
	s.mu.Unlock()

	s.metrics.PacketReceived(sojourn)
	obs.PacketsReceived.Inc()
	if runUpdate {
		obs.ServerAvgSojournMS.WithLabelValues(serverLabel(s.ID)).Set(avg)
	}
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func serverLabel(id int) string {
	return "server-" + strconv.Itoa(id)
}

// QueueLen returns the current occupancy, for readiness checks and tests.
func (s *Server) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueLen()
}
