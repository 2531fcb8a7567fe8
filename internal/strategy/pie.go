// Copyright 2025 James Ross
package strategy

import (
	"math/rand"
	"time"

	"github.com/flocknet/flocknet/internal/packet"
)

const (
	pieTargetMS         = 15.0
	pieAlpha            = 0.125
	pieBeta             = 1.25
	pieUpdateIntervalMS = 30.0
	pieBurstAllowanceMS = 150.0

	// defaultBandwidthBps seeds packetDelayMS before the server calls
	// SetBandwidthBps with the run's configured line rate.
	defaultBandwidthBps = 100_000_000
	nominalPacketBits   = 1500 * 8
)

// Pie implements the Proportional-Integral controller Enhanced scheme:
// a drop probability retuned on a fixed cadence from the queueing delay
// and its derivative, with a burst allowance that lets a newly-filling
// queue pass packets uncontested for a short grace window. It uses the
// plain Strategy interface; the server's generic buffer stays the system
// of record.
type Pie struct {
	targetMS float64

	dropProb      float64
	qDelayOldMS   float64
	msSinceUpdate float64

	burstAllowanceMS float64
	lastEnqueueAt    time.Time

	packetDelayMS float64
}

// NewPie returns a Pie strategy. bufferSize does not affect PIE's control
// law directly (it reacts to delay, not occupancy) but is accepted for
// constructor-signature symmetry with the other strategies.
func NewPie(int) *Pie {
	return &Pie{
		targetMS:      pieTargetMS,
		packetDelayMS: nominalPacketBits / float64(defaultBandwidthBps) * 1000,
	}
}

// SetBandwidthBps retunes the per-packet transmission time PIE falls back
// on to estimate queueing delay before any sojourn samples exist.
func (s *Pie) SetBandwidthBps(bps int) {
	if bps <= 0 {
		return
	}
	s.packetDelayMS = nominalPacketBits / float64(bps) * 1000
}

func (s *Pie) OnEnqueue(_ packet.Packet, queueLenBefore int) Action {
	now := time.Now()
	if !s.lastEnqueueAt.IsZero() && s.burstAllowanceMS > 0 {
		elapsedMS := float64(now.Sub(s.lastEnqueueAt)) / float64(time.Millisecond)
		s.burstAllowanceMS -= elapsedMS
		if s.burstAllowanceMS < 0 {
			s.burstAllowanceMS = 0
		}
	}
	s.lastEnqueueAt = now

	if s.burstAllowanceMS > 0 {
		return Accept
	}

	if queueLenBefore < 10 {
		s.burstAllowanceMS = pieBurstAllowanceMS
	}

	if s.dropProb <= 0 {
		return Accept
	}
	if rand.Float64() < s.dropProb {
		return Drop
	}
	return Accept
}

func (s *Pie) OnDequeue(_ int) {}

// Update retunes drop_prob. Each call counts as a notional 100ms, the same
// way AdaptiveRed accumulates toward its 500ms retune window; since that
// already exceeds PIE's 30ms update interval, every call retunes.
func (s *Pie) Update(queueLen int, recentAvgSojournMS float64) {
	s.msSinceUpdate += 100
	if s.msSinceUpdate < pieUpdateIntervalMS {
		return
	}
	s.msSinceUpdate = 0

	curDelay := recentAvgSojournMS
	if curDelay <= 0 {
		curDelay = float64(queueLen) * s.packetDelayMS
	}

	p := s.dropProb +
		pieAlpha*(curDelay-s.targetMS) +
		pieBeta*(curDelay-s.qDelayOldMS)

	s.dropProb = clamp01(p)
	s.qDelayOldMS = curDelay
}

func (s *Pie) Name() string { return "pie" }

func (s *Pie) Reset() {
	s.dropProb = 0
	s.qDelayOldMS = 0
	s.msSinceUpdate = 0
	s.burstAllowanceMS = 0
	s.lastEnqueueAt = time.Time{}
}

func (s *Pie) CloneBoxed() Strategy { return NewPie(0) }
