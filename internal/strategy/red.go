// Copyright 2025 James Ross
package strategy

import (
	"math/rand"

	"github.com/flocknet/flocknet/internal/packet"
)

const (
	redEWMAWeight  = 0.02
	redMaxP        = 0.1
	redMinThFloor  = 5.0
	redMinThFactor = 0.3
	redMaxThFactor = 0.9
)

// Red implements Random Early Detection: an EWMA of the queue length is
// compared against min/max thresholds to compute a drop probability that
// ramps linearly between them, with a count-adjusted form that spreads
// drops roughly uniformly rather than in runs.
type Red struct {
	bufferSize int
	minTh      float64
	maxTh      float64
	maxP       float64

	avgQueue float64
	count    int
}

// NewRed derives the thresholds from bufferSize B:
// min_th = max(0.3*B, 5), max_th = 0.9*B, max_p = 0.1.
func NewRed(bufferSize int) *Red {
	b := float64(bufferSize)
	minTh := b * redMinThFactor
	if minTh < redMinThFloor {
		minTh = redMinThFloor
	}
	return &Red{
		bufferSize: bufferSize,
		minTh:      minTh,
		maxTh:      b * redMaxThFactor,
		maxP:       redMaxP,
	}
}

func (s *Red) OnEnqueue(_ packet.Packet, queueLenBefore int) Action {
	s.avgQueue = (1-redEWMAWeight)*s.avgQueue + redEWMAWeight*float64(queueLenBefore)

	if s.avgQueue >= s.maxTh {
		s.count = 0
		return Drop
	}

	pb := s.bandProbability()
	if pb <= 0 {
		s.count++
		return Accept
	}

	// Count-adjusted form: spreads drops more uniformly than a flat p_b by
	// making successive accepted packets more likely to be the next drop.
	denom := 1 - float64(s.count)*pb
	p := 1.0
	if denom > 0 {
		p = pb / denom
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}

	if rand.Float64() < p {
		s.count = 0
		return Drop
	}
	s.count++
	return Accept
}

func (s *Red) bandProbability() float64 {
	if s.avgQueue < s.minTh {
		return 0
	}
	if s.avgQueue >= s.maxTh {
		return 1
	}
	return ((s.avgQueue - s.minTh) / (s.maxTh - s.minTh)) * s.maxP
}

func (s *Red) OnDequeue(_ int) {}

// Update re-applies the EWMA against the current queue length so the
// moving average keeps advancing during idle periods.
func (s *Red) Update(queueLen int, _ float64) {
	s.avgQueue = (1-redEWMAWeight)*s.avgQueue + redEWMAWeight*float64(queueLen)
}

func (s *Red) Name() string { return "red" }

func (s *Red) Reset() {
	s.avgQueue = 0
	s.count = 0
	s.maxP = redMaxP
}

func (s *Red) CloneBoxed() Strategy { return NewRed(s.bufferSize) }

const (
	aredAdjustInterval = 500 // milliseconds, accumulated at a notional 100ms per Update call
	aredAlpha          = 0.01
	aredBeta           = 0.9
	aredMaxPCeiling    = 0.5
	aredMaxPFloor      = 0.01
)

// AdaptiveRed wraps Red and periodically retunes max_p toward keeping the
// EWMA queue length near the midpoint of [min_th, max_th]. The retune
// runs once every five Update calls, each counted as a notional 100ms
// toward a 500ms window.
type AdaptiveRed struct {
	*Red
	target      float64
	msSinceTune float64
}

// NewAdaptiveRed builds the wrapped Red and computes its retune target.
func NewAdaptiveRed(bufferSize int) *AdaptiveRed {
	r := NewRed(bufferSize)
	return &AdaptiveRed{
		Red:    r,
		target: 0.5 * (r.minTh + r.maxTh),
	}
}

// Update re-applies RED's EWMA advance, then retunes max_p once enough
// time has notionally elapsed. Each call counts as 100ms toward the 500ms
// retune window; no wall clock is read, which keeps AdaptiveRed's tuning
// reproducible under Reset+replay.
func (a *AdaptiveRed) Update(queueLen int, avgSojournMS float64) {
	a.Red.Update(queueLen, avgSojournMS)
	a.msSinceTune += 100
	if a.msSinceTune < aredAdjustInterval {
		return
	}
	a.msSinceTune = 0

	if a.avgQueue < a.target && a.maxP < aredMaxPCeiling {
		step := aredAlpha
		if quarter := a.maxP / 4; quarter < step {
			step = quarter
		}
		a.maxP += step
		if a.maxP > aredMaxPCeiling {
			a.maxP = aredMaxPCeiling
		}
	} else if a.avgQueue > a.target && a.maxP > aredMaxPFloor {
		a.maxP *= aredBeta
		if a.maxP < aredMaxPFloor {
			a.maxP = aredMaxPFloor
		}
	}
}

func (a *AdaptiveRed) Name() string { return "adaptive-red" }

func (a *AdaptiveRed) Reset() {
	a.Red.Reset()
	a.msSinceTune = 0
}

func (a *AdaptiveRed) CloneBoxed() Strategy { return NewAdaptiveRed(a.bufferSize) }
