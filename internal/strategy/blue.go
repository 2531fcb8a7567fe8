// Copyright 2025 James Ross
package strategy

import (
	"math/rand"
	"time"

	"github.com/flocknet/flocknet/internal/packet"
)

const (
	blueD1         = 0.02
	blueD2         = 0.002
	blueFreezeTime = 100 * time.Millisecond
	// blueFarPast seeds the loss/change instants so the very first
	// enqueue/dequeue sees an elapsed freeze interval, matching a freshly
	// constructed strategy that has never adjusted p_mark.
	blueFarPast = -time.Hour
)

// Blue implements the BLUE queue-management scheme with dual freeze
// timers (one per adjustment direction) plus loss-event tracking that
// doubles the mark-probability increase when overflow drops recur within
// one freeze interval.
type Blue struct {
	bufferSize int

	pMark float64

	lastIncrease time.Time
	lastDecrease time.Time
	lastLoss     time.Time
}

// NewBlue returns a Blue strategy bound to bufferSize.
func NewBlue(bufferSize int) *Blue {
	return &Blue{
		bufferSize:   bufferSize,
		lastIncrease: time.Now().Add(blueFarPast),
		lastDecrease: time.Now().Add(blueFarPast),
		lastLoss:     time.Now().Add(blueFarPast),
	}
}

func (s *Blue) canIncrease(now time.Time) bool {
	return now.Sub(s.lastIncrease) >= blueFreezeTime
}

func (s *Blue) canDecrease(now time.Time) bool {
	return now.Sub(s.lastDecrease) >= blueFreezeTime
}

func (s *Blue) OnEnqueue(_ packet.Packet, queueLenBefore int) Action {
	now := time.Now()
	highWater := float64(s.bufferSize) * 0.8

	if float64(queueLenBefore) >= highWater && s.canIncrease(now) {
		s.pMark = clamp01(s.pMark + blueD1)
		s.lastIncrease = now
	}

	if queueLenBefore >= s.bufferSize {
		amount := blueD1
		if now.Sub(s.lastLoss) < blueFreezeTime {
			amount *= 2
		}
		s.pMark = clamp01(s.pMark + amount)
		s.lastLoss = now
		return Drop
	}

	if s.pMark > 0 && rand.Float64() < s.pMark {
		return Drop
	}
	return Accept
}

func (s *Blue) OnDequeue(queueLenAfter int) {
	now := time.Now()
	if float64(queueLenAfter) < float64(s.bufferSize)/4 &&
		s.canDecrease(now) &&
		now.Sub(s.lastLoss) >= 2*blueFreezeTime {
		s.pMark = clamp01(s.pMark - blueD2)
		s.lastDecrease = now
	}
}

// Update biases p_mark toward keeping the queue near bufferSize/2, a
// periodic nudge alongside the per-event adjustments above.
func (s *Blue) Update(queueLen int, _ float64) {
	half := float64(s.bufferSize) / 2
	switch {
	case float64(queueLen) > half:
		s.pMark = clamp01(s.pMark + blueD2)
	case float64(queueLen) < half:
		s.pMark = clamp01(s.pMark - blueD2)
	}
}

func (s *Blue) Name() string { return "blue" }

func (s *Blue) Reset() {
	s.pMark = 0
	s.lastIncrease = time.Now().Add(blueFarPast)
	s.lastDecrease = time.Now().Add(blueFarPast)
	s.lastLoss = time.Now().Add(blueFarPast)
}

func (s *Blue) CloneBoxed() Strategy { return NewBlue(s.bufferSize) }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
