// Copyright 2025 James Ross
package strategy

import (
	"math"
	"time"

	"github.com/flocknet/flocknet/internal/packet"
)

const (
	codelTargetMS = 5.0
	codelInterval = 100 * time.Millisecond
)

// codelControl is the control-law state machine CoDel and each FQ-CoDel
// flow run independently: target=5ms, interval=100ms, tracking
// first_above_time/drop_next/count/dropping. It makes no storage
// decisions of its own; step is given the
// current head-of-line sojourn and reports whether that head should be
// dropped.
type codelControl struct {
	firstAboveTime time.Time
	dropNext       time.Time
	count          int
	dropping       bool
}

// step runs one iteration of the control law against the packet currently
// at the head of the queue (peekMS is its sojourn time in milliseconds) and
// reports whether it should be dropped. The caller is expected to loop:
// each drop should re-peek the new head and call step again.
func (c *codelControl) step(now time.Time, peekMS float64) (drop bool) {
	if peekMS < codelTargetMS {
		c.firstAboveTime = time.Time{}
		c.dropping = false
		return false
	}

	if c.firstAboveTime.IsZero() {
		c.firstAboveTime = now
		return false
	}

	if now.Sub(c.firstAboveTime) < codelInterval {
		return false
	}

	if !c.dropping {
		c.dropping = true
		c.count = 1
		c.dropNext = now
		return true
	}

	if !now.Before(c.dropNext) {
		c.count++
		c.dropNext = now.Add(time.Duration(float64(codelInterval) / math.Sqrt(float64(c.count))))
		return true
	}

	return false
}

func (c *codelControl) reset() {
	*c = codelControl{}
}

// CoDel implements Controlled Delay as a SelfManagedQueue: the drop
// decision loop needs direct, repeated access to the queue's head, which
// the generic Strategy interface's single OnEnqueue/OnDequeue pair cannot
// express, so CoDel owns its own bounded FIFO.
type CoDel struct {
	bufferSize int
	queue      packetDeque
	ctrl       codelControl
}

// NewCoDel returns a CoDel strategy bound to bufferSize.
func NewCoDel(bufferSize int) *CoDel {
	return &CoDel{bufferSize: bufferSize}
}

// Enqueue tail-drops when the buffer is full; otherwise the packet is
// always admitted. CoDel's drop decisions are made entirely at dequeue
// time, against the head of the queue.
func (s *CoDel) Enqueue(p packet.Packet) Action {
	if s.queue.len() >= s.bufferSize {
		return Drop
	}
	s.queue.pushBack(p)
	return Accept
}

// Dequeue runs the control law against the head of the queue, dropping
// zero or more packets before serving the one that finally passes (or
// draining the queue entirely if every remaining packet is judged late).
func (s *CoDel) Dequeue() (packet.Packet, int, bool) {
	dropped := 0
	for {
		head, ok := s.queue.front()
		if !ok {
			return packet.Packet{}, dropped, false
		}

		now := time.Now()
		sojournMS := float64(head.SojournTime()) / float64(time.Millisecond)

		if s.ctrl.step(now, sojournMS) {
			s.queue.popFront()
			dropped++
			continue
		}

		served, _ := s.queue.popFront()
		return served, dropped, true
	}
}

func (s *CoDel) Len() int { return s.queue.len() }

// OnEnqueue/OnDequeue are never invoked on a SelfManagedQueue strategy by
// the server, but the Strategy interface still requires them.
func (s *CoDel) OnEnqueue(_ packet.Packet, _ int) Action { return Accept }
func (s *CoDel) OnDequeue(_ int)                         {}

// Update is a no-op for CoDel: its control law runs entirely within
// Dequeue, driven by each dequeue rather than a periodic tick.
func (s *CoDel) Update(_ int, _ float64) {}

func (s *CoDel) Name() string { return "codel" }

func (s *CoDel) Reset() {
	s.queue.reset()
	s.ctrl.reset()
}

func (s *CoDel) CloneBoxed() Strategy { return NewCoDel(s.bufferSize) }
