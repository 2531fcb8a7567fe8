// Copyright 2025 James Ross
package strategy

import (
	"sort"
	"time"

	"github.com/flocknet/flocknet/internal/packet"
)

const (
	fqCodelFlowCount = 1024
	// fqCodelIdlePrunes is how many consecutive Update calls an empty flow
	// survives before its state is dropped, keeping the flow map from
	// growing unboundedly across a long run with a changing agent set.
	fqCodelIdlePrunes = 50
)

// fqFlow is one sub-queue's worth of state: its own bounded deque and its
// own independent CoDel control law, so a congested flow can be penalized
// without starving the others.
type fqFlow struct {
	queue     packetDeque
	ctrl      codelControl
	idleTicks int
}

// FQCoDel implements Fair Queuing CoDel: arrivals are hashed into one of
// 1024 per-flow sub-queues by source agent, each independently run through
// CoDel, and served in round robin so no single flow can monopolize the
// buffer. It is a SelfManagedQueue: the per-flow storage shape has no
// equivalent in the server's single generic deque.
type FQCoDel struct {
	bufferSize int
	totalLen   int

	flows  map[uint32]*fqFlow
	order  []uint32
	cursor int
}

// NewFQCoDel returns an FQCoDel strategy whose combined packet count
// across all flows is bounded by bufferSize.
func NewFQCoDel(bufferSize int) *FQCoDel {
	return &FQCoDel{
		bufferSize: bufferSize,
		flows:      make(map[uint32]*fqFlow),
	}
}

func flowIDFor(p packet.Packet) uint32 {
	return p.SourceAgent % fqCodelFlowCount
}

func (s *FQCoDel) flowFor(id uint32) *fqFlow {
	if f, ok := s.flows[id]; ok {
		return f
	}
	f := &fqFlow{}
	s.flows[id] = f

	i := sort.Search(len(s.order), func(i int) bool { return s.order[i] >= id })
	s.order = append(s.order, 0)
	copy(s.order[i+1:], s.order[i:])
	s.order[i] = id
	if i < s.cursor {
		s.cursor++
	}
	return f
}

// Enqueue admits p into its flow's sub-queue unless the combined buffer is
// full, or the flow's own CoDel control law (evaluated against the
// current head of that flow ahead of the new arrival) judges the flow
// already over its delay budget. The latter is a deliberate per-flow
// admission gate rather than CoDel's usual dequeue-only decision: it keeps
// one congested flow's arrivals from displacing space earmarked for
// others between dequeues.
func (s *FQCoDel) Enqueue(p packet.Packet) Action {
	if s.totalLen >= s.bufferSize {
		return Drop
	}

	id := flowIDFor(p)
	f := s.flowFor(id)
	f.idleTicks = 0

	if head, ok := f.queue.front(); ok {
		sojournMS := float64(head.SojournTime()) / float64(time.Millisecond)
		if f.ctrl.step(time.Now(), sojournMS) {
			return Drop
		}
	}

	f.queue.pushBack(p)
	s.totalLen++
	return Accept
}

// Dequeue advances the round-robin cursor to the next non-empty flow and
// pops exactly one packet from it. Dequeue does not run CoDel's control
// law; the flow's control law is evaluated only in Enqueue, against the
// flow's head on each arrival.
func (s *FQCoDel) Dequeue() (packet.Packet, int, bool) {
	if len(s.order) == 0 {
		return packet.Packet{}, 0, false
	}

	for attempts := 0; attempts < len(s.order); attempts++ {
		id := s.order[s.cursor]
		s.cursor = (s.cursor + 1) % len(s.order)
		f := s.flows[id]

		served, ok := f.queue.popFront()
		if !ok {
			continue
		}
		s.totalLen--
		return served, 0, true
	}

	return packet.Packet{}, 0, false
}

func (s *FQCoDel) Len() int { return s.totalLen }

func (s *FQCoDel) OnEnqueue(_ packet.Packet, _ int) Action { return Accept }
func (s *FQCoDel) OnDequeue(_ int)                         {}

// Update prunes flow state that has been empty for fqCodelIdlePrunes
// consecutive ticks, so a long run with a rotating agent population
// doesn't accumulate stale per-flow entries forever.
func (s *FQCoDel) Update(_ int, _ float64) {
	remaining := s.order[:0]
	for _, id := range s.order {
		f := s.flows[id]
		if f.queue.len() == 0 {
			f.idleTicks++
			if f.idleTicks >= fqCodelIdlePrunes {
				delete(s.flows, id)
				if s.cursor > len(remaining) {
					s.cursor--
				}
				continue
			}
		}
		remaining = append(remaining, id)
	}
	s.order = remaining
	if len(s.order) > 0 {
		s.cursor %= len(s.order)
	} else {
		s.cursor = 0
	}
}

func (s *FQCoDel) Name() string { return "fq-codel" }

func (s *FQCoDel) Reset() {
	s.flows = make(map[uint32]*fqFlow)
	s.order = nil
	s.cursor = 0
	s.totalLen = 0
}

func (s *FQCoDel) CloneBoxed() Strategy { return NewFQCoDel(s.bufferSize) }
