// Copyright 2025 James Ross
// Package strategy implements the AQM policy family FlockNet benchmarks:
// Drop-Tail, FIFO, RED, Adaptive RED, BLUE, CoDel, PIE, and FQ-CoDel, all
// behind one polymorphic interface so the server queue engine never knows
// which algorithm it is driving.
package strategy

import "github.com/flocknet/flocknet/internal/packet"

// Action is the fate on_enqueue assigns to an arriving packet.
type Action int

const (
	// Accept inserts the packet at the tail of the buffer.
	Accept Action = iota
	// Drop discards the packet; the caller increments packets_dropped.
	Drop
	// Mark is observed but currently enqueues the same as Accept. ECN
	// marking is a placeholder reserved for future work.
	Mark
)

func (a Action) String() string {
	switch a {
	case Accept:
		return "accept"
	case Drop:
		return "drop"
	case Mark:
		return "mark"
	default:
		return "unknown"
	}
}

// Strategy is the polymorphic AQM policy interface every server queue
// engine drives. A Strategy instance is exclusively owned by one server:
// it is never shared, and Reset returns it to its constructor-equivalent
// state.
type Strategy interface {
	// OnEnqueue decides the fate of an arriving packet, given the queue
	// length *before* insertion. It may mutate internal state and is
	// called on every arrival, before the packet is physically inserted.
	OnEnqueue(p packet.Packet, queueLenBefore int) Action

	// OnDequeue notifies the strategy that one packet left the buffer,
	// observing the post-removal length. It is called after physical
	// removal.
	OnDequeue(queueLenAfter int)

	// Update is the periodic control-loop tick, invoked by the drainer at
	// a fixed cadence (every third drain iteration by default) with the
	// current queue length and the mean sojourn time over the recent
	// window.
	Update(queueLen int, recentAvgSojournMS float64)

	// Name identifies the strategy for logs and persisted reports.
	Name() string

	// Reset returns the strategy to its constructor-equivalent state.
	Reset()

	// CloneBoxed returns a fresh, independent instance equivalent to a
	// freshly constructed one, for anything that needs a same-shape
	// strategy without sharing state.
	CloneBoxed() Strategy
}

// BandwidthAware is implemented by strategies whose control law needs the
// link's nominal bit rate to estimate queueing delay when no sojourn
// samples are available yet (PIE's qdelay fallback). The server calls
// SetBandwidthBps once, right after construction, on any strategy that
// implements it.
type BandwidthAware interface {
	SetBandwidthBps(bps int)
}

// SelfManagedQueue is implemented by strategies whose dequeue decision
// needs direct, possibly multi-step access to the head of the queue
// (CoDel's drop-until-below-target loop) or a storage shape the generic
// single deque can't express (FQ-CoDel's per-flow sub-queues). Both
// require owning storage rather than deciding Accept/Drop against a
// buffer the server owns.
//
// A server whose strategy implements SelfManagedQueue delegates all
// buffering to it: the generic OnEnqueue/OnDequeue pair is never called
// for that strategy, and the server's own deque stays empty. Update is
// still invoked on the usual periodic cadence for any policy that also
// embeds a control loop.
type SelfManagedQueue interface {
	Strategy

	// Enqueue stores or drops p entirely at the strategy's discretion and
	// returns the resulting Action for metrics/logging purposes.
	Enqueue(p packet.Packet) Action

	// Dequeue returns the next packet to serve, if any. dropped counts
	// packets the policy discarded internally while deciding (e.g. CoDel
	// drops preceding the packet it finally serves); the caller
	// increments packets_dropped by that count.
	Dequeue() (served packet.Packet, dropped int, ok bool)

	// Len returns the total number of packets currently held across all
	// internal storage, for queue-length metrics and the buffer_size
	// invariant.
	Len() int
}
