// Copyright 2025 James Ross
// Package breaker guards one agent-to-server delivery path: repeated
// send failures over a sliding window trip the breaker open, a cooldown
// later a single probe delivery is let through, and its outcome decides
// whether the link closes again or stays open.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker's position in the closed/half-open/open cycle.
type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case HalfOpen:
		return "half-open"
	case Open:
		return "open"
	default:
		return "unknown"
	}
}

// sample is one delivery attempt's outcome, timestamped so old attempts
// age out of the window.
type sample struct {
	at time.Time
	ok bool
}

// CircuitBreaker tracks delivery outcomes over a sliding window. It trips
// open when the failure rate over at least minSamples attempts reaches
// failureThresh, and allows exactly one probe per cooldown while open.
type CircuitBreaker struct {
	mu sync.Mutex

	window        time.Duration
	cooldown      time.Duration
	failureThresh float64
	minSamples    int

	state          State
	lastTransition time.Time
	samples        []sample
	probeInFlight  bool
}

// New returns a closed breaker with the given sliding window, cooldown,
// failure-rate threshold, and minimum sample count before the rate is
// acted on.
func New(window, cooldown time.Duration, failureThresh float64, minSamples int) *CircuitBreaker {
	return &CircuitBreaker{
		window:         window,
		cooldown:       cooldown,
		failureThresh:  failureThresh,
		minSamples:     minSamples,
		state:          Closed,
		lastTransition: time.Now(),
	}
}

// State reports the breaker's current position.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether a delivery attempt may proceed. While open it
// returns false until the cooldown elapses, then admits exactly one probe
// at a time in the half-open state.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Open:
		if time.Since(cb.lastTransition) < cb.cooldown {
			return false
		}
		cb.state = HalfOpen
		cb.lastTransition = time.Now()
		cb.probeInFlight = true
		return true
	case HalfOpen:
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true
	default:
		return true
	}
}

// Record feeds one delivery outcome back into the window. A half-open
// probe's outcome transitions the breaker directly; otherwise the failure
// rate over the window decides whether a closed breaker trips.
func (cb *CircuitBreaker) Record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.prune(now)
	cb.samples = append(cb.samples, sample{at: now, ok: ok})

	if cb.state == HalfOpen {
		if ok {
			cb.state = Closed
		} else {
			cb.state = Open
		}
		cb.probeInFlight = false
		cb.lastTransition = now
		return
	}

	if cb.state != Closed || len(cb.samples) < cb.minSamples {
		return
	}

	fails := 0
	for _, s := range cb.samples {
		if !s.ok {
			fails++
		}
	}
	if float64(fails)/float64(len(cb.samples)) >= cb.failureThresh {
		cb.state = Open
		cb.lastTransition = now
	}
}

// prune drops samples older than the sliding window.
func (cb *CircuitBreaker) prune(now time.Time) {
	cutoff := now.Add(-cb.window)
	kept := cb.samples[:0]
	for _, s := range cb.samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	cb.samples = kept
}
