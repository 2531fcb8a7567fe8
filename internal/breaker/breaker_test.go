// Copyright 2025 James Ross
package breaker

import (
	"testing"
	"time"
)

func TestTripsOpenOnceFailureRateCrossesThreshold(t *testing.T) {
	cb := New(2*time.Second, 200*time.Millisecond, 0.5, 2)
	if cb.State() != Closed {
		t.Fatal("expected a fresh breaker to start closed")
	}

	cb.Record(false)
	cb.Record(false)
	if cb.State() != Open {
		t.Fatal("expected open after two consecutive delivery failures")
	}
	if cb.Allow() {
		t.Fatal("expected deliveries blocked before the cooldown elapses")
	}
}

func TestProbeOutcomeDecidesHalfOpenTransition(t *testing.T) {
	cb := New(2*time.Second, 50*time.Millisecond, 0.5, 2)
	cb.Record(false)
	cb.Record(false)

	time.Sleep(60 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("expected a probe delivery after the cooldown")
	}
	cb.Record(true)
	if cb.State() != Closed {
		t.Fatalf("expected closed after a successful probe, got %v", cb.State())
	}
}

func TestFailedProbeReopens(t *testing.T) {
	cb := New(2*time.Second, 50*time.Millisecond, 0.5, 2)
	cb.Record(false)
	cb.Record(false)

	time.Sleep(60 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("expected a probe delivery after the cooldown")
	}
	cb.Record(false)
	if cb.State() != Open {
		t.Fatalf("expected open after a failed probe, got %v", cb.State())
	}
}

func TestStaysClosedBelowMinimumSamples(t *testing.T) {
	cb := New(2*time.Second, 50*time.Millisecond, 0.5, 10)
	cb.Record(false)
	cb.Record(false)
	if cb.State() != Closed {
		t.Fatal("expected closed while the window holds fewer than min samples")
	}
}

func TestOldSamplesAgeOutOfTheWindow(t *testing.T) {
	cb := New(20*time.Millisecond, 50*time.Millisecond, 0.5, 2)
	cb.Record(false)
	time.Sleep(30 * time.Millisecond)
	cb.Record(true)
	cb.Record(true)
	if cb.State() != Closed {
		t.Fatal("expected the aged-out failure to no longer count toward the rate")
	}
}
