// Copyright 2025 James Ross
// Package packet defines the immutable unit of work that flows from an
// agent into a server's queue.
package packet

import (
	"time"
)

// validEpochMicros is the earliest created_at value FlockNet trusts.
// Anything below it (roughly year 2001 in Unix microseconds) means the
// timestamp was never set and is treated as a measurement artifact rather
// than a real packet age.
const validEpochMicros = 1_000_000_000_000_000

// maxSojourn caps a trustworthy sojourn measurement: values outside
// [0, 30s] are reported as zero rather than polluting aggregates with
// bogus latencies.
const maxSojourn = 30 * time.Second

// ID is a 64-bit identifier, unique per agent. Agents each keep their own
// monotonic counter; global uniqueness across agents is not required.
type ID uint64

// Priority is a totally ordered delivery class. Only Normal is generated by
// the traffic patterns in internal/agent today, but every strategy must
// accept all four.
type Priority int

const (
	Low Priority = iota
	Normal
	High
	Critical
)

func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case Normal:
		return "normal"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Packet is an immutable unit of simulated traffic. CreatedAtMicros is
// recorded once at construction and never mutated afterward.
type Packet struct {
	ID                ID
	SourceAgent       uint32
	DestinationServer uint32
	PayloadSize       uint32
	Priority          Priority
	CreatedAtMicros   int64
	Data              []byte
}

// New constructs a Packet, stamping its creation time as microseconds since
// the Unix epoch. The payload buffer is zero-filled to size; its contents
// are never interpreted, only its length matters for wire framing.
func New(id ID, source, dest uint32, size uint32, priority Priority) Packet {
	return Packet{
		ID:                id,
		SourceAgent:       source,
		DestinationServer: dest,
		PayloadSize:       size,
		Priority:          priority,
		CreatedAtMicros:   time.Now().UnixMicro(),
		Data:              make([]byte, size),
	}
}

// SojournTime returns the wall-clock time between packet creation and now,
// clamped to [0, 30s]. Values outside that window, or a timestamp that
// looks uninitialized, are reported as zero so they don't corrupt latency
// aggregates.
func (p Packet) SojournTime() time.Duration {
	if p.CreatedAtMicros < validEpochMicros {
		return 0
	}
	elapsed := time.Now().UnixMicro() - p.CreatedAtMicros
	if elapsed < 0 {
		return 0
	}
	d := time.Duration(elapsed) * time.Microsecond
	if d > maxSojourn {
		return 0
	}
	return d
}
