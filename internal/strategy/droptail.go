// Copyright 2025 James Ross
package strategy

import "github.com/flocknet/flocknet/internal/packet"

// DropTail is the simplest AQM policy: accept until the buffer is full,
// then drop everything. It holds no state beyond the configured capacity.
type DropTail struct {
	bufferSize int
}

// NewDropTail returns a DropTail strategy bound to bufferSize.
func NewDropTail(bufferSize int) *DropTail {
	return &DropTail{bufferSize: bufferSize}
}

func (s *DropTail) OnEnqueue(_ packet.Packet, queueLenBefore int) Action {
	if queueLenBefore >= s.bufferSize {
		return Drop
	}
	return Accept
}

func (s *DropTail) OnDequeue(_ int)         {}
func (s *DropTail) Update(_ int, _ float64) {}
func (s *DropTail) Name() string            { return "drop-tail" }
func (s *DropTail) Reset()                  {}
func (s *DropTail) CloneBoxed() Strategy    { return NewDropTail(s.bufferSize) }

// Fifo is an alias policy identical to DropTail: plain tail-drop FIFO
// behavior under a different registry name, matching the original
// implementation's distinct "fifo" registration alongside "drop-tail".
type Fifo struct {
	DropTail
}

// NewFifo returns a Fifo strategy bound to bufferSize.
func NewFifo(bufferSize int) *Fifo {
	return &Fifo{DropTail: DropTail{bufferSize: bufferSize}}
}

func (s *Fifo) Name() string         { return "fifo" }
func (s *Fifo) CloneBoxed() Strategy { return NewFifo(s.bufferSize) }
