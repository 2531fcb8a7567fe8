// Copyright 2025 James Ross
package strategy

import "github.com/flocknet/flocknet/internal/packet"

// packetDeque is a minimal tail-insert/head-remove FIFO used by the
// strategies that own their storage (CoDel, FQ-CoDel) instead of relying
// on the server's generic buffer.
type packetDeque struct {
	items []packet.Packet
}

func (d *packetDeque) pushBack(p packet.Packet) {
	d.items = append(d.items, p)
}

func (d *packetDeque) front() (packet.Packet, bool) {
	if len(d.items) == 0 {
		return packet.Packet{}, false
	}
	return d.items[0], true
}

func (d *packetDeque) popFront() (packet.Packet, bool) {
	if len(d.items) == 0 {
		return packet.Packet{}, false
	}
	p := d.items[0]
	d.items = d.items[1:]
	return p, true
}

func (d *packetDeque) len() int {
	return len(d.items)
}

func (d *packetDeque) reset() {
	d.items = nil
}
