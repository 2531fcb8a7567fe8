// Copyright 2025 James Ross
// Package transport implements the two ways an agent can reach a server:
// Local calls straight into the in-process server engine; TCP serializes
// packets over a persistent per-(agent,server) connection.
package transport

import (
	"context"
	"fmt"

	"github.com/flocknet/flocknet/internal/packet"
	"github.com/flocknet/flocknet/internal/server"
)

// Local delivers packets by calling directly into the server engines
// running in the same process. It is the default transport.kind.
type Local struct {
	servers []*server.Server
}

// NewLocal binds a Local transport to the given servers, indexed exactly
// as agents address them.
func NewLocal(servers []*server.Server) *Local {
	return &Local{servers: servers}
}

// Deliver enqueues p on the addressed server. A strategy Drop decision is
// not a delivery failure: the packet reached the server and its drop is
// already counted there, so surfacing it here would double-count it. An
// error means the transport itself could not hand the packet over.
func (l *Local) Deliver(_ context.Context, serverIndex int, p packet.Packet) error {
	if serverIndex < 0 || serverIndex >= len(l.servers) {
		return fmt.Errorf("local transport: server index %d out of range", serverIndex)
	}
	l.servers[serverIndex].Enqueue(p)
	return nil
}
