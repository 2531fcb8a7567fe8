// Copyright 2025 James Ross
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flocknet/flocknet/internal/breaker"
	"github.com/flocknet/flocknet/internal/config"
	"github.com/flocknet/flocknet/internal/obs"
	"github.com/flocknet/flocknet/internal/packet"
	"github.com/flocknet/flocknet/internal/server"
)

// TCP delivers packets over one persistent connection per (agent, server)
// pair, framed with packet.WriteTo's length-prefixed gob encoding. Each
// agent owns its own *TCP instance, so the connection map here is already
// scoped to one agent and the per-(agent,server) granularity falls out
// naturally.
type TCP struct {
	endpoints    []string
	dialTimeout  time.Duration
	writeTimeout time.Duration
	cbCfg        config.CircuitBreaker

	mu    sync.Mutex
	conns map[int]net.Conn
	cbs   map[int]*breaker.CircuitBreaker

	log *zap.Logger
}

// NewTCP returns a TCP transport addressing endpoints (one per server,
// indexed the same way agents address servers), wrapping every connection
// in its own circuit breaker built from cbCfg.
func NewTCP(endpoints []string, dialTimeout, writeTimeout time.Duration, cbCfg config.CircuitBreaker, log *zap.Logger) *TCP {
	return &TCP{
		endpoints:    endpoints,
		dialTimeout:  dialTimeout,
		writeTimeout: writeTimeout,
		cbCfg:        cbCfg,
		conns:        make(map[int]net.Conn),
		cbs:          make(map[int]*breaker.CircuitBreaker),
		log:          log,
	}
}

func (t *TCP) breakerFor(serverIndex int) *breaker.CircuitBreaker {
	t.mu.Lock()
	defer t.mu.Unlock()
	cb, ok := t.cbs[serverIndex]
	if !ok {
		cb = breaker.New(t.cbCfg.Window, t.cbCfg.CooldownPeriod, t.cbCfg.FailureThreshold, t.cbCfg.MinSamples)
		t.cbs[serverIndex] = cb
	}
	return cb
}

func (t *TCP) connFor(serverIndex int) (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[serverIndex]; ok {
		return c, nil
	}
	if serverIndex < 0 || serverIndex >= len(t.endpoints) {
		return nil, fmt.Errorf("tcp transport: server index %d out of range", serverIndex)
	}
	c, err := net.DialTimeout("tcp", t.endpoints[serverIndex], t.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("tcp transport: dial %s: %w", t.endpoints[serverIndex], err)
	}
	t.conns[serverIndex] = c
	return c, nil
}

func (t *TCP) invalidate(serverIndex int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[serverIndex]; ok {
		_ = c.Close()
		delete(t.conns, serverIndex)
	}
}

// Deliver sends p to serverIndex over its persistent connection, dialing
// lazily on first use. On any failure the cached connection is dropped so
// the next call redials.
func (t *TCP) Deliver(ctx context.Context, serverIndex int, p packet.Packet) error {
	cb := t.breakerFor(serverIndex)
	if !cb.Allow() {
		return fmt.Errorf("tcp transport: circuit open for server %d", serverIndex)
	}

	conn, err := t.connFor(serverIndex)
	if err != nil {
		recordFailure(cb)
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else if t.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}

	if err := packet.WriteTo(conn, p); err != nil {
		recordFailure(cb)
		t.invalidate(serverIndex)
		return fmt.Errorf("tcp transport: write to server %d: %w", serverIndex, err)
	}

	cb.Record(true)
	return nil
}

// recordFailure feeds a failed delivery into cb and counts a breaker trip
// when that failure moves it to open.
func recordFailure(cb *breaker.CircuitBreaker) {
	wasOpen := cb.State() == breaker.Open
	cb.Record(false)
	if !wasOpen && cb.State() == breaker.Open {
		obs.CircuitBreakerTrips.Inc()
	}
}

// Close releases every cached connection.
func (t *TCP) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for idx, c := range t.conns {
		_ = c.Close()
		delete(t.conns, idx)
	}
}

// ListenAndServe runs a server's TCP acceptor: it binds addr, invokes
// ready (if non-nil) once the listener is accepting input, then for each
// accepted connection reads length-prefixed packets in a loop and hands
// each to srv.Enqueue, until ctx is canceled.
func ListenAndServe(ctx context.Context, addr string, srv *server.Server, ready func(), log *zap.Logger) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("tcp transport: listen %s: %w", addr, err)
	}
	if ready != nil {
		ready()
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("tcp accept error", obs.Err(err))
			continue
		}
		go serveConn(ctx, conn, srv, log)
	}
}

func serveConn(ctx context.Context, conn net.Conn, srv *server.Server, log *zap.Logger) {
	defer conn.Close()
	for ctx.Err() == nil {
		p, err := packet.ReadFrom(conn)
		if err != nil {
			if ctx.Err() == nil {
				log.Debug("tcp connection closed", obs.Err(err))
			}
			return
		}
		srv.Enqueue(p)
	}
}
