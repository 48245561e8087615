// Copyright 2025 SQLGate Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pool manages bounded per-backend connection pools. Each pool
// hands out exclusive leases over adapter connections; the pool is the
// only component that opens, reuses or closes backend connections.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"sqlgate/platform/connectors/base"
)

var (
	// ErrExhausted is returned when no connection became available
	// before the acquire deadline. Retryable by the caller.
	ErrExhausted = errors.New("pool: exhausted, no connection available before deadline")

	// ErrClosed is returned for acquires against a drained pool.
	ErrClosed = errors.New("pool: closed")
)

// Config sizes one backend's pool.
type Config struct {
	Backend        base.Identity
	MinSize        int
	MaxSize        int
	AcquireTimeout time.Duration
	IdleTTL        time.Duration
}

// Validate enforces 0 <= min <= max and max > 0.
func (c Config) Validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("pool %s: max_size must be positive, got %d", c.Backend, c.MaxSize)
	}
	if c.MinSize < 0 || c.MinSize > c.MaxSize {
		return fmt.Errorf("pool %s: min_size %d outside [0, %d]", c.Backend, c.MinSize, c.MaxSize)
	}
	return nil
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Backend base.Identity
	Leased  int
	Idle    int
	MaxSize int
}

type idleConn struct {
	conn  base.Conn
	since time.Time
}

// Pool owns the live connections for one backend identity.
//
// Accounting: tokens (a buffered channel of capacity MaxSize) bound the
// number of leases; connections are only opened while holding a token,
// and released connections are pushed to the idle list before their
// token is freed. Together these keep live connections (leased + idle)
// at or below MaxSize at all times.
type Pool struct {
	cfg     Config
	adapter base.Adapter
	logger  *log.Logger

	tokens chan struct{}

	mu     sync.Mutex
	idle   []idleConn
	leased map[*Lease]struct{}
	closed bool
}

// New creates a pool for one backend. No connections are opened until
// Warm or the first Acquire.
func New(adapter base.Adapter, cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pool{
		cfg:     cfg,
		adapter: adapter,
		logger:  log.New(os.Stdout, "[POOL "+cfg.Backend.String()+"] ", log.LstdFlags),
		tokens:  make(chan struct{}, cfg.MaxSize),
		leased:  make(map[*Lease]struct{}),
	}, nil
}

// Warm opens MinSize connections up front so the first requests do not
// pay connection setup latency. Failures are logged, not fatal: the
// backend may simply not be up yet.
func (p *Pool) Warm(ctx context.Context) {
	for i := 0; i < p.cfg.MinSize; i++ {
		conn, err := p.adapter.Open(ctx)
		if err != nil {
			p.logger.Printf("Warm-up open failed: %v", err)
			return
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = conn.Close()
			return
		}
		p.idle = append(p.idle, idleConn{conn: conn, since: time.Now()})
		p.mu.Unlock()
	}
}

// Acquire checks out one connection. It returns an idle connection when
// one is available and alive, opens a new one while under MaxSize, and
// otherwise blocks until a release or the deadline. The deadline is the
// earlier of ctx's and the configured AcquireTimeout. Checkout never
// returns a connection known to be dead: idle candidates past IdleTTL
// are closed, and candidates failing a liveness ping are replaced.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if p.isClosed() {
		return nil, ErrClosed
	}

	if p.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	select {
	case p.tokens <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w (backend %s)", ErrExhausted, p.cfg.Backend)
	}

	lease, err := p.leaseWithToken(ctx)
	if err != nil {
		<-p.tokens
		return nil, err
	}
	return lease, nil
}

// leaseWithToken turns a held token into a lease. The token is owned by
// the caller and returned by the caller on error.
func (p *Pool) leaseWithToken(ctx context.Context) (*Lease, error) {
	for {
		conn, ok := p.popIdle()
		if !ok {
			break
		}
		if err := conn.Ping(ctx); err != nil {
			// Dead on checkout: discard and look again.
			p.logger.Printf("Discarding dead idle connection: %v", err)
			_ = conn.Close()
			continue
		}
		return p.registerLease(conn)
	}

	conn, err := p.adapter.Open(ctx)
	if err != nil {
		return nil, err
	}
	return p.registerLease(conn)
}

// popIdle removes and returns the most recently used idle connection,
// closing any that sat idle past IdleTTL on the way.
func (p *Pool) popIdle() (base.Conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.idle) > 0 {
		last := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if p.cfg.IdleTTL > 0 && time.Since(last.since) > p.cfg.IdleTTL {
			_ = last.conn.Close()
			continue
		}
		return last.conn, true
	}
	return nil, false
}

func (p *Pool) registerLease(conn base.Conn) (*Lease, error) {
	lease := newLease(p, conn)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = conn.Close()
		return nil, ErrClosed
	}
	p.leased[lease] = struct{}{}
	return lease, nil
}

// checkin returns a leased connection. discard closes it instead of
// pooling it (timeouts, broken sessions). Idle push happens before the
// token is freed; Acquire depends on that ordering.
func (p *Pool) checkin(l *Lease, discard bool) {
	p.mu.Lock()
	delete(p.leased, l)
	if discard || p.closed {
		p.mu.Unlock()
		_ = l.conn.Close()
	} else {
		p.idle = append(p.idle, idleConn{conn: l.conn, since: time.Now()})
		p.mu.Unlock()
	}
	<-p.tokens
}

// ReapIdle closes idle connections past IdleTTL. Called periodically by
// the manager so stale connections do not survive quiet periods.
func (p *Pool) ReapIdle() {
	if p.cfg.IdleTTL <= 0 {
		return
	}
	p.mu.Lock()
	kept := p.idle[:0]
	var stale []base.Conn
	for _, ic := range p.idle {
		if time.Since(ic.since) > p.cfg.IdleTTL {
			stale = append(stale, ic.conn)
		} else {
			kept = append(kept, ic)
		}
	}
	p.idle = kept
	p.mu.Unlock()

	for _, conn := range stale {
		_ = conn.Close()
	}
	if len(stale) > 0 {
		p.logger.Printf("Reaped %d idle connection(s)", len(stale))
	}
}

// Stats reports current occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Backend: p.cfg.Backend,
		Leased:  len(p.leased),
		Idle:    len(p.idle),
		MaxSize: p.cfg.MaxSize,
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Drain shuts the pool down: new acquires fail immediately, idle
// connections close now, and outstanding leases get until ctx's
// deadline to come back before being force-closed.
func (p *Pool) Drain(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, ic := range idle {
		_ = ic.conn.Close()
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		p.mu.Lock()
		outstanding := len(p.leased)
		p.mu.Unlock()
		if outstanding == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			// Grace period over: force-close whatever is still out.
			p.mu.Lock()
			remaining := make([]*Lease, 0, len(p.leased))
			for l := range p.leased {
				remaining = append(remaining, l)
			}
			p.mu.Unlock()
			for _, l := range remaining {
				l.Discard()
			}
			p.logger.Printf("Force-closed %d leaked lease(s) on drain", len(remaining))
			return fmt.Errorf("pool %s: drain grace period elapsed with %d lease(s) outstanding",
				p.cfg.Backend, len(remaining))
		case <-ticker.C:
		}
	}
}
