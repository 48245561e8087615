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

package pool

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"sqlgate/platform/connectors/base"
)

// Lease is an exclusive checkout of one pooled connection. It belongs
// to the request that acquired it and never outlives one dispatcher
// invocation. Release and Discard are idempotent; whichever runs first
// wins and later calls are no-ops, so concurrent cleanup paths may both
// call them safely.
type Lease struct {
	ID         string
	Backend    base.Identity
	AcquiredAt time.Time

	pool *Pool
	conn base.Conn
	done atomic.Bool
}

func newLease(p *Pool, conn base.Conn) *Lease {
	return &Lease{
		ID:         uuid.NewString(),
		Backend:    p.cfg.Backend,
		AcquiredAt: time.Now(),
		pool:       p,
		conn:       conn,
	}
}

// Conn exposes the leased connection. Callers must not retain it past
// Release or Discard.
func (l *Lease) Conn() base.Conn {
	return l.conn
}

// Release returns the connection to the pool for reuse.
func (l *Lease) Release() {
	if l.done.CompareAndSwap(false, true) {
		l.pool.checkin(l, false)
	}
}

// Discard closes the connection instead of pooling it. Used after an
// execution timeout or any failure that leaves session state suspect.
func (l *Lease) Discard() {
	if l.done.CompareAndSwap(false, true) {
		l.pool.checkin(l, true)
	}
}
