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
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"sqlgate/platform/connectors/base"
)

// ErrUnknownBackend is returned for acquires against an identity with
// no configured pool. The validator rejects these earlier; the manager
// keeps the check as a second line of defense.
var ErrUnknownBackend = errors.New("pool: unknown backend")

// AdapterSource resolves identities to adapters. Satisfied by
// registry.Registry.
type AdapterSource interface {
	Get(id base.Identity) (base.Adapter, bool)
}

// Manager owns one Pool per configured backend identity. Built once at
// startup, drained once at shutdown.
type Manager struct {
	pools      map[base.Identity]*Pool
	logger     *log.Logger
	stopReaper chan struct{}
	reaperWG   sync.WaitGroup
}

// NewManager builds pools for every config entry, resolving adapters
// from the source.
func NewManager(source AdapterSource, configs []Config) (*Manager, error) {
	m := &Manager{
		pools:      make(map[base.Identity]*Pool, len(configs)),
		logger:     log.New(os.Stdout, "[POOLMGR] ", log.LstdFlags),
		stopReaper: make(chan struct{}),
	}

	for _, cfg := range configs {
		adapter, ok := source.Get(cfg.Backend)
		if !ok {
			return nil, fmt.Errorf("pool config for unregistered backend %s", cfg.Backend)
		}
		if _, dup := m.pools[cfg.Backend]; dup {
			return nil, fmt.Errorf("duplicate pool config for backend %s", cfg.Backend)
		}
		p, err := New(adapter, cfg)
		if err != nil {
			return nil, err
		}
		m.pools[cfg.Backend] = p
	}

	return m, nil
}

// Warm pre-opens MinSize connections on every pool.
func (m *Manager) Warm(ctx context.Context) {
	for _, p := range m.pools {
		p.Warm(ctx)
	}
}

// StartReaper launches the background idle-TTL sweep.
func (m *Manager) StartReaper(interval time.Duration) {
	m.reaperWG.Add(1)
	go func() {
		defer m.reaperWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopReaper:
				return
			case <-ticker.C:
				for _, p := range m.pools {
					p.ReapIdle()
				}
			}
		}
	}()
}

// Acquire checks out a lease from the identity's pool.
func (m *Manager) Acquire(ctx context.Context, id base.Identity) (*Lease, error) {
	p, ok := m.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, id)
	}
	return p.Acquire(ctx)
}

// Pool returns the pool for an identity, mainly for stats export.
func (m *Manager) Pool(id base.Identity) (*Pool, bool) {
	p, ok := m.pools[id]
	return p, ok
}

// Stats snapshots every pool.
func (m *Manager) Stats() []Stats {
	out := make([]Stats, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, p.Stats())
	}
	return out
}

// DrainAll stops the reaper and drains every pool within ctx's
// deadline. Individual drain failures are collected, not short-circuited:
// shutdown should release as much as it can.
func (m *Manager) DrainAll(ctx context.Context) error {
	close(m.stopReaper)
	m.reaperWG.Wait()

	var errs []error
	for id, p := range m.pools {
		if err := p.Drain(ctx); err != nil {
			m.logger.Printf("Drain failed for %s: %v", id, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
