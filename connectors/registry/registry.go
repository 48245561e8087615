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

// Package registry holds the set of backend adapters active for the
// process lifetime. The registry is built once at startup from resolved
// configuration and is immutable afterwards; there are no ambient
// singletons and no runtime registration.
package registry

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"sqlgate/platform/connectors/base"
)

// AdapterFactory builds an adapter for one backend kind.
type AdapterFactory func(cfg base.BackendConfig) (base.Adapter, error)

// Registry maps backend identities to their adapters. Reads are
// lock-free because the map never changes after Build returns.
type Registry struct {
	adapters map[base.Identity]base.Adapter
	logger   *log.Logger
}

// Build constructs adapters for every configured backend. Unknown kinds
// and adapter construction failures abort startup: a gateway that
// silently dropped a configured backend would later misreport requests
// for it as unknown-backend rejections.
func Build(configs []base.BackendConfig, factories map[string]AdapterFactory) (*Registry, error) {
	r := &Registry{
		adapters: make(map[base.Identity]base.Adapter, len(configs)),
		logger:   log.New(os.Stdout, "[REGISTRY] ", log.LstdFlags),
	}

	for _, cfg := range configs {
		if cfg.Identity.IsZero() {
			return nil, fmt.Errorf("backend config without identity")
		}
		if _, dup := r.adapters[cfg.Identity]; dup {
			return nil, fmt.Errorf("duplicate backend identity %s", cfg.Identity)
		}
		factory, ok := factories[cfg.Identity.Kind]
		if !ok {
			return nil, fmt.Errorf("backend %s: unsupported kind %q", cfg.Identity, cfg.Identity.Kind)
		}
		adapter, err := factory(cfg)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", cfg.Identity, err)
		}
		r.adapters[cfg.Identity] = adapter
		r.logger.Printf("Registered backend %s", cfg.Identity)
	}

	return r, nil
}

// Get returns the adapter for an identity, or false when the identity
// is not part of the active set.
func (r *Registry) Get(id base.Identity) (base.Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// Has reports whether an identity is registered.
func (r *Registry) Has(id base.Identity) bool {
	_, ok := r.adapters[id]
	return ok
}

// List returns all registered identities in stable order.
func (r *Registry) List() []base.Identity {
	ids := make([]base.Identity, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Count returns the number of registered backends.
func (r *Registry) Count() int {
	return len(r.adapters)
}

// HealthCheck pings every backend and returns reachability per
// identity, keyed by the canonical identity string.
func (r *Registry) HealthCheck(ctx context.Context) map[string]error {
	results := make(map[string]error, len(r.adapters))
	for id, adapter := range r.adapters {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := adapter.Ping(pingCtx)
		cancel()
		if err != nil {
			r.logger.Printf("Health check failed for %s: %v", id, err)
		}
		results[id.String()] = err
	}
	return results
}

// CloseAll closes every adapter. Called during shutdown after the pool
// manager has drained.
func (r *Registry) CloseAll() {
	for id, adapter := range r.adapters {
		if err := adapter.Close(); err != nil {
			r.logger.Printf("Error closing adapter %s: %v", id, err)
		}
	}
}
