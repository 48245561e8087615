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

package base

import (
	"context"
	"time"
)

// Identity names one configured backend. Kind is the engine family
// (postgres, mysql, sqlserver, snowflake), LogicalName the deployment
// instance (e.g. "erp-reporting-prod"). Identity is the key for the
// adapter registry and the pool manager.
type Identity struct {
	Kind        string `json:"kind" yaml:"kind"`
	LogicalName string `json:"logical_name" yaml:"logical_name"`
}

// String returns the canonical "kind/logical_name" form used in logs,
// audit records and map keys.
func (id Identity) String() string {
	return id.Kind + "/" + id.LogicalName
}

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool {
	return id.Kind == "" && id.LogicalName == ""
}

// BackendConfig holds the connection settings for one backend instance.
// It is resolved from configuration at startup and immutable afterwards.
type BackendConfig struct {
	Identity Identity          `yaml:"identity"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Database string            `yaml:"database"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Options  map[string]string `yaml:"options"`

	// MaxQueryTimeout caps any per-request timeout. Zero means the
	// adapter default of 120s.
	MaxQueryTimeout time.Duration `yaml:"max_query_timeout"`
}

// Adapter wraps one backend's native driver. One implementation exists
// per backend kind; the gateway only ever sees this capability set and
// must never branch on Kind itself.
type Adapter interface {
	// Open establishes a single dedicated connection. The pool manager
	// is the only caller; each call yields a session owned by exactly
	// one lease at a time.
	Open(ctx context.Context) (Conn, error)

	// Ping verifies the backend is reachable without consuming a
	// pooled connection.
	Ping(ctx context.Context) error

	// Close releases adapter-level resources. Open connections handed
	// to the pool are closed by the pool, not here.
	Close() error

	Identity() Identity
}

// Conn is one live backend session. Execute must honor ctx cancellation
// by aborting the in-flight call; after a timeout the session state is
// not trustworthy and the owner is expected to Close rather than reuse.
type Conn interface {
	Execute(ctx context.Context, query string, params []any) (*RawRows, error)
	Ping(ctx context.Context) error
	Close() error
}

// RawRows is the unprocessed result of one Execute call. Column order
// and row order are preserved exactly as the driver returned them.
type RawRows struct {
	Columns []string
	Rows    [][]any
}
