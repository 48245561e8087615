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
	"database/sql"
	"database/sql/driver"
	"errors"
	"log"
	"os"
	"time"
)

// DefaultMaxQueryTimeout caps per-request execution deadlines when the
// backend config does not set one.
const DefaultMaxQueryTimeout = 120 * time.Second

// SQLAdapter implements Adapter for every backend whose driver speaks
// database/sql. The concrete backend packages (postgres, mysql,
// sqlserver, snowflake) only contribute the driver registration and the
// DSN; everything else is shared.
//
// The adapter disables database/sql's own idle pool so that the gateway
// pool manager is the single authority on connection lifetime: a Conn
// closed here is really closed, not silently recycled underneath us.
type SQLAdapter struct {
	identity Identity
	db       *sql.DB
	maxQuery time.Duration
	logger   *log.Logger
}

// NewSQLAdapter opens (but does not yet connect) a database/sql handle
// for the given driver and DSN. Connectivity is verified lazily by
// Ping or the first Open.
func NewSQLAdapter(driverName, dsn string, cfg BackendConfig) (*SQLAdapter, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, NewAdapterError(cfg.Identity, "Open", ErrKindConnection, "failed to open driver handle", err)
	}

	// The pool manager above us enforces max_size; database/sql must
	// not keep its own idle connections or cap concurrency.
	db.SetMaxOpenConns(0)
	db.SetMaxIdleConns(0)
	db.SetConnMaxLifetime(0)

	maxQuery := cfg.MaxQueryTimeout
	if maxQuery <= 0 {
		maxQuery = DefaultMaxQueryTimeout
	}

	return &SQLAdapter{
		identity: cfg.Identity,
		db:       db,
		maxQuery: maxQuery,
		logger:   log.New(os.Stdout, "[ADAPTER "+cfg.Identity.String()+"] ", log.LstdFlags),
	}, nil
}

// Identity returns the backend identity this adapter serves.
func (a *SQLAdapter) Identity() Identity {
	return a.identity
}

// MaxQueryTimeout returns the configured execution deadline cap.
func (a *SQLAdapter) MaxQueryTimeout() time.Duration {
	return a.maxQuery
}

// Open checks out one dedicated session from the driver.
func (a *SQLAdapter) Open(ctx context.Context) (Conn, error) {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return nil, NewAdapterError(a.identity, "Open", ErrKindConnection, "failed to open connection", err)
	}
	return &sqlConn{identity: a.identity, conn: conn}, nil
}

// Ping verifies backend reachability.
func (a *SQLAdapter) Ping(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return NewAdapterError(a.identity, "Ping", ErrKindConnection, "backend unreachable", err)
	}
	return nil
}

// Close releases the driver handle.
func (a *SQLAdapter) Close() error {
	if err := a.db.Close(); err != nil {
		return NewAdapterError(a.identity, "Close", ErrKindConnection, "failed to close driver handle", err)
	}
	return nil
}

// sqlConn wraps one *sql.Conn as a base.Conn.
type sqlConn struct {
	identity Identity
	conn     *sql.Conn
}

func (c *sqlConn) Execute(ctx context.Context, query string, params []any) (*RawRows, error) {
	rows, err := c.conn.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, c.classify("Execute", "query execution failed", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, c.classify("Execute", "failed to read columns", err)
	}

	out := &RawRows{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, c.classify("Execute", "failed to scan row", err)
		}
		for i, v := range values {
			// Text and varchar columns arrive as []byte from most
			// database/sql drivers.
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out.Rows = append(out.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, c.classify("Execute", "row iteration failed", err)
	}

	return out, nil
}

func (c *sqlConn) Ping(ctx context.Context) error {
	if err := c.conn.PingContext(ctx); err != nil {
		return c.classify("Ping", "liveness check failed", err)
	}
	return nil
}

func (c *sqlConn) Close() error {
	return c.conn.Close()
}

// classify maps a driver error onto the shared taxonomy. Deadline and
// cancellation dominate; a broken session classifies as connection;
// anything else the backend said about the statement itself is a
// query rejection.
func (c *sqlConn) classify(op, message string, err error) error {
	kind := ErrKindQueryRejected
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = ErrKindTimeout
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		kind = ErrKindConnection
	}
	return NewAdapterError(c.identity, op, kind, message, err)
}
