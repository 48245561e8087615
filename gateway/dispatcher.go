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

// Package gateway dispatches validated query requests across pooled
// backend connections. The dispatcher is the orchestrating façade:
// validate, acquire, execute, sanitize, audit, in that order, with
// later stages never running once an earlier stage produced a
// terminal outcome.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"sqlgate/platform/connectors/base"
	"sqlgate/platform/gateway/audit"
	"sqlgate/platform/gateway/policy"
	"sqlgate/platform/gateway/pool"
	"sqlgate/platform/gateway/sanitize"
)

// QueryRequest is one caller request. Immutable once submitted.
type QueryRequest struct {
	// RequestID correlates the response, logs and audit record. A
	// missing ID is assigned on entry.
	RequestID string

	Backend base.Identity
	Query   string
	Params  []any

	// Timeout bounds backend execution. Clamped to the backend's
	// configured maximum; zero means use the maximum.
	Timeout time.Duration

	// Caller identifies the requesting agent for the audit trail.
	Caller string
}

// QueryResult is a successful outcome: sanitized rows plus enough
// metadata to tell a complete result from a truncated one.
type QueryResult struct {
	Columns   []string      `json:"columns"`
	Rows      [][]any       `json:"rows"`
	RowCount  int           `json:"row_count"`
	Duration  time.Duration `json:"duration_ns"`
	Truncated bool          `json:"truncated"`
}

// Dispatcher wires the validator, pools, sanitizer and audit logger
// into one request path. Safe for concurrent use; construct once at
// startup.
type Dispatcher struct {
	validator *policy.Validator
	pools     *pool.Manager
	adapters  pool.AdapterSource
	sanitizer *sanitize.Sanitizer
	auditor   *audit.Logger
	metrics   *Metrics
	logger    *log.Logger
}

// NewDispatcher assembles the request path. metrics may be nil.
func NewDispatcher(validator *policy.Validator, pools *pool.Manager, adapters pool.AdapterSource,
	sanitizer *sanitize.Sanitizer, auditor *audit.Logger, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		validator: validator,
		pools:     pools,
		adapters:  adapters,
		sanitizer: sanitizer,
		auditor:   auditor,
		metrics:   metrics,
		logger:    log.New(os.Stdout, "[GATEWAY] ", log.LstdFlags),
	}
}

// Execute runs one request to a terminal outcome. Every call emits
// exactly one audit record, success or not; the deferred write keeps
// that true on panic paths as well. The gateway never retries — the
// typed error kind tells the caller whether a retry is sensible.
func (d *Dispatcher) Execute(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	start := time.Now()
	rec := audit.NewRecord(req.RequestID, req.Backend, req.Caller, req.Query)

	outcome := "failed"
	defer func() {
		rec.DurationMS = time.Since(start).Milliseconds()
		d.auditor.Record(rec)
		d.metrics.observe(req.Backend.String(), outcome, time.Since(start), rec.RowCount)
	}()

	fail := func(kind ErrorKind, msg string, cause error) error {
		rec.ErrorKind = string(kind)
		outcome = string(kind)
		return newError(kind, msg, cause)
	}

	verdict := d.validator.Validate(req.Backend, req.Query)
	rec.Verdict = verdict.Decision.String()
	if !verdict.Allowed() {
		if verdict.Decision == policy.DecisionRejectedUnknownBackend {
			return nil, fail(ErrKindUnknownBackend,
				fmt.Sprintf("backend %s is not configured", req.Backend), nil)
		}
		return nil, fail(ErrKindValidationRejected,
			fmt.Sprintf("query rejected by policy (%s)", verdict.Rule), nil)
	}

	lease, err := d.pools.Acquire(ctx, req.Backend)
	if err != nil {
		switch {
		case errors.Is(err, pool.ErrExhausted):
			return nil, fail(ErrKindPoolExhausted,
				fmt.Sprintf("no connection available for %s before the deadline; retry later", req.Backend), err)
		case errors.Is(err, pool.ErrUnknownBackend):
			return nil, fail(ErrKindUnknownBackend,
				fmt.Sprintf("backend %s has no configured pool", req.Backend), err)
		default:
			return nil, fail(ErrKindConnectionFailed,
				fmt.Sprintf("could not open a connection to %s", req.Backend), err)
		}
	}
	// Idempotent: a no-op when a failure path already discarded.
	defer lease.Release()

	execCtx, cancel := context.WithTimeout(ctx, d.execTimeout(req.Backend, req.Timeout))
	defer cancel()

	raw, err := lease.Conn().Execute(execCtx, req.Query, req.Params)
	if err != nil {
		switch base.KindOf(err) {
		case base.ErrKindTimeout:
			// Session state is no longer trustworthy after a
			// cancelled call; the connection must not be reused.
			lease.Discard()
			return nil, fail(ErrKindExecutionTimeout,
				fmt.Sprintf("execution exceeded its deadline on %s", req.Backend), err)
		case base.ErrKindConnection:
			lease.Discard()
			return nil, fail(ErrKindConnectionFailed,
				fmt.Sprintf("connection to %s failed during execution", req.Backend), err)
		default:
			d.logger.Printf("Backend %s rejected request %s: %v", req.Backend, req.RequestID, err)
			return nil, fail(ErrKindBackendError,
				fmt.Sprintf("backend %s rejected the query", req.Backend), err)
		}
	}

	rows, truncated := d.sanitizer.Apply(raw.Columns, raw.Rows)
	result := &QueryResult{
		Columns:   raw.Columns,
		Rows:      rows,
		RowCount:  len(rows),
		Duration:  time.Since(start),
		Truncated: truncated,
	}

	rec.Success = true
	rec.RowCount = result.RowCount
	rec.Truncated = truncated
	outcome = "success"
	return result, nil
}

// execTimeout clamps the requested timeout to the backend's configured
// maximum. Zero or oversized requests get the maximum.
func (d *Dispatcher) execTimeout(id base.Identity, requested time.Duration) time.Duration {
	max := base.DefaultMaxQueryTimeout
	if adapter, ok := d.adapters.Get(id); ok {
		if capped, ok := adapter.(interface{ MaxQueryTimeout() time.Duration }); ok {
			if m := capped.MaxQueryTimeout(); m > 0 {
				max = m
			}
		}
	}
	if requested <= 0 || requested > max {
		return max
	}
	return requested
}
