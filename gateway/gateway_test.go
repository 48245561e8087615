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

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sqlgate/platform/connectors/base"
	"sqlgate/platform/gateway/audit"
	"sqlgate/platform/gateway/policy"
	"sqlgate/platform/gateway/pool"
	"sqlgate/platform/gateway/sanitize"
)

var testBackend = base.Identity{Kind: "postgres", LogicalName: "reporting"}

// fakeConn returns canned rows, or blocks until the deadline when
// blockUntilDeadline is set.
type fakeConn struct {
	adapter            *fakeAdapter
	blockUntilDeadline bool
	execErr            error
}

func (c *fakeConn) Execute(ctx context.Context, query string, params []any) (*base.RawRows, error) {
	c.adapter.execs.Add(1)
	if c.blockUntilDeadline {
		<-ctx.Done()
		return nil, base.NewAdapterError(c.adapter.id, "execute", base.ErrKindTimeout,
			"query cancelled by deadline", ctx.Err())
	}
	if c.execErr != nil {
		return nil, c.execErr
	}
	return &base.RawRows{
		Columns: []string{"id", "name", "password"},
		Rows: [][]any{
			{1, "ada", "hunter2"},
			{2, "grace", "s3cret"},
		},
	}, nil
}

func (c *fakeConn) Ping(ctx context.Context) error { return nil }
func (c *fakeConn) Close() error                   { return nil }

type fakeAdapter struct {
	id    base.Identity
	opens atomic.Int64
	execs atomic.Int64

	mu       sync.Mutex
	nextConn *fakeConn
}

func (a *fakeAdapter) Open(ctx context.Context) (base.Conn, error) {
	a.opens.Add(1)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.nextConn != nil {
		c := a.nextConn
		a.nextConn = nil
		c.adapter = a
		return c, nil
	}
	return &fakeConn{adapter: a}, nil
}

func (a *fakeAdapter) Ping(ctx context.Context) error { return nil }
func (a *fakeAdapter) Close() error                   { return nil }
func (a *fakeAdapter) Identity() base.Identity        { return a.id }

func (a *fakeAdapter) stageConn(c *fakeConn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextConn = c
}

// testRegistry satisfies both pool.AdapterSource and policy.BackendSet.
type testRegistry map[base.Identity]base.Adapter

func (r testRegistry) Get(id base.Identity) (base.Adapter, bool) {
	a, ok := r[id]
	return a, ok
}

func (r testRegistry) Has(id base.Identity) bool {
	_, ok := r[id]
	return ok
}

// memorySink collects audit records in memory.
type memorySink struct {
	mu      sync.Mutex
	records []*audit.Record
}

func (s *memorySink) Write(_ context.Context, rec *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) snapshot() []*audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*audit.Record, len(s.records))
	copy(out, s.records)
	return out
}

type testGateway struct {
	dispatcher   *Dispatcher
	adapter      *fakeAdapter
	pools        *pool.Manager
	auditor      *audit.Logger
	sink         *memorySink
	fallbackPath string
}

func newTestGateway(t *testing.T, poolCfg pool.Config) *testGateway {
	t.Helper()

	adapter := &fakeAdapter{id: testBackend}
	reg := testRegistry{testBackend: adapter}

	poolCfg.Backend = testBackend
	pools, err := pool.NewManager(reg, []pool.Config{poolCfg})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	validator := policy.NewValidator(policy.DefaultPolicy(), reg)

	sanitizer, err := sanitize.New([]sanitize.Rule{
		{Column: "password", Mode: sanitize.MaskSecret},
	}, sanitize.Limits{MaxRows: 1000})
	if err != nil {
		t.Fatalf("sanitize.New: %v", err)
	}

	sink := &memorySink{}
	fallbackPath := filepath.Join(t.TempDir(), "fallback.ndjson")
	auditor, err := audit.NewLogger(sink, 256, 1, fallbackPath)
	if err != nil {
		t.Fatalf("audit.NewLogger: %v", err)
	}

	return &testGateway{
		dispatcher:   NewDispatcher(validator, pools, reg, sanitizer, auditor, nil),
		adapter:      adapter,
		pools:        pools,
		auditor:      auditor,
		sink:         sink,
		fallbackPath: fallbackPath,
	}
}

// auditCount shuts the logger down and counts records across the sink
// and the fallback file.
func (g *testGateway) auditCount(t *testing.T) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.auditor.Shutdown(ctx); err != nil {
		t.Fatalf("audit shutdown: %v", err)
	}

	n := len(g.sink.snapshot())
	f, err := os.Open(g.fallbackPath)
	if err != nil {
		t.Fatalf("open fallback: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec audit.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("bad fallback line: %v", err)
		}
		n++
	}
	return n
}

func defaultPoolCfg() pool.Config {
	return pool.Config{MaxSize: 2, AcquireTimeout: time.Second}
}

func TestExecute_Success(t *testing.T) {
	g := newTestGateway(t, defaultPoolCfg())

	res, err := g.dispatcher.Execute(context.Background(), QueryRequest{
		Backend: testBackend,
		Query:   "SELECT * FROM customers",
		Caller:  "agent-1",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if res.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", res.RowCount)
	}
	if res.Truncated {
		t.Error("Truncated = true for small result")
	}
	if res.Rows[0][2] != "****" || res.Rows[1][2] != "****" {
		t.Errorf("password column not masked: %v", res.Rows)
	}

	if got := g.auditCount(t); got != 1 {
		t.Fatalf("audit records = %d, want 1", got)
	}
	rec := g.sink.snapshot()[0]
	if !rec.Success {
		t.Error("audit record success = false")
	}
	if rec.Verdict != "allowed" {
		t.Errorf("audit verdict = %q, want allowed", rec.Verdict)
	}
	if rec.RowCount != 2 {
		t.Errorf("audit row_count = %d, want 2", rec.RowCount)
	}
}

func TestExecute_ReadOnlyRejection(t *testing.T) {
	g := newTestGateway(t, defaultPoolCfg())

	_, err := g.dispatcher.Execute(context.Background(), QueryRequest{
		Backend: testBackend,
		Query:   "DROP TABLE customers",
		Caller:  "agent-1",
	})
	if KindOf(err) != ErrKindValidationRejected {
		t.Fatalf("error kind = %q, want %q (err: %v)", KindOf(err), ErrKindValidationRejected, err)
	}

	// Rejection happens before any backend interaction.
	if g.adapter.opens.Load() != 0 || g.adapter.execs.Load() != 0 {
		t.Errorf("backend touched for rejected query: opens=%d execs=%d",
			g.adapter.opens.Load(), g.adapter.execs.Load())
	}

	if got := g.auditCount(t); got != 1 {
		t.Fatalf("audit records = %d, want 1", got)
	}
	rec := g.sink.snapshot()[0]
	if rec.Success {
		t.Error("audit record success = true for rejection")
	}
	if rec.Verdict != policy.DecisionRejectedReadOnly.String() {
		t.Errorf("audit verdict = %q, want %s", rec.Verdict, policy.DecisionRejectedReadOnly)
	}
	if rec.ErrorKind != string(ErrKindValidationRejected) {
		t.Errorf("audit error_kind = %q, want %s", rec.ErrorKind, ErrKindValidationRejected)
	}
}

func TestExecute_UnknownBackend(t *testing.T) {
	g := newTestGateway(t, defaultPoolCfg())

	_, err := g.dispatcher.Execute(context.Background(), QueryRequest{
		Backend: base.Identity{Kind: "oracle", LogicalName: "legacy"},
		Query:   "SELECT 1",
	})
	if KindOf(err) != ErrKindUnknownBackend {
		t.Errorf("error kind = %q, want %q", KindOf(err), ErrKindUnknownBackend)
	}
}

func TestExecute_PoolExhausted(t *testing.T) {
	cfg := defaultPoolCfg()
	cfg.MaxSize = 1
	cfg.AcquireTimeout = 200 * time.Millisecond
	g := newTestGateway(t, cfg)

	// Hold the only connection.
	lease, err := g.pools.Acquire(context.Background(), testBackend)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lease.Release()

	start := time.Now()
	_, err = g.dispatcher.Execute(context.Background(), QueryRequest{
		Backend: testBackend,
		Query:   "SELECT 1",
	})
	if KindOf(err) != ErrKindPoolExhausted {
		t.Fatalf("error kind = %q, want %q", KindOf(err), ErrKindPoolExhausted)
	}
	if elapsed := time.Since(start); elapsed < 180*time.Millisecond {
		t.Errorf("gave up after %v, want to wait out the acquire deadline", elapsed)
	}
	if g.adapter.execs.Load() != 0 {
		t.Error("backend executed for pool-timeout request")
	}
}

func TestExecute_TimeoutDiscardsConnection(t *testing.T) {
	cfg := defaultPoolCfg()
	cfg.MaxSize = 1
	g := newTestGateway(t, cfg)
	g.adapter.stageConn(&fakeConn{blockUntilDeadline: true})

	_, err := g.dispatcher.Execute(context.Background(), QueryRequest{
		Backend: testBackend,
		Query:   "SELECT pg_sleep_forever()",
		Timeout: 100 * time.Millisecond,
	})
	if KindOf(err) != ErrKindExecutionTimeout {
		t.Fatalf("error kind = %q, want %q (err: %v)", KindOf(err), ErrKindExecutionTimeout, err)
	}

	// The timed-out connection must not be reused: the next request
	// opens a fresh one.
	res, err := g.dispatcher.Execute(context.Background(), QueryRequest{
		Backend: testBackend,
		Query:   "SELECT * FROM customers",
	})
	if err != nil {
		t.Fatalf("Execute after timeout: %v", err)
	}
	if res.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", res.RowCount)
	}
	if g.adapter.opens.Load() != 2 {
		t.Errorf("opens = %d, want 2 (fresh connection after discard)", g.adapter.opens.Load())
	}
}

func TestExecute_BackendErrorIsWrapped(t *testing.T) {
	g := newTestGateway(t, defaultPoolCfg())
	rawMsg := "pq: relation \"secret_dsn\" does not exist at host=db.internal"
	g.adapter.stageConn(&fakeConn{execErr: base.NewAdapterError(
		testBackend, "execute", base.ErrKindQueryRejected, rawMsg, nil)})

	_, err := g.dispatcher.Execute(context.Background(), QueryRequest{
		Backend: testBackend,
		Query:   "SELECT * FROM missing",
	})
	if KindOf(err) != ErrKindBackendError {
		t.Fatalf("error kind = %q, want %q", KindOf(err), ErrKindBackendError)
	}
	// Raw driver text must not leak into the caller-facing message.
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("error is not a gateway error: %T", err)
	}
	if strings.Contains(gwErr.Message, "db.internal") {
		t.Errorf("caller message leaks backend detail: %q", gwErr.Message)
	}
}

func TestExecute_OneAuditRecordPerRequestUnderLoad(t *testing.T) {
	cfg := defaultPoolCfg()
	cfg.MaxSize = 4
	g := newTestGateway(t, cfg)

	const requests = 60
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			query := "SELECT * FROM customers"
			if i%3 == 0 {
				query = "DELETE FROM customers"
			}
			_, _ = g.dispatcher.Execute(context.Background(), QueryRequest{
				Backend:   testBackend,
				Query:     query,
				RequestID: fmt.Sprintf("req-%d", i),
			})
		}(i)
	}
	wg.Wait()

	if got := g.auditCount(t); got != requests {
		t.Errorf("audit records = %d, want %d", got, requests)
	}
}
