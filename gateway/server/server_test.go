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

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlgate/platform/catalog"
	"sqlgate/platform/connectors/base"
	"sqlgate/platform/connectors/registry"
	"sqlgate/platform/gateway"
	"sqlgate/platform/gateway/audit"
	"sqlgate/platform/gateway/policy"
	"sqlgate/platform/gateway/pool"
	"sqlgate/platform/gateway/ratelimit"
	"sqlgate/platform/gateway/sanitize"
)

type fakeConn struct{}

func (c *fakeConn) Execute(ctx context.Context, query string, params []any) (*base.RawRows, error) {
	return &base.RawRows{
		Columns: []string{"id", "name", "api_key"},
		Rows: [][]any{
			{1, "alpha", "sk-12345678"},
			{2, "beta", "sk-87654321"},
		},
	}, nil
}

func (c *fakeConn) Ping(ctx context.Context) error { return nil }
func (c *fakeConn) Close() error                   { return nil }

type fakeAdapter struct {
	id base.Identity
}

func (a *fakeAdapter) Open(ctx context.Context) (base.Conn, error) { return &fakeConn{}, nil }
func (a *fakeAdapter) Ping(ctx context.Context) error              { return nil }
func (a *fakeAdapter) Close() error                                { return nil }
func (a *fakeAdapter) Identity() base.Identity                     { return a.id }

type dropSink struct{}

func (dropSink) Write(ctx context.Context, rec *audit.Record) error { return nil }
func (dropSink) Close() error                                       { return nil }

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *Server {
	t.Helper()

	id := base.Identity{Kind: "postgres", LogicalName: "reporting"}
	reg, err := registry.Build(
		[]base.BackendConfig{{Identity: id, Host: "localhost"}},
		map[string]registry.AdapterFactory{
			"postgres": func(cfg base.BackendConfig) (base.Adapter, error) {
				return &fakeAdapter{id: cfg.Identity}, nil
			},
		},
	)
	require.NoError(t, err)

	pools, err := pool.NewManager(reg, []pool.Config{{
		Backend:        id,
		MaxSize:        2,
		AcquireTimeout: 250 * time.Millisecond,
	}})
	require.NoError(t, err)

	validator := policy.NewValidator(policy.DefaultPolicy(), reg)

	sanitizer, err := sanitize.New(
		[]sanitize.Rule{{Column: "api_key", Mode: sanitize.MaskSecret}},
		sanitize.Limits{MaxRows: 100},
	)
	require.NoError(t, err)

	auditor, err := audit.NewLogger(dropSink{}, 16, 1, filepath.Join(t.TempDir(), "fallback.ndjson"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = auditor.Shutdown(context.Background()) })

	d := gateway.NewDispatcher(validator, pools, reg, sanitizer, auditor, nil)
	return New(d, reg, pools, catalog.Default(), limiter, nil)
}

func postJSON(t *testing.T, h http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestQuery_SuccessMasksSensitiveColumns(t *testing.T) {
	s := newTestServer(t, nil)

	rr := postJSON(t, s.Handler(), "/v1/query", queryPayload{
		Backend: "reporting",
		Query:   "SELECT id, name, api_key FROM accounts",
	}, map[string]string{"Authorization": "Bearer agent-7"})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp queryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, 2, resp.RowCount)
	assert.Equal(t, []string{"id", "name", "api_key"}, resp.Columns)
	for _, row := range resp.Rows {
		assert.Equal(t, "****", row[2])
	}
}

func TestQuery_ReadOnlyRejection(t *testing.T) {
	s := newTestServer(t, nil)

	rr := postJSON(t, s.Handler(), "/v1/query", queryPayload{
		Backend: "reporting",
		Query:   "DELETE FROM accounts",
	}, nil)

	require.Equal(t, http.StatusForbidden, rr.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, string(gateway.ErrKindValidationRejected), resp.Kind)
	assert.NotContains(t, resp.Error, "DELETE FROM accounts")
}

func TestQuery_UnknownBackend(t *testing.T) {
	s := newTestServer(t, nil)

	rr := postJSON(t, s.Handler(), "/v1/query", queryPayload{
		Backend: "warehouse-42",
		Query:   "SELECT 1",
	}, nil)

	require.Equal(t, http.StatusNotFound, rr.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, string(gateway.ErrKindUnknownBackend), resp.Kind)
}

func TestQuery_BadRequestBody(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postJSON(t, s.Handler(), "/v1/query", queryPayload{Backend: "reporting"}, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestQuery_RateLimited(t *testing.T) {
	limiter, err := ratelimit.New("", 2)
	require.NoError(t, err)
	s := newTestServer(t, limiter)

	headers := map[string]string{"Authorization": "Bearer burst-caller"}
	body := queryPayload{Backend: "reporting", Query: "SELECT 1"}

	for i := 0; i < 2; i++ {
		rr := postJSON(t, s.Handler(), "/v1/query", body, headers)
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i)
	}

	rr := postJSON(t, s.Handler(), "/v1/query", body, headers)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	// A different caller has its own window.
	rr = postJSON(t, s.Handler(), "/v1/query", body, map[string]string{"Authorization": "Bearer other"})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestQuery_AmbiguousLogicalNameRequiresCanonicalForm(t *testing.T) {
	pg := base.Identity{Kind: "postgres", LogicalName: "metrics"}
	my := base.Identity{Kind: "mysql", LogicalName: "metrics"}
	factory := func(cfg base.BackendConfig) (base.Adapter, error) {
		return &fakeAdapter{id: cfg.Identity}, nil
	}
	reg, err := registry.Build(
		[]base.BackendConfig{
			{Identity: pg, Host: "localhost"},
			{Identity: my, Host: "localhost"},
		},
		map[string]registry.AdapterFactory{"postgres": factory, "mysql": factory},
	)
	require.NoError(t, err)

	pools, err := pool.NewManager(reg, []pool.Config{
		{Backend: pg, MaxSize: 1, AcquireTimeout: 250 * time.Millisecond},
		{Backend: my, MaxSize: 1, AcquireTimeout: 250 * time.Millisecond},
	})
	require.NoError(t, err)

	sanitizer, err := sanitize.New(nil, sanitize.Limits{MaxRows: 100})
	require.NoError(t, err)
	auditor, err := audit.NewLogger(dropSink{}, 16, 1, filepath.Join(t.TempDir(), "fallback.ndjson"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = auditor.Shutdown(context.Background()) })

	d := gateway.NewDispatcher(policy.NewValidator(policy.DefaultPolicy(), reg), pools, reg, sanitizer, auditor, nil)
	s := New(d, reg, pools, catalog.Default(), nil, nil)

	// The bare name is ambiguous and must not resolve to either backend.
	rr := postJSON(t, s.Handler(), "/v1/query", queryPayload{
		Backend: "metrics",
		Query:   "SELECT 1",
	}, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code, rr.Body.String())

	// The canonical forms still address each backend explicitly.
	for _, backend := range []string{"postgres/metrics", "mysql/metrics"} {
		rr := postJSON(t, s.Handler(), "/v1/query", queryPayload{
			Backend: backend,
			Query:   "SELECT 1",
		}, nil)
		assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}
}

func TestBackends_ListsPoolStats(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/backends", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Backends []backendStatus `json:"backends"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Backends, 1)
	assert.Equal(t, "reporting", resp.Backends[0].Name)
	assert.Equal(t, "postgres", resp.Backends[0].Kind)
	assert.Equal(t, 2, resp.Backends[0].Pool.MaxSize)
}

func TestCatalog_ListAndResolve(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/catalog", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "dynamics365")

	req = httptest.NewRequest(http.MethodGet, "/v1/catalog/sap_s4hana", nil)
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "get_financial_summary")

	req = httptest.NewRequest(http.MethodGet, "/v1/catalog/unknown_erp", nil)
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCatalogQuery_Executes(t *testing.T) {
	s := newTestServer(t, nil)

	rr := postJSON(t, s.Handler(), "/v1/catalog/dynamics365/get_sales_pipeline", catalogQueryPayload{
		Backend: "reporting",
		Args:    map[string]any{"date_range_days": 30},
	}, nil)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp queryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.RowCount)
}

func TestCatalogQuery_MissingRequiredArg(t *testing.T) {
	s := newTestServer(t, nil)

	rr := postJSON(t, s.Handler(), "/v1/catalog/sap_s4hana/get_financial_summary", catalogQueryPayload{
		Backend: "reporting",
		Args:    map[string]any{"company_code": "1000"},
	}, nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "fiscal_year")
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Status   string            `json:"status"`
		Backends map[string]string `json:"backends"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "ok", resp.Backends["postgres/reporting"])
}

func TestCallerFrom(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
	assert.Equal(t, "anonymous", callerFrom(req))

	req.Header.Set("X-Caller-ID", "batch-job")
	assert.Equal(t, "batch-job", callerFrom(req))

	req.Header.Set("Authorization", "Bearer agent-1")
	assert.Equal(t, "agent-1", callerFrom(req))
}
