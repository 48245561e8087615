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

// Package server exposes the gateway over HTTP. The wire layer maps
// requests to and from the dispatcher contract and nothing else: no
// policy logic, no pooling, no sanitization lives here.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"sqlgate/platform/catalog"
	"sqlgate/platform/connectors/base"
	"sqlgate/platform/connectors/registry"
	"sqlgate/platform/gateway"
	"sqlgate/platform/gateway/pool"
	"sqlgate/platform/gateway/ratelimit"
	"sqlgate/platform/shared/logger"
)

// Server wires the HTTP surface onto the dispatcher.
type Server struct {
	router     *mux.Router
	handler    http.Handler
	dispatcher *gateway.Dispatcher
	registry   *registry.Registry
	pools      *pool.Manager
	catalog    *catalog.Catalog
	limiter    *ratelimit.Limiter
	log        *logger.Logger

	// identities maps logical names to full identities so callers can
	// address a backend by its short name.
	identities map[string]base.Identity
}

// New assembles the router. limiter may be nil when rate limiting is
// disabled.
func New(d *gateway.Dispatcher, reg *registry.Registry, pools *pool.Manager,
	cat *catalog.Catalog, limiter *ratelimit.Limiter, corsOrigins []string) *Server {

	s := &Server{
		router:     mux.NewRouter(),
		dispatcher: d,
		registry:   reg,
		pools:      pools,
		catalog:    cat,
		limiter:    limiter,
		log:        logger.New("server"),
		identities: make(map[string]base.Identity),
	}
	// Short names resolve only while unambiguous: a logical name
	// shared by two kinds must be addressed in canonical kind/name
	// form, never decided by map iteration order.
	ambiguous := make(map[string]bool)
	for _, id := range reg.List() {
		if prev, ok := s.identities[id.LogicalName]; ok && prev != id {
			ambiguous[id.LogicalName] = true
		}
		s.identities[id.LogicalName] = id
	}
	for name := range ambiguous {
		delete(s.identities, name)
	}

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/v1/query", s.handleQuery).Methods("POST")
	s.router.HandleFunc("/v1/backends", s.handleBackends).Methods("GET")
	s.router.HandleFunc("/v1/catalog", s.handleCatalogERPs).Methods("GET")
	s.router.HandleFunc("/v1/catalog/{erp}", s.handleCatalogTools).Methods("GET")
	s.router.HandleFunc("/v1/catalog/{erp}/{tool}", s.handleCatalogQuery).Methods("POST")

	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	s.handler = c.Handler(s.router)

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// queryPayload is the POST /v1/query body.
type queryPayload struct {
	Backend   string `json:"backend"`
	Query     string `json:"query"`
	Params    []any  `json:"params,omitempty"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

// queryResponse wraps a dispatcher result with its correlation ID.
type queryResponse struct {
	RequestID  string   `json:"request_id"`
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	RowCount   int      `json:"row_count"`
	Truncated  bool     `json:"truncated"`
	DurationMS int64    `json:"duration_ms"`
}

type errorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var p queryPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "", "bad_request", "invalid request body")
		return
	}
	if p.Backend == "" || strings.TrimSpace(p.Query) == "" {
		writeError(w, http.StatusBadRequest, "", "bad_request", "backend and query are required")
		return
	}

	req := gateway.QueryRequest{
		Backend: s.resolveIdentity(p.Backend),
		Query:   p.Query,
		Params:  p.Params,
		Caller:  callerFrom(r),
		Timeout: time.Duration(p.TimeoutMS) * time.Millisecond,
	}
	s.dispatch(w, r, req)
}

// catalogQueryPayload is the POST /v1/catalog/{erp}/{tool} body.
type catalogQueryPayload struct {
	Backend   string         `json:"backend"`
	Args      map[string]any `json:"args,omitempty"`
	TimeoutMS int            `json:"timeout_ms,omitempty"`
}

func (s *Server) handleCatalogQuery(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var p catalogQueryPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "", "bad_request", "invalid request body")
		return
	}
	if p.Backend == "" {
		writeError(w, http.StatusBadRequest, "", "bad_request", "backend is required")
		return
	}

	id := s.resolveIdentity(p.Backend)
	q, err := s.catalog.Resolve(vars["erp"], vars["tool"], id.Kind, p.Args)
	if err != nil {
		writeError(w, http.StatusBadRequest, "", "catalog_error", err.Error())
		return
	}

	req := gateway.QueryRequest{
		Backend: id,
		Query:   q.SQL,
		Params:  q.Params,
		Caller:  callerFrom(r),
		Timeout: time.Duration(p.TimeoutMS) * time.Millisecond,
	}
	s.dispatch(w, r, req)
}

// dispatch runs the rate limit check and the dispatcher, then renders
// the outcome.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req gateway.QueryRequest) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	if s.limiter != nil {
		if err := s.limiter.Allow(r.Context(), req.Caller); err != nil {
			if errors.Is(err, ratelimit.ErrLimited) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "", "rate_limited",
					"request rate limit exceeded; retry later")
				return
			}
			// Limiter errors other than ErrLimited fail open inside
			// Allow, so anything else is unexpected but non-fatal.
			s.log.Warn(req.Caller, "", "Rate limiter error", map[string]any{"error": err.Error()})
		}
	}

	result, err := s.dispatcher.Execute(r.Context(), req)
	if err != nil {
		kind := gateway.KindOf(err)
		s.log.ErrorWithCode(req.Caller, req.RequestID, "Query failed",
			statusFor(kind), err, map[string]any{"backend": req.Backend.String()})
		writeError(w, statusFor(kind), req.RequestID, string(kind), err.Error())
		return
	}

	s.log.InfoWithDuration(req.Caller, req.RequestID, "Query completed",
		float64(time.Since(start).Milliseconds()), map[string]any{
			"backend":   req.Backend.String(),
			"row_count": result.RowCount,
			"truncated": result.Truncated,
		})

	writeJSON(w, http.StatusOK, queryResponse{
		RequestID:  req.RequestID,
		Columns:    result.Columns,
		Rows:       result.Rows,
		RowCount:   result.RowCount,
		Truncated:  result.Truncated,
		DurationMS: result.Duration.Milliseconds(),
	})
}

// backendStatus is one entry of GET /v1/backends.
type backendStatus struct {
	Name string     `json:"name"`
	Kind string     `json:"kind"`
	Pool pool.Stats `json:"pool"`
}

func (s *Server) handleBackends(w http.ResponseWriter, r *http.Request) {
	out := make([]backendStatus, 0, len(s.identities))
	for _, id := range s.registry.List() {
		st := backendStatus{Name: id.LogicalName, Kind: id.Kind}
		if p, ok := s.pools.Pool(id); ok {
			st.Pool = p.Stats()
		}
		out = append(out, st)
	}
	writeJSON(w, http.StatusOK, map[string]any{"backends": out})
}

func (s *Server) handleCatalogERPs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"erps": s.catalog.ERPs()})
}

func (s *Server) handleCatalogTools(w http.ResponseWriter, r *http.Request) {
	erp := mux.Vars(r)["erp"]
	tools, err := s.catalog.Tools(erp)
	if err != nil {
		writeError(w, http.StatusNotFound, "", "catalog_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"erp": erp, "tools": tools})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	checks := s.registry.HealthCheck(ctx)
	status := "healthy"
	backends := make(map[string]string, len(checks))
	for name, err := range checks {
		if err != nil {
			status = "degraded"
			backends[name] = "unreachable"
		} else {
			backends[name] = "ok"
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"service":   "sqlgate",
		"backends":  backends,
		"timestamp": time.Now().UTC(),
	})
}

// resolveIdentity accepts either a bare logical name or the canonical
// "kind/name" form. Unknown names pass through with an empty kind so
// the dispatcher records the rejection in the audit trail.
func (s *Server) resolveIdentity(name string) base.Identity {
	if id, ok := s.identities[name]; ok {
		return id
	}
	if kind, logical, found := strings.Cut(name, "/"); found {
		return base.Identity{Kind: kind, LogicalName: logical}
	}
	return base.Identity{LogicalName: name}
}

// callerFrom extracts the caller identity from the bearer token.
// Token verification belongs to the deployment's auth proxy; the
// gateway records the identity it was handed.
func callerFrom(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok && token != "" {
		return token
	}
	if caller := r.Header.Get("X-Caller-ID"); caller != "" {
		return caller
	}
	return "anonymous"
}

func statusFor(kind gateway.ErrorKind) int {
	switch kind {
	case gateway.ErrKindValidationRejected:
		return http.StatusForbidden
	case gateway.ErrKindUnknownBackend:
		return http.StatusNotFound
	case gateway.ErrKindPoolExhausted:
		return http.StatusServiceUnavailable
	case gateway.ErrKindExecutionTimeout:
		return http.StatusGatewayTimeout
	case gateway.ErrKindConnectionFailed, gateway.ErrKindBackendError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, requestID, kind, msg string) {
	writeJSON(w, code, errorResponse{RequestID: requestID, Kind: kind, Error: msg})
}
