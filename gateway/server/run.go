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
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"sqlgate/platform/catalog"
	"sqlgate/platform/config"
	"sqlgate/platform/connectors/hana"
	"sqlgate/platform/connectors/mysql"
	"sqlgate/platform/connectors/postgres"
	"sqlgate/platform/connectors/registry"
	"sqlgate/platform/connectors/snowflake"
	"sqlgate/platform/connectors/sqlserver"
	"sqlgate/platform/gateway"
	"sqlgate/platform/gateway/audit"
	"sqlgate/platform/gateway/policy"
	"sqlgate/platform/gateway/pool"
	"sqlgate/platform/gateway/ratelimit"
	"sqlgate/platform/gateway/sanitize"
)

// adapterFactories maps canonical backend kinds to their constructors.
var adapterFactories = map[string]registry.AdapterFactory{
	"postgres":  postgres.New,
	"mysql":     mysql.New,
	"sqlserver": sqlserver.New,
	"snowflake": snowflake.New,
	"hana":      hana.New,
}

const reaperInterval = 30 * time.Second

// Run loads configuration, wires every component and serves until
// SIGINT or SIGTERM, then shuts down in dependency order: HTTP server,
// pools, audit queue, adapters.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	reg, err := registry.Build(cfg.BackendConfigs(), adapterFactories)
	if err != nil {
		return err
	}
	defer reg.CloseAll()

	pools, err := pool.NewManager(reg, cfg.PoolConfigs())
	if err != nil {
		return err
	}

	warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
	pools.Warm(warmCtx)
	warmCancel()
	pools.StartReaper(reaperInterval)

	validator := policy.NewValidator(cfg.SecurityPolicy(), reg)

	rules, limits := cfg.SanitizeRules()
	sanitizer, err := sanitize.New(rules, limits)
	if err != nil {
		return err
	}

	var sink audit.Sink
	if cfg.Audit.DatabaseURL != "" {
		sink, err = audit.NewPostgresSink(cfg.Audit.DatabaseURL)
	} else {
		sink, err = audit.NewFileSink(cfg.AuditFilePath())
	}
	if err != nil {
		return fmt.Errorf("audit sink: %w", err)
	}

	auditor, err := audit.NewLogger(sink, cfg.Audit.QueueSize, cfg.Audit.Workers, cfg.AuditFallbackPath())
	if err != nil {
		return fmt.Errorf("audit logger: %w", err)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.PerMinute > 0 {
		limiter, err = ratelimit.New(cfg.RateLimit.RedisURL, cfg.RateLimit.PerMinute)
		if err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		defer limiter.Close()
	}

	metrics := gateway.NewMetrics(prometheus.DefaultRegisterer)
	dispatcher := gateway.NewDispatcher(validator, pools, reg, sanitizer, auditor, metrics)
	srv := New(dispatcher, reg, pools, catalog.Default(), limiter, cfg.Server.CORSOrigins)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[SERVER] SQLGate listening on %s (%d backends)", cfg.ListenAddr(), reg.Count())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Printf("[SERVER] Received %s, shutting down", sig)
	}

	grace := cfg.ShutdownGrace()
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("[SERVER] HTTP shutdown: %v", err)
	}
	if err := pools.DrainAll(ctx); err != nil {
		log.Printf("[SERVER] Pool drain: %v", err)
	}
	if err := auditor.Shutdown(ctx); err != nil {
		log.Printf("[SERVER] Audit shutdown: %v", err)
	}

	log.Printf("[SERVER] Shutdown complete")
	return nil
}
