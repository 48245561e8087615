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

// Package postgres provides the PostgreSQL backend adapter.
package postgres

import (
	"fmt"
	"net/url"

	_ "github.com/lib/pq" // PostgreSQL driver

	"sqlgate/platform/connectors/base"
)

// Kind is the backend kind this package serves.
const Kind = "postgres"

const defaultPort = 5432

// New creates a PostgreSQL adapter for the given backend config.
// Statements use $1, $2, ... positional placeholders.
func New(cfg base.BackendConfig) (base.Adapter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("postgres backend %s: host is required", cfg.Identity)
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, port),
		Path:   "/" + cfg.Database,
	}
	q := url.Values{}
	sslmode := cfg.Options["sslmode"]
	if sslmode == "" {
		sslmode = "require"
	}
	q.Set("sslmode", sslmode)
	if v := cfg.Options["search_path"]; v != "" {
		q.Set("search_path", v)
	}
	if v := cfg.Options["application_name"]; v != "" {
		q.Set("application_name", v)
	}
	u.RawQuery = q.Encode()

	return base.NewSQLAdapter("postgres", u.String(), cfg)
}
