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

// Package sqlserver provides the Microsoft SQL Server backend adapter.
// It also serves Azure SQL, which speaks the same TDS protocol; Azure
// deployments set the encrypt option to "true" (the default here) and
// use the full server DNS name as host.
package sqlserver

import (
	"fmt"
	"net/url"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"sqlgate/platform/connectors/base"
)

// Kind is the backend kind this package serves.
const Kind = "sqlserver"

const defaultPort = 1433

// New creates a SQL Server adapter for the given backend config.
// Statements use @p1, @p2, ... positional placeholders.
func New(cfg base.BackendConfig) (base.Adapter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("sqlserver backend %s: host is required", cfg.Identity)
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	q := url.Values{}
	q.Set("database", cfg.Database)
	encrypt := cfg.Options["encrypt"]
	if encrypt == "" {
		encrypt = "true"
	}
	q.Set("encrypt", encrypt)
	if v := cfg.Options["trust_server_certificate"]; v != "" {
		q.Set("TrustServerCertificate", v)
	}
	if v := cfg.Options["app_name"]; v != "" {
		q.Set("app name", v)
	}

	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, port),
		RawQuery: q.Encode(),
	}

	return base.NewSQLAdapter("sqlserver", u.String(), cfg)
}
