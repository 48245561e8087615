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

// Package hana provides the SAP HANA backend adapter, the engine the
// S/4HANA catalog templates run against. Supports single-container
// deployments and MDC tenants (via the "tenant" option).
package hana

import (
	"fmt"
	"net/url"

	_ "github.com/SAP/go-hdb/driver" // SAP HANA driver

	"sqlgate/platform/connectors/base"
)

// Kind is the backend kind this package serves.
const Kind = "hana"

// defaultPort is the SQL port of a single-container system
// (3<instance>15 with instance 00).
const defaultPort = 30015

// New creates a SAP HANA adapter for the given backend config.
// Statements use ? positional placeholders. TLS is on unless the
// "encrypt" option is explicitly "false".
func New(cfg base.BackendConfig) (base.Adapter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("hana backend %s: host is required", cfg.Identity)
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	u := url.URL{
		Scheme: "hdb",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, port),
	}
	q := url.Values{}
	if v := cfg.Options["tenant"]; v != "" {
		q.Set("databaseName", v)
	}
	schema := cfg.Options["schema"]
	if schema == "" {
		schema = cfg.Database
	}
	if schema != "" {
		q.Set("defaultSchema", schema)
	}
	if cfg.Options["encrypt"] != "false" {
		q.Set("TLSServerName", cfg.Host)
	}
	u.RawQuery = q.Encode()

	return base.NewSQLAdapter("hdb", u.String(), cfg)
}
