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

// Package mysql provides the MySQL backend adapter.
package mysql

import (
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"sqlgate/platform/connectors/base"
)

// Kind is the backend kind this package serves.
const Kind = "mysql"

const defaultPort = 3306

// New creates a MySQL adapter for the given backend config.
// Statements use ? positional placeholders.
func New(cfg base.BackendConfig) (base.Adapter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mysql backend %s: host is required", cfg.Identity)
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	dc := driver.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = fmt.Sprintf("%s:%d", cfg.Host, port)
	dc.DBName = cfg.Database
	dc.ParseTime = true
	dc.Timeout = 10 * time.Second
	if v := cfg.Options["tls"]; v != "" {
		dc.TLSConfig = v
	}
	if v := cfg.Options["collation"]; v != "" {
		dc.Collation = v
	}

	return base.NewSQLAdapter("mysql", dc.FormatDSN(), cfg)
}
