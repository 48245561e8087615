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

// Package snowflake provides the Snowflake data warehouse backend
// adapter. Host is the account identifier (e.g. "myorg-account1"), not
// a DNS name.
package snowflake

import (
	"fmt"

	sf "github.com/snowflakedb/gosnowflake"

	"sqlgate/platform/connectors/base"
)

// Kind is the backend kind this package serves.
const Kind = "snowflake"

// New creates a Snowflake adapter for the given backend config.
// Statements use ? positional placeholders.
func New(cfg base.BackendConfig) (base.Adapter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("snowflake backend %s: account identifier is required", cfg.Identity)
	}

	sc := sf.Config{
		Account:   cfg.Host,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Options["schema"],
		Warehouse: cfg.Options["warehouse"],
		Role:      cfg.Options["role"],
	}
	dsn, err := sf.DSN(&sc)
	if err != nil {
		return nil, fmt.Errorf("snowflake backend %s: invalid connection settings: %w", cfg.Identity, err)
	}

	return base.NewSQLAdapter("snowflake", dsn, cfg)
}
