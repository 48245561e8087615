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

package config

// Example returns a commented example configuration file.
func Example() string {
	return `# SQLGate Configuration
# Environment variables can be referenced using ${VAR_NAME} or
# ${VAR_NAME:-default} syntax.

version: "1.0"

server:
  listen_addr: ":8080"
  cors_origins:
    - "http://localhost:3000"
  shutdown_grace_ms: 10000

backends:
  reporting:
    kind: postgres
    enabled: true
    host: ${PG_HOST:-localhost}
    port: 5432
    database: analytics
    user: ${PG_USER:-sqlgate_ro}
    password: ${PG_PASSWORD}
    options:
      sslmode: require
    max_query_timeout_ms: 30000
    pool:
      min_size: 2
      max_size: 10
      acquire_timeout_ms: 2000
      idle_ttl_ms: 300000

  orders:
    kind: mysql
    enabled: false
    host: ${MYSQL_HOST}
    port: 3306
    database: orders
    user: ${MYSQL_USER}
    password: ${MYSQL_PASSWORD}
    pool:
      max_size: 5

  erp:
    kind: azure
    enabled: false
    host: ${AZURE_SQL_HOST}
    database: dynamics
    user: ${AZURE_SQL_USER}
    password: ${AZURE_SQL_PASSWORD}
    pool:
      max_size: 5

  s4hana:
    kind: hana
    enabled: false
    host: ${HANA_HOST}
    user: ${HANA_USER}
    password: ${HANA_PASSWORD}
    options:
      # MDC tenant database; omit for single-container systems.
      tenant: ${HANA_TENANT:-}
      schema: SAPHANADB
    pool:
      max_size: 5

policy:
  read_only: true
  procedure_allow_list:
    - sp_helpdb

sanitize:
  max_rows: 10000
  max_bytes: 4194304
  sensitive_columns:
    - column: password
      mode: secret
    - column: card_number
      mode: partial
      keep_suffix: 4

audit:
  # Set database_url for a postgres audit sink; otherwise records go
  # to file_path as NDJSON.
  database_url: ${AUDIT_DATABASE_URL}
  file_path: sqlgate_audit.ndjson
  fallback_path: sqlgate_audit_fallback.ndjson
  queue_size: 4096
  workers: 2

ratelimit:
  redis_url: ${REDIS_URL}
  per_minute: 120
`
}
