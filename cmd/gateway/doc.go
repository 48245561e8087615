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

/*
Command gateway runs the SQLGate query gateway service.

SQLGate sits between AI agents and the organization's SQL backends. It
validates every query against a read-only security policy, executes
approved queries over bounded per-backend connection pools, masks
sensitive columns before results leave the process, and writes one
audit record per request.

# Usage

	gateway [flags]

Flags:

	-config path        configuration file (default: sqlgate.yaml)
	-example-config     print an example configuration and exit

# Configuration

All backend credentials, pool sizes, policy settings and audit sinks
come from the YAML configuration file. Environment variables may be
referenced as ${VAR_NAME} or ${VAR_NAME:-default} anywhere in the file.

Generate a starting point:

	gateway -example-config > sqlgate.yaml

# Endpoints

	POST /v1/query                  execute a raw SQL query
	POST /v1/catalog/{erp}/{tool}   execute a named catalog template
	GET  /v1/catalog                list ERP systems
	GET  /v1/catalog/{erp}          list an ERP's tools
	GET  /v1/backends               list backends and pool occupancy
	GET  /healthz                   backend reachability
	GET  /metrics                   Prometheus metrics

# Shutdown

SIGINT/SIGTERM triggers a graceful shutdown: the HTTP listener stops,
in-flight queries finish within the configured grace period, pools
drain, and the audit queue flushes before exit.
*/
package main
