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
Package logger provides structured JSON logging for SQLGate components.

# Overview

Log entries are emitted as single-line JSON on stdout, consumable by
CloudWatch, ELK or any other aggregation stack.

Each entry carries:
  - Timestamp (RFC3339Nano)
  - Level (DEBUG, INFO, WARN, ERROR)
  - Component name (gateway, pool, audit, ...)
  - Instance ID and container name
  - Caller (the requesting agent, when known)
  - Request ID for correlation
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("gateway")

Log with caller and request context:

	log.Info("agent-1", "req-456", "Query dispatched", map[string]any{
	    "backend": "postgres/reporting",
	})

Log with duration tracking:

	start := time.Now()
	// ... do work ...
	log.InfoWithDuration("agent-1", "req-456", "Request completed",
	    float64(time.Since(start).Milliseconds()), nil)

# Environment Variables

  - INSTANCE_ID: deployment instance identifier
  - HOSTNAME: container hostname (auto-detected)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
