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
Package base defines the shared contract every SQLGate backend adapter
implements, plus the common error taxonomy the gateway reports upward.

# Adapter contract

An Adapter wraps one backend's native driver and exposes exactly the
capability set the gateway needs:

	type Adapter interface {
	    Open(ctx context.Context) (Conn, error)
	    Ping(ctx context.Context) error
	    Close() error
	    Identity() Identity
	}

	type Conn interface {
	    Execute(ctx context.Context, query string, params []any) (*RawRows, error)
	    Ping(ctx context.Context) error
	    Close() error
	}

One adapter implementation exists per backend kind (postgres, mysql,
sqlserver, snowflake). New backends are added by implementing Adapter,
never by branching on Kind inside the gateway.

# Connection ownership

Open hands out a dedicated session. The gateway's pool manager is the
only component that calls Open; each Conn is owned by exactly one lease
at a time and returns to the pool or is closed when the lease ends. A
Conn whose Execute was cancelled by deadline must be closed, not reused:
its session state is no longer trustworthy.

# Error taxonomy

All adapter failures are AdapterErrors carrying an ErrorKind of
connection, timeout, query_rejected or unknown. The gateway relies on
this classification to produce stable caller-visible outcomes; raw
driver error strings never leave the gateway uninspected.

# Thread safety

Adapter implementations must be safe for concurrent use. A Conn is not:
it belongs to one request at a time by construction.
*/
package base
