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

package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresSink writes audit records to a dedicated postgres table. The
// audit database is separate from the governed backends and is never
// reachable through the query path.
type PostgresSink struct {
	db *sql.DB
}

const createAuditTable = `
CREATE TABLE IF NOT EXISTS audit_records (
	request_id    VARCHAR(64) PRIMARY KEY,
	timestamp     TIMESTAMPTZ NOT NULL,
	backend       VARCHAR(255) NOT NULL,
	caller        VARCHAR(255) NOT NULL,
	verdict       VARCHAR(64) NOT NULL,
	query_preview TEXT NOT NULL,
	query_hash    VARCHAR(16) NOT NULL,
	success       BOOLEAN NOT NULL,
	row_count     INTEGER NOT NULL,
	truncated     BOOLEAN NOT NULL,
	duration_ms   BIGINT NOT NULL,
	error_kind    VARCHAR(64)
);

CREATE INDEX IF NOT EXISTS idx_audit_records_timestamp ON audit_records(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_records_backend ON audit_records(backend);
CREATE INDEX IF NOT EXISTS idx_audit_records_verdict ON audit_records(verdict);
`

// NewPostgresSink connects to the audit database and ensures the
// schema exists.
func NewPostgresSink(databaseURL string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit: open postgres sink: %w", err)
	}
	if _, err := db.Exec(createAuditTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: create audit table: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

// NewPostgresSinkFromDB wraps an existing connection, mainly for tests.
func NewPostgresSinkFromDB(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// Write inserts one record.
func (s *PostgresSink) Write(ctx context.Context, rec *Record) error {
	const insert = `
		INSERT INTO audit_records (
			request_id, timestamp, backend, caller, verdict,
			query_preview, query_hash, success, row_count, truncated,
			duration_ms, error_kind
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.db.ExecContext(ctx, insert,
		rec.RequestID,
		rec.Timestamp,
		rec.Backend,
		rec.Caller,
		rec.Verdict,
		rec.QueryPreview,
		rec.QueryHash,
		rec.Success,
		rec.RowCount,
		rec.Truncated,
		rec.DurationMS,
		nullable(rec.ErrorKind),
	)
	if err != nil {
		return fmt.Errorf("audit: insert record: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
