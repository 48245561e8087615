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

// Package audit appends one structured record per gateway request,
// whatever the outcome. Writes are asynchronous and never fail the
// caller: a sink outage degrades to a local fallback file, not to
// dropped query serving.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"sqlgate/platform/connectors/base"
)

// previewLimit bounds how much query text an audit record carries. The
// full text is represented by its hash.
const previewLimit = 100

// Record is one audit log entry. Append-only; never mutated after it
// is handed to the logger.
type Record struct {
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	Backend      string    `json:"backend"`
	Caller       string    `json:"caller"`
	Verdict      string    `json:"verdict"`
	QueryPreview string    `json:"query_preview"`
	QueryHash    string    `json:"query_hash"`
	Success      bool      `json:"success"`
	RowCount     int       `json:"row_count"`
	Truncated    bool      `json:"truncated"`
	DurationMS   int64     `json:"duration_ms"`
	ErrorKind    string    `json:"error_kind,omitempty"`
}

// NewRecord starts a record for one request, filling the fields known
// before dispatch. The preview is length-bounded and stripped of
// control characters so raw query text cannot corrupt the log stream.
func NewRecord(requestID string, backend base.Identity, caller, query string) *Record {
	preview := base.SanitizeLogString(query)
	if len(preview) > previewLimit {
		preview = preview[:previewLimit]
	}
	return &Record{
		RequestID:    requestID,
		Timestamp:    time.Now().UTC(),
		Backend:      backend.String(),
		Caller:       caller,
		QueryPreview: preview,
		QueryHash:    HashQuery(query),
	}
}

// HashQuery returns a short stable digest for query deduplication.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])[:16]
}
