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

package gateway

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable machine-readable classification carried by
// every gateway error. These strings are part of the API and the audit
// schema; do not rename them.
type ErrorKind string

const (
	ErrKindValidationRejected ErrorKind = "validation_rejected"
	ErrKindUnknownBackend     ErrorKind = "unknown_backend"
	ErrKindPoolExhausted      ErrorKind = "pool_exhausted"
	ErrKindConnectionFailed   ErrorKind = "connection_failed"
	ErrKindExecutionTimeout   ErrorKind = "execution_timeout"
	ErrKindBackendError       ErrorKind = "backend_error"
)

// Error is the typed outcome for every failed request. Message is safe
// to return to the caller; the underlying cause stays wrapped so
// connection strings and driver detail never leak into a response an
// agent might relay further.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the gateway error kind, or empty for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
