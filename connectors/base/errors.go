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

package base

import (
	"context"
	"errors"
)

// ErrorKind classifies adapter failures into the shared taxonomy the
// gateway reports to callers. Raw driver error text stays inside the
// AdapterError and is never surfaced uninspected.
type ErrorKind string

const (
	ErrKindConnection    ErrorKind = "connection"
	ErrKindTimeout       ErrorKind = "timeout"
	ErrKindQueryRejected ErrorKind = "query_rejected"
	ErrKindUnknown       ErrorKind = "unknown"
)

// AdapterError is the shared error type all backend adapters return.
type AdapterError struct {
	Backend Identity
	Op      string
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *AdapterError) Error() string {
	msg := e.Backend.String() + "." + e.Op + ": " + e.Message
	if e.Cause != nil {
		msg += " (cause: " + e.Cause.Error() + ")"
	}
	return msg
}

func (e *AdapterError) Unwrap() error {
	return e.Cause
}

// NewAdapterError creates an AdapterError, deriving Kind from the cause
// when the caller passes ErrKindUnknown: context deadline and
// cancellation always classify as timeout regardless of how the driver
// wrapped them.
func NewAdapterError(backend Identity, op string, kind ErrorKind, message string, cause error) *AdapterError {
	if kind == ErrKindUnknown && cause != nil {
		if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled) {
			kind = ErrKindTimeout
		}
	}
	return &AdapterError{
		Backend: backend,
		Op:      op,
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// KindOf extracts the ErrorKind from err, walking the wrap chain.
// Errors that are not AdapterErrors classify as unknown, except bare
// context deadline errors which classify as timeout.
func KindOf(err error) ErrorKind {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	return ErrKindUnknown
}
