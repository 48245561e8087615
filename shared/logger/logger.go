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

package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	DEBUG Level = "DEBUG"
	INFO  Level = "INFO"
	WARN  Level = "WARN"
	ERROR Level = "ERROR"
)

// Logger writes structured JSON log lines to a single writer. Safe
// for concurrent use.
type Logger struct {
	Component  string
	InstanceID string
	Container  string

	mu  sync.Mutex
	out io.Writer
}

// Entry is one structured log line.
type Entry struct {
	Timestamp  string         `json:"timestamp"`
	Level      Level          `json:"level"`
	Component  string         `json:"component"`
	InstanceID string         `json:"instance_id"`
	Container  string         `json:"container"`
	Caller     string         `json:"caller,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Message    string         `json:"message"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// New creates a Logger for the named component, writing to stdout.
func New(component string) *Logger {
	return NewWithWriter(component, os.Stdout)
}

// NewWithWriter creates a Logger with an explicit output, mainly for
// tests.
func NewWithWriter(component string, out io.Writer) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}
	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}
	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
		out:        out,
	}
}

// Log writes one structured entry.
func (l *Logger) Log(level Level, caller, requestID, message string, fields map[string]any) {
	entry := Entry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		Container:  l.Container,
		Caller:     caller,
		RequestID:  requestID,
		Message:    message,
		Fields:     fields,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(data, '\n'))
}

// Info logs an informational message.
func (l *Logger) Info(caller, requestID, message string, fields map[string]any) {
	l.Log(INFO, caller, requestID, message, fields)
}

// Error logs an error message.
func (l *Logger) Error(caller, requestID, message string, fields map[string]any) {
	l.Log(ERROR, caller, requestID, message, fields)
}

// Warn logs a warning message.
func (l *Logger) Warn(caller, requestID, message string, fields map[string]any) {
	l.Log(WARN, caller, requestID, message, fields)
}

// Debug logs a debug message.
func (l *Logger) Debug(caller, requestID, message string, fields map[string]any) {
	l.Log(DEBUG, caller, requestID, message, fields)
}

// InfoWithDuration logs an info message with a duration_ms field.
func (l *Logger) InfoWithDuration(caller, requestID, message string, durationMS float64, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["duration_ms"] = durationMS
	l.Info(caller, requestID, message, fields)
}

// ErrorWithCode logs an error with an HTTP status code.
func (l *Logger) ErrorWithCode(caller, requestID, message string, statusCode int, err error, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["status_code"] = statusCode
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(caller, requestID, message, fields)
}
