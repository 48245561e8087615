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
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const writeRetries = 3

// Stats counts logger activity since startup.
type Stats struct {
	Recorded uint64 `json:"recorded"`
	Written  uint64 `json:"written"`
	Fallback uint64 `json:"fallback"`
}

// Logger fans records out to the configured sink through a bounded
// queue. Record never blocks and never returns an error: when the
// queue is full or the sink is down, records land in the fallback
// file instead of failing the request that produced them.
type Logger struct {
	sink     Sink
	queue    chan *Record
	fallback *os.File

	mu       sync.Mutex
	wg       sync.WaitGroup
	stdlog   *log.Logger
	recorded atomic.Uint64
	written  atomic.Uint64
	fellBack atomic.Uint64
}

// NewLogger starts the write workers. fallbackPath must be writable;
// an unusable fallback is the one startup error the logger refuses to
// run past, since it is the last line of audit durability.
func NewLogger(sink Sink, queueSize, workers int, fallbackPath string) (*Logger, error) {
	fallback, err := os.OpenFile(fallbackPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open fallback file: %w", err)
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 1
	}

	l := &Logger{
		sink:     sink,
		queue:    make(chan *Record, queueSize),
		fallback: fallback,
		stdlog:   log.New(os.Stderr, "[AUDIT] ", log.LstdFlags),
	}
	for i := 0; i < workers; i++ {
		l.wg.Add(1)
		go l.worker()
	}
	return l, nil
}

// Record enqueues one audit record. Non-blocking: a full queue spills
// straight to the fallback file.
func (l *Logger) Record(rec *Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	l.recorded.Add(1)
	select {
	case l.queue <- rec:
	default:
		l.stdlog.Printf("Queue full, spilling record %s to fallback", rec.RequestID)
		l.writeFallback(rec)
	}
}

func (l *Logger) worker() {
	defer l.wg.Done()
	for rec := range l.queue {
		var err error
		for attempt := 0; attempt < writeRetries; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = l.sink.Write(ctx, rec)
			cancel()
			if err == nil {
				l.written.Add(1)
				break
			}
			time.Sleep(time.Duration(100*(attempt+1)) * time.Millisecond)
		}
		if err != nil {
			l.stdlog.Printf("Sink write failed after %d attempts: %v", writeRetries, err)
			l.writeFallback(rec)
		}
	}
}

// writeFallback appends the record to the NDJSON fallback file. This
// path has no further fallback; a failure here is logged and the
// record is lost, which the stats expose.
func (l *Logger) writeFallback(rec *Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		l.stdlog.Printf("Marshal failed for record %s: %v", rec.RequestID, err)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := fmt.Fprintf(l.fallback, "%s\n", data); err != nil {
		l.stdlog.Printf("Fallback write failed for record %s: %v", rec.RequestID, err)
		return
	}
	_ = l.fallback.Sync()
	l.fellBack.Add(1)
}

// Stats snapshots the logger counters.
func (l *Logger) Stats() Stats {
	return Stats{
		Recorded: l.recorded.Load(),
		Written:  l.written.Load(),
		Fallback: l.fellBack.Load(),
	}
}

// Shutdown closes the queue and waits for workers to finish within
// ctx's deadline. On timeout, whatever is still queued is drained to
// the fallback file so no record is silently dropped.
func (l *Logger) Shutdown(ctx context.Context) error {
	close(l.queue)

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		for rec := range l.queue {
			l.writeFallback(rec)
		}
		<-done
		err = ctx.Err()
	}

	if cerr := l.sink.Close(); cerr != nil && err == nil {
		err = cerr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if cerr := l.fallback.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
