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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports gateway counters. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rows     *prometheus.HistogramVec
}

// NewMetrics registers the gateway collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sqlgate_requests_total",
			Help: "Query requests by backend and outcome.",
		}, []string{"backend", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sqlgate_request_duration_seconds",
			Help:    "End-to-end request latency by backend.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend"}),
		rows: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sqlgate_result_rows",
			Help:    "Rows returned per successful request.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"backend"}),
	}
	reg.MustRegister(m.requests, m.duration, m.rows)
	return m
}

func (m *Metrics) observe(backend, outcome string, d time.Duration, rowCount int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(backend, outcome).Inc()
	m.duration.WithLabelValues(backend).Observe(d.Seconds())
	if outcome == "success" {
		m.rows.WithLabelValues(backend).Observe(float64(rowCount))
	}
}
