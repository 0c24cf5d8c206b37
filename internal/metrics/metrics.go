// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
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

// Package metrics holds the process-wide event counters used across the
// defense pipeline. Counters are monotonically increasing for the lifetime of
// the process and guarded by a single mutex; incrementing is O(1) and safe
// from any goroutine. The registry can periodically dump a JSON snapshot to a
// file (written atomically so a concurrent reader never sees a truncated
// document) and mirrors every increment into a Prometheus counter vector.
package metrics

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "antiscrape_events_total",
	Help: "Total pipeline events by counter key",
}, []string{"event"})

func init() {
	// Registration is harmless when no Prometheus endpoint is exposed.
	prometheus.MustRegister(eventsTotal)
}

// Registry is a named set of monotonic counters.
type Registry struct {
	mu       sync.Mutex
	counters map[string]int64
	start    time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRegistry returns an empty registry with the uptime clock started.
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]int64),
		start:    time.Now().UTC(),
		stop:     make(chan struct{}),
	}
}

// Increment adds one to the counter named key.
func (r *Registry) Increment(key string) { r.Add(key, 1) }

// Add adds delta to the counter named key. Negative deltas are ignored so
// counters stay monotonic within a process lifetime.
func (r *Registry) Add(key string, delta int64) {
	if delta <= 0 {
		return
	}
	r.mu.Lock()
	r.counters[key] += delta
	r.mu.Unlock()
	eventsTotal.WithLabelValues(key).Add(float64(delta))
}

// Get returns the current value of a counter (0 when never incremented).
func (r *Registry) Get(key string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[key]
}

// Snapshot returns a consistent point-in-time copy of all counters plus the
// service_uptime_seconds and last_updated_utc bookkeeping fields.
func (r *Registry) Snapshot() map[string]any {
	r.mu.Lock()
	out := make(map[string]any, len(r.counters)+2)
	for k, v := range r.counters {
		out[k] = v
	}
	r.mu.Unlock()
	now := time.Now().UTC()
	out["service_uptime_seconds"] = now.Sub(r.start).Round(10 * time.Millisecond).Seconds()
	out["last_updated_utc"] = now.Format(time.RFC3339Nano)
	return out
}

// DumpJSON writes the current snapshot to path via a temp file and rename, so
// a reader polling the file never observes a partial write.
func (r *Registry) DumpJSON(path string) error {
	data, err := json.MarshalIndent(r.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".metrics-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// StartScheduledDump begins dumping the snapshot to path every interval until
// Stop is called. Dump errors are reported through onErr (which may be nil).
func (r *Registry) StartScheduledDump(interval time.Duration, path string, onErr func(error)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.DumpJSON(path); err != nil && onErr != nil {
					onErr(err)
				}
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop halts the scheduled dump loop, if one is running.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Handler returns an http.Handler serving the snapshot as JSON. This is the
// counters view consumed by the admin dashboard.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.Snapshot())
	})
}

// ServePrometheus starts a dedicated listener exposing the Prometheus
// /metrics endpoint, mirroring how the telemetry exporter publishes when a
// metrics address is configured. Errors after startup are ignored; the
// endpoint is best-effort observability.
func ServePrometheus(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() { _ = http.ListenAndServe(addr, mux) }()
}
