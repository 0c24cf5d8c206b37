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

// Package eventlog writes the append-only JSON-lines event files kept under
// the logs directory: honeypot hits, block events, alert events and community
// reports. Each line is a single JSON object carrying a UTC ISO8601 timestamp
// followed by event-specific fields. File writes are serialized by zerolog;
// a logger that failed to open degrades to a no-op so event logging can never
// take a request down with it.
package eventlog

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Well-known event log filenames.
const (
	HoneypotFile  = "honeypot_hits.log"
	BlockFile     = "block_events.log"
	AlertFile     = "alert_events.log"
	CommunityFile = "community_report.log"
)

// Logger appends structured events to one JSON-lines file.
type Logger struct {
	log  zerolog.Logger
	file io.Closer
}

// Open creates (or appends to) the named event log inside dir.
func Open(dir, filename string) (*Logger, error) {
	f, err := os.OpenFile(filepath.Join(dir, filename), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Logger{log: zerolog.New(f), file: f}, nil
}

// Nop returns a logger that discards everything. Used when the real file
// could not be opened.
func Nop() *Logger {
	return &Logger{log: zerolog.New(io.Discard)}
}

// Event appends one event line. The timestamp field is always first-class and
// always UTC.
func (l *Logger) Event(eventType string, fields map[string]any) {
	if l == nil {
		return
	}
	l.log.Log().
		Str("timestamp", time.Now().UTC().Format(time.RFC3339Nano)).
		Str("event_type", eventType).
		Fields(fields).
		Send()
}

// Close releases the underlying file, if any.
func (l *Logger) Close() {
	if l != nil && l.file != nil {
		_ = l.file.Close()
	}
}

// NewServiceLogger builds the stderr logger each service uses, honoring the
// LOG_LEVEL environment convention (debug, info, warn, error).
func NewServiceLogger(service, level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "warn", "warning":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().
		Timestamp().
		Str("service", service).
		Logger()
}
