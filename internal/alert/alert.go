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

// Package alert fans detection events out to a human-visible channel. One
// transport is selected at startup by configuration; events below the
// configured minimum severity are dropped before the transport is invoked.
// Transport errors are counted and logged, never retried inline.
package alert

import (
	"context"
	"strings"
)

// Event is the alert payload derived from a webhook sink event.
type Event struct {
	Reason       string
	TimestampUTC string
	IP           string
	UserAgent    string
	Details      map[string]any
}

// severityTable maps reason prefixes to alert levels. Higher is more
// specific evidence, not more dangerous; the minimum-severity gate reads
// these levels.
var severityTable = []struct {
	prefix string
	level  int
}{
	{"High Combined", 1},
	{"High Heuristic", 1},
	{"IP Reputation", 1},
	{"Local LLM", 2},
	{"Honeypot_Hit", 2},
	{"External API", 3},
}

// Severity resolves a reason string to its alert level via exact prefix
// match. Anything before a parenthesised score is considered; unrecognised
// reasons map to level 0 and are never dispatched.
func Severity(reason string) int {
	if cut := strings.Index(reason, "("); cut >= 0 {
		reason = reason[:cut]
	}
	reason = strings.TrimSpace(reason)
	for _, e := range severityTable {
		if strings.HasPrefix(reason, e.prefix) {
			return e.level
		}
	}
	return 0
}

// MinSeverity resolves the configured minimum-severity reason string. An
// unrecognised value gates at level 1 so misconfiguration fails loud rather
// than silent.
func MinSeverity(reason string) int {
	if lvl := Severity(reason); lvl > 0 {
		return lvl
	}
	return 1
}

// Transport delivers one alert. Implementations may block (SMTP, sync HTTP);
// the dispatcher runs them off the request path.
type Transport interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// NopTransport drops every alert. Selected when ALERT_METHOD is "none".
type NopTransport struct{}

// Name implements Transport.
func (NopTransport) Name() string { return "none" }

// Send implements Transport.
func (NopTransport) Send(context.Context, Event) error { return nil }

// Dispatcher applies the severity gate and hands events to the transport.
type Dispatcher struct {
	transport   Transport
	minSeverity int
}

// NewDispatcher builds a dispatcher gating at the severity resolved from
// minReason.
func NewDispatcher(t Transport, minReason string) *Dispatcher {
	if t == nil {
		t = NopTransport{}
	}
	return &Dispatcher{transport: t, minSeverity: MinSeverity(minReason)}
}

// TransportName reports the active transport for logs and health payloads.
func (d *Dispatcher) TransportName() string { return d.transport.Name() }

// Enabled reports whether any real transport is configured.
func (d *Dispatcher) Enabled() bool { return d.transport.Name() != "none" }

// Dispatch sends ev if it clears the severity gate. The boolean reports
// whether the transport was invoked at all.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (bool, error) {
	if Severity(ev.Reason) < d.minSeverity {
		return false, nil
	}
	if !d.Enabled() {
		return false, nil
	}
	return true, d.transport.Send(ctx, ev)
}
