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

// Package alert contains tests for severity resolution and dispatch gating.
package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestSeverity_PrefixResolution verifies the reason-to-level mapping,
// including reasons that carry a parenthesised score suffix.
func TestSeverity_PrefixResolution(t *testing.T) {
	cases := []struct {
		reason string
		want   int
	}{
		{"High Combined Score (0.950)", 1},
		{"High Heuristic Score (0.810)", 1},
		{"IP Reputation Malicious (score 97)", 1},
		{"Local LLM Classification", 2},
		{"Honeypot_Hit", 2},
		{"External API Classification", 3},
		{"Tarpit hop limit exceeded (300 hits in 24h0m0s)", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := Severity(tc.reason); got != tc.want {
			t.Fatalf("Severity(%q) = %d, want %d", tc.reason, got, tc.want)
		}
	}
}

// TestMinSeverity_UnknownGatesAtOne verifies a misconfigured minimum reason
// falls back to level 1 rather than disabling the gate.
func TestMinSeverity_UnknownGatesAtOne(t *testing.T) {
	if got := MinSeverity("Not A Real Reason"); got != 1 {
		t.Fatalf("unknown minimum should resolve to 1, got %d", got)
	}
	if got := MinSeverity("External API Classification"); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

// recordingTransport captures dispatched events.
type recordingTransport struct {
	events []Event
	err    error
}

func (r *recordingTransport) Name() string { return "recording" }
func (r *recordingTransport) Send(_ context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

// TestDispatcher_SeverityGate verifies events below the minimum never reach
// the transport while events at or above it do.
func TestDispatcher_SeverityGate(t *testing.T) {
	rec := &recordingTransport{}
	d := NewDispatcher(rec, "Local LLM") // gate at level 2

	sent, err := d.Dispatch(context.Background(), Event{Reason: "High Combined Score (0.900)"})
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if sent {
		t.Fatalf("level-1 reason should be gated below a level-2 minimum")
	}

	sent, err = d.Dispatch(context.Background(), Event{Reason: "External API Classification"})
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if !sent {
		t.Fatalf("level-3 reason should pass a level-2 gate")
	}
	if len(rec.events) != 1 {
		t.Fatalf("expected exactly one transport send, got %d", len(rec.events))
	}
}

// TestDispatcher_NopTransportNeverSends verifies the disabled configuration.
func TestDispatcher_NopTransportNeverSends(t *testing.T) {
	d := NewDispatcher(NopTransport{}, "High Combined")
	sent, err := d.Dispatch(context.Background(), Event{Reason: "External API Classification"})
	if err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if sent {
		t.Fatalf("nop transport should never report a send")
	}
	if d.Enabled() {
		t.Fatalf("nop dispatcher should report disabled")
	}
}

// TestWebhookTransport_PostsAlertDocument verifies the JSON shape and the
// error on a failing endpoint.
func TestWebhookTransport_PostsAlertDocument(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad alert body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewWebhookTransport(srv.URL)
	ev := Event{
		Reason:       "External API Classification",
		TimestampUTC: "2026-03-01T12:00:00Z",
		IP:           "203.0.113.9",
		UserAgent:    "curl/8.0",
	}
	if err := tr.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if got["alert_type"] != "AI_DEFENSE_BLOCK" {
		t.Fatalf("unexpected alert_type: %v", got["alert_type"])
	}
	if got["ip_address"] != "203.0.113.9" {
		t.Fatalf("unexpected ip_address: %v", got["ip_address"])
	}

	fail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer fail.Close()
	if err := NewWebhookTransport(fail.URL).Send(context.Background(), ev); err == nil {
		t.Fatalf("expected error from 500 endpoint")
	}
}

// TestSlackTransport_FormatsMessage verifies the text payload carries the
// reason and IP.
func TestSlackTransport_FormatsMessage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad slack body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewSlackTransport(srv.URL).Send(context.Background(), Event{
		Reason: "Local LLM Classification",
		IP:     "203.0.113.9",
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	text := got["text"]
	if !strings.Contains(text, "Local LLM Classification") || !strings.Contains(text, "203.0.113.9") {
		t.Fatalf("slack text missing fields: %q", text)
	}
}
