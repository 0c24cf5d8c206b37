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

// Package webhook is the pipeline's sink: it receives detection events,
// writes auto-block decisions to the shared blocklist, files community
// reports and raises operator alerts. The action string in each response
// is an audit trail of exactly what happened for that event.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"antiscrape/internal/alert"
	"antiscrape/internal/config"
	"antiscrape/internal/eventlog"
	"antiscrape/internal/metrics"
)

// autoBlockTerms are the reason substrings that trigger an automatic
// blocklist write. Everything else is recorded but left unblocked.
var autoBlockTerms = []string{
	"High Combined Score",
	"Local LLM Classification",
	"External API Classification",
	"High Heuristic Score",
	"Honeypot_Hit",
	"IP Reputation Malicious",
}

// Event is the detection document posted by upstream services.
type Event struct {
	EventType    string         `json:"event_type"`
	Reason       string         `json:"reason"`
	TimestampUTC string         `json:"timestamp_utc"`
	Details      map[string]any `json:"details"`
}

// IP extracts the offending address from the event details, empty when
// absent.
func (e Event) IP() string {
	ip, _ := e.Details["ip"].(string)
	if ip == "N/A" {
		return ""
	}
	return ip
}

// UserAgent extracts the client user agent from the event details.
func (e Event) UserAgent() string {
	ua, _ := e.Details["user_agent"].(string)
	return ua
}

// Blocker writes an IP onto the shared blocklist.
type Blocker interface {
	Block(ctx context.Context, ip, reason, userAgent string) error
	TTL() time.Duration
	Ping(ctx context.Context) bool
}

// Reporter files a blocked IP with the community database.
type Reporter interface {
	Report(ctx context.Context, ip, reason string) error
}

// Deps are the injectable collaborators of the sink.
type Deps struct {
	Blocklist    Blocker
	Reporter     Reporter // nil when community reporting is disabled
	Alerts       *alert.Dispatcher
	BlockLog     *eventlog.Logger
	AlertLog     *eventlog.Logger
	CommunityLog *eventlog.Logger
}

// Server is the Webhook Sink HTTP service.
type Server struct {
	cfg      config.Webhook
	log      zerolog.Logger
	registry *metrics.Registry
	deps     Deps
}

// NewServer wires a sink from configuration and collaborators.
func NewServer(cfg config.Webhook, log zerolog.Logger, registry *metrics.Registry, deps Deps) *Server {
	if deps.Alerts == nil {
		deps.Alerts = alert.NewDispatcher(alert.NopTransport{}, cfg.AlertMinSeverity)
	}
	if deps.BlockLog == nil {
		deps.BlockLog = eventlog.Nop()
	}
	if deps.AlertLog == nil {
		deps.AlertLog = eventlog.Nop()
	}
	if deps.CommunityLog == nil {
		deps.CommunityLog = eventlog.Nop()
	}
	return &Server{cfg: cfg, log: log, registry: registry, deps: deps}
}

// Routes registers the sink's handlers on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.Handle("GET /metrics", s.registry.Handler())
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func autoBlockable(reason string) bool {
	for _, term := range autoBlockTerms {
		if strings.Contains(reason, term) {
			return true
		}
	}
	return false
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	s.registry.Increment("webhook_events_received")

	var ev Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		s.registry.Increment("webhook_events_invalid")
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"status": "error", "detail": "malformed event body: " + err.Error(),
		})
		return
	}
	if ev.EventType == "" || ev.Reason == "" {
		s.registry.Increment("webhook_events_invalid")
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"status": "error", "detail": "event_type and reason are required",
		})
		return
	}

	ip := ev.IP()
	if ip == "" {
		s.registry.Increment("blocklist_skipped_unknown_ip")
		s.log.Warn().Str("reason", ev.Reason).Msg("event carried no usable ip")
		writeJSON(w, http.StatusOK, map[string]any{
			"status":       "processed",
			"action_taken": "blocklist_skipped_unknown_ip",
			"ip_processed": "unknown",
		})
		return
	}

	action := s.applyBlocklist(r.Context(), ev, ip)
	action += s.raiseAlert(r.Context(), ev, ip)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "processed",
		"action_taken": action,
		"ip_processed": ip,
	})
}

// applyBlocklist decides and executes the block for one event, returning
// the base action string.
func (s *Server) applyBlocklist(ctx context.Context, ev Event, ip string) string {
	if !autoBlockable(ev.Reason) {
		s.registry.Increment("blocklist_skipped_criteria_not_met")
		return "blocklist_skipped_criteria_not_met"
	}

	if err := s.deps.Blocklist.Block(ctx, ip, ev.Reason, ev.UserAgent()); err != nil {
		s.registry.Increment("blocklist_write_errors")
		s.log.Error().Err(err).Str("ip", ip).Msg("blocklist write failed")
		return "blocklist_failed"
	}

	s.registry.Increment("ips_blocklisted")
	s.deps.BlockLog.Event("ip_blocked", map[string]any{
		"ip":          ip,
		"reason":      ev.Reason,
		"user_agent":  ev.UserAgent(),
		"ttl_seconds": int(s.deps.Blocklist.TTL().Seconds()),
	})
	s.log.Info().Str("ip", ip).Str("reason", ev.Reason).Msg("ip blocklisted")

	return "ip_blocklisted_ttl" + s.reportToCommunity(ctx, ip, ev.Reason)
}

// reportToCommunity files the block with the shared database when enabled,
// returning the action suffix.
func (s *Server) reportToCommunity(ctx context.Context, ip, reason string) string {
	if s.deps.Reporter == nil {
		return ""
	}
	if err := s.deps.Reporter.Report(ctx, ip, reason); err != nil {
		s.registry.Increment("community_report_errors")
		s.deps.CommunityLog.Event("community_report_failed", map[string]any{
			"ip": ip, "reason": reason, "error": err.Error(),
		})
		s.log.Warn().Err(err).Str("ip", ip).Msg("community report failed")
		return "_community_report_failed"
	}
	s.registry.Increment("community_reports_sent")
	s.deps.CommunityLog.Event("community_report_sent", map[string]any{
		"ip": ip, "reason": reason,
	})
	return "_community_report_success"
}

// raiseAlert runs the severity-gated alert dispatch for every event. The
// suffix is empty when no alert transport is configured.
func (s *Server) raiseAlert(ctx context.Context, ev Event, ip string) string {
	if !s.deps.Alerts.Enabled() {
		return ""
	}
	sent, err := s.deps.Alerts.Dispatch(ctx, alert.Event{
		Reason:       ev.Reason,
		TimestampUTC: ev.TimestampUTC,
		IP:           ip,
		UserAgent:    ev.UserAgent(),
		Details:      ev.Details,
	})
	if err != nil {
		s.registry.Increment("alert_errors")
		s.deps.AlertLog.Event("alert_failed", map[string]any{
			"ip": ip, "reason": ev.Reason, "transport": s.deps.Alerts.TransportName(), "error": err.Error(),
		})
		s.log.Error().Err(err).Str("ip", ip).Msg("alert dispatch failed")
		return "_alert_error"
	}
	if sent {
		s.registry.Increment("alerts_sent")
		s.deps.AlertLog.Event("alert_sent", map[string]any{
			"ip": ip, "reason": ev.Reason, "transport": s.deps.Alerts.TransportName(),
		})
	}
	return "_alert_checked"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	redisOK := s.deps.Blocklist != nil && s.deps.Blocklist.Ping(r.Context())
	status := "ok"
	if !redisOK {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                    status,
		"redis_blocklist_connected": redisOK,
		"alert_method":              s.deps.Alerts.TransportName(),
		"community_reporting":       s.deps.Reporter != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
