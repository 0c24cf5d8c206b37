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

// Package tarpit serves slow, deterministic fake content to trapped
// scrapers. Every path is a honeypot page; each hit is logged, flagged,
// counted against the hop limit and escalated for scoring while the client
// drip-feeds the response line by line.
package tarpit

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"antiscrape/internal/config"
	"antiscrape/internal/escalation"
	"antiscrape/internal/eventlog"
	"antiscrape/internal/metrics"
)

// PageRenderer produces the HTML document for a trapped request path.
type PageRenderer interface {
	Render(ctx context.Context, path string) (string, error)
}

// HopSource counts tarpit hits per IP inside a rolling window.
type HopSource interface {
	Hit(ctx context.Context, ip string) (int64, error)
	Window() time.Duration
	Ping(ctx context.Context) bool
}

// Blocker writes an IP onto the shared blocklist.
type Blocker interface {
	Block(ctx context.Context, ip, reason, userAgent string) error
	Ping(ctx context.Context) bool
}

// FlagSetter marks an IP as currently tarpitted.
type FlagSetter interface {
	Flag(ctx context.Context, ip string) error
}

// ChainHealth reports whether the generator's backing store is reachable.
type ChainHealth interface {
	Healthy(ctx context.Context) bool
}

// Deps are the injectable collaborators of the tarpit.
type Deps struct {
	Renderer    PageRenderer
	ChainHealth ChainHealth
	Hops        HopSource
	Blocklist   Blocker
	Flags       FlagSetter
	Escalator   Escalator
	HoneypotLog *eventlog.Logger
}

// Server is the Tarpit Engine HTTP service.
type Server struct {
	cfg      config.Tarpit
	log      zerolog.Logger
	registry *metrics.Registry
	deps     Deps

	// delayFn returns the pause before each streamed line; swapped out in
	// tests to keep them fast.
	delayFn func() time.Duration
}

// NewServer wires a tarpit from configuration and collaborators.
func NewServer(cfg config.Tarpit, log zerolog.Logger, registry *metrics.Registry, deps Deps) *Server {
	if deps.HoneypotLog == nil {
		deps.HoneypotLog = eventlog.Nop()
	}
	s := &Server{cfg: cfg, log: log, registry: registry, deps: deps}
	s.delayFn = s.lineDelay
	return s
}

func (s *Server) lineDelay() time.Duration {
	spread := s.cfg.MaxDelay - s.cfg.MinDelay
	if spread <= 0 {
		return s.cfg.MinDelay
	}
	return s.cfg.MinDelay + time.Duration(rand.Int63n(int64(spread)))
}

// Routes registers the banner, health endpoint and the catch-all trap
// handler.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.registry.Handler())
	mux.HandleFunc("/", s.handleTrap)
	return mux
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"message": "AntiScrape Tarpit API"})
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleTrap(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	ua := r.UserAgent()

	// The hop check comes first: a blocked client gets the 403 and nothing
	// else, no log entry, no flag, no escalation.
	if s.selfBlock(r.Context(), ip, ua) {
		s.registry.Increment("tarpit_hop_limit_blocks")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, blockedPage)
		return
	}

	s.registry.Increment("honeypot_hits")
	s.deps.HoneypotLog.Event("honeypot_hit", map[string]any{
		"ip":         ip,
		"user_agent": ua,
		"path":       r.URL.Path,
		"referer":    r.Referer(),
		"method":     r.Method,
	})

	if s.deps.Flags != nil {
		if err := s.deps.Flags.Flag(r.Context(), ip); err != nil {
			s.registry.Increment("tarpit_flag_errors")
			s.log.Warn().Err(err).Str("ip", ip).Msg("could not flag tarpitted ip")
		}
	}

	if s.deps.Escalator != nil {
		s.deps.Escalator.Escalate(escalation.Metadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			IP:        ip,
			UserAgent: ua,
			Referer:   r.Referer(),
			Path:      r.URL.Path,
			Headers:   flattenHeaders(r.Header),
			Source:    "tarpit_engine",
		})
	}

	page := s.renderPage(r.Context(), r.URL.Path)
	s.stream(w, r, page)
}

// selfBlock counts the hit and blocklists the IP once it exceeds the hop
// limit. Counter errors fail open; a broken Redis must not take the trap
// down with it.
func (s *Server) selfBlock(ctx context.Context, ip, ua string) bool {
	if !s.cfg.HopLimitEnabled() || s.deps.Hops == nil {
		return false
	}
	hops, err := s.deps.Hops.Hit(ctx, ip)
	if err != nil {
		s.registry.Increment("tarpit_hop_counter_errors")
		s.log.Warn().Err(err).Str("ip", ip).Msg("hop counter unavailable")
		return false
	}
	if hops <= int64(s.cfg.MaxHops) {
		return false
	}
	reason := fmt.Sprintf("Tarpit hop limit exceeded (%d hits in %s)", hops, s.deps.Hops.Window())
	if s.deps.Blocklist != nil {
		if err := s.deps.Blocklist.Block(ctx, ip, reason, ua); err != nil {
			s.registry.Increment("blocklist_write_errors")
			s.log.Error().Err(err).Str("ip", ip).Msg("hop-limit blocklist write failed")
		} else {
			s.log.Info().Str("ip", ip).Int64("hops", hops).Msg("ip self-blocked by hop limit")
		}
	}
	return true
}

func (s *Server) renderPage(ctx context.Context, path string) string {
	if s.deps.Renderer == nil {
		return unavailablePage
	}
	page, err := s.deps.Renderer.Render(ctx, path)
	if err != nil {
		s.registry.Increment("page_generation_errors")
		s.log.Error().Err(err).Str("path", path).Msg("page generation failed")
		return errorPage
	}
	s.registry.Increment("pages_generated")
	return page
}

// stream writes the page line by line with a uniform random pause before
// each line, flushing as it goes. A client disconnect ends the stream early.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, page string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	ctx := r.Context()
	for _, line := range strings.SplitAfter(page, "\n") {
		if line == "" {
			continue
		}
		select {
		case <-ctx.Done():
			s.registry.Increment("stream_client_disconnects")
			return
		case <-time.After(s.delayFn()):
		}
		if _, err := fmt.Fprint(w, line); err != nil {
			s.registry.Increment("stream_client_disconnects")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	s.registry.Increment("streams_completed")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	generatorOK := s.deps.ChainHealth != nil && s.deps.ChainHealth.Healthy(r.Context())
	hopsOK := s.deps.Hops != nil && s.deps.Hops.Ping(r.Context())
	blocklistOK := s.deps.Blocklist != nil && s.deps.Blocklist.Ping(r.Context())

	status := "ok"
	if !generatorOK || !blocklistOK {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                    status,
		"generator_connected":       generatorOK,
		"redis_hops_connected":      hopsOK,
		"redis_blocklist_connected": blocklistOK,
		"hop_limit_enabled":         s.cfg.HopLimitEnabled(),
		"max_hops":                  s.cfg.MaxHops,
	})
}
