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

// Package main is the entry point for the Tarpit Engine.
//
// The tarpit is the trap surface of the defense pipeline: every request that
// lands here (steered in by the reverse proxy) receives a deterministic fake
// HTML page streamed line by line with deliberate delays. This file wires the
// Markov generator, Redis counters, the honeypot event log and the escalation
// hand-off, then runs the HTTP server with graceful shutdown.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"antiscrape/internal/config"
	"antiscrape/internal/eventlog"
	"antiscrape/internal/markov"
	"antiscrape/internal/metrics"
	"antiscrape/internal/redisstore"
	"antiscrape/internal/tarpit"
)

func main() {
	httpAddr := flag.String("http_addr", ":8001", "HTTP listen address")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9101)")
	metricsDump := flag.Duration("metrics_dump_interval", time.Minute, "How often to dump the JSON metrics snapshot; 0 disables")
	logLevel := flag.String("log_level", os.Getenv("LOG_LEVEL"), "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg := config.LoadTarpit()
	log := eventlog.NewServiceLogger("tarpit", *logLevel)
	registry := metrics.NewRegistry()

	honeypotLog, err := eventlog.Open(cfg.Dirs.Logs, eventlog.HoneypotFile)
	if err != nil {
		log.Warn().Err(err).Msg("honeypot log unavailable, events will be dropped")
		honeypotLog = eventlog.Nop()
	}
	defer honeypotLog.Close()

	deps := tarpit.Deps{
		Hops:        redisstore.NewHopCounter(redisstore.NewClient(cfg.RedisHops), cfg.HopWindow),
		Blocklist:   redisstore.NewBlocklist(redisstore.NewClient(cfg.RedisBlocklist), cfg.BlocklistTTL),
		Flags:       redisstore.NewFlagger(redisstore.NewClient(cfg.RedisFlags), cfg.FlagTTL),
		HoneypotLog: honeypotLog,
		Escalator: tarpit.NewHTTPEscalator(cfg.EscalationEndpoint, func(err error) {
			registry.Increment("escalation_dispatch_errors")
			log.Warn().Err(err).Msg("escalation dispatch failed")
		}),
	}

	// The generator is optional at startup; without it the trap serves the
	// static fallback page and keeps trapping.
	if cfg.PGErr != nil {
		log.Warn().Err(cfg.PGErr).Msg("postgres credentials unavailable, serving static pages")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err := markov.NewPGStore(ctx, cfg.PG.DSN())
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("markov store unavailable, serving static pages")
		} else {
			defer store.Close()
			deps.Renderer = markov.NewGenerator(store, cfg.SystemSeed)
			deps.ChainHealth = store
		}
	}

	server := tarpit.NewServer(cfg, log, registry, deps)
	httpServer := &http.Server{Addr: *httpAddr, Handler: server.Routes()}

	metrics.ServePrometheus(*metricsAddr)
	if *metricsDump > 0 {
		registry.StartScheduledDump(*metricsDump, filepath.Join(cfg.Dirs.Logs, "tarpit_metrics.json"), func(err error) {
			log.Warn().Err(err).Msg("metrics dump failed")
		})
	}

	go func() {
		log.Info().
			Str("addr", *httpAddr).
			Bool("hop_limit", cfg.HopLimitEnabled()).
			Bool("generator", deps.Renderer != nil).
			Msg("tarpit engine listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Str("addr", *httpAddr).Msg("could not listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	registry.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("server stopped")
}
