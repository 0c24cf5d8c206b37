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

// Package main is the entry point for the Escalation Engine.
//
// The engine is the scoring tier of the defense pipeline: it receives
// request metadata from the tarpit, combines heuristic rules, the optional
// trained model and the optional IP-reputation bonus into one score, and
// walks uncertain requests up the classification ladder (local LLM, then
// external API). Confirmed bots are dispatched to the webhook sink.
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
	"antiscrape/internal/escalation"
	"antiscrape/internal/eventlog"
	"antiscrape/internal/metrics"
	"antiscrape/internal/redisstore"
)

func main() {
	httpAddr := flag.String("http_addr", ":8003", "HTTP listen address")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9103)")
	metricsDump := flag.Duration("metrics_dump_interval", time.Minute, "How often to dump the JSON metrics snapshot; 0 disables")
	logLevel := flag.String("log_level", os.Getenv("LOG_LEVEL"), "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg := config.LoadEscalation()
	log := eventlog.NewServiceLogger("escalation", *logLevel)
	registry := metrics.NewRegistry()

	robots, err := escalation.LoadRobots(cfg.RobotsPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.RobotsPath).Msg("robots.txt unavailable, rule disabled")
	} else {
		log.Info().Int("disallow_rules", robots.Len()).Msg("robots.txt loaded")
	}

	model, err := escalation.LoadModel(cfg.ModelPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.ModelPath).Msg("model unavailable, scoring with rules alone")
	} else {
		log.Info().Str("path", cfg.ModelPath).Msg("detection model loaded")
	}

	deps := escalation.Deps{
		Frequency: redisstore.NewFrequencyTracker(redisstore.NewClient(cfg.RedisFrequency), cfg.FrequencyWindow),
		Sink:      escalation.NewSinkNotifier(cfg.WebhookURL),
		Model:     model,
		Robots:    robots,
	}
	if cfg.EnableIPReputation && cfg.IPReputationURL != "" && cfg.IPReputationKey != "" {
		deps.Reputation = escalation.NewReputationChecker(
			cfg.IPReputationURL, cfg.IPReputationKey, cfg.IPReputationMinMalicious, cfg.IPReputationTimeout)
	}
	if cfg.LocalLLMURL != "" {
		deps.LocalLLM = escalation.NewLLMClassifier(cfg.LocalLLMURL, cfg.LocalLLMModel, cfg.LocalLLMTimeout)
	}
	if cfg.ExternalAPIURL != "" {
		deps.External = escalation.NewExternalClassifier(cfg.ExternalAPIURL, cfg.ExternalAPIKey, cfg.ExternalAPITimeout)
	}

	server := escalation.NewServer(cfg, log, registry, deps)
	httpServer := &http.Server{Addr: *httpAddr, Handler: server.Routes()}

	metrics.ServePrometheus(*metricsAddr)
	if *metricsDump > 0 {
		registry.StartScheduledDump(*metricsDump, filepath.Join(cfg.Dirs.Logs, "escalation_metrics.json"), func(err error) {
			log.Warn().Err(err).Msg("metrics dump failed")
		})
	}

	go func() {
		log.Info().
			Str("addr", *httpAddr).
			Bool("model_loaded", server.ModelLoaded()).
			Bool("ip_reputation", deps.Reputation != nil).
			Bool("local_llm", deps.LocalLLM != nil).
			Bool("external_api", deps.External != nil).
			Msg("escalation engine listening")
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
