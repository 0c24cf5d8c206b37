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

// Package main is the entry point for the Webhook Sink.
//
// The sink is the action tier of the defense pipeline: detection events
// arrive here, auto-block decisions land on the shared Redis blocklist,
// blocked IPs are optionally filed with the community abuse database, and
// operator alerts go out over the configured transport.
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

	"antiscrape/internal/alert"
	"antiscrape/internal/config"
	"antiscrape/internal/eventlog"
	"antiscrape/internal/metrics"
	"antiscrape/internal/redisstore"
	"antiscrape/internal/webhook"
)

func main() {
	httpAddr := flag.String("http_addr", ":8000", "HTTP listen address")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9100)")
	metricsDump := flag.Duration("metrics_dump_interval", time.Minute, "How often to dump the JSON metrics snapshot; 0 disables")
	logLevel := flag.String("log_level", os.Getenv("LOG_LEVEL"), "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg := config.LoadWebhook()
	log := eventlog.NewServiceLogger("webhook", *logLevel)
	registry := metrics.NewRegistry()

	openLog := func(name string) *eventlog.Logger {
		l, err := eventlog.Open(cfg.Dirs.Logs, name)
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("event log unavailable, events will be dropped")
			return eventlog.Nop()
		}
		return l
	}
	blockLog := openLog(eventlog.BlockFile)
	alertLog := openLog(eventlog.AlertFile)
	communityLog := openLog(eventlog.CommunityFile)
	defer blockLog.Close()
	defer alertLog.Close()
	defer communityLog.Close()

	deps := webhook.Deps{
		Blocklist:    redisstore.NewBlocklist(redisstore.NewClient(cfg.RedisBlocklist), cfg.BlocklistTTL),
		Alerts:       alert.NewDispatcher(buildTransport(cfg), cfg.AlertMinSeverity),
		BlockLog:     blockLog,
		AlertLog:     alertLog,
		CommunityLog: communityLog,
	}
	if cfg.EnableCommunityReport && cfg.CommunityReportURL != "" && cfg.CommunityReportKey != "" {
		deps.Reporter = webhook.NewCommunityReporter(
			cfg.CommunityReportURL, cfg.CommunityReportKey, cfg.CommunityReportTimeout)
	}

	server := webhook.NewServer(cfg, log, registry, deps)
	httpServer := &http.Server{Addr: *httpAddr, Handler: server.Routes()}

	metrics.ServePrometheus(*metricsAddr)
	if *metricsDump > 0 {
		registry.StartScheduledDump(*metricsDump, filepath.Join(cfg.Dirs.Logs, "webhook_metrics.json"), func(err error) {
			log.Warn().Err(err).Msg("metrics dump failed")
		})
	}

	go func() {
		log.Info().
			Str("addr", *httpAddr).
			Str("alert_method", deps.Alerts.TransportName()).
			Bool("community_reporting", deps.Reporter != nil).
			Msg("webhook sink listening")
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

// buildTransport selects the alert channel from configuration. Unknown
// methods fall back to the no-op transport.
func buildTransport(cfg config.Webhook) alert.Transport {
	switch cfg.AlertMethod {
	case "webhook":
		if cfg.AlertWebhookURL != "" {
			return alert.NewWebhookTransport(cfg.AlertWebhookURL)
		}
	case "slack":
		if cfg.AlertSlackURL != "" {
			return alert.NewSlackTransport(cfg.AlertSlackURL)
		}
	case "smtp":
		return &alert.SMTPTransport{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			UseTLS:   cfg.SMTPUseTLS,
			From:     cfg.EmailFrom,
			To:       cfg.EmailTo,
		}
	}
	return alert.NopTransport{}
}
