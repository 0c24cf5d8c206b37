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

package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"antiscrape/internal/config"
	"antiscrape/internal/metrics"
	"antiscrape/internal/redisstore"
)

// Combined-score weighting when a trained model is present.
const (
	ruleWeight  = 0.3
	modelWeight = 0.7
)

// FrequencySource supplies sliding-window request statistics per IP.
type FrequencySource interface {
	Observe(ctx context.Context, ip string, now time.Time) (redisstore.Reading, error)
	Ping(ctx context.Context) bool
}

// Deps are the injectable collaborators of the engine. Nil classifier and
// reputation fields disable the corresponding ladder rungs.
type Deps struct {
	Frequency  FrequencySource
	Reputation ReputationChecker
	LocalLLM   Classifier
	External   Classifier
	Sink       SinkNotifier
	Model      *Model
	Robots     *RobotsRules
}

// Server is the Escalation Engine HTTP service.
type Server struct {
	cfg       config.Escalation
	log       zerolog.Logger
	registry  *metrics.Registry
	extractor *Extractor

	freq       FrequencySource
	reputation ReputationChecker
	localLLM   Classifier
	external   Classifier
	sink       SinkNotifier
	model      *Model
}

// NewServer wires an engine from configuration and collaborators.
func NewServer(cfg config.Escalation, log zerolog.Logger, registry *metrics.Registry, deps Deps) *Server {
	robots := deps.Robots
	if robots == nil {
		robots = &RobotsRules{}
	}
	return &Server{
		cfg:        cfg,
		log:        log,
		registry:   registry,
		extractor:  NewExtractor(robots, cfg.KnownBadUAs, cfg.KnownBenignUAs, cfg.FrequencyWindow),
		freq:       deps.Frequency,
		reputation: deps.Reputation,
		localLLM:   deps.LocalLLM,
		external:   deps.External,
		sink:       deps.Sink,
		model:      deps.Model,
	}
}

// ModelLoaded reports whether a trained model backs the combined score.
func (s *Server) ModelLoaded() bool { return s.model != nil }

// Routes registers the engine's handlers on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /escalate", s.handleEscalate)
	mux.Handle("GET /metrics", s.registry.Handler())
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// verdict is the outcome of one pass through the decision ladder.
type verdict struct {
	action string
	isBot  *bool // nil when no definitive decision was reached
	score  float64
	reason string // non-empty only for sink-dispatched decisions
}

func boolPtr(b bool) *bool { return &b }

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	s.registry.Increment("escalation_requests_received")

	var md Metadata
	if err := json.NewDecoder(r.Body).Decode(&md); err != nil {
		s.registry.Increment("escalation_requests_invalid")
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"status": "error", "detail": "malformed request body: " + err.Error(),
		})
		return
	}
	if err := md.Validate(); err != nil {
		s.registry.Increment("escalation_requests_invalid")
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"status": "error", "detail": err.Error(),
		})
		return
	}

	v := s.analyze(r.Context(), md)

	if v.reason != "" {
		s.dispatch(r.Context(), md, v.reason)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "processed",
		"action":          v.action,
		"is_bot_decision": v.isBot,
		"score":           round3(v.score),
	})
}

// analyze runs the scoring pipeline and decision ladder for one request.
func (s *Server) analyze(ctx context.Context, md Metadata) verdict {
	reading := redisstore.Reading{TimeSince: -1}
	if s.freq != nil {
		var err error
		reading, err = s.freq.Observe(ctx, md.IP, time.Now())
		if err != nil {
			// Degrade to a zero reading; frequency is one signal of many.
			s.registry.Increment("frequency_tracker_errors")
			s.log.Warn().Err(err).Str("ip", md.IP).Msg("frequency tracking unavailable")
			reading = redisstore.Reading{TimeSince: -1}
		}
	}

	features := s.extractor.Extract(md, reading)
	ruleScore := s.extractor.RuleScore(features)

	score := ruleScore
	if s.model != nil {
		score = clamp01(ruleWeight*ruleScore + modelWeight*s.model.Predict(features))
	}

	var rep Reputation
	if s.reputation != nil {
		var err error
		rep, err = s.reputation.Check(ctx, md.IP)
		if err != nil {
			s.registry.Increment("ip_reputation_errors")
			s.log.Warn().Err(err).Str("ip", md.IP).Msg("ip reputation lookup failed")
		}
		if rep.Malicious {
			s.registry.Increment("ip_reputation_malicious_hits")
			score = clamp01(score + s.cfg.IPReputationBonus)
		}
	}

	s.log.Debug().
		Str("ip", md.IP).
		Float64("rule_score", ruleScore).
		Float64("combined_score", score).
		Bool("reputation_malicious", rep.Malicious).
		Msg("request scored")

	switch {
	case score >= s.cfg.ThresholdHigh:
		s.registry.Increment("bots_detected_high_score")
		return verdict{
			action: "webhook_triggered_high_score",
			isBot:  boolPtr(true),
			score:  score,
			reason: fmt.Sprintf("High Combined Score (%.3f)", score),
		}
	case score < s.cfg.CaptchaLow:
		s.registry.Increment("humans_classified_low_score")
		return verdict{action: "classified_human_low_score", isBot: boolPtr(false), score: score}
	case s.cfg.EnableCaptcha && score < s.cfg.CaptchaHigh:
		s.registry.Increment("captcha_challenges_triggered")
		return verdict{action: "captcha_triggered", score: score}
	}

	return s.classify(ctx, md, score)
}

// classify walks the uncertain middle band through the local LLM and then
// the external API. Either rung may be absent or inconclusive.
func (s *Server) classify(ctx context.Context, md Metadata, score float64) verdict {
	v := verdict{action: "analysis_complete", score: score}

	if s.localLLM != nil {
		outcome, err := s.localLLM.Classify(ctx, md)
		if err != nil {
			s.registry.Increment("local_llm_errors")
			s.log.Warn().Err(err).Str("ip", md.IP).Msg("local llm classification failed")
		}
		switch outcome {
		case OutcomeBot:
			s.registry.Increment("bots_detected_local_llm")
			return verdict{
				action: "webhook_triggered_local_llm",
				isBot:  boolPtr(true),
				score:  score,
				reason: "Local LLM Classification",
			}
		case OutcomeHuman:
			s.registry.Increment("humans_classified_local_llm")
			return verdict{action: "classified_human_local_llm", isBot: boolPtr(false), score: score}
		default:
			s.registry.Increment("local_llm_inconclusive")
			v.action = "local_llm_inconclusive"
		}
	}

	if s.external != nil {
		outcome, err := s.external.Classify(ctx, md)
		if err != nil {
			s.registry.Increment("external_api_errors")
			s.log.Warn().Err(err).Str("ip", md.IP).Msg("external classification failed")
		}
		switch outcome {
		case OutcomeBot:
			s.registry.Increment("bots_detected_external_api")
			return verdict{
				action: "webhook_triggered_external_api",
				isBot:  boolPtr(true),
				score:  score,
				reason: "External API Classification",
			}
		case OutcomeHuman:
			s.registry.Increment("humans_classified_external_api")
			return verdict{action: "classified_human_external_api", isBot: boolPtr(false), score: score}
		default:
			s.registry.Increment("external_api_inconclusive")
			v.action = "external_api_inconclusive"
		}
	}

	return v
}

// dispatch forwards a confirmed-bot event to the sink. Delivery failures
// are logged and counted; the escalation response succeeds regardless.
func (s *Server) dispatch(ctx context.Context, md Metadata, reason string) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Notify(ctx, md, reason); err != nil {
		s.registry.Increment("webhook_dispatch_errors")
		s.log.Error().Err(err).Str("ip", md.IP).Str("reason", reason).Msg("webhook dispatch failed")
		return
	}
	s.registry.Increment("webhook_dispatches_sent")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	redisOK := s.freq != nil && s.freq.Ping(r.Context())
	status := "ok"
	if !redisOK {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                    status,
		"redis_frequency_connected": redisOK,
		"model_loaded":              s.ModelLoaded(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
