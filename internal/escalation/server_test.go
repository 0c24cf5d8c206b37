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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"antiscrape/internal/config"
	"antiscrape/internal/metrics"
	"antiscrape/internal/redisstore"
)

type fakeFrequency struct {
	reading redisstore.Reading
	err     error
	alive   bool
}

func (f *fakeFrequency) Observe(context.Context, string, time.Time) (redisstore.Reading, error) {
	return f.reading, f.err
}
func (f *fakeFrequency) Ping(context.Context) bool { return f.alive }

type fakeClassifier struct {
	outcome Outcome
	err     error
	calls   int
}

func (f *fakeClassifier) Classify(context.Context, Metadata) (Outcome, error) {
	f.calls++
	return f.outcome, f.err
}

type fakeReputation struct {
	rep Reputation
	err error
}

func (f *fakeReputation) Check(context.Context, string) (Reputation, error) {
	return f.rep, f.err
}

type recordingSink struct {
	reasons []string
}

func (r *recordingSink) Notify(_ context.Context, _ Metadata, reason string) error {
	r.reasons = append(r.reasons, reason)
	return nil
}

func testConfig() config.Escalation {
	return config.Escalation{
		ThresholdHigh:   0.8,
		CaptchaLow:      0.2,
		CaptchaHigh:     0.5,
		FrequencyWindow: 300 * time.Second,
		KnownBadUAs:     testBadUAs,
		KnownBenignUAs:  testBenignUAs,

		IPReputationBonus: 0.3,
	}
}

func postEscalate(t *testing.T, srv *Server, md Metadata) (int, map[string]any) {
	t.Helper()
	body, err := json.Marshal(md)
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/escalate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	var resp map[string]any
	if rec.Code == http.StatusOK || rec.Code == http.StatusUnprocessableEntity {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("response is not JSON: %v", err)
		}
	}
	return rec.Code, resp
}

// TestEscalate_HighScoreDispatchesExactlyOnce verifies the high band: bot
// verdict, the scored reason string, and a single sink event.
func TestEscalate_HighScoreDispatchesExactlyOnce(t *testing.T) {
	sink := &recordingSink{}
	srv := NewServer(testConfig(), zerolog.Nop(), metrics.NewRegistry(), Deps{
		Frequency: &fakeFrequency{reading: redisstore.Reading{Count: 5, TimeSince: 0.1}, alive: true},
		Sink:      sink,
	})

	md := baseMetadata()
	md.UserAgent = "curl/8.4.0" // 0.7 bad UA + 0.2 burst = 0.9
	code, resp := postEscalate(t, srv, md)

	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp["action"] != "webhook_triggered_high_score" {
		t.Fatalf("unexpected action: %v", resp["action"])
	}
	if resp["is_bot_decision"] != true {
		t.Fatalf("expected bot decision, got %v", resp["is_bot_decision"])
	}
	if len(sink.reasons) != 1 {
		t.Fatalf("expected exactly one sink dispatch, got %d", len(sink.reasons))
	}
	if !strings.HasPrefix(sink.reasons[0], "High Combined Score (0.9") {
		t.Fatalf("unexpected reason: %q", sink.reasons[0])
	}
}

// TestEscalate_LowScoreIsHuman verifies the low band never touches the sink
// or the classifiers.
func TestEscalate_LowScoreIsHuman(t *testing.T) {
	sink := &recordingSink{}
	llm := &fakeClassifier{outcome: OutcomeBot}
	srv := NewServer(testConfig(), zerolog.Nop(), metrics.NewRegistry(), Deps{
		Frequency: &fakeFrequency{reading: redisstore.Reading{TimeSince: -1}, alive: true},
		Sink:      sink,
		LocalLLM:  llm,
	})

	code, resp := postEscalate(t, srv, baseMetadata())
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp["action"] != "classified_human_low_score" {
		t.Fatalf("unexpected action: %v", resp["action"])
	}
	if resp["is_bot_decision"] != false {
		t.Fatalf("expected human decision, got %v", resp["is_bot_decision"])
	}
	if len(sink.reasons) != 0 || llm.calls != 0 {
		t.Fatalf("low band must not dispatch or classify (sink=%d llm=%d)", len(sink.reasons), llm.calls)
	}
}

// TestEscalate_CaptchaBand verifies the captcha short-circuit leaves the
// verdict open and skips the classifiers.
func TestEscalate_CaptchaBand(t *testing.T) {
	cfg := testConfig()
	cfg.EnableCaptcha = true
	llm := &fakeClassifier{outcome: OutcomeBot}
	srv := NewServer(cfg, zerolog.Nop(), metrics.NewRegistry(), Deps{
		Frequency: &fakeFrequency{reading: redisstore.Reading{Count: 35, TimeSince: 0.1}, alive: true},
		LocalLLM:  llm,
	})

	// 0.1 frequency + 0.2 burst = 0.3, inside [0.2, 0.5).
	code, resp := postEscalate(t, srv, baseMetadata())
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp["action"] != "captcha_triggered" {
		t.Fatalf("unexpected action: %v", resp["action"])
	}
	if resp["is_bot_decision"] != nil {
		t.Fatalf("captcha band must leave the verdict open, got %v", resp["is_bot_decision"])
	}
	if llm.calls != 0 {
		t.Fatalf("captcha band must not reach the classifier")
	}
}

// TestEscalate_LadderLLMThenExternal verifies an inconclusive LLM falls
// through to the external API and its bot verdict dispatches.
func TestEscalate_LadderLLMThenExternal(t *testing.T) {
	sink := &recordingSink{}
	llm := &fakeClassifier{outcome: OutcomeInconclusive, err: errors.New("gibberish reply")}
	ext := &fakeClassifier{outcome: OutcomeBot}
	srv := NewServer(testConfig(), zerolog.Nop(), metrics.NewRegistry(), Deps{
		Frequency: &fakeFrequency{reading: redisstore.Reading{Count: 35, TimeSince: 0.1}, alive: true},
		Sink:      sink,
		LocalLLM:  llm,
		External:  ext,
	})

	// Score 0.3 with captcha disabled lands in the classification band.
	code, resp := postEscalate(t, srv, baseMetadata())
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp["action"] != "webhook_triggered_external_api" {
		t.Fatalf("unexpected action: %v", resp["action"])
	}
	if llm.calls != 1 || ext.calls != 1 {
		t.Fatalf("expected both rungs exercised (llm=%d ext=%d)", llm.calls, ext.calls)
	}
	if len(sink.reasons) != 1 || sink.reasons[0] != "External API Classification" {
		t.Fatalf("unexpected sink dispatches: %v", sink.reasons)
	}
}

// TestEscalate_LadderExhausted verifies both rungs inconclusive ends with
// no verdict and no dispatch.
func TestEscalate_LadderExhausted(t *testing.T) {
	sink := &recordingSink{}
	srv := NewServer(testConfig(), zerolog.Nop(), metrics.NewRegistry(), Deps{
		Frequency: &fakeFrequency{reading: redisstore.Reading{Count: 35, TimeSince: 0.1}, alive: true},
		Sink:      sink,
		LocalLLM:  &fakeClassifier{outcome: OutcomeInconclusive},
		External:  &fakeClassifier{outcome: OutcomeInconclusive},
	})

	code, resp := postEscalate(t, srv, baseMetadata())
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp["action"] != "external_api_inconclusive" {
		t.Fatalf("unexpected action: %v", resp["action"])
	}
	if resp["is_bot_decision"] != nil {
		t.Fatalf("expected open verdict, got %v", resp["is_bot_decision"])
	}
	if len(sink.reasons) != 0 {
		t.Fatalf("no dispatch expected, got %v", sink.reasons)
	}
}

// TestEscalate_LLMHumanStopsLadder verifies a human verdict from the local
// rung never consults the external API.
func TestEscalate_LLMHumanStopsLadder(t *testing.T) {
	ext := &fakeClassifier{outcome: OutcomeBot}
	srv := NewServer(testConfig(), zerolog.Nop(), metrics.NewRegistry(), Deps{
		Frequency: &fakeFrequency{reading: redisstore.Reading{Count: 35, TimeSince: 0.1}, alive: true},
		LocalLLM:  &fakeClassifier{outcome: OutcomeHuman},
		External:  ext,
	})

	_, resp := postEscalate(t, srv, baseMetadata())
	if resp["action"] != "classified_human_local_llm" {
		t.Fatalf("unexpected action: %v", resp["action"])
	}
	if ext.calls != 0 {
		t.Fatalf("external API must not run after a local verdict")
	}
}

// TestEscalate_ReputationBonusPushesHigh verifies the malicious-IP bonus
// can lift a mid-band score over the high threshold.
func TestEscalate_ReputationBonusPushesHigh(t *testing.T) {
	sink := &recordingSink{}
	srv := NewServer(testConfig(), zerolog.Nop(), metrics.NewRegistry(), Deps{
		Frequency:  &fakeFrequency{reading: redisstore.Reading{TimeSince: -1}, alive: true},
		Reputation: &fakeReputation{rep: Reputation{Checked: true, Malicious: true, Score: 97}},
		Sink:       sink,
	})

	md := baseMetadata()
	md.UserAgent = "curl/8.4.0" // 0.7 + 0.3 bonus = 1.0
	_, resp := postEscalate(t, srv, md)
	if resp["action"] != "webhook_triggered_high_score" {
		t.Fatalf("unexpected action: %v", resp["action"])
	}
	if len(sink.reasons) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(sink.reasons))
	}
}

// TestEscalate_FrequencyErrorDegrades verifies a broken tracker still
// produces a verdict instead of a 500.
func TestEscalate_FrequencyErrorDegrades(t *testing.T) {
	srv := NewServer(testConfig(), zerolog.Nop(), metrics.NewRegistry(), Deps{
		Frequency: &fakeFrequency{err: errors.New("connection refused")},
	})

	code, resp := postEscalate(t, srv, baseMetadata())
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp["action"] != "classified_human_low_score" {
		t.Fatalf("unexpected action: %v", resp["action"])
	}
}

// TestEscalate_RejectsInvalidPayloads verifies malformed JSON and missing
// required fields both return 422.
func TestEscalate_RejectsInvalidPayloads(t *testing.T) {
	srv := NewServer(testConfig(), zerolog.Nop(), metrics.NewRegistry(), Deps{
		Frequency: &fakeFrequency{alive: true},
	})

	req := httptest.NewRequest(http.MethodPost, "/escalate", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("malformed body: expected 422, got %d", rec.Code)
	}

	md := baseMetadata()
	md.IP = ""
	code, _ := postEscalate(t, srv, md)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("missing ip: expected 422, got %d", code)
	}
}

// TestHealth_ReportsModelAndRedis verifies the health document fields.
func TestHealth_ReportsModelAndRedis(t *testing.T) {
	srv := NewServer(testConfig(), zerolog.Nop(), metrics.NewRegistry(), Deps{
		Frequency: &fakeFrequency{alive: false},
		Model:     &Model{Weights: map[string]float64{"x": 1}},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("health is not JSON: %v", err)
	}
	if resp["status"] != "degraded" {
		t.Fatalf("expected degraded status, got %v", resp["status"])
	}
	if resp["redis_frequency_connected"] != false {
		t.Fatalf("expected redis_frequency_connected=false")
	}
	if resp["model_loaded"] != true {
		t.Fatalf("expected model_loaded=true")
	}
}

// TestHTTPSinkNotifier_PostsEvent verifies the wire shape of the dispatched
// sink event.
func TestHTTPSinkNotifier_PostsEvent(t *testing.T) {
	var got map[string]any
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad sink body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	md := baseMetadata()
	err := NewSinkNotifier(sink.URL).Notify(context.Background(), md, "External API Classification")
	if err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}
	if got["event_type"] != "suspicious_activity_detected" {
		t.Fatalf("unexpected event_type: %v", got["event_type"])
	}
	if got["reason"] != "External API Classification" {
		t.Fatalf("unexpected reason: %v", got["reason"])
	}
	details, _ := got["details"].(map[string]any)
	if details["ip"] != md.IP {
		t.Fatalf("details missing ip: %v", details)
	}
}

// TestLLMClassifier_ParsesVerdicts verifies label extraction from both
// completion shapes and the inconclusive fallback.
func TestLLMClassifier_ParsesVerdicts(t *testing.T) {
	reply := `MALICIOUS_BOT`
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"text": reply}},
		})
	}))
	defer llmSrv.Close()

	c := NewLLMClassifier(llmSrv.URL, "test-model", time.Second)
	out, err := c.Classify(context.Background(), baseMetadata())
	if err != nil || out != OutcomeBot {
		t.Fatalf("expected bot verdict, got %v (%v)", out, err)
	}

	reply = "I believe this is a HUMAN visitor"
	out, err = c.Classify(context.Background(), baseMetadata())
	if err != nil || out != OutcomeHuman {
		t.Fatalf("expected human verdict, got %v (%v)", out, err)
	}

	reply = "cannot say"
	out, err = c.Classify(context.Background(), baseMetadata())
	if err != nil || out != OutcomeInconclusive {
		t.Fatalf("expected inconclusive, got %v (%v)", out, err)
	}
}
