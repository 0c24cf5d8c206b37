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
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Classifier answers a three-way bot verdict for one request.
type Classifier interface {
	Classify(ctx context.Context, md Metadata) (Outcome, error)
}

// LLMClassifier asks a local completion endpoint for a one-word verdict.
// Any reply not containing one of the expected labels is inconclusive.
type LLMClassifier struct {
	URL    string
	Model  string
	Client *http.Client
}

// NewLLMClassifier builds a classifier for the local LLM endpoint.
func NewLLMClassifier(apiURL, model string, timeout time.Duration) *LLMClassifier {
	return &LLMClassifier{URL: apiURL, Model: model, Client: &http.Client{Timeout: timeout}}
}

const llmPromptTemplate = `Analyze the following HTTP request metadata and classify the client.
Respond with exactly one of: MALICIOUS_BOT, BENIGN_CRAWLER, HUMAN.

IP Address: %s
User-Agent: %s
Referer: %s
Path: %s
Timestamp: %s

Classification:`

// Classify implements Classifier against an OpenAI-style completions API.
func (c *LLMClassifier) Classify(ctx context.Context, md Metadata) (Outcome, error) {
	prompt := fmt.Sprintf(llmPromptTemplate, md.IP, md.UserAgent, md.Referer, md.Path, md.Timestamp)
	body, err := json.Marshal(map[string]any{
		"model":       c.Model,
		"prompt":      prompt,
		"temperature": 0.1,
		"max_tokens":  10,
		"stream":      false,
	})
	if err != nil {
		return OutcomeInconclusive, fmt.Errorf("marshal llm request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return OutcomeInconclusive, fmt.Errorf("build llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return OutcomeInconclusive, fmt.Errorf("llm classify: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return OutcomeInconclusive, fmt.Errorf("llm classify: status %d", resp.StatusCode)
	}

	var payload struct {
		Choices []struct {
			Text    string `json:"text"`
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return OutcomeInconclusive, fmt.Errorf("decode llm response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return OutcomeInconclusive, nil
	}
	text := payload.Choices[0].Text
	if text == "" {
		text = payload.Choices[0].Message.Content
	}
	return parseVerdict(text), nil
}

// parseVerdict maps the model's free text to an outcome. MALICIOUS_BOT wins
// over the benign labels when both appear.
func parseVerdict(text string) Outcome {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "MALICIOUS_BOT"):
		return OutcomeBot
	case strings.Contains(upper, "BENIGN_CRAWLER"), strings.Contains(upper, "HUMAN"):
		return OutcomeHuman
	default:
		return OutcomeInconclusive
	}
}

// ExternalClassifier posts request metadata to a paid classification API
// answering a boolean is_bot verdict.
type ExternalClassifier struct {
	URL    string
	Key    string
	Client *http.Client
}

// NewExternalClassifier builds a classifier for the external API.
func NewExternalClassifier(apiURL, key string, timeout time.Duration) *ExternalClassifier {
	return &ExternalClassifier{URL: apiURL, Key: key, Client: &http.Client{Timeout: timeout}}
}

// Classify implements Classifier.
func (c *ExternalClassifier) Classify(ctx context.Context, md Metadata) (Outcome, error) {
	body, err := json.Marshal(map[string]any{
		"ipAddress":   md.IP,
		"userAgent":   md.UserAgent,
		"referer":     md.Referer,
		"requestPath": md.Path,
		"headers":     md.Headers,
	})
	if err != nil {
		return OutcomeInconclusive, fmt.Errorf("marshal external request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return OutcomeInconclusive, fmt.Errorf("build external request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Key != "" {
		req.Header.Set("Authorization", "Bearer "+c.Key)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return OutcomeInconclusive, fmt.Errorf("external classify: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return OutcomeInconclusive, fmt.Errorf("external classify: status %d", resp.StatusCode)
	}

	var payload struct {
		IsBot *bool `json:"is_bot"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return OutcomeInconclusive, fmt.Errorf("decode external response: %w", err)
	}
	if payload.IsBot == nil {
		return OutcomeInconclusive, nil
	}
	if *payload.IsBot {
		return OutcomeBot, nil
	}
	return OutcomeHuman, nil
}
