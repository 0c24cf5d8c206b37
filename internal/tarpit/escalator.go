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

package tarpit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"antiscrape/internal/escalation"
)

const escalateTimeout = 5 * time.Second

// Escalator hands request metadata to the scoring tier.
type Escalator interface {
	Escalate(md escalation.Metadata)
}

// HTTPEscalator posts metadata to the escalation engine, fire-and-forget.
// Delivery runs on its own goroutine with a detached timeout so a slow or
// absent engine never stalls the trap response.
type HTTPEscalator struct {
	URL    string
	Client *http.Client
	OnErr  func(error)
}

// NewHTTPEscalator builds an escalator posting to url. onErr receives
// delivery failures for logging and counting; it may be nil.
func NewHTTPEscalator(url string, onErr func(error)) *HTTPEscalator {
	return &HTTPEscalator{
		URL:    url,
		Client: &http.Client{Timeout: escalateTimeout},
		OnErr:  onErr,
	}
}

// Escalate implements Escalator.
func (e *HTTPEscalator) Escalate(md escalation.Metadata) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), escalateTimeout)
		defer cancel()
		if err := e.post(ctx, md); err != nil && e.OnErr != nil {
			e.OnErr(err)
		}
	}()
}

func (e *HTTPEscalator) post(ctx context.Context, md escalation.Metadata) error {
	body, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshal escalation metadata: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build escalation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post escalation for %s: %w", md.IP, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("escalation engine returned status %d for %s", resp.StatusCode, md.IP)
	}
	return nil
}
