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

package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const httpAlertTimeout = 10 * time.Second

// WebhookTransport posts a JSON alert document to a generic endpoint.
type WebhookTransport struct {
	URL    string
	Client *http.Client
}

// NewWebhookTransport returns a transport posting to url.
func NewWebhookTransport(url string) *WebhookTransport {
	return &WebhookTransport{URL: url, Client: &http.Client{Timeout: httpAlertTimeout}}
}

// Name implements Transport.
func (*WebhookTransport) Name() string { return "webhook" }

// Send implements Transport.
func (t *WebhookTransport) Send(ctx context.Context, ev Event) error {
	payload := map[string]any{
		"alert_type": "AI_DEFENSE_BLOCK",
		"reason":     ev.Reason,
		"timestamp":  ev.TimestampUTC,
		"ip_address": ev.IP,
		"user_agent": ev.UserAgent,
		"details":    ev.Details,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// SlackTransport posts a plain-text message to a Slack incoming webhook.
type SlackTransport struct {
	URL    string
	Client *http.Client
}

// NewSlackTransport returns a transport posting to the incoming-webhook url.
func NewSlackTransport(url string) *SlackTransport {
	return &SlackTransport{URL: url, Client: &http.Client{Timeout: httpAlertTimeout}}
}

// Name implements Transport.
func (*SlackTransport) Name() string { return "slack" }

// Send implements Transport.
func (t *SlackTransport) Send(ctx context.Context, ev Event) error {
	message := fmt.Sprintf(":shield: *AI Defense Alert*\n> *Reason:* %s\n> *IP Address:* `%s`\n> *User Agent:* `%s`\n> *Timestamp (UTC):* %s",
		ev.Reason, ev.IP, ev.UserAgent, ev.TimestampUTC)
	body, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
