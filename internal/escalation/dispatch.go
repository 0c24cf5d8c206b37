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
	"time"
)

const sinkDispatchTimeout = 10 * time.Second

// SinkNotifier delivers a confirmed-bot event downstream.
type SinkNotifier interface {
	Notify(ctx context.Context, md Metadata, reason string) error
}

// HTTPSinkNotifier posts suspicious-activity events to the webhook sink.
// A failed delivery never fails the escalation response; the caller logs
// and counts the error.
type HTTPSinkNotifier struct {
	URL    string
	Client *http.Client
}

// NewSinkNotifier builds a notifier posting to the sink's analyze endpoint.
func NewSinkNotifier(url string) *HTTPSinkNotifier {
	return &HTTPSinkNotifier{URL: url, Client: &http.Client{Timeout: sinkDispatchTimeout}}
}

// Notify implements SinkNotifier.
func (n *HTTPSinkNotifier) Notify(ctx context.Context, md Metadata, reason string) error {
	payload := map[string]any{
		"event_type":    "suspicious_activity_detected",
		"reason":        reason,
		"timestamp_utc": time.Now().UTC().Format(time.RFC3339Nano),
		"details": map[string]any{
			"timestamp":  md.Timestamp,
			"ip":         md.IP,
			"user_agent": md.UserAgent,
			"referer":    md.Referer,
			"path":       md.Path,
			"headers":    md.Headers,
			"source":     md.Source,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sink event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post sink event for %s: %w", md.IP, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sink returned status %d for %s", resp.StatusCode, md.IP)
	}
	return nil
}
