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
	"io"
	"net/http"
	"net/url"
	"time"
)

// Reputation is an IP reputation verdict.
type Reputation struct {
	Checked   bool
	Malicious bool
	Score     float64 // abuse confidence, 0-100
}

// ReputationChecker answers reputation lookups for single IPs.
type ReputationChecker interface {
	Check(ctx context.Context, ip string) (Reputation, error)
}

// HTTPReputationChecker queries an AbuseIPDB-compatible check endpoint.
type HTTPReputationChecker struct {
	URL          string
	Key          string
	MinMalicious float64
	Client       *http.Client
}

// NewReputationChecker builds a checker with the given malicious threshold.
func NewReputationChecker(apiURL, key string, minMalicious float64, timeout time.Duration) *HTTPReputationChecker {
	return &HTTPReputationChecker{
		URL:          apiURL,
		Key:          key,
		MinMalicious: minMalicious,
		Client:       &http.Client{Timeout: timeout},
	}
}

// Check implements ReputationChecker. The verdict is malicious when the
// abuse confidence score meets the configured threshold.
func (c *HTTPReputationChecker) Check(ctx context.Context, ip string) (Reputation, error) {
	q := url.Values{}
	q.Set("ipAddress", ip)
	q.Set("maxAgeInDays", "90")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL+"?"+q.Encode(), nil)
	if err != nil {
		return Reputation{}, fmt.Errorf("build reputation request: %w", err)
	}
	req.Header.Set("Key", c.Key)
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return Reputation{}, fmt.Errorf("reputation lookup for %s: %w", ip, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Reputation{}, fmt.Errorf("reputation lookup for %s: status %d", ip, resp.StatusCode)
	}

	var payload struct {
		Data struct {
			AbuseConfidenceScore float64 `json:"abuseConfidenceScore"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Reputation{}, fmt.Errorf("decode reputation response for %s: %w", ip, err)
	}
	score := payload.Data.AbuseConfidenceScore
	return Reputation{
		Checked:   true,
		Malicious: score >= c.MinMalicious,
		Score:     score,
	}, nil
}
