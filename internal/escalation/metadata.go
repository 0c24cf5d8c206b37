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

// Package escalation scores request metadata for bot likelihood. The
// pipeline is strictly sequential: rule and model scores combine first, an
// optional IP-reputation bonus adjusts the result, and only the middle band
// escalates to the local LLM and then the external classifier. Confirmed
// bots dispatch exactly one event to the webhook sink.
package escalation

import (
	"fmt"
	"time"
)

// Metadata is the request record forwarded by the tarpit (or any upstream
// source tagged via Source).
type Metadata struct {
	Timestamp string            `json:"timestamp"`
	IP        string            `json:"ip"`
	UserAgent string            `json:"user_agent"`
	Referer   string            `json:"referer"`
	Path      string            `json:"path"`
	Headers   map[string]string `json:"headers"`
	Source    string            `json:"source"`
}

// Validate reports the first missing required field.
func (m Metadata) Validate() error {
	if m.IP == "" {
		return fmt.Errorf("metadata missing ip")
	}
	if m.Source == "" {
		return fmt.Errorf("metadata missing source")
	}
	if m.Timestamp == "" {
		return fmt.Errorf("metadata missing timestamp")
	}
	return nil
}

// parseTimestamp accepts RFC3339 with or without fractional seconds.
func parseTimestamp(ts string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, ts)
}

// Outcome is a classifier's three-way answer.
type Outcome int

// Classifier outcomes. Inconclusive covers timeouts, transport errors and
// replies that do not match the expected schema; the decision ladder treats
// all of those the same way and falls through.
const (
	OutcomeInconclusive Outcome = iota
	OutcomeBot
	OutcomeHuman
)
