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
	"bufio"
	"os"
	"strings"
)

// RobotsRules holds the Disallow prefixes declared for the wildcard agent.
// Only the "User-agent: *" group is honoured; a bare "Disallow: /" rule is
// skipped so it cannot mark every path suspicious.
type RobotsRules struct {
	disallow []string
}

// LoadRobots parses the robots.txt file at path. A missing or unreadable
// file yields an empty, usable rule set and the error for logging.
func LoadRobots(path string) (*RobotsRules, error) {
	r := &RobotsRules{}
	f, err := os.Open(path)
	if err != nil {
		return r, err
	}
	defer f.Close()

	inWildcard := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "user-agent":
			inWildcard = value == "*"
		case "disallow":
			if inWildcard && value != "" && value != "/" {
				r.disallow = append(r.disallow, value)
			}
		}
	}
	return r, scanner.Err()
}

// Len reports how many disallow prefixes are loaded.
func (r *RobotsRules) Len() int { return len(r.disallow) }

// Disallowed reports whether path falls under any disallow prefix. A
// candidate without a leading "/" is normalized before matching.
func (r *RobotsRules) Disallowed(path string) bool {
	if path == "" || len(r.disallow) == 0 {
		return false
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	for _, prefix := range r.disallow {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
