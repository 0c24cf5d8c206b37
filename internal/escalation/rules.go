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

// Rule weights. Benign crawlers skip the bad-UA and robots penalties
// entirely and receive the benign credit instead.
const (
	weightKnownBadUA      = 0.7
	weightEmptyUA         = 0.5
	weightRobotsViolation = 0.6
	weightHighFrequency   = 0.3
	weightMediumFrequency = 0.1
	weightBurstInterval   = 0.2
	creditKnownBenign     = 0.5

	highFrequencyCount   = 60
	mediumFrequencyCount = 30
	burstIntervalSec     = 0.3
)

// RuleScore computes the heuristic score in [0, 1] from a feature vector.
func (e *Extractor) RuleScore(f Features) float64 {
	score := 0.0
	benign := boolFeature(f, "ua_is_known_benign_crawler")

	if boolFeature(f, "ua_is_known_bad") && !benign {
		score += weightKnownBadUA
	}
	if boolFeature(f, "ua_is_empty") {
		score += weightEmptyUA
	}
	if boolFeature(f, "path_disallowed") && !benign {
		score += weightRobotsViolation
	}

	switch freq := intFeature(f, e.FrequencyFeatureName()); {
	case freq > highFrequencyCount:
		score += weightHighFrequency
	case freq > mediumFrequencyCount:
		score += weightMediumFrequency
	}

	if since := floatFeature(f, "time_since_last_sec"); since >= 0 && since < burstIntervalSec {
		score += weightBurstInterval
	}

	if benign {
		score -= creditKnownBenign
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func boolFeature(f Features, key string) bool {
	b, _ := f[key].(bool)
	return b
}

func intFeature(f Features, key string) int64 {
	switch v := f[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func floatFeature(f Features, key string) float64 {
	switch v := f[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}
