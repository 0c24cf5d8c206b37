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
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mileusna/useragent"

	"antiscrape/internal/redisstore"
)

// Features is the flat vector handed to the rule scorer and the model.
// Values are bool, int, float64 or string; the model reads only the numeric
// and boolean entries.
type Features map[string]any

// Extractor turns request metadata plus a frequency reading into features.
type Extractor struct {
	robots     *RobotsRules
	knownBad   []string
	knownGood  []string
	windowSecs int
}

// NewExtractor binds the robots rules, UA substring lists and the frequency
// window used to name the request-frequency feature.
func NewExtractor(robots *RobotsRules, knownBad, knownGood []string, window time.Duration) *Extractor {
	return &Extractor{
		robots:     robots,
		knownBad:   lowerAll(knownBad),
		knownGood:  lowerAll(knownGood),
		windowSecs: int(window.Seconds()),
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// FrequencyFeatureName is the window-qualified key for the request count,
// e.g. "req_freq_300s".
func (e *Extractor) FrequencyFeatureName() string {
	return "req_freq_" + strconv.Itoa(e.windowSecs) + "s"
}

// KnownBad reports whether ua matches the known-bad substring list.
func (e *Extractor) KnownBad(ua string) bool {
	return containsAny(strings.ToLower(ua), e.knownBad)
}

// KnownBenign reports whether ua matches the benign-crawler substring list.
func (e *Extractor) KnownBenign(ua string) bool {
	return containsAny(strings.ToLower(ua), e.knownGood)
}

// Extract builds the feature vector. Names are the model's wire contract:
// Model.Weights is keyed by them, so a trained model only scores correctly
// when every key matches. The frequency reading carries -1 for
// time_since_last_sec when the IP has no earlier hit in the window.
// Request metadata carries no response status, byte count or method, so
// those features keep their training-time defaults.
func (e *Extractor) Extract(md Metadata, reading redisstore.Reading) Features {
	path := md.Path
	if path == "" {
		path = "/"
	}

	f := Features{
		"ua_length":                  len(md.UserAgent),
		"status_code":                0,
		"bytes_sent":                 0,
		"http_method":                "UNKNOWN",
		"ua_is_empty":                md.UserAgent == "",
		"ua_is_known_bad":            e.KnownBad(md.UserAgent),
		"ua_is_known_benign_crawler": e.KnownBenign(md.UserAgent),
		"path_length":                len(path),
		"path_depth":                 strings.Count(path, "/"),
		"path_is_root":               path == "/",
		"path_has_docs":              strings.Contains(strings.ToLower(path), "/docs"),
		"path_is_wp":                 strings.Contains(path, "/wp-") || strings.Contains(path, "/xmlrpc.php"),
		"path_disallowed":            e.robots != nil && e.robots.Disallowed(path),
		e.FrequencyFeatureName():     reading.Count,
		"time_since_last_sec":        reading.TimeSince,
	}

	if md.UserAgent != "" {
		ua := useragent.Parse(md.UserAgent)
		f["ua_browser_family"] = ua.Name
		f["ua_os_family"] = ua.OS
		f["ua_device_family"] = ua.Device
		f["ua_is_mobile"] = ua.Mobile
		f["ua_is_tablet"] = ua.Tablet
		f["ua_is_pc"] = ua.Desktop
		f["ua_is_touch"] = ua.Mobile || ua.Tablet
		f["ua_library_is_bot"] = ua.Bot
	} else {
		f["ua_browser_family"] = "Unknown"
		f["ua_os_family"] = "Unknown"
		f["ua_device_family"] = "Unknown"
		f["ua_is_mobile"] = false
		f["ua_is_tablet"] = false
		f["ua_is_pc"] = false
		f["ua_is_touch"] = false
		f["ua_library_is_bot"] = e.KnownBad(md.UserAgent)
	}

	f["referer_is_empty"] = md.Referer == ""
	hasDomain := false
	if md.Referer != "" && md.Referer != "-" {
		if u, err := url.Parse(md.Referer); err == nil {
			hasDomain = u.Host != ""
		}
	}
	f["referer_has_domain"] = hasDomain

	if ts, err := parseTimestamp(md.Timestamp); err == nil {
		utc := ts.UTC()
		f["hour_of_day"] = utc.Hour()
		f["day_of_week"] = int(utc.Weekday())
	} else {
		f["hour_of_day"] = -1
		f["day_of_week"] = -1
	}
	return f
}
