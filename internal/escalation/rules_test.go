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

// Package escalation contains tests for feature extraction and the
// heuristic rule scorer.
package escalation

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"antiscrape/internal/redisstore"
)

var (
	testBadUAs    = []string{"python-requests", "curl", "wget", "scrapy", "gptbot", "scan"}
	testBenignUAs = []string{"googlebot", "bingbot", "duckduckbot"}
)

func testExtractor(t *testing.T, robotsBody string) *Extractor {
	t.Helper()
	var rules *RobotsRules
	if robotsBody != "" {
		path := filepath.Join(t.TempDir(), "robots.txt")
		if err := os.WriteFile(path, []byte(robotsBody), 0o644); err != nil {
			t.Fatalf("write robots fixture: %v", err)
		}
		var err error
		rules, err = LoadRobots(path)
		if err != nil {
			t.Fatalf("LoadRobots returned error: %v", err)
		}
	} else {
		rules = &RobotsRules{}
	}
	return NewExtractor(rules, testBadUAs, testBenignUAs, 300*time.Second)
}

func scoreFor(t *testing.T, e *Extractor, md Metadata, reading redisstore.Reading) float64 {
	t.Helper()
	return e.RuleScore(e.Extract(md, reading))
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func baseMetadata() Metadata {
	return Metadata{
		Timestamp: "2026-03-01T12:00:00Z",
		IP:        "203.0.113.9",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		Path:      "/products",
		Source:    "tarpit_engine",
	}
}

func cleanReading() redisstore.Reading { return redisstore.Reading{TimeSince: -1} }

// TestRuleScore_CleanBrowserScoresZero verifies an ordinary browser request
// with no frequency signal scores 0.
func TestRuleScore_CleanBrowserScoresZero(t *testing.T) {
	e := testExtractor(t, "")
	if got := scoreFor(t, e, baseMetadata(), cleanReading()); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

// TestRuleScore_KnownBadUserAgent verifies the 0.7 penalty and its case
// insensitivity.
func TestRuleScore_KnownBadUserAgent(t *testing.T) {
	e := testExtractor(t, "")
	md := baseMetadata()
	md.UserAgent = "Curl/8.4.0"
	if got := scoreFor(t, e, md, cleanReading()); !almostEqual(got, 0.7) {
		t.Fatalf("expected 0.7, got %v", got)
	}
}

// TestRuleScore_EmptyUserAgent verifies the 0.5 penalty.
func TestRuleScore_EmptyUserAgent(t *testing.T) {
	e := testExtractor(t, "")
	md := baseMetadata()
	md.UserAgent = ""
	if got := scoreFor(t, e, md, cleanReading()); !almostEqual(got, 0.5) {
		t.Fatalf("expected 0.5, got %v", got)
	}
}

// TestRuleScore_RobotsDisallowedPath verifies the 0.6 penalty for walking
// into a disallowed prefix, and that the bare "/" rule is ignored.
func TestRuleScore_RobotsDisallowedPath(t *testing.T) {
	e := testExtractor(t, "User-agent: *\nDisallow: /\nDisallow: /admin\n")
	md := baseMetadata()
	md.Path = "/admin/settings"
	if got := scoreFor(t, e, md, cleanReading()); !almostEqual(got, 0.6) {
		t.Fatalf("expected 0.6, got %v", got)
	}

	md.Path = "/products"
	if got := scoreFor(t, e, md, cleanReading()); got != 0 {
		t.Fatalf("bare Disallow: / must not penalise every path, got %v", got)
	}
}

// TestRuleScore_FrequencyBands verifies the >60 and >30 thresholds are
// strict inequalities.
func TestRuleScore_FrequencyBands(t *testing.T) {
	e := testExtractor(t, "")
	md := baseMetadata()
	cases := []struct {
		count int64
		want  float64
	}{
		{30, 0},
		{31, 0.1},
		{60, 0.1},
		{61, 0.3},
		{500, 0.3},
	}
	for _, tc := range cases {
		got := scoreFor(t, e, md, redisstore.Reading{Count: tc.count, TimeSince: -1})
		if !almostEqual(got, tc.want) {
			t.Fatalf("count %d: expected %v, got %v", tc.count, tc.want, got)
		}
	}
}

// TestRuleScore_BurstInterval verifies the sub-300ms burst penalty and both
// boundary behaviors (exactly 0.3s, and the -1 no-prior-hit sentinel).
func TestRuleScore_BurstInterval(t *testing.T) {
	e := testExtractor(t, "")
	md := baseMetadata()
	cases := []struct {
		since float64
		want  float64
	}{
		{0, 0.2},
		{0.299, 0.2},
		{0.3, 0},
		{-1, 0},
	}
	for _, tc := range cases {
		got := scoreFor(t, e, md, redisstore.Reading{TimeSince: tc.since})
		if !almostEqual(got, tc.want) {
			t.Fatalf("time_since %v: expected %v, got %v", tc.since, tc.want, got)
		}
	}
}

// TestRuleScore_BenignCrawlerCredit verifies a benign crawler skips the
// bad-UA and robots penalties and the score floors at 0.
func TestRuleScore_BenignCrawlerCredit(t *testing.T) {
	e := testExtractor(t, "User-agent: *\nDisallow: /admin\n")
	md := baseMetadata()
	md.UserAgent = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	md.Path = "/admin/index"
	if got := scoreFor(t, e, md, cleanReading()); got != 0 {
		t.Fatalf("benign crawler should floor at 0, got %v", got)
	}
}

// TestRuleScore_ClampsAtOne verifies stacked penalties saturate at 1.0.
func TestRuleScore_ClampsAtOne(t *testing.T) {
	e := testExtractor(t, "User-agent: *\nDisallow: /admin\n")
	md := baseMetadata()
	md.UserAgent = ""
	md.Path = "/admin/index"
	got := scoreFor(t, e, md, redisstore.Reading{Count: 100, TimeSince: 0.05})
	if got != 1 {
		t.Fatalf("expected clamp at 1.0, got %v", got)
	}
}

// TestExtract_FeatureVectorShape spot-checks the derived features. The key
// names are load-bearing: a trained model looks its weights up by them.
func TestExtract_FeatureVectorShape(t *testing.T) {
	e := testExtractor(t, "")
	md := baseMetadata()
	md.Referer = "https://example.org/"
	f := e.Extract(md, redisstore.Reading{Count: 7, TimeSince: 1.5})

	if f["ua_is_empty"] != false {
		t.Fatalf("ua_is_empty wrong: %v", f["ua_is_empty"])
	}
	if f["referer_is_empty"] != false {
		t.Fatalf("referer_is_empty wrong: %v", f["referer_is_empty"])
	}
	if f["referer_has_domain"] != true {
		t.Fatalf("referer_has_domain wrong: %v", f["referer_has_domain"])
	}
	if f["path_is_root"] != false {
		t.Fatalf("path_is_root wrong: %v", f["path_is_root"])
	}
	// "/products" has a single slash.
	if got := f["path_depth"]; got != 1 {
		t.Fatalf("path_depth wrong: %v", got)
	}
	if f["status_code"] != 0 || f["bytes_sent"] != 0 || f["http_method"] != "UNKNOWN" {
		t.Fatalf("log-entry defaults wrong: %v %v %v", f["status_code"], f["bytes_sent"], f["http_method"])
	}
	if f["ua_library_is_bot"] != false {
		t.Fatalf("ua_library_is_bot wrong: %v", f["ua_library_is_bot"])
	}
	if got := f["req_freq_300s"]; got != int64(7) {
		t.Fatalf("req_freq_300s wrong: %v", got)
	}
	if got := f["time_since_last_sec"]; got != 1.5 {
		t.Fatalf("time_since_last_sec wrong: %v", got)
	}
	if got := f["hour_of_day"]; got != 12 {
		t.Fatalf("hour_of_day wrong: %v", got)
	}
	if got := f["day_of_week"]; got != int(time.Sunday) {
		t.Fatalf("day_of_week wrong: %v", got)
	}
}

// TestExtract_PathAndRefererFlags covers the docs/wp path markers and the
// referer edge cases, including the "-" placeholder.
func TestExtract_PathAndRefererFlags(t *testing.T) {
	e := testExtractor(t, "")

	md := baseMetadata()
	md.Path = "/Docs/api/v1"
	f := e.Extract(md, cleanReading())
	if f["path_has_docs"] != true {
		t.Fatalf("path_has_docs should match case-insensitively: %v", f["path_has_docs"])
	}
	if got := f["path_depth"]; got != 3 {
		t.Fatalf("path_depth wrong: %v", got)
	}

	md.Path = "/wp-admin/setup.php"
	f = e.Extract(md, cleanReading())
	if f["path_is_wp"] != true {
		t.Fatalf("path_is_wp wrong for wp-admin: %v", f["path_is_wp"])
	}
	md.Path = "/xmlrpc.php"
	if f = e.Extract(md, cleanReading()); f["path_is_wp"] != true {
		t.Fatalf("path_is_wp wrong for xmlrpc: %v", f["path_is_wp"])
	}

	md = baseMetadata()
	md.Referer = "-"
	f = e.Extract(md, cleanReading())
	if f["referer_is_empty"] != false || f["referer_has_domain"] != false {
		t.Fatalf("dash referer: empty=%v domain=%v", f["referer_is_empty"], f["referer_has_domain"])
	}
	md.Referer = ""
	f = e.Extract(md, cleanReading())
	if f["referer_is_empty"] != true || f["referer_has_domain"] != false {
		t.Fatalf("missing referer: empty=%v domain=%v", f["referer_is_empty"], f["referer_has_domain"])
	}
}

// TestExtract_EmptyUserAgentFallback verifies the parser-less defaults for
// an empty user agent string.
func TestExtract_EmptyUserAgentFallback(t *testing.T) {
	e := testExtractor(t, "")
	md := baseMetadata()
	md.UserAgent = ""
	f := e.Extract(md, cleanReading())

	if f["ua_browser_family"] != "Unknown" || f["ua_os_family"] != "Unknown" || f["ua_device_family"] != "Unknown" {
		t.Fatalf("expected Unknown families: %v %v %v", f["ua_browser_family"], f["ua_os_family"], f["ua_device_family"])
	}
	if f["ua_library_is_bot"] != false {
		t.Fatalf("ua_library_is_bot should fall back to the known-bad flag: %v", f["ua_library_is_bot"])
	}
	if f["ua_is_empty"] != true {
		t.Fatalf("ua_is_empty wrong: %v", f["ua_is_empty"])
	}
}
