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

package webhook

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxReportComment = 1024

// CommunityReporter files blocked IPs with a shared abuse database using
// the AbuseIPDB report shape: form-encoded POST, API key in the Key header.
type CommunityReporter struct {
	URL    string
	Key    string
	Client *http.Client
}

// NewCommunityReporter builds a reporter for the given endpoint.
func NewCommunityReporter(apiURL, key string, timeout time.Duration) *CommunityReporter {
	return &CommunityReporter{URL: apiURL, Key: key, Client: &http.Client{Timeout: timeout}}
}

// reportCategories maps a block reason to the database's category ID:
// 14 port scan, 19 bad web bot, 22 brute force, 18 generic abuse.
func reportCategories(reason string) string {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "scan"):
		return "14"
	case strings.Contains(lower, "scraping"),
		strings.Contains(lower, "crawler"),
		strings.Contains(lower, "llm"):
		return "19"
	case strings.Contains(lower, "honeypot"):
		return "22"
	default:
		return "18"
	}
}

// Report files one IP. The comment is the block reason truncated to the
// database's limit.
func (c *CommunityReporter) Report(ctx context.Context, ip, reason string) error {
	comment := fmt.Sprintf("AI scraper defense: %s", reason)
	if len(comment) > maxReportComment {
		comment = comment[:maxReportComment]
	}
	form := url.Values{}
	form.Set("ip", ip)
	form.Set("categories", reportCategories(reason))
	form.Set("comment", comment)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build community report: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Key", c.Key)
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("community report for %s: %w", ip, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("community report for %s: status %d", ip, resp.StatusCode)
	}
	return nil
}
