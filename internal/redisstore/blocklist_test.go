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

// Package redisstore contains unit tests backed by an in-process Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

// TestBlocklist_Block_WritesEntryWithTTL verifies the stored document shape
// and that the key expires with the configured TTL.
func TestBlocklist_Block_WritesEntryWithTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	bl := NewBlocklist(rdb, time.Hour)
	ctx := context.Background()

	if err := bl.Block(ctx, "203.0.113.9", "High Combined Score (0.912)", "scrapy/2.11"); err != nil {
		t.Fatalf("Block returned error: %v", err)
	}

	raw, err := rdb.Get(ctx, BlocklistKey("203.0.113.9")).Result()
	if err != nil {
		t.Fatalf("expected blocklist entry, got error: %v", err)
	}
	var entry BlockEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		t.Fatalf("entry is not valid JSON: %v", err)
	}
	if entry.Reason != "High Combined Score (0.912)" {
		t.Fatalf("unexpected reason: %q", entry.Reason)
	}
	if entry.UserAgent != "scrapy/2.11" {
		t.Fatalf("unexpected user agent: %q", entry.UserAgent)
	}
	if entry.TimestampUTC == "" {
		t.Fatalf("expected a timestamp in the entry")
	}

	ttl := mr.TTL(BlocklistKey("203.0.113.9"))
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected TTL in (0, 1h], got %v", ttl)
	}
}

// TestBlocklist_Block_EmptyUserAgentStoredAsNA verifies the N/A placeholder.
func TestBlocklist_Block_EmptyUserAgentStoredAsNA(t *testing.T) {
	_, rdb := newTestRedis(t)
	bl := NewBlocklist(rdb, time.Hour)
	ctx := context.Background()

	if err := bl.Block(ctx, "203.0.113.9", "Honeypot_Hit", ""); err != nil {
		t.Fatalf("Block returned error: %v", err)
	}
	raw, _ := rdb.Get(ctx, BlocklistKey("203.0.113.9")).Result()
	var entry BlockEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		t.Fatalf("entry is not valid JSON: %v", err)
	}
	if entry.UserAgent != "N/A" {
		t.Fatalf("expected N/A placeholder, got %q", entry.UserAgent)
	}
}

// TestBlocklist_Reblock_RefreshesTTL verifies that re-blocking an already
// blocked IP resets the expiry to the full TTL rather than extending it.
func TestBlocklist_Reblock_RefreshesTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	bl := NewBlocklist(rdb, time.Hour)
	ctx := context.Background()

	if err := bl.Block(ctx, "203.0.113.9", "Honeypot_Hit", "curl/8.0"); err != nil {
		t.Fatalf("first Block returned error: %v", err)
	}
	mr.FastForward(30 * time.Minute)

	if err := bl.Block(ctx, "203.0.113.9", "Local LLM Classification", "curl/8.0"); err != nil {
		t.Fatalf("second Block returned error: %v", err)
	}
	ttl := mr.TTL(BlocklistKey("203.0.113.9"))
	if ttl != time.Hour {
		t.Fatalf("expected TTL refreshed to 1h, got %v", ttl)
	}

	blocked, err := bl.IsBlocked(ctx, "203.0.113.9")
	if err != nil {
		t.Fatalf("IsBlocked returned error: %v", err)
	}
	if !blocked {
		t.Fatalf("expected ip to remain blocked")
	}
}

// TestBlocklist_IsBlocked_UnknownIP verifies a miss reports false, not error.
func TestBlocklist_IsBlocked_UnknownIP(t *testing.T) {
	_, rdb := newTestRedis(t)
	bl := NewBlocklist(rdb, time.Hour)

	blocked, err := bl.IsBlocked(context.Background(), "198.51.100.1")
	if err != nil {
		t.Fatalf("IsBlocked returned error: %v", err)
	}
	if blocked {
		t.Fatalf("unknown ip should not be blocked")
	}
}
