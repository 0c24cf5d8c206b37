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

package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// BlocklistKey returns the Redis key holding the block entry for ip.
// Presence of the key means "upstream should deny this IP until expiry".
func BlocklistKey(ip string) string { return fmt.Sprintf("blocklist:ip:%s", ip) }

// BlockEntry is the JSON value stored under a blocklist key.
type BlockEntry struct {
	Reason       string `json:"reason"`
	TimestampUTC string `json:"timestamp_utc"`
	UserAgent    string `json:"user_agent"`
}

// Blocklist writes and inspects TTL-keyed block entries.
type Blocklist struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBlocklist returns a blocklist over the given client. ttl <= 0 falls back
// to 24 hours.
func NewBlocklist(rdb *redis.Client, ttl time.Duration) *Blocklist {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Blocklist{rdb: rdb, ttl: ttl}
}

// Block writes (or refreshes) the entry for ip. Repeated blocks reset the TTL
// to the full window; they never extend it additively.
func (b *Blocklist) Block(ctx context.Context, ip, reason, userAgent string) error {
	if userAgent == "" {
		userAgent = "N/A"
	}
	entry := BlockEntry{
		Reason:       reason,
		TimestampUTC: time.Now().UTC().Format(time.RFC3339Nano),
		UserAgent:    userAgent,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal block entry: %w", err)
	}
	if err := b.rdb.Set(ctx, BlocklistKey(ip), payload, b.ttl).Err(); err != nil {
		return fmt.Errorf("set blocklist key for %s: %w", ip, err)
	}
	return nil
}

// IsBlocked reports whether ip currently has a block entry.
func (b *Blocklist) IsBlocked(ctx context.Context, ip string) (bool, error) {
	n, err := b.rdb.Exists(ctx, BlocklistKey(ip)).Result()
	if err != nil {
		return false, fmt.Errorf("check blocklist key for %s: %w", ip, err)
	}
	return n > 0, nil
}

// TTL returns the configured block duration.
func (b *Blocklist) TTL() time.Duration { return b.ttl }

// Ping reports backing-store reachability for health checks.
func (b *Blocklist) Ping(ctx context.Context) bool { return Ping(ctx, b.rdb) }
