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
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// HopKey returns the Redis key holding the sliding-window hit count for ip.
func HopKey(ip string) string { return fmt.Sprintf("tarpit:hops:%s", ip) }

// hopLuaScript increments the hop counter and refreshes its expiry in a
// single server-side step. A plain INCR followed by EXPIRE races on the very
// first hit: a crash between the two leaves a counter with no TTL.
const hopLuaScript = `
local count = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[1])
return count
`

// HopCounter tracks per-IP hits into the tarpit inside a sliding window.
type HopCounter struct {
	rdb    *redis.Client
	window time.Duration
}

// NewHopCounter returns a counter with the given window. window <= 0 falls
// back to 24 hours.
func NewHopCounter(rdb *redis.Client, window time.Duration) *HopCounter {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &HopCounter{rdb: rdb, window: window}
}

// Hit records one hop for ip and returns the post-increment count within the
// window. The expiry is refreshed to the full window on every hit.
func (h *HopCounter) Hit(ctx context.Context, ip string) (int64, error) {
	res, err := h.rdb.Eval(ctx, hopLuaScript, []string{HopKey(ip)}, int(h.window.Seconds())).Result()
	if err != nil {
		return 0, fmt.Errorf("hop increment for %s: %w", ip, err)
	}
	count, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("hop increment for %s: unexpected reply %T", ip, res)
	}
	return count, nil
}

// Window returns the configured hop window.
func (h *HopCounter) Window() time.Duration { return h.window }

// Ping reports backing-store reachability for health checks.
func (h *HopCounter) Ping(ctx context.Context) bool { return Ping(ctx, h.rdb) }
