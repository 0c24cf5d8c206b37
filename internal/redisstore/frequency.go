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
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// FrequencyKey returns the sorted-set key holding hit timestamps for ip.
func FrequencyKey(ip string) string { return fmt.Sprintf("freq:%s", ip) }

// expiryMargin keeps the key alive slightly past the window so a reader
// racing the expiry still sees the tail of the set.
const expiryMargin = 60 * time.Second

// Reading is the frequency signal for one IP at the moment of observation.
type Reading struct {
	// Count is the number of hits in the window before this one.
	Count int64
	// TimeSince is the gap in seconds since the previous hit, or -1 when
	// there was no prior hit inside the window.
	TimeSince float64
}

// FrequencyTracker maintains a sliding-window set of hit timestamps per IP.
type FrequencyTracker struct {
	rdb    *redis.Client
	window time.Duration
}

// NewFrequencyTracker returns a tracker with the given window. window <= 0
// falls back to 300 seconds.
func NewFrequencyTracker(rdb *redis.Client, window time.Duration) *FrequencyTracker {
	if window <= 0 {
		window = 300 * time.Second
	}
	return &FrequencyTracker{rdb: rdb, window: window}
}

// Observe records a hit for ip at now and returns the signal in one atomic
// unit: prune entries older than the window, insert now, count the window,
// read the two most recent timestamps, and refresh the key expiry. All five
// commands travel in a single pipeline so concurrent writers cannot
// interleave between them.
func (f *FrequencyTracker) Observe(ctx context.Context, ip string, now time.Time) (Reading, error) {
	reading := Reading{TimeSince: -1}
	nowUnix := float64(now.UnixMicro()) / 1e6
	windowStart := nowUnix - f.window.Seconds()
	member := strconv.FormatFloat(nowUnix, 'f', 6, 64)
	key := FrequencyKey(ip)

	pipe := f.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatFloat(windowStart, 'f', -1, 64))
	pipe.ZAdd(ctx, key, redis.Z{Score: nowUnix, Member: member})
	countCmd := pipe.ZCount(ctx, key,
		strconv.FormatFloat(windowStart, 'f', -1, 64),
		strconv.FormatFloat(nowUnix, 'f', -1, 64))
	recentCmd := pipe.ZRangeWithScores(ctx, key, -2, -1)
	pipe.Expire(ctx, key, f.window+expiryMargin)
	if _, err := pipe.Exec(ctx); err != nil {
		return reading, fmt.Errorf("frequency pipeline for %s: %w", ip, err)
	}

	// The count includes the hit just inserted; report prior hits only.
	if total := countCmd.Val(); total > 0 {
		reading.Count = total - 1
	}
	if recent := recentCmd.Val(); len(recent) > 1 {
		reading.TimeSince = roundMillis(nowUnix - recent[0].Score)
	}
	return reading, nil
}

// Window returns the configured frequency window.
func (f *FrequencyTracker) Window() time.Duration { return f.window }

// Ping reports backing-store reachability for health checks.
func (f *FrequencyTracker) Ping(ctx context.Context) bool { return Ping(ctx, f.rdb) }

func roundMillis(sec float64) float64 {
	return float64(int64(sec*1000+0.5)) / 1000
}
