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

// FlagKey returns the Redis key marking ip as recently tarpitted.
func FlagKey(ip string) string { return fmt.Sprintf("tarpit_flag:%s", ip) }

// Flagger keeps a short-lived informational marker per tarpitted IP,
// consumed by analytics rather than by the enforcement path.
type Flagger struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFlagger returns a flagger with the given marker TTL. ttl <= 0 falls
// back to 5 minutes.
func NewFlagger(rdb *redis.Client, ttl time.Duration) *Flagger {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Flagger{rdb: rdb, ttl: ttl}
}

// Flag marks ip as recently tarpitted. The value is the flagging time, which
// is occasionally useful when inspecting the namespace by hand.
func (f *Flagger) Flag(ctx context.Context, ip string) error {
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	if err := f.rdb.SetEx(ctx, FlagKey(ip), ts, f.ttl).Err(); err != nil {
		return fmt.Errorf("flag ip %s: %w", ip, err)
	}
	return nil
}

// CheckFlag reports whether ip currently carries a tarpit flag.
func (f *Flagger) CheckFlag(ctx context.Context, ip string) (bool, error) {
	n, err := f.rdb.Exists(ctx, FlagKey(ip)).Result()
	if err != nil {
		return false, fmt.Errorf("check flag for %s: %w", ip, err)
	}
	return n > 0, nil
}
