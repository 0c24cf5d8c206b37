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

// Package redisstore implements the pipeline's four Redis-backed contracts:
// the shared blocklist, the tarpit hop counter, the per-IP request-frequency
// tracker and the short-lived "recently tarpitted" flag. Each contract lives
// in its own logical database and degrades gracefully: when Redis is
// unreachable the caller gets an error, counts it, and continues without the
// signal rather than failing the request.
package redisstore

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"

	"antiscrape/internal/config"
)

// NewClient builds a go-redis client for one logical database.
func NewClient(cfg config.Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		DB:       cfg.DB,
		Password: cfg.Password,
	})
}

// Ping reports whether the given client can reach its server within a short
// deadline. Used by the /health endpoints.
func Ping(ctx context.Context, rdb *redis.Client) bool {
	if rdb == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rdb.Ping(ctx).Err() == nil
}
