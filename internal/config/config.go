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

// Package config reads the environment-variable configuration surface shared
// by the three pipeline services. Every knob has a production default so a
// service comes up with a missing variable instead of refusing to start;
// features whose configuration is incomplete disable themselves and say so.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Str returns the value of the environment variable key, or def when unset
// or empty.
func Str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the integer value of key, or def when unset or unparsable.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Float returns the float value of key, or def when unset or unparsable.
func Float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// Bool returns true iff key is set to "true" (case-insensitive).
func Bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true")
}

// Seconds reads an integer number of seconds and returns it as a Duration.
func Seconds(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}

// List splits a comma-separated variable into trimmed, lowercased entries.
func List(key, def string) []string {
	raw := Str(key, def)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadSecret reads a secret from a file and trims surrounding whitespace.
// A missing or empty file yields "" and an error describing why, so callers
// can log the reason and run with the feature disabled.
func LoadSecret(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("secret path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", path, err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}

// Dirs holds the two filesystem roots every service shares.
type Dirs struct {
	Base    string // APP_BASE_DIRECTORY
	Secrets string // APP_SECRETS_DIRECTORY
	Logs    string // <base>/logs
}

// LoadDirs resolves the base/secrets/logs directories and creates the log
// directory if needed.
func LoadDirs() Dirs {
	d := Dirs{
		Base:    Str("APP_BASE_DIRECTORY", "."),
		Secrets: Str("APP_SECRETS_DIRECTORY", "/run/secrets"),
	}
	d.Logs = filepath.Join(d.Base, "logs")
	_ = os.MkdirAll(d.Logs, 0o755)
	return d
}

// SecretPath joins the secrets directory with a filename taken from env,
// falling back to the given default filename.
func (d Dirs) SecretPath(filenameKey, def string) string {
	return filepath.Join(d.Secrets, Str(filenameKey, def))
}

// Redis describes one logical Redis database. The services deliberately keep
// each namespace in its own DB so an operator can flush one without
// disturbing the others.
type Redis struct {
	Host     string
	Port     int
	DB       int
	Password string
}

// Addr returns the host:port dial address.
func (r Redis) Addr() string { return fmt.Sprintf("%s:%d", r.Host, r.Port) }

// LoadRedis reads the shared Redis host/port plus the DB number held in
// dbKey, and loads the optional password secret.
func LoadRedis(d Dirs, dbKey string, dbDefault int) Redis {
	r := Redis{
		Host: Str("REDIS_HOST", "localhost"),
		Port: Int("REDIS_PORT", 6379),
		DB:   Int(dbKey, dbDefault),
	}
	// Password is optional; a missing file means an unauthenticated instance.
	if secret, err := LoadSecret(d.SecretPath("REDIS_PASSWORD_FILENAME", "redis_password.txt")); err == nil {
		r.Password = secret
	}
	return r
}

// Postgres describes the Markov corpus database connection.
type Postgres struct {
	Host     string
	Port     int
	DBName   string
	User     string
	Password string
}

// DSN renders a pgx-compatible connection string.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s connect_timeout=5",
		p.Host, p.Port, p.DBName, p.User, p.Password)
}

// LoadPostgres reads the PG_* variables and the password secret.
func LoadPostgres(d Dirs) (Postgres, error) {
	p := Postgres{
		Host:   Str("PG_HOST", "localhost"),
		Port:   Int("PG_PORT", 5432),
		DBName: Str("PG_DBNAME", "markovdb"),
		User:   Str("PG_USER", "markovuser"),
	}
	secret, err := LoadSecret(d.SecretPath("PG_PASSWORD_FILENAME", "pg_password.txt"))
	if err != nil {
		return p, err
	}
	p.Password = secret
	return p, nil
}
