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

// Package markov generates deterministic fake HTML from a second-order
// Markov chain held in PostgreSQL. The chain tables are populated offline by
// the corpus ingester; at request time they are read-only.
package markov

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS markov_words (
//   id SERIAL PRIMARY KEY,
//   word TEXT UNIQUE NOT NULL
// );
// -- id 1 is reserved for the empty sentinel: INSERT INTO markov_words VALUES (1, '');
//
// CREATE TABLE IF NOT EXISTS markov_sequences (
//   p1 INT NOT NULL,
//   p2 INT NOT NULL,
//   next_id INT NOT NULL,
//   freq INT NOT NULL DEFAULT 1,
//   PRIMARY KEY (p1, p2, next_id)
// );

// SentinelID is the reserved word id marking chain start and end.
const SentinelID = 1

// candidateLimit caps how many transition rows a single step considers.
const candidateLimit = 20

// Candidate is one possible next word with its observed frequency.
type Candidate struct {
	Word string
	Freq int64
}

// ChainSource is the read surface the generator needs. Implementations must
// be safe for concurrent use; any worker may serve any request.
type ChainSource interface {
	// NextCandidates returns up to candidateLimit follow-ups for the state
	// (p1, p2), ordered by descending frequency. An empty slice means the
	// chain has no continuation from this state.
	NextCandidates(ctx context.Context, p1, p2 int64) ([]Candidate, error)
	// WordID resolves a word to its id, returning SentinelID for the empty
	// string or an unknown word.
	WordID(ctx context.Context, word string) (int64, error)
}

// PGStore is the production ChainSource over a pgx connection pool. Queries
// are stateless, so the pool reconnects per query on store errors without
// any per-request affinity.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects a pool using the given DSN.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse markov dsn: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect markov db: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// NextCandidates implements ChainSource. Ties at equal frequency break on
// next_id so the row set is stable for a given table state; the caller's
// seeded PRNG supplies all request-level randomness.
func (s *PGStore) NextCandidates(ctx context.Context, p1, p2 int64) ([]Candidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT w.word, s.freq
		FROM markov_sequences s
		JOIN markov_words w ON s.next_id = w.id
		WHERE s.p1 = $1 AND s.p2 = $2
		ORDER BY s.freq DESC, s.next_id
		LIMIT `+fmt.Sprint(candidateLimit), p1, p2)
	if err != nil {
		return nil, fmt.Errorf("query next candidates (%d, %d): %w", p1, p2, err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.Word, &c.Freq); err != nil {
			return nil, fmt.Errorf("scan candidate row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate rows: %w", err)
	}
	return out, nil
}

// WordID implements ChainSource.
func (s *PGStore) WordID(ctx context.Context, word string) (int64, error) {
	if word == "" {
		return SentinelID, nil
	}
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM markov_words WHERE word = $1`, word).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return SentinelID, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup word id %q: %w", word, err)
	}
	return id, nil
}

// AddSequence upserts one (p1, p2) -> next transition, bumping its frequency
// when it already exists. This is the write half of the schema contract; the
// offline ingester and the test fixtures use it, request handling never does.
func (s *PGStore) AddSequence(ctx context.Context, p1, p2, nextID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO markov_sequences (p1, p2, next_id, freq)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (p1, p2, next_id) DO UPDATE SET freq = markov_sequences.freq + 1`,
		p1, p2, nextID)
	if err != nil {
		return fmt.Errorf("upsert sequence (%d, %d, %d): %w", p1, p2, nextID, err)
	}
	return nil
}

// EnsureWord inserts a word if absent and returns its id.
func (s *PGStore) EnsureWord(ctx context.Context, word string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO markov_words (word) VALUES ($1)
		ON CONFLICT (word) DO UPDATE SET word = EXCLUDED.word
		RETURNING id`, word).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure word %q: %w", word, err)
	}
	return id, nil
}

// Healthy reports whether the pool can reach the database.
func (s *PGStore) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx) == nil
}

// Close releases the pool.
func (s *PGStore) Close() { s.pool.Close() }
