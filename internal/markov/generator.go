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

package markov

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strings"
)

const (
	defaultSentences = 15
	fakeLinkMin      = 5
	fakeLinkMax      = 10
	fakeLinkDepth    = 3
)

// Generator renders deterministic fake HTML pages. Every request gets its
// own rand.Rand seeded from the system seed and the request path, so equal
// seeds produce byte-identical pages (for a fixed table state) and
// concurrent requests never share PRNG state.
type Generator struct {
	src        ChainSource
	systemSeed string
	sentences  int
}

// NewGenerator returns a generator over src using the configured system seed.
func NewGenerator(src ChainSource, systemSeed string) *Generator {
	return &Generator{src: src, systemSeed: systemSeed, sentences: defaultSentences}
}

// Seed derives the per-request seed string for a normalized path.
func (g *Generator) Seed(path string) string {
	normalized := strings.ReplaceAll(path, "\\", "/")
	pathHash := sha256.Sum256([]byte(normalized))
	return g.systemSeed + "-" + hex.EncodeToString(pathHash[:])
}

// Render generates the full HTML page for the given request path. A store
// error surfaces so the caller can fall back to a static page; it is never
// a partial document.
func (g *Generator) Render(ctx context.Context, path string) (string, error) {
	seed := sha256.Sum256([]byte(g.Seed(path)))
	rng := rand.New(rand.NewSource(int64(binary.BigEndian.Uint64(seed[:8]))))

	body, err := g.chainText(ctx, rng)
	if err != nil {
		return "", err
	}
	links := g.fakeLinks(rng)
	title := pageTitle(rng)
	return assemblePage(title, body, links), nil
}

// chainText walks the second-order chain until the soft word cap. State
// resets to the sentinel pair whenever a paragraph closes.
func (g *Generator) chainText(ctx context.Context, rng *rand.Rand) (string, error) {
	var sb strings.Builder
	var paragraph []string
	p1, p2 := int64(SentinelID), int64(SentinelID)
	wordCount := 0
	maxWords := g.sentences * (15 + rng.Intn(16))

	closeParagraph := func(punctuated bool) {
		if len(paragraph) == 0 {
			return
		}
		sb.WriteString("<p>")
		sb.WriteString(strings.Join(paragraph, " "))
		if !punctuated {
			sb.WriteString(".")
		}
		sb.WriteString("</p>\n")
		paragraph = paragraph[:0]
	}

	for wordCount < maxWords {
		candidates, err := g.src.NextCandidates(ctx, p1, p2)
		if err != nil {
			return "", err
		}
		if len(candidates) == 0 {
			break
		}
		word := weightedChoice(rng, candidates)

		if word == "" {
			// Explicit end of a chain; close out and restart from the sentinel.
			closeParagraph(false)
			p1, p2 = SentinelID, SentinelID
			continue
		}

		paragraph = append(paragraph, word)
		wordCount++

		nextID, err := g.src.WordID(ctx, word)
		if err != nil {
			return "", err
		}
		if nextID == SentinelID {
			// Word vanished from the table under us; reset the chain.
			closeParagraph(false)
			p1, p2 = SentinelID, SentinelID
			continue
		}
		p1, p2 = p2, nextID

		if endsSentence(word) && len(paragraph) > 5 {
			closeParagraph(true)
			p1, p2 = SentinelID, SentinelID
		}
	}
	closeParagraph(false)

	if sb.Len() == 0 {
		return "<p>Content generation unavailable due to errors.</p>", nil
	}
	return sb.String(), nil
}

// weightedChoice picks a candidate proportionally to frequency using the
// request PRNG only.
func weightedChoice(rng *rand.Rand, candidates []Candidate) string {
	var total int64
	for _, c := range candidates {
		total += c.Freq
	}
	if total <= 0 {
		return candidates[rng.Intn(len(candidates))].Word
	}
	pick := rng.Int63n(total)
	for _, c := range candidates {
		pick -= c.Freq
		if pick < 0 {
			return c.Word
		}
	}
	return candidates[len(candidates)-1].Word
}

func endsSentence(word string) bool {
	return strings.HasSuffix(word, ".") || strings.HasSuffix(word, "!") || strings.HasSuffix(word, "?")
}

const nameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomName(rng *rand.Rand, length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = nameAlphabet[rng.Intn(len(nameAlphabet))]
	}
	return string(b)
}

// fakeLinks builds 5-10 plausible internal link targets under the tarpit
// prefix, each with 0-3 intermediate directory segments.
func (g *Generator) fakeLinks(rng *rand.Rand) []string {
	count := fakeLinkMin + rng.Intn(fakeLinkMax-fakeLinkMin+1)
	links := make([]string, 0, count)
	for i := 0; i < count; i++ {
		var prefix, ext string
		switch rng.Intn(4) {
		case 0:
			prefix, ext = "/page/", ".html"
		case 1:
			prefix, ext = "/js/", ".js"
		case 2:
			prefix = "/data/"
			ext = []string{".json", ".xml", ".csv"}[rng.Intn(3)]
		default:
			prefix, ext = "/styles/", ".css"
		}
		var segments []string
		for d := rng.Intn(fakeLinkDepth + 1); d > 0; d-- {
			segments = append(segments, randomName(rng, 5+rng.Intn(4)))
		}
		segments = append(segments, randomName(rng, 10)+ext)
		links = append(links, "/tarpit"+prefix+strings.Join(segments, "/"))
	}
	return links
}

func pageTitle(rng *rand.Rand) string {
	words := make([]string, 2+rng.Intn(3))
	for i := range words {
		w := randomName(rng, 4+rng.Intn(5))
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func linkText(link string) string {
	base := link[strings.LastIndex(link, "/")+1:]
	if dot := strings.Index(base, "."); dot >= 0 {
		base = base[:dot]
	}
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	if base == "" {
		return "Resource Link"
	}
	return strings.ToUpper(base[:1]) + base[1:]
}

func assemblePage(title, body string, links []string) string {
	var linkList strings.Builder
	linkList.WriteString("<ul>\n")
	for _, link := range links {
		fmt.Fprintf(&linkList, "    <li><a href=\"%s\">%s</a></li>\n", link, linkText(link))
	}
	linkList.WriteString("</ul>\n")

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>%s - System Documentation</title>
    <meta name="robots" content="noindex, nofollow">
    <meta name="generator" content="AntiScrape Tarpit">
    <style>
        body { font-family: 'Courier New', Courier, monospace; background-color: #f0f0f0; color: #333; padding: 2em; line-height: 1.6; }
        h1 { border-bottom: 1px solid #ccc; padding-bottom: 0.5em; color: #555; }
        h2 { color: #666; margin-top: 2em; }
        a { color: #3478af; text-decoration: none; }
        a:hover { text-decoration: underline; }
        ul { list-style-type: square; padding-left: 2em; }
        p { text-align: justify; }
        .footer-link { display: inline-block; margin-top: 40px; font-size: 0.8em; color: #aaa; visibility: hidden; }
    </style>
</head>
<body>
    <h1>%s</h1>
    %s
    <h2>Further Reading:</h2>
    %s
    <a href="/internal-docs/admin-credentials.zip" class="footer-link">Admin Console Credentials</a>
</body>
</html>`, title, title, body, linkList.String())
}
