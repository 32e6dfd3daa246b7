// ABOUTME: Deterministic capability matcher scoring queries against descriptors
// ABOUTME: Pure fast filter; no I/O, no LLM, stable ordering across calls

package router

import (
	"regexp"
	"sort"
	"strings"

	"github.com/switchyard-ai/switchyard/internal/registry"
)

// Signal weights. Domain matches weigh highest, keywords lowest; priority
// contributes a small additive tie-break term.
const (
	domainWeight   = 0.5
	entityWeight   = 0.3
	keywordWeight  = 0.2
	priorityWeight = 0.01

	// DefaultThreshold drops candidates whose score is below this value.
	DefaultThreshold = 0.1
)

// Candidate is one scored routing candidate from the fast filter.
type Candidate struct {
	AgentName   string
	Description string
	Score       float64
	Priority    int
}

// Matcher is the fast-filter stage. It is pure and safe to share
// unsynchronized; it scores against descriptor snapshots handed to it.
type Matcher struct {
	threshold float64
}

// NewMatcher creates a matcher with the given minimum-score threshold.
// A non-positive threshold falls back to DefaultThreshold.
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

var tokenSplit = regexp.MustCompile(`[^a-z0-9]+`)

// tokenize lowercases and splits text into word tokens.
func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range tokenSplit.Split(strings.ToLower(text), -1) {
		if tok != "" {
			tokens[tok] = true
		}
	}
	return tokens
}

// termHit reports whether a capability term occurs in the query. Single-word
// terms require a whole-token match; multi-word terms match as substrings of
// the normalized query.
func termHit(term string, tokens map[string]bool, normalized string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return false
	}
	if !strings.ContainsAny(term, " -") {
		return tokens[term]
	}
	return strings.Contains(normalized, term)
}

// signalScore returns the fraction of terms hit, normalized to [0,1].
func signalScore(terms []string, tokens map[string]bool, normalized string) float64 {
	if len(terms) == 0 {
		return 0
	}
	hits := 0
	for _, term := range terms {
		if termHit(term, tokens, normalized) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// Match scores the query against the descriptors and returns candidates at
// or above the threshold, sorted by score descending. Ties break by
// descending priority, then by descending name for determinism.
func (m *Matcher) Match(query string, descriptors []*registry.AgentDescriptor) []Candidate {
	tokens := tokenize(query)
	normalized := strings.ToLower(query)

	candidates := make([]Candidate, 0, len(descriptors))
	for _, d := range descriptors {
		score := domainWeight*signalScore(d.Capability.Domains, tokens, normalized) +
			entityWeight*signalScore(d.Capability.Entities, tokens, normalized) +
			keywordWeight*signalScore(d.Capability.Keywords, tokens, normalized)
		if score < m.threshold {
			continue
		}
		score += priorityWeight * float64(d.Capability.Priority)
		candidates = append(candidates, Candidate{
			AgentName:   d.Name,
			Description: d.Description,
			Score:       score,
			Priority:    d.Capability.Priority,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.AgentName > b.AgentName
	})
	return candidates
}
