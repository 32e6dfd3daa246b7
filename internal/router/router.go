// ABOUTME: Two-stage router turning a query into (agent, sub-query) selections
// ABOUTME: Fast filter first, then LLM decomposition only when the choice is ambiguous

package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/switchyard-ai/switchyard/internal/registry"
)

var (
	// ErrNoRoutableAgent means no candidate cleared the fast-filter threshold,
	// or decomposition eliminated every candidate.
	ErrNoRoutableAgent = errors.New("no routable agent for query")

	// ErrDecompositionUnavailable means the external decomposition call failed
	// or returned a malformed result. It triggers fallback selection and is
	// never surfaced to the end caller.
	ErrDecompositionUnavailable = errors.New("decomposition unavailable")
)

// Selection is one (agent, sub-query) pair to dispatch.
type Selection struct {
	AgentName string
	SubQuery  string
}

// Decision is the transient routing output, owned by one request and
// discarded after dispatch.
type Decision struct {
	Candidates []Candidate
	Selected   []Selection
}

// Decomposer is the external collaborator that splits an ambiguous or
// multi-domain query into per-agent sub-queries, restricted to the
// candidates it is given.
type Decomposer interface {
	Decompose(ctx context.Context, query string, candidates []Candidate) ([]Selection, error)
}

// DefaultTopK bounds how many candidates are offered to the decomposer.
const DefaultTopK = 5

// Router performs two-stage agent selection over routable descriptor
// snapshots.
type Router struct {
	matcher    *Matcher
	decomposer Decomposer
	topK       int
	logger     *slog.Logger
}

// New creates a Router. The decomposer may be nil, in which case every
// ambiguous query falls back to the top fast-filter candidate.
func New(matcher *Matcher, decomposer Decomposer, topK int, logger *slog.Logger) *Router {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		matcher:    matcher,
		decomposer: decomposer,
		topK:       topK,
		logger:     logger.With("component", "router"),
	}
}

// clausePattern marks queries that likely contain multiple distinct task
// clauses and therefore need decomposition even with a single candidate.
var clausePattern = regexp.MustCompile(`;|,\s+and\s+|\band\s+(?:also|then)\b|\bas\s+well\s+as\b`)

func multiClause(query string) bool {
	return clausePattern.MatchString(query)
}

// Route selects target agents for the query. The descriptor snapshot must
// already be restricted to routable agents (the registry's Routable output).
func (r *Router) Route(ctx context.Context, query string, descriptors []*registry.AgentDescriptor) (*Decision, error) {
	candidates := r.matcher.Match(query, descriptors)
	if len(candidates) == 0 {
		// Short-circuit: no fast-filter candidate means no decomposer call.
		return nil, ErrNoRoutableAgent
	}

	decision := &Decision{Candidates: candidates}

	// Common case: one clear candidate, single task clause, no external call.
	if len(candidates) == 1 && !multiClause(query) {
		decision.Selected = []Selection{{AgentName: candidates[0].AgentName, SubQuery: query}}
		return decision, nil
	}

	selected, err := r.decompose(ctx, query, candidates)
	if err != nil {
		if errors.Is(err, ErrDecompositionUnavailable) {
			// Fall back to the highest-scoring candidate with the whole query.
			r.logger.Warn("decomposition unavailable, falling back to top candidate",
				"agent", candidates[0].AgentName)
			decision.Selected = []Selection{{AgentName: candidates[0].AgentName, SubQuery: query}}
			return decision, nil
		}
		return nil, err
	}
	decision.Selected = selected
	return decision, nil
}

// decompose calls the external collaborator and defends against results
// naming agents outside the candidate set.
func (r *Router) decompose(ctx context.Context, query string, candidates []Candidate) ([]Selection, error) {
	if r.decomposer == nil {
		return nil, ErrDecompositionUnavailable
	}

	bounded := candidates
	if len(bounded) > r.topK {
		bounded = bounded[:r.topK]
	}

	raw, err := r.decomposer.Decompose(ctx, query, bounded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompositionUnavailable, err)
	}
	if len(raw) == 0 {
		return nil, ErrDecompositionUnavailable
	}

	known := make(map[string]bool, len(bounded))
	for _, c := range bounded {
		known[c.AgentName] = true
	}

	selected := make([]Selection, 0, len(raw))
	for _, sel := range raw {
		if !known[sel.AgentName] {
			// Hallucinated target: drop the entry, keep the request alive.
			r.logger.Warn("decomposition returned unknown agent, discarding",
				"agent", sel.AgentName)
			continue
		}
		if sel.SubQuery == "" {
			sel.SubQuery = query
		}
		selected = append(selected, sel)
	}
	if len(selected) == 0 {
		return nil, ErrNoRoutableAgent
	}
	return selected, nil
}
