// ABOUTME: Tests for the two-stage router
// ABOUTME: Covers the single-candidate shortcut, decomposition fallback, and hallucination defense

package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDecomposer records calls and returns scripted selections.
type mockDecomposer struct {
	calls      int
	selections []Selection
	err        error
}

func (m *mockDecomposer) Decompose(ctx context.Context, query string, candidates []Candidate) ([]Selection, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.selections, nil
}

func TestRouter_NoCandidateShortCircuit(t *testing.T) {
	dec := &mockDecomposer{}
	r := New(NewMatcher(0), dec, 0, nil)

	_, err := r.Route(context.Background(), "what is the weather on mars", testDescriptors())
	assert.ErrorIs(t, err, ErrNoRoutableAgent)
	assert.Zero(t, dec.calls, "decomposer must not be called when nothing clears the threshold")
}

func TestRouter_SingleCandidateSkipsDecomposer(t *testing.T) {
	dec := &mockDecomposer{}
	r := New(NewMatcher(0), dec, 0, nil)

	decision, err := r.Route(context.Background(), "reset my laptop vpn", testDescriptors())
	require.NoError(t, err)

	require.Len(t, decision.Selected, 1)
	assert.Equal(t, "it-agent", decision.Selected[0].AgentName)
	assert.Equal(t, "reset my laptop vpn", decision.Selected[0].SubQuery)
	assert.Zero(t, dec.calls, "unambiguous single candidate must not trigger decomposition")
}

func TestRouter_MultiCandidateUsesDecomposer(t *testing.T) {
	dec := &mockDecomposer{selections: []Selection{
		{AgentName: "it-agent", SubQuery: "reset my laptop"},
		{AgentName: "hr-agent", SubQuery: "check my vacation leave"},
	}}
	r := New(NewMatcher(0), dec, 0, nil)

	decision, err := r.Route(context.Background(), "reset my laptop and check my vacation leave", testDescriptors())
	require.NoError(t, err)

	assert.Equal(t, 1, dec.calls)
	require.Len(t, decision.Selected, 2)
	assert.Equal(t, "it-agent", decision.Selected[0].AgentName)
	assert.Equal(t, "hr-agent", decision.Selected[1].AgentName)
}

func TestRouter_MultiClauseSingleCandidateDecomposes(t *testing.T) {
	dec := &mockDecomposer{selections: []Selection{
		{AgentName: "it-agent", SubQuery: "reset my vpn"},
		{AgentName: "it-agent", SubQuery: "install the editor"},
	}}
	r := New(NewMatcher(0), dec, 0, nil)

	_, err := r.Route(context.Background(), "reset my vpn; install the editor", testDescriptors())
	require.NoError(t, err)
	assert.Equal(t, 1, dec.calls, "multi-clause queries decompose even with one candidate")
}

func TestRouter_DiscardsHallucinatedAgents(t *testing.T) {
	dec := &mockDecomposer{selections: []Selection{
		{AgentName: "it-agent", SubQuery: "reset my laptop"},
		{AgentName: "made-up-agent", SubQuery: "do something"},
	}}
	r := New(NewMatcher(0), dec, 0, nil)

	decision, err := r.Route(context.Background(), "reset my laptop and check my vacation leave", testDescriptors())
	require.NoError(t, err)

	require.Len(t, decision.Selected, 1)
	assert.Equal(t, "it-agent", decision.Selected[0].AgentName)
}

func TestRouter_AllHallucinatedFails(t *testing.T) {
	dec := &mockDecomposer{selections: []Selection{
		{AgentName: "made-up-agent", SubQuery: "do something"},
	}}
	r := New(NewMatcher(0), dec, 0, nil)

	_, err := r.Route(context.Background(), "reset my laptop and check my vacation leave", testDescriptors())
	assert.ErrorIs(t, err, ErrNoRoutableAgent)
}

func TestRouter_DecomposerErrorFallsBack(t *testing.T) {
	dec := &mockDecomposer{err: errors.New("model overloaded")}
	r := New(NewMatcher(0), dec, 0, nil)

	decision, err := r.Route(context.Background(), "reset my laptop and check my vacation leave", testDescriptors())
	require.NoError(t, err, "decomposition failure must not fail the request")

	require.Len(t, decision.Selected, 1)
	assert.Equal(t, decision.Candidates[0].AgentName, decision.Selected[0].AgentName)
	assert.Equal(t, "reset my laptop and check my vacation leave", decision.Selected[0].SubQuery)
}

func TestRouter_EmptyDecompositionFallsBack(t *testing.T) {
	dec := &mockDecomposer{selections: nil}
	r := New(NewMatcher(0), dec, 0, nil)

	decision, err := r.Route(context.Background(), "reset my laptop and check my vacation leave", testDescriptors())
	require.NoError(t, err)
	require.Len(t, decision.Selected, 1)
}

func TestRouter_NilDecomposerFallsBack(t *testing.T) {
	r := New(NewMatcher(0), nil, 0, nil)

	decision, err := r.Route(context.Background(), "reset my laptop and check my vacation leave", testDescriptors())
	require.NoError(t, err)
	require.Len(t, decision.Selected, 1)
}

func TestRouter_TopKBoundsCandidates(t *testing.T) {
	var seen int
	dec := &mockDecomposer{selections: []Selection{{AgentName: "it-agent", SubQuery: "q"}}}
	r := New(NewMatcher(0), decomposerFunc(func(ctx context.Context, query string, candidates []Candidate) ([]Selection, error) {
		seen = len(candidates)
		return dec.selections, nil
	}), 2, nil)

	_, err := r.Route(context.Background(), "reset my laptop and check my vacation leave and reimburse my expense invoice", testDescriptors())
	require.NoError(t, err)
	assert.Equal(t, 2, seen)
}

// decomposerFunc adapts a function to the Decomposer interface.
type decomposerFunc func(ctx context.Context, query string, candidates []Candidate) ([]Selection, error)

func (f decomposerFunc) Decompose(ctx context.Context, query string, candidates []Candidate) ([]Selection, error) {
	return f(ctx, query, candidates)
}

func TestRouter_EmptySubQueryDefaultsToFullQuery(t *testing.T) {
	dec := &mockDecomposer{selections: []Selection{{AgentName: "it-agent"}}}
	r := New(NewMatcher(0), dec, 0, nil)

	query := "reset my laptop and check my vacation leave"
	decision, err := r.Route(context.Background(), query, testDescriptors())
	require.NoError(t, err)
	require.Len(t, decision.Selected, 1)
	assert.Equal(t, query, decision.Selected[0].SubQuery)
}
