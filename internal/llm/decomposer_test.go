// ABOUTME: Tests for the OpenAI decomposer against a stubbed completions endpoint
// ABOUTME: Covers plan parsing, fenced output, and malformed replies

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchyard-ai/switchyard/internal/router"
)

// stubCompletions returns a server that answers every chat completion with
// the given assistant content.
func stubCompletions(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"id":     "cmpl-test",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message": map[string]any{
						"role":    "assistant",
						"content": content,
					},
				},
			},
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encoding stub response: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestDecomposer(t *testing.T, content string) *Decomposer {
	t.Helper()
	srv := stubCompletions(t, content)
	client := openai.NewClient(
		option.WithBaseURL(srv.URL),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
	return NewFromClient(&client, nil)
}

var testCandidates = []router.Candidate{
	{AgentName: "calendar", Description: "Manages schedules and events"},
	{AgentName: "email", Description: "Reads and drafts email"},
}

func TestDecompose_TwoAgents(t *testing.T) {
	d := newTestDecomposer(t, `[
		{"agent": "calendar", "sub_query": "Check availability at 3pm tomorrow"},
		{"agent": "email", "sub_query": "Draft a meeting invite for 3pm tomorrow"}
	]`)

	got, err := d.Decompose(context.Background(), "check my 3pm and send an invite", testCandidates)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "calendar", got[0].AgentName)
	assert.Equal(t, "Check availability at 3pm tomorrow", got[0].SubQuery)
	assert.Equal(t, "email", got[1].AgentName)
}

func TestDecompose_FencedJSON(t *testing.T) {
	d := newTestDecomposer(t, "```json\n[{\"agent\": \"calendar\", \"sub_query\": \"list today\"}]\n```")

	got, err := d.Decompose(context.Background(), "what's on today", testCandidates)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "calendar", got[0].AgentName)
}

func TestDecompose_ProseReplyIsBadPlan(t *testing.T) {
	d := newTestDecomposer(t, "Sure! I would route this to the calendar agent.")

	_, err := d.Decompose(context.Background(), "what's on today", testCandidates)
	assert.ErrorIs(t, err, ErrBadPlan)
}

func TestDecompose_EmptyPlanIsBadPlan(t *testing.T) {
	d := newTestDecomposer(t, `[{"agent": "", "sub_query": "orphan"}]`)

	_, err := d.Decompose(context.Background(), "anything", testCandidates)
	assert.ErrorIs(t, err, ErrBadPlan)
}

func TestDecompose_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	client := openai.NewClient(
		option.WithBaseURL(srv.URL),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
	d := NewFromClient(&client, nil)

	_, err := d.Decompose(context.Background(), "anything", testCandidates)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrBadPlan)
}
