// ABOUTME: OpenAI-backed query decomposer for the router's second stage
// ABOUTME: Builds a candidate-constrained prompt and parses a strict JSON plan

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"

	"github.com/switchyard-ai/switchyard/internal/router"
)

// ErrBadPlan means the model replied with something that does not parse as
// a decomposition plan. The router treats it as decomposition being
// unavailable and falls back.
var ErrBadPlan = errors.New("unparseable decomposition plan")

const systemPrompt = `You split a user request into sub-tasks for specialist agents.
You are given the request and a numbered list of available agents.
Reply with ONLY a JSON array, no prose, where each element is
{"agent": "<agent name from the list>", "sub_query": "<self-contained instruction for that agent>"}.
Use only agents from the list. Use as few agents as the request allows.
If the whole request fits one agent, return a single-element array.`

// Options configure the decomposer.
type Options struct {
	Model       string
	Temperature float64
}

// Decomposer implements router.Decomposer on the OpenAI Chat Completions API.
type Decomposer struct {
	client *openai.Client
	opts   Options
	logger *slog.Logger
}

// New creates a Decomposer using the default client, which reads
// OPENAI_API_KEY from the environment.
func New(logger *slog.Logger, optFns ...func(o *Options)) *Decomposer {
	client := openai.NewClient()
	return NewFromClient(&client, logger, optFns...)
}

// NewFromClient creates a Decomposer from an existing client.
func NewFromClient(client *openai.Client, logger *slog.Logger, optFns ...func(o *Options)) *Decomposer {
	opts := Options{
		Model:       openai.ChatModelGPT4oMini,
		Temperature: 0,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Decomposer{
		client: client,
		opts:   opts,
		logger: logger.With("component", "decomposer"),
	}
}

// planEntry is one element of the model's JSON reply.
type planEntry struct {
	Agent    string `json:"agent"`
	SubQuery string `json:"sub_query"`
}

// Decompose asks the model to split the query across the given candidates.
// Any transport or parse failure surfaces as an error; the caller decides
// whether to fall back.
func (d *Decomposer) Decompose(ctx context.Context, query string, candidates []router.Candidate) ([]router.Selection, error) {
	resp, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: d.opts.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildUserPrompt(query, candidates)),
		},
		Temperature: openai.Float(d.opts.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrBadPlan)
	}

	plan, err := parsePlan(resp.Choices[0].Message.Content)
	if err != nil {
		d.logger.Warn("model returned unparseable plan", "error", err)
		return nil, err
	}

	selections := make([]router.Selection, 0, len(plan))
	for _, entry := range plan {
		if entry.Agent == "" {
			continue
		}
		selections = append(selections, router.Selection{
			AgentName: entry.Agent,
			SubQuery:  strings.TrimSpace(entry.SubQuery),
		})
	}
	if len(selections) == 0 {
		return nil, fmt.Errorf("%w: empty plan", ErrBadPlan)
	}
	return selections, nil
}

func buildUserPrompt(query string, candidates []router.Candidate) string {
	var b strings.Builder
	b.WriteString("Available agents:\n")
	for i, c := range candidates {
		desc := c.Description
		if desc == "" {
			desc = "(no description)"
		}
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, c.AgentName, desc)
	}
	b.WriteString("\nRequest: ")
	b.WriteString(query)
	return b.String()
}

// parsePlan accepts a bare JSON array, tolerating a markdown code fence
// around it, and nothing else.
func parsePlan(content string) ([]planEntry, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var plan []planEntry
	if err := json.Unmarshal([]byte(trimmed), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPlan, err)
	}
	return plan, nil
}
