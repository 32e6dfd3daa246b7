// ABOUTME: Concurrent dispatcher invoking selected agents and aggregating results
// ABOUTME: Scatter/gather with per-call timeouts; one slow agent never aborts the batch

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/switchyard-ai/switchyard/internal/agent"
	"github.com/switchyard-ai/switchyard/internal/auth"
	"github.com/switchyard-ai/switchyard/internal/router"
	"github.com/switchyard-ai/switchyard/internal/session"
)

// ErrAgentTimeout marks a single agent call that exceeded the per-call
// deadline. It is per-agent and non-fatal to the batch.
var ErrAgentTimeout = errors.New("agent call timed out")

// DefaultTimeout is the per-call upper bound when none is configured.
const DefaultTimeout = 30 * time.Second

// summaryLimit caps how much of a result lands in an invocation record.
const summaryLimit = 200

// Resolver turns an agent name into an invocable handle.
type Resolver interface {
	Resolve(name string) (agent.Handle, error)
}

// Result is the outcome of one agent invocation.
type Result struct {
	AgentName string
	SubQuery  string
	Text      string
	Err       error
	Duration  time.Duration
}

// Dispatcher fans selected sub-queries out to their agents in parallel and
// waits for all of them to settle before aggregating.
type Dispatcher struct {
	resolver Resolver
	sessions session.Store
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a Dispatcher. A non-positive timeout falls back to the default.
func New(resolver Resolver, sessions session.Store, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		resolver: resolver,
		sessions: sessions,
		timeout:  timeout,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Dispatch invokes every selection concurrently and returns results in
// selection order. The join barrier waits for every call to settle; a
// failure or timeout on one agent is captured in its own result.
func (d *Dispatcher) Dispatch(ctx context.Context, selections []router.Selection, identity *auth.Identity) []Result {
	results := make([]Result, len(selections))

	var g errgroup.Group
	for i, sel := range selections {
		g.Go(func() error {
			results[i] = d.invokeOne(ctx, sel, identity)
			return nil
		})
	}
	g.Wait()

	return results
}

func (d *Dispatcher) invokeOne(ctx context.Context, sel router.Selection, identity *auth.Identity) Result {
	result := Result{AgentName: sel.AgentName, SubQuery: sel.SubQuery}
	start := time.Now()

	handle, err := d.resolver.Resolve(sel.AgentName)
	if err != nil {
		result.Err = fmt.Errorf("resolving agent: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	text, err := handle.Invoke(callCtx, sel.SubQuery, identity)
	result.Duration = time.Since(start)
	if err != nil {
		// The transport may still complete server-side; we stop waiting.
		if callCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("%w after %s", ErrAgentTimeout, d.timeout)
		}
		result.Err = err
		d.logger.Warn("agent invocation failed",
			"agent", sel.AgentName, "duration", result.Duration, "error", err)
		return result
	}

	result.Text = text
	d.logger.Debug("agent invocation complete",
		"agent", sel.AgentName, "duration", result.Duration)
	return result
}

// Aggregate merges settled results into one user-facing reply. Successful
// answers appear in selection order; failures render as explicit per-agent
// unavailability notes, never as raw internal errors.
func Aggregate(results []Result) string {
	var parts []string
	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.AgentName)
			continue
		}
		if len(results) == 1 {
			parts = append(parts, r.Text)
		} else {
			parts = append(parts, fmt.Sprintf("[%s] %s", r.AgentName, r.Text))
		}
	}

	var b strings.Builder
	b.WriteString(strings.Join(parts, "\n\n"))
	if len(failed) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if len(failed) == 1 {
			fmt.Fprintf(&b, "Note: %s is currently unavailable.", failed[0])
		} else {
			fmt.Fprintf(&b, "Note: %s are currently unavailable.", strings.Join(failed, ", "))
		}
	}
	return b.String()
}

// Record appends the turn to the session: one invocation record per
// attempted agent plus the user query and aggregated response as two
// history messages, persisted in one serialized write.
func (d *Dispatcher) Record(ctx context.Context, sessionID, userQuery, aggregated string, results []Result) error {
	invocations := make([]session.InvocationRecord, 0, len(results))
	for _, r := range results {
		summary := r.Text
		if r.Err != nil {
			summary = "error: " + publicError(r.Err)
		}
		summary = truncate(summary, summaryLimit)
		invocations = append(invocations, session.InvocationRecord{
			AgentName:     r.AgentName,
			QuerySent:     r.SubQuery,
			ResultSummary: summary,
			Duration:      r.Duration,
		})
	}

	agentName := ""
	if len(results) == 1 {
		agentName = results[0].AgentName
	}
	messages := []session.Message{
		{Role: session.RoleUser, Text: userQuery},
		{Role: session.RoleAssistant, Text: aggregated, AgentName: agentName},
	}

	if err := d.sessions.AppendTurn(ctx, sessionID, messages, invocations); err != nil {
		return fmt.Errorf("recording turn: %w", err)
	}
	return nil
}

// truncate caps s at limit bytes, backing up so a multi-byte rune is never
// split.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// publicError reduces an invocation error to a note safe to store and show.
func publicError(err error) string {
	if errors.Is(err, ErrAgentTimeout) {
		return "timed out"
	}
	return "invocation failed"
}
