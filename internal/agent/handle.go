// ABOUTME: InvocableHandle abstraction over local and remote agents
// ABOUTME: One Invoke entry point; callers never branch on agent type

package agent

import (
	"context"

	"github.com/switchyard-ai/switchyard/internal/auth"
)

// Handle is the single invocation entry point for a resolved agent.
// The identity tuple travels with every call so the same authenticated
// context reaches the agent's own request handling; an agent that calls
// another agent is expected to forward it unchanged.
type Handle interface {
	// Name returns the registered agent name this handle is bound to.
	Name() string

	// Invoke sends one sub-query to the agent and returns its textual result.
	// The context carries the per-call deadline; cancellation stops the wait,
	// not necessarily the server-side work.
	Invoke(ctx context.Context, subQuery string, identity *auth.Identity) (string, error)
}
