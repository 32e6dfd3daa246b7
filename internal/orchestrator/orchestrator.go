// ABOUTME: Orchestrator is the central layer for query handling
// ABOUTME: Qualify, resume session, route, dispatch, record - in that order

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/switchyard-ai/switchyard/internal/auth"
	"github.com/switchyard-ai/switchyard/internal/dispatch"
	"github.com/switchyard-ai/switchyard/internal/registry"
	"github.com/switchyard-ai/switchyard/internal/router"
	"github.com/switchyard-ai/switchyard/internal/session"
)

// ErrNoAgentAvailable means no registered agent could serve the query.
var ErrNoAgentAvailable = errors.New("no agent available for this request")

// QueryGuard qualifies cross-user references before routing.
type QueryGuard interface {
	Rewrite(ctx context.Context, query string, identity *auth.Identity) (string, error)
}

// AgentSource provides the routable descriptor snapshot.
type AgentSource interface {
	Routable() []*registry.AgentDescriptor
}

// QueryRouter selects target agents for a qualified query.
type QueryRouter interface {
	Route(ctx context.Context, query string, descriptors []*registry.AgentDescriptor) (*router.Decision, error)
}

// AgentDispatcher invokes selections and persists the turn.
type AgentDispatcher interface {
	Dispatch(ctx context.Context, selections []router.Selection, identity *auth.Identity) []dispatch.Result
	Record(ctx context.Context, sessionID, userQuery, aggregated string, results []dispatch.Result) error
}

// Service runs the end-to-end query pipeline. Every query flows through
// here; history is the source of truth, not a side effect.
type Service struct {
	guard      QueryGuard
	agents     AgentSource
	router     QueryRouter
	dispatcher AgentDispatcher
	sessions   session.Store
	logger     *slog.Logger
}

// New creates a Service.
func New(guard QueryGuard, agents AgentSource, queryRouter QueryRouter, dispatcher AgentDispatcher, sessions session.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		guard:      guard,
		agents:     agents,
		router:     queryRouter,
		dispatcher: dispatcher,
		sessions:   sessions,
		logger:     logger.With("component", "orchestrator"),
	}
}

// QueryRequest is one authenticated user query.
type QueryRequest struct {
	// Query is the raw user text
	Query string
	// SessionID pins the query to an existing session. Empty means resume
	// the caller's active session, or start a new one.
	SessionID string
}

// QueryResponse is the settled outcome of one query.
type QueryResponse struct {
	SessionID string   `json:"session_id"`
	Reply     string   `json:"reply"`
	Agents    []string `json:"agents"`
}

// HandleQuery runs one query through qualification, session resumption,
// routing, dispatch, and recording. The identity must already be verified.
func (s *Service) HandleQuery(ctx context.Context, req QueryRequest, identity *auth.Identity) (*QueryResponse, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("empty query")
	}

	// Qualification happens before anything touches the query text; a
	// directory failure blocks the request rather than leaking ambiguity.
	qualified, err := s.guard.Rewrite(ctx, req.Query, identity)
	if err != nil {
		return nil, fmt.Errorf("qualifying query: %w", err)
	}

	sess, err := s.resumeSession(ctx, req.SessionID, identity)
	if err != nil {
		return nil, err
	}

	decision, err := s.router.Route(ctx, qualified, s.agents.Routable())
	if err != nil {
		if errors.Is(err, router.ErrNoRoutableAgent) {
			return nil, ErrNoAgentAvailable
		}
		return nil, fmt.Errorf("routing query: %w", err)
	}

	results := s.dispatcher.Dispatch(ctx, decision.Selected, identity)
	reply := dispatch.Aggregate(results)

	// History records the query as the user typed it; agents only ever saw
	// the qualified form.
	if err := s.dispatcher.Record(ctx, sess.ID, req.Query, reply, results); err != nil {
		// The user already has an answer in hand; losing the recording is
		// logged loudly but does not fail the request.
		s.logger.Error("failed to record turn", "session_id", sess.ID, "error", err)
	}

	agents := make([]string, 0, len(results))
	for _, r := range results {
		agents = append(agents, r.AgentName)
	}

	s.logger.Info("query handled",
		"principal", identity.PrincipalID,
		"session_id", sess.ID,
		"agents", agents)

	return &QueryResponse{
		SessionID: sess.ID,
		Reply:     reply,
		Agents:    agents,
	}, nil
}

// resumeSession returns the session the query belongs to: the pinned one
// when a session id is given, otherwise the caller's active session,
// otherwise a fresh one.
func (s *Service) resumeSession(ctx context.Context, sessionID string, identity *auth.Identity) (*session.Session, error) {
	if sessionID != "" {
		sess, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("loading session: %w", err)
		}
		if sess.UserID != identity.PrincipalID {
			// Do not reveal that the session exists.
			return nil, session.ErrNotFound
		}
		if sess.Status != session.StatusActive {
			// Expired and closed are terminal; the caller starts over.
			return nil, fmt.Errorf("%w: session %s is %s", session.ErrSessionNotActive, sess.ID, sess.Status)
		}
		return sess, nil
	}

	sess, err := s.sessions.ActiveForUser(ctx, identity.PrincipalID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, session.ErrNoActiveSession) {
		return nil, fmt.Errorf("resuming session: %w", err)
	}

	sess, err = s.sessions.Create(ctx, identity.PrincipalID)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	s.logger.Info("started session", "session_id", sess.ID, "principal", identity.PrincipalID)
	return sess, nil
}
