// ABOUTME: HTTP API handlers for queries and session management
// ABOUTME: Provides POST /api/query and the /api/sessions endpoints

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/switchyard-ai/switchyard/internal/auth"
	"github.com/switchyard-ai/switchyard/internal/orchestrator"
	"github.com/switchyard-ai/switchyard/internal/session"
)

// QueryHTTPRequest is the JSON request body for POST /api/query.
type QueryHTTPRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// SessionSummary is the JSON shape of one session without history bodies.
type SessionSummary struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// MessageResponse is the JSON shape of one history message.
type MessageResponse struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	AgentName string `json:"agent_name,omitempty"`
	Timestamp string `json:"timestamp"`
}

// InvocationResponse is the JSON shape of one invocation record.
type InvocationResponse struct {
	AgentName     string `json:"agent_name"`
	QuerySent     string `json:"query_sent"`
	ResultSummary string `json:"result_summary"`
	Timestamp     string `json:"timestamp"`
	DurationMS    int64  `json:"duration_ms"`
}

// SessionDetailResponse is the JSON response for GET /api/sessions/{id}.
type SessionDetailResponse struct {
	SessionSummary
	History     []MessageResponse    `json:"history"`
	Invocations []InvocationResponse `json:"invocations"`
}

// handleQuery handles POST /api/query requests.
func (g *Gateway) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	identity := auth.FromContext(r.Context())
	if identity == nil {
		g.sendJSONError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	if !g.limiter.Allow(identity.PrincipalID) {
		g.sendJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req QueryHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "query is required")
		return
	}

	// Double-submits of the same query are rejected rather than dispatched twice.
	if g.recent.Duplicate(identity.PrincipalID, req.Query) {
		g.sendJSONError(w, http.StatusConflict, "duplicate query, already processing")
		return
	}

	resp, err := g.service.HandleQuery(r.Context(), orchestrator.QueryRequest{
		Query:     req.Query,
		SessionID: req.SessionID,
	}, identity)
	if err != nil {
		g.handleQueryError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleQueryError maps pipeline errors onto HTTP statuses without leaking
// internals.
func (g *Gateway) handleQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrNoAgentAvailable):
		g.sendJSONError(w, http.StatusServiceUnavailable, "no agent available for this request")
	case errors.Is(err, session.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrSessionNotActive):
		g.sendJSONError(w, http.StatusConflict, "session is no longer active")
	case errors.Is(err, auth.ErrUnauthenticated):
		g.sendJSONError(w, http.StatusUnauthorized, "not authenticated")
	default:
		g.logger.Error("query failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// handleSessions handles GET /api/sessions: the caller's sessions, newest first.
func (g *Gateway) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	identity := auth.FromContext(r.Context())
	if identity == nil {
		g.sendJSONError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	sessions, err := g.sessions.ListByUser(r.Context(), identity.PrincipalID)
	if err != nil {
		g.logger.Error("failed to list sessions", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		response = append(response, summarize(s))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSessionByID handles GET, POST .../close, and DELETE on /api/sessions/{id}.
func (g *Gateway) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		g.sendJSONError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	sessionID, action, _ := strings.Cut(rest, "/")
	if sessionID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "session id is required")
		return
	}

	switch {
	case r.Method == http.MethodGet && action == "":
		g.handleGetSession(w, r, sessionID, identity)
	case r.Method == http.MethodPost && action == "close":
		g.handleCloseSession(w, r, sessionID, identity)
	case r.Method == http.MethodDelete && action == "":
		g.handleDeleteSession(w, r, sessionID, identity)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// loadOwnedSession fetches a session and enforces ownership. Admins may read
// any session; everyone else only their own. A foreign session reads as 404.
func (g *Gateway) loadOwnedSession(w http.ResponseWriter, r *http.Request, sessionID string, identity *auth.Identity) *session.Session {
	sess, err := g.sessions.Get(r.Context(), sessionID)
	if errors.Is(err, session.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "session not found")
		return nil
	}
	if err != nil {
		g.logger.Error("failed to get session", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return nil
	}
	if sess.UserID != identity.PrincipalID && !identity.IsPrivileged() {
		g.sendJSONError(w, http.StatusNotFound, "session not found")
		return nil
	}
	return sess
}

func (g *Gateway) handleGetSession(w http.ResponseWriter, r *http.Request, sessionID string, identity *auth.Identity) {
	sess := g.loadOwnedSession(w, r, sessionID, identity)
	if sess == nil {
		return
	}

	response := SessionDetailResponse{
		SessionSummary: summarize(sess),
		History:        make([]MessageResponse, 0, len(sess.History)),
		Invocations:    make([]InvocationResponse, 0, len(sess.Invocations)),
	}
	for _, m := range sess.History {
		response.History = append(response.History, MessageResponse{
			Role:      m.Role,
			Text:      m.Text,
			AgentName: m.AgentName,
			Timestamp: m.Timestamp.Format(time.RFC3339),
		})
	}
	for _, inv := range sess.Invocations {
		response.Invocations = append(response.Invocations, InvocationResponse{
			AgentName:     inv.AgentName,
			QuerySent:     inv.QuerySent,
			ResultSummary: inv.ResultSummary,
			Timestamp:     inv.Timestamp.Format(time.RFC3339),
			DurationMS:    inv.Duration.Milliseconds(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (g *Gateway) handleCloseSession(w http.ResponseWriter, r *http.Request, sessionID string, identity *auth.Identity) {
	if g.loadOwnedSession(w, r, sessionID, identity) == nil {
		return
	}

	if err := g.sessions.CloseSession(r.Context(), sessionID); err != nil {
		g.logger.Error("failed to close session", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteSession hard-deletes a session with its history. Admin only.
func (g *Gateway) handleDeleteSession(w http.ResponseWriter, r *http.Request, sessionID string, identity *auth.Identity) {
	if !identity.IsPrivileged() {
		g.sendJSONError(w, http.StatusForbidden, "admin role required")
		return
	}

	err := g.sessions.Delete(r.Context(), sessionID)
	if errors.Is(err, session.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to delete session", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func summarize(s *session.Session) SessionSummary {
	return SessionSummary{
		ID:        s.ID,
		UserID:    s.UserID,
		Status:    s.Status,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
