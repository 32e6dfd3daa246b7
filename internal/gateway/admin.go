// ABOUTME: Admin HTTP handlers for agent lifecycle management
// ABOUTME: Register, approve, suspend, enable, disable, and deregister agents

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/switchyard-ai/switchyard/internal/registry"
)

// RegisterAgentRequest is the JSON request body for POST /api/admin/agents.
type RegisterAgentRequest struct {
	Name       string              `json:"name"`
	Endpoint   string              `json:"endpoint"`
	Capability registry.Capability `json:"capability"`
	Tags       []string            `json:"tags,omitempty"`
	Provider   string              `json:"provider,omitempty"`
}

// RegisterAgentResponse is the JSON response for POST /api/admin/agents.
type RegisterAgentResponse struct {
	RegistrationID string `json:"registration_id"`
	Status         string `json:"status"`
}

// AgentResponse is the JSON shape of one descriptor on the admin surface.
// Auth tokens never leave the registry.
type AgentResponse struct {
	Name           string              `json:"name"`
	Description    string              `json:"description,omitempty"`
	Type           string              `json:"type"`
	Capability     registry.Capability `json:"capability"`
	Tags           []string            `json:"tags,omitempty"`
	Enabled        bool                `json:"enabled"`
	Endpoint       string              `json:"endpoint,omitempty"`
	Status         string              `json:"status,omitempty"`
	RegistrationID string              `json:"registration_id,omitempty"`
	Provider       string              `json:"provider,omitempty"`
	CreatedAt      string              `json:"created_at"`
	UpdatedAt      string              `json:"updated_at"`
}

func toAgentResponse(d *registry.AgentDescriptor) AgentResponse {
	return AgentResponse{
		Name:           d.Name,
		Description:    d.Description,
		Type:           string(d.Type),
		Capability:     d.Capability,
		Tags:           d.Tags,
		Enabled:        d.Enabled,
		Endpoint:       d.Endpoint,
		Status:         string(d.Status),
		RegistrationID: d.RegistrationID,
		Provider:       d.Provider,
		CreatedAt:      d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      d.UpdatedAt.Format(time.RFC3339),
	}
}

// handleAdminAgents handles GET (list) and POST (register remote) on
// /api/admin/agents.
func (g *Gateway) handleAdminAgents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handleListAgents(w, r)
	case http.MethodPost:
		g.handleRegisterAgent(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleListAgents handles GET /api/admin/agents.
// Supports optional ?type=, ?status=, and ?tag= query parameters.
func (g *Gateway) handleListAgents(w http.ResponseWriter, r *http.Request) {
	filter := registry.Filter{
		Type:   registry.AgentType(r.URL.Query().Get("type")),
		Status: registry.RemoteStatus(r.URL.Query().Get("status")),
	}
	if tag := r.URL.Query().Get("tag"); tag != "" {
		filter.Tags = []string{tag}
	}

	descriptors := g.registry.List(filter)
	response := make([]AgentResponse, 0, len(descriptors))
	for _, d := range descriptors {
		response = append(response, toAgentResponse(d))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleRegisterAgent handles POST /api/admin/agents: remote registration.
// New agents land in pending and must be approved before they route.
func (g *Gateway) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req RegisterAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Endpoint == "" {
		g.sendJSONError(w, http.StatusBadRequest, "name and endpoint are required")
		return
	}

	registrationID, err := g.registry.RegisterRemote(r.Context(), req.Name, req.Endpoint, req.Capability, req.Tags, req.Provider)
	if err != nil {
		g.handleRegistryError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(RegisterAgentResponse{
		RegistrationID: registrationID,
		Status:         string(registry.StatusPending),
	})
}

// handleAdminAgentByName routes /api/admin/agents/{name}[/{action}].
func (g *Gateway) handleAdminAgentByName(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/admin/agents/")
	name, action, _ := strings.Cut(rest, "/")
	if name == "" {
		g.sendJSONError(w, http.StatusBadRequest, "agent name is required")
		return
	}

	var err error
	switch {
	case r.Method == http.MethodGet && action == "":
		g.handleGetAgent(w, name)
		return
	case r.Method == http.MethodDelete && action == "":
		err = g.registry.Deregister(name)
	case r.Method == http.MethodPost && action == "approve":
		err = g.registry.Approve(name)
	case r.Method == http.MethodPost && action == "suspend":
		err = g.registry.Suspend(name)
	case r.Method == http.MethodPost && action == "enable":
		err = g.registry.SetEnabled(name, true)
	case r.Method == http.MethodPost && action == "disable":
		err = g.registry.SetEnabled(name, false)
	case r.Method == http.MethodPut && action == "capability":
		g.handleUpdateCapability(w, r, name)
		return
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err != nil {
		g.handleRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleGetAgent(w http.ResponseWriter, name string) {
	desc, err := g.registry.Get(name)
	if err != nil {
		g.handleRegistryError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toAgentResponse(desc))
}

func (g *Gateway) handleUpdateCapability(w http.ResponseWriter, r *http.Request, name string) {
	var capability registry.Capability
	if err := json.NewDecoder(r.Body).Decode(&capability); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := g.registry.UpdateCapability(name, capability); err != nil {
		g.handleRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRegistryError maps registry errors onto HTTP statuses.
func (g *Gateway) handleRegistryError(w http.ResponseWriter, err error) {
	var verr *registry.ValidationError
	switch {
	case errors.Is(err, registry.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, registry.ErrDuplicateName):
		g.sendJSONError(w, http.StatusConflict, "agent name already registered")
	case errors.As(err, &verr):
		g.sendJSONError(w, http.StatusUnprocessableEntity, verr.Error())
	case errors.Is(err, registry.ErrValidationFailed):
		g.sendJSONError(w, http.StatusUnprocessableEntity, "registration validation failed")
	default:
		g.logger.Error("registry operation failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}
