// ABOUTME: AgentDescriptor and Capability types recorded by the registry
// ABOUTME: Tagged local/remote variant with routability rules

package registry

import (
	"time"
)

// AgentType distinguishes in-process agents from network-reachable ones.
type AgentType string

const (
	AgentTypeLocal  AgentType = "local"
	AgentTypeRemote AgentType = "remote"
)

// RemoteStatus governs whether the registry will resolve a remote descriptor.
type RemoteStatus string

const (
	StatusPending   RemoteStatus = "pending"
	StatusApproved  RemoteStatus = "approved"
	StatusSuspended RemoteStatus = "suspended"
)

// Capability declares what an agent can do. The matcher scores queries
// against these sets; priority breaks ties, higher wins.
type Capability struct {
	Domains    []string `json:"domains"`
	Operations []string `json:"operations"`
	Entities   []string `json:"entities"`
	Keywords   []string `json:"keywords"`
	Examples   []string `json:"examples,omitempty"`
	Priority   int      `json:"priority"`
}

// AgentDescriptor is the registry's record of an agent's identity,
// reachability, and declared capabilities.
type AgentDescriptor struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Type        AgentType  `json:"type"`
	Capability  Capability `json:"capability"`
	Tags        []string   `json:"tags,omitempty"`
	Enabled     bool       `json:"enabled"`

	// Local reachability: a factory reference resolvable in-process.
	FactoryRef string `json:"factory_ref,omitempty"`

	// Remote reachability: network endpoint plus auth requirement.
	Endpoint  string `json:"endpoint,omitempty"`
	AuthToken string `json:"auth_token,omitempty"`

	// Remote lifecycle fields.
	Status         RemoteStatus `json:"status,omitempty"`
	RegistrationID string       `json:"registration_id,omitempty"`
	Provider       string       `json:"provider,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Routable reports whether this agent may appear as a routing candidate.
// Disabled agents never route; a remote agent additionally requires approval.
func (d *AgentDescriptor) Routable() bool {
	if !d.Enabled {
		return false
	}
	if d.Type == AgentTypeRemote {
		return d.Status == StatusApproved
	}
	return true
}

// Clone returns a deep copy so callers can hold descriptor snapshots without
// racing registry mutations.
func (d *AgentDescriptor) Clone() *AgentDescriptor {
	out := *d
	out.Capability = Capability{
		Domains:    append([]string(nil), d.Capability.Domains...),
		Operations: append([]string(nil), d.Capability.Operations...),
		Entities:   append([]string(nil), d.Capability.Entities...),
		Keywords:   append([]string(nil), d.Capability.Keywords...),
		Examples:   append([]string(nil), d.Capability.Examples...),
		Priority:   d.Capability.Priority,
	}
	out.Tags = append([]string(nil), d.Tags...)
	return &out
}

// HasTag reports whether the descriptor carries the given tag.
func (d *AgentDescriptor) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
