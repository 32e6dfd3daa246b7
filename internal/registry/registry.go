// ABOUTME: Agent registry owning descriptor lifecycle and handle resolution
// ABOUTME: Every mutation persists through the capability store before it is considered committed

package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/switchyard-ai/switchyard/internal/agent"
)

// Registry exclusively owns AgentDescriptor lifecycle. It is constructed
// once at process start and passed by reference to the router and
// dispatcher; there are no package-level singletons.
type Registry struct {
	mu        sync.RWMutex
	agents    map[string]*AgentDescriptor
	store     CapabilityStore
	factories *agent.Factories
	dialer    *agent.Dialer
	validator *RemoteValidator
	logger    *slog.Logger
}

// New loads the registry from the capability store. Store corruption is
// fatal here: the caller must not start serving with a silently empty
// registry.
func New(store CapabilityStore, factories *agent.Factories, dialer *agent.Dialer, validator *RemoteValidator, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	agents, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading capability store: %w", err)
	}
	r := &Registry{
		agents:    agents,
		store:     store,
		factories: factories,
		dialer:    dialer,
		validator: validator,
		logger:    logger.With("component", "registry"),
	}
	r.logger.Info("registry loaded", "agents", len(agents))
	return r, nil
}

// RegisterLocal records an in-process agent reachable through a factory
// reference. The agent is enabled and routable immediately.
func (r *Registry) RegisterLocal(name, factoryRef string, capability Capability, tags []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}

	now := time.Now().UTC()
	desc := &AgentDescriptor{
		Name:       name,
		Type:       AgentTypeLocal,
		FactoryRef: factoryRef,
		Capability: capability,
		Tags:       tags,
		Enabled:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := r.commitLocked(name, desc); err != nil {
		return err
	}
	r.logger.Info("local agent registered", "name", name, "factory_ref", factoryRef)
	return nil
}

// RegisterRemote validates and records a network-reachable agent. On success
// the descriptor is stored with status pending; it is not routable until a
// separate Approve call. Returns the registration id.
func (r *Registry) RegisterRemote(ctx context.Context, name, endpoint string, capability Capability, tags []string, provider string) (string, error) {
	// Duplicate names are rejected before the probe so a taken name never
	// costs a network round trip.
	r.mu.RLock()
	_, exists := r.agents[name]
	r.mu.RUnlock()
	if exists {
		return "", fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}

	// Validation happens outside the lock; it includes a network probe.
	if err := r.validator.Validate(ctx, name, endpoint, capability); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock; a concurrent registration may have won.
	if _, exists := r.agents[name]; exists {
		return "", fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}

	now := time.Now().UTC()
	desc := &AgentDescriptor{
		Name:           name,
		Type:           AgentTypeRemote,
		Endpoint:       endpoint,
		Capability:     capability,
		Tags:           tags,
		Enabled:        true,
		Status:         StatusPending,
		RegistrationID: uuid.New().String(),
		Provider:       provider,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := r.commitLocked(name, desc); err != nil {
		return "", err
	}
	r.logger.Info("remote agent registered",
		"name", name, "endpoint", endpoint, "registration_id", desc.RegistrationID)
	return desc.RegistrationID, nil
}

// Approve marks a pending or suspended remote agent as approved and routable.
// Idempotent on retry.
func (r *Registry) Approve(name string) error {
	return r.mutate(name, func(d *AgentDescriptor) error {
		if d.Type != AgentTypeRemote {
			return fmt.Errorf("agent %q is not remote", name)
		}
		d.Status = StatusApproved
		return nil
	})
}

// Suspend marks a remote agent as suspended; it stops routing immediately.
// Idempotent on retry.
func (r *Registry) Suspend(name string) error {
	return r.mutate(name, func(d *AgentDescriptor) error {
		if d.Type != AgentTypeRemote {
			return fmt.Errorf("agent %q is not remote", name)
		}
		d.Status = StatusSuspended
		return nil
	})
}

// UpdateCapability replaces an agent's declared capability.
func (r *Registry) UpdateCapability(name string, capability Capability) error {
	return r.mutate(name, func(d *AgentDescriptor) error {
		d.Capability = capability
		return nil
	})
}

// SetEnabled flips the enabled flag. Disabled agents are never routing
// candidates regardless of type or status.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	return r.mutate(name, func(d *AgentDescriptor) error {
		d.Enabled = enabled
		return nil
	})
}

// Deregister removes an agent entirely.
func (r *Registry) Deregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.agents[name]
	if !exists {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	delete(r.agents, name)
	if err := r.store.Save(r.agents); err != nil {
		r.agents[name] = prev
		return fmt.Errorf("persisting deregistration: %w", err)
	}
	r.logger.Info("agent deregistered", "name", name)
	return nil
}

// Resolve turns a descriptor into an invocable handle. Local descriptors
// instantiate their factory; remote descriptors get a thin handle bound to
// the endpoint with no handshake, reachability is proven at call time.
func (r *Registry) Resolve(name string) (agent.Handle, error) {
	r.mu.RLock()
	desc, exists := r.agents[name]
	if !exists {
		r.mu.RUnlock()
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	desc = desc.Clone()
	r.mu.RUnlock()

	if !desc.Routable() {
		return nil, fmt.Errorf("%w: %q", ErrNotRoutable, name)
	}

	switch desc.Type {
	case AgentTypeLocal:
		handle, err := r.factories.Resolve(desc.Name, desc.FactoryRef)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFactoryResolution, err)
		}
		return handle, nil
	case AgentTypeRemote:
		return r.dialer.Handle(desc.Name, desc.Endpoint, desc.AuthToken), nil
	default:
		return nil, fmt.Errorf("agent %q has unknown type %q", name, desc.Type)
	}
}

// Filter narrows List output. Zero values match everything.
type Filter struct {
	Type   AgentType
	Status RemoteStatus
	Tags   []string
}

func (f Filter) matches(d *AgentDescriptor) bool {
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	for _, tag := range f.Tags {
		if !d.HasTag(tag) {
			return false
		}
	}
	return true
}

// List returns descriptor clones matching the filter, sorted by name.
func (r *Registry) List(filter Filter) []*AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*AgentDescriptor, 0, len(r.agents))
	for _, d := range r.agents {
		if filter.matches(d) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns a clone of one descriptor.
func (r *Registry) Get(name string) (*AgentDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.agents[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return d.Clone(), nil
}

// Routable returns a snapshot of every descriptor eligible as a routing
// candidate. The matcher scores against this snapshot without further
// synchronization.
func (r *Registry) Routable() []*AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*AgentDescriptor, 0, len(r.agents))
	for _, d := range r.agents {
		if d.Routable() {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// mutate applies fn to a copy of the named descriptor and commits the result.
func (r *Registry) mutate(name string, fn func(*AgentDescriptor) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.agents[name]
	if !exists {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	next := prev.Clone()
	if err := fn(next); err != nil {
		return err
	}
	next.UpdatedAt = time.Now().UTC()
	return r.commitLocked(name, next)
}

// commitLocked installs the descriptor and persists the map. On save failure
// the previous in-memory state is restored so memory never diverges from an
// unconfirmed write.
func (r *Registry) commitLocked(name string, desc *AgentDescriptor) error {
	prev, hadPrev := r.agents[name]
	r.agents[name] = desc
	if err := r.store.Save(r.agents); err != nil {
		if hadPrev {
			r.agents[name] = prev
		} else {
			delete(r.agents, name)
		}
		return fmt.Errorf("persisting agent %q: %w", name, err)
	}
	return nil
}
