// ABOUTME: Local agent factories and in-process handles
// ABOUTME: Maps factory references from descriptors to registered constructors

package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/switchyard-ai/switchyard/internal/auth"
)

// ErrUnknownFactory indicates a factory reference has no registered constructor.
var ErrUnknownFactory = errors.New("unknown factory reference")

// InvokeFunc is the function a local agent exposes for handling one sub-query.
type InvokeFunc func(ctx context.Context, subQuery string, identity *auth.Identity) (string, error)

// Factory constructs a local agent's invoke function. Construction may fail,
// for example when the agent's own dependencies are unavailable.
type Factory func() (InvokeFunc, error)

// Factories holds the process-local mapping from factory references to
// constructors. It is populated once at startup and read by the registry
// when resolving local descriptors.
type Factories struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewFactories creates an empty factory registry.
func NewFactories() *Factories {
	return &Factories{factories: make(map[string]Factory)}
}

// Register adds a factory under the given reference. Re-registering a
// reference replaces the previous factory.
func (f *Factories) Register(ref string, factory Factory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.factories[ref] = factory
}

// Resolve instantiates the agent behind the reference and returns a handle.
func (f *Factories) Resolve(name, ref string) (Handle, error) {
	f.mu.RLock()
	factory, ok := f.factories[ref]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFactory, ref)
	}

	invoke, err := factory()
	if err != nil {
		return nil, fmt.Errorf("constructing agent %q from %q: %w", name, ref, err)
	}
	return &localHandle{name: name, invoke: invoke}, nil
}

// localHandle wraps an in-process invoke function.
type localHandle struct {
	name   string
	invoke InvokeFunc
}

func (h *localHandle) Name() string { return h.name }

func (h *localHandle) Invoke(ctx context.Context, subQuery string, identity *auth.Identity) (string, error) {
	return h.invoke(ctx, subQuery, identity)
}
