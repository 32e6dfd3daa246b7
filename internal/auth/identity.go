// ABOUTME: Authenticated identity tuple and context propagation helpers
// ABOUTME: Provides WithIdentity/FromContext for carrying identity through request handling

package auth

import (
	"context"
	"errors"
)

// ErrUnauthenticated is returned when a request carries no valid identity tuple.
var ErrUnauthenticated = errors.New("unauthenticated")

// PrivilegedRole is the role exempt from the query-rewrite restriction.
const PrivilegedRole = "admin"

// Identity holds the verified identity tuple supplied by the auth provider.
// It travels from the top-level caller through routing and dispatch into
// every agent invocation.
type Identity struct {
	PrincipalID string   // unique identifier of the authenticated principal
	Role        string   // "user" | "admin"
	Permissions []string // elevated permission grants, empty for most users
	Credential  string   // bearer credential to propagate to downstream agents
}

// IsPrivileged returns true if the principal is exempt from query rewriting.
func (id *Identity) IsPrivileged() bool {
	return id.Role == PrivilegedRole
}

// HasPermission returns true if the identity carries the named permission.
func (id *Identity) HasPermission(perm string) bool {
	for _, p := range id.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// identityKey is the key type for storing an Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if not present.
func FromContext(ctx context.Context) *Identity {
	val := ctx.Value(identityKey{})
	if val == nil {
		return nil
	}
	id, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return id
}

// Require retrieves the Identity from the context or fails with ErrUnauthenticated.
func Require(ctx context.Context) (*Identity, error) {
	id := FromContext(ctx)
	if id == nil || id.PrincipalID == "" {
		return nil, ErrUnauthenticated
	}
	return id, nil
}
