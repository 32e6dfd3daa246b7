// ABOUTME: Sentinel errors for registry and capability store operations
// ABOUTME: ValidationError carries the individual reasons a remote registration was rejected

package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateName is returned when registering a name that already exists.
	ErrDuplicateName = errors.New("agent name already registered")

	// ErrNotFound is returned by lookups for unknown agents.
	ErrNotFound = errors.New("agent not found")

	// ErrValidationFailed is returned when a remote registration does not pass
	// endpoint and capability validation.
	ErrValidationFailed = errors.New("remote registration validation failed")

	// ErrFactoryResolution is returned when a local descriptor's factory
	// reference cannot be resolved or instantiated.
	ErrFactoryResolution = errors.New("factory resolution failed")

	// ErrStoreCorrupt is returned when a non-empty capability store fails to
	// parse and no valid backup exists. Fatal at startup.
	ErrStoreCorrupt = errors.New("capability store corrupt")

	// ErrNotRoutable is returned when resolving an agent that is disabled or
	// not approved.
	ErrNotRoutable = errors.New("agent not routable")
)

// ValidationError lists every reason a remote registration was rejected.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrValidationFailed, strings.Join(e.Reasons, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}
