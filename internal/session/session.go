// ABOUTME: Session, Message, and InvocationRecord types plus the Store interface
// ABOUTME: Sessions are append-only; expiry is a status flag, never erasure

package session

import (
	"context"
	"errors"
	"time"
)

// Session status values. There is no transition out of expired or closed;
// a new session is created instead.
const (
	StatusActive  = "active"
	StatusExpired = "expired"
	StatusClosed  = "closed"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultInactivityThreshold is how long a session may sit idle before it is
// considered expired on next access.
const DefaultInactivityThreshold = 24 * time.Hour

// ErrNotFound is returned when a requested session does not exist.
var ErrNotFound = errors.New("session not found")

// ErrNoActiveSession is returned when a user has no resumable session.
var ErrNoActiveSession = errors.New("no active session")

// ErrSessionNotActive is returned when a turn targets an expired or closed
// session. Those statuses are terminal; the caller starts a new session.
var ErrSessionNotActive = errors.New("session not active")

// Message is one turn entry in a session's append-only history.
type Message struct {
	ID        string
	SessionID string
	Role      string // "user" | "assistant"
	Text      string
	AgentName string // set on assistant messages attributable to one agent
	Timestamp time.Time
}

// InvocationRecord is the provenance of one agent call made on behalf of a
// session turn.
type InvocationRecord struct {
	ID            string
	SessionID     string
	AgentName     string
	QuerySent     string
	ResultSummary string
	Timestamp     time.Time
	Duration      time.Duration
}

// Session is the durable conversational record tied to one user.
type Session struct {
	ID          string
	UserID      string
	Status      string
	History     []Message
	Invocations []InvocationRecord
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store defines session persistence. All writes for one session id are
// serialized by the implementation so concurrent requests from the same
// user cannot interleave history.
type Store interface {
	// Create starts a new active session for the user.
	Create(ctx context.Context, userID string) (*Session, error)

	// Get returns one session with its full history and invocation log.
	// Lazy expiry applies here too: a stale active session reads as expired.
	Get(ctx context.Context, id string) (*Session, error)

	// ActiveForUser returns the user's resumable session. Expiry is applied
	// lazily here: a stale active session is flipped to expired and
	// ErrNoActiveSession is returned.
	ActiveForUser(ctx context.Context, userID string) (*Session, error)

	// AppendTurn atomically appends messages and invocation records to the
	// session and advances its updated_at. Only active sessions accept
	// turns; otherwise ErrSessionNotActive.
	AppendTurn(ctx context.Context, sessionID string, messages []Message, invocations []InvocationRecord) error

	// CloseSession marks a session closed (explicit end of conversation).
	CloseSession(ctx context.Context, sessionID string) error

	// ListByUser returns all of a user's sessions, newest first, without
	// history bodies.
	ListByUser(ctx context.Context, userID string) ([]*Session, error)

	// Delete hard-deletes a session and its history. Administrative only.
	Delete(ctx context.Context, sessionID string) error

	// Close releases any resources held by the store.
	Close() error
}
