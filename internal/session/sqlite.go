// ABOUTME: SQLite implementation of the session Store using modernc.org/sqlite
// ABOUTME: Per-session write serialization, lazy expiry, automatic schema creation

package session

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db         *sql.DB
	inactivity time.Duration
	logger     *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-session write locks
}

// NewSQLiteStore creates a session store at the given path. The schema is
// created if it doesn't exist and parent directories are created as needed.
// A non-positive inactivity threshold falls back to the default.
func NewSQLiteStore(path string, inactivity time.Duration) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "session-store")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if inactivity <= 0 {
		inactivity = DefaultInactivityThreshold
	}

	s := &SQLiteStore{
		db:         db,
		inactivity: inactivity,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("session store initialized", "path", path, "inactivity", inactivity)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			status     TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,

			CHECK (status IN ('active', 'expired', 'closed'))
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_user_status
			ON sessions(user_id, status);

		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role       TEXT NOT NULL,
			text       TEXT NOT NULL,
			agent_name TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session
			ON messages(session_id);

		CREATE TABLE IF NOT EXISTS invocations (
			id             TEXT PRIMARY KEY,
			session_id     TEXT NOT NULL,
			agent_name     TEXT NOT NULL,
			query_sent     TEXT NOT NULL,
			result_summary TEXT NOT NULL,
			duration_ms    INTEGER NOT NULL,
			created_at     DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_invocations_session
			ON invocations(session_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sessionLock returns the write lock for one session id.
func (s *SQLiteStore) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

// releaseLock drops a session's write lock entry. Called when the session
// leaves active, so the map does not grow with dead sessions.
func (s *SQLiteStore) releaseLock(sessionID string) {
	s.mu.Lock()
	delete(s.locks, sessionID)
	s.mu.Unlock()
}

// expireIfStale flips a stale active session to expired and persists the
// change. The passed session is updated in place.
func (s *SQLiteStore) expireIfStale(ctx context.Context, sess *Session) error {
	if sess.Status != StatusActive || time.Since(sess.UpdatedAt) <= s.inactivity {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'expired' WHERE id = ? AND status = 'active'`, sess.ID); err != nil {
		return fmt.Errorf("expiring session: %w", err)
	}
	sess.Status = StatusExpired
	s.releaseLock(sess.ID)
	s.logger.Info("session expired on access",
		"session_id", sess.ID, "user_id", sess.UserID, "idle", time.Since(sess.UpdatedAt))
	return nil
}

// Create starts a new active session for the user.
func (s *SQLiteStore) Create(ctx context.Context, userID string) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Status, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Info("session created", "session_id", sess.ID, "user_id", userID)
	return sess, nil
}

// Get returns one session with its full history and invocation log. A stale
// active session is flipped to expired before it is returned.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.scanSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.expireIfStale(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.loadHistory(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SQLiteStore) scanSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, status, created_at, updated_at FROM sessions WHERE id = ?`, id)

	sess := &Session{}
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) loadHistory(ctx context.Context, sess *Session) error {
	// rowid order preserves insertion order exactly, independent of
	// timestamp resolution.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, text, COALESCE(agent_name, ''), created_at
		 FROM messages WHERE session_id = ? ORDER BY rowid`, sess.ID)
	if err != nil {
		return fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg := Message{SessionID: sess.ID}
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Text, &msg.AgentName, &msg.Timestamp); err != nil {
			return fmt.Errorf("scanning message: %w", err)
		}
		sess.History = append(sess.History, msg)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating messages: %w", err)
	}

	invRows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_name, query_sent, result_summary, duration_ms, created_at
		 FROM invocations WHERE session_id = ? ORDER BY rowid`, sess.ID)
	if err != nil {
		return fmt.Errorf("querying invocations: %w", err)
	}
	defer invRows.Close()

	for invRows.Next() {
		rec := InvocationRecord{SessionID: sess.ID}
		var durationMS int64
		if err := invRows.Scan(&rec.ID, &rec.AgentName, &rec.QuerySent, &rec.ResultSummary, &durationMS, &rec.Timestamp); err != nil {
			return fmt.Errorf("scanning invocation: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		sess.Invocations = append(sess.Invocations, rec)
	}
	if err := invRows.Err(); err != nil {
		return fmt.Errorf("iterating invocations: %w", err)
	}
	return nil
}

// ActiveForUser returns the user's resumable session, applying lazy expiry.
func (s *SQLiteStore) ActiveForUser(ctx context.Context, userID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, status, created_at, updated_at
		 FROM sessions WHERE user_id = ? AND status = 'active'
		 ORDER BY updated_at DESC LIMIT 1`, userID)

	sess := &Session{}
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("scanning active session: %w", err)
	}

	if err := s.expireIfStale(ctx, sess); err != nil {
		return nil, err
	}
	if sess.Status != StatusActive {
		return nil, ErrNoActiveSession
	}

	if err := s.loadHistory(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// AppendTurn appends messages and invocation records in one transaction,
// serialized per session id so concurrent turns cannot interleave. Expired
// and closed sessions are terminal and reject the turn.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID string, messages []Message, invocations []InvocationRecord) error {
	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.scanSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.expireIfStale(ctx, sess); err != nil {
		return err
	}
	if sess.Status != StatusActive {
		// Drop the lock entry the rejected call re-created.
		s.releaseLock(sessionID)
		return fmt.Errorf("%w: session %s is %s", ErrSessionNotActive, sessionID, sess.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i := range messages {
		msg := &messages[i]
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = now
		}
		var agentName any
		if msg.AgentName != "" {
			agentName = msg.AgentName
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, session_id, role, text, agent_name, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ID, sessionID, msg.Role, msg.Text, agentName, msg.Timestamp,
		); err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
	}

	for i := range invocations {
		rec := &invocations[i]
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO invocations (id, session_id, agent_name, query_sent, result_summary, duration_ms, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, sessionID, rec.AgentName, rec.QuerySent, rec.ResultSummary,
			rec.Duration.Milliseconds(), rec.Timestamp,
		); err != nil {
			return fmt.Errorf("inserting invocation: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, now, sessionID); err != nil {
		return fmt.Errorf("updating session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing turn: %w", err)
	}
	return nil
}

// CloseSession marks a session closed.
func (s *SQLiteStore) CloseSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = 'closed', updated_at = ? WHERE id = ?`,
		time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("closing session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("closing session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.releaseLock(sessionID)
	return nil
}

// ListByUser returns session summaries for a user, newest first.
func (s *SQLiteStore) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, status, created_at, updated_at
		 FROM sessions WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// Delete hard-deletes a session and, via cascade, its history.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.releaseLock(sessionID)

	s.logger.Info("session deleted", "session_id", sessionID)
	return nil
}
