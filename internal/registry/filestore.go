// ABOUTME: File-backed capability store with atomic writes and one prior backup
// ABOUTME: A crash mid-write never leaves a truncated record; load falls back to the backup

package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// CapabilityStore is the durable record of agent descriptors. Save is atomic
// with respect to partial writes and fails closed: if the write cannot be
// confirmed the caller must not consider the in-memory state committed.
type CapabilityStore interface {
	Load() (map[string]*AgentDescriptor, error)
	Save(map[string]*AgentDescriptor) error
}

// FileStore persists descriptors as a single JSON document. Writes go to a
// temporary file in the same directory followed by an atomic rename; the
// previous version is kept as a .bak sibling.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a FileStore at the given path, creating parent
// directories as needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &FileStore{
		path:   path,
		logger: slog.Default().With("component", "capability-store"),
	}, nil
}

func (s *FileStore) backupPath() string { return s.path + ".bak" }

// Load reads the descriptor map. A missing file yields an empty map. A file
// that exists but fails to parse triggers a backup restore attempt; if the
// backup also fails, Load returns ErrStoreCorrupt so startup can halt rather
// than silently continue with an empty registry.
func (s *FileStore) Load() (map[string]*AgentDescriptor, error) {
	agents, err := s.loadFile(s.path)
	if err == nil {
		return agents, nil
	}
	if os.IsNotExist(err) {
		// First run: try the backup in case a crash interrupted a save
		// between the two renames.
		agents, bakErr := s.loadFile(s.backupPath())
		if bakErr == nil {
			s.logger.Warn("primary store missing, restored from backup", "path", s.path)
			return agents, nil
		}
		if os.IsNotExist(bakErr) {
			return make(map[string]*AgentDescriptor), nil
		}
		return nil, fmt.Errorf("%w: primary missing and backup unreadable: %v", ErrStoreCorrupt, bakErr)
	}

	// Primary exists but is unreadable or unparseable.
	agents, bakErr := s.loadFile(s.backupPath())
	if bakErr == nil {
		s.logger.Warn("primary store corrupt, restored from backup",
			"path", s.path, "error", err)
		return agents, nil
	}
	return nil, fmt.Errorf("%w: %v (backup: %v)", ErrStoreCorrupt, err, bakErr)
}

func (s *FileStore) loadFile(path string) (map[string]*AgentDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("file %s is empty", path)
	}

	var agents map[string]*AgentDescriptor
	if err := json.Unmarshal(data, &agents); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for name, d := range agents {
		if d == nil || d.Name != name {
			return nil, fmt.Errorf("parsing %s: entry %q inconsistent", path, name)
		}
	}
	return agents, nil
}

// Save writes the full descriptor map. Sequence: write temp file, fsync,
// rotate the current file to .bak, rename temp into place. Any failure
// returns an error and leaves the previous on-disk state recoverable.
func (s *FileStore) Save(agents map[string]*AgentDescriptor) error {
	data, err := json.MarshalIndent(agents, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding descriptors: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".agents-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	// Rotate the previous version to .bak before the final rename. A crash
	// between the renames leaves no primary but an intact backup, which Load
	// recovers from.
	if _, err := os.Stat(s.path); err == nil {
		if err := os.Rename(s.path, s.backupPath()); err != nil {
			return fmt.Errorf("rotating backup: %w", err)
		}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("committing store: %w", err)
	}
	return nil
}
