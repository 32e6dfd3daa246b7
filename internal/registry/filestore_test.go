// ABOUTME: Tests for the file-backed capability store
// ABOUTME: Covers round-trips, backup rotation, corruption handling, and empty starts

package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agents.json")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return s, path
}

func testDescriptor(name string) *AgentDescriptor {
	return &AgentDescriptor{
		Name:    name,
		Type:    AgentTypeLocal,
		Enabled: true,
		Capability: Capability{
			Domains:  []string{"it"},
			Keywords: []string{"laptop"},
			Priority: 1,
		},
	}
}

func TestFileStore_EmptyStart(t *testing.T) {
	s, _ := newTestFileStore(t)

	agents, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(agents) != 0 {
		t.Errorf("expected empty map, got %d entries", len(agents))
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	s, _ := newTestFileStore(t)

	want := map[string]*AgentDescriptor{
		"it-agent": testDescriptor("it-agent"),
		"hr-agent": testDescriptor("hr-agent"),
	}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(got))
	}
	if got["it-agent"].Capability.Keywords[0] != "laptop" {
		t.Errorf("keyword not preserved: %+v", got["it-agent"].Capability)
	}
}

func TestFileStore_KeepsBackup(t *testing.T) {
	s, path := newTestFileStore(t)

	first := map[string]*AgentDescriptor{"it-agent": testDescriptor("it-agent")}
	if err := s.Save(first); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	second := map[string]*AgentDescriptor{
		"it-agent": testDescriptor("it-agent"),
		"hr-agent": testDescriptor("hr-agent"),
	}
	if err := s.Save(second); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}
}

func TestFileStore_CorruptPrimaryRestoresBackup(t *testing.T) {
	s, path := newTestFileStore(t)

	first := map[string]*AgentDescriptor{"it-agent": testDescriptor("it-agent")}
	if err := s.Save(first); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	if err := s.Save(first); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	// Truncate the primary to simulate a torn write.
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupting primary: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load should restore from backup, got error: %v", err)
	}
	if _, ok := got["it-agent"]; !ok {
		t.Error("backup restore lost it-agent")
	}
}

func TestFileStore_CorruptWithoutBackupIsFatal(t *testing.T) {
	s, path := newTestFileStore(t)

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing corrupt primary: %v", err)
	}

	_, err := s.Load()
	if !errors.Is(err, ErrStoreCorrupt) {
		t.Errorf("expected ErrStoreCorrupt, got %v", err)
	}
}

func TestFileStore_EmptyFileIsCorrupt(t *testing.T) {
	s, path := newTestFileStore(t)

	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("writing empty primary: %v", err)
	}

	_, err := s.Load()
	if !errors.Is(err, ErrStoreCorrupt) {
		t.Errorf("expected ErrStoreCorrupt for empty file, got %v", err)
	}
}

func TestFileStore_NoTempFilesLeftBehind(t *testing.T) {
	s, path := newTestFileStore(t)

	if err := s.Save(map[string]*AgentDescriptor{"it-agent": testDescriptor("it-agent")}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
