package store

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestSQLiteRoundTrip(t *testing.T) {
	s, err := NewSQLite(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if _, ok := s.Get(KeyThreadID); ok {
		t.Error("Expected empty store")
	}

	s.Set(KeyThreadID, "thread-1")
	v, ok := s.Get(KeyThreadID)
	if !ok || v != "thread-1" {
		t.Errorf("Expected thread-1, got %q (ok=%v)", v, ok)
	}

	// Overwrite
	s.Set(KeyThreadID, "thread-2")
	v, _ = s.Get(KeyThreadID)
	if v != "thread-2" {
		t.Errorf("Expected thread-2, got %q", v)
	}

	s.Delete(KeyThreadID)
	if _, ok := s.Get(KeyThreadID); ok {
		t.Error("Expected key deleted")
	}
}

func TestSQLiteSetMany(t *testing.T) {
	s, err := NewSQLite(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	s.SetMany(map[string]string{
		KeyPersonaChoice:    "TEST_LEAD",
		KeyPersonaConfirmed: "true",
	})

	choice, _ := s.Get(KeyPersonaChoice)
	confirmed, _ := s.Get(KeyPersonaConfirmed)
	if choice != "TEST_LEAD" || confirmed != "true" {
		t.Errorf("Coupled write incomplete: choice=%q confirmed=%q", choice, confirmed)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widget.db")

	s, err := NewSQLite(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	s.Set(KeyThreadID, "persisted")
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := NewSQLite(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s2.Close()

	v, ok := s2.Get(KeyThreadID)
	if !ok || v != "persisted" {
		t.Errorf("Expected persisted value after reopen, got %q (ok=%v)", v, ok)
	}
}

func TestMemoryKV(t *testing.T) {
	m := NewMemory()
	m.Set("a", "1")
	m.SetMany(map[string]string{"b": "2", "c": "3"})

	for key, want := range map[string]string{"a": "1", "b": "2", "c": "3"} {
		if v, ok := m.Get(key); !ok || v != want {
			t.Errorf("Get(%q) = %q, %v; want %q", key, v, ok, want)
		}
	}

	m.Delete("b")
	if _, ok := m.Get("b"); ok {
		t.Error("Expected b deleted")
	}
}
