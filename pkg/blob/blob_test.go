package blob

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	return s
}

func TestPutReadRemove(t *testing.T) {
	s := setupTestStore(t)
	data := []byte("payload bytes")

	if err := s.Put("abcde", data); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}

	got, err := s.Read("abcde")
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Expected %q, got %q", data, got)
	}

	if err := s.Remove("abcde"); err != nil {
		t.Fatalf("Failed to remove: %v", err)
	}
	if _, err := s.Read("abcde"); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound after remove, got %v", err)
	}
	if err := s.Remove("abcde"); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound on double remove, got %v", err)
	}
}

func TestShardLayout(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Put("XYqrs", nil); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}

	path := s.Path("XYqrs")
	if filepath.Base(filepath.Dir(path)) != "XY" {
		t.Errorf("Expected two-character shard dir, got %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected blob file to exist: %v", err)
	}
}

func TestReadRange(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Put("rangeblob01", []byte("0123456789")); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}

	got, err := s.ReadRange("rangeblob01", 2, 4)
	if err != nil {
		t.Fatalf("Failed to read range: %v", err)
	}
	if string(got) != "2345" {
		t.Errorf("Expected 2345, got %q", got)
	}

	// reading past the end returns the available suffix
	got, err = s.ReadRange("rangeblob01", 8, 10)
	if err != nil {
		t.Fatalf("Failed to read range: %v", err)
	}
	if string(got) != "89" {
		t.Errorf("Expected 89, got %q", got)
	}
}

func TestURL(t *testing.T) {
	s := setupTestStore(t)
	url := s.URL("abcde")
	if url[:17] != "file://localhost/" {
		t.Errorf("Expected file URL, got %s", url)
	}
}
