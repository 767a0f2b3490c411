// Package blob stores binary payloads on the filesystem, one file per
// record id. Files are grouped into subdirectories named after the first
// two characters of the id to bound directory fan-out.
package blob

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound indicates the requested blob does not exist.
var ErrNotFound = errors.New("blob: not found")

// Store is a filesystem blob store rooted at a data directory.
type Store struct {
	root string
}

// NewStore opens a blob store rooted at dir, creating it if necessary.
func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("blob: resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create %s: %w", abs, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("blob: stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("blob: %s is not a directory", abs)
	}
	return &Store{root: abs}, nil
}

// Path returns the absolute file path a blob id maps to.
func (s *Store) Path(id string) string {
	return filepath.Join(s.root, id[:2], id)
}

// URL returns the file URL recorded in a document's data_url field.
func (s *Store) URL(id string) string {
	return "file://localhost" + strings.ReplaceAll(s.Path(id), string(os.PathSeparator), "/")
}

// Put writes a blob, creating its shard directory as needed.
func (s *Store) Put(id string, data []byte) error {
	path := s.Path(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("blob: create shard for %s: %w", id, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("blob: write %s: %w", id, err)
	}
	return nil
}

// Open returns a reader over a stored blob.
func (s *Store) Open(id string) (io.ReadSeekCloser, error) {
	f, err := os.Open(s.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blob: open %s: %w", id, err)
	}
	return f, nil
}

// Read returns the full contents of a stored blob.
func (s *Store) Read(id string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blob: read %s: %w", id, err)
	}
	return data, nil
}

// ReadRange returns length bytes starting at offset.
func (s *Store) ReadRange(id string, offset, length int64) ([]byte, error) {
	f, err := s.Open(id)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("blob: seek %s: %w", id, err)
	}
	buf := make([]byte, length)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("blob: read %s: %w", id, err)
	}
	return buf[:n], nil
}

// Remove deletes a stored blob. Removing a missing blob is ErrNotFound.
func (s *Store) Remove(id string) error {
	err := os.Remove(s.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("blob: remove %s: %w", id, err)
	}
	return nil
}
