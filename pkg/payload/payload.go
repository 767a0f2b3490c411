// ABOUTME: Lazy payload adapters over record blobs
// ABOUTME: Adapters stay inactive until a record's payload is attached

package payload

import (
	"errors"
	"fmt"

	"github.com/aimmlab/xascat/pkg/blob"
	"github.com/aimmlab/xascat/pkg/schema"
)

// ErrNotActive indicates a read against a record whose payload has not
// been attached yet.
var ErrNotActive = errors.New("payload: record has no data")

// Payload reads the bytes behind a record. Construction never touches
// storage; reads do.
type Payload interface {
	// Read returns the full payload.
	Read() ([]byte, error)
	// ReadRange returns length bytes starting at offset. Ranges past the
	// end return the available suffix.
	ReadRange(offset, length int64) ([]byte, error)
	// Mimetype is the media type the payload should be served as.
	Mimetype() string
}

// Open returns the adapter for a record's structure family.
func Open(r *schema.Record, blobs *blob.Store) (Payload, error) {
	src := sourceFor(r, blobs)
	switch r.StructureFamily {
	case schema.FamilyArray:
		s, err := schema.ParseArrayStructure(r.Structure)
		if err != nil {
			return nil, err
		}
		return &Array{structure: s, mimetype: r.Mimetype, src: src}, nil
	case schema.FamilyDataframe:
		s, err := schema.ParseTableStructure(r.Structure)
		if err != nil {
			return nil, err
		}
		return &Table{structure: s, mimetype: r.Mimetype, src: src}, nil
	default:
		return nil, fmt.Errorf("payload: unknown structure family %q", r.StructureFamily)
	}
}

// source fetches payload bytes: inline from the document, or from the
// blob store. A nil source is an unattached payload.
type source interface {
	read() ([]byte, error)
	readRange(offset, length int64) ([]byte, error)
}

func sourceFor(r *schema.Record, blobs *blob.Store) source {
	if len(r.DataBlob) > 0 {
		return inlineSource(r.DataBlob)
	}
	if r.DataURL != nil && blobs != nil {
		return blobSource{id: r.UID, blobs: blobs}
	}
	return nil
}

type inlineSource []byte

func (s inlineSource) read() ([]byte, error) {
	out := make([]byte, len(s))
	copy(out, s)
	return out, nil
}

func (s inlineSource) readRange(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("payload: negative range")
	}
	if offset >= int64(len(s)) {
		return nil, nil
	}
	end := offset + length
	if end > int64(len(s)) {
		end = int64(len(s))
	}
	out := make([]byte, end-offset)
	copy(out, s[offset:end])
	return out, nil
}

type blobSource struct {
	id    string
	blobs *blob.Store
}

func (s blobSource) read() ([]byte, error) {
	return s.blobs.Read(s.id)
}

func (s blobSource) readRange(offset, length int64) ([]byte, error) {
	return s.blobs.ReadRange(s.id, offset, length)
}

// Array serves fixed-layout numeric payloads. The declared structure
// pins the expected byte size.
type Array struct {
	structure schema.ArrayStructure
	mimetype  string
	src       source
}

// Structure returns the declared dtype and shape.
func (a *Array) Structure() schema.ArrayStructure { return a.structure }

func (a *Array) Mimetype() string { return a.mimetype }

func (a *Array) Read() ([]byte, error) {
	if a.src == nil {
		return nil, ErrNotActive
	}
	data, err := a.src.read()
	if err != nil {
		return nil, err
	}
	want, err := a.structure.ByteSize()
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != want {
		return nil, fmt.Errorf("payload: stored %d bytes, structure declares %d", len(data), want)
	}
	return data, nil
}

func (a *Array) ReadRange(offset, length int64) ([]byte, error) {
	if a.src == nil {
		return nil, ErrNotActive
	}
	return a.src.readRange(offset, length)
}

// Table serves columnar payloads. The blob encoding is opaque here; the
// declared columns are exposed for clients that only need the listing.
type Table struct {
	structure schema.TableStructure
	mimetype  string
	src       source
}

// Columns returns the declared column names.
func (t *Table) Columns() []string {
	out := make([]string, len(t.structure.Columns))
	copy(out, t.structure.Columns)
	return out
}

func (t *Table) Mimetype() string { return t.mimetype }

func (t *Table) Read() ([]byte, error) {
	if t.src == nil {
		return nil, ErrNotActive
	}
	return t.src.read()
}

func (t *Table) ReadRange(offset, length int64) ([]byte, error) {
	if t.src == nil {
		return nil, ErrNotActive
	}
	return t.src.readRange(offset, length)
}
