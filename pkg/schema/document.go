// ABOUTME: Document data model for catalog records and samples
// ABOUTME: Defines Record, Sample and payload structure descriptors

package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aimmlab/xascat/pkg/docstore"
)

// Structure families a record payload may belong to.
const (
	FamilyArray     = "array"
	FamilyDataframe = "dataframe"
)

// Record is a persisted measurement entity. Exactly one of DataBlob and
// DataURL may be set; a record with neither is pending (its payload has
// not been attached yet) and is excluded from enumeration.
type Record struct {
	UID             string                 `json:"uid"`
	StructureFamily string                 `json:"structure_family"`
	Structure       json.RawMessage        `json:"structure"`
	Metadata        map[string]interface{} `json:"metadata"`
	Specs           []string               `json:"specs"`
	Mimetype        string                 `json:"mimetype"`
	DataBlob        []byte                 `json:"data_blob,omitempty"`
	DataURL         *string                `json:"data_url,omitempty"`
	LastModified    time.Time              `json:"last_modified"`
}

// HasData reports whether a payload has been attached.
func (r *Record) HasData() bool {
	return r.DataURL != nil || len(r.DataBlob) > 0
}

// Sample describes a physical sample that measurements reference. Sample
// fields are denormalized into each referencing record at write time.
type Sample struct {
	UID        string                 `json:"uid"`
	Name       string                 `json:"name"`
	Dataset    string                 `json:"dataset"`
	Provenance Provenance             `json:"provenance"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Provenance records where a sample or measurement came from.
type Provenance struct {
	Source      string `json:"source"`
	URL         string `json:"url,omitempty"`
	License     string `json:"license,omitempty"`
	Description string `json:"description,omitempty"`
}

// ArrayStructure describes an array payload: numpy-style dtype string
// ("<f8") and shape.
type ArrayStructure struct {
	DType string  `json:"dtype"`
	Shape []int64 `json:"shape"`
}

// ItemSize returns the per-element byte size encoded in the dtype string.
func (s ArrayStructure) ItemSize() (int64, error) {
	i := len(s.DType)
	for i > 0 && s.DType[i-1] >= '0' && s.DType[i-1] <= '9' {
		i--
	}
	if i == len(s.DType) {
		return 0, fmt.Errorf("schema: dtype %q has no item size", s.DType)
	}
	var size int64
	for _, c := range s.DType[i:] {
		size = size*10 + int64(c-'0')
	}
	if size == 0 {
		return 0, fmt.Errorf("schema: dtype %q has zero item size", s.DType)
	}
	return size, nil
}

// ByteSize returns the expected payload size in bytes.
func (s ArrayStructure) ByteSize() (int64, error) {
	item, err := s.ItemSize()
	if err != nil {
		return 0, err
	}
	total := item
	for _, d := range s.Shape {
		if d < 0 {
			return 0, fmt.Errorf("schema: negative dimension %d", d)
		}
		total *= d
	}
	return total, nil
}

// TableStructure describes a columnar table payload. The blob encoding is
// an external codec concern; only the column listing is interpreted here.
type TableStructure struct {
	Columns     []string `json:"columns"`
	NPartitions int      `json:"npartitions,omitempty"`
}

// ParseArrayStructure decodes and sanity-checks an array structure.
func ParseArrayStructure(raw json.RawMessage) (ArrayStructure, error) {
	var s ArrayStructure
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("schema: invalid array structure: %w", err)
	}
	if _, err := s.ItemSize(); err != nil {
		return s, err
	}
	if len(s.Shape) == 0 {
		return s, fmt.Errorf("schema: array structure has no shape")
	}
	return s, nil
}

// ParseTableStructure decodes and sanity-checks a table structure.
func ParseTableStructure(raw json.RawMessage) (TableStructure, error) {
	var s TableStructure
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("schema: invalid table structure: %w", err)
	}
	if len(s.Columns) == 0 {
		return s, fmt.Errorf("schema: table structure has no columns")
	}
	return s, nil
}

// DefaultMimetype maps a structure family to its payload media type.
func DefaultMimetype(family string) string {
	switch family {
	case FamilyArray:
		return "application/octet-stream"
	case FamilyDataframe:
		return "application/vnd.apache.arrow.file"
	default:
		return ""
	}
}

var mimeMajorTypes = map[string]struct{}{
	"application": {}, "audio": {}, "font": {}, "example": {}, "image": {},
	"message": {}, "model": {}, "multipart": {}, "text": {}, "video": {},
}

// ValidMimetype reports whether v has a recognized major media type.
func ValidMimetype(v string) bool {
	major, _, ok := strings.Cut(v, "/")
	if !ok {
		return false
	}
	_, known := mimeMajorTypes[major]
	return known
}

// ToDoc converts a record to its stored document form.
func (r *Record) ToDoc() (docstore.Doc, error) {
	return toDoc(r)
}

// RecordFromDoc decodes a stored document back into a record.
func RecordFromDoc(doc docstore.Doc) (*Record, error) {
	var r Record
	if err := fromDoc(doc, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ToDoc converts a sample to its stored document form.
func (s *Sample) ToDoc() (docstore.Doc, error) {
	return toDoc(s)
}

// SampleFromDoc decodes a stored document back into a sample.
func SampleFromDoc(doc docstore.Doc) (*Sample, error) {
	var s Sample
	if err := fromDoc(doc, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func toDoc(v interface{}) (docstore.Doc, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("schema: encode: %w", err)
	}
	var doc docstore.Doc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("schema: encode: %w", err)
	}
	return doc, nil
}

func fromDoc(doc docstore.Doc, out interface{}) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("schema: decode: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("schema: decode: %w", err)
	}
	return nil
}
