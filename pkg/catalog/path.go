// ABOUTME: Path compiler turning virtual hierarchy paths into store operations
// ABOUTME: Segments alternate key and value; the shape decides the operation

package catalog

import (
	"fmt"

	"github.com/aimmlab/xascat/pkg/docstore"
)

// KeyMap orders the browsable keys of the virtual hierarchy and maps each
// to the stored document field it selects on.
type KeyMap struct {
	order  []string
	fields map[string]string
}

// NewKeyMap returns an empty key map.
func NewKeyMap() *KeyMap {
	return &KeyMap{fields: make(map[string]string)}
}

// Add registers a browsable key and the document field it addresses.
// Re-adding a key overwrites its field but keeps its position.
func (km *KeyMap) Add(key, field string) *KeyMap {
	if _, exists := km.fields[key]; !exists {
		km.order = append(km.order, key)
	}
	km.fields[key] = field
	return km
}

// Field returns the stored field a key addresses.
func (km *KeyMap) Field(key string) (string, bool) {
	field, ok := km.fields[key]
	return field, ok
}

// Keys lists the browsable keys in registration order.
func (km *KeyMap) Keys() []string {
	out := make([]string, len(km.order))
	copy(out, km.order)
	return out
}

// DefaultKeyMap is the browsable hierarchy for measurement records.
func DefaultKeyMap() *KeyMap {
	return NewKeyMap().
		Add("uid", "uid").
		Add("element", "metadata.element.symbol").
		Add("edge", "metadata.element.edge").
		Add("sample", "metadata.sample.uid").
		Add("dataset", "metadata.dataset")
}

// Operation is a compiled path: what to run against the store.
type Operation interface {
	isOperation()
}

// Lookup addresses exactly one record. Zero matches is not-found; more
// than one is an integrity fault.
type Lookup struct {
	Select docstore.Filter
}

// Distinct enumerates the values of one field among records matching the
// bound keys.
type Distinct struct {
	Select docstore.Filter
	Field  string
}

// Keys enumerates the browsable keys not yet bound by the path.
type Keys struct {
	Select    docstore.Filter
	Remaining []string
}

func (Lookup) isOperation()   {}
func (Distinct) isOperation() {}
func (Keys) isOperation()     {}

// Compile turns a path into an operation. Segments alternate key and
// value; a trailing unpaired key asks for that key's distinct values, a
// fully paired path with uid bound is a lookup, and any other fully
// paired path (including the empty one) lists the remaining keys.
func Compile(segments []string, km *KeyMap) (Operation, error) {
	sel := docstore.Filter{}
	bound := make(map[string]bool)
	uidBound := false

	pairs := len(segments) / 2
	for i := 0; i < pairs; i++ {
		key, value := segments[2*i], segments[2*i+1]
		field, ok := km.Field(key)
		if !ok {
			return nil, fmt.Errorf("%w: unknown key %q", ErrBadRequest, key)
		}
		if bound[key] {
			return nil, fmt.Errorf("%w: key %q bound twice", ErrBadRequest, key)
		}
		bound[key] = true
		sel[field] = value
		if key == "uid" {
			uidBound = true
		}
	}

	if len(segments)%2 == 1 {
		key := segments[len(segments)-1]
		field, ok := km.Field(key)
		if !ok {
			return nil, fmt.Errorf("%w: unknown key %q", ErrBadRequest, key)
		}
		if bound[key] {
			return nil, fmt.Errorf("%w: key %q bound twice", ErrBadRequest, key)
		}
		return Distinct{Select: sel, Field: field}, nil
	}

	if uidBound {
		return Lookup{Select: sel}, nil
	}

	var remaining []string
	for _, key := range km.Keys() {
		if !bound[key] {
			remaining = append(remaining, key)
		}
	}
	return Keys{Select: sel, Remaining: remaining}, nil
}
