// ABOUTME: Typed search constructs and their translation to store filters
// ABOUTME: Key-based queries address metadata fields; Raw passes filters verbatim

package query

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aimmlab/xascat/pkg/docstore"
)

var (
	// ErrUnknownKind indicates a query kind with no registered translator.
	ErrUnknownKind = errors.New("query: unknown query kind")

	// ErrBadQuery indicates a query body that does not decode.
	ErrBadQuery = errors.New("query: malformed query body")
)

// Query is a typed search construct that lowers to a document filter.
type Query interface {
	Kind() string
	Filter() (docstore.Filter, error)
}

// metadataKey prefixes a user-facing key into the stored document layout.
func metadataKey(key string) string {
	return "metadata." + key
}

// Eq matches records whose metadata key equals a value.
type Eq struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

func (Eq) Kind() string { return "eq" }

func (q Eq) Filter() (docstore.Filter, error) {
	if q.Key == "" {
		return nil, fmt.Errorf("%w: eq requires a key", ErrBadQuery)
	}
	return docstore.Filter{metadataKey(q.Key): q.Value}, nil
}

// Comparison matches records by an ordered comparison on a metadata key.
// Operator is one of gt, gte, lt, lte.
type Comparison struct {
	Operator string      `json:"operator"`
	Key      string      `json:"key"`
	Value    interface{} `json:"value"`
}

func (Comparison) Kind() string { return "comparison" }

var comparisonOps = map[string]string{
	"gt": "$gt", "gte": "$gte", "lt": "$lt", "lte": "$lte",
}

func (q Comparison) Filter() (docstore.Filter, error) {
	if q.Key == "" {
		return nil, fmt.Errorf("%w: comparison requires a key", ErrBadQuery)
	}
	op, ok := comparisonOps[q.Operator]
	if !ok {
		return nil, fmt.Errorf("%w: comparison operator %q", ErrBadQuery, q.Operator)
	}
	return docstore.Filter{metadataKey(q.Key): docstore.Filter{op: q.Value}}, nil
}

// In matches records whose metadata key takes one of several values.
type In struct {
	Key    string        `json:"key"`
	Values []interface{} `json:"values"`
}

func (In) Kind() string { return "in" }

func (q In) Filter() (docstore.Filter, error) {
	if q.Key == "" {
		return nil, fmt.Errorf("%w: in requires a key", ErrBadQuery)
	}
	return docstore.Filter{metadataKey(q.Key): docstore.Filter{"$in": q.Values}}, nil
}

// NotIn matches records whose metadata key takes none of several values.
type NotIn struct {
	Key    string        `json:"key"`
	Values []interface{} `json:"values"`
}

func (NotIn) Kind() string { return "notin" }

func (q NotIn) Filter() (docstore.Filter, error) {
	if q.Key == "" {
		return nil, fmt.Errorf("%w: notin requires a key", ErrBadQuery)
	}
	return docstore.Filter{metadataKey(q.Key): docstore.Filter{"$nin": q.Values}}, nil
}

// Contains matches records whose metadata key, an array, contains a value.
type Contains struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

func (Contains) Kind() string { return "contains" }

func (q Contains) Filter() (docstore.Filter, error) {
	if q.Key == "" {
		return nil, fmt.Errorf("%w: contains requires a key", ErrBadQuery)
	}
	// array membership and scalar equality share the same filter form
	return docstore.Filter{metadataKey(q.Key): q.Value}, nil
}

// Raw carries a filter document applied to the store without key
// translation. The caller addresses stored paths directly.
type Raw struct {
	Spec docstore.Filter `json:"spec"`
}

func (Raw) Kind() string { return "raw" }

func (q Raw) Filter() (docstore.Filter, error) {
	if q.Spec == nil {
		return nil, fmt.Errorf("%w: raw requires a spec", ErrBadQuery)
	}
	return q.Spec, nil
}

// Registry decodes wire-format queries by kind. Kinds are registered
// explicitly at construction so the supported surface is enumerable.
type Registry struct {
	decoders map[string]func(json.RawMessage) (Query, error)
}

// NewRegistry returns a registry with every built-in query kind wired.
func NewRegistry() *Registry {
	reg := &Registry{decoders: make(map[string]func(json.RawMessage) (Query, error))}
	register(reg, func() Eq { return Eq{} })
	register(reg, func() Comparison { return Comparison{} })
	register(reg, func() In { return In{} })
	register(reg, func() NotIn { return NotIn{} })
	register(reg, func() Contains { return Contains{} })
	register(reg, func() Raw { return Raw{} })
	return reg
}

func register[Q Query](reg *Registry, zero func() Q) {
	kind := zero().Kind()
	reg.decoders[kind] = func(body json.RawMessage) (Query, error) {
		q := zero()
		if err := json.Unmarshal(body, &q); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadQuery, kind, err)
		}
		return q, nil
	}
}

// Kinds lists the registered query kinds.
func (reg *Registry) Kinds() []string {
	kinds := make([]string, 0, len(reg.decoders))
	for kind := range reg.decoders {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Decode parses one wire-format query of the named kind.
func (reg *Registry) Decode(kind string, body json.RawMessage) (Query, error) {
	decode, ok := reg.decoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return decode(body)
}
