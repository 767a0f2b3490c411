// Package docstore provides the document-store capability consumed by the
// catalog: collections of JSON documents queried with Mongo-style filter
// predicates. The backing engine is badger; see badger.go.
package docstore

import (
	"context"
	"errors"
)

var (
	// ErrNoDocuments indicates FindOne matched nothing.
	ErrNoDocuments = errors.New("docstore: no documents in result")

	// ErrDuplicateID indicates an insert with an already-used uid.
	ErrDuplicateID = errors.New("docstore: duplicate uid")

	// ErrMissingID indicates a document without the uid field.
	ErrMissingID = errors.New("docstore: document has no uid")

	// ErrClosed indicates an operation on a closed store.
	ErrClosed = errors.New("docstore: store closed")
)

// Doc is a decoded JSON document.
type Doc map[string]interface{}

// SortField orders results by one field.
type SortField struct {
	Field string
	Desc  bool
}

// FindOptions carries pagination and ordering pushdown. Skip/Limit are
// applied after filtering and sorting; Limit < 0 means unbounded.
// Projection, when non-empty, restricts returned documents to the named
// top-level or dotted paths (uid is always included).
type FindOptions struct {
	Sort       []SortField
	Skip       int
	Limit      int
	Projection []string
}

// UpdateResult reports how many documents an update touched.
type UpdateResult struct {
	MatchedCount  int
	ModifiedCount int
}

// DeleteResult reports how many documents a delete removed.
type DeleteResult struct {
	DeletedCount int
}

// Update describes a partial document update. Set assigns dotted paths.
type Update struct {
	Set map[string]interface{}
}

// Collection is the store capability the catalog is written against.
// Implementations must be safe for concurrent use; every call is a
// blocking I/O boundary.
type Collection interface {
	Count(ctx context.Context, filter Filter) (int, error)
	Find(ctx context.Context, filter Filter, opts FindOptions) ([]Doc, error)
	FindOne(ctx context.Context, filter Filter) (Doc, error)
	Distinct(ctx context.Context, field string, filter Filter) ([]interface{}, error)
	InsertOne(ctx context.Context, doc Doc) error
	UpdateOne(ctx context.Context, filter Filter, update Update) (UpdateResult, error)
	DeleteOne(ctx context.Context, filter Filter) (DeleteResult, error)
}

// setPath assigns a dotted path in a document, creating intermediate maps.
func setPath(doc Doc, path string, value interface{}) {
	cur := map[string]interface{}(doc)
	segs := splitPath(path)
	for i, seg := range segs {
		if i == len(segs)-1 {
			cur[seg] = value
			return
		}
		next, ok := cur[seg].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			cur[seg] = next
		}
		cur = next
	}
}

func splitPath(path string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}
	return append(segs, path[start:])
}

// project returns a copy of doc restricted to the given paths.
func project(doc Doc, paths []string) Doc {
	if len(paths) == 0 {
		return doc
	}
	out := Doc{}
	if id, ok := doc["uid"]; ok {
		out["uid"] = id
	}
	for _, p := range paths {
		if v, ok := lookupPath(doc, p); ok {
			setPath(out, p, v)
		}
	}
	return out
}
