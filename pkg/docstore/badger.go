// ABOUTME: Badger-backed document collections
// ABOUTME: Documents are JSON values under a per-collection key prefix

package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// Store wraps a badger database holding one or more document collections.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

// Open opens (or creates) a store at the given directory.
func Open(path string, log zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("docstore: open %s: %w", path, err)
	}
	return &Store{db: db, log: log}, nil
}

// OpenInMemory opens an ephemeral store. Used by tests.
func OpenInMemory(log zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("docstore: open in-memory: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Close syncs and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Collection returns a handle to a named collection. Handles are cheap and
// share the store's database.
func (s *Store) Collection(name string) Collection {
	return &collection{
		db:     s.db,
		prefix: []byte("doc:" + name + ":"),
		log:    s.log.With().Str("component", "docstore").Str("collection", name).Logger(),
	}
}

type collection struct {
	db     *badger.DB
	prefix []byte
	log    zerolog.Logger
}

func (c *collection) key(id string) []byte {
	return append(append([]byte{}, c.prefix...), id...)
}

// scan walks every document in the collection, invoking fn on those that
// match the filter. Queries are evaluated by full prefix scan: the catalog
// holds metadata documents at modest cardinality and the uid fast path in
// the node layer covers point lookups.
func (c *collection) scan(ctx context.Context, txn *badger.Txn, filter Filter, fn func(Doc) bool) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = c.prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Seek(c.prefix); it.ValidForPrefix(c.prefix); it.Next() {
		if n%64 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		n++
		var doc Doc
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
		if err != nil {
			return fmt.Errorf("docstore: decode document: %w", err)
		}
		if !filter.Matches(doc) {
			continue
		}
		if !fn(doc) {
			return nil
		}
	}
	return nil
}

func (c *collection) findAll(ctx context.Context, filter Filter) ([]Doc, error) {
	var docs []Doc
	err := c.db.View(func(txn *badger.Txn) error {
		return c.scan(ctx, txn, filter, func(d Doc) bool {
			docs = append(docs, d)
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (c *collection) Count(ctx context.Context, filter Filter) (int, error) {
	count := 0
	err := c.db.View(func(txn *badger.Txn) error {
		return c.scan(ctx, txn, filter, func(Doc) bool {
			count++
			return true
		})
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (c *collection) Find(ctx context.Context, filter Filter, opts FindOptions) ([]Doc, error) {
	docs, err := c.findAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	sortDocs(docs, opts.Sort)

	skip := opts.Skip
	if skip < 0 {
		skip = 0
	}
	if skip >= len(docs) {
		return nil, nil
	}
	docs = docs[skip:]
	if opts.Limit >= 0 && opts.Limit < len(docs) {
		docs = docs[:opts.Limit]
	}

	if len(opts.Projection) > 0 {
		out := make([]Doc, len(docs))
		for i, d := range docs {
			out[i] = project(d, opts.Projection)
		}
		return out, nil
	}
	return docs, nil
}

func (c *collection) FindOne(ctx context.Context, filter Filter) (Doc, error) {
	// uid-only equality resolves by direct key get
	if id, ok := filter["uid"].(string); ok && len(filter) == 1 {
		var doc Doc
		err := c.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get(c.key(id))
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			})
		})
		if err == badger.ErrKeyNotFound {
			return nil, ErrNoDocuments
		}
		if err != nil {
			return nil, fmt.Errorf("docstore: get %s: %w", id, err)
		}
		return doc, nil
	}

	docs, err := c.Find(ctx, filter, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	return docs[0], nil
}

func (c *collection) Distinct(ctx context.Context, field string, filter Filter) ([]interface{}, error) {
	seen := make(map[string]struct{})
	var values []interface{}
	add := func(v interface{}) {
		k := canonicalKey(v)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		values = append(values, v)
	}

	err := c.db.View(func(txn *badger.Txn) error {
		return c.scan(ctx, txn, filter, func(d Doc) bool {
			v, ok := lookupPath(d, field)
			if !ok {
				return true
			}
			// array fields contribute their elements, per Mongo distinct
			if list, isList := v.([]interface{}); isList {
				for _, e := range list {
					add(e)
				}
			} else {
				add(v)
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	sortDistinct(values)
	return values, nil
}

func (c *collection) InsertOne(ctx context.Context, doc Doc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, ok := doc["uid"].(string)
	if !ok || id == "" {
		return ErrMissingID
	}
	val, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: encode document: %w", err)
	}
	key := c.key(id)
	err = c.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return ErrDuplicateID
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(key, val)
	})
	if err != nil {
		return err
	}
	c.log.Debug().Str("uid", id).Msg("document inserted")
	return nil
}

func (c *collection) UpdateOne(ctx context.Context, filter Filter, update Update) (UpdateResult, error) {
	var res UpdateResult
	err := c.db.Update(func(txn *badger.Txn) error {
		target, err := c.firstMatch(ctx, txn, filter)
		if err != nil || target == nil {
			return err
		}
		res.MatchedCount = 1

		modified := false
		for path, v := range update.Set {
			if cur, ok := lookupPath(target, path); !ok || !valueEq(cur, v) {
				modified = true
			}
			setPath(target, path, v)
		}
		if !modified {
			return nil
		}
		val, err := json.Marshal(target)
		if err != nil {
			return fmt.Errorf("docstore: encode document: %w", err)
		}
		if err := txn.Set(c.key(target["uid"].(string)), val); err != nil {
			return err
		}
		res.ModifiedCount = 1
		return nil
	})
	if err != nil {
		return UpdateResult{}, err
	}
	return res, nil
}

func (c *collection) DeleteOne(ctx context.Context, filter Filter) (DeleteResult, error) {
	var res DeleteResult
	err := c.db.Update(func(txn *badger.Txn) error {
		target, err := c.firstMatch(ctx, txn, filter)
		if err != nil || target == nil {
			return err
		}
		if err := txn.Delete(c.key(target["uid"].(string))); err != nil {
			return err
		}
		res.DeletedCount = 1
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return res, nil
}

// firstMatch returns the first matching document in default order, or nil.
func (c *collection) firstMatch(ctx context.Context, txn *badger.Txn, filter Filter) (Doc, error) {
	var matches []Doc
	err := c.scan(ctx, txn, filter, func(d Doc) bool {
		matches = append(matches, d)
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sortDocs(matches, nil)
	return matches[0], nil
}

// sortDocs orders documents by the given sort fields, defaulting to
// (last_modified, uid) so enumeration is stable across calls.
func sortDocs(docs []Doc, fields []SortField) {
	if len(fields) == 0 {
		fields = []SortField{{Field: "last_modified"}, {Field: "uid"}}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			vi, oki := lookupPath(docs[i], f.Field)
			vj, okj := lookupPath(docs[j], f.Field)
			if !oki && !okj {
				continue
			}
			if oki != okj {
				// missing values sort first
				if f.Desc {
					return oki
				}
				return !oki
			}
			cmp, ok := compareValues(vi, vj)
			if !ok {
				ci, cj := canonicalKey(vi), canonicalKey(vj)
				if ci == cj {
					continue
				}
				cmp = -1
				if ci > cj {
					cmp = 1
				}
			}
			if cmp == 0 {
				continue
			}
			if f.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}
