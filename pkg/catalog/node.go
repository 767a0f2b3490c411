// ABOUTME: Catalog nodes combine a store view, an access scope, and a path
// ABOUTME: Every navigation step yields a new immutable node variation

package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aimmlab/xascat/pkg/access"
	"github.com/aimmlab/xascat/pkg/blob"
	"github.com/aimmlab/xascat/pkg/docstore"
	"github.com/aimmlab/xascat/pkg/query"
	"github.com/aimmlab/xascat/pkg/schema"
	"github.com/aimmlab/xascat/pkg/uid"
)

// Config wires a catalog root to its stores and policies.
type Config struct {
	Records docstore.Collection
	Samples docstore.Collection
	Blobs   *blob.Store
	Policy  access.Policy
	Schemas *schema.Registry

	// Datasets maps dataset names to the specs records in them may
	// carry. A dataset without an entry accepts any spec.
	Datasets map[string][]string

	Keys *KeyMap
	Log  zerolog.Logger
}

// Node is one position in the virtual hierarchy: a path, the queries
// accumulated by searches, and the principal whose scope applies. Nodes
// are immutable; navigation returns variations sharing the same stores.
type Node struct {
	cfg       Config
	principal access.Principal
	path      []string
	queries   []docstore.Filter
}

// NewRoot returns the catalog root for an anonymous caller.
func NewRoot(cfg Config) *Node {
	if cfg.Keys == nil {
		cfg.Keys = DefaultKeyMap()
	}
	return &Node{cfg: cfg}
}

func (n *Node) variation() *Node {
	v := &Node{cfg: n.cfg, principal: n.principal}
	v.path = append(v.path, n.path...)
	v.queries = append(v.queries, n.queries...)
	return v
}

// AuthenticatedAs returns a variation scoped to a principal. Principals
// the policy deems unreadable see an empty catalog, not an error.
func (n *Node) AuthenticatedAs(p access.Principal) *Node {
	v := n.variation()
	v.principal = p
	filters, readable := n.cfg.Policy.Scope(p)
	if !readable {
		v.queries = append(v.queries, docstore.None())
		return v
	}
	v.queries = append(v.queries, filters...)
	return v
}

// AtPath returns a variation positioned at the given path segments. The
// path is validated when an operation compiles it, not here.
func (n *Node) AtPath(segments ...string) *Node {
	v := n.variation()
	v.path = append(v.path, segments...)
	return v
}

// Search returns a variation narrowed by a typed query.
func (n *Node) Search(q query.Query) (*Node, error) {
	f, err := q.Filter()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	v := n.variation()
	v.queries = append(v.queries, f)
	return v, nil
}

// Path returns the node's position in the hierarchy.
func (n *Node) Path() []string {
	out := make([]string, len(n.path))
	copy(out, n.path)
	return out
}

// Principal returns the principal this node is scoped to.
func (n *Node) Principal() access.Principal { return n.principal }

// Metadata returns the metadata every record under this node shares: the
// values its bound path segments pin down, shaped like record metadata.
// Binding a sample resolves the registered sample and merges its fields.
func (n *Node) Metadata(ctx context.Context) (map[string]interface{}, error) {
	merged := make(map[string]interface{})
	for i := 0; i+1 < len(n.path); i += 2 {
		key, value := n.path[i], n.path[i+1]
		switch key {
		case "uid":
		case "sample":
			s, err := n.Sample(ctx, value)
			if err != nil {
				return nil, err
			}
			doc, err := s.ToDoc()
			if err != nil {
				return nil, err
			}
			merged["sample"] = map[string]interface{}(doc)
		default:
			field, ok := n.cfg.Keys.Field(key)
			if !ok {
				return nil, fmt.Errorf("%w: unknown key %q", ErrBadRequest, key)
			}
			setMetadataField(merged, strings.TrimPrefix(field, "metadata."), value)
		}
	}
	return merged, nil
}

func setMetadataField(m map[string]interface{}, path string, value interface{}) {
	parts := strings.Split(path, ".")
	for len(parts) > 1 {
		inner, ok := m[parts[0]].(map[string]interface{})
		if !ok {
			inner = make(map[string]interface{})
			m[parts[0]] = inner
		}
		m = inner
		parts = parts[1:]
	}
	m[parts[0]] = value
}

func (n *Node) compile() (Operation, error) {
	return Compile(n.path, n.cfg.Keys)
}

// Operation compiles the node's path, exposing whether it addresses a
// record or a container.
func (n *Node) Operation() (Operation, error) {
	return n.compile()
}

// hasData admits only records whose payload has been attached. Pending
// records stay invisible to enumeration but remain addressable by uid.
func hasData() docstore.Filter {
	return docstore.Filter{"$or": []interface{}{
		map[string]interface{}{"data_url": map[string]interface{}{"$ne": nil}},
		map[string]interface{}{"data_blob": map[string]interface{}{"$exists": true}},
	}}
}

func (n *Node) scoped(sel docstore.Filter, includePending bool) docstore.Filter {
	filters := append([]docstore.Filter{}, n.queries...)
	filters = append(filters, sel)
	if !includePending {
		filters = append(filters, hasData())
	}
	return docstore.And(filters...)
}

// Len returns the number of entries under this node.
func (n *Node) Len(ctx context.Context) (int, error) {
	op, err := n.compile()
	if err != nil {
		return 0, err
	}
	switch op := op.(type) {
	case Keys:
		return len(op.Remaining), nil
	case Distinct:
		// distinct uids are one per record, so counting documents
		// avoids materializing the value set
		if op.Field == "uid" {
			return n.cfg.Records.Count(ctx, n.scoped(op.Select, false))
		}
		values, err := n.cfg.Records.Distinct(ctx, op.Field, n.scoped(op.Select, false))
		if err != nil {
			return 0, err
		}
		return len(values), nil
	case Lookup:
		return 0, fmt.Errorf("%w: path addresses a record, not a container", ErrBadRequest)
	default:
		return 0, fmt.Errorf("catalog: unhandled operation %T", op)
	}
}

// Keys lists the entries under this node, in stable order. A negative
// limit means unbounded.
func (n *Node) Keys(ctx context.Context, skip, limit int) ([]string, error) {
	op, err := n.compile()
	if err != nil {
		return nil, err
	}
	switch op := op.(type) {
	case Keys:
		return window(op.Remaining, skip, limit), nil
	case Distinct:
		// uids are one per record, so the window pushes down to the
		// store instead of materializing the full value set
		if op.Field == "uid" {
			if skip < 0 {
				skip = 0
			}
			docs, err := n.cfg.Records.Find(ctx, n.scoped(op.Select, false), docstore.FindOptions{
				Skip:       skip,
				Limit:      limit,
				Projection: []string{"uid"},
			})
			if err != nil {
				return nil, err
			}
			keys := make([]string, len(docs))
			for i, doc := range docs {
				keys[i], _ = doc["uid"].(string)
			}
			return keys, nil
		}
		values, err := n.cfg.Records.Distinct(ctx, op.Field, n.scoped(op.Select, false))
		if err != nil {
			return nil, err
		}
		keys := make([]string, len(values))
		for i, v := range values {
			keys[i] = fmt.Sprintf("%v", v)
		}
		return window(keys, skip, limit), nil
	case Lookup:
		return nil, fmt.Errorf("%w: path addresses a record, not a container", ErrBadRequest)
	default:
		return nil, fmt.Errorf("catalog: unhandled operation %T", op)
	}
}

func window(keys []string, skip, limit int) []string {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(keys) {
		return nil
	}
	keys = keys[skip:]
	if limit >= 0 && limit < len(keys) {
		keys = keys[:limit]
	}
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

// Record resolves a lookup path to its single record. Pending records
// resolve too, so payloads can be attached to them.
func (n *Node) Record(ctx context.Context) (*schema.Record, error) {
	op, err := n.compile()
	if err != nil {
		return nil, err
	}
	lookup, ok := op.(Lookup)
	if !ok {
		return nil, fmt.Errorf("%w: path addresses a container, not a record", ErrBadRequest)
	}

	filter := n.scoped(lookup.Select, true)
	docs, err := n.cfg.Records.Find(ctx, filter, docstore.FindOptions{Limit: 2})
	if err != nil {
		return nil, err
	}
	switch len(docs) {
	case 0:
		return nil, fmt.Errorf("%w: %v", ErrNotFound, n.path)
	case 1:
		return schema.RecordFromDoc(docs[0])
	default:
		n.cfg.Log.Error().Strs("path", n.path).Msg("lookup matched multiple records")
		return nil, fmt.Errorf("%w: %v", ErrAmbiguous, n.path)
	}
}

// Records lists the full documents under a distinct-uid node, for bulk
// export. A negative limit means unbounded.
func (n *Node) Records(ctx context.Context, skip, limit int) ([]*schema.Record, error) {
	op, err := n.compile()
	if err != nil {
		return nil, err
	}
	var sel docstore.Filter
	switch op := op.(type) {
	case Distinct:
		if op.Field != "uid" {
			return nil, fmt.Errorf("%w: path does not enumerate records", ErrBadRequest)
		}
		sel = op.Select
	case Keys:
		sel = op.Select
	default:
		return nil, fmt.Errorf("%w: path does not enumerate records", ErrBadRequest)
	}

	docs, err := n.cfg.Records.Find(ctx, n.scoped(sel, false), docstore.FindOptions{Skip: skip, Limit: limit})
	if err != nil {
		return nil, err
	}
	records := make([]*schema.Record, len(docs))
	for i, doc := range docs {
		r, err := schema.RecordFromDoc(doc)
		if err != nil {
			return nil, err
		}
		records[i] = r
	}
	return records, nil
}

// PostMetadata creates a pending record and returns its fresh uid. Only
// the root and the uid container accept writes.
func (n *Node) PostMetadata(ctx context.Context, r *schema.Record) (string, error) {
	if !n.atWriteEntry() {
		return "", fmt.Errorf("%w: records are created at the catalog root", ErrBadRequest)
	}

	dataset, ok := r.Metadata["dataset"].(string)
	if !ok || dataset == "" {
		return "", fmt.Errorf("%w: metadata.dataset is required", ErrBadRequest)
	}
	if !n.cfg.Policy.Permissions(n.principal, dataset).Has(access.Write) {
		return "", fmt.Errorf("%w: write to dataset %s", ErrPermissionDenied, dataset)
	}

	if err := n.denormalizeSample(ctx, r); err != nil {
		return "", err
	}

	validator, err := n.cfg.Schemas.Resolve(r.Specs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err := validator.Validate(r); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	if allowed, restricted := n.cfg.Datasets[dataset]; restricted {
		for _, spec := range r.Specs {
			if !containsString(allowed, spec) {
				return "", fmt.Errorf("%w: dataset %s does not accept spec %q", ErrBadRequest, dataset, spec)
			}
		}
	}

	r.UID = uid.New()
	if r.Mimetype == "" {
		r.Mimetype = schema.DefaultMimetype(r.StructureFamily)
	}
	r.LastModified = time.Now().UTC()

	doc, err := r.ToDoc()
	if err != nil {
		return "", err
	}
	if err := n.cfg.Records.InsertOne(ctx, doc); err != nil {
		return "", err
	}
	n.cfg.Log.Info().Str("uid", r.UID).Str("dataset", dataset).Msg("record created")
	return r.UID, nil
}

func (n *Node) atWriteEntry() bool {
	return len(n.path) == 0 || (len(n.path) == 1 && n.path[0] == "uid")
}

// denormalizeSample replaces a sample_id reference with the sample's
// fields, frozen into the record at write time.
func (n *Node) denormalizeSample(ctx context.Context, r *schema.Record) error {
	sid, ok := r.Metadata["sample_id"].(string)
	if !ok {
		return nil
	}
	doc, err := n.cfg.Samples.FindOne(ctx, docstore.Filter{"uid": sid})
	if err == docstore.ErrNoDocuments {
		return fmt.Errorf("%w: unknown sample %s", ErrBadRequest, sid)
	}
	if err != nil {
		return err
	}
	sample, err := schema.SampleFromDoc(doc)
	if err != nil {
		return err
	}
	sampleDoc, err := sample.ToDoc()
	if err != nil {
		return err
	}
	delete(r.Metadata, "sample_id")
	r.Metadata["sample"] = map[string]interface{}(sampleDoc)
	return nil
}

// PutData attaches a payload blob to a pending record.
func (n *Node) PutData(ctx context.Context, id string, data []byte) error {
	r, err := n.lookupUID(ctx, id)
	if err != nil {
		return err
	}
	dataset, _ := r.Metadata["dataset"].(string)
	if !n.cfg.Policy.Permissions(n.principal, dataset).Has(access.Write) {
		return fmt.Errorf("%w: write to dataset %s", ErrPermissionDenied, dataset)
	}

	if r.StructureFamily == schema.FamilyArray {
		s, err := schema.ParseArrayStructure(r.Structure)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		want, err := s.ByteSize()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		if int64(len(data)) != want {
			return fmt.Errorf("%w: payload is %d bytes, structure declares %d", ErrBadRequest, len(data), want)
		}
	}

	if err := n.cfg.Blobs.Put(id, data); err != nil {
		return err
	}
	res, err := n.cfg.Records.UpdateOne(ctx, docstore.Filter{"uid": id}, docstore.Update{Set: map[string]interface{}{
		"data_url":      n.cfg.Blobs.URL(id),
		"last_modified": time.Now().UTC().Format(time.RFC3339Nano),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount != 1 {
		// the record vanished between lookup and update
		if rerr := n.cfg.Blobs.Remove(id); rerr != nil && rerr != blob.ErrNotFound {
			n.cfg.Log.Error().Err(rerr).Str("uid", id).Msg("failed to remove orphaned blob")
		}
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	n.cfg.Log.Info().Str("uid", id).Int("bytes", len(data)).Msg("payload attached")
	return nil
}

// DeleteRecord removes a record and its payload blob.
func (n *Node) DeleteRecord(ctx context.Context, id string) error {
	r, err := n.lookupUID(ctx, id)
	if err != nil {
		return err
	}
	dataset, _ := r.Metadata["dataset"].(string)
	if !n.cfg.Policy.Permissions(n.principal, dataset).Has(access.Write) {
		return fmt.Errorf("%w: write to dataset %s", ErrPermissionDenied, dataset)
	}

	if r.DataURL != nil {
		if err := n.cfg.Blobs.Remove(id); err != nil && err != blob.ErrNotFound {
			return fmt.Errorf("catalog: remove blob for %s: %w", id, err)
		}
	}
	res, err := n.cfg.Records.DeleteOne(ctx, docstore.Filter{"uid": id})
	if err != nil {
		return err
	}
	if res.DeletedCount != 1 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	n.cfg.Log.Info().Str("uid", id).Msg("record deleted")
	return nil
}

func (n *Node) lookupUID(ctx context.Context, id string) (*schema.Record, error) {
	if !uid.Valid(id) {
		return nil, fmt.Errorf("%w: malformed uid %q", ErrBadRequest, id)
	}
	v := n.variation()
	v.path = []string{"uid", id}
	return v.Record(ctx)
}

// PostSample registers a sample and returns its fresh uid.
func (n *Node) PostSample(ctx context.Context, s *schema.Sample) (string, error) {
	if s.Name == "" {
		return "", fmt.Errorf("%w: sample name is required", ErrBadRequest)
	}
	if s.Dataset == "" {
		return "", fmt.Errorf("%w: sample dataset is required", ErrBadRequest)
	}
	if !n.cfg.Policy.Permissions(n.principal, s.Dataset).Has(access.Write) {
		return "", fmt.Errorf("%w: write to dataset %s", ErrPermissionDenied, s.Dataset)
	}

	s.UID = uid.New()
	doc, err := s.ToDoc()
	if err != nil {
		return "", err
	}
	if err := n.cfg.Samples.InsertOne(ctx, doc); err != nil {
		return "", err
	}
	n.cfg.Log.Info().Str("uid", s.UID).Str("dataset", s.Dataset).Msg("sample created")
	return s.UID, nil
}

// Sample fetches a registered sample by uid.
func (n *Node) Sample(ctx context.Context, id string) (*schema.Sample, error) {
	doc, err := n.cfg.Samples.FindOne(ctx, docstore.Filter{"uid": id})
	if err == docstore.ErrNoDocuments {
		return nil, fmt.Errorf("%w: sample %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return schema.SampleFromDoc(doc)
}

// DeleteSample removes a registered sample. Records that denormalized it
// keep their frozen copy.
func (n *Node) DeleteSample(ctx context.Context, id string) error {
	s, err := n.Sample(ctx, id)
	if err != nil {
		return err
	}
	if !n.cfg.Policy.Permissions(n.principal, s.Dataset).Has(access.Write) {
		return fmt.Errorf("%w: write to dataset %s", ErrPermissionDenied, s.Dataset)
	}
	res, err := n.cfg.Samples.DeleteOne(ctx, docstore.Filter{"uid": id})
	if err != nil {
		return err
	}
	if res.DeletedCount != 1 {
		return fmt.Errorf("%w: sample %s", ErrNotFound, id)
	}
	return nil
}

// Samples lists registered samples. A negative limit means unbounded.
func (n *Node) Samples(ctx context.Context, skip, limit int) ([]*schema.Sample, error) {
	docs, err := n.cfg.Samples.Find(ctx, docstore.All(), docstore.FindOptions{Skip: skip, Limit: limit})
	if err != nil {
		return nil, err
	}
	samples := make([]*schema.Sample, len(docs))
	for i, doc := range docs {
		s, err := schema.SampleFromDoc(doc)
		if err != nil {
			return nil, err
		}
		samples[i] = s
	}
	return samples, nil
}

func containsString(items []string, v string) bool {
	for _, s := range items {
		if s == v {
			return true
		}
	}
	return false
}
