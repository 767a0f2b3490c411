// ABOUTME: Access control policies over catalog records
// ABOUTME: Grants READ/WRITE per principal, flat or partitioned by dataset

package access

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aimmlab/xascat/pkg/docstore"
)

// Permission is a single access right.
type Permission string

const (
	Read  Permission = "read"
	Write Permission = "write"
)

// PermissionSet is the rights a principal holds on some scope.
type PermissionSet map[Permission]bool

// Has reports whether the set grants p.
func (s PermissionSet) Has(p Permission) bool { return s[p] }

// ParsePermissions decodes a grant string: "r" for read-only, "rw" for
// read and write.
func ParsePermissions(grant string) (PermissionSet, error) {
	switch grant {
	case "r":
		return PermissionSet{Read: true}, nil
	case "rw":
		return PermissionSet{Read: true, Write: true}, nil
	default:
		return nil, fmt.Errorf("access: unknown grant %q", grant)
	}
}

// Principal identifies a caller. The zero value is the anonymous
// principal, which no policy grants anything.
type Principal struct {
	ID    string
	Admin bool
}

// Anonymous reports whether the principal is the unauthenticated caller.
func (p Principal) Anonymous() bool { return p.ID == "" && !p.Admin }

// Policy decides what a principal may do and which records it may see.
type Policy interface {
	// Permissions returns the rights p holds on records in dataset.
	Permissions(p Principal, dataset string) PermissionSet

	// Scope returns filters restricting p's view of the store, and
	// whether p may read anything at all. When readable is false the
	// caller must present an empty catalog rather than an error.
	Scope(p Principal) (filters []docstore.Filter, readable bool)
}

// FlatPolicy grants each principal the same rights over every record.
type FlatPolicy struct {
	grants map[string]PermissionSet
}

// NewFlatPolicy builds a flat policy from principal id to grant string.
func NewFlatPolicy(grants map[string]string) (*FlatPolicy, error) {
	parsed := make(map[string]PermissionSet, len(grants))
	for id, grant := range grants {
		set, err := ParsePermissions(grant)
		if err != nil {
			return nil, fmt.Errorf("access: principal %s: %w", id, err)
		}
		parsed[id] = set
	}
	return &FlatPolicy{grants: parsed}, nil
}

func (fp *FlatPolicy) Permissions(p Principal, dataset string) PermissionSet {
	if p.Admin {
		return PermissionSet{Read: true, Write: true}
	}
	if p.Anonymous() {
		return PermissionSet{}
	}
	set, ok := fp.grants[p.ID]
	if !ok {
		return PermissionSet{}
	}
	return set
}

func (fp *FlatPolicy) Scope(p Principal) ([]docstore.Filter, bool) {
	if p.Admin {
		return nil, true
	}
	if p.Anonymous() {
		return nil, false
	}
	set, ok := fp.grants[p.ID]
	if !ok || !set.Has(Read) {
		return nil, false
	}
	return nil, true
}

// DefaultDataset is the grant-table key holding a principal's fallback
// grant, applied to every dataset the table does not name.
const DefaultDataset = "default"

// DatasetPolicy partitions grants by the dataset a record belongs to.
// Each principal has its own dataset-to-grant table; the reserved
// "default" entry covers datasets the table does not name, including
// ones no configuration mentions at all. Principals whose default
// grants READ see the store unfiltered; otherwise the named readable
// datasets become a $in filter on metadata.dataset.
type DatasetPolicy struct {
	grants map[string]map[string]PermissionSet
}

// NewDatasetPolicy builds a partitioned policy from principal id to
// dataset-to-grant table ("r" or "rw", with "default" as the fallback
// dataset key).
func NewDatasetPolicy(grants map[string]map[string]string) (*DatasetPolicy, error) {
	dp := &DatasetPolicy{
		grants: make(map[string]map[string]PermissionSet, len(grants)),
	}
	for id, table := range grants {
		parsed := make(map[string]PermissionSet, len(table))
		for name, grant := range table {
			set, err := ParsePermissions(grant)
			if err != nil {
				return nil, fmt.Errorf("access: principal %s, dataset %s: %w", id, name, err)
			}
			parsed[name] = set
		}
		dp.grants[id] = parsed
	}
	return dp, nil
}

func (dp *DatasetPolicy) Permissions(p Principal, dataset string) PermissionSet {
	if p.Admin {
		return PermissionSet{Read: true, Write: true}
	}
	if p.Anonymous() {
		return PermissionSet{}
	}
	table, ok := dp.grants[p.ID]
	if !ok {
		return PermissionSet{}
	}
	if set, ok := table[dataset]; ok {
		return set
	}
	if set, ok := table[DefaultDataset]; ok {
		return set
	}
	return PermissionSet{}
}

func (dp *DatasetPolicy) Scope(p Principal) ([]docstore.Filter, bool) {
	if p.Admin {
		return nil, true
	}
	if p.Anonymous() {
		return nil, false
	}
	table, ok := dp.grants[p.ID]
	if !ok {
		return nil, false
	}

	// a readable default covers every dataset, named or not
	if table[DefaultDataset].Has(Read) {
		return nil, true
	}

	var readable []interface{}
	for name, set := range table {
		if name != DefaultDataset && set.Has(Read) {
			readable = append(readable, name)
		}
	}
	if len(readable) == 0 {
		return nil, false
	}
	sort.Slice(readable, func(i, j int) bool {
		return readable[i].(string) < readable[j].(string)
	})
	scope := docstore.Filter{"metadata.dataset": docstore.Filter{"$in": readable}}
	return []docstore.Filter{scope}, true
}

// Describe lists the datasets a principal may read, for diagnostics.
func (dp *DatasetPolicy) Describe(p Principal) string {
	filters, ok := dp.Scope(p)
	if !ok {
		return "no access"
	}
	if len(filters) == 0 {
		return "all datasets"
	}
	in := filters[0]["metadata.dataset"].(docstore.Filter)["$in"].([]interface{})
	names := make([]string, len(in))
	for i, v := range in {
		names[i] = v.(string)
	}
	return strings.Join(names, ", ")
}
