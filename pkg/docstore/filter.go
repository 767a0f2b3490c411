// ABOUTME: Mongo-style filter documents evaluated against JSON documents
// ABOUTME: Supports $and/$or, comparison operators and dotted field paths

package docstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Filter is a predicate over documents, shaped like a MongoDB query
// document. Field keys may use dotted paths ("metadata.element.symbol").
// A value may be a literal (equality, with array-membership semantics for
// array fields) or an operator document such as {"$in": [...]}.
//
// The empty Filter matches every document. Filters are treated as
// immutable once constructed.
type Filter map[string]interface{}

// Supported operator keys.
const (
	opAnd    = "$and"
	opOr     = "$or"
	opEq     = "$eq"
	opNe     = "$ne"
	opIn     = "$in"
	opNin    = "$nin"
	opGt     = "$gt"
	opGte    = "$gte"
	opLt     = "$lt"
	opLte    = "$lte"
	opExists = "$exists"
)

// All returns the concrete match-everything predicate. Downstream store
// calls always receive a filter value, never nil.
func All() Filter {
	return Filter{}
}

// None returns a predicate matching no document.
func None() Filter {
	return Filter{"$and": []Filter{{"uid": Filter{opExists: true}}, {"uid": Filter{opExists: false}}}}
}

// And combines filters conjunctively. Empty or all-empty input yields the
// match-everything filter. Input order is preserved for deterministic
// query text even though AND is commutative.
func And(filters ...Filter) Filter {
	parts := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if len(f) == 0 {
			continue
		}
		parts = append(parts, f)
	}
	switch len(parts) {
	case 0:
		return All()
	case 1:
		return parts[0]
	default:
		return Filter{opAnd: parts}
	}
}

// ParseFilter decodes a JSON filter document. Used by the raw query
// escape hatch; the result is applied verbatim.
func ParseFilter(raw []byte) (Filter, error) {
	var f Filter
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("docstore: invalid filter: %w", err)
	}
	return f, nil
}

// String renders the filter as canonical JSON for logging.
func (f Filter) String() string {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Sprintf("%v", map[string]interface{}(f))
	}
	return string(b)
}

// Matches evaluates the filter against a document.
func (f Filter) Matches(doc map[string]interface{}) bool {
	for key, cond := range f {
		switch key {
		case opAnd:
			for _, sub := range asFilterList(cond) {
				if !sub.Matches(doc) {
					return false
				}
			}
		case opOr:
			subs := asFilterList(cond)
			matched := len(subs) == 0
			for _, sub := range subs {
				if sub.Matches(doc) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		default:
			val, ok := lookupPath(doc, key)
			if !matchField(val, ok, cond) {
				return false
			}
		}
	}
	return true
}

func asFilterList(v interface{}) []Filter {
	switch list := v.(type) {
	case []Filter:
		return list
	case []interface{}:
		out := make([]Filter, 0, len(list))
		for _, e := range list {
			if m, ok := e.(map[string]interface{}); ok {
				out = append(out, Filter(m))
			} else if f, ok := e.(Filter); ok {
				out = append(out, f)
			}
		}
		return out
	default:
		return nil
	}
}

func matchField(val interface{}, present bool, cond interface{}) bool {
	if ops, ok := operatorDoc(cond); ok {
		for op, arg := range ops {
			if !applyOperator(val, present, op, arg) {
				return false
			}
		}
		return true
	}
	return valueEq(val, cond)
}

// operatorDoc reports whether cond is an operator document ({"$in": ...}).
// A map with non-$ keys is a literal sub-document compared by equality.
func operatorDoc(cond interface{}) (map[string]interface{}, bool) {
	var m map[string]interface{}
	switch c := cond.(type) {
	case Filter:
		m = c
	case map[string]interface{}:
		m = c
	default:
		return nil, false
	}
	if len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func applyOperator(val interface{}, present bool, op string, arg interface{}) bool {
	switch op {
	case opEq:
		return valueEq(val, arg)
	case opNe:
		if arg == nil {
			// $ne null excludes documents missing the field, matching
			// MongoDB semantics.
			return present && val != nil
		}
		return !valueEq(val, arg)
	case opIn:
		for _, candidate := range asList(arg) {
			if valueEq(val, candidate) {
				return true
			}
		}
		return false
	case opNin:
		for _, candidate := range asList(arg) {
			if valueEq(val, candidate) {
				return false
			}
		}
		return true
	case opGt, opGte, opLt, opLte:
		cmp, ok := compareValues(val, arg)
		if !ok {
			return false
		}
		switch op {
		case opGt:
			return cmp > 0
		case opGte:
			return cmp >= 0
		case opLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case opExists:
		want, _ := arg.(bool)
		return present == want
	default:
		// unknown operators match nothing rather than silently passing
		return false
	}
}

func asList(v interface{}) []interface{} {
	switch list := v.(type) {
	case []interface{}:
		return list
	case []string:
		out := make([]interface{}, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

// valueEq compares a document value against a filter literal. Array
// document values match if any element equals the literal.
func valueEq(val, want interface{}) bool {
	if list, ok := val.([]interface{}); ok {
		if wl, ok := want.([]interface{}); ok {
			return listEq(list, wl)
		}
		for _, e := range list {
			if scalarEq(e, want) {
				return true
			}
		}
		return false
	}
	return scalarEq(val, want)
}

func listEq(a, b []interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !scalarEq(a[i], b[i]) {
			return false
		}
	}
	return true
}

func scalarEq(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ma, ok := toMap(a); ok {
		mb, ok := toMap(b)
		if !ok || len(ma) != len(mb) {
			return false
		}
		for k, va := range ma {
			vb, present := mb[k]
			if !present || !valueEq(va, vb) {
				return false
			}
		}
		return true
	}
	return a == b
}

func toMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Filter:
		return m, true
	default:
		return nil, false
	}
}

// compareValues orders two scalars. Only numbers and strings are ordered.
func compareValues(a, b interface{}) (int, bool) {
	if fa, aok := toFloat(a); aok {
		fb, bok := toFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	sa, aok := a.(string)
	sb, bok := b.(string)
	if aok && bok {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// lookupPath resolves a dotted field path within a document.
func lookupPath(doc map[string]interface{}, path string) (interface{}, bool) {
	cur := interface{}(doc)
	for _, seg := range strings.Split(path, ".") {
		m, ok := toMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// canonicalKey renders a value for deduplication in distinct queries.
func canonicalKey(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// sortDistinct orders distinct values deterministically: numbers first in
// numeric order, then strings, then everything else by canonical form.
func sortDistinct(values []interface{}) {
	rank := func(v interface{}) int {
		if _, ok := toFloat(v); ok {
			return 0
		}
		if _, ok := v.(string); ok {
			return 1
		}
		return 2
	}
	sort.SliceStable(values, func(i, j int) bool {
		ri, rj := rank(values[i]), rank(values[j])
		if ri != rj {
			return ri < rj
		}
		if cmp, ok := compareValues(values[i], values[j]); ok {
			return cmp < 0
		}
		return canonicalKey(values[i]) < canonicalKey(values[j])
	})
}
