package query

import (
	"encoding/json"
	"testing"

	"github.com/aimmlab/xascat/pkg/docstore"
)

func measurementDoc() docstore.Doc {
	return docstore.Doc{
		"uid": "abc",
		"metadata": map[string]interface{}{
			"dataset":     "sandbox",
			"temperature": float64(300),
			"tags":        []interface{}{"xas", "raw"},
			"element": map[string]interface{}{
				"symbol": "Au",
			},
		},
	}
}

func TestEqTargetsMetadata(t *testing.T) {
	f, err := Eq{Key: "element.symbol", Value: "Au"}.Filter()
	if err != nil {
		t.Fatalf("Failed to build filter: %v", err)
	}
	if !f.Matches(measurementDoc()) {
		t.Errorf("Expected filter to match")
	}
	if _, ok := f["metadata.element.symbol"]; !ok {
		t.Errorf("Expected key to be prefixed into metadata, got %v", f)
	}
}

func TestComparison(t *testing.T) {
	f, err := Comparison{Operator: "gte", Key: "temperature", Value: 300}.Filter()
	if err != nil {
		t.Fatalf("Failed to build filter: %v", err)
	}
	if !f.Matches(measurementDoc()) {
		t.Errorf("Expected filter to match")
	}

	f, err = Comparison{Operator: "lt", Key: "temperature", Value: 300}.Filter()
	if err != nil {
		t.Fatalf("Failed to build filter: %v", err)
	}
	if f.Matches(measurementDoc()) {
		t.Errorf("Expected filter not to match")
	}

	if _, err := (Comparison{Operator: "near", Key: "temperature", Value: 0}).Filter(); err == nil {
		t.Errorf("Expected error for unknown operator")
	}
}

func TestInAndNotIn(t *testing.T) {
	f, err := In{Key: "dataset", Values: []interface{}{"core", "sandbox"}}.Filter()
	if err != nil {
		t.Fatalf("Failed to build filter: %v", err)
	}
	if !f.Matches(measurementDoc()) {
		t.Errorf("Expected in filter to match")
	}

	f, err = NotIn{Key: "dataset", Values: []interface{}{"core"}}.Filter()
	if err != nil {
		t.Fatalf("Failed to build filter: %v", err)
	}
	if !f.Matches(measurementDoc()) {
		t.Errorf("Expected notin filter to match")
	}
}

func TestContainsArrayMembership(t *testing.T) {
	f, err := Contains{Key: "tags", Value: "xas"}.Filter()
	if err != nil {
		t.Fatalf("Failed to build filter: %v", err)
	}
	if !f.Matches(measurementDoc()) {
		t.Errorf("Expected contains filter to match")
	}
}

func TestRawPassesVerbatim(t *testing.T) {
	f, err := Raw{Spec: docstore.Filter{"uid": "abc"}}.Filter()
	if err != nil {
		t.Fatalf("Failed to build filter: %v", err)
	}
	if _, ok := f["uid"]; !ok {
		t.Errorf("Expected raw spec without key translation, got %v", f)
	}
	if !f.Matches(measurementDoc()) {
		t.Errorf("Expected raw filter to match")
	}
}

func TestQueriesRequireKeys(t *testing.T) {
	queries := []Query{Eq{}, Comparison{Operator: "gt"}, In{}, NotIn{}, Contains{}, Raw{}}
	for _, q := range queries {
		if _, err := q.Filter(); err == nil {
			t.Errorf("Expected error for empty %s query", q.Kind())
		}
	}
}

func TestRegistryDecode(t *testing.T) {
	reg := NewRegistry()

	q, err := reg.Decode("eq", json.RawMessage(`{"key": "element.symbol", "value": "Au"}`))
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	f, err := q.Filter()
	if err != nil {
		t.Fatalf("Failed to build filter: %v", err)
	}
	if !f.Matches(measurementDoc()) {
		t.Errorf("Expected decoded query to match")
	}

	if _, err := reg.Decode("nope", json.RawMessage(`{}`)); err == nil {
		t.Errorf("Expected error for unknown kind")
	}
	if _, err := reg.Decode("eq", json.RawMessage(`{bad`)); err == nil {
		t.Errorf("Expected error for malformed body")
	}

	if len(reg.Kinds()) != 6 {
		t.Errorf("Expected 6 registered kinds, got %v", reg.Kinds())
	}
}
