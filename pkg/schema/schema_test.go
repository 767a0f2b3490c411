package schema

import (
	"encoding/json"
	"testing"
	"time"
)

func validXASRecord() *Record {
	return &Record{
		UID:             "testuid0001",
		StructureFamily: FamilyDataframe,
		Structure:       json.RawMessage(`{"columns": ["energy", "mu"]}`),
		Metadata: map[string]interface{}{
			"dataset": "sandbox",
			"element": map[string]interface{}{
				"symbol": "Au",
				"edge":   "K",
			},
		},
		Specs:        []string{"XAS"},
		Mimetype:     "application/vnd.apache.arrow.file",
		LastModified: time.Now().UTC(),
	}
}

func TestArrayStructureSizes(t *testing.T) {
	s, err := ParseArrayStructure(json.RawMessage(`{"dtype": "<f8", "shape": [100, 3]}`))
	if err != nil {
		t.Fatalf("Failed to parse structure: %v", err)
	}

	item, err := s.ItemSize()
	if err != nil {
		t.Fatalf("Failed to get item size: %v", err)
	}
	if item != 8 {
		t.Errorf("Expected item size 8, got %d", item)
	}

	total, err := s.ByteSize()
	if err != nil {
		t.Fatalf("Failed to get byte size: %v", err)
	}
	if total != 2400 {
		t.Errorf("Expected 2400 bytes, got %d", total)
	}
}

func TestParseArrayStructureRejectsBadDtype(t *testing.T) {
	cases := []string{
		`{"dtype": "<f", "shape": [10]}`,
		`{"dtype": "", "shape": [10]}`,
		`{"dtype": "<f8", "shape": []}`,
	}
	for _, raw := range cases {
		if _, err := ParseArrayStructure(json.RawMessage(raw)); err == nil {
			t.Errorf("Expected error for %s", raw)
		}
	}
}

func TestParseTableStructure(t *testing.T) {
	s, err := ParseTableStructure(json.RawMessage(`{"columns": ["energy", "mu"]}`))
	if err != nil {
		t.Fatalf("Failed to parse structure: %v", err)
	}
	if len(s.Columns) != 2 {
		t.Errorf("Expected 2 columns, got %d", len(s.Columns))
	}

	if _, err := ParseTableStructure(json.RawMessage(`{"columns": []}`)); err == nil {
		t.Errorf("Expected error for empty column list")
	}
}

func TestDefaultMimetype(t *testing.T) {
	if got := DefaultMimetype(FamilyArray); got != "application/octet-stream" {
		t.Errorf("Expected octet-stream for arrays, got %s", got)
	}
	if got := DefaultMimetype(FamilyDataframe); got != "application/vnd.apache.arrow.file" {
		t.Errorf("Expected arrow file for dataframes, got %s", got)
	}
}

func TestElementTables(t *testing.T) {
	for _, symbol := range []string{"H", "Fe", "Au", "Og"} {
		if !ValidSymbol(symbol) {
			t.Errorf("Expected %s to be a valid symbol", symbol)
		}
	}
	if ValidSymbol("Xx") || ValidSymbol("au") {
		t.Errorf("Expected unknown symbols to be rejected")
	}

	for _, edge := range []string{"K", "L3", "M5"} {
		if !ValidEdge(edge) {
			t.Errorf("Expected %s to be a valid edge", edge)
		}
	}
	if ValidEdge("Q1") || ValidEdge("k") {
		t.Errorf("Expected unknown edges to be rejected")
	}
}

func TestXASValidatorAccepts(t *testing.T) {
	if err := (XASValidator{}).Validate(validXASRecord()); err != nil {
		t.Errorf("Expected valid record to pass, got %v", err)
	}
}

func TestXASValidatorCollectsAllViolations(t *testing.T) {
	r := validXASRecord()
	r.StructureFamily = FamilyArray
	r.Structure = json.RawMessage(`{"dtype": "<f8", "shape": [10]}`)
	r.Metadata["element"] = map[string]interface{}{
		"symbol": "Xx",
		"edge":   "Q9",
	}
	delete(r.Metadata, "dataset")

	err := XASValidator{}.Validate(r)
	if err == nil {
		t.Fatalf("Expected validation error")
	}
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("Expected *ValidationError, got %T", err)
	}
	// dataframe requirement, missing dataset, bad symbol, bad edge
	if len(verr.Violations) != 4 {
		t.Errorf("Expected 4 violations, got %d: %v", len(verr.Violations), verr.Violations)
	}
}

func TestGenericValidatorStructuralChecks(t *testing.T) {
	r := validXASRecord()
	if err := (GenericValidator{}).Validate(r); err != nil {
		t.Errorf("Expected valid record to pass, got %v", err)
	}

	url := "file://localhost/data/te/testuid0001"
	r.DataURL = &url
	r.DataBlob = []byte{1, 2, 3}
	if err := (GenericValidator{}).Validate(r); err == nil {
		t.Errorf("Expected blob/url exclusivity violation")
	}

	r = validXASRecord()
	r.Mimetype = "not-a-mimetype"
	if err := (GenericValidator{}).Validate(r); err == nil {
		t.Errorf("Expected mimetype violation")
	}
}

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(XASValidator{}); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	v, err := reg.Resolve([]string{"XAS", "HasBatteryChargeData"})
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if v.Tag() != "XAS" {
		t.Errorf("Expected XAS validator, got %q", v.Tag())
	}

	// no registered spec falls back to generic checks
	v, err = reg.Resolve([]string{"HasBatteryChargeData"})
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if _, ok := v.(GenericValidator); !ok {
		t.Errorf("Expected generic fallback, got %T", v)
	}
}

func TestRegistryResolvesRepeatedSpec(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(XASValidator{}); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	// the same spec twice still names one validator
	v, err := reg.Resolve([]string{"XAS", "XAS"})
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if v.Tag() != "XAS" {
		t.Errorf("Expected XAS validator, got %q", v.Tag())
	}
}

func TestRegistryRejectsAmbiguousSpecs(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(XASValidator{}); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}
	if err := reg.Register(stubValidator{tag: "RIXS"}); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	if _, err := reg.Resolve([]string{"XAS", "RIXS"}); err == nil {
		t.Errorf("Expected ambiguity error")
	}

	if err := reg.Register(stubValidator{tag: "XAS"}); err == nil {
		t.Errorf("Expected duplicate tag error")
	}
}

type stubValidator struct{ tag string }

func (s stubValidator) Tag() string            { return s.tag }
func (s stubValidator) Validate(*Record) error { return nil }

func TestRecordDocRoundTrip(t *testing.T) {
	r := validXASRecord()
	doc, err := r.ToDoc()
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	if doc["uid"] != r.UID {
		t.Errorf("Expected uid %s, got %v", r.UID, doc["uid"])
	}

	back, err := RecordFromDoc(doc)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if back.UID != r.UID || back.StructureFamily != r.StructureFamily {
		t.Errorf("Round trip changed record: %+v", back)
	}
	if back.Metadata["dataset"] != "sandbox" {
		t.Errorf("Expected metadata to survive round trip, got %v", back.Metadata)
	}
}
