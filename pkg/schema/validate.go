// ABOUTME: Validator registry and per-spec document validation rules
// ABOUTME: Records declare specs; at most one registered validator may claim them

package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAmbiguousSpecs indicates a record's specs matched more than one
	// registered validator.
	ErrAmbiguousSpecs = errors.New("schema: specs match more than one validator")

	// ErrDuplicateTag indicates two validators were registered for the
	// same spec tag.
	ErrDuplicateTag = errors.New("schema: validator tag already registered")
)

// ValidationError carries every rule violation found in a document, not
// just the first.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "schema: invalid document: " + strings.Join(e.Violations, "; ")
}

// Validator checks a record against the rules of one spec tag.
type Validator interface {
	// Tag is the spec string that selects this validator.
	Tag() string
	// Validate returns a *ValidationError listing all violations, or nil.
	Validate(r *Record) error
}

// Registry maps spec tags to validators. Resolution requires that a
// record's specs select at most one validator; records claiming no
// registered spec fall back to generic structural checks.
type Registry struct {
	validators map[string]Validator
	fallback   Validator
}

// NewRegistry returns a registry whose unmatched records are checked by
// the generic validator only.
func NewRegistry() *Registry {
	return &Registry{
		validators: make(map[string]Validator),
		fallback:   GenericValidator{},
	}
}

// Register adds a validator under its spec tag.
func (reg *Registry) Register(v Validator) error {
	tag := v.Tag()
	if _, exists := reg.validators[tag]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTag, tag)
	}
	reg.validators[tag] = v
	return nil
}

// Resolve selects the validator for a record's specs. Specs that name no
// registered validator yield the generic fallback; specs naming more than
// one distinct validator are rejected outright. A spec repeated in the
// list still names one validator.
func (reg *Registry) Resolve(specs []string) (Validator, error) {
	var found Validator
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if seen[spec] {
			continue
		}
		seen[spec] = true
		v, ok := reg.validators[spec]
		if !ok {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %s", ErrAmbiguousSpecs, strings.Join(specs, ", "))
		}
		found = v
	}
	if found == nil {
		return reg.fallback, nil
	}
	return found, nil
}

// GenericValidator applies only structural checks common to every record.
type GenericValidator struct{}

func (GenericValidator) Tag() string { return "" }

func (GenericValidator) Validate(r *Record) error {
	violations := baseViolations(r)
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func baseViolations(r *Record) []string {
	var violations []string

	switch r.StructureFamily {
	case FamilyArray:
		if _, err := ParseArrayStructure(r.Structure); err != nil {
			violations = append(violations, err.Error())
		}
	case FamilyDataframe:
		if _, err := ParseTableStructure(r.Structure); err != nil {
			violations = append(violations, err.Error())
		}
	default:
		violations = append(violations, fmt.Sprintf("unknown structure family %q", r.StructureFamily))
	}

	if r.Mimetype != "" && !ValidMimetype(r.Mimetype) {
		violations = append(violations, fmt.Sprintf("invalid mimetype %q", r.Mimetype))
	}

	if r.DataURL != nil && len(r.DataBlob) > 0 {
		violations = append(violations, "data_blob and data_url are mutually exclusive")
	}

	return violations
}

// XASValidator checks X-ray absorption spectroscopy measurements: a known
// element and edge, a dataset string, and a tabular payload.
type XASValidator struct{}

func (XASValidator) Tag() string { return "XAS" }

func (v XASValidator) Validate(r *Record) error {
	violations := baseViolations(r)

	if r.StructureFamily != FamilyDataframe {
		violations = append(violations, fmt.Sprintf("measurements must be dataframes, got %q", r.StructureFamily))
	}

	if !containsString(r.Specs, v.Tag()) {
		violations = append(violations, fmt.Sprintf("specs must include %q", v.Tag()))
	}

	if dataset, ok := r.Metadata["dataset"].(string); !ok || dataset == "" {
		violations = append(violations, "metadata.dataset must be a non-empty string")
	}

	element, ok := r.Metadata["element"].(map[string]interface{})
	if !ok {
		violations = append(violations, "metadata.element must be an object")
	} else {
		if symbol, ok := element["symbol"].(string); !ok || !ValidSymbol(symbol) {
			violations = append(violations, fmt.Sprintf("unknown element symbol %v", element["symbol"]))
		}
		if edge, ok := element["edge"].(string); !ok || !ValidEdge(edge) {
			violations = append(violations, fmt.Sprintf("unknown absorption edge %v", element["edge"]))
		}
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func containsString(items []string, v string) bool {
	for _, s := range items {
		if s == v {
			return true
		}
	}
	return false
}
