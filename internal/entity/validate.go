package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// metadataPolicySchemaJSON is the structural shape a metadata_policy
// document must have: an object keyed by entity type, each value an object
// keyed by claim name, each value an object whose keys are drawn from the
// six spec.md §4.4 operators. Operator values are deliberately left
// unconstrained here (their shape depends on both the operator and the
// claim) — this schema only pins down the "well-formed nesting" check
// spec.md §7 calls a structural error, distinct from a semantic merge or
// apply failure internal/policy reports on its own.
const metadataPolicySchemaJSON = `{
	"type": "object",
	"additionalProperties": {
		"type": "object",
		"additionalProperties": {
			"type": "object",
			"propertyNames": {
				"enum": ["default", "one_of", "subset_of", "superset_of", "add", "essential"]
			}
		}
	}
}`

var (
	metadataPolicySchemaOnce sync.Once
	metadataPolicySchema     *jsonschema.Schema
	metadataPolicySchemaErr  error
)

func compiledMetadataPolicySchema() (*jsonschema.Schema, error) {
	metadataPolicySchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("metadata_policy.json", bytes.NewReader([]byte(metadataPolicySchemaJSON))); err != nil {
			metadataPolicySchemaErr = fmt.Errorf("entity: compile metadata_policy schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("metadata_policy.json")
		if err != nil {
			metadataPolicySchemaErr = fmt.Errorf("entity: compile metadata_policy schema: %w", err)
			return
		}
		metadataPolicySchema = schema
	})
	return metadataPolicySchema, metadataPolicySchemaErr
}

// ErrMalformedMetadataPolicy wraps a schema validation failure so callers
// can tell a structural error (spec.md §7) apart from a verification or
// transport failure.
type ErrMalformedMetadataPolicy struct {
	Cause error
}

func (e *ErrMalformedMetadataPolicy) Error() string {
	return fmt.Sprintf("entity: malformed metadata_policy: %v", e.Cause)
}

func (e *ErrMalformedMetadataPolicy) Unwrap() error { return e.Cause }

// ValidateMetadataPolicy structurally validates a subordinate statement's
// metadata_policy document before it ever reaches internal/policy's merge
// engine: wrong nesting depth, a non-object claim policy, or an operator
// name outside the fixed set spec.md §4.4 defines are all rejected here
// rather than surfacing as a confusing merge-time type assertion failure.
func ValidateMetadataPolicy(metadataPolicy map[EntityTypeIdentifier]json.RawMessage) error {
	if len(metadataPolicy) == 0 {
		return nil
	}
	schema, err := compiledMetadataPolicySchema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(metadataPolicy)
	if err != nil {
		return fmt.Errorf("entity: marshal metadata_policy for validation: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("entity: decode metadata_policy for validation: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return &ErrMalformedMetadataPolicy{Cause: err}
	}
	return nil
}
