package webhook

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidator optionally checks a raw inbound payload against one JSON
// Schema per platform variant before normalization runs. It is nil-safe:
// a Validator with no schema registered for a platform always passes,
// so operators can opt a tenant into stricter validation incrementally.
type SchemaValidator struct {
	schemas map[Platform]*jsonschema.Schema
}

// NewSchemaValidator compiles the schema documents keyed by platform. The
// schema argument is the raw JSON Schema text (draft 2020-12).
func NewSchemaValidator(schemaDocs map[Platform]string) (*SchemaValidator, error) {
	v := &SchemaValidator{schemas: make(map[Platform]*jsonschema.Schema, len(schemaDocs))}

	compiler := jsonschema.NewCompiler()
	for platform, doc := range schemaDocs {
		url := fmt.Sprintf("mem://bridge/%s.json", platform)
		if err := compiler.AddResource(url, bytes.NewReader([]byte(doc))); err != nil {
			return nil, fmt.Errorf("add schema resource for %s: %w", platform, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", platform, err)
		}
		v.schemas[platform] = schema
	}

	return v, nil
}

// Validate runs the platform's registered schema against the decoded
// payload. A platform with no registered schema always passes.
func (v *SchemaValidator) Validate(platform Platform, decoded any) error {
	if v == nil {
		return nil
	}
	schema, ok := v.schemas[platform]
	if !ok {
		return nil
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrUnrecognizedPayload, err)
	}
	return nil
}
