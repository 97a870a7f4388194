// Package scenarioschema generates a JSON Schema document for scenario
// files and validates a loaded scenario against it, following the
// generate-then-compile-then-validate pipeline the teacher uses for its
// own runbook/tool documents.
package scenarioschema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/apirunner/scenario/pkg/model"
	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaResourceName = "scenario-v1.json"

// Generate produces a JSON Schema Draft 2020-12 document from the
// model.Scenario Go types.
func Generate() ([]byte, error) {
	r := new(jsonschema.Reflector)
	s := r.Reflect(&model.Scenario{})
	s.ID = "https://github.com/apirunner/scenario/schemas/scenario-v1.json"
	s.Title = "Scenario"
	s.Description = "Schema for declarative HTTP scenario documents"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal scenario schema: %w", err)
	}
	return data, nil
}

// ValidationError is one semantic validation failure, with a JSON-pointer
// style location into the document.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks scn's JSON-marshaled form against the generated schema.
// This catches authoring mistakes the strict-decode step in pkg/scenarioio
// wouldn't (wrong value types that still parse as valid YAML scalars, for
// instance), without ever causing the engine itself to panic on them.
func Validate(scn *model.Scenario) ([]*ValidationError, error) {
	schemaJSON, err := Generate()
	if err != nil {
		return nil, err
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal generated schema: %w", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource(schemaResourceName, schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile(schemaResourceName)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	data, err := json.Marshal(scn)
	if err != nil {
		return nil, fmt.Errorf("marshal scenario: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal scenario document: %w", err)
	}

	if err := sch.Validate(doc); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return []*ValidationError{{Message: err.Error()}}, nil
		}
		var errs []*ValidationError
		for _, cause := range flatten(ve) {
			errs = append(errs, &ValidationError{
				Path:    strings.Join(cause.InstanceLocation, "/"),
				Message: fmt.Sprintf("%v", cause.ErrorKind),
			})
		}
		return errs, nil
	}
	return nil, nil
}

func flatten(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var out []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		out = append(out, flatten(cause)...)
	}
	return out
}
