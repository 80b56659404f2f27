package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jaimegago/scribe/internal/llm"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// compileSchema turns the function-calling parameter schema into a
// compiled JSON schema used to validate resolved arguments.
func compileSchema(ps llm.ParameterSchema) (*jsonschema.Schema, error) {
	if ps.Type == "" {
		ps.Type = "object"
	}
	raw, err := json.Marshal(ps)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource("params.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile("params.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return schema, nil
}

// normalizeJSON round-trips a value through JSON so it contains only
// the shapes the schema validator understands.
func normalizeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
