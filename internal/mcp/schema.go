package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateToolSchema checks a tool's input schema at discovery time. Tool
// schemas are otherwise treated as opaque JSON and forwarded to the LLM
// unchanged, so this is the single gate: the value must be a compilable
// JSON Schema whose shape is {type:"object", properties:{...}}. Tools with
// schemas that fail here are dropped from the catalog.
func ValidateToolSchema(schema json.RawMessage) error {
	if len(schema) == 0 {
		return fmt.Errorf("schema is empty")
	}

	var shape struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(schema, &shape); err != nil {
		return fmt.Errorf("schema is not a JSON object: %w", err)
	}
	if shape.Type != "object" {
		return fmt.Errorf("schema type is %q, want \"object\"", shape.Type)
	}
	if shape.Properties == nil {
		return fmt.Errorf("schema has no properties object")
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tool.json", bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("schema not loadable: %w", err)
	}
	if _, err := compiler.Compile("tool.json"); err != nil {
		return fmt.Errorf("schema does not compile: %w", err)
	}
	return nil
}
