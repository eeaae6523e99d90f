package coerce

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const candidateSchemaURL = "candidate.json"

// CandidateSchema is the shape every decoded candidate must satisfy before it
// becomes a list item.
func CandidateSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"item_name"},
		"properties": map[string]any{
			"item_name": map[string]any{
				"type":    "string",
				"pattern": `\S`,
			},
		},
	}
}

func compileCandidateSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(CandidateSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal candidate schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(candidateSchemaURL, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add candidate schema: %w", err)
	}
	schema, err := compiler.Compile(candidateSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile candidate schema: %w", err)
	}
	return schema, nil
}
