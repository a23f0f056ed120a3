// Package schema embeds the Plan v1.1 JSON Schema used to constrain the
// Shaper stage's output and to validate the Shaper, rescue, and Stage-1
// fallback text before sanitizing. The sanitizer's own final step checks
// required fields in Go and does not use this schema.
package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed plan_v1_1.json
var PlanV11JSON []byte

// CompilePlanV11 compiles the embedded schema once; callers should cache the
// result rather than recompiling per validation.
func CompilePlanV11() (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(PlanV11JSON, &doc); err != nil {
		return nil, fmt.Errorf("schema: unmarshal plan v1.1: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("plan_v1_1.json", doc); err != nil {
		return nil, fmt.Errorf("schema: add resource: %w", err)
	}
	s, err := c.Compile("plan_v1_1.json")
	if err != nil {
		return nil, fmt.Errorf("schema: compile: %w", err)
	}
	return s, nil
}

// Validate checks payload (already json.Unmarshal'd into an any) against the
// compiled Plan v1.1 schema.
func Validate(s *jsonschema.Schema, payload any) error {
	return s.Validate(payload)
}
