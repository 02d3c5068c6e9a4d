// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package node

import (
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// tunableExtension is the OpenAPI extension field a param_schema
// property carries to mark itself as changeable via UpdateParams while
// the node is running.
const tunableExtension = "x-tunable"

// ParamSchema wraps an OpenAPI 3 schema (the teacher's own HTTP API
// already validates against kin-openapi/openapi3, so node param
// validation reuses the same engine rather than a bespoke one) and
// additionally tracks which top-level fields are tunable.
type ParamSchema struct {
	Schema *openapi3.Schema
}

// NewParamSchema parses a JSON Schema-shaped document into a ParamSchema.
func NewParamSchema(raw []byte) (*ParamSchema, error) {
	var schema openapi3.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("parse param schema: %w", err)
	}
	return &ParamSchema{Schema: &schema}, nil
}

// Validate checks params against the schema, returning a *ValidationError
// carrying a field path on failure.
func (s *ParamSchema) Validate(params json.RawMessage) error {
	if s == nil || s.Schema == nil {
		return nil
	}
	var value any
	if len(params) > 0 {
		if err := json.Unmarshal(params, &value); err != nil {
			return &ValidationError{FieldPath: "", Reason: err.Error()}
		}
	}
	if err := s.Schema.VisitJSON(value); err != nil {
		return &ValidationError{FieldPath: fieldPathOf(err), Reason: err.Error()}
	}
	return nil
}

// Tunable reports whether the named top-level field is marked x-tunable.
func (s *ParamSchema) Tunable(field string) bool {
	if s == nil || s.Schema == nil || s.Schema.Properties == nil {
		return false
	}
	prop, ok := s.Schema.Properties[field]
	if !ok || prop.Value == nil {
		return false
	}
	ext, ok := prop.Value.Extensions[tunableExtension]
	if !ok {
		return false
	}
	b, ok := ext.(bool)
	return ok && b
}

// ValidateTunablePartial checks that every field present in partial is
// declared tunable, then validates each field's value against the
// corresponding property schema.
func (s *ParamSchema) ValidateTunablePartial(partial json.RawMessage) error {
	if s == nil || s.Schema == nil {
		return &NotTunableError{FieldPath: ""}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(partial, &fields); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	for name, raw := range fields {
		if !s.Tunable(name) {
			return &NotTunableError{FieldPath: name}
		}
		prop, ok := s.Schema.Properties[name]
		if !ok || prop.Value == nil {
			continue
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return &ValidationError{FieldPath: name, Reason: err.Error()}
		}
		if err := prop.Value.VisitJSON(value); err != nil {
			return &ValidationError{FieldPath: name, Reason: err.Error()}
		}
	}
	return nil
}

func fieldPathOf(err error) string {
	if se, ok := err.(*openapi3.SchemaError); ok {
		return se.JSONPointer().String()
	}
	return ""
}
