// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"encoding/json"

	"github.com/xeipuuv/gojsonschema"

	"github.com/metis-ai/metis/pkg/errors"
)

// ValidateInputPayload validates payload against the skill's declared input
// schema, when the skill is a SchemaProvider. Violations come back as
// SchemaValidationFailure errors carrying the individual violations.
func ValidateInputPayload(s Skill, payload map[string]any) error {
	provider, ok := s.(SchemaProvider)
	if !ok {
		return nil
	}
	return validatePayload(provider.InputSchema(), payload, "input")
}

// ValidateOutputPayload validates payload against the skill's declared
// output schema, when the skill is a SchemaProvider.
func ValidateOutputPayload(s Skill, payload map[string]any) error {
	provider, ok := s.(SchemaProvider)
	if !ok {
		return nil
	}
	return validatePayload(provider.OutputSchema(), payload, "output")
}

func validatePayload(schema json.RawMessage, payload map[string]any, direction string) error {
	if len(schema) == 0 {
		return nil
	}
	if payload == nil {
		payload = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewGoLoader(payload),
	)
	if err != nil {
		return errors.New(errors.CodeSchemaValidation, direction+" schema could not be evaluated", err)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return errors.New(errors.CodeSchemaValidation, direction+" payload rejected by schema", nil).
		WithContext("violations", violations)
}
