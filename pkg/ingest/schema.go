// Package ingest validates and minimizes decision events before storage.
package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/complia/complia/pkg/apperr"
)

// decisionEventSchema is the wire contract for POST /api/v1/logs.
const decisionEventSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["event_id", "event_time", "actor", "subject", "model", "input", "output"],
	"additionalProperties": false,
	"properties": {
		"event_id": {"type": "string", "minLength": 1, "maxLength": 128},
		"event_time": {"type": "string", "format": "date-time"},
		"actor": {"type": "string", "minLength": 1},
		"subject": {
			"type": "object",
			"required": ["subject_type"],
			"additionalProperties": false,
			"properties": {
				"subject_type": {"type": "string", "minLength": 1},
				"subject_id": {"type": "string"},
				"subject_id_hash": {"type": "string", "pattern": "^sha256:[0-9a-f]{64}$"}
			}
		},
		"model": {
			"type": "object",
			"required": ["model_id", "model_version"],
			"additionalProperties": false,
			"properties": {
				"model_id": {"type": "string", "minLength": 1},
				"model_version": {"type": "string", "minLength": 1},
				"prompt_version": {"type": "string"}
			}
		},
		"input": {
			"type": "object",
			"required": ["input_hash"],
			"additionalProperties": false,
			"properties": {
				"input_hash": {"type": "string", "minLength": 1},
				"features_summary": {"type": "object"}
			}
		},
		"output": {
			"type": "object",
			"required": ["decision", "output_hash"],
			"additionalProperties": false,
			"properties": {
				"decision": {"type": "string", "minLength": 1},
				"score": {"type": "number"},
				"output_hash": {"type": "string", "minLength": 1}
			}
		},
		"human": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"reviewer_id": {"type": "string"},
				"override": {"type": "boolean"}
			}
		},
		"trace": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"request_id": {"type": "string"},
				"latency_ms": {"type": "number", "minimum": 0},
				"error": {"type": "string"}
			}
		}
	}
}`

var compiledEventSchema = mustCompile("decision-event", decisionEventSchema)

func mustCompile(name, schema string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	url := fmt.Sprintf("https://complia.schemas.local/%s.schema.json", name)
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("schema load failed: %v", err))
	}
	compiled, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("schema compile failed: %v", err))
	}
	return compiled
}

// ValidateEvent checks a decoded event against the decision-event schema.
// Violations come back as a validation error carrying per-path details.
func ValidateEvent(event map[string]any) error {
	err := compiledEventSchema.Validate(event)
	if err == nil {
		return nil
	}
	details := map[string]string{}
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		for _, cause := range flatten(ve) {
			loc := cause.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			details[loc] = cause.Message
		}
	}
	return &apperr.Error{
		Kind:    apperr.KindBadRequest,
		Message: "event does not match the decision-event schema",
		Details: details,
		Err:     err,
	}
}

// flatten walks to the leaf causes, which carry the most specific messages.
func flatten(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, flatten(c)...)
	}
	return out
}
