package server

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

const guidanceRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["session_id", "transcript"],
  "properties": {
    "session_id": {"type": "string", "minLength": 1},
    "transcript": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["actor", "text", "timestamp"],
        "properties": {
          "actor": {"type": "string", "enum": ["agent", "customer"]},
          "text": {"type": "string"},
          "timestamp": {"type": "string", "format": "date-time"}
        }
      }
    }
  }
}`

const sessionRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "participant_name": {"type": ["string", "null"], "maxLength": 200}
  }
}`

// FieldError is one schema violation reported in a 422 response.
type FieldError struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

type schemas struct {
	guidance *gojsonschema.Schema
	session  *gojsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	g, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(guidanceRequestSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile guidance schema: %w", err)
	}
	sess, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(sessionRequestSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile session schema: %w", err)
	}
	return &schemas{guidance: g, session: sess}, nil
}

// validate returns the schema violations in body, or nil when it is valid.
func (s *schemas) validate(schema *gojsonschema.Schema, body []byte) []FieldError {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return []FieldError{{Field: "(root)", Description: "invalid JSON: " + err.Error()}}
	}
	if result.Valid() {
		return nil
	}
	out := make([]FieldError, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		out = append(out, FieldError{Field: e.Field(), Description: e.Description()})
	}
	return out
}
