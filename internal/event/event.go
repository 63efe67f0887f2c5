// Package event decodes and validates the trigger payloads accepted over HTTP.
package event

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/scanhook/scanhook/internal/blob"
	"github.com/scanhook/scanhook/internal/job"
)

const objectCreatedSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "bucket": {"type": "string", "minLength": 1},
    "key":    {"type": "string", "minLength": 1}
  },
  "required": ["bucket", "key"]
}`

const jobChangedSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "record": {
      "type": "object",
      "properties": {
        "fileid":         {"type": "string", "minLength": 1},
        "callback_url":   {"type": "string"},
        "extracted_text": {"type": ["string", "null"]},
        "created_at":     {"type": "string"},
        "updated_at":     {"type": "string"}
      },
      "required": ["fileid"]
    }
  },
  "type": "object",
  "properties": {
    "before": {"oneOf": [{"type": "null"}, {"$ref": "#/definitions/record"}]},
    "after":  {"oneOf": [{"type": "null"}, {"$ref": "#/definitions/record"}]}
  },
  "anyOf": [
    {"required": ["before"], "properties": {"before": {"type": "object"}}},
    {"required": ["after"], "properties": {"after": {"type": "object"}}}
  ]
}`

var (
	objectCreated = mustCompile("object-created.json", objectCreatedSchema)
	jobChanged    = mustCompile("job-changed.json", jobChangedSchema)
)

func mustCompile(name, src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return schema
}

// ValidationError reports a payload that is not valid JSON or does not
// match its schema.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "invalid event: " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

func validate(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return &ValidationError{Err: fmt.Errorf("unmarshal data: %w", err)}
	}
	if err := schema.Validate(v); err != nil {
		return &ValidationError{Err: fmt.Errorf("json does not match schema: %w", err)}
	}
	return nil
}

// DecodeObjectCreated parses an object-created notification.
func DecodeObjectCreated(data []byte) (blob.ObjectRef, error) {
	if err := validate(objectCreated, data); err != nil {
		return blob.ObjectRef{}, err
	}
	var ref blob.ObjectRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return blob.ObjectRef{}, &ValidationError{Err: err}
	}
	return ref, nil
}

// DecodeJobChanged parses a job change carrying at least one image.
func DecodeJobChanged(data []byte) (job.Change, error) {
	if err := validate(jobChanged, data); err != nil {
		return job.Change{}, err
	}
	var c job.Change
	if err := json.Unmarshal(data, &c); err != nil {
		return job.Change{}, &ValidationError{Err: err}
	}
	return c, nil
}
