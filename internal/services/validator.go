package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrValidation can be used with errors.Is to detect payload validation failures.
var ErrValidation = errors.New("validation failed")

const leadSchemaJSON = `{
  "type": "object",
  "properties": {
    "im": {"type": "string", "minLength": 1},
    "company_name": {"type": "string", "minLength": 1},
    "agent_name": {"type": "string", "minLength": 1},
    "email": {"type": "string", "minLength": 3},
    "task": {"type": "string", "minLength": 1},
    "date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"}
  },
  "required": ["im", "company_name", "agent_name", "email", "task", "date"],
  "additionalProperties": false
}`

const promptSchemaJSON = `{
  "type": "object",
  "properties": {
    "prompt": {"type": "string", "minLength": 1}
  },
  "required": ["prompt"],
  "additionalProperties": false
}`

// Validator compiles the request-body schemas once at startup and checks
// incoming JSON payloads against them.
type Validator struct {
	leadSchema   *jsonschema.Schema
	promptSchema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	lead, err := jsonschema.CompileString("https://leadtrail.dev/schemas/lead", leadSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile lead schema: %w", err)
	}
	prompt, err := jsonschema.CompileString("https://leadtrail.dev/schemas/prompt", promptSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile prompt schema: %w", err)
	}
	return &Validator{leadSchema: lead, promptSchema: prompt}, nil
}

// ValidateLead performs hard reject: an error means the body must not reach the store.
func (v *Validator) ValidateLead(body json.RawMessage) error {
	return validate(v.leadSchema, body)
}

// ValidatePrompt checks the chatbot request body.
func (v *Validator) ValidatePrompt(body json.RawMessage) error {
	return validate(v.promptSchema, body)
}

func validate(schema *jsonschema.Schema, body json.RawMessage) error {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
