package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed job_create.schema.json
var jobCreateSchemaJSON string

// JobCreate is a validated create-job request body.
type JobCreate struct {
	JobType       string   `json:"job_type"`
	SourceLocale  string   `json:"source_locale"`
	TargetLocales []string `json:"target_locales"`
	Priority      *int     `json:"priority,omitempty"`
	ResourceID    *string  `json:"resource_id,omitempty"`
	MaxRetries    *int     `json:"max_retries,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

func ValidateJobCreatePayload(payload json.RawMessage) (*JobCreate, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var req JobCreate
	if err := json.Unmarshal(normalized, &req); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&req); err != nil {
		return nil, err
	}

	return &req, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("job_create.schema.json", strings.NewReader(jobCreateSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("job_create.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(req *JobCreate) error {
	if req == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(req.SourceLocale) == "" {
		return fmt.Errorf("source_locale must not be empty")
	}
	for i, locale := range req.TargetLocales {
		if strings.TrimSpace(locale) == "" {
			return fmt.Errorf("target_locales[%d] must not be empty", i)
		}
	}
	if req.JobType == "single" {
		if req.ResourceID == nil || strings.TrimSpace(*req.ResourceID) == "" {
			return fmt.Errorf("resource_id is required for single jobs")
		}
	}

	return nil
}
