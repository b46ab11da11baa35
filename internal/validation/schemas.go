package validation

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

const (
	SchemaIPN            = "ipn"
	SchemaSettingsUpdate = "settings-update"
	SchemaErrorResponse  = "error-response"
)

//go:embed schemas/*.json
var embedded embed.FS

var schemaFiles = map[string]string{
	SchemaIPN:            "ipn.json",
	SchemaSettingsUpdate: "settings-update.json",
	SchemaErrorResponse:  "error-response.json",
}

// SchemaValidator validates request payloads against compiled JSON schemas.
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewSchemaValidator compiles the built-in schemas.
func NewSchemaValidator() (*SchemaValidator, error) {
	sv := &SchemaValidator{schemas: make(map[string]*gojsonschema.Schema)}
	if err := sv.LoadSchemaFromFS(embedded, "schemas"); err != nil {
		return nil, err
	}
	return sv, nil
}

func (sv *SchemaValidator) LoadSchemaFromFS(fsys fs.FS, schemaDir string) error {
	for name, filename := range schemaFiles {
		schemaBytes, err := fs.ReadFile(fsys, path.Join(schemaDir, filename))
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", filename, err)
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaBytes))
		if err != nil {
			return fmt.Errorf("failed to load schema %s: %w", name, err)
		}
		sv.schemas[name] = schema
	}
	return nil
}

func (sv *SchemaValidator) ValidateIPN(data any) *ValidationResult {
	return sv.Validate(SchemaIPN, data)
}

func (sv *SchemaValidator) ValidateSettingsUpdate(data any) *ValidationResult {
	return sv.Validate(SchemaSettingsUpdate, data)
}

// Validate accepts a JSON string, raw bytes or any value that marshals to JSON.
func (sv *SchemaValidator) Validate(schemaName string, data any) *ValidationResult {
	schema, exists := sv.schemas[schemaName]
	if !exists {
		return invalid("schema", fmt.Sprintf("Schema '%s' not found", schemaName), "SCHEMA_NOT_FOUND")
	}

	var documentLoader gojsonschema.JSONLoader
	switch v := data.(type) {
	case string:
		documentLoader = gojsonschema.NewStringLoader(v)
	case []byte:
		documentLoader = gojsonschema.NewBytesLoader(v)
	default:
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return invalid("data", fmt.Sprintf("Failed to marshal data to JSON: %v", err), "JSON_MARSHAL_ERROR")
		}
		documentLoader = gojsonschema.NewBytesLoader(jsonBytes)
	}

	result, err := schema.Validate(documentLoader)
	if err != nil {
		return invalid("body", fmt.Sprintf("Malformed JSON: %v", err), "MALFORMED_JSON")
	}

	vr := &ValidationResult{Valid: result.Valid(), Errors: []ValidationError{}}
	for _, re := range result.Errors() {
		vr.Errors = append(vr.Errors, ValidationError{
			Field:   re.Field(),
			Message: re.Description(),
			Code:    "VALIDATION_ERROR",
			Value:   re.Value(),
		})
	}
	return vr
}

func invalid(field, message, code string) *ValidationResult {
	return &ValidationResult{
		Valid:  false,
		Errors: []ValidationError{{Field: field, Message: message, Code: code}},
	}
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Value   any    `json:"value,omitempty"`
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", ve.Field, ve.Message)
}

// FieldErrors groups messages by field for the error envelope.
func (vr *ValidationResult) FieldErrors() map[string][]string {
	fields := make(map[string][]string)
	for _, err := range vr.Errors {
		if err.Field != "" {
			fields[err.Field] = append(fields[err.Field], err.Message)
		}
	}
	return fields
}

func (sv *SchemaValidator) SchemaNames() []string {
	names := make([]string, 0, len(sv.schemas))
	for name := range sv.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
