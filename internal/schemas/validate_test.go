package schemas

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateJSON_ValidJSON(t *testing.T) {
	schemaPath := filepath.Join("testdata", "valid_schema.json")
	jsonPath := filepath.Join("testdata", "valid_json.json")

	err := ValidateJSON(schemaPath, jsonPath)
	assert.NoError(t, err)
}

func TestValidateJSON_InvalidJSON_MissingField(t *testing.T) {
	schemaPath := filepath.Join("testdata", "valid_schema.json")
	jsonPath := filepath.Join("testdata", "invalid_json.json")

	err := ValidateJSON(schemaPath, jsonPath)
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok, "error should be ValidationError type")
	assert.Greater(t, len(validationErr.Errors), 0)
}

func TestValidateJSON_InvalidJSON_WrongType(t *testing.T) {
	schemaPath := filepath.Join("testdata", "valid_schema.json")
	jsonPath := filepath.Join("testdata", "type_mismatch.json")

	err := ValidateJSON(schemaPath, jsonPath)
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok, "error should be ValidationError type")
	assert.Greater(t, len(validationErr.Errors), 0)
}

func TestValidateJSON_NonExistentSchema(t *testing.T) {
	schemaPath := "testdata/nonexistent_schema.json"
	jsonPath := filepath.Join("testdata", "valid_json.json")

	err := ValidateJSON(schemaPath, jsonPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidateJSON_NonExistentJSON(t *testing.T) {
	schemaPath := filepath.Join("testdata", "valid_schema.json")
	jsonPath := "testdata/nonexistent_json.json"

	err := ValidateJSON(schemaPath, jsonPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidateJSON_MalformedJSON(t *testing.T) {
	// Create a temporary malformed JSON file
	tmpDir := t.TempDir()
	malformedJSON := filepath.Join(tmpDir, "malformed.json")
	err := os.WriteFile(malformedJSON, []byte("{ invalid json }"), 0644)
	require.NoError(t, err)

	schemaPath := filepath.Join("testdata", "valid_schema.json")

	valErr := ValidateJSON(schemaPath, malformedJSON)
	var validationErr *ValidationError
	require.ErrorAs(t, valErr, &validationErr)
	assert.Equal(t, "(root)", validationErr.Errors[0].Field)
}

func TestValidateDocument(t *testing.T) {
	schemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["orders"],
		"properties": {"orders": {"type": "array"}}
	}`

	assert.NoError(t, ValidateDocument(schemaContent, []byte(`{"orders": []}`)))

	err := ValidateDocument(schemaContent, []byte(`{"orders": 5}`))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "orders", validationErr.Errors[0].Field)

	err = ValidateDocument(schemaContent, []byte(`Login failed: captcha`))
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "(root)", validationErr.Errors[0].Field)
}

func TestCompile_BadSchema(t *testing.T) {
	_, err := Compile("broken", `{"type": 12}`)
	var loadErr *SchemaLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, err.Error(), "broken")
}

func TestSchema_ValidateReportsEveryViolation(t *testing.T) {
	schema, err := Compile("quote", `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["title"],
		"properties": {
			"title": {"type": "string"},
			"price": {"type": "number"}
		}
	}`)
	require.NoError(t, err)

	assert.NoError(t, schema.Validate([]byte(`{"title": "Widget", "price": 9.99}`)))

	err = schema.Validate([]byte(`{"price": "9.99"}`))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Len(t, validationErr.Errors, 2)
}

func TestValidateDocument_ReusesCompiledSchema(t *testing.T) {
	content := `{"type": "object", "required": ["orders"]}`

	require.NoError(t, ValidateDocument(content, []byte(`{"orders": []}`)))
	first, ok := compiled.Load(content)
	require.True(t, ok)

	require.Error(t, ValidateDocument(content, []byte(`{}`)))
	second, _ := compiled.Load(content)
	assert.Same(t, first, second)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Errors: []FieldError{
			{Field: "name", Message: "is required"},
			{Field: "age", Message: "must be a number"},
		},
	}

	errorMsg := err.Error()
	assert.Contains(t, errorMsg, "validation failed")
	assert.Contains(t, errorMsg, "name")
	assert.Contains(t, errorMsg, "age")
}

func TestValidateDocument_NestedField(t *testing.T) {
	schemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["order"],
		"properties": {
			"order": {
				"type": "object",
				"required": ["order_id"],
				"properties": {
					"order_id": {"type": "string"}
				}
			}
		}
	}`

	err := ValidateDocument(schemaContent, []byte(`{"order": {}}`))
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.NotEmpty(t, validationErr.Errors)
	assert.Equal(t, "order", validationErr.Errors[0].Field)
}
