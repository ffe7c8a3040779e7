// Package schemas validates provider documents against JSON Schemas.
package schemas

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// FieldError is one schema violation.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every violation found in a document.
type ValidationError struct {
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		fmt.Fprintf(&sb, "  %d. %s: %s\n", i+1, err.Field, err.Message)
	}
	return sb.String()
}

// SchemaLoadError means the schema itself could not be compiled.
type SchemaLoadError struct {
	Source string
	Cause  error
}

func (e *SchemaLoadError) Error() string {
	return fmt.Sprintf("failed to load schema %s: %v", e.Source, e.Cause)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

// Schema is a compiled JSON Schema.
type Schema struct {
	source string
	schema *gojsonschema.Schema
}

// Compile parses schema content. source names the schema in errors.
func Compile(source, content string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(content))
	if err != nil {
		return nil, &SchemaLoadError{Source: source, Cause: err}
	}
	return &Schema{source: source, schema: s}, nil
}

// Validate checks doc. Malformed JSON is reported as a violation on the root
// so provider output such as a login error page reads as a contract breach.
func (s *Schema) Validate(doc []byte) error {
	if !json.Valid(doc) {
		return &ValidationError{Errors: []FieldError{{Field: "(root)", Message: "document is not valid JSON"}}}
	}
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to validate against %s: %w", s.source, err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		verr.Errors = append(verr.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return verr
}

// compiled caches schemas by content; provider output is validated on every job.
var compiled sync.Map

// ValidateDocument validates doc against schema content, compiling the schema
// once per distinct content.
func ValidateDocument(schemaContent string, doc []byte) error {
	s, err := cachedSchema(schemaContent)
	if err != nil {
		return err
	}
	return s.Validate(doc)
}

func cachedSchema(content string) (*Schema, error) {
	if s, ok := compiled.Load(content); ok {
		return s.(*Schema), nil
	}
	s, err := Compile("(inline)", content)
	if err != nil {
		return nil, err
	}
	actual, _ := compiled.LoadOrStore(content, s)
	return actual.(*Schema), nil
}

// ValidateJSON validates the document at jsonPath against the schema at schemaPath.
func ValidateJSON(schemaPath, jsonPath string) error {
	content, err := readFile("schema", schemaPath)
	if err != nil {
		return err
	}
	doc, err := readFile("JSON", jsonPath)
	if err != nil {
		return err
	}
	s, err := Compile(schemaPath, string(content))
	if err != nil {
		return err
	}
	return s.Validate(doc)
}

func readFile(kind, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s file not found: %s", kind, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file: %w", kind, err)
	}
	return data, nil
}
