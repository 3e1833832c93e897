// Package schemas validates structured stage outputs against embedded JSON
// Schemas.
package schemas

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed validation_report.schema.json
var validationReportSchema string

// ValidationError carries the field-level problems found by a schema check.
type ValidationError struct {
	Errors []FieldError
}

// FieldError is one validation problem at a specific field path.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("schema validation failed:")
	for _, fe := range e.Errors {
		sb.WriteString(fmt.Sprintf("\n  %s: %s", fe.Field, fe.Message))
	}
	return sb.String()
}

// ValidateValidationReport checks a validation-stage JSON report against the
// embedded schema. A nil return means the document conforms.
func ValidateValidationReport(jsonText string) error {
	schemaLoader := gojsonschema.NewStringLoader(validationReportSchema)
	documentLoader := gojsonschema.NewStringLoader(jsonText)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to run schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{}
	for _, re := range result.Errors() {
		verr.Errors = append(verr.Errors, FieldError{
			Field:   re.Field(),
			Message: re.Description(),
		})
	}
	return verr
}
