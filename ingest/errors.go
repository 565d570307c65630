package ingest

import "fmt"

// Schema error codes.
const (
	MissingRequiredField = "missing_required_field"
)

// SchemaError is a fatal, column-level validation failure. It aborts the
// whole load: no partial dataset is ever produced, and a previously loaded
// mission stays untouched. Row-level problems are not SchemaErrors; they are
// accumulated into the validation report instead.
type SchemaError struct {
	Code  string
	Field string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Field)
}
