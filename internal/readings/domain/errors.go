package readings

import (
	"errors"
	"sort"
	"strings"
)

// ValidationError maps field names to one or more human-readable messages,
// mirroring the wire shape returned to clients.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string][]string{field: {message}}}
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "readings: validation failed"
	}
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "readings: validation failed on " + strings.Join(fields, ", ")
}

// ErrStorageConflict indicates a write conflict that persisted beyond the
// retry budget. The batch was rolled back; nothing was applied.
var ErrStorageConflict = errors.New("readings: storage conflict")
