package consultation

import (
	"errors"
	"fmt"

	"github.com/physioconnect/consult/backend/internal/validation"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// fromValidator reports the first failed field as a ValidationError.
func fromValidator(err error) error {
	fields, ok := validation.Fields(err)
	if !ok || len(fields) == 0 {
		return err
	}
	return &ValidationError{Field: fields[0].Field, Reason: fields[0].Reason}
}
