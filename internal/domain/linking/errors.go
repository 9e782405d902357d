package linking

import (
	"errors"
	"fmt"
)

var (
	// ErrConsentRequired blocks the disclosure-to-selection transition until
	// the user has acknowledged consent. There is no bypass.
	ErrConsentRequired = errors.New("consent acknowledgment is required")

	// ErrInvalidStep signals an operation invoked outside its flow step.
	ErrInvalidStep = errors.New("operation not valid in current flow step")
)

// ValidationError reports malformed user input. It blocks submission and
// never advances the flow.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
