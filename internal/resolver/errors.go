package resolver

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned for blank messages.
var ErrEmptyInput = errors.New("empty input")

// ResolutionError reports that neither the model nor the fallback parser
// produced a usable intent.
type ResolutionError struct {
	Reason string
	// Reference is the task reference text that could not be matched, if any.
	Reference string
}

func (e *ResolutionError) Error() string {
	if e.Reference != "" {
		return fmt.Sprintf("resolution failed: %s (%q)", e.Reason, e.Reference)
	}
	return "resolution failed: " + e.Reason
}
