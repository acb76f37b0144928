package providers

import (
	"errors"
	"fmt"
)

// ErrExternal marks failures of an outbound integration. The HTTP layer maps
// it to 502.
var ErrExternal = errors.New("external_error")

type ExternalError struct {
	Provider  string
	Operation string
	Err       error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Operation, e.Err)
}

func (e *ExternalError) Unwrap() []error {
	return []error{ErrExternal, e.Err}
}

// External wraps err so errors.Is(err, ErrExternal) holds. A nil err stays nil.
func External(provider, operation string, err error) error {
	if err == nil {
		return nil
	}
	var existing *ExternalError
	if errors.As(err, &existing) {
		return err
	}
	return &ExternalError{Provider: provider, Operation: operation, Err: err}
}
