package browser

import (
	"fmt"

	"github.com/damacus/r2-dashboard/internal/services"
)

// ValidationError is a request the projection refuses before touching the store
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a folder with nothing under it
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// BatchError is returned alongside a BatchResult when some items failed.
// The other items were applied and are not rolled back.
type BatchError struct {
	Op     string
	Total  int
	Failed []services.KeyError
}

func (e *BatchError) Error() string {
	if len(e.Failed) == 1 {
		return fmt.Sprintf("%s: %s", e.Op, e.Failed[0].Error())
	}
	return fmt.Sprintf("%s: %d of %d items failed", e.Op, len(e.Failed), e.Total)
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		errs = append(errs, f)
	}
	return errs
}

// BatchResult lists per-item outcomes of a multi-object operation
type BatchResult struct {
	Succeeded []string
	Failed    []services.KeyError
}

func (r BatchResult) err(op string) error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &BatchError{Op: op, Total: len(r.Succeeded) + len(r.Failed), Failed: r.Failed}
}
