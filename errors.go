package railpass

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure conditions a caller may need to tell apart.
var (
	ErrTemplateNotFound = errors.New("railpass: template not found")
	ErrTemplateLoad     = errors.New("railpass: template could not be loaded")
	ErrMalformedJSON    = errors.New("railpass: malformed JSON")
	ErrMissingField     = errors.New("railpass: missing field")
	ErrWrongType        = errors.New("railpass: wrong type")
	ErrRasterize        = errors.New("railpass: rasterize failed")
	ErrExportAssembly   = errors.New("railpass: export assembly failed")

	ErrQueueFull        = errors.New("railpass: queue is full")
	ErrQueueEmpty       = errors.New("railpass: queue is empty")
	ErrExportInProgress = errors.New("railpass: export already in progress")
)

// Error reports a failure of a specific operation. Field is set when the
// failure concerns one record field or one template id.
type Error struct {
	Op    string // operation name, e.g. "parse", "resolve", "export"
	Field string
	Err   error
}

func (e *Error) Error() string {
	msg := "unknown error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Field != "" {
		return fmt.Sprintf("railpass.%s: %s: %s", e.Op, e.Field, msg)
	}
	return fmt.Sprintf("railpass.%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with operation and field context.
func NewError(op, field string, err error) *Error {
	return &Error{Op: op, Field: field, Err: err}
}
