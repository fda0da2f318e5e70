package pgtricks

import (
	"fmt"
)

// StorageError reports a failure to create, write, read or remove the
// temporary files that hold sorted runs.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func NewStorageError(op, path string, err error) *StorageError {
	return &StorageError{Op: op, Path: path, Err: err}
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("sort storage: %s: %s", e.Op, ErrorMessage(e.Err))
	}
	return fmt.Sprintf("sort storage: %s %s: %s", e.Op, e.Path, ErrorMessage(e.Err))
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// StructureError reports input that does not have the shape of a dump, e.g.
// a COPY block that is never terminated.
type StructureError struct {
	// LineNumber is 1-based; zero when the error is not tied to a line.
	LineNumber int
	Msg        string
}

func NewStructureError(lineNumber int, format string, args ...interface{}) *StructureError {
	return &StructureError{
		LineNumber: lineNumber,
		Msg:        fmt.Sprintf(format, args...),
	}
}

func (e *StructureError) Error() string {
	if e.LineNumber == 0 {
		return "malformed dump: " + e.Msg
	}
	return fmt.Sprintf("malformed dump: line %d: %s", e.LineNumber, e.Msg)
}

func IsStorageError(err error) bool {
	_, ok := findError(err, func(e error) bool {
		_, ok := e.(*StorageError)
		return ok
	})
	return ok
}

func IsStructureError(err error) bool {
	_, ok := findError(err, func(e error) bool {
		_, ok := e.(*StructureError)
		return ok
	})
	return ok
}

// findError walks the Unwrap chain, which godropbox errors take part in.
func findError(err error, match func(error) bool) (error, bool) {
	for i := 0; err != nil && i < 100; i++ {
		if match(err) {
			return err, true
		}
		e, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = e.Unwrap()
	}
	return nil, false
}

// ErrorMessage returns a single-line description of err, omitting the stack
// traces that godropbox errors carry in their Error string.
func ErrorMessage(err error) string {
	e, ok := err.(interface {
		GetMessage() string
		Unwrap() error
	})
	if !ok {
		return err.Error()
	}
	msg := e.GetMessage()
	if inner := e.Unwrap(); inner != nil {
		msg += ": " + ErrorMessage(inner)
	}
	return msg
}
