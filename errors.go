package yoloprep

import (
	"errors"
	"fmt"
)

// Per-record errors. A record failing with one of these is skipped and the run continues.
var (
	ErrMissingImage      = errors.New("missing image")
	ErrDegenerateBox     = errors.New("degenerate box")
	ErrMalformedDocument = errors.New("malformed document")
	ErrIO                = errors.New("i/o failure")
)

// Run-level errors. These abort the run before any output is written.
var (
	ErrInvalidRatio      = errors.New("invalid split ratios")
	ErrDirectoryConflict = errors.New("output directory conflict")
	ErrInputRoot         = errors.New("unreadable input root")
)

// ErrClassTableFrozen is returned when a new label is added to a frozen ClassTable.
var ErrClassTableFrozen = errors.New("class table is frozen")

// RecordError describes why a single file, or a single shape within it, was skipped.
type RecordError struct {
	Kind  error  // One of the per-record sentinel errors.
	Path  string // The offending file.
	Shape int    // Index of the offending shape, or -1 if the whole file is affected.
	Err   error  // The underlying cause, may be nil.
}

func newRecordError(kind error, path string, cause error) *RecordError {
	return &RecordError{Kind: kind, Path: path, Shape: -1, Err: cause}
}

func (e *RecordError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Path
	if e.Shape >= 0 {
		msg += fmt.Sprintf(" (shape %d)", e.Shape)
	}
	switch {
	case e.Err == nil:
		return e.Kind.Error() + ": " + msg
	case errors.Is(e.Err, e.Kind):
		// The cause already names the kind.
		return msg + ": " + e.Err.Error()
	}
	return e.Kind.Error() + ": " + msg + ": " + e.Err.Error()
}

func (e *RecordError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// recordPath returns the file a per-record error refers to, or "" for other errors.
func recordPath(err error) string {
	var recErr *RecordError
	if errors.As(err, &recErr) {
		return recErr.Path
	}
	return ""
}

// Reason returns a short, stable name for the error kind, used as a report key.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMissingImage):
		return "missing_image"
	case errors.Is(err, ErrDegenerateBox):
		return "degenerate_box"
	case errors.Is(err, ErrMalformedDocument):
		return "malformed_document"
	case errors.Is(err, ErrIO):
		return "io"
	}
	return "other"
}
