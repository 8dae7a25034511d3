// Package geoerr defines the error categories surfaced by workspace and
// geoprocessing operations.
package geoerr

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrInputNotFound is returned when a workspace, dataset or file does not exist.
	ErrInputNotFound = eris.New("input not found")
	// ErrEngine is returned when a geoprocessing tool fails.
	ErrEngine = eris.New("engine call failed")
	// ErrSchemaMismatch is returned when a dataset lacks an expected field or
	// has the wrong geometry type.
	ErrSchemaMismatch = eris.New("schema mismatch")
)

// Error ties an underlying cause to one of the sentinel categories.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the category of e.
func (e *Error) Is(target error) bool { return target == e.Kind }

// NotFound builds an ErrInputNotFound error.
func NotFound(op, format string, args ...any) error {
	return &Error{Kind: ErrInputNotFound, Op: op, Err: eris.Errorf(format, args...)}
}

// Schema builds an ErrSchemaMismatch error.
func Schema(op, format string, args ...any) error {
	return &Error{Kind: ErrSchemaMismatch, Op: op, Err: eris.Errorf(format, args...)}
}

// Engine wraps err as an ErrEngine failure of tool op. Errors that already
// carry a category are returned unchanged so the original category survives.
func Engine(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	return &Error{Kind: ErrEngine, Op: op, Err: err}
}

// KindOf returns a short category name for logging, or "" for
// uncategorized errors.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case eris.Is(err, ErrInputNotFound):
		return "input_not_found"
	case eris.Is(err, ErrSchemaMismatch):
		return "schema_mismatch"
	case eris.Is(err, ErrEngine):
		return "engine_failure"
	default:
		return ""
	}
}
