// Package apperr classifies pipeline failures so the caller can tell bad
// input from a flaky dependency or a broken render.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnknown     Kind = ""
	KindInput       Kind = "input"
	KindUpstream    Kind = "upstream"
	KindNotFound    Kind = "not_found"
	KindFile        Kind = "file"
	KindComposition Kind = "composition"
)

// Error carries a Kind alongside the operation or resource that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op == "":
		return e.Err.Error()
	case e.Err == nil:
		return e.Op
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Input reports a request that can never succeed as given.
func Input(format string, args ...any) error {
	return &Error{Kind: KindInput, Err: fmt.Errorf(format, args...)}
}

// Upstream reports a failed fetch, download or probe of the named resource.
func Upstream(resource string, err error) error {
	return &Error{Kind: KindUpstream, Op: "upstream " + resource, Err: err}
}

func NotFound(what string) error {
	return &Error{Kind: KindNotFound, Op: what + " not found"}
}

// File reports a local filesystem failure.
func File(op, path string, err error) error {
	return &Error{Kind: KindFile, Op: fmt.Sprintf("file %s %s", op, path), Err: err}
}

func Composition(err error) error {
	return &Error{Kind: KindComposition, Op: "composition", Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
