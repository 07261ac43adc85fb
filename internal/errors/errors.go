// Package errors defines Rift's fatal runtime error taxonomy.
//
// Every failure in Rift is a fatal error: the parser cannot
// recover mid-expression, the GC cannot continue after exhaustion, and the
// runtime intrinsics never catch their own faults. The REPL is the only
// collaborator that recovers, and it does so at statement granularity by
// catching a *RiftError at the top of its loop.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind names one of the six fatal error categories Rift reports.
type Kind string

const (
	Syntax     Kind = "SyntaxError"
	Lookup     Kind = "LookupError"
	Type       Kind = "TypeError"
	Arity      Kind = "ArityError"
	Bounds     Kind = "BoundsError"
	Allocation Kind = "AllocationError"
)

// Location pins an error to a place in the source text.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	if l.File == "" && l.Line == 0 {
		return ""
	}
	file := l.File
	if file == "" {
		file = "<input>"
	}
	return fmt.Sprintf("%s:%d:%d", file, l.Line, l.Column)
}

// RiftError is the single error type every Rift subsystem raises. It never
// wraps a recoverable condition — by the time one exists, evaluation of the
// current top-level statement is over.
type RiftError struct {
	Kind     Kind
	Message  string
	Location Location
	cause    error
}

func (e *RiftError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if loc := e.Location.String(); loc != "" {
		sb.WriteString(" (")
		sb.WriteString(loc)
		sb.WriteString(")")
	}
	return sb.String()
}

func (e *RiftError) Unwrap() error { return e.cause }

// New builds a bare RiftError of the given kind.
func New(kind Kind, format string, args ...interface{}) *RiftError {
	return &RiftError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind/context to a lower-level error (e.g. a backend linking
// failure) using pkg/errors so the original stack trace survives.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *RiftError {
	return &RiftError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		cause:   errors.WithStack(cause),
	}
}

// At returns a copy of e located at loc; used by the parser and lowering
// pass, which know source positions the deeper runtime does not.
func (e *RiftError) At(loc Location) *RiftError {
	cp := *e
	cp.Location = loc
	return &cp
}

func NewSyntaxError(loc Location, format string, args ...interface{}) *RiftError {
	return New(Syntax, format, args...).At(loc)
}

func NewLookupError(symbol string) *RiftError {
	return New(Lookup, "unbound variable %q", symbol)
}

func NewTypeError(format string, args ...interface{}) *RiftError {
	return New(Type, format, args...)
}

func NewArityError(expected, got int) *RiftError {
	return New(Arity, "function expects %d argument(s), got %d", expected, got)
}

func NewBoundsError(index int, length int) *RiftError {
	return New(Bounds, "index %d out of range for vector of length %d", index, length)
}

func NewAllocationError(requested int) *RiftError {
	return New(Allocation, "out of memory allocating %d bytes", requested)
}

// Is reports whether err is a *RiftError of the given kind, unwrapping as
// needed.
func Is(err error, kind Kind) bool {
	var re *RiftError
	for err != nil {
		if r, ok := err.(*RiftError); ok {
			re = r
			break
		}
		err = errors.Unwrap(err)
	}
	return re != nil && re.Kind == kind
}
