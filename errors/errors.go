package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the heap lifecycle the error occurred
type Phase string

const (
	PhaseAllocate Phase = "allocate" // object creation
	PhaseMutate   Phase = "mutate"   // edge add/remove
	PhaseRoot     Phase = "root"     // root set binding
	PhaseCollect  Phase = "collect"  // cycle collection pass
	PhaseFinalize Phase = "finalize" // finalizer dispatch
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidHandle     Kind = "invalid_handle"
	KindNotFound          Kind = "not_found"
	KindResourceExhausted Kind = "resource_exhausted"
	KindFinalizerFault    Kind = "finalizer_fault"
)

// Error is the structured error type used throughout the heap
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Handle uint32
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Handle != 0 {
		fmt.Fprintf(&b, " handle=%d", e.Handle)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Handle sets the offending handle
func (b *Builder) Handle(h uint32) *Builder {
	b.err.Handle = h
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidHandle creates an invalid handle error
func InvalidHandle(phase Phase, handle uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidHandle,
		Handle: handle,
		Detail: "handle not present in store",
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// ResourceExhausted creates an allocation limit error
func ResourceExhausted(limit int) *Error {
	return &Error{
		Phase:  PhaseAllocate,
		Kind:   KindResourceExhausted,
		Detail: fmt.Sprintf("store limit of %d objects reached", limit),
	}
}

// FinalizerFault creates a contained finalizer failure diagnostic.
// It never propagates past the reclamation step that produced it.
func FinalizerFault(handle uint32, recovered any) *Error {
	e := &Error{
		Phase:  PhaseFinalize,
		Kind:   KindFinalizerFault,
		Handle: handle,
	}
	if cause, ok := recovered.(error); ok {
		e.Cause = cause
		e.Detail = "finalizer failed"
	} else {
		e.Detail = fmt.Sprintf("finalizer panicked: %v", recovered)
	}
	return e
}
