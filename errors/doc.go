// Package errors provides structured error types for the reclaim library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries the offending handle and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMutate, errors.KindInvalidHandle).
//		Handle(h).
//		Detail("edge target does not exist").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidHandle(errors.PhaseMutate, h)
//	err := errors.ResourceExhausted(limit)
//
// All errors implement the standard error interface and support errors.Is/As.
// FinalizerFault errors are diagnostics only: the store contains them and
// records them, they are never returned from a reclamation.
package errors
