// Package errors provides structured, coded domain errors for the tenancy core.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeValidation marks a command whose preconditions failed. Nothing was mutated.
	CodeValidation Code = "VALIDATION_FAILED"
	// CodeInvalidStateTransition marks a command issued from a state that does
	// not allow it. It is a conflict.
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	// CodeConflict marks a uniqueness violation.
	CodeConflict Code = "CONFLICT"
	// CodeConcurrencyConflict marks a failed optimistic version check. It is a conflict.
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"

	// CodeNotFound marks a missing aggregate or record.
	CodeNotFound Code = "NOT_FOUND"

	// CodeResourceExhausted marks a capped resource (projection runners).
	CodeResourceExhausted Code = "RESOURCE_EXHAUSTED"
	// CodeUnavailable marks infrastructure that could not be reached.
	CodeUnavailable Code = "UNAVAILABLE"
)

// IsConflict reports whether the code belongs to the conflict family.
func (c Code) IsConflict() bool {
	switch c {
	case CodeConflict, CodeInvalidStateTransition, CodeConcurrencyConflict:
		return true
	default:
		return false
	}
}

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeValidation:
		return codes.InvalidArgument
	case CodeInvalidStateTransition:
		return codes.FailedPrecondition
	case CodeConflict:
		return codes.AlreadyExists
	case CodeConcurrencyConflict:
		return codes.Aborted
	case CodeNotFound:
		return codes.NotFound
	case CodeResourceExhausted:
		return codes.ResourceExhausted
	case CodeUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
