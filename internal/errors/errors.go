// Package errors defines segcore's typed error kinds (spec §7) and the
// ToStatus mapping used at the ABI boundary. Modeled on the domain error
// types and ToGRPCStatus in internal/store/errors.go, but the kinds here are
// segcore's own: a contract violation, not a gRPC-shaped taxonomy of
// not-found/unavailable/persistence errors that don't apply to an in-process
// library with no network or disk of its own.
package errors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// ErrContractViolation indicates the caller broke an API contract the
// callee relied on without checking — a field that must exist, an offset
// that must be in range, a Timestamp that must be monotone for the caller.
// Distinguished from a malformed plan because it covers the whole public
// surface, not just Plan/PlaceholderGroup decoding.
type ErrContractViolation struct {
	Operation string
	Message   string
}

func (e *ErrContractViolation) Error() string {
	return fmt.Sprintf("contract violation in %s: %s", e.Operation, e.Message)
}

// ErrResourceExhausted indicates a configured limit was hit. No operation
// in this module returns it: chunks grow on demand and the bitmap LRU
// evicts its least recently used entry instead of failing.
type ErrResourceExhausted struct {
	Resource string
	Message  string
}

func (e *ErrResourceExhausted) Error() string {
	return fmt.Sprintf("resource exhausted (%s): %s", e.Resource, e.Message)
}

// ErrMalformedPlan indicates a decoded Plan, PlaceholderGroup, or
// LoadIndexInfo failed validation: wrong field number, missing vector
// field, placeholder count mismatch against nq.
type ErrMalformedPlan struct {
	Operation string
	Message   string
	Cause     error
}

func (e *ErrMalformedPlan) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed plan in %s: %s: %v", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("malformed plan in %s: %s", e.Operation, e.Message)
}

func (e *ErrMalformedPlan) Unwrap() error {
	return e.Cause
}

// ErrIndexMismatch indicates an attached VectorIndex disagrees with the
// segment or field it was asked to serve: wrong metric, wrong dimension,
// or an index built against a different field id.
type ErrIndexMismatch struct {
	Field   string
	Message string
}

func (e *ErrIndexMismatch) Error() string {
	return fmt.Sprintf("index mismatch for field %s: %s", e.Field, e.Message)
}

// ErrUnimplemented indicates a capability spec.md names but explicitly puts
// out of scope for this library (a DSL string parser, a new ANN index
// type) was invoked directly rather than through its documented
// Go-value/adapter seam.
type ErrUnimplemented struct {
	Feature string
}

func (e *ErrUnimplemented) Error() string {
	return fmt.Sprintf("unimplemented: %s", e.Feature)
}

// ErrNotReady indicates an operation that requires a segment to have
// reached a lifecycle state it hasn't: searching a sealed segment before
// load_field_data, writing to a growing segment after it has been sealed.
type ErrNotReady struct {
	Operation string
	Message   string
}

func (e *ErrNotReady) Error() string {
	return fmt.Sprintf("not ready for %s: %s", e.Operation, e.Message)
}

// ErrInternal wraps a violated internal invariant (see core.AssertionError)
// at a public boundary that must not panic across it.
type ErrInternal struct {
	Operation string
	Cause     error
}

func (e *ErrInternal) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("internal error during %s: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("internal error during %s", e.Operation)
}

func (e *ErrInternal) Unwrap() error {
	return e.Cause
}

// NewContractViolationError creates a contract-violation error.
func NewContractViolationError(operation, message string) error {
	return &ErrContractViolation{Operation: operation, Message: message}
}

// NewResourceExhaustedError creates a resource-exhausted error.
func NewResourceExhaustedError(resource, message string) error {
	return &ErrResourceExhausted{Resource: resource, Message: message}
}

// NewMalformedPlanError creates a malformed-plan error.
func NewMalformedPlanError(operation, message string) error {
	return &ErrMalformedPlan{Operation: operation, Message: message}
}

// WrapMalformedPlanError wraps a decode error as a malformed-plan error.
func WrapMalformedPlanError(err error, operation, message string) error {
	if err == nil {
		return nil
	}
	return &ErrMalformedPlan{Operation: operation, Message: message, Cause: err}
}

// NewIndexMismatchError creates an index-mismatch error.
func NewIndexMismatchError(field, message string) error {
	return &ErrIndexMismatch{Field: field, Message: message}
}

// NewUnimplementedError creates an unimplemented-feature error.
func NewUnimplementedError(feature string) error {
	return &ErrUnimplemented{Feature: feature}
}

// NewNotReadyError creates a not-ready error.
func NewNotReadyError(operation, message string) error {
	return &ErrNotReady{Operation: operation, Message: message}
}

// NewInternalError creates an internal error, typically from a recovered
// *core.AssertionError at a public boundary.
func NewInternalError(operation string, cause error) error {
	return &ErrInternal{Operation: operation, Cause: cause}
}

// ToStatus maps a segcore error to the {error_code, error_msg} shape the
// ABI boundary (spec §6/§7) returns. Status codes are
// google.golang.org/grpc/codes.Code values reused purely as an
// already-partitioned status space — this library never opens a socket —
// the same way the teacher reuses them outside of any RPC path in
// ToGRPCStatus.
func ToStatus(err error) (code int32, message string) {
	if err == nil {
		return int32(codes.OK), ""
	}

	var (
		contractErr *ErrContractViolation
		resourceErr *ErrResourceExhausted
		planErr     *ErrMalformedPlan
		indexErr    *ErrIndexMismatch
		unimplErr   *ErrUnimplemented
		notReadyErr *ErrNotReady
		internalErr *ErrInternal
	)

	switch {
	case errors.As(err, &contractErr):
		return int32(codes.InvalidArgument), err.Error()
	case errors.As(err, &resourceErr):
		return int32(codes.ResourceExhausted), err.Error()
	case errors.As(err, &planErr):
		return int32(codes.InvalidArgument), err.Error()
	case errors.As(err, &indexErr):
		return int32(codes.FailedPrecondition), err.Error()
	case errors.As(err, &unimplErr):
		return int32(codes.Unimplemented), err.Error()
	case errors.As(err, &notReadyErr):
		return int32(codes.Unavailable), err.Error()
	case errors.As(err, &internalErr):
		return int32(codes.Internal), err.Error()
	default:
		return int32(codes.Internal), err.Error()
	}
}

// RecoverAssertion converts a recovered core.AssertionError (or any other
// panic value) into an *ErrInternal, for use at public entry points that
// must never let a panic escape. Call as:
//
//	defer func() { err = errors.RecoverAssertion(recover(), "operation", &err) }()
func RecoverAssertion(recovered any, operation string, errOut *error) error {
	if recovered == nil {
		return *errOut
	}
	if asErr, ok := recovered.(error); ok {
		return &ErrInternal{Operation: operation, Cause: asErr}
	}
	return &ErrInternal{Operation: operation, Cause: fmt.Errorf("%v", recovered)}
}
