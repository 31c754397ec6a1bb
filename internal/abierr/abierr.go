// Package abierr defines the typed error hierarchy shared by every stage of
// the compile pipeline and by the guest-side runtime kernel: five families
// (serialization, storage, validation, dispatcher, abi), each with a fixed
// set of codes, an optional context map, and an optional wrapped cause.
package abierr

import (
	"errors"
	"fmt"
)

// Family identifies which of the five error families an Error belongs to.
type Family string

const (
	FamilySerialization Family = "serialization"
	FamilyStorage       Family = "storage"
	FamilyValidation    Family = "validation"
	FamilyDispatcher    Family = "dispatcher"
	FamilyABI           Family = "abi"
)

// Code is a fixed, family-scoped error code.
type Code string

// Serialization codes.
const (
	CodeTypeMismatch       Code = "type_mismatch"
	CodeInvalidFormat      Code = "invalid_format"
	CodeCircularReference  Code = "circular_reference"
	CodeBufferUnderflow    Code = "buffer_underflow"
)

// Storage codes.
const (
	CodeReadFailed         Code = "read_failed"
	CodeWriteFailed        Code = "write_failed"
	CodeInvalidID          Code = "invalid_id"
	CodeForbiddenOperation Code = "forbidden_operation"
	CodeHostError          Code = "host_error"
)

// Validation codes.
const (
	CodeInvalidType       Code = "invalid_type"
	CodeOutOfRange        Code = "out_of_range"
	CodeRequiredField     Code = "required_field"
	CodeInvalidFormatV    Code = "invalid_format"
	CodeConstraintFailed  Code = "constraint_failed"
)

// Dispatcher codes.
const (
	CodeMethodNotFound Code = "method_not_found"
	CodeInvalidParams  Code = "invalid_params"
	CodeStateError     Code = "state_error"
	CodeJSONParse      Code = "json_parse"
)

// ABI codes.
const (
	CodeNotAvailable     Code = "not_available"
	CodeTypeNotFound     Code = "type_not_found"
	CodeInvalidRef       Code = "invalid_ref"
	CodeUnsupportedType  Code = "unsupported_type"
	CodeVariantMismatch  Code = "variant_mismatch"
)

// Error is the concrete error type produced by every package in this
// module. It carries enough structure for the dispatcher to log a
// formatted message with method name + stack (§7) before triggering a
// host panic.
type Error struct {
	Family  Family
	Code    Code
	Message string
	Context map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Family, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s/%s: %s", e.Family, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same family and code,
// enabling errors.Is(err, abierr.New(FamilyStorage, CodeInvalidID, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if t.Code == "" {
		return t.Family == e.Family
	}
	return t.Family == e.Family && t.Code == e.Code
}

// New builds an Error with no cause and no context.
func New(family Family, code Code, message string) *Error {
	return &Error{Family: family, Code: code, Message: message}
}

// Wrap builds an Error that wraps cause.
func Wrap(family Family, code Code, message string, cause error) *Error {
	return &Error{Family: family, Code: code, Message: message, Cause: cause}
}

// WithContext returns a copy of e with ctx merged into Context.
func (e *Error) WithContext(ctx map[string]any) *Error {
	cp := *e
	cp.Context = make(map[string]any, len(e.Context)+len(ctx))
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	for k, v := range ctx {
		cp.Context[k] = v
	}
	return &cp
}

// Family-scoped constructors, one per family, mirroring the shape of the
// teacher's per-provider error constructors (antropic.Error, MCPError,
// JSONRPCError) but collapsed into a single shared type.

func Serialization(code Code, message string) *Error {
	return New(FamilySerialization, code, message)
}

func Storage(code Code, message string) *Error {
	return New(FamilyStorage, code, message)
}

func Validation(code Code, message string) *Error {
	return New(FamilyValidation, code, message)
}

func Dispatcher(code Code, message string) *Error {
	return New(FamilyDispatcher, code, message)
}

func ABI(code Code, message string) *Error {
	return New(FamilyABI, code, message)
}
