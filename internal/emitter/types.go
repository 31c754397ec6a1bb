// Package emitter implements the ABI emitter and validator of §4.1: a
// single AST walk over a guest source file that locates the registered
// state root, the logic surface bound to it, and any tagged events, and
// turns them into an abi.Manifest plus a list of warnings/errors.
//
// The guest source format replaces class decorators with the explicit
// top-level registration calls the redesign in SPEC_FULL.md calls for:
//
//	registerState("Counter", { total: "counter", tags: "set" })
//	registerLogic("CounterLogic", "Counter", {
//	  init:      { returns: "Counter", init: true },
//	  increment: { params: { amount: "u64" } },
//	  total:     { returns: "u64", view: true },
//	})
//	registerEvent("Incremented", "u64")
//
// Field/param/return types are small strings parsed by parseTypeRef;
// state-root fields name one of the seven collection kinds bare (map,
// set, sequence, counter, lww, user_storage, frozen) to declare a
// CRDT-backed field, or any other type string for a plain scalar value.
package emitter

import (
	"fmt"

	"github.com/rakunlabs/wasmsvc/internal/abi"
)

// Severity distinguishes a warning (the manifest still builds) from an
// error (Emit fails outright).
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is one finding from the AST walk, carrying the source line
// it was raised against so a build failure points somewhere useful.
type Diagnostic struct {
	Severity Severity
	Message  string
	Line     int
}

// Result is everything one Emit call produces: the manifest (nil if a
// hard error prevented building one) plus every diagnostic collected
// along the way, warnings included.
type Result struct {
	Manifest    *abi.Manifest
	Diagnostics []Diagnostic
}

// HasErrors reports whether any diagnostic in r is an error.
func (r *Result) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (r *Result) warn(line int, format string, args ...any) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Severity: SeverityWarning, Message: fmt.Sprintf(format, args...), Line: line})
}

func (r *Result) errorf(line int, format string, args ...any) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(format, args...), Line: line})
}
