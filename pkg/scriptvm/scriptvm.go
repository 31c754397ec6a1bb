// Package scriptvm is a thin, shared wrapper around goja for the
// embedding concerns internal/codegen (GojaCompiler) and
// internal/hostsim (ScriptLogic) need: a runtime that can parse/run a
// guest script and report a syntax or runtime error without panicking
// the host process. It is modeled on the teacher's
// internal/service/workflow.SetupGojaVM, generalized from
// workflow-node scripting to guest-script validation.
package scriptvm

import (
	"fmt"

	"github.com/dop251/goja"
)

// Runtime wraps a plain goja.Runtime. It sets no globals of its own;
// callers bind what they need through Underlying.
type Runtime struct {
	vm *goja.Runtime
}

// New builds a Runtime over a fresh goja.Runtime; only goja's standard
// built-ins (JSON among them) are defined.
func New() *Runtime {
	vm := goja.New()
	return &Runtime{vm: vm}
}

// Underlying exposes the wrapped goja.Runtime for callers (like
// internal/hostsim's ScriptLogic) that bind globals or call functions
// on the VM directly.
func (r *Runtime) Underlying() *goja.Runtime {
	return r.vm
}

// Check parses and evaluates source, returning a descriptive error if
// the script doesn't parse or throws during its top-level evaluation.
// This is the "does this bundle compile" check internal/codegen's
// GojaCompiler runs before treating the bundle as ready to embed.
func (r *Runtime) Check(source string) error {
	if _, err := r.vm.RunString(source); err != nil {
		return fmt.Errorf("scriptvm: script evaluation failed: %w", err)
	}
	return nil
}

// Global looks up a top-level binding the script registered (a
// function or value set via a registration call), returning ok=false
// if nothing by that name exists.
func (r *Runtime) Global(name string) (goja.Value, bool) {
	v := r.vm.Get(name)
	if v == nil || goja.IsUndefined(v) {
		return nil, false
	}
	return v, true
}
