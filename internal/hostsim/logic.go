package hostsim

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/rakunlabs/wasmsvc/internal/collections"
	"github.com/rakunlabs/wasmsvc/internal/state"
	"github.com/rakunlabs/wasmsvc/pkg/scriptvm"
)

// ScriptLogic is the dispatch.Logic the host simulator runs a compiled
// guest against: rather than a real WASM instance, it re-evaluates the
// bundled script in a fresh scriptvm.Runtime per call (mirroring
// codegen's generated C wrapper, which also instantiates a fresh VM
// per exported method, §4.3) and invokes the top-level function the
// method's name is bound to. registerState/registerLogic/registerEvent
// calls in the bundle re-run harmlessly — they only build an ABI
// manifest the emitter already extracted ahead of time.
//
// State scalar fields round-trip as plain JS globals. Collection
// fields round-trip as the same Go collections proxy values
// (OrderedMap, Counter, ...) passed directly into the VM: goja exposes
// Go struct values natively, so a guest script calling e.g.
// `state.items.Set(...)` is calling straight through to the Go
// collections.Host — full CRDT merge semantics stay exactly where
// §1's Non-goals put them (the host's job, not this simulator's).
type ScriptLogic struct {
	BundledSource string
	Host          collections.Host
	Tracker       *collections.Tracker
}

func NewScriptLogic(bundledSource string, host collections.Host, tracker *collections.Tracker) *ScriptLogic {
	return &ScriptLogic{BundledSource: bundledSource, Host: host, Tracker: tracker}
}

func (l *ScriptLogic) Invoke(method string, instance state.Instance, args any) (any, error) {
	rt := scriptvm.New()
	vm := rt.Underlying()

	l.bindConstructors(vm)
	// The bundle's registration calls only describe the ABI; bind them
	// as no-ops so re-evaluating the bundle does not throw.
	for _, name := range []string{"registerState", "registerLogic", "registerEvent", "registerType"} {
		vm.Set(name, func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	}
	for name, v := range instance {
		if err := vm.Set(name, v); err != nil {
			return nil, fmt.Errorf("hostsim: bind state field %q: %w", name, err)
		}
	}

	if err := rt.Check(l.BundledSource); err != nil {
		return nil, err
	}

	fnValue, ok := rt.Global(method)
	if !ok {
		return nil, fmt.Errorf("hostsim: method %q not defined in bundle", method)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, fmt.Errorf("hostsim: global %q is not callable", method)
	}

	callArgs := l.marshalArgs(vm, args)
	result, err := fn(goja.Undefined(), callArgs...)
	if err != nil {
		return nil, fmt.Errorf("hostsim: method %q: %w", method, err)
	}

	return asInstance(result.Export()), nil
}

// asInstance rewraps a plain map[string]interface{} (what goja.Export
// produces for a JS object literal) into state.Instance: dispatch's
// init/save paths type-assert the logic result against the named
// state.Instance type, which a bare map[string]interface{} never
// satisfies even though its underlying type is identical.
func asInstance(exported any) any {
	if m, ok := exported.(map[string]interface{}); ok {
		return state.Instance(m)
	}
	return exported
}

// marshalArgs converts the decoded argument value (nil, a single
// value, or a []any for a multi-parameter method — the same shapes
// dispatch.decodeArgs produces) into goja call arguments.
func (l *ScriptLogic) marshalArgs(vm *goja.Runtime, args any) []goja.Value {
	if args == nil {
		return nil
	}
	if values, ok := args.([]any); ok {
		out := make([]goja.Value, len(values))
		for i, v := range values {
			out[i] = vm.ToValue(v)
		}
		return out
	}
	return []goja.Value{vm.ToValue(args)}
}

// bindConstructors exposes the seven collection constructors as JS
// globals (newMap/newSet/newSequence/newCounter/newLWWRegister/
// newUserStore/newFrozenStore) so an init method can populate fresh
// state, mirroring how registerState declares which fields are
// CRDT-backed.
func (l *ScriptLogic) bindConstructors(vm *goja.Runtime) {
	vm.Set("newMap", func() collections.OrderedMap { return collections.NewOrderedMap(l.Host, l.Tracker) })
	vm.Set("newSet", func() collections.OrderedSet { return collections.NewOrderedSet(l.Host, l.Tracker) })
	vm.Set("newSequence", func() collections.Sequence { return collections.NewSequence(l.Host, l.Tracker) })
	vm.Set("newCounter", func() collections.Counter { return collections.NewCounter(l.Host, l.Tracker) })
	vm.Set("newLWWRegister", func() collections.LWWRegister { return collections.NewLWWRegister(l.Host, l.Tracker) })
	vm.Set("newUserStore", func() collections.UserStore { return collections.NewUserStore(l.Host, l.Tracker) })
	vm.Set("newFrozenStore", func() collections.FrozenStore { return collections.NewFrozenStore(l.Host, l.Tracker) })
}
