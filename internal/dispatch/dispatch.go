// Package dispatch implements the per-method dispatcher of §4.8 and its
// call state machine (§4.9): argument decode, state load, method
// invocation, persist/flush/persist, return-value encode, and the
// panic-on-error boundary that keeps a failed call from leaking
// partially-mutated state to the host.
package dispatch

import (
	"encoding/json"
	"log/slog"

	"github.com/rakunlabs/wasmsvc/internal/abi"
	"github.com/rakunlabs/wasmsvc/internal/abierr"
	"github.com/rakunlabs/wasmsvc/internal/codec"
	"github.com/rakunlabs/wasmsvc/internal/state"
)

// encodeJSONReturn serializes an already-JSON-compatible value tree
// (the output of codec.ToJSONCompatible) into the bytes written to the
// return register — plain JSON, since every value in the tree is one
// encoding/json already knows how to marshal (§4.5).
func encodeJSONReturn(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, abierr.Serialization(abierr.CodeTypeMismatch, "failed to marshal return value: "+err.Error())
	}
	return b, nil
}

// CallState names the states of §4.9's per-call state machine.
type CallState string

const (
	StateIdle       CallState = "idle"
	StateDecoding   CallState = "decoding"
	StateLoading    CallState = "loading"
	StateExecuting  CallState = "executing"
	StatePersisting CallState = "persisting"
	StateFlushing   CallState = "flushing"
	StateReturning  CallState = "returning"
	StatePanicked   CallState = "panicked"
)

// Host is the set of host imports the dispatcher needs beyond
// collections and storage: delta flush and the fatal-panic import.
type Host interface {
	// FlushDeltas commits the accumulated delta queue and reports
	// whether a commit actually occurred (§4.8 step 4).
	FlushDeltas() (committed bool, err error)
	// Panic surfaces a fatal failure to the host; it does not return
	// (conceptually — in Go it's the caller's job to stop after calling it).
	Panic(message string)
}

// Logic is the guest logic object a method is invoked against: a
// key-value bag of arguments in, state.Instance fields out.
type Logic interface {
	// Invoke calls the named method with decoded arguments against
	// the state instance, returning a method result (or nil for a
	// method with no declared return type) and any execution error.
	Invoke(method string, instance state.Instance, args any) (result any, err error)
}

// Method describes one exported method's static shape, mirroring
// abi.Method plus whether it's the init method.
type Method struct {
	Name   string
	Params []abi.TypeRef
	Return *abi.TypeRef
	Init   bool
	View   bool
}

// Dispatcher wires together the ABI manifest, the state engine, the
// logic implementation, and the host imports for one deployed guest.
type Dispatcher struct {
	Manifest *abi.Manifest
	Engine   *state.Engine
	Logic    Logic
	Host     Host
	Rehydrate state.Rehydrator
	Logger   *slog.Logger

	stateKey string
}

// New builds a Dispatcher. stateKey identifies the single root document
// this guest persists under (§4.7); production wiring uses a fixed key
// since one guest instance owns exactly one root.
func New(m *abi.Manifest, engine *state.Engine, logic Logic, host Host, rehydrate state.Rehydrator, logger *slog.Logger, stateKey string) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{Manifest: m, Engine: engine, Logic: logic, Host: host, Rehydrate: rehydrate, Logger: logger, stateKey: stateKey}
}

// Dispatch runs one method call end to end, implementing §4.8 and the
// §4.9 state machine. argBytes is the raw argument register contents;
// the return value is the raw return register contents (nil for a
// method with no return type, or for the init method).
func (d *Dispatcher) Dispatch(methodName string, argBytes []byte) (returnBytes []byte, callErr error) {
	method, err := d.lookupMethod(methodName)
	if err != nil {
		d.fail(methodName, StateIdle, err)
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			err := abierr.Dispatcher(abierr.CodeStateError, "panic during dispatch").WithContext(map[string]any{"recovered": r})
			d.fail(methodName, StatePanicked, err)
			callErr = err
		}
	}()

	if method.Init {
		return nil, d.dispatchInit(method, argBytes)
	}
	return d.dispatchOrdinary(method, argBytes)
}

func (d *Dispatcher) lookupMethod(name string) (Method, error) {
	m, ok := d.Manifest.Method(name)
	if !ok {
		return Method{}, abierr.Dispatcher(abierr.CodeMethodNotFound, "no such method: "+name)
	}
	params := make([]abi.TypeRef, len(m.Params))
	for i, f := range m.Params {
		params[i] = f.Type
	}
	return Method{Name: m.Name, Params: params, Return: m.Returns, Init: m.Init, View: m.View}, nil
}

// dispatchInit runs the §4.8 init path: refuse if prior state already
// exists; otherwise invoke, save, flush, and write nothing back.
func (d *Dispatcher) dispatchInit(method Method, argBytes []byte) error {
	_, _, exists, err := d.Engine.Load(d.stateKey, d.Rehydrate)
	if err != nil {
		return d.wrapFail(method.Name, StateLoading, err)
	}
	if exists {
		return d.wrapFail(method.Name, StateLoading, abierr.Dispatcher(abierr.CodeStateError, "init refused: prior state already present"))
	}

	args, err := d.decodeArgs(method, argBytes)
	if err != nil {
		return d.wrapFail(method.Name, StateDecoding, err)
	}

	result, err := d.Logic.Invoke(method.Name, state.Instance{}, args)
	if err != nil {
		return d.wrapFail(method.Name, StateExecuting, err)
	}
	instance, ok := result.(state.Instance)
	if !ok {
		return d.wrapFail(method.Name, StateExecuting, abierr.Dispatcher(abierr.CodeStateError, "init method did not return a state instance"))
	}

	if _, err := d.Engine.Save(d.stateKey, instance, state.Metadata{}); err != nil {
		return d.wrapFail(method.Name, StatePersisting, err)
	}
	if _, err := d.Host.FlushDeltas(); err != nil {
		return d.wrapFail(method.Name, StateFlushing, err)
	}
	return nil
}

// dispatchOrdinary runs the §4.8 steps 1-6 for a non-init method.
func (d *Dispatcher) dispatchOrdinary(method Method, argBytes []byte) ([]byte, error) {
	args, err := d.decodeArgs(method, argBytes)
	if err != nil {
		return nil, d.wrapFail(method.Name, StateDecoding, err)
	}

	instance, meta, _, err := d.Engine.Load(d.stateKey, d.Rehydrate)
	if err != nil {
		return nil, d.wrapFail(method.Name, StateLoading, err)
	}
	if instance == nil {
		instance = state.Instance{}
	}

	result, err := d.Logic.Invoke(method.Name, instance, args)
	if err != nil {
		return nil, d.wrapFail(method.Name, StateExecuting, err)
	}

	if !method.View {
		if updated, ok := result.(state.Instance); ok {
			instance = updated
		}
		if meta, err = d.Engine.Save(d.stateKey, instance, meta); err != nil {
			return nil, d.wrapFail(method.Name, StatePersisting, err)
		}
		if _, err := d.Host.FlushDeltas(); err != nil {
			return nil, d.wrapFail(method.Name, StateFlushing, err)
		}
		if _, err := d.Engine.Save(d.stateKey, instance, meta); err != nil {
			return nil, d.wrapFail(method.Name, StatePersisting, err)
		}
	}

	if method.Return == nil || result == nil {
		return nil, nil
	}
	jsonValue, err := codec.ToJSONCompatible(d.Manifest, method.Return, result)
	if err != nil {
		return nil, d.wrapFail(method.Name, StateReturning, err)
	}
	encoded, err := encodeJSONReturn(jsonValue)
	if err != nil {
		return nil, d.wrapFail(method.Name, StateReturning, err)
	}
	return encoded, nil
}

// decodeArgs implements §4.8 step 2 / the normalization rules: no
// declared params decodes nothing; one param decodes the register as
// that type; several params decode as a synthetic record whose fields
// are the declared parameters in order — the wire shape is each
// parameter's encoding concatenated back to back.
func (d *Dispatcher) decodeArgs(method Method, argBytes []byte) (any, error) {
	switch len(method.Params) {
	case 0:
		return nil, nil
	case 1:
		return codec.Decode(d.Manifest, method.Params[0], argBytes)
	default:
		dec := codec.NewDecoder(argBytes)
		values := make([]any, len(method.Params))
		for i, ref := range method.Params {
			v, err := dec.Decode(d.Manifest, ref)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		if dec.Remaining() != 0 {
			return nil, abierr.Serialization(abierr.CodeInvalidFormat, "trailing bytes after decoding synthetic argument record")
		}
		return values, nil
	}
}

func (d *Dispatcher) wrapFail(method string, at CallState, err error) error {
	d.fail(method, at, err)
	return err
}

func (d *Dispatcher) fail(method string, at CallState, err error) {
	d.Logger.Error("dispatch failed", "method", method, "state", string(at), "error", err)
	d.Host.Panic(err.Error())
}
