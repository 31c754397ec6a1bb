// Package abi implements the ABI Manifest data model of §3: named types
// (record / variant / bytes-alias / alias), a structural TypeRef, methods,
// events, and the state root. It is the single authoritative schema that
// drives the binary codec, the root-state engine, and the dispatcher.
package abi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rakunlabs/wasmsvc/internal/abierr"
)

// Scalar is one of the primitive TypeRef tags.
type Scalar string

const (
	ScalarBool   Scalar = "bool"
	ScalarU8     Scalar = "u8"
	ScalarI8     Scalar = "i8"
	ScalarU16    Scalar = "u16"
	ScalarI16    Scalar = "i16"
	ScalarU32    Scalar = "u32"
	ScalarI32    Scalar = "i32"
	ScalarU64    Scalar = "u64"
	ScalarI64    Scalar = "i64"
	ScalarU128   Scalar = "u128"
	ScalarI128   Scalar = "i128"
	ScalarF32    Scalar = "f32"
	ScalarF64    Scalar = "f64"
	ScalarString Scalar = "string"
	ScalarBytes  Scalar = "bytes"
	ScalarUnit   Scalar = "unit"
)

// RefKind discriminates the structural shape of a TypeRef.
type RefKind string

const (
	RefScalar RefKind = "scalar"
	RefOption RefKind = "option"
	RefList   RefKind = "list"
	RefMap    RefKind = "map"
	RefSet    RefKind = "set"
	RefNamed  RefKind = "named"
)

// TypeRef is either a scalar, an option<T>, a list<T>, a map<K,V>, a
// set<T>, or a named reference into the manifest's Types map.
type TypeRef struct {
	Kind RefKind `json:"kind"`

	Scalar Scalar `json:"scalar,omitempty"`

	Elem *TypeRef `json:"elem,omitempty"` // option/list/set element

	Key   *TypeRef `json:"key,omitempty"`   // map key
	Value *TypeRef `json:"value,omitempty"` // map value

	Name string `json:"name,omitempty"` // named reference
}

func Bool() TypeRef    { return TypeRef{Kind: RefScalar, Scalar: ScalarBool} }
func U8() TypeRef      { return TypeRef{Kind: RefScalar, Scalar: ScalarU8} }
func I8() TypeRef      { return TypeRef{Kind: RefScalar, Scalar: ScalarI8} }
func U16() TypeRef     { return TypeRef{Kind: RefScalar, Scalar: ScalarU16} }
func I16() TypeRef     { return TypeRef{Kind: RefScalar, Scalar: ScalarI16} }
func U32() TypeRef     { return TypeRef{Kind: RefScalar, Scalar: ScalarU32} }
func I32() TypeRef     { return TypeRef{Kind: RefScalar, Scalar: ScalarI32} }
func U64() TypeRef     { return TypeRef{Kind: RefScalar, Scalar: ScalarU64} }
func I64() TypeRef     { return TypeRef{Kind: RefScalar, Scalar: ScalarI64} }
func U128() TypeRef    { return TypeRef{Kind: RefScalar, Scalar: ScalarU128} }
func I128() TypeRef    { return TypeRef{Kind: RefScalar, Scalar: ScalarI128} }
func F32() TypeRef     { return TypeRef{Kind: RefScalar, Scalar: ScalarF32} }
func F64() TypeRef     { return TypeRef{Kind: RefScalar, Scalar: ScalarF64} }
func Str() TypeRef     { return TypeRef{Kind: RefScalar, Scalar: ScalarString} }
func Bytes() TypeRef   { return TypeRef{Kind: RefScalar, Scalar: ScalarBytes} }
func Unit() TypeRef    { return TypeRef{Kind: RefScalar, Scalar: ScalarUnit} }

func Option(elem TypeRef) TypeRef { return TypeRef{Kind: RefOption, Elem: &elem} }
func List(elem TypeRef) TypeRef   { return TypeRef{Kind: RefList, Elem: &elem} }
func Set(elem TypeRef) TypeRef    { return TypeRef{Kind: RefSet, Elem: &elem} }
func Map(key, value TypeRef) TypeRef {
	return TypeRef{Kind: RefMap, Key: &key, Value: &value}
}
func Named(name string) TypeRef { return TypeRef{Kind: RefNamed, Name: name} }

// Field is one record field: name, TypeRef, nullable flag.
type Field struct {
	Name     string  `json:"name"`
	Type     TypeRef `json:"type"`
	Nullable bool    `json:"nullable,omitempty"`
}

// Variant is one arm of a variant type; Payload is nil for a payloadless arm.
type Variant struct {
	Name    string   `json:"name"`
	Payload *TypeRef `json:"payload,omitempty"`
}

// TypeDefKind discriminates the four TypeDef shapes.
type TypeDefKind string

const (
	TypeDefRecord      TypeDefKind = "record"
	TypeDefVariant     TypeDefKind = "variant"
	TypeDefBytesAlias  TypeDefKind = "bytes_alias"
	TypeDefAlias       TypeDefKind = "alias"
)

// TypeDef is a named type definition: record, variant, fixed/variable
// bytes alias, or a plain alias for another TypeRef.
type TypeDef struct {
	Kind TypeDefKind `json:"kind"`

	Fields   []Field   `json:"fields,omitempty"`   // record
	Variants []Variant `json:"variants,omitempty"` // variant

	FixedSize int  `json:"fixed_size,omitempty"` // bytes_alias; exact length when Variable is false
	Variable  bool `json:"variable,omitempty"`   // bytes_alias

	Alias *TypeRef `json:"alias,omitempty"` // alias
}

// Method describes one exported logic-class method.
type Method struct {
	Name    string   `json:"name"`
	Params  []Field  `json:"params"`
	Returns *TypeRef `json:"returns,omitempty"`
	Init    bool     `json:"init,omitempty"`
	View    bool     `json:"view,omitempty"`
}

// Event describes one tagged event class.
type Event struct {
	Name    string   `json:"name"`
	Payload *TypeRef `json:"payload,omitempty"`
}

// Manifest is the single document produced per build (§3, §6).
type Manifest struct {
	Version   string             `json:"version"`
	Types     map[string]TypeDef `json:"types"`
	Methods   []Method           `json:"methods"`
	Events    []Event            `json:"events"`
	StateRoot string             `json:"state_root,omitempty"`
}

// New creates an empty manifest with an initialized Types map.
func New() *Manifest {
	return &Manifest{Types: make(map[string]TypeDef)}
}

// Resolve looks up a named type, returning an ABI/type_not_found error
// if it is absent — the manifest Invariant that every reference resolves.
func (m *Manifest) Resolve(name string) (TypeDef, error) {
	td, ok := m.Types[name]
	if !ok {
		return TypeDef{}, abierr.ABI(abierr.CodeTypeNotFound, fmt.Sprintf("type %q not found in manifest", name))
	}
	return td, nil
}

// Validate walks every TypeRef reachable from Types/Methods/Events and
// confirms named references resolve, and that at most one init method
// exists.
func (m *Manifest) Validate() error {
	var walk func(ref TypeRef) error
	walk = func(ref TypeRef) error {
		switch ref.Kind {
		case RefNamed:
			if _, err := m.Resolve(ref.Name); err != nil {
				return err
			}
		case RefOption, RefList, RefSet:
			if ref.Elem == nil {
				return abierr.ABI(abierr.CodeInvalidRef, "missing element type")
			}
			return walk(*ref.Elem)
		case RefMap:
			if ref.Key == nil || ref.Value == nil {
				return abierr.ABI(abierr.CodeInvalidRef, "missing map key/value type")
			}
			if err := walk(*ref.Key); err != nil {
				return err
			}
			return walk(*ref.Value)
		}
		return nil
	}

	for name, td := range m.Types {
		switch td.Kind {
		case TypeDefRecord:
			for _, f := range td.Fields {
				if err := walk(f.Type); err != nil {
					return fmt.Errorf("type %q field %q: %w", name, f.Name, err)
				}
			}
		case TypeDefVariant:
			for _, v := range td.Variants {
				if v.Payload != nil {
					if err := walk(*v.Payload); err != nil {
						return fmt.Errorf("type %q variant %q: %w", name, v.Name, err)
					}
				}
			}
		case TypeDefAlias:
			if td.Alias == nil {
				return abierr.ABI(abierr.CodeInvalidRef, fmt.Sprintf("type %q: alias has no target", name))
			}
			if err := walk(*td.Alias); err != nil {
				return fmt.Errorf("type %q: %w", name, err)
			}
		}
	}

	initCount := 0
	for _, meth := range m.Methods {
		if meth.Init {
			initCount++
		}
		for _, p := range meth.Params {
			if err := walk(p.Type); err != nil {
				return fmt.Errorf("method %q param %q: %w", meth.Name, p.Name, err)
			}
		}
		if meth.Returns != nil {
			if err := walk(*meth.Returns); err != nil {
				return fmt.Errorf("method %q return: %w", meth.Name, err)
			}
		}
	}
	if initCount > 1 {
		return abierr.ABI(abierr.CodeInvalidRef, fmt.Sprintf("manifest has %d init methods, at most one allowed", initCount))
	}

	for _, ev := range m.Events {
		if ev.Payload != nil {
			if err := walk(*ev.Payload); err != nil {
				return fmt.Errorf("event %q: %w", ev.Name, err)
			}
		}
	}

	return nil
}

// InitMethod returns the single init method, if any.
func (m *Manifest) InitMethod() (Method, bool) {
	for _, meth := range m.Methods {
		if meth.Init {
			return meth, true
		}
	}
	return Method{}, false
}

// Method looks up a method by name.
func (m *Manifest) Method(name string) (Method, bool) {
	for _, meth := range m.Methods {
		if meth.Name == name {
			return meth, true
		}
	}
	return Method{}, false
}

// CanonicalJSON returns the deterministic JSON encoding of the manifest:
// Types keys are sorted, and json.Marshal's struct-field order (which is
// source-declaration order, itself fixed by this file) is otherwise
// relied upon for Methods/Events/Fields/Variants ordering. Two manifests
// built from the same source produce byte-identical output (property 9).
func (m *Manifest) CanonicalJSON() ([]byte, error) {
	type canonical struct {
		Version   string             `json:"version"`
		Types     json.RawMessage    `json:"types"`
		Methods   []Method           `json:"methods"`
		Events    []Event            `json:"events"`
		StateRoot string             `json:"state_root,omitempty"`
	}

	names := make([]string, 0, len(m.Types))
	for name := range m.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	var typesBuf []byte
	typesBuf = append(typesBuf, '{')
	for i, name := range names {
		if i > 0 {
			typesBuf = append(typesBuf, ',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.Types[name])
		if err != nil {
			return nil, err
		}
		typesBuf = append(typesBuf, key...)
		typesBuf = append(typesBuf, ':')
		typesBuf = append(typesBuf, val...)
	}
	typesBuf = append(typesBuf, '}')

	c := canonical{
		Version:   m.Version,
		Types:     typesBuf,
		Methods:   m.Methods,
		Events:    m.Events,
		StateRoot: m.StateRoot,
	}
	return json.Marshal(c)
}

// ContentHash derives a reproducible version string from the manifest's
// canonical JSON (the SUPPLEMENT in SPEC_FULL.md §ABI sidecar versioning).
func (m *Manifest) ContentHash() (string, error) {
	data, err := m.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
