// Package codec implements the deterministic, length-prefixed binary
// encoding of §4.5, driven by an *abi.Manifest, plus the textual
// JSON-compatible return-value transform of the same section.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/rakunlabs/wasmsvc/internal/abi"
	"github.com/rakunlabs/wasmsvc/internal/abierr"
)

// Pair is one (key, value) entry of a map<K,V>, kept as an ordered slice
// rather than a Go map so iteration order (the wire contract) survives
// round-tripping even for non-string key types.
type Pair struct {
	Key   any
	Value any
}

// Variant is the canonical runtime representation of a value satisfying a
// variant TypeDef: a selected arm name plus an optional payload.
type Variant struct {
	Name    string
	Payload any
}

// Encoder accumulates encoded bytes for a single value tree.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// Bytes returns the accumulated encoding.
func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) writeByte(b byte) { e.buf = append(e.buf, b) }

func (e *Encoder) writeFixed(b []byte) { e.buf = append(e.buf, b...) }

func (e *Encoder) writeU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.writeFixed(b[:])
}

func (e *Encoder) writeU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.writeFixed(b[:])
}

// Encode appends value (which must satisfy ref per manifest m) to the
// encoder's buffer in field/declaration order.
func (e *Encoder) Encode(m *abi.Manifest, ref abi.TypeRef, value any) error {
	switch ref.Kind {
	case abi.RefScalar:
		return e.encodeScalar(ref.Scalar, value)
	case abi.RefOption:
		return e.encodeOption(m, *ref.Elem, value)
	case abi.RefList:
		return e.encodeList(m, *ref.Elem, value)
	case abi.RefSet:
		return e.encodeSet(m, *ref.Elem, value)
	case abi.RefMap:
		return e.encodeMap(m, *ref.Key, *ref.Value, value)
	case abi.RefNamed:
		td, err := m.Resolve(ref.Name)
		if err != nil {
			return err
		}
		return e.encodeNamed(m, ref.Name, td, value)
	default:
		return abierr.Serialization(abierr.CodeTypeMismatch, fmt.Sprintf("unknown TypeRef kind %q", ref.Kind))
	}
}

func typeMismatch(want string, value any) error {
	return abierr.Serialization(abierr.CodeTypeMismatch, fmt.Sprintf("expected %s, got %T", want, value))
}

func (e *Encoder) encodeScalar(s abi.Scalar, value any) error {
	switch s {
	case abi.ScalarBool:
		v, ok := value.(bool)
		if !ok {
			return typeMismatch("bool", value)
		}
		if v {
			e.writeByte(1)
		} else {
			e.writeByte(0)
		}
	case abi.ScalarU8:
		v, err := toUint(value, 8)
		if err != nil {
			return err
		}
		e.writeByte(byte(v))
	case abi.ScalarI8:
		v, err := toInt(value, 8)
		if err != nil {
			return err
		}
		e.writeByte(byte(int8(v)))
	case abi.ScalarU16:
		v, err := toUint(value, 16)
		if err != nil {
			return err
		}
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		e.writeFixed(b[:])
	case abi.ScalarI16:
		v, err := toInt(value, 16)
		if err != nil {
			return err
		}
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(int16(v)))
		e.writeFixed(b[:])
	case abi.ScalarU32:
		v, err := toUint(value, 32)
		if err != nil {
			return err
		}
		e.writeU32(uint32(v))
	case abi.ScalarI32:
		v, err := toInt(value, 32)
		if err != nil {
			return err
		}
		e.writeU32(uint32(int32(v)))
	case abi.ScalarU64:
		v, err := toUint(value, 64)
		if err != nil {
			return err
		}
		e.writeU64(v)
	case abi.ScalarI64:
		v, err := toInt(value, 64)
		if err != nil {
			return err
		}
		e.writeU64(uint64(v))
	case abi.ScalarU128:
		lo, hi, err := toUint128(value)
		if err != nil {
			return err
		}
		e.writeU64(lo)
		e.writeU64(hi)
	case abi.ScalarI128:
		lo, hi, err := toInt128(value)
		if err != nil {
			return err
		}
		e.writeU64(lo)
		e.writeU64(hi)
	case abi.ScalarF32:
		v, ok := toFloat(value)
		if !ok {
			return typeMismatch("f32", value)
		}
		e.writeU32(math.Float32bits(float32(v)))
	case abi.ScalarF64:
		v, ok := toFloat(value)
		if !ok {
			return typeMismatch("f64", value)
		}
		e.writeU64(math.Float64bits(v))
	case abi.ScalarString:
		v, ok := value.(string)
		if !ok {
			return typeMismatch("string", value)
		}
		e.writeU32(uint32(len(v)))
		e.writeFixed([]byte(v))
	case abi.ScalarBytes:
		v, ok := value.([]byte)
		if !ok {
			return typeMismatch("bytes", value)
		}
		e.writeU32(uint32(len(v)))
		e.writeFixed(v)
	case abi.ScalarUnit:
		// zero bytes
	default:
		return abierr.Serialization(abierr.CodeTypeMismatch, fmt.Sprintf("unknown scalar %q", s))
	}
	return nil
}

func (e *Encoder) encodeOption(m *abi.Manifest, elem abi.TypeRef, value any) error {
	if value == nil {
		e.writeByte(0)
		return nil
	}
	e.writeByte(1)
	return e.Encode(m, elem, value)
}

func toSlice(value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case nil:
		return nil, nil
	default:
		return nil, typeMismatch("list/set", value)
	}
}

func (e *Encoder) encodeList(m *abi.Manifest, elem abi.TypeRef, value any) error {
	items, err := toSlice(value)
	if err != nil {
		return err
	}
	e.writeU32(uint32(len(items)))
	for _, it := range items {
		if err := e.Encode(m, elem, it); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeSet(m *abi.Manifest, elem abi.TypeRef, value any) error {
	// Wire-identical to a list: length-prefixed elements in iteration order.
	return e.encodeList(m, elem, value)
}

func (e *Encoder) encodeMap(m *abi.Manifest, key, val abi.TypeRef, value any) error {
	pairs, ok := value.([]Pair)
	if !ok {
		return typeMismatch("[]codec.Pair", value)
	}
	e.writeU32(uint32(len(pairs)))
	for _, p := range pairs {
		if err := e.Encode(m, key, p.Key); err != nil {
			return err
		}
		if err := e.Encode(m, val, p.Value); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeNamed(m *abi.Manifest, name string, td abi.TypeDef, value any) error {
	switch td.Kind {
	case abi.TypeDefRecord:
		fields, ok := value.(map[string]any)
		if !ok {
			return typeMismatch("map[string]any (record "+name+")", value)
		}
		for _, f := range td.Fields {
			fv, present := fields[f.Name]
			if !present && !f.Nullable {
				return abierr.Validation(abierr.CodeRequiredField, fmt.Sprintf("record %q missing field %q", name, f.Name))
			}
			if err := e.Encode(m, f.Type, fv); err != nil {
				return fmt.Errorf("record %q field %q: %w", name, f.Name, err)
			}
		}
		return nil
	case abi.TypeDefVariant:
		return e.encodeVariant(m, name, td, value)
	case abi.TypeDefBytesAlias:
		b, ok := value.([]byte)
		if !ok {
			return typeMismatch("bytes", value)
		}
		if !td.Variable {
			if td.FixedSize != 0 && len(b) != td.FixedSize {
				return abierr.Validation(abierr.CodeOutOfRange, fmt.Sprintf("bytes alias %q expects %d bytes, got %d", name, td.FixedSize, len(b)))
			}
			e.writeFixed(b)
			return nil
		}
		e.writeU32(uint32(len(b)))
		e.writeFixed(b)
		return nil
	case abi.TypeDefAlias:
		return e.Encode(m, *td.Alias, value)
	default:
		return abierr.ABI(abierr.CodeUnsupportedType, fmt.Sprintf("unsupported type def kind %q", td.Kind))
	}
}

// normalizeVariant accepts either a Variant, or a plain string shorthand
// (valid only for a payloadless arm — §8 "Variant from string form"), or
// a map[string]any{"type": name, "value": payload}.
func normalizeVariant(value any) (Variant, error) {
	switch v := value.(type) {
	case Variant:
		return v, nil
	case string:
		return Variant{Name: v}, nil
	case map[string]any:
		name, _ := v["type"].(string)
		if name == "" {
			return Variant{}, abierr.Serialization(abierr.CodeTypeMismatch, "variant object missing \"type\"")
		}
		payload, hasPayload := v["value"]
		if !hasPayload {
			return Variant{Name: name}, nil
		}
		return Variant{Name: name, Payload: payload}, nil
	default:
		return Variant{}, typeMismatch("abi variant", value)
	}
}

func (e *Encoder) encodeVariant(m *abi.Manifest, name string, td abi.TypeDef, value any) error {
	vv, err := normalizeVariant(value)
	if err != nil {
		return err
	}
	for ordinal, arm := range td.Variants {
		if arm.Name != vv.Name {
			continue
		}
		if arm.Payload == nil {
			if vv.Payload != nil {
				return abierr.Serialization(abierr.CodeVariantMismatch,
					fmt.Sprintf("variant %q arm %q carries no payload but a value was supplied", name, arm.Name))
			}
			e.writeByte(byte(ordinal))
			return nil
		}
		if vv.Payload == nil {
			return abierr.Serialization(abierr.CodeVariantMismatch,
				fmt.Sprintf("variant %q arm %q requires a payload", name, arm.Name))
		}
		e.writeByte(byte(ordinal))
		return e.Encode(m, *arm.Payload, vv.Payload)
	}
	return abierr.Serialization(abierr.CodeVariantMismatch, fmt.Sprintf("variant %q has no arm named %q", name, vv.Name))
}

// Encode is the package-level convenience wrapper: encode value against
// ref (per manifest m) and return the raw bytes.
func Encode(m *abi.Manifest, ref abi.TypeRef, value any) ([]byte, error) {
	e := NewEncoder()
	if err := e.Encode(m, ref, value); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}
