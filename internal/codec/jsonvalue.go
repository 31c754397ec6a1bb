package codec

import (
	"fmt"
	"math"
	"math/big"
	"reflect"

	"github.com/rakunlabs/wasmsvc/internal/abi"
)

// circularSentinel is emitted at the point a genuine reference cycle is
// detected while walking a return value, per §4.5 and the "Circular
// return value" scenario of §8. Shared (non-cyclic) references are not
// flagged — they appear verbatim at every occurrence.
const circularSentinel = "[Circular]"

// ToJSONCompatible converts value (satisfying ref, if ref is non-nil) into
// a tree built only of the types encoding/json already knows how to
// marshal: map[string]any, []any, string, float64, bool, nil, plus the
// Go integer values of u8–u32/i8–i32 scalars, passed through as-is. Wide
// integers (u64/i64/u128/i128) become decimal strings; byte slices
// become []any of ints; NaN/Inf become nil; variants become
// {"type": name, "value": payload}; actual reference cycles are cut with
// a "[Circular]" sentinel, while shared-but-acyclic references are
// preserved verbatim at each occurrence (§4.5).
func ToJSONCompatible(m *abi.Manifest, ref *abi.TypeRef, value any) (any, error) {
	seen := make(map[uintptr]bool)
	path := make(map[uintptr]bool)
	if ref != nil {
		return toJSONTyped(m, *ref, value, seen, path)
	}
	return toJSONGeneric(value, seen, path), nil
}

func ptrKey(v reflect.Value) (uintptr, bool) {
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr:
		if v.IsNil() {
			return 0, false
		}
		return v.Pointer(), true
	}
	return 0, false
}

func toJSONTyped(m *abi.Manifest, ref abi.TypeRef, value any, seen, path map[uintptr]bool) (any, error) {
	switch ref.Kind {
	case abi.RefScalar:
		return scalarToJSON(ref.Scalar, value)
	case abi.RefOption:
		if value == nil {
			return nil, nil
		}
		return toJSONTyped(m, *ref.Elem, value, seen, path)
	case abi.RefList, abi.RefSet:
		items, err := toSlice(value)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, it := range items {
			v, err := toJSONTyped(m, *ref.Elem, it, seen, path)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case abi.RefMap:
		pairs, ok := value.([]Pair)
		if !ok {
			return nil, typeMismatch("[]codec.Pair", value)
		}
		out := make([]any, len(pairs))
		for i, p := range pairs {
			k, err := toJSONTyped(m, *ref.Key, p.Key, seen, path)
			if err != nil {
				return nil, err
			}
			v, err := toJSONTyped(m, *ref.Value, p.Value, seen, path)
			if err != nil {
				return nil, err
			}
			out[i] = map[string]any{"key": k, "value": v}
		}
		return out, nil
	case abi.RefNamed:
		td, err := m.Resolve(ref.Name)
		if err != nil {
			return nil, err
		}
		return namedToJSON(m, ref.Name, td, value, seen, path)
	default:
		return nil, typeMismatch("TypeRef", value)
	}
}

func scalarToJSON(s abi.Scalar, value any) (any, error) {
	switch s {
	case abi.ScalarU64:
		v, err := toUint(value, 64)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("%d", v), nil
	case abi.ScalarI64:
		v, err := toInt(value, 64)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("%d", v), nil
	case abi.ScalarU128:
		lo, hi, err := toUint128(value)
		if err != nil {
			return nil, err
		}
		return bigFromHalves(lo, hi).String(), nil
	case abi.ScalarI128:
		lo, hi, err := toInt128(value)
		if err != nil {
			return nil, err
		}
		return signedFromHalves(lo, hi).String(), nil
	case abi.ScalarBytes:
		b, ok := value.([]byte)
		if !ok {
			return nil, typeMismatch("bytes", value)
		}
		out := make([]any, len(b))
		for i, by := range b {
			out[i] = float64(by)
		}
		return out, nil
	case abi.ScalarF32, abi.ScalarF64:
		f, ok := toFloat(value)
		if !ok {
			return nil, typeMismatch("float", value)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, nil
		}
		return f, nil
	case abi.ScalarUnit:
		return nil, nil
	default:
		// bool, small ints, string pass through as-is (JSON already knows them).
		return value, nil
	}
}

func namedToJSON(m *abi.Manifest, name string, td abi.TypeDef, value any, seen, path map[uintptr]bool) (any, error) {
	switch td.Kind {
	case abi.TypeDefRecord:
		fields, ok := value.(map[string]any)
		if !ok {
			return nil, typeMismatch("record "+name, value)
		}
		rv := reflect.ValueOf(fields)
		if key, ok := ptrKey(rv); ok {
			if path[key] {
				return circularSentinel, nil
			}
			if !seen[key] {
				seen[key] = true
				path[key] = true
				defer delete(path, key)
			}
		}
		out := make(map[string]any, len(td.Fields))
		for _, f := range td.Fields {
			v, err := toJSONTyped(m, f.Type, fields[f.Name], seen, path)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}
			out[f.Name] = v
		}
		return out, nil
	case abi.TypeDefVariant:
		vv, err := normalizeVariant(value)
		if err != nil {
			return nil, err
		}
		for _, arm := range td.Variants {
			if arm.Name != vv.Name {
				continue
			}
			out := map[string]any{"type": arm.Name}
			if arm.Payload != nil {
				pv, err := toJSONTyped(m, *arm.Payload, vv.Payload, seen, path)
				if err != nil {
					return nil, err
				}
				out["value"] = pv
			}
			return out, nil
		}
		return nil, fmt.Errorf("variant %q has no arm %q", name, vv.Name)
	case abi.TypeDefBytesAlias:
		return scalarToJSON(abi.ScalarBytes, value)
	case abi.TypeDefAlias:
		return toJSONTyped(m, *td.Alias, value, seen, path)
	default:
		return nil, typeMismatch("TypeDef", value)
	}
}

// toJSONGeneric walks an untyped value tree (the shape a scripting-VM
// return value takes before any ABI guidance is available) converting it
// to JSON-safe primitives and cutting actual cycles with the sentinel.
func toJSONGeneric(value any, seen, path map[uintptr]bool) any {
	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return v
	case *big.Int:
		return v.String()
	case []byte:
		out := make([]any, len(v))
		for i, b := range v {
			out[i] = float64(b)
		}
		return out
	case map[string]any:
		rv := reflect.ValueOf(v)
		key, hasKey := ptrKey(rv)
		if hasKey && path[key] {
			return circularSentinel
		}
		if hasKey {
			path[key] = true
			defer delete(path, key)
		}
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = toJSONGeneric(val, seen, path)
		}
		return out
	case []any:
		rv := reflect.ValueOf(v)
		key, hasKey := ptrKey(rv)
		if hasKey && path[key] {
			return circularSentinel
		}
		if hasKey {
			path[key] = true
			defer delete(path, key)
		}
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = toJSONGeneric(item, seen, path)
		}
		return out
	default:
		return v
	}
}
