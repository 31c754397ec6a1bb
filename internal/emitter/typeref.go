package emitter

import (
	"fmt"
	"strings"

	"github.com/rakunlabs/wasmsvc/internal/abi"
)

var scalarNames = map[string]abi.Scalar{
	"bool": abi.ScalarBool, "u8": abi.ScalarU8, "i8": abi.ScalarI8,
	"u16": abi.ScalarU16, "i16": abi.ScalarI16, "u32": abi.ScalarU32, "i32": abi.ScalarI32,
	"u64": abi.ScalarU64, "i64": abi.ScalarI64, "u128": abi.ScalarU128, "i128": abi.ScalarI128,
	"f32": abi.ScalarF32, "f64": abi.ScalarF64, "string": abi.ScalarString,
	"bytes": abi.ScalarBytes, "unit": abi.ScalarUnit,
}

// collectionHandleTypes are the bare field-type tags in a registerState
// fields object that mark a CRDT-backed field rather than a plain value.
// Each resolves to a fixed-size opaque-id alias pre-registered by Emit.
var collectionHandleTypes = map[string]string{
	"map": "MapHandle", "set": "SetHandle", "sequence": "SeqHandle",
	"counter": "CounterHandle", "lww": "LWWHandle",
	"user_storage": "UserStoreHandle", "frozen": "FrozenHandle",
}

// parseTypeRef parses one of the small type strings used in registration
// object literals: a bare scalar, option<T>, list<T>, set<T>, map<K,V>,
// or a bare identifier naming another registered type.
func parseTypeRef(s string) (abi.TypeRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return abi.TypeRef{}, fmt.Errorf("empty type string")
	}
	if scalar, ok := scalarNames[s]; ok {
		return abi.TypeRef{Kind: abi.RefScalar, Scalar: scalar}, nil
	}
	if open := strings.IndexByte(s, '<'); open >= 0 {
		if !strings.HasSuffix(s, ">") {
			return abi.TypeRef{}, fmt.Errorf("unterminated generic type %q", s)
		}
		head := s[:open]
		inner := s[open+1 : len(s)-1]
		switch head {
		case "option":
			elem, err := parseTypeRef(inner)
			if err != nil {
				return abi.TypeRef{}, err
			}
			return abi.Option(elem), nil
		case "list":
			elem, err := parseTypeRef(inner)
			if err != nil {
				return abi.TypeRef{}, err
			}
			return abi.List(elem), nil
		case "set":
			elem, err := parseTypeRef(inner)
			if err != nil {
				return abi.TypeRef{}, err
			}
			return abi.Set(elem), nil
		case "map":
			parts, err := splitTopLevelComma(inner)
			if err != nil {
				return abi.TypeRef{}, err
			}
			if len(parts) != 2 {
				return abi.TypeRef{}, fmt.Errorf("map<K,V> expects exactly two type arguments, got %q", inner)
			}
			key, err := parseTypeRef(parts[0])
			if err != nil {
				return abi.TypeRef{}, err
			}
			value, err := parseTypeRef(parts[1])
			if err != nil {
				return abi.TypeRef{}, err
			}
			return abi.Map(key, value), nil
		default:
			return abi.TypeRef{}, fmt.Errorf("unknown generic type constructor %q", head)
		}
	}
	// Bare identifier: a reference to a named record/variant/alias
	// registered elsewhere in the same source via registerType.
	return abi.Named(s), nil
}

// splitTopLevelComma splits s on commas that are not nested inside
// another <...> generic, so map<list<u8>,string> splits correctly.
func splitTopLevelComma(s string) ([]string, error) {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced '>' in %q", s)
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced '<' in %q", s)
	}
	parts = append(parts, s[start:])
	return parts, nil
}
