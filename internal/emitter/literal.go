package emitter

import (
	"fmt"

	"github.com/dop251/goja/ast"
)

// literalValue evaluates a constant expression from a registration call
// argument into a plain Go value: string, float64, bool, nil, []any
// (array literal), or []kv (object literal, order preserved). Anything
// requiring runtime evaluation (a variable reference, a function call)
// is rejected — registration arguments must be literals so the emitter
// never has to execute guest code to read the ABI shape.
func literalValue(expr ast.Expression) (any, error) {
	switch e := expr.(type) {
	case *ast.StringLiteral:
		return string(e.Value), nil
	case *ast.NumberLiteral:
		return e.Value, nil
	case *ast.BooleanLiteral:
		return e.Value, nil
	case *ast.NullLiteral:
		return nil, nil
	case *ast.ObjectLiteral:
		return literalObjectFields(e)
	case *ast.ArrayLiteral:
		out := make([]any, 0, len(e.Value))
		for _, el := range e.Value {
			if el == nil {
				out = append(out, nil)
				continue
			}
			v, err := literalValue(el)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a literal (string/number/bool/object/array), got %T", expr)
	}
}

func literalString(expr ast.Expression) (string, error) {
	v, err := literalValue(expr)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected a string literal, got %T", v)
	}
	return s, nil
}

// literalObject evaluates expr as an object literal and returns its
// fields in source declaration order.
func literalObject(expr ast.Expression) ([]kv, error) {
	obj, ok := expr.(*ast.ObjectLiteral)
	if !ok {
		return nil, fmt.Errorf("expected an object literal, got %T", expr)
	}
	return literalObjectFields(obj)
}

func literalObjectFields(obj *ast.ObjectLiteral) ([]kv, error) {
	out := make([]kv, 0, len(obj.Value))
	for _, prop := range obj.Value {
		keyed, ok := prop.(*ast.PropertyKeyed)
		if !ok {
			return nil, fmt.Errorf("unsupported object literal property %T (only plain key: value pairs are allowed)", prop)
		}
		name, err := propertyKeyName(keyed.Key)
		if err != nil {
			return nil, err
		}
		val, err := literalValue(keyed.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out = append(out, kv{key: name, value: val})
	}
	return out, nil
}

// propertyKeyName extracts the plain name from an object literal key,
// which the parser represents as either an Identifier ({foo: ...}) or a
// StringLiteral ({"foo": ...}).
func propertyKeyName(key ast.Expression) (string, error) {
	switch k := key.(type) {
	case *ast.Identifier:
		return string(k.Name), nil
	case *ast.StringLiteral:
		return string(k.Value), nil
	default:
		return "", fmt.Errorf("unsupported object literal key %T", key)
	}
}
