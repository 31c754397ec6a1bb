package emitter

import (
	"fmt"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"

	"github.com/rakunlabs/wasmsvc/internal/abi"
)

// builtinHandleTypes pre-registers the seven collection-handle aliases a
// state field can reference: each is a fixed 32-byte opaque blob (the
// collection id), matching §3's "Collection identifier. A 32-byte
// opaque blob" — the ABI layer never needs to see inside a collection,
// only to document that a field is one.
func builtinHandleTypes() map[string]abi.TypeDef {
	out := make(map[string]abi.TypeDef, len(collectionHandleTypes))
	for _, name := range collectionHandleTypes {
		out[name] = abi.TypeDef{Kind: abi.TypeDefBytesAlias, FixedSize: 32}
	}
	return out
}

// stateDecl/logicDecl/eventDecl/typeDecl are the raw registration calls
// found during the walk, before they're resolved into manifest entries
// (resolution happens after the whole program is walked so order of
// declaration in the source doesn't matter).
type stateDecl struct {
	name   string
	fields []kv
	line   int
}

type logicDecl struct {
	name      string
	stateName string
	methods   []kv
	line      int
}

type eventDecl struct {
	name    string
	payload string
	hasPay  bool
	line    int
}

type typeDecl struct {
	name string
	def  any // map[string]any decoded from the registerType object literal
	line int
}

// kv preserves object-literal declaration order, which record/param
// field order depends on (§3: field order is part of the wire layout).
type kv struct {
	key   string
	value any
}

func kvLookup(fields []kv, key string) (any, bool) {
	for _, f := range fields {
		if f.key == key {
			return f.value, true
		}
	}
	return nil, false
}

// Emit walks filename's source once and builds an abi.Manifest from its
// registerState/registerLogic/registerEvent/registerType calls (§4.1).
// It never writes to disk; callers are responsible for persisting the
// returned manifest as the ABI JSON sidecar / C header.
func Emit(filename string, src []byte) (*Result, error) {
	prog, err := parser.ParseFile(nil, filename, string(src), 0)
	if err != nil {
		return nil, fmt.Errorf("emitter: parse %s: %w", filename, err)
	}

	res := &Result{}
	line := func(idx ast.Idx) int {
		if prog.File == nil {
			return 0
		}
		return prog.File.Position(idx).Line
	}

	var states []stateDecl
	var logics []logicDecl
	var events []eventDecl
	var types []typeDecl

	for _, stmt := range prog.Body {
		exprStmt, ok := stmt.(*ast.ExpressionStatement)
		if !ok {
			continue
		}
		call, ok := exprStmt.Expression.(*ast.CallExpression)
		if !ok {
			continue
		}
		callee, ok := call.Callee.(*ast.Identifier)
		if !ok {
			continue
		}
		ln := line(call.Idx0())

		switch string(callee.Name) {
		case "registerState":
			if len(call.ArgumentList) != 2 {
				res.errorf(ln, "registerState expects (name, fields), got %d arguments", len(call.ArgumentList))
				continue
			}
			name, err := literalString(call.ArgumentList[0])
			if err != nil {
				res.errorf(ln, "registerState name: %v", err)
				continue
			}
			fields, err := literalObject(call.ArgumentList[1])
			if err != nil {
				res.errorf(ln, "registerState %q fields: %v", name, err)
				continue
			}
			states = append(states, stateDecl{name: name, fields: fields, line: ln})

		case "registerLogic":
			if len(call.ArgumentList) != 3 {
				res.errorf(ln, "registerLogic expects (name, stateName, methods), got %d arguments", len(call.ArgumentList))
				continue
			}
			name, err := literalString(call.ArgumentList[0])
			if err != nil {
				res.errorf(ln, "registerLogic name: %v", err)
				continue
			}
			stateName, err := literalString(call.ArgumentList[1])
			if err != nil {
				res.errorf(ln, "registerLogic %q stateName: %v", name, err)
				continue
			}
			methods, err := literalObject(call.ArgumentList[2])
			if err != nil {
				res.errorf(ln, "registerLogic %q methods: %v", name, err)
				continue
			}
			logics = append(logics, logicDecl{name: name, stateName: stateName, methods: methods, line: ln})

		case "registerEvent":
			if len(call.ArgumentList) < 1 || len(call.ArgumentList) > 2 {
				res.errorf(ln, "registerEvent expects (name[, payload]), got %d arguments", len(call.ArgumentList))
				continue
			}
			name, err := literalString(call.ArgumentList[0])
			if err != nil {
				res.errorf(ln, "registerEvent name: %v", err)
				continue
			}
			ev := eventDecl{name: name, line: ln}
			if len(call.ArgumentList) == 2 {
				payload, err := literalString(call.ArgumentList[1])
				if err != nil {
					res.errorf(ln, "registerEvent %q payload: %v", name, err)
					continue
				}
				ev.payload, ev.hasPay = payload, true
			}
			events = append(events, ev)

		case "registerType":
			if len(call.ArgumentList) != 2 {
				res.errorf(ln, "registerType expects (name, def), got %d arguments", len(call.ArgumentList))
				continue
			}
			name, err := literalString(call.ArgumentList[0])
			if err != nil {
				res.errorf(ln, "registerType name: %v", err)
				continue
			}
			def, err := literalValue(call.ArgumentList[1])
			if err != nil {
				res.errorf(ln, "registerType %q def: %v", name, err)
				continue
			}
			types = append(types, typeDecl{name: name, def: def, line: ln})
		}
	}

	if res.HasErrors() {
		return res, nil
	}

	m := abi.New()
	for name, td := range builtinHandleTypes() {
		m.Types[name] = td
	}

	resolveTypes(m, types, res)
	resolveState(m, states, res)
	resolveLogic(m, states, logics, res)
	resolveEvents(m, events, res)

	if len(states) != 1 {
		res.errorf(0, "exactly one registerState call is required, found %d", len(states))
	}
	if len(logics) != 1 {
		res.errorf(0, "exactly one registerLogic call is required, found %d", len(logics))
	}

	if res.HasErrors() {
		return res, nil
	}

	if err := m.Validate(); err != nil {
		res.errorf(0, "manifest validation failed: %v", err)
		return res, nil
	}
	hash, err := m.ContentHash()
	if err != nil {
		return nil, err
	}
	m.Version = hash

	res.Manifest = m
	return res, nil
}

func resolveTypes(m *abi.Manifest, decls []typeDecl, res *Result) {
	for _, d := range decls {
		obj, ok := d.def.([]kv)
		if !ok {
			res.errorf(d.line, "registerType %q: def must be an object literal", d.name)
			continue
		}
		kindV, _ := kvLookup(obj, "kind")
		kind, _ := kindV.(string)
		switch kind {
		case "record":
			fieldsV, _ := kvLookup(obj, "fields")
			fieldList, _ := fieldsV.([]any)
			var fields []abi.Field
			for _, raw := range fieldList {
				fobj, ok := raw.([]kv)
				if !ok {
					res.errorf(d.line, "registerType %q: each record field must be an object", d.name)
					continue
				}
				fname, _ := firstString(fobj, "name")
				ftype, _ := firstString(fobj, "type")
				ref, err := parseTypeRef(ftype)
				if err != nil {
					res.errorf(d.line, "registerType %q field %q: %v", d.name, fname, err)
					continue
				}
				nullable, _ := kvLookup(fobj, "nullable")
				nb, _ := nullable.(bool)
				fields = append(fields, abi.Field{Name: fname, Type: ref, Nullable: nb})
			}
			m.Types[d.name] = abi.TypeDef{Kind: abi.TypeDefRecord, Fields: fields}

		case "variant":
			variantsV, _ := kvLookup(obj, "variants")
			variantList, _ := variantsV.([]any)
			var variants []abi.Variant
			for _, raw := range variantList {
				vobj, ok := raw.([]kv)
				if !ok {
					res.errorf(d.line, "registerType %q: each variant arm must be an object", d.name)
					continue
				}
				vname, _ := firstString(vobj, "name")
				v := abi.Variant{Name: vname}
				if payloadS, ok := firstString(vobj, "payload"); ok && payloadS != "" {
					ref, err := parseTypeRef(payloadS)
					if err != nil {
						res.errorf(d.line, "registerType %q variant %q payload: %v", d.name, vname, err)
						continue
					}
					v.Payload = &ref
				}
				variants = append(variants, v)
			}
			m.Types[d.name] = abi.TypeDef{Kind: abi.TypeDefVariant, Variants: variants}

		case "bytes_alias":
			sizeV, _ := kvLookup(obj, "size")
			size, _ := sizeV.(float64)
			variableV, _ := kvLookup(obj, "variable")
			variable, _ := variableV.(bool)
			m.Types[d.name] = abi.TypeDef{Kind: abi.TypeDefBytesAlias, FixedSize: int(size), Variable: variable}

		case "alias":
			targetV, _ := firstString(obj, "target")
			ref, err := parseTypeRef(targetV)
			if err != nil {
				res.errorf(d.line, "registerType %q alias target: %v", d.name, err)
				continue
			}
			m.Types[d.name] = abi.TypeDef{Kind: abi.TypeDefAlias, Alias: &ref}

		default:
			res.errorf(d.line, "registerType %q: unknown kind %q (want record/variant/bytes_alias/alias)", d.name, kind)
		}
	}
}

func firstString(fields []kv, key string) (string, bool) {
	v, ok := kvLookup(fields, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// sensitiveNameFragments flags logic methods named like they touch secrets
// or credentials; exposing them as a callable ABI method is almost
// always a mistake (§4.1 warnings).
var sensitiveNameFragments = []string{"password", "secret", "private_key", "apikey", "api_key", "token"}

// readOnlyNameFragments flags methods that read like queries but aren't
// tagged view — likely an author forgot the tag, not a real mutation.
var readOnlyNameFragments = []string{"get", "list", "find", "query", "total", "count"}

func resolveState(m *abi.Manifest, decls []stateDecl, res *Result) {
	for _, d := range decls {
		var fields []abi.Field
		for _, f := range d.fields {
			typeStr, ok := f.value.(string)
			if !ok {
				res.errorf(d.line, "registerState %q field %q: type must be a string", d.name, f.key)
				continue
			}
			if handle, isHandle := collectionHandleTypes[typeStr]; isHandle {
				fields = append(fields, abi.Field{Name: f.key, Type: abi.Named(handle)})
				continue
			}
			ref, err := parseTypeRef(typeStr)
			if err != nil {
				res.errorf(d.line, "registerState %q field %q: %v", d.name, f.key, err)
				continue
			}
			res.warn(d.line, "registerState %q field %q has no CRDT wrapper (map/set/sequence/counter/lww/user_storage/frozen) and cannot synchronize across executors", d.name, f.key)
			fields = append(fields, abi.Field{Name: f.key, Type: ref})
		}
		m.Types[d.name] = abi.TypeDef{Kind: abi.TypeDefRecord, Fields: fields}
		m.StateRoot = d.name
	}
}

func resolveLogic(m *abi.Manifest, states []stateDecl, decls []logicDecl, res *Result) {
	for _, d := range decls {
		found := false
		for _, s := range states {
			if s.name == d.stateName {
				found = true
				break
			}
		}
		if !found {
			res.errorf(d.line, "registerLogic %q names unknown state %q", d.name, d.stateName)
			continue
		}

		for _, meth := range d.methods {
			methObj, ok := meth.value.([]kv)
			if !ok {
				res.errorf(d.line, "registerLogic %q method %q: definition must be an object", d.name, meth.key)
				continue
			}
			method := abi.Method{Name: meth.key}

			if paramsV, ok := kvLookup(methObj, "params"); ok {
				paramsObj, ok := paramsV.([]kv)
				if !ok {
					res.errorf(d.line, "registerLogic %q method %q: params must be an object", d.name, meth.key)
					continue
				}
				for _, p := range paramsObj {
					typeStr, ok := p.value.(string)
					if !ok {
						res.errorf(d.line, "registerLogic %q method %q param %q: type must be a string", d.name, meth.key, p.key)
						continue
					}
					ref, err := parseTypeRef(typeStr)
					if err != nil {
						res.errorf(d.line, "registerLogic %q method %q param %q: %v", d.name, meth.key, p.key, err)
						continue
					}
					method.Params = append(method.Params, abi.Field{Name: p.key, Type: ref})
				}
			}

			if returnsV, ok := firstString(methObj, "returns"); ok && returnsV != "" {
				ref, err := parseTypeRef(returnsV)
				if err != nil {
					res.errorf(d.line, "registerLogic %q method %q returns: %v", d.name, meth.key, err)
					continue
				}
				method.Returns = &ref
			}
			if initV, ok := kvLookup(methObj, "init"); ok {
				method.Init, _ = initV.(bool)
			}
			if viewV, ok := kvLookup(methObj, "view"); ok {
				method.View, _ = viewV.(bool)
			}

			if method.Init && (method.Returns == nil || method.Returns.Kind != abi.RefNamed || method.Returns.Name != d.stateName) {
				res.warn(d.line, "registerLogic %q init method %q should declare returns: %q", d.name, meth.key, d.stateName)
			}
			if !method.View {
				lower := strings.ToLower(meth.key)
				for _, frag := range readOnlyNameFragments {
					if strings.Contains(lower, frag) {
						res.warn(d.line, "registerLogic %q method %q reads like a query but isn't tagged view", d.name, meth.key)
						break
					}
				}
			}
			lower := strings.ToLower(meth.key)
			for _, frag := range sensitiveNameFragments {
				if strings.Contains(lower, frag) {
					res.warn(d.line, "registerLogic %q method %q looks like it exposes sensitive data over the ABI", d.name, meth.key)
					break
				}
			}

			m.Methods = append(m.Methods, method)
		}
	}
}

func resolveEvents(m *abi.Manifest, decls []eventDecl, res *Result) {
	for _, d := range decls {
		ev := abi.Event{Name: d.name}
		if d.hasPay {
			ref, err := parseTypeRef(d.payload)
			if err != nil {
				res.errorf(d.line, "registerEvent %q payload: %v", d.name, err)
				continue
			}
			ev.Payload = &ref
		}
		m.Events = append(m.Events, ev)
	}
}
