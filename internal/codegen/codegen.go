// Package codegen implements the §4.3 bytecode/C-wrapper stage: it
// turns a bundled script into a compiled bytecode blob, embeds that
// blob (and the ABI JSON) as byte arrays in generated C headers, and
// synthesizes one C function per ABI method that a WASM compiler can
// turn into an exported symbol sharing the method's name.
package codegen

import (
	"bytes"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/rakunlabs/wasmsvc/internal/abi"
)

// BytecodeCompiler turns bundled script source into the blob embedded
// in code.h. `wasmsvc build` uses the in-process GojaCompiler (which
// checks the script and embeds its source) unless an external compiler
// is named with --bytecode-compiler, in which case it uses ExecCompiler;
// tests use a stub that returns a fixed blob so the generated C
// plumbing can be exercised without a real compiler on PATH.
type BytecodeCompiler interface {
	Compile(source []byte) ([]byte, error)
}

// ExecCompiler invokes an external bytecode compiler binary, writing
// source to its stdin and reading the compiled blob from its stdout —
// the same subprocess-tool pattern as any other build step that
// shells out to a specialized compiler not worth reimplementing in Go.
type ExecCompiler struct {
	Path string // absolute path or PATH-resolved binary name
	Args []string
}

func (c ExecCompiler) Compile(source []byte) ([]byte, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Stdin = bytes.NewReader(source)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("codegen: %s failed: %w: %s", c.Path, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// Artifacts is the full set of generated files for §4.3's stage, keyed
// by the fixed filenames internal/pipeline writes to the output
// directory (abi.h, code.h, methods.c, methods.h).
type Artifacts struct {
	ABIHeader     []byte
	CodeHeader    []byte
	MethodsSource []byte
	MethodsHeader []byte
}

// Generate compiles bundledSource via compiler and synthesizes every
// artifact this stage owns.
func Generate(manifest *abi.Manifest, bundledSource []byte, compiler BytecodeCompiler) (*Artifacts, error) {
	bytecode, err := compiler.Compile(bundledSource)
	if err != nil {
		return nil, err
	}

	abiJSON, err := manifest.CanonicalJSON()
	if err != nil {
		return nil, fmt.Errorf("codegen: encoding ABI manifest: %w", err)
	}

	methodsC, methodsH, err := generateMethodWrappers(manifest)
	if err != nil {
		return nil, err
	}

	return &Artifacts{
		ABIHeader:     CHeaderBytes("abi_json", abiJSON),
		CodeHeader:    CHeaderBytes("guest_bytecode", bytecode),
		MethodsSource: methodsC,
		MethodsHeader: methodsH,
	}, nil
}

// CHeaderBytes renders data as a C byte array definition plus its
// length, under symbol and symbol+"_len" — the same shape for both the
// ABI JSON sidecar and the compiled bytecode blob. internal/pipeline
// reuses it to embed abi.json the same way for the standalone abi.h.
func CHeaderBytes(symbol string, data []byte) []byte {
	var b strings.Builder
	b.WriteString("// generated by internal/codegen; do not edit by hand\n")
	b.WriteString("#pragma once\n\n")
	fmt.Fprintf(&b, "static const unsigned char %s[] = {", symbol)
	for i, c := range data {
		if i%16 == 0 {
			b.WriteString("\n  ")
		}
		fmt.Fprintf(&b, "0x%02x,", c)
	}
	b.WriteString("\n};\n")
	fmt.Fprintf(&b, "static const unsigned long %s_len = %dUL;\n", symbol, len(data))
	return []byte(b.String())
}

// cIdentifier maps a method name to a stable WASM/C symbol: method
// "foo" becomes exported symbol "foo" (§4.3); any character outside
// [A-Za-z0-9_] is replaced with '_' so no method name can produce
// invalid C, but the common case (already-valid identifiers) is left
// untouched so the naming stays literally 1:1 with the ABI.
func cIdentifier(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9' && i > 0:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// generateMethodWrappers emits one C function per manifest method. Each
// wrapper: instantiates the script VM, deserializes the embedded
// bytecode blob into it, looks up the method's exported global by name,
// invokes it with no arguments (the guest reads its own arguments via
// the decoded-argument host import, §4.8), drains the VM's microtask
// queue so any pending promise settles before the call returns, and
// propagates a thrown exception to the host via host_panic rather than
// letting it escape as a native trap.
func generateMethodWrappers(manifest *abi.Manifest) ([]byte, []byte, error) {
	methods := append([]abi.Method(nil), manifest.Methods...)
	sort.Slice(methods, func(i, j int) bool { return methods[i].Name < methods[j].Name })

	seen := make(map[string]bool, len(methods))
	var header strings.Builder
	var source strings.Builder

	header.WriteString("// generated by internal/codegen; do not edit by hand\n")
	header.WriteString("#pragma once\n\n")

	source.WriteString("// generated by internal/codegen; do not edit by hand\n")
	source.WriteString("#include \"methods.h\"\n")
	source.WriteString("#include \"code.h\"\n\n")
	source.WriteString("extern void host_panic(const char *message);\n")
	source.WriteString("extern ScriptVM *vm_instantiate(void);\n")
	source.WriteString("extern int vm_deserialize_bytecode(ScriptVM *vm, const unsigned char *blob, unsigned long len);\n")
	source.WriteString("extern ScriptValue *vm_get_global(ScriptVM *vm, const char *name);\n")
	source.WriteString("extern ScriptValue *vm_call0(ScriptVM *vm, ScriptValue *fn, const char **error_message);\n")
	source.WriteString("extern void vm_drain_microtasks(ScriptVM *vm);\n\n")

	for _, m := range methods {
		sym := cIdentifier(m.Name)
		if seen[sym] {
			return nil, nil, fmt.Errorf("codegen: method name collision on exported symbol %q", sym)
		}
		seen[sym] = true

		fmt.Fprintf(&header, "void %s(void);\n", sym)

		fmt.Fprintf(&source, "void %s(void) {\n", sym)
		source.WriteString("  ScriptVM *vm = vm_instantiate();\n")
		fmt.Fprintf(&source, "  if (!vm_deserialize_bytecode(vm, guest_bytecode, guest_bytecode_len)) {\n    host_panic(\"%s: failed to deserialize bytecode\");\n    return;\n  }\n", sym)
		fmt.Fprintf(&source, "  ScriptValue *fn = vm_get_global(vm, \"%s\");\n", m.Name)
		fmt.Fprintf(&source, "  if (!fn) {\n    host_panic(\"%s: method not found in bundle\");\n    return;\n  }\n", sym)
		source.WriteString("  const char *error_message = 0;\n")
		source.WriteString("  vm_call0(vm, fn, &error_message);\n")
		source.WriteString("  vm_drain_microtasks(vm);\n")
		source.WriteString("  if (error_message) {\n    host_panic(error_message);\n    return;\n  }\n")
		source.WriteString("}\n\n")
	}

	return []byte(source.String()), []byte(header.String()), nil
}
