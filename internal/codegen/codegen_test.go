package codegen

import (
	"strings"
	"testing"

	"github.com/rakunlabs/wasmsvc/internal/abi"
)

type stubCompiler struct{ blob []byte }

func (s stubCompiler) Compile(source []byte) ([]byte, error) { return s.blob, nil }

func testManifest() *abi.Manifest {
	m := abi.New()
	m.Methods = []abi.Method{
		{Name: "init", Init: true},
		{Name: "increment"},
		{Name: "total", View: true},
	}
	return m
}

func TestGenerateEmitsOneWrapperPerMethodWithStableNaming(t *testing.T) {
	arts, err := Generate(testManifest(), []byte("source"), stubCompiler{blob: []byte{0xde, 0xad, 0xbe, 0xef}})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"init", "increment", "total"} {
		if !strings.Contains(string(arts.MethodsHeader), "void "+name+"(void);") {
			t.Fatalf("expected a declaration for %q, got:\n%s", name, arts.MethodsHeader)
		}
		if !strings.Contains(string(arts.MethodsSource), "void "+name+"(void) {") {
			t.Fatalf("expected a definition for %q, got:\n%s", name, arts.MethodsSource)
		}
		if !strings.Contains(string(arts.MethodsSource), `vm_get_global(vm, "`+name+`")`) {
			t.Fatalf("expected %q to look up its own global by name, got:\n%s", name, arts.MethodsSource)
		}
	}
}

func TestGenerateEmbedsBytecodeAndABIJSONAsByteArrays(t *testing.T) {
	arts, err := Generate(testManifest(), []byte("source"), stubCompiler{blob: []byte{0xde, 0xad, 0xbe, 0xef}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(arts.CodeHeader), "0xde,0xad,0xbe,0xef,") {
		t.Fatalf("expected embedded bytecode bytes, got:\n%s", arts.CodeHeader)
	}
	if !strings.Contains(string(arts.ABIHeader), "abi_json") {
		t.Fatalf("expected an abi_json symbol, got:\n%s", arts.ABIHeader)
	}
}

func TestGenerateRejectsDuplicateSymbolNames(t *testing.T) {
	m := abi.New()
	m.Methods = []abi.Method{{Name: "do-thing"}, {Name: "do_thing"}}
	_, err := Generate(m, []byte("source"), stubCompiler{})
	if err == nil {
		t.Fatal("expected a symbol collision error")
	}
}
