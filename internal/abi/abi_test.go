package abi

import "testing"

func buildManifest() *Manifest {
	m := New()
	m.Version = "v1"
	m.StateRoot = "Counter"
	m.Types["Counter"] = TypeDef{
		Kind: TypeDefRecord,
		Fields: []Field{
			{Name: "total", Type: U64()},
			{Name: "tags", Type: Set(Str())},
		},
	}
	m.Types["Status"] = TypeDef{
		Kind: TypeDefVariant,
		Variants: []Variant{
			{Name: "Active", Payload: ptr(U64())},
			{Name: "Inactive"},
			{Name: "Pending", Payload: ptr(Str())},
		},
	}
	m.Methods = []Method{
		{Name: "init", Returns: ptr(Named("Counter")), Init: true},
		{Name: "increment", Params: []Field{{Name: "by", Type: U64()}}},
		{Name: "total", Returns: ptr(U64()), View: true},
	}
	m.Events = []Event{{Name: "Incremented", Payload: ptr(U64())}}
	return m
}

func ptr[T any](v T) *T { return &v }

func TestManifestValidate(t *testing.T) {
	m := buildManifest()
	if err := m.Validate(); err != nil {
		t.Fatalf("unexpected validate error: %v", err)
	}
}

func TestManifestValidateUnresolvedRef(t *testing.T) {
	m := buildManifest()
	m.Types["Broken"] = TypeDef{
		Kind:   TypeDefRecord,
		Fields: []Field{{Name: "x", Type: Named("DoesNotExist")}},
	}
	if err := m.Validate(); err == nil {
		t.Fatal("expected error for unresolved reference")
	}
}

func TestManifestValidateMultipleInit(t *testing.T) {
	m := buildManifest()
	m.Methods = append(m.Methods, Method{Name: "init2", Init: true})
	if err := m.Validate(); err == nil {
		t.Fatal("expected error for multiple init methods")
	}
}

func TestManifestCanonicalJSONDeterministic(t *testing.T) {
	m := buildManifest()
	a, err := m.CanonicalJSON()
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.CanonicalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Fatalf("canonical JSON not deterministic:\n%s\nvs\n%s", a, b)
	}
}

func TestManifestContentHashStable(t *testing.T) {
	m1 := buildManifest()
	m2 := buildManifest()
	h1, err := m1.ContentHash()
	if err != nil {
		t.Fatal(err)
	}
	h2, err := m2.ContentHash()
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("expected identical content hash for identical manifests, got %s vs %s", h1, h2)
	}
}

func TestStateSchemaOmitsMethodsAndEvents(t *testing.T) {
	m := buildManifest()
	ss := m.StateSchema()
	if ss.StateRoot != "Counter" {
		t.Fatalf("expected state root Counter, got %s", ss.StateRoot)
	}
	if len(ss.Types) != len(m.Types) {
		t.Fatalf("expected all types carried over")
	}
}
