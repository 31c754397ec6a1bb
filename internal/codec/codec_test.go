package codec

import (
	"bytes"
	"testing"

	"github.com/rakunlabs/wasmsvc/internal/abi"
)

func testManifest() *abi.Manifest {
	m := abi.New()
	m.Types["Status"] = abi.TypeDef{
		Kind: abi.TypeDefVariant,
		Variants: []abi.Variant{
			{Name: "Active", Payload: refptr(abi.U64())},
			{Name: "Inactive"},
			{Name: "Pending", Payload: refptr(abi.Str())},
		},
	}
	m.Types["Item"] = abi.TypeDef{
		Kind: abi.TypeDefRecord,
		Fields: []abi.Field{
			{Name: "id", Type: abi.U32()},
			{Name: "name", Type: abi.Str()},
			{Name: "tags", Type: abi.Set(abi.Str())},
			{Name: "meta", Type: abi.Map(abi.Str(), abi.U32())},
			{Name: "nickname", Type: abi.Option(abi.Str()), Nullable: true},
		},
	}
	return m
}

func refptr[T any](v T) *T { return &v }

func TestScalarRoundTrip(t *testing.T) {
	m := testManifest()
	cases := []struct {
		ref abi.TypeRef
		val any
	}{
		{abi.Bool(), true},
		{abi.U8(), uint8(250)},
		{abi.I8(), int8(-12)},
		{abi.U16(), uint16(60000)},
		{abi.I16(), int16(-2000)},
		{abi.U32(), uint32(4000000000)},
		{abi.I32(), int32(-70000)},
		{abi.U64(), uint64(18446744073709551615)},
		{abi.I64(), int64(-9223372036854775808)},
		{abi.F32(), float32(1.5)},
		{abi.F64(), float64(2.71828)},
		{abi.Str(), "hello, world"},
		{abi.Bytes(), []byte{1, 2, 3, 255}},
	}
	for _, c := range cases {
		enc, err := Encode(m, c.ref, c.val)
		if err != nil {
			t.Fatalf("encode %v: %v", c.val, err)
		}
		dec, err := Decode(m, c.ref, enc)
		if err != nil {
			t.Fatalf("decode %v: %v", c.val, err)
		}
		switch c.ref.Scalar {
		case abi.ScalarF32:
			if dec.(float32) != c.val.(float32) {
				t.Fatalf("f32 mismatch: %v != %v", dec, c.val)
			}
		case abi.ScalarBytes:
			if !bytes.Equal(dec.([]byte), c.val.([]byte)) {
				t.Fatalf("bytes mismatch")
			}
		default:
			if dec != c.val {
				t.Fatalf("mismatch for %T: %v != %v", c.val, dec, c.val)
			}
		}
	}
}

func TestDeterministicEncoding(t *testing.T) {
	m := testManifest()
	rec := map[string]any{
		"id":   uint32(7),
		"name": "widget",
		"tags": []any{"a", "b"},
		"meta": []Pair{{Key: "x", Value: uint32(1)}},
	}
	a, err := Encode(m, abi.Named("Item"), rec)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(m, abi.Named("Item"), rec)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("expected identical bytes for identical input")
	}
}

func TestRecordRoundTrip(t *testing.T) {
	m := testManifest()
	rec := map[string]any{
		"id":   uint32(42),
		"name": "gizmo",
		"tags": []any{"red", "blue"},
		"meta": []Pair{{Key: "weight", Value: uint32(9)}},
	}
	enc, err := Encode(m, abi.Named("Item"), rec)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := Decode(m, abi.Named("Item"), enc)
	if err != nil {
		t.Fatal(err)
	}
	got := dec.(map[string]any)
	if got["id"] != uint32(42) || got["name"] != "gizmo" {
		t.Fatalf("mismatch: %+v", got)
	}
}

func TestVariantPlainStringPayloadless(t *testing.T) {
	m := testManifest()
	enc, err := Encode(m, abi.Named("Status"), "Inactive")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(enc, []byte{1}) {
		t.Fatalf("expected ordinal 1 with no payload, got %v", enc)
	}
}

func TestVariantPlainStringWithPayloadFails(t *testing.T) {
	m := testManifest()
	_, err := Encode(m, abi.Named("Status"), "Active")
	if err == nil {
		t.Fatal("expected error encoding payload-bearing variant from plain string form")
	}
}

func TestU64ReturnEncodesAsQuotedDecimalString(t *testing.T) {
	m := testManifest()
	ref := abi.U64()
	out, err := ToJSONCompatible(m, &ref, "12345678901234567890")
	if err != nil {
		t.Fatal(err)
	}
	s, ok := out.(string)
	if !ok || s != "12345678901234567890" {
		t.Fatalf("expected decimal string, got %#v", out)
	}
}

func TestBufferUnderflow(t *testing.T) {
	m := testManifest()
	_, err := Decode(m, abi.U32(), []byte{1, 2})
	if err == nil {
		t.Fatal("expected buffer underflow error")
	}
}

func TestCircularReturnValueSentinel(t *testing.T) {
	cyclic := map[string]any{"name": "root"}
	cyclic["self"] = cyclic

	shared := map[string]any{"shared": true}
	tree := map[string]any{
		"cycle": cyclic,
		"a":     shared,
		"b":     shared,
	}

	out, err := ToJSONCompatible(nil, nil, tree)
	if err != nil {
		t.Fatal(err)
	}
	m := out.(map[string]any)
	cycleOut := m["cycle"].(map[string]any)
	if cycleOut["self"] != circularSentinel {
		t.Fatalf("expected circular sentinel, got %#v", cycleOut["self"])
	}
	aOut, aOK := m["a"].(map[string]any)
	bOut, bOK := m["b"].(map[string]any)
	if !aOK || !bOK || aOut["shared"] != true || bOut["shared"] != true {
		t.Fatalf("expected shared non-cyclic reference to appear verbatim twice, got a=%#v b=%#v", m["a"], m["b"])
	}
}
