package hostsim

import (
	"bytes"
	"testing"

	"github.com/rakunlabs/wasmsvc/internal/abi"
	"github.com/rakunlabs/wasmsvc/internal/codec"
	"github.com/rakunlabs/wasmsvc/internal/hostsim/store"
)

func testManifest() *abi.Manifest {
	m := abi.New()
	m.StateRoot = "Counter"
	m.Types["Counter"] = abi.TypeDef{
		Kind:   abi.TypeDefRecord,
		Fields: []abi.Field{{Name: "total", Type: abi.Named("CounterHandle")}},
	}
	m.Methods = []abi.Method{
		{Name: "init", Returns: &abi.TypeRef{Kind: abi.RefNamed, Name: "Counter"}, Init: true},
		{Name: "increment", Params: []abi.Field{{Name: "amount", Type: abi.U64()}}},
		{Name: "current", Returns: &abi.TypeRef{Kind: abi.RefScalar, Scalar: abi.ScalarString}, View: true},
	}
	return m
}

func testEncryptionKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestGuestIssueAndLoadIdentityRoundTrip(t *testing.T) {
	g := NewGuest(testManifest(), counterGuestSource, store.NewMemory(), testEncryptionKey(), nil, nil, nil)

	id, err := g.IssueIdentity()
	if err != nil {
		t.Fatal(err)
	}

	loaded, ok, err := g.LoadIdentity(publicKeyHex(id.Public))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected the issued identity to be found")
	}
	if !bytes.Equal(loaded.Public, id.Public) {
		t.Fatalf("expected matching public keys, got %x vs %x", loaded.Public, id.Public)
	}
}

func TestGuestLoadIdentityMissing(t *testing.T) {
	g := NewGuest(testManifest(), counterGuestSource, store.NewMemory(), testEncryptionKey(), nil, nil, nil)

	_, ok, err := g.LoadIdentity("00")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no identity to be found")
	}
}

func TestGuestDispatchAsRunsInitThenMutatingCall(t *testing.T) {
	g := NewGuest(testManifest(), counterGuestSource, store.NewMemory(), testEncryptionKey(), nil, nil, nil)

	executor := [32]byte{1, 2, 3}
	if _, err := g.DispatchAs(executor[:], "init", nil); err != nil {
		t.Fatal(err)
	}

	argBytes, err := codec.Encode(g.Manifest, abi.U64(), uint64(7))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.DispatchAs(executor[:], "increment", argBytes); err != nil {
		t.Fatal(err)
	}

	result, err := g.DispatchAs(executor[:], "current", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(result) != `"7"` {
		t.Fatalf("expected JSON string \"7\", got %s", result)
	}
}
