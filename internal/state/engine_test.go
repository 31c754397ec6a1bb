package state

import (
	"testing"

	"github.com/rakunlabs/wasmsvc/internal/collections"
)

func fixedClock(seq ...int64) Clock {
	i := 0
	return func() int64 {
		if i >= len(seq) {
			return seq[len(seq)-1]
		}
		v := seq[i]
		i++
		return v
	}
}

func rehydrateViaHost(host *collections.MemoryHost, tracker *collections.Tracker) Rehydrator {
	return func(ref CollectionRef) (CollectionHandle, error) {
		switch collections.Kind(ref.Type) {
		case collections.KindMap:
			h := collections.LoadOrderedMap(ref.ID, host, tracker)
			return h, nil
		case collections.KindSet:
			return collections.LoadOrderedSet(ref.ID, host, tracker), nil
		case collections.KindCounter:
			return collections.LoadCounter(ref.ID, host, tracker), nil
		default:
			return nil, nil
		}
	}
}

// TestSaveLoadRoundTripIsIdentityModuloUpdatedAt covers property 5 /
// invariant (c): reload after save returns the same scalars and
// collection references, differing only in metadata.updatedAt.
func TestSaveLoadRoundTripIsIdentityModuloUpdatedAt(t *testing.T) {
	store := NewMemoryStore()
	host := collections.NewMemoryHost([32]byte{1})
	engine := New(store, fixedClock(100, 200))

	counter := collections.NewCounter(host, nil)
	instance := Instance{
		"name":    "widget",
		"count":   counter,
	}

	meta1, err := engine.Save("root", instance, Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	if meta1.CreatedAt != 100 || meta1.UpdatedAt != 100 {
		t.Fatalf("unexpected first-save metadata: %+v", meta1)
	}

	loaded, meta2, ok, err := engine.Load("root", rehydrateViaHost(host, nil))
	if err != nil || !ok {
		t.Fatalf("load failed: ok=%v err=%v", ok, err)
	}
	if loaded["name"] != "widget" {
		t.Fatalf("scalar field corrupted: %+v", loaded)
	}
	ch, ok := loaded["count"].(CollectionHandle)
	if !ok || ch.ID() != counter.ID() {
		t.Fatalf("collection field not rehydrated to same id: %+v", loaded["count"])
	}
	if meta2 != meta1 {
		t.Fatalf("reload metadata should match immediately after load: %+v != %+v", meta2, meta1)
	}

	meta3, err := engine.Save("root", loaded, meta2)
	if err != nil {
		t.Fatal(err)
	}
	if meta3.CreatedAt != meta1.CreatedAt {
		t.Fatalf("createdAt must not change on resave: %d != %d", meta3.CreatedAt, meta1.CreatedAt)
	}
	if meta3.UpdatedAt < meta2.UpdatedAt {
		t.Fatalf("updatedAt must be monotonically non-decreasing: %d < %d", meta3.UpdatedAt, meta2.UpdatedAt)
	}
}

// TestCollectionFieldNeverStoredByValue covers invariant (a): the
// persisted document never embeds a collection's elements, only its
// {type, id} reference.
func TestCollectionFieldNeverStoredByValue(t *testing.T) {
	store := NewMemoryStore()
	host := collections.NewMemoryHost([32]byte{1})
	engine := New(store, fixedClock(1))

	set := collections.NewOrderedSet(host, nil)
	if err := set.Add([]byte("member")); err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Save("root", Instance{"tags": set}, Metadata{}); err != nil {
		t.Fatal(err)
	}

	raw, ok, err := store.LoadDocument("root")
	if err != nil || !ok {
		t.Fatalf("expected document present: ok=%v err=%v", ok, err)
	}
	doc, err := UnmarshalDocument(raw)
	if err != nil {
		t.Fatal(err)
	}
	ref, ok := doc.Collections["tags"]
	if !ok || ref.ID != set.ID() {
		t.Fatalf("expected collection ref for tags, got %+v", doc.Collections)
	}
	if _, ok := doc.Scalars["tags"]; ok {
		t.Fatal("collection field leaked into scalars map")
	}
}

func TestLoadMissingDocumentReturnsNotOK(t *testing.T) {
	store := NewMemoryStore()
	engine := New(store, fixedClock(1))
	_, _, ok, err := engine.Load("missing", rehydrateViaHost(nil, nil))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected ok=false for a key that was never saved")
	}
}

func TestLegacyDocumentMigratesOnLoad(t *testing.T) {
	store := NewMemoryStore()
	// Hand-construct a legacy flat document: one field "score" whose
	// value is a hex-encoded {"value": 7} entry.
	legacyRaw := []byte(`{"score":"` + hexEncodeForTest(`{"value":7}`) + `"}`)
	if err := store.SaveDocument("root", legacyRaw); err != nil {
		t.Fatal(err)
	}

	engine := New(store, fixedClock(50))
	loaded, meta, ok, err := engine.Load("root", rehydrateViaHost(nil, nil))
	if err != nil || !ok {
		t.Fatalf("migration load failed: ok=%v err=%v", ok, err)
	}
	if loaded["score"] != float64(7) {
		t.Fatalf("expected migrated scalar 7, got %+v", loaded["score"])
	}
	if meta.CreatedAt == 0 {
		t.Fatalf("expected migrated document to carry fresh metadata, got %+v", meta)
	}

	raw, _, _ := store.LoadDocument("root")
	if looksLegacy(raw) {
		t.Fatal("expected document to be rewritten in current format after migration")
	}
}

func hexEncodeForTest(s string) string {
	const digits = "0123456789abcdef"
	out := make([]byte, len(s)*2)
	for i := 0; i < len(s); i++ {
		out[i*2] = digits[s[i]>>4]
		out[i*2+1] = digits[s[i]&0xf]
	}
	return string(out)
}
