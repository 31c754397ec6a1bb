package collections

import (
	"slices"
	"testing"
)

func testExecutor() [32]byte {
	var e [32]byte
	e[0] = 0xAB
	return e
}

func TestMapSetGetRoundTrip(t *testing.T) {
	host := NewMemoryHost(testExecutor())
	m := NewOrderedMap(host, nil)

	if err := m.Set([]byte("a"), []byte("1"), nil); err != nil {
		t.Fatal(err)
	}
	v, ok, err := m.Get([]byte("a"))
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("got %q ok=%v err=%v", v, ok, err)
	}
}

func TestMapSetMergesExistingKey(t *testing.T) {
	host := NewMemoryHost(testExecutor())
	m := NewOrderedMap(host, nil)
	merge := MergerFunc(func(current, incoming []byte) []byte {
		return append(append([]byte{}, current...), incoming...)
	})

	if err := m.Set([]byte("k"), []byte("a"), merge); err != nil {
		t.Fatal(err)
	}
	if err := m.Set([]byte("k"), []byte("b"), merge); err != nil {
		t.Fatal(err)
	}
	v, _, _ := m.Get([]byte("k"))
	if string(v) != "ab" {
		t.Fatalf("expected merged value \"ab\", got %q", v)
	}
}

// TestCollectionIdentityIsStable covers property 3: a collection's id
// never changes across mutation, and two distinct collections never
// share an id.
func TestCollectionIdentityIsStable(t *testing.T) {
	host := NewMemoryHost(testExecutor())
	m1 := NewOrderedMap(host, nil)
	m2 := NewOrderedMap(host, nil)
	if m1.ID() == m2.ID() {
		t.Fatal("two distinct collections must not share an id")
	}
	before := m1.ID()
	if err := m1.Set([]byte("x"), []byte("y"), nil); err != nil {
		t.Fatal(err)
	}
	if m1.ID() != before {
		t.Fatal("mutation must not change a collection's identity")
	}
}

func TestIDHexRoundTrip(t *testing.T) {
	id := NewID()
	parsed, err := IDFromHex(id.Hex())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != id {
		t.Fatalf("hex round trip mismatch: %s != %s", parsed.Hex(), id.Hex())
	}
}

func TestIDFromHexRejectsWrongLength(t *testing.T) {
	if _, err := IDFromHex("abcd"); err == nil {
		t.Fatal("expected error for short hex id")
	}
}

func TestSetAddDeleteHas(t *testing.T) {
	host := NewMemoryHost(testExecutor())
	s := NewOrderedSet(host, nil)
	if err := s.Add([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Has([]byte("x")); !ok {
		t.Fatal("expected member present")
	}
	if err := s.Delete([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Has([]byte("x")); ok {
		t.Fatal("expected member removed")
	}
}

func TestCounterAccumulatesPerExecutor(t *testing.T) {
	alice := [32]byte{1}
	bob := [32]byte{2}
	host := NewMemoryHost(alice)
	c := NewCounter(host, nil)

	if err := c.Increment(3); err != nil {
		t.Fatal(err)
	}
	host.SetExecutor(bob)
	if err := c.Increment(4); err != nil {
		t.Fatal(err)
	}

	total, err := c.Total()
	if err != nil {
		t.Fatal(err)
	}
	if total.Int64() != 7 {
		t.Fatalf("expected total 7, got %s", total.String())
	}
	per, err := c.PerExecutor()
	if err != nil {
		t.Fatal(err)
	}
	if per[alice].Int64() != 3 || per[bob].Int64() != 4 {
		t.Fatalf("unexpected per-executor split: %+v", per)
	}
}

func TestUserStoreIsolatesExecutors(t *testing.T) {
	alice := [32]byte{1}
	bob := [32]byte{2}
	host := NewMemoryHost(alice)
	u := NewUserStore(host, nil)

	if err := u.Insert([]byte("alice-secret")); err != nil {
		t.Fatal(err)
	}
	host.SetExecutor(bob)
	if err := u.Insert([]byte("bob-secret")); err != nil {
		t.Fatal(err)
	}

	v, ok, err := u.GetForUser(alice)
	if err != nil || !ok || string(v) != "alice-secret" {
		t.Fatalf("alice slot corrupted: %q ok=%v err=%v", v, ok, err)
	}
	v, ok, err = u.GetForUser(bob)
	if err != nil || !ok || string(v) != "bob-secret" {
		t.Fatalf("bob slot corrupted: %q ok=%v err=%v", v, ok, err)
	}
}

func TestFrozenStoreIsContentAddressed(t *testing.T) {
	host := NewMemoryHost(testExecutor())
	f := NewFrozenStore(host, nil)

	d1, err := f.Add([]byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	d2, err := f.Add([]byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Fatal("identical content must produce the same digest")
	}
	v, ok, err := f.Get(d1)
	if err != nil || !ok || string(v) != "payload" {
		t.Fatalf("got %q ok=%v err=%v", v, ok, err)
	}
}

// TestNestedMapContainingSetPropagates covers property 8 and the §8
// "nested map containing sets" scenario: mutating a set nested inside a
// map must also notify the map, in that order, exactly once each.
func TestNestedMapContainingSetPropagates(t *testing.T) {
	host := NewMemoryHost(testExecutor())
	tracker := NewTracker()
	tracker.SetHost(host)

	parent := NewOrderedMap(host, tracker)
	child := NewOrderedSet(host, tracker)
	parent.SetChild([]byte("tags"), child.ID(), KindSet)

	host.ResetModified()
	if err := child.Add([]byte("v1")); err != nil {
		t.Fatal(err)
	}

	modified := host.Modified()
	if len(modified) != 2 {
		t.Fatalf("expected exactly two delta actions, got %d: %v", len(modified), modified)
	}
	if modified[0] != child.ID() {
		t.Fatalf("expected child notified first, got %x", modified[0])
	}
	if modified[1] != parent.ID() {
		t.Fatalf("expected parent notified second, got %x", modified[1])
	}
}

func TestPropagationThroughMultipleLevelsOfNesting(t *testing.T) {
	host := NewMemoryHost(testExecutor())
	tracker := NewTracker()
	tracker.SetHost(host)

	grandparent := NewOrderedMap(host, tracker)
	parent := NewOrderedSet(host, tracker)
	child := NewSequence(host, tracker)

	tracker.Register(child.ID(), KindSeq, parent.ID(), KindSet, nil)
	grandparent.SetChild([]byte("k"), parent.ID(), KindSet)

	host.ResetModified()
	if err := child.Push([]byte("x")); err != nil {
		t.Fatal(err)
	}

	modified := host.Modified()
	want := []ID{child.ID(), parent.ID(), grandparent.ID()}
	if !slices.Equal(modified, want) {
		t.Fatalf("expected propagation chain %v, got %v", want, modified)
	}
}

func TestPropagationDoesNotDoubleNotifyWithinOneLevel(t *testing.T) {
	host := NewMemoryHost(testExecutor())
	tracker := NewTracker()
	tracker.SetHost(host)

	parent := NewOrderedMap(host, tracker)
	child := NewOrderedSet(host, tracker)
	// Register the same nesting edge twice, as could happen if a script
	// re-assigns the same child under two different keys of the same map.
	tracker.Register(child.ID(), KindSet, parent.ID(), KindMap, []byte("a"))
	tracker.Register(child.ID(), KindSet, parent.ID(), KindMap, []byte("b"))

	host.ResetModified()
	if err := child.Add([]byte("v")); err != nil {
		t.Fatal(err)
	}

	count := 0
	for _, id := range host.Modified() {
		if id == parent.ID() {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected parent notified exactly once per iteration, got %d", count)
	}
}
