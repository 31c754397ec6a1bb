package collections

import "math/big"

// Kind identifies which of the seven collection shapes a handle proxies.
type Kind string

const (
	KindMap    Kind = "map"
	KindSet    Kind = "set"
	KindSeq    Kind = "sequence"
	KindCounter Kind = "counter"
	KindLWW    Kind = "lww"
	KindUser   Kind = "user_storage"
	KindFrozen Kind = "frozen"
)

// Host is the guest-side view of the §6 CRDT handle imports
// (`*_new/get/insert/remove/contains/iter/len/clear`). A production
// build calls through WASM host imports; MemoryHost below is the
// reference implementation used by tests and by the host simulator
// (internal/hostsim) — it does not implement real CRDT merge
// semantics (that's explicitly the host's job, §1 Non-goals), only
// last-writer-wins storage sufficient to exercise the guest-side
// proxy and propagation contracts.
type Host interface {
	MapNew() ID
	MapGet(id ID, key []byte) ([]byte, bool, error)
	// MapSet is insert-or-merge: if merge is non-nil and the key already
	// exists, merge(current, value) is written instead of value (§4.6).
	MapSet(id ID, key, value []byte, merge Merger) error
	MapRemove(id ID, key []byte) error
	MapHas(id ID, key []byte) (bool, error)
	MapEntries(id ID) ([]Entry, error)
	MapKeys(id ID) ([][]byte, error)
	MapValues(id ID) ([][]byte, error)
	MapLen(id ID) (int, error)

	SetNew() ID
	SetAdd(id ID, member []byte) error
	SetDelete(id ID, member []byte) error
	SetHas(id ID, member []byte) (bool, error)
	SetLen(id ID) (int, error)
	SetToArray(id ID) ([][]byte, error)
	SetClear(id ID) error

	SeqNew() ID
	SeqPush(id ID, value []byte) error
	SeqPop(id ID) ([]byte, bool, error)
	SeqGet(id ID, index int) ([]byte, bool, error)
	SeqLen(id ID) (int, error)
	SeqToArray(id ID) ([][]byte, error)

	CounterNew() ID
	CounterIncrementBy(id ID, executor [32]byte, delta uint64) error
	CounterValue(id ID) (*big.Int, error)
	CounterPerExecutor(id ID) (map[[32]byte]*big.Int, error)

	LWWNew() ID
	LWWSet(id ID, value []byte) error
	LWWGet(id ID) ([]byte, bool, error)
	LWWTimestamp(id ID) (int64, bool, error)

	UserStoreNew() ID
	UserStoreInsert(id ID, executor [32]byte, value []byte) error
	UserStoreGet(id ID, executor [32]byte) ([]byte, bool, error)
	UserStoreGetForUser(id ID, executor [32]byte) ([]byte, bool, error)
	UserStoreContains(id ID, executor [32]byte) (bool, error)
	UserStoreRemove(id ID, executor [32]byte) error

	FrozenNew() ID
	FrozenAdd(id ID, data []byte) ([32]byte, error)
	FrozenGet(id ID, digest [32]byte) ([]byte, bool, error)
	FrozenContains(id ID, digest [32]byte) (bool, error)

	// CurrentExecutor returns the public key identity the active call is
	// running under (§5 Executor), used to enforce per-user store writes.
	CurrentExecutor() [32]byte

	// NotifyCollectionModified records that id produced a mutation, for
	// delta-ordering purposes (property 7); it does not itself propagate
	// to parents — that's the Tracker's job (§4.6).
	NotifyCollectionModified(id ID)
}

// Entry is one (key, value) pair as returned by MapEntries, preserving
// the host's iteration order.
type Entry struct {
	Key   []byte
	Value []byte
}

// Merger implements the deterministic conflict-resolution strategy
// applied by OrderedMap.Set when the existing value at a key is itself a
// mergeable record (§4.6).
type Merger interface {
	Merge(current, incoming []byte) []byte
}

// MergerFunc adapts a plain function to Merger.
type MergerFunc func(current, incoming []byte) []byte

func (f MergerFunc) Merge(current, incoming []byte) []byte { return f(current, incoming) }
