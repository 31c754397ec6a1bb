package collections

import "math/big"

// Handle is the common base every collection proxy embeds: an opaque id,
// its kind, the host it calls through, and the tracker that records
// parent/child nesting for change propagation (§4.6).
type Handle struct {
	id      ID
	kind    Kind
	host    Host
	tracker *Tracker
}

// ID returns the collection's opaque identifier, as persisted in a
// parent's stored value or in the root snapshot.
func (h Handle) ID() ID { return h.id }

// Kind reports which of the seven shapes this handle proxies.
func (h Handle) Kind() Kind { return h.kind }

func (h Handle) notifyModified() {
	h.host.NotifyCollectionModified(h.id)
	if h.tracker != nil {
		h.tracker.Propagate(h.id)
	}
}

// newHandle wires a freshly-created or freshly-loaded id into host and
// tracker. Every concrete collection constructor below calls this.
func newHandle(id ID, kind Kind, host Host, tracker *Tracker) Handle {
	return Handle{id: id, kind: kind, host: host, tracker: tracker}
}

// OrderedMap proxies a map<K,V> collection (§4.6): insertion order is
// preserved by the host, Set is insert-or-merge via an optional Merger.
type OrderedMap struct {
	Handle
}

// NewOrderedMap creates a new empty map collection.
func NewOrderedMap(host Host, tracker *Tracker) OrderedMap {
	id := host.MapNew()
	m := OrderedMap{newHandle(id, KindMap, host, tracker)}
	if tracker != nil {
		tracker.trackNew(id, KindMap)
	}
	return m
}

// LoadOrderedMap wraps an existing map id (read back from a root field).
func LoadOrderedMap(id ID, host Host, tracker *Tracker) OrderedMap {
	return OrderedMap{newHandle(id, KindMap, host, tracker)}
}

func (m OrderedMap) Get(key []byte) ([]byte, bool, error) { return m.host.MapGet(m.id, key) }

func (m OrderedMap) Set(key, value []byte, merge Merger) error {
	if err := m.host.MapSet(m.id, key, value, merge); err != nil {
		return err
	}
	m.notifyModified()
	return nil
}

func (m OrderedMap) Remove(key []byte) error {
	if err := m.host.MapRemove(m.id, key); err != nil {
		return err
	}
	m.notifyModified()
	return nil
}

func (m OrderedMap) Has(key []byte) (bool, error)        { return m.host.MapHas(m.id, key) }
func (m OrderedMap) Entries() ([]Entry, error)            { return m.host.MapEntries(m.id) }
func (m OrderedMap) Keys() ([][]byte, error)              { return m.host.MapKeys(m.id) }
func (m OrderedMap) Values() ([][]byte, error)            { return m.host.MapValues(m.id) }
func (m OrderedMap) Len() (int, error)                    { return m.host.MapLen(m.id) }

// SetChild registers a child collection id as nested under this map at
// key, so a later mutation of the child re-triggers this map's delta
// (§4.6 nested propagation).
func (m OrderedMap) SetChild(key []byte, child ID, childKind Kind) {
	if m.tracker != nil {
		m.tracker.Register(child, childKind, m.id, KindMap, key)
	}
}

// OrderedSet proxies a set<T> collection.
type OrderedSet struct {
	Handle
}

func NewOrderedSet(host Host, tracker *Tracker) OrderedSet {
	id := host.SetNew()
	s := OrderedSet{newHandle(id, KindSet, host, tracker)}
	if tracker != nil {
		tracker.trackNew(id, KindSet)
	}
	return s
}

func LoadOrderedSet(id ID, host Host, tracker *Tracker) OrderedSet {
	return OrderedSet{newHandle(id, KindSet, host, tracker)}
}

func (s OrderedSet) Add(member []byte) error {
	if err := s.host.SetAdd(s.id, member); err != nil {
		return err
	}
	s.notifyModified()
	return nil
}

func (s OrderedSet) Delete(member []byte) error {
	if err := s.host.SetDelete(s.id, member); err != nil {
		return err
	}
	s.notifyModified()
	return nil
}

func (s OrderedSet) Has(member []byte) (bool, error) { return s.host.SetHas(s.id, member) }
func (s OrderedSet) Len() (int, error)                { return s.host.SetLen(s.id) }
func (s OrderedSet) ToArray() ([][]byte, error)        { return s.host.SetToArray(s.id) }

func (s OrderedSet) Clear() error {
	if err := s.host.SetClear(s.id); err != nil {
		return err
	}
	s.notifyModified()
	return nil
}

// Sequence proxies a seq<T> collection (ordered, index-addressable).
type Sequence struct {
	Handle
}

func NewSequence(host Host, tracker *Tracker) Sequence {
	id := host.SeqNew()
	sq := Sequence{newHandle(id, KindSeq, host, tracker)}
	if tracker != nil {
		tracker.trackNew(id, KindSeq)
	}
	return sq
}

func LoadSequence(id ID, host Host, tracker *Tracker) Sequence {
	return Sequence{newHandle(id, KindSeq, host, tracker)}
}

func (sq Sequence) Push(value []byte) error {
	if err := sq.host.SeqPush(sq.id, value); err != nil {
		return err
	}
	sq.notifyModified()
	return nil
}

func (sq Sequence) Pop() ([]byte, bool, error) {
	v, ok, err := sq.host.SeqPop(sq.id)
	if err != nil {
		return nil, false, err
	}
	if ok {
		sq.notifyModified()
	}
	return v, ok, nil
}

func (sq Sequence) Get(index int) ([]byte, bool, error) { return sq.host.SeqGet(sq.id, index) }
func (sq Sequence) Len() (int, error)                     { return sq.host.SeqLen(sq.id) }
func (sq Sequence) ToArray() ([][]byte, error)            { return sq.host.SeqToArray(sq.id) }

// Counter proxies a per-executor incrementing counter (§4.6); its total
// is the sum of every executor's contribution, never decremented.
type Counter struct {
	Handle
}

func NewCounter(host Host, tracker *Tracker) Counter {
	id := host.CounterNew()
	c := Counter{newHandle(id, KindCounter, host, tracker)}
	if tracker != nil {
		tracker.trackNew(id, KindCounter)
	}
	return c
}

func LoadCounter(id ID, host Host, tracker *Tracker) Counter {
	return Counter{newHandle(id, KindCounter, host, tracker)}
}

func (c Counter) Increment(delta uint64) error {
	executor := c.host.CurrentExecutor()
	if err := c.host.CounterIncrementBy(c.id, executor, delta); err != nil {
		return err
	}
	c.notifyModified()
	return nil
}

func (c Counter) Total() (*big.Int, error) { return c.host.CounterValue(c.id) }

func (c Counter) PerExecutor() (map[[32]byte]*big.Int, error) {
	return c.host.CounterPerExecutor(c.id)
}

// LWWRegister proxies a last-writer-wins register.
type LWWRegister struct {
	Handle
}

func NewLWWRegister(host Host, tracker *Tracker) LWWRegister {
	id := host.LWWNew()
	r := LWWRegister{newHandle(id, KindLWW, host, tracker)}
	if tracker != nil {
		tracker.trackNew(id, KindLWW)
	}
	return r
}

func LoadLWWRegister(id ID, host Host, tracker *Tracker) LWWRegister {
	return LWWRegister{newHandle(id, KindLWW, host, tracker)}
}

func (r LWWRegister) Set(value []byte) error {
	if err := r.host.LWWSet(r.id, value); err != nil {
		return err
	}
	r.notifyModified()
	return nil
}

func (r LWWRegister) Get() ([]byte, bool, error)        { return r.host.LWWGet(r.id) }
func (r LWWRegister) Timestamp() (int64, bool, error)   { return r.host.LWWTimestamp(r.id) }

// UserStore proxies a per-user signed store: each executor may write
// only their own slot (§4.6, §5).
type UserStore struct {
	Handle
}

func NewUserStore(host Host, tracker *Tracker) UserStore {
	id := host.UserStoreNew()
	u := UserStore{newHandle(id, KindUser, host, tracker)}
	if tracker != nil {
		tracker.trackNew(id, KindUser)
	}
	return u
}

func LoadUserStore(id ID, host Host, tracker *Tracker) UserStore {
	return UserStore{newHandle(id, KindUser, host, tracker)}
}

// Insert writes the current executor's own slot.
func (u UserStore) Insert(value []byte) error {
	executor := u.host.CurrentExecutor()
	if err := u.host.UserStoreInsert(u.id, executor, value); err != nil {
		return err
	}
	u.notifyModified()
	return nil
}

// Get reads the current executor's own slot.
func (u UserStore) Get() ([]byte, bool, error) {
	return u.host.UserStoreGet(u.id, u.host.CurrentExecutor())
}

// GetForUser reads an arbitrary executor's slot (read-only, any caller).
func (u UserStore) GetForUser(executor [32]byte) ([]byte, bool, error) {
	return u.host.UserStoreGetForUser(u.id, executor)
}

func (u UserStore) Contains(executor [32]byte) (bool, error) {
	return u.host.UserStoreContains(u.id, executor)
}

func (u UserStore) Remove() error {
	executor := u.host.CurrentExecutor()
	if err := u.host.UserStoreRemove(u.id, executor); err != nil {
		return err
	}
	u.notifyModified()
	return nil
}

// FrozenStore proxies a content-addressed immutable store: once written
// under a digest, a value never changes (§4.6).
type FrozenStore struct {
	Handle
}

func NewFrozenStore(host Host, tracker *Tracker) FrozenStore {
	id := host.FrozenNew()
	f := FrozenStore{newHandle(id, KindFrozen, host, tracker)}
	if tracker != nil {
		tracker.trackNew(id, KindFrozen)
	}
	return f
}

func LoadFrozenStore(id ID, host Host, tracker *Tracker) FrozenStore {
	return FrozenStore{newHandle(id, KindFrozen, host, tracker)}
}

func (f FrozenStore) Add(data []byte) ([32]byte, error) {
	digest, err := f.host.FrozenAdd(f.id, data)
	if err != nil {
		return digest, err
	}
	f.notifyModified()
	return digest, nil
}

func (f FrozenStore) Get(digest [32]byte) ([]byte, bool, error) {
	return f.host.FrozenGet(f.id, digest)
}

func (f FrozenStore) Contains(digest [32]byte) (bool, error) {
	return f.host.FrozenContains(f.id, digest)
}
