package state

import (
	"github.com/rakunlabs/wasmsvc/internal/abierr"
	"github.com/rakunlabs/wasmsvc/internal/collections"
)

// CollectionHandle is satisfied by every collections proxy type
// (OrderedMap, OrderedSet, Sequence, Counter, LWWRegister, UserStore,
// FrozenStore) via their embedded collections.Handle.
type CollectionHandle interface {
	ID() collections.ID
	Kind() collections.Kind
}

// Store is the host persistence import the engine saves/loads through:
// a single document per state root, addressed by key (§4.7).
type Store interface {
	LoadDocument(key string) ([]byte, bool, error)
	SaveDocument(key string, data []byte) error
	DeleteDocument(key string) error
}

// Rehydrator reconstructs a CollectionHandle from a persisted
// CollectionRef. Each state root registers one, built from the same
// Host and Tracker the rest of the call uses.
type Rehydrator func(ref CollectionRef) (CollectionHandle, error)

// Clock returns the current time as a Unix timestamp. Production wiring
// uses time.Now().Unix(); tests pass a fixed or incrementing stub so
// property 4/5 assertions about ordering don't depend on wall time.
type Clock func() int64

// Engine is the root-state engine of §4.7: it owns no state itself,
// only the store and clock a given state root saves/loads through.
type Engine struct {
	store Store
	clock Clock
}

// New builds an Engine over store, using clock for metadata timestamps.
func New(store Store, clock Clock) *Engine {
	return &Engine{store: store, clock: clock}
}

// Instance is the logic object's own fields as seen by the engine: plain
// Go values for scalars, CollectionHandle for registered collections.
type Instance map[string]any

// Save walks instance's fields, splitting collection handles from plain
// scalars (§4.7 invariant a), stamps metadata, and persists the result
// under key. prior is the previously loaded Metadata if this is an
// update, or the zero value on first save.
func (e *Engine) Save(key string, instance Instance, prior Metadata) (Metadata, error) {
	doc := Document{
		Scalars:     make(map[string]any),
		Collections: make(map[string]CollectionRef),
	}
	for name, v := range instance {
		if ch, ok := v.(CollectionHandle); ok {
			doc.Collections[name] = CollectionRef{Type: string(ch.Kind()), ID: ch.ID()}
			continue
		}
		doc.Scalars[name] = v
	}

	now := e.clock()
	doc.Metadata.CreatedAt = prior.CreatedAt
	if doc.Metadata.CreatedAt == 0 {
		doc.Metadata.CreatedAt = now
	}
	doc.Metadata.UpdatedAt = now
	if doc.Metadata.UpdatedAt < doc.Metadata.CreatedAt {
		doc.Metadata.UpdatedAt = doc.Metadata.CreatedAt
	}

	raw, err := doc.MarshalBinary()
	if err != nil {
		return Metadata{}, err
	}
	if err := e.store.SaveDocument(key, raw); err != nil {
		return Metadata{}, abierr.Storage(abierr.CodeWriteFailed, err.Error()).WithContext(map[string]any{"key": key})
	}
	return doc.Metadata, nil
}

// Load fetches and decodes the document stored under key, rehydrating
// each collection field through rehydrate. ok is false when no document
// has ever been saved under key (§4.8: the init-method single-shot
// guard uses this to detect "no prior state").
func (e *Engine) Load(key string, rehydrate Rehydrator) (Instance, Metadata, bool, error) {
	raw, ok, err := e.store.LoadDocument(key)
	if err != nil {
		return nil, Metadata{}, false, abierr.Storage(abierr.CodeReadFailed, err.Error()).WithContext(map[string]any{"key": key})
	}
	if !ok {
		return nil, Metadata{}, false, nil
	}

	if looksLegacy(raw) {
		migrated, err := migrateLegacy(raw)
		if err != nil {
			return nil, Metadata{}, false, err
		}
		now := e.clock()
		migrated.Metadata = Metadata{CreatedAt: now, UpdatedAt: now}
		raw, err = migrated.MarshalBinary()
		if err != nil {
			return nil, Metadata{}, false, err
		}
		if err := e.store.SaveDocument(key, raw); err != nil {
			return nil, Metadata{}, false, abierr.Storage(abierr.CodeWriteFailed, err.Error())
		}
	}

	doc, err := UnmarshalDocument(raw)
	if err != nil {
		return nil, Metadata{}, false, err
	}

	instance := make(Instance, len(doc.Scalars)+len(doc.Collections))
	for name, v := range doc.Scalars {
		instance[name] = v
	}
	for name, ref := range doc.Collections {
		ch, err := rehydrate(ref)
		if err != nil {
			return nil, Metadata{}, false, err
		}
		instance[name] = ch
	}
	return instance, doc.Metadata, true, nil
}
