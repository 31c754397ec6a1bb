package hostsim

import (
	"fmt"

	"github.com/rakunlabs/wasmsvc/internal/collections"
	"github.com/rakunlabs/wasmsvc/internal/state"
)

// NewRehydrator builds the state.Rehydrator one Guest wires into its
// state.Engine: it reconstructs the right typed collection proxy for a
// persisted CollectionRef's Type tag, over the given host and tracker.
func NewRehydrator(host collections.Host, tracker *collections.Tracker) state.Rehydrator {
	return func(ref state.CollectionRef) (state.CollectionHandle, error) {
		switch collections.Kind(ref.Type) {
		case collections.KindMap:
			return collections.LoadOrderedMap(ref.ID, host, tracker), nil
		case collections.KindSet:
			return collections.LoadOrderedSet(ref.ID, host, tracker), nil
		case collections.KindSeq:
			return collections.LoadSequence(ref.ID, host, tracker), nil
		case collections.KindCounter:
			return collections.LoadCounter(ref.ID, host, tracker), nil
		case collections.KindLWW:
			return collections.LoadLWWRegister(ref.ID, host, tracker), nil
		case collections.KindUser:
			return collections.LoadUserStore(ref.ID, host, tracker), nil
		case collections.KindFrozen:
			return collections.LoadFrozenStore(ref.ID, host, tracker), nil
		default:
			return nil, fmt.Errorf("hostsim: unknown collection kind %q", ref.Type)
		}
	}
}
