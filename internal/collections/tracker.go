package collections

// maxPropagationIterations bounds the nested-collection propagation walk
// (§4.6: "bounded iteration, at least 100") so a pathological or
// accidentally cyclic nesting graph cannot hang a dispatch call.
const maxPropagationIterations = 128

type edge struct {
	parent     ID
	parentKind Kind
	key        []byte
}

// Tracker records which collections are nested inside which others, and
// propagates a child mutation up through every ancestor so that each
// ancestor also produces a delta action for the call that caused the
// mutation (§4.6, §8 "nested map containing sets" scenario).
//
// One Tracker serves every call of a guest: hostsim.Guest constructs it
// once, binds its host, and shares it with the collection constructors
// and the state rehydrator, so edges registered by earlier calls are
// kept.
type Tracker struct {
	edges map[ID][]edge
	known map[ID]Kind
	host  Host
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{edges: make(map[ID][]edge), known: make(map[ID]Kind)}
}

func (t *Tracker) trackNew(id ID, kind Kind) {
	t.known[id] = kind
}

// Register records that child is stored under key inside parent, so a
// later mutation of child also re-touches parent.
func (t *Tracker) Register(child ID, childKind Kind, parent ID, parentKind Kind, key []byte) {
	t.known[child] = childKind
	t.known[parent] = parentKind
	t.edges[child] = append(t.edges[child], edge{parent: parent, parentKind: parentKind, key: append([]byte(nil), key...)})
}

// Propagate walks from a mutated collection up through every registered
// ancestor, notifying the host of each one touched. Each iteration of
// the walk uses a fresh "processed" set so the same ancestor can be
// revisited on a later iteration if it's reachable through more than one
// path, while never being notified twice within the same iteration.
func (t *Tracker) Propagate(start ID) {
	if t.host == nil {
		return
	}
	frontier := []ID{start}
	for i := 0; i < maxPropagationIterations && len(frontier) > 0; i++ {
		processed := make(map[ID]bool)
		var next []ID
		for _, id := range frontier {
			for _, e := range t.edges[id] {
				if processed[e.parent] {
					continue
				}
				processed[e.parent] = true
				t.host.NotifyCollectionModified(e.parent)
				next = append(next, e.parent)
			}
		}
		frontier = next
	}
}

// SetHost binds the host used to deliver propagation notifications. Must
// be called before any Propagate; hostsim.Guest does this once when it
// constructs the Tracker.
func (t *Tracker) SetHost(h Host) { t.host = h }
