package abi

// StateSchema is the filtered sidecar of §6: only state_root and types,
// methods and events omitted.
type StateSchema struct {
	StateRoot string             `json:"state_root,omitempty"`
	Types     map[string]TypeDef `json:"types"`
}

// StateSchema projects a Manifest down to its state-schema sidecar.
func (m *Manifest) StateSchema() StateSchema {
	types := make(map[string]TypeDef, len(m.Types))
	for k, v := range m.Types {
		types[k] = v
	}
	return StateSchema{StateRoot: m.StateRoot, Types: types}
}
