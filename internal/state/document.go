// Package state implements the root-state engine of §4.7: splitting a
// logic instance's fields into scalars and collection references,
// stamping creation/update metadata, and persisting the result through
// the host's document store.
package state

import (
	"encoding/json"

	"github.com/rakunlabs/wasmsvc/internal/abierr"
	"github.com/rakunlabs/wasmsvc/internal/collections"
)

// CollectionRef is what gets stored in place of a collection field's
// value: the declared type name and the opaque id the host assigned it.
type CollectionRef struct {
	Type string        `json:"type"`
	ID   collections.ID `json:"id"`
}

// Metadata tracks the document's lifecycle timestamps (§4.7 invariant b:
// monotonically non-decreasing within a process).
type Metadata struct {
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// Document is the wire shape persisted by the host: plain scalar fields,
// collection field references, and metadata. A collection's elements are
// never embedded by value (§4.7 invariant a).
type Document struct {
	Scalars     map[string]any           `json:"scalars"`
	Collections map[string]CollectionRef `json:"collections"`
	Metadata    Metadata                 `json:"metadata"`
}

// MarshalBinary gives Document a deterministic JSON encoding for storage.
// JSON (not the ABI binary codec) is used here because the document's
// scalar field set is open-ended and host-defined, unlike a fixed ABI
// record — §4.7 only requires the *root document itself* round-trip
// byte-for-byte, not that it share the ABI wire format.
func (d Document) MarshalBinary() ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, abierr.Storage(abierr.CodeWriteFailed, err.Error())
	}
	return b, nil
}

// UnmarshalDocument decodes a previously persisted Document.
func UnmarshalDocument(b []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return Document{}, abierr.Storage(abierr.CodeReadFailed, err.Error())
	}
	if d.Scalars == nil {
		d.Scalars = make(map[string]any)
	}
	if d.Collections == nil {
		d.Collections = make(map[string]CollectionRef)
	}
	return d, nil
}

// looksLegacy reports whether raw is the pre-ABI textual format: a flat
// JSON object whose values are themselves JSON-hex encoded strings,
// rather than the current {scalars, collections, metadata} shape
// (§4.7 "migration step").
func looksLegacy(raw []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	if _, hasScalars := probe["scalars"]; hasScalars {
		return false
	}
	if _, hasMetadata := probe["metadata"]; hasMetadata {
		return false
	}
	for _, v := range probe {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return false
		}
	}
	return len(probe) > 0
}
