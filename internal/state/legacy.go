package state

import (
	"encoding/hex"
	"encoding/json"

	"github.com/rakunlabs/wasmsvc/internal/abierr"
)

// legacyEntry is one field of the pre-ABI textual format: a JSON object
// whose values were hex-encoded JSON blobs rather than the current
// {scalars, collections, metadata} shape.
type legacyEntry struct {
	Value json.RawMessage `json:"value"`
	Kind  string          `json:"kind,omitempty"`
}

// migrateLegacy parses the flat legacy document and synthesizes a
// current-format Document from every field; a field that is not a
// hex-encoded {"value": ...} entry fails the whole migration.
// Collection fields cannot be recovered from the legacy format (it
// predates the ABI collection registry) and migrate as plain scalars;
// a guest that declared those fields as collections will reinitialize
// them empty on next save, which is the documented migration behavior.
func migrateLegacy(raw []byte) (Document, error) {
	var flat map[string]string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return Document{}, abierr.Storage(abierr.CodeReadFailed, "legacy document is not a flat string map: "+err.Error())
	}

	doc := Document{
		Scalars:     make(map[string]any, len(flat)),
		Collections: make(map[string]CollectionRef),
	}
	for name, hexVal := range flat {
		raw, err := hex.DecodeString(hexVal)
		if err != nil {
			return Document{}, abierr.Storage(abierr.CodeReadFailed, "legacy field "+name+" is not hex-encoded: "+err.Error())
		}
		var entry legacyEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return Document{}, abierr.Storage(abierr.CodeReadFailed, "legacy field "+name+" is not a valid entry: "+err.Error())
		}
		var v any
		if err := json.Unmarshal(entry.Value, &v); err != nil {
			return Document{}, abierr.Storage(abierr.CodeReadFailed, "legacy field "+name+" value is not valid JSON: "+err.Error())
		}
		doc.Scalars[name] = v
	}
	return doc, nil
}
