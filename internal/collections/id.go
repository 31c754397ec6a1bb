// Package collections implements the CRDT collection proxy layer of §4.6:
// ordered map, ordered set, sequence, counter, LWW register, per-user
// signed store, content-addressed immutable store, and the nested-
// collection change-propagation tracker. Every collection is a thin
// handle over a 32-byte identifier; the guest never stores the elements
// themselves, only calls into a Host.
package collections

import (
	"crypto/rand"
	"encoding/hex"
)

// ID is the 32-byte opaque collection identifier of §3, assigned by the
// host when a new collection is created.
type ID [32]byte

// Hex returns the persisted, hex-encoded form used in root snapshots.
func (id ID) Hex() string { return hex.EncodeToString(id[:]) }

// IDFromHex parses the persisted form back into an ID.
func IDFromHex(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, errInvalidIDLength
	}
	copy(id[:], b)
	return id, nil
}

// NewID generates a fresh random identifier; in production this is the
// host's job (§3 "a 32-byte opaque blob assigned by the host"), but the
// reference Host below plays that role for tests and the host simulator.
func NewID() ID {
	var id ID
	_, _ = rand.Read(id[:])
	return id
}

var errInvalidIDLength = idLengthError{}

type idLengthError struct{}

func (idLengthError) Error() string { return "collection id must decode to exactly 32 bytes" }
