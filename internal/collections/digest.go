package collections

import "crypto/sha256"

// sha256Digest is the content address used by FrozenStore (§4.6: "content-
// addressed immutable store").
func sha256Digest(data []byte) [32]byte {
	return sha256.Sum256(data)
}
