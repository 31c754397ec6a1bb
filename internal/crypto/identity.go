package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
)

// ExecutorIdentity is one executor's Ed25519 keypair: a 32-byte public
// key (the executor identifier §3 collection operations key by) and its
// matching 64-byte-signature-producing private key.
type ExecutorIdentity struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// NewExecutorIdentity generates a fresh Ed25519 keypair for a new
// executor joining the host simulator.
func NewExecutorIdentity() (ExecutorIdentity, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return ExecutorIdentity{}, fmt.Errorf("crypto: generate executor identity: %w", err)
	}
	return ExecutorIdentity{Public: pub, private: priv}, nil
}

// Sign produces the 64-byte signature the host simulator attaches to a
// forwarded mutating call, over the exact argument bytes the guest will
// decode (§4.8 step 2's argBytes).
func (id ExecutorIdentity) Sign(argBytes []byte) []byte {
	return ed25519.Sign(id.private, argBytes)
}

// SealPrivateKey encrypts the private key for storage, keyed by the
// host simulator's configured at-rest encryption key. With an empty key
// the private key is returned as plain base64.
func (id ExecutorIdentity) SealPrivateKey(key []byte) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(id.private)
	if len(key) == 0 {
		return encoded, nil
	}
	return Encrypt(encoded, key)
}

// OpenExecutorIdentity reconstructs an ExecutorIdentity from its public
// key and a sealed (or, with no encryption configured, plain
// base64-encoded) private key.
func OpenExecutorIdentity(public ed25519.PublicKey, sealedPrivate string, key []byte) (ExecutorIdentity, error) {
	raw, err := Decrypt(sealedPrivate, key)
	if err != nil {
		return ExecutorIdentity{}, fmt.Errorf("crypto: unseal executor private key: %w", err)
	}
	priv, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return ExecutorIdentity{}, fmt.Errorf("crypto: decode executor private key: %w", err)
	}
	if len(priv) != ed25519.PrivateKeySize {
		return ExecutorIdentity{}, errors.New("crypto: corrupt executor private key")
	}
	return ExecutorIdentity{Public: public, private: ed25519.PrivateKey(priv)}, nil
}

// VerifyCallSignature reports whether signature is a valid Ed25519
// signature over argBytes under executor's public key — the host
// simulator's check before forwarding a mutating call to the guest.
func VerifyCallSignature(executor ed25519.PublicKey, argBytes, signature []byte) bool {
	return ed25519.Verify(executor, argBytes, signature)
}
