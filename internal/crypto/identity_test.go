package crypto

import "testing"

func TestExecutorIdentitySignVerifyRoundTrip(t *testing.T) {
	id, err := NewExecutorIdentity()
	if err != nil {
		t.Fatal(err)
	}
	argBytes := []byte("increment:amount=5")
	sig := id.Sign(argBytes)
	if len(sig) != 64 {
		t.Fatalf("expected a 64-byte signature, got %d", len(sig))
	}
	if !VerifyCallSignature(id.Public, argBytes, sig) {
		t.Fatal("expected signature to verify against the executor's own public key")
	}
	if VerifyCallSignature(id.Public, []byte("tampered"), sig) {
		t.Fatal("expected signature to fail over different argument bytes")
	}
}

func TestExecutorIdentitySealOpenRoundTrip(t *testing.T) {
	key := testKey()
	id, err := NewExecutorIdentity()
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := id.SealPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	if !IsEncrypted(sealed) {
		t.Fatalf("expected sealed private key to be encrypted, got %q", sealed)
	}

	reopened, err := OpenExecutorIdentity(id.Public, sealed, key)
	if err != nil {
		t.Fatal(err)
	}
	argBytes := []byte("payload")
	if !VerifyCallSignature(reopened.Public, argBytes, reopened.Sign(argBytes)) {
		t.Fatal("reopened identity should sign verifiably")
	}
}
