// Package hostsim is the host-node simulator of SPEC_FULL.md §6/§9:
// a test/dev collaborator a compiled guest can run against without a
// real WASM runtime or production CRDT host behind it. It wires
// internal/state, internal/collections, and internal/dispatch — the
// runtime kernel — to an in-process script evaluator (pkg/scriptvm)
// standing in for the compiled module, an ada HTTP surface standing in
// for the host's call transport, and a goqu-backed or in-memory store
// standing in for the host's persistence layer.
package hostsim

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/rakunlabs/wasmsvc/internal/abi"
	"github.com/rakunlabs/wasmsvc/internal/collections"
	"github.com/rakunlabs/wasmsvc/internal/crypto"
	"github.com/rakunlabs/wasmsvc/internal/dispatch"
	"github.com/rakunlabs/wasmsvc/internal/hostsim/store"
	"github.com/rakunlabs/wasmsvc/internal/state"
)

const rootStateKey = "root"

func publicKeyHex(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}

// Guest is one deployed guest build running against the simulator: its
// ABI manifest, its bundled script source, and the runtime kernel
// assembled over them.
type Guest struct {
	Manifest   *abi.Manifest
	Dispatcher *dispatch.Dispatcher

	collections   *collections.MemoryHost
	tracker       *collections.Tracker
	Store         store.Store
	EncryptionKey []byte
	Cluster       *Cluster
	Notifier      *Notifier

	logger *slog.Logger
}

// NewGuest assembles the runtime kernel for one guest build: a state
// engine over st, a fresh in-memory collection host and nested-
// collection tracker, the ScriptLogic running bundledSource, and the
// dispatcher tying them together under the manifest's method table.
func NewGuest(manifest *abi.Manifest, bundledSource string, st store.Store, encryptionKey []byte, cluster *Cluster, notifier *Notifier, logger *slog.Logger) *Guest {
	if logger == nil {
		logger = slog.Default()
	}

	col := collections.NewMemoryHost([32]byte{})
	tracker := collections.NewTracker()
	tracker.SetHost(col)

	engine := state.New(st, func() int64 { return time.Now().Unix() })
	logic := NewScriptLogic(bundledSource, col, tracker)
	host := NewDispatchHost(col, logger)
	rehydrate := NewRehydrator(col, tracker)

	disp := dispatch.New(manifest, engine, logic, host, rehydrate, logger, rootStateKey)

	return &Guest{
		Manifest:      manifest,
		Dispatcher:    disp,
		collections:   col,
		tracker:       tracker,
		Store:         st,
		EncryptionKey: encryptionKey,
		Cluster:       cluster,
		Notifier:      notifier,
		logger:        logger,
	}
}

// IssueIdentity generates and persists a fresh executor identity,
// sealing its private key at rest under g.EncryptionKey (§6 executor
// identity).
func (g *Guest) IssueIdentity() (crypto.ExecutorIdentity, error) {
	id, err := crypto.NewExecutorIdentity()
	if err != nil {
		return crypto.ExecutorIdentity{}, err
	}
	sealed, err := id.SealPrivateKey(g.EncryptionKey)
	if err != nil {
		return crypto.ExecutorIdentity{}, fmt.Errorf("hostsim: seal executor identity: %w", err)
	}
	if err := g.Store.SaveIdentity(publicKeyHex(id.Public), sealed); err != nil {
		return crypto.ExecutorIdentity{}, fmt.Errorf("hostsim: persist executor identity: %w", err)
	}
	return id, nil
}

// LoadIdentity reconstructs a previously issued executor identity from
// the store, by its hex-encoded public key.
func (g *Guest) LoadIdentity(publicKeyHex string) (crypto.ExecutorIdentity, bool, error) {
	sealed, ok, err := g.Store.LoadIdentity(publicKeyHex)
	if err != nil || !ok {
		return crypto.ExecutorIdentity{}, ok, err
	}
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return crypto.ExecutorIdentity{}, false, fmt.Errorf("hostsim: decode executor public key: %w", err)
	}
	id, err := crypto.OpenExecutorIdentity(ed25519.PublicKey(raw), sealed, g.EncryptionKey)
	return id, true, err
}

// DispatchAs runs one call against the guest's dispatcher under the
// given executor identity: VerifyCallSignature must already have
// authorized argBytes by this point (§6's mutating-call signature
// check) — DispatchAs only sets whose identity collection writes are
// attributed to.
func (g *Guest) DispatchAs(executor ed25519.PublicKey, methodName string, argBytes []byte) ([]byte, error) {
	var id [32]byte
	copy(id[:], executor)
	g.collections.SetExecutor(id)
	return g.Dispatcher.Dispatch(methodName, argBytes)
}
