// Adapted from internal/cluster/cluster.go (alan UDP peer discovery for
// distributed encryption-key rotation) into the §6 context_members /
// context_add_member / xcall host imports: peers in an alan cluster
// are the "context" a guest's xcall can reach, and alan's
// request/reply channel backs the cross-member dispatch.
package hostsim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/rakunlabs/alan"
)

const callMessageType = "xcall"

// callMessage is the wire envelope one xcall sends to a peer.
type callMessage struct {
	Type   string `json:"type"`
	Method string `json:"method"`
	Args   []byte `json:"args"`
}

// Cluster models one guest deployment's peer context (§6): the set of
// other host-simulator instances it can reach via xcall.
type Cluster struct {
	alan *alan.Alan
}

// NewCluster builds a Cluster from the host simulator's alan config.
// A nil cfg disables clustering: NewCluster then returns a nil *Cluster
// and no error.
func NewCluster(cfg *alan.Config) (*Cluster, error) {
	if cfg == nil {
		return nil, nil
	}
	a, err := alan.New(*cfg)
	if err != nil {
		return nil, fmt.Errorf("hostsim: create alan cluster: %w", err)
	}
	return &Cluster{alan: a}, nil
}

// Start runs peer discovery and handles inbound xcall requests by
// forwarding the decoded method+args to dispatch via onCall, replying
// with whatever bytes onCall returns. Start blocks until ctx is done.
func (c *Cluster) Start(ctx context.Context, onCall func(method string, args []byte) ([]byte, error)) error {
	c.alan.OnPeerJoin(func(addr *net.UDPAddr) {
		slog.Info("hostsim: cluster peer joined", "addr", addr.String())
	})
	c.alan.OnPeerLeave(func(addr *net.UDPAddr) {
		slog.Info("hostsim: cluster peer left", "addr", addr.String())
	})

	handler := func(_ context.Context, msg alan.Message) {
		var cm callMessage
		if err := json.Unmarshal(msg.Data, &cm); err != nil {
			slog.Warn("hostsim: cluster: invalid xcall envelope", "from", msg.Addr, "error", err)
			return
		}
		if cm.Type != callMessageType {
			return
		}

		result, err := onCall(cm.Method, cm.Args)
		if err != nil {
			slog.Error("hostsim: xcall failed", "method", cm.Method, "from", msg.Addr, "error", err)
			return
		}
		if msg.IsRequest() {
			c.alan.Reply(msg, result) //nolint:errcheck
		}
	}

	return c.alan.Start(ctx, handler)
}

func (c *Cluster) Stop() error {
	return c.alan.Stop()
}

// Members reports the context's peer addresses (§6 context_members),
// this instance included implicitly.
func (c *Cluster) Members() []string {
	peers := c.alan.Peers()
	members := make([]string, 0, len(peers))
	for _, p := range peers {
		members = append(members, p.String())
	}
	return members
}

// Xcall dispatches method+args to every peer in the context and
// reports whether at least one peer acknowledged it (§6 xcall).
// Like internal/cluster/cluster.go's BroadcastNewKey, it treats the
// acknowledgement count as the signal of success — alan's reply
// payload isn't decoded further here, the same restraint the teacher
// takes with its own SendAndWaitReply callers.
func (c *Cluster) Xcall(ctx context.Context, method string, args []byte, timeout time.Duration) (bool, error) {
	cm := callMessage{Type: callMessageType, Method: method, Args: args}
	data, err := json.Marshal(cm)
	if err != nil {
		return false, fmt.Errorf("hostsim: marshal xcall envelope: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	replies, err := c.alan.SendAndWaitReply(callCtx, data)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return false, fmt.Errorf("hostsim: xcall %q: %w", method, err)
	}
	return len(replies) > 0, nil
}

// Ready returns a channel closed once cluster discovery has settled.
func (c *Cluster) Ready() <-chan struct{} {
	return c.alan.Ready()
}
