package hostsim

import (
	"log/slog"

	"github.com/rakunlabs/wasmsvc/internal/collections"
)

// DispatchHost is the dispatch.Host the simulator hands every
// Dispatcher: delta flush maps onto collections.MemoryHost's modified-
// id bookkeeping (§4.8 step 4 — "committed" means at least one
// collection changed since the last flush), and Panic logs the fatal
// message the way a real host would before tearing the call down.
type DispatchHost struct {
	Collections *collections.MemoryHost
	Logger      *slog.Logger
}

func NewDispatchHost(col *collections.MemoryHost, logger *slog.Logger) *DispatchHost {
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchHost{Collections: col, Logger: logger}
}

func (h *DispatchHost) FlushDeltas() (bool, error) {
	modified := h.Collections.Modified()
	if len(modified) == 0 {
		return false, nil
	}
	h.Collections.ResetModified()
	return true, nil
}

func (h *DispatchHost) Panic(message string) {
	h.Logger.Error("hostsim: guest call panicked", "message", message)
}
