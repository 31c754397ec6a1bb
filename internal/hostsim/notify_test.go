package hostsim

import (
	"testing"

	"github.com/rakunlabs/wasmsvc/internal/config"
)

func TestNotifyEventNoOpWithoutSMTPHost(t *testing.T) {
	n := NewNotifier(config.Notify{})
	if err := n.NotifyEvent("user@example.com", "Deposited", []byte(`{"amount":5}`)); err != nil {
		t.Fatalf("expected an unconfigured notifier to no-op, got %v", err)
	}
}
