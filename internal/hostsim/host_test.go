package hostsim

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/rakunlabs/wasmsvc/internal/collections"
)

func TestDispatchHostFlushDeltasReportsAndResetsModified(t *testing.T) {
	col := collections.NewMemoryHost([32]byte{})
	host := NewDispatchHost(col, nil)

	committed, err := host.FlushDeltas()
	if err != nil {
		t.Fatal(err)
	}
	if committed {
		t.Fatal("expected no commit with nothing modified")
	}

	col.NotifyCollectionModified(collections.NewID())
	committed, err = host.FlushDeltas()
	if err != nil {
		t.Fatal(err)
	}
	if !committed {
		t.Fatal("expected a commit after a collection was modified")
	}

	committed, err = host.FlushDeltas()
	if err != nil {
		t.Fatal(err)
	}
	if committed {
		t.Fatal("expected modified set to be cleared after a flush")
	}
}

func TestDispatchHostPanicLogsMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	host := NewDispatchHost(collections.NewMemoryHost([32]byte{}), logger)

	host.Panic("boom")

	if !bytes.Contains(buf.Bytes(), []byte("boom")) {
		t.Fatalf("expected logged output to contain the panic message, got %q", buf.String())
	}
}
