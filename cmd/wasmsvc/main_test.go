package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rakunlabs/wasmsvc/internal/emitter"
)

const validGuestSource = `
registerState("Counter", { total: "counter" });
registerLogic("CounterLogic", "Counter", {
  init:      { returns: "Counter", init: true },
  increment: { params: { amount: "u64" } },
  total:     { returns: "u64", view: true }
});
`

func TestRootCmdRegistersTheThreeSubcommands(t *testing.T) {
	root := rootCmd()
	want := map[string]bool{"build": false, "validate": false, "serve-host": false}
	for _, c := range root.Commands() {
		name := c.Name()
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("expected a %q subcommand, got %v", name, root.Commands())
		}
	}
}

func TestCountDiagErrorsCountsOnlyErrors(t *testing.T) {
	diags := []emitter.Diagnostic{
		{Severity: emitter.SeverityWarning, Message: "warn"},
		{Severity: emitter.SeverityError, Message: "err1"},
		{Severity: emitter.SeverityError, Message: "err2"},
	}
	if n := countDiagErrors(diags); n != 2 {
		t.Fatalf("expected 2 errors, got %d", n)
	}
}

func TestValidateCommandSucceedsOnAWellFormedGuest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.js")
	if err := os.WriteFile(path, []byte(validGuestSource), 0o644); err != nil {
		t.Fatal(err)
	}

	root := rootCmd()
	root.SetArgs([]string{"validate", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("expected validate to succeed on a well-formed guest, got %v", err)
	}
}

func TestValidateCommandFailsOnAMalformedGuest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.js")
	if err := os.WriteFile(path, []byte("registerState(123, {});"), 0o644); err != nil {
		t.Fatal(err)
	}

	root := rootCmd()
	root.SetArgs([]string{"validate", path})
	if err := root.Execute(); err == nil {
		t.Fatal("expected validate to report an error for a malformed registerState call")
	}
}
