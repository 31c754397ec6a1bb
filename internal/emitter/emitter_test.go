package emitter

import (
	"strings"
	"testing"

	"github.com/rakunlabs/wasmsvc/internal/abi"
)

const counterSource = `
registerState("Counter", {
  total: "counter",
  tags: "set"
});

registerLogic("CounterLogic", "Counter", {
  init:      { returns: "Counter", init: true },
  increment: { params: { amount: "u64" } },
  total:     { returns: "u64", view: true }
});

registerEvent("Incremented", "u64");
`

func TestEmitBuildsManifestFromRegistrationCalls(t *testing.T) {
	res, err := Emit("counter.src.js", []byte(counterSource))
	if err != nil {
		t.Fatal(err)
	}
	if res.HasErrors() {
		t.Fatalf("unexpected errors: %+v", res.Diagnostics)
	}
	if res.Manifest == nil {
		t.Fatal("expected a manifest")
	}
	if res.Manifest.StateRoot != "Counter" {
		t.Fatalf("expected state root Counter, got %q", res.Manifest.StateRoot)
	}

	td, err := res.Manifest.Resolve("Counter")
	if err != nil {
		t.Fatal(err)
	}
	if len(td.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %+v", td.Fields)
	}
	if td.Fields[0].Name != "total" || td.Fields[0].Type.Name != "CounterHandle" {
		t.Fatalf("expected first field total:CounterHandle, got %+v", td.Fields[0])
	}
	if td.Fields[1].Name != "tags" || td.Fields[1].Type.Name != "SetHandle" {
		t.Fatalf("expected second field tags:SetHandle, got %+v", td.Fields[1])
	}

	init, ok := res.Manifest.InitMethod()
	if !ok || init.Name != "init" {
		t.Fatalf("expected an init method, got %+v ok=%v", init, ok)
	}

	inc, ok := res.Manifest.Method("increment")
	if !ok || len(inc.Params) != 1 || inc.Params[0].Name != "amount" || inc.Params[0].Type.Scalar != abi.ScalarU64 {
		t.Fatalf("unexpected increment method: %+v ok=%v", inc, ok)
	}

	total, ok := res.Manifest.Method("total")
	if !ok || !total.View || total.Returns == nil || total.Returns.Scalar != abi.ScalarU64 {
		t.Fatalf("unexpected total method: %+v ok=%v", total, ok)
	}

	if len(res.Manifest.Events) != 1 || res.Manifest.Events[0].Name != "Incremented" {
		t.Fatalf("unexpected events: %+v", res.Manifest.Events)
	}

	if res.Manifest.Version == "" {
		t.Fatal("expected a content-hash version to be stamped")
	}
}

func TestEmitContentHashIsDeterministic(t *testing.T) {
	r1, err := Emit("a.src.js", []byte(counterSource))
	if err != nil {
		t.Fatal(err)
	}
	r2, err := Emit("b.src.js", []byte(counterSource))
	if err != nil {
		t.Fatal(err)
	}
	if r1.Manifest.Version != r2.Manifest.Version {
		t.Fatalf("expected identical content hash for identical source, got %q != %q", r1.Manifest.Version, r2.Manifest.Version)
	}
}

func TestEmitWarnsOnUnwrappedScalarField(t *testing.T) {
	src := `
registerState("Profile", { name: "string" });
registerLogic("ProfileLogic", "Profile", { init: { returns: "Profile", init: true } });
`
	res, err := Emit("profile.src.js", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if res.HasErrors() {
		t.Fatalf("unexpected errors: %+v", res.Diagnostics)
	}
	found := false
	for _, d := range res.Diagnostics {
		if d.Severity == SeverityWarning && strings.Contains(d.Message, "no CRDT wrapper") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a no-CRDT-wrapper warning, got %+v", res.Diagnostics)
	}
}

func TestEmitWarnsOnReadOnlyNamedMethodWithoutViewTag(t *testing.T) {
	src := `
registerState("Counter", { total: "counter" });
registerLogic("CounterLogic", "Counter", {
  init:     { returns: "Counter", init: true },
  getTotal: { returns: "u64" }
});
`
	res, err := Emit("counter2.src.js", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, d := range res.Diagnostics {
		if d.Severity == SeverityWarning && strings.Contains(d.Message, "isn't tagged view") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a missing-view-tag warning, got %+v", res.Diagnostics)
	}
}

func TestEmitErrorsWithoutExactlyOneStateAndLogic(t *testing.T) {
	res, err := Emit("empty.src.js", []byte(`registerEvent("Nothing");`))
	if err != nil {
		t.Fatal(err)
	}
	if !res.HasErrors() {
		t.Fatal("expected errors for a source with no state/logic declarations")
	}
	if res.Manifest != nil {
		t.Fatal("expected no manifest when required declarations are missing")
	}
}

func TestEmitRejectsNonLiteralRegistrationArgument(t *testing.T) {
	res, err := Emit("bad.src.js", []byte(`
const fields = { total: "counter" };
registerState("Counter", fields);
registerLogic("CounterLogic", "Counter", { init: { returns: "Counter", init: true } });
`))
	if err != nil {
		t.Fatal(err)
	}
	if !res.HasErrors() {
		t.Fatal("expected an error: registration arguments must be literals, not variable references")
	}
}

func TestEmitBuildsRecordAndVariantTypesFromRegisterType(t *testing.T) {
	src := `
registerType("Tag", { kind: "record", fields: [ { name: "label", type: "string" } ] });
registerType("Status", { kind: "variant", variants: [ { name: "Active" }, { name: "Paused", payload: "string" } ] });
registerState("Counter", { total: "counter", status: "Status" });
registerLogic("CounterLogic", "Counter", { init: { returns: "Counter", init: true } });
`
	res, err := Emit("types.src.js", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if res.HasErrors() {
		t.Fatalf("unexpected errors: %+v", res.Diagnostics)
	}
	tag, err := res.Manifest.Resolve("Tag")
	if err != nil || tag.Kind != abi.TypeDefRecord || len(tag.Fields) != 1 {
		t.Fatalf("unexpected Tag type: %+v err=%v", tag, err)
	}
	status, err := res.Manifest.Resolve("Status")
	if err != nil || status.Kind != abi.TypeDefVariant || len(status.Variants) != 2 {
		t.Fatalf("unexpected Status type: %+v err=%v", status, err)
	}
	if status.Variants[1].Payload == nil || status.Variants[1].Payload.Scalar != abi.ScalarString {
		t.Fatalf("expected Paused variant to carry a string payload, got %+v", status.Variants[1])
	}
}
