package hostsim

import (
	"testing"

	"github.com/rakunlabs/wasmsvc/internal/collections"
	"github.com/rakunlabs/wasmsvc/internal/state"
)

const counterGuestSource = `
function init() {
  return { total: newCounter() };
}
function increment(amount) {
  total.Increment(amount);
  return { total: total };
}
function current() {
  return total.Total().String();
}
`

func newTestLogic() (*ScriptLogic, *collections.MemoryHost) {
	host := collections.NewMemoryHost([32]byte{})
	tracker := collections.NewTracker()
	tracker.SetHost(host)
	return NewScriptLogic(counterGuestSource, host, tracker), host
}

func TestScriptLogicInvokeInitReturnsStateInstance(t *testing.T) {
	logic, _ := newTestLogic()

	result, err := logic.Invoke("init", state.Instance{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	instance, ok := result.(state.Instance)
	if !ok {
		t.Fatalf("expected a state.Instance, got %T", result)
	}
	if _, ok := instance["total"].(collections.Counter); !ok {
		t.Fatalf("expected field %q to be a collections.Counter, got %T", "total", instance["total"])
	}
}

func TestScriptLogicInvokeMutatesBoundCollection(t *testing.T) {
	logic, _ := newTestLogic()

	result, err := logic.Invoke("init", state.Instance{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	instance := result.(state.Instance)

	if _, err := logic.Invoke("increment", instance, uint64(5)); err != nil {
		t.Fatal(err)
	}

	total, err := logic.Invoke("current", instance, nil)
	if err != nil {
		t.Fatal(err)
	}
	if total != "5" {
		t.Fatalf("expected counter total \"5\", got %v", total)
	}
}

func TestScriptLogicInvokeUnknownMethod(t *testing.T) {
	logic, _ := newTestLogic()
	if _, err := logic.Invoke("doesNotExist", state.Instance{}, nil); err == nil {
		t.Fatal("expected an error for an undefined global")
	}
}
