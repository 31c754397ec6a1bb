package codegen

import (
	"fmt"

	"github.com/rakunlabs/wasmsvc/pkg/scriptvm"
)

// GojaCompiler is the in-process BytecodeCompiler: it runs the bundle
// through a scriptvm.Runtime to confirm it parses and evaluates
// cleanly (registration calls execute, nothing throws), then embeds
// the bundle's own source as the "bytecode" blob the generated C
// wrappers deserialize. It is the default, dependency-free compiler
// used by `wasmsvc build`; passing --bytecode-compiler substitutes an
// external script-to-bytecode binary via ExecCompiler.
type GojaCompiler struct{}

func (GojaCompiler) Compile(source []byte) ([]byte, error) {
	rt := scriptvm.New()
	if err := rt.Check(string(source)); err != nil {
		return nil, fmt.Errorf("codegen: %w", err)
	}
	return source, nil
}
