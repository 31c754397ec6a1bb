package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecWasmCompiler invokes an external C-to-WASM toolchain (e.g. a
// wasi-sdk clang) over a temp directory holding the generated headers
// and methods.c, the same subprocess-tool pattern codegen.ExecCompiler
// uses for the script-to-bytecode step.
type ExecWasmCompiler struct {
	Path string
	Args []string // extra flags; {{IN}}/{{OUT}} are substituted with the temp source path and the expected output path
}

func (c ExecWasmCompiler) Compile(headers Artifacts) ([]byte, error) {
	dir, err := os.MkdirTemp("", "wasmsvc-compile-*")
	if err != nil {
		return nil, fmt.Errorf("pipeline: wasm compile: %w", err)
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, "methods.c")
	outPath := filepath.Join(dir, "service.unoptimized.wasm")
	files := map[string][]byte{
		"methods.c": headers.MethodsSource,
		"methods.h": headers.MethodsHeader,
		"code.h":    headers.CodeHeader,
		"abi.h":     headers.ABIHeader,
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return nil, fmt.Errorf("pipeline: wasm compile: writing %s: %w", name, err)
		}
	}

	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = substitute(a, srcPath, outPath)
	}

	cmd := exec.Command(c.Path, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pipeline: %s failed: %w: %s", c.Path, err, stderr.String())
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: wasm compile: reading output: %w", err)
	}
	return out, nil
}

// ExecWasmOptimizer invokes an external WASM optimizer (e.g. wasm-opt)
// over stdin/stdout, mirroring codegen.ExecCompiler's plumbing.
type ExecWasmOptimizer struct {
	Path string
	Args []string
}

func (o ExecWasmOptimizer) Optimize(wasm []byte) ([]byte, error) {
	cmd := exec.Command(o.Path, o.Args...)
	cmd.Stdin = bytes.NewReader(wasm)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pipeline: %s failed: %w: %s", o.Path, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func substitute(arg, in, out string) string {
	arg = strings.ReplaceAll(arg, "{{IN}}", in)
	return strings.ReplaceAll(arg, "{{OUT}}", out)
}
