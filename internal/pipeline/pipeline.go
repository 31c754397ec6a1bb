// Package pipeline orchestrates the six build stages of §4.1-§4.4: ABI
// emit, bundle, bytecode/C-wrapper codegen, and WASM compile/optimize,
// writing a fixed set of artifact files to an output directory and
// guaranteeing that set never contains a partially-written subset if
// the build is interrupted.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rakunlabs/wasmsvc/internal/abi"
	"github.com/rakunlabs/wasmsvc/internal/bundler"
	"github.com/rakunlabs/wasmsvc/internal/codegen"
	"github.com/rakunlabs/wasmsvc/internal/emitter"
)

// artifactNames is the fixed in-flight filename set (§4.4): every file a
// build can ever write to the output directory. Interrupt cleanup and
// failed-stage cleanup both remove exactly this set, never more and
// never less, so a half-finished build never leaves a stray file behind
// and never deletes something the build didn't create.
var artifactNames = []string{
	"abi.json", "abi.h", "state-schema.json",
	"bundle.js",
	"methods.c", "methods.h", "code.h",
	"service.unoptimized.wasm", "service.wasm",
}

// WasmCompiler turns the generated C sources into a WASM module; a real
// build wires this to an external C-to-WASM toolchain invocation.
type WasmCompiler interface {
	Compile(headers Artifacts) ([]byte, error)
}

// WasmOptimizer post-processes an unoptimized WASM module; a real build
// wires this to an external WASM optimizer invocation.
type WasmOptimizer interface {
	Optimize(wasm []byte) ([]byte, error)
}

// Artifacts bundles the C source/header bytes the WASM compile stage
// consumes, named after the fixed output files they came from.
type Artifacts struct {
	ABIHeader     []byte
	CodeHeader    []byte
	MethodsSource []byte
	MethodsHeader []byte
}

// Options configures one build run.
type Options struct {
	SourcePath string // guest entry source, passed to internal/emitter and internal/bundler
	OutputDir  string

	Reader   bundler.FileReader
	Compiler codegen.BytecodeCompiler
	Wasm     WasmCompiler
	Optimize WasmOptimizer
}

// TerminationReason distinguishes why a build stopped short, for exit
// code selection (§6): interactive interrupt vs external termination.
type TerminationReason int

const (
	TerminationNone TerminationReason = iota
	TerminationInterrupt                // SIGINT: exit 130
	TerminationTerminated                // SIGTERM: exit 143
)

// ExitCode maps a TerminationReason to the process exit code §6 fixes.
func (r TerminationReason) ExitCode() int {
	switch r {
	case TerminationInterrupt:
		return 130
	case TerminationTerminated:
		return 143
	default:
		return 0
	}
}

// Run executes all six stages in order, writing artifacts to
// opts.OutputDir. On any stage failure, or on receiving SIGINT/SIGTERM,
// every file in artifactNames is best-effort removed from OutputDir
// (after the stage in flight has returned) before Run returns, and the interrupt is reported as reason rather
// than losing it as a plain error.
func Run(ctx context.Context, opts Options) (reason TerminationReason, err error) {
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return TerminationNone, fmt.Errorf("pipeline: creating output dir: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	interrupted := make(chan TerminationReason, 1)
	go func() {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGTERM:
				interrupted <- TerminationTerminated
			default:
				interrupted <- TerminationInterrupt
			}
		case <-done:
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- runStages(opts) }()

	select {
	case reason = <-interrupted:
		close(done)
		<-runErr
		cleanup(opts.OutputDir)
		return reason, fmt.Errorf("pipeline: build interrupted (%v)", reason)
	case err = <-runErr:
		close(done)
		if err != nil {
			cleanup(opts.OutputDir)
			return TerminationNone, err
		}
		return TerminationNone, nil
	case <-ctx.Done():
		close(done)
		<-runErr
		cleanup(opts.OutputDir)
		return TerminationNone, ctx.Err()
	}
}

// cleanup best-effort removes every fixed artifact name from dir; a
// missing file is not an error, since most stages haven't produced
// their output yet when an early stage fails.
func cleanup(dir string) {
	for _, name := range artifactNames {
		_ = os.Remove(filepath.Join(dir, name))
	}
}

func runStages(opts Options) error {
	src, err := opts.Reader.ReadFile(opts.SourcePath)
	if err != nil {
		return fmt.Errorf("pipeline: reading entry source: %w", err)
	}

	// Stage 1: ABI emit + validate.
	emitted, err := emitter.Emit(opts.SourcePath, src)
	if err != nil {
		return fmt.Errorf("pipeline: abi stage: %w", err)
	}
	if emitted.HasErrors() {
		return fmt.Errorf("pipeline: abi stage: %d error(s): %s", countErrors(emitted), firstError(emitted))
	}
	manifest := emitted.Manifest
	if err := writeJSON(filepath.Join(opts.OutputDir, "abi.json"), manifest); err != nil {
		return err
	}
	abiJSON, err := manifest.CanonicalJSON()
	if err != nil {
		return err
	}
	abiHeader := codegen.CHeaderBytes("abi_json", abiJSON)
	if err := os.WriteFile(filepath.Join(opts.OutputDir, "abi.h"), abiHeader, 0o644); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(opts.OutputDir, "state-schema.json"), stateSchema(manifest)); err != nil {
		return err
	}

	// Stage 2: bundle.
	bundled, err := bundler.Bundle(opts.SourcePath, opts.Reader, manifest)
	if err != nil {
		return fmt.Errorf("pipeline: bundle stage: %w", err)
	}
	if err := os.WriteFile(filepath.Join(opts.OutputDir, "bundle.js"), bundled.Source, 0o644); err != nil {
		return err
	}

	// Stage 3: bytecode compile + C wrapper synthesis.
	arts, err := codegen.Generate(manifest, bundled.Source, opts.Compiler)
	if err != nil {
		return fmt.Errorf("pipeline: codegen stage: %w", err)
	}
	if err := os.WriteFile(filepath.Join(opts.OutputDir, "code.h"), arts.CodeHeader, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(opts.OutputDir, "methods.c"), arts.MethodsSource, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(opts.OutputDir, "methods.h"), arts.MethodsHeader, 0o644); err != nil {
		return err
	}

	// Stage 4: WASM compile.
	wasm, err := opts.Wasm.Compile(Artifacts{
		ABIHeader:     abiHeader,
		CodeHeader:    arts.CodeHeader,
		MethodsSource: arts.MethodsSource,
		MethodsHeader: arts.MethodsHeader,
	})
	if err != nil {
		return fmt.Errorf("pipeline: wasm compile stage: %w", err)
	}
	if err := os.WriteFile(filepath.Join(opts.OutputDir, "service.unoptimized.wasm"), wasm, 0o644); err != nil {
		return err
	}

	// Stage 5: optimize.
	optimized, err := opts.Optimize.Optimize(wasm)
	if err != nil {
		return fmt.Errorf("pipeline: optimize stage: %w", err)
	}
	if err := os.WriteFile(filepath.Join(opts.OutputDir, "service.wasm"), optimized, 0o644); err != nil {
		return err
	}

	return nil
}

func countErrors(r *emitter.Result) int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Severity == emitter.SeverityError {
			n++
		}
	}
	return n
}

func firstError(r *emitter.Result) string {
	for _, d := range r.Diagnostics {
		if d.Severity == emitter.SeverityError {
			return d.Message
		}
	}
	return ""
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// stateSchema projects the manifest's state-root record into the
// standalone state-schema.json sidecar §6 names separately from abi.json
// — the same fields, documented on their own for tooling that only
// cares about persisted shape, not the full method/event surface.
func stateSchema(m *abi.Manifest) any {
	td, _ := m.Resolve(m.StateRoot)
	return struct {
		StateRoot string      `json:"state_root"`
		Fields    []abi.Field `json:"fields"`
	}{StateRoot: m.StateRoot, Fields: td.Fields}
}
