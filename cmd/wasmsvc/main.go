package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/rakunlabs/into"
	"github.com/rakunlabs/logi"
	"github.com/spf13/cobra"

	"github.com/rakunlabs/wasmsvc/internal/bundler"
	"github.com/rakunlabs/wasmsvc/internal/codegen"
	"github.com/rakunlabs/wasmsvc/internal/config"
	"github.com/rakunlabs/wasmsvc/internal/emitter"
	"github.com/rakunlabs/wasmsvc/internal/hostsim"
	"github.com/rakunlabs/wasmsvc/internal/hostsim/store"
	"github.com/rakunlabs/wasmsvc/internal/pipeline"
)

var (
	name    = "wasmsvc"
	version = "v0.0.0"
)

func main() {
	config.Service = name + "/" + version

	cmd := rootCmd()
	into.Init(func(ctx context.Context) error {
		return cmd.ExecuteContext(ctx)
	},
		into.WithLogger(logi.InitializeLog(logi.WithCaller(false))),
		into.WithMsgf("%s [%s]", name, version),
	)
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   name,
		Short: "Build and run CRDT-backed WASM guest services",
	}

	var outputDir string
	var bytecodeCompilerPath string

	build := &cobra.Command{
		Use:   "build <entry.js>",
		Short: "Run the six-stage compile pipeline over a guest entry script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Context(), name)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if outputDir != "" {
				cfg.Build.OutputDir = outputDir
			}
			if bytecodeCompilerPath != "" {
				cfg.Build.BytecodeCompilerPath = bytecodeCompilerPath
			}

			var compiler codegen.BytecodeCompiler = codegen.GojaCompiler{}
			if bytecodeCompilerPath != "" {
				compiler = codegen.ExecCompiler{Path: cfg.Build.BytecodeCompilerPath, Args: cfg.Build.BytecodeCompilerArgs}
			}

			opts := pipeline.Options{
				SourcePath: args[0],
				OutputDir:  cfg.Build.OutputDir,
				Reader:     pipeline.OSReader{},
				Compiler:   compiler,
				Wasm:       pipeline.ExecWasmCompiler{Path: cfg.Build.WasmCompilerPath, Args: cfg.Build.WasmCompilerArgs},
				Optimize:   pipeline.ExecWasmOptimizer{Path: cfg.Build.WasmOptimizerPath, Args: cfg.Build.WasmOptimizerArgs},
			}

			reason, err := pipeline.Run(cmd.Context(), opts)
			if reason != pipeline.TerminationNone {
				os.Exit(reason.ExitCode())
			}
			if err != nil {
				return err
			}
			slog.Info("build complete", "output_dir", cfg.Build.OutputDir)
			return nil
		},
	}
	build.Flags().StringVar(&outputDir, "output", "", "override build.output_dir")
	build.Flags().StringVar(&bytecodeCompilerPath, "bytecode-compiler", "", "external script-to-bytecode compiler (defaults to the in-process goja validator)")

	validate := &cobra.Command{
		Use:   "validate <entry.js>",
		Short: "Run the ABI emitter's diagnostics without writing any artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			diags, err := emitter.Validate(args[0], src)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(diags); err != nil {
				return err
			}
			for _, d := range diags {
				if d.Severity == emitter.SeverityError {
					return fmt.Errorf("validate: %d error(s) found", countDiagErrors(diags))
				}
			}
			return nil
		},
	}

	serveHost := &cobra.Command{
		Use:   "serve-host <entry.js>",
		Short: "Run the host-node simulator against a bundled guest script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Context(), name)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			src, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			emitted, err := emitter.Emit(args[0], src)
			if err != nil {
				return fmt.Errorf("abi stage: %w", err)
			}
			if emitted.HasErrors() {
				return fmt.Errorf("abi stage: %d diagnostic error(s)", countDiagErrors(emitted.Diagnostics))
			}

			bundled, err := runBundle(args[0], emitted)
			if err != nil {
				return err
			}

			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			var encryptionKey []byte
			if k := cfg.HostSim.Store.EncryptionKey; k != "" {
				encryptionKey = make([]byte, 32)
				copy(encryptionKey, k)
			}

			var cluster *hostsim.Cluster
			if cfg.HostSim.Server.Alan != nil {
				cluster, err = hostsim.NewCluster(cfg.HostSim.Server.Alan)
				if err != nil {
					return err
				}
			}
			notifier := hostsim.NewNotifier(cfg.HostSim.Notify)

			guest := hostsim.NewGuest(emitted.Manifest, string(bundled), st, encryptionKey, cluster, notifier, nil)
			srv := hostsim.New(cfg.HostSim.Server, guest)

			if cluster != nil {
				go func() {
					if err := cluster.Start(cmd.Context(), func(method string, argBytes []byte) ([]byte, error) {
						return guest.Dispatcher.Dispatch(method, argBytes)
					}); err != nil {
						slog.Error("hostsim: cluster stopped", "error", err)
					}
				}()
			}

			slog.Info("host simulator listening", "host", cfg.HostSim.Server.Host, "port", cfg.HostSim.Server.Port)
			return srv.Start(cmd.Context())
		},
	}

	root.AddCommand(build, validate, serveHost)
	return root
}

func countDiagErrors(diags []emitter.Diagnostic) int {
	n := 0
	for _, d := range diags {
		if d.Severity == emitter.SeverityError {
			n++
		}
	}
	return n
}

// runBundle mirrors internal/pipeline's bundle stage for serve-host,
// which runs the guest straight from source without writing build
// artifacts to disk.
func runBundle(entryPath string, emitted *emitter.Result) ([]byte, error) {
	result, err := bundler.Bundle(entryPath, pipeline.OSReader{}, emitted.Manifest)
	if err != nil {
		return nil, fmt.Errorf("bundle stage: %w", err)
	}
	return result.Source, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch {
	case cfg.HostSim.Store.SQLite != nil:
		return store.OpenSQLite(ctx, cfg.HostSim.Store.SQLite)
	case cfg.HostSim.Store.Postgres != nil:
		return store.OpenPostgres(ctx, cfg.HostSim.Store.Postgres)
	default:
		return store.NewMemory(), nil
	}
}
