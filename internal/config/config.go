// Package config loads this binary's configuration the same way the
// teacher's agent CLI does: github.com/rakunlabs/chu layered over an
// AT_-style environment prefix, with the log level applied and the
// resolved config echoed to slog once loading succeeds.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rakunlabs/alan"
	_ "github.com/rakunlabs/chu/loader/external/loaderconsul"
	_ "github.com/rakunlabs/chu/loader/external/loadervault"
	"github.com/rakunlabs/chu/loader/loaderenv"
	"github.com/rakunlabs/logi"

	mforwardauth "github.com/rakunlabs/ada/middleware/forwardauth"
	"github.com/rakunlabs/chu"
	"github.com/rakunlabs/tell"
)

var Service = ""

// Config is wasmsvc's top-level configuration: the compile pipeline's
// external-tool wiring, the host simulator's HTTP/cluster/storage
// surface, and process-wide log level and telemetry.
type Config struct {
	LogLevel string `cfg:"log_level,no_prefix" default:"info"`

	// Build configures the compile pipeline's external tool
	// invocations (internal/pipeline, internal/codegen).
	Build Build `cfg:"build"`

	// HostSim configures the host-node simulator a guest build can be
	// run against for local testing (internal/hostsim).
	HostSim HostSim `cfg:"hostsim"`

	Telemetry tell.Config `cfg:"telemetry,noprefix"`
}

// Build configures the external toolchain binaries the compile
// pipeline shells out to for the stages that aren't pure Go (script-
// to-bytecode compilation, C-to-WASM compilation, WASM optimization).
type Build struct {
	OutputDir string `cfg:"output_dir" default:"dist"`

	BytecodeCompilerPath string   `cfg:"bytecode_compiler_path" default:"script-bytecode-compiler"`
	BytecodeCompilerArgs []string `cfg:"bytecode_compiler_args"`

	WasmCompilerPath string   `cfg:"wasm_compiler_path" default:"clang"`
	WasmCompilerArgs []string `cfg:"wasm_compiler_args"`

	WasmOptimizerPath string   `cfg:"wasm_optimizer_path" default:"wasm-opt"`
	WasmOptimizerArgs []string `cfg:"wasm_optimizer_args"`
}

// HostSim configures the local host-node simulator: its HTTP surface,
// its persistence backend, its cluster membership, and outbound event
// notification.
type HostSim struct {
	Server Server `cfg:"server"`
	Store  Store  `cfg:"store"`
	Notify Notify `cfg:"notify"`
}

type Server struct {
	BasePath string `cfg:"base_path"`

	Port string `cfg:"port" default:"8080"`
	Host string `cfg:"host"`

	// ForwardAuth, if set, forwards auth requests to an external
	// authentication service in front of the simulator's HTTP surface.
	ForwardAuth *mforwardauth.ForwardAuth `cfg:"forward_auth"`

	// AdminToken is loaded from configuration but not read anywhere:
	// the simulator's HTTP surface has no admin endpoints.
	AdminToken string `cfg:"admin_token" log:"-"`

	UserHeader string `cfg:"user_header" default:"X-User"`

	// Alan, if set, enables distributed clustering via UDP peer
	// discovery across multiple host-simulator instances sharing one
	// guest deployment.
	Alan *alan.Config `cfg:"alan"`
}

type Store struct {
	Postgres *StorePostgres `cfg:"postgres"`
	SQLite   *StoreSQLite   `cfg:"sqlite"`

	// EncryptionKey, if set, encrypts each executor's stored Ed25519
	// private key at rest (internal/crypto). Zero-padded/truncated to
	// 32 bytes internally; empty disables encryption.
	EncryptionKey string `cfg:"encryption_key" log:"-"`
}

type StorePostgres struct {
	TablePrefix     *string        `cfg:"table_prefix"`
	Datasource      string         `cfg:"datasource" log:"-"`
	Schema          string         `cfg:"schema"`
	ConnMaxLifetime *time.Duration `cfg:"conn_max_lifetime"`
	MaxIdleConns    *int           `cfg:"max_idle_conns"`
	MaxOpenConns    *int           `cfg:"max_open_conns"`

	Migrate Migrate `cfg:"migrate"`
}

type StoreSQLite struct {
	TablePrefix *string `cfg:"table_prefix"`
	Datasource  string  `cfg:"datasource"`

	Migrate Migrate `cfg:"migrate"`
}

type Migrate struct {
	Datasource string            `cfg:"datasource" log:"-"`
	Schema     string            `cfg:"schema"`
	Table      string            `cfg:"table"`
	Values     map[string]string `cfg:"values"`
}

// Notify configures outbound SMTP notification of guest-emitted events
// (§3 event classes) to subscribed addresses.
type Notify struct {
	SMTPHost string `cfg:"smtp_host"`
	SMTPPort int    `cfg:"smtp_port" default:"587"`
	Username string `cfg:"username"`
	Password string `cfg:"password" log:"-"`
	From     string `cfg:"from"`
}

func Load(ctx context.Context, path string) (*Config, error) {
	var cfg Config
	if err := chu.Load(ctx, path, &cfg, chu.WithLoaderOption(loaderenv.New(loaderenv.WithPrefix("WASMSVC_")))); err != nil {
		return nil, err
	}

	if err := logi.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("set log level %s: %w", cfg.LogLevel, err)
	}

	slog.Info("loaded configuration", "config", chu.MarshalMap(cfg))

	return &cfg, nil
}
