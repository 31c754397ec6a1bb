// Package store persists the root-state document the host simulator
// hands to internal/state.Engine (§4.7) and the executor identity
// records internal/crypto seals at rest. Adapted from
// internal/store/sqlite3 and internal/store/postgres's goqu-over-
// database/sql pattern, collapsed from the teacher's many
// provider/token/workflow tables down to the two tables this domain
// needs: one root-state document per guest state key, one executor
// identity per public key.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rakunlabs/wasmsvc/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
)

const DefaultTablePrefix = "wasmsvc_"

// SQL is a document + identity store backed by database/sql, shared
// between the sqlite3 and postgres dialects the same way the teacher
// never actually shares one (it keeps two near-duplicate packages) —
// here the two dialects differ only in driver/DSN and the goqu dialect
// string, so one implementation parameterized by dialect replaces what
// would otherwise be another copy-pasted package.
type SQL struct {
	db   *sql.DB
	goqu *goqu.Database

	tableDocuments  exp.IdentifierExpression
	tableIdentities exp.IdentifierExpression

	mu sync.RWMutex
}

// OpenSQLite opens (and schema-initializes) a SQLite-backed store, per
// config.StoreSQLite.
func OpenSQLite(ctx context.Context, cfg *config.StoreSQLite) (*SQL, error) {
	if cfg == nil {
		return nil, errors.New("hostsim/store: sqlite configuration is nil")
	}
	if cfg.Datasource == "" {
		return nil, errors.New("hostsim/store: sqlite datasource is required")
	}

	db, err := sql.Open("sqlite", cfg.Datasource)
	if err != nil {
		return nil, fmt.Errorf("hostsim/store: open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("hostsim/store: ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("hostsim/store: set WAL mode: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	prefix := DefaultTablePrefix
	if cfg.TablePrefix != nil {
		prefix = *cfg.TablePrefix
	}

	s := newSQL(db, "sqlite3", prefix)
	if err := s.ensureSchemaSQLite(ctx); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("hostsim: connected to sqlite store")
	return s, nil
}

// OpenPostgres opens (and schema-initializes) a Postgres-backed store,
// per config.StorePostgres.
func OpenPostgres(ctx context.Context, cfg *config.StorePostgres) (*SQL, error) {
	if cfg == nil {
		return nil, errors.New("hostsim/store: postgres configuration is nil")
	}
	if cfg.Datasource == "" {
		return nil, errors.New("hostsim/store: postgres datasource is required")
	}

	db, err := sql.Open("pgx", cfg.Datasource)
	if err != nil {
		return nil, fmt.Errorf("hostsim/store: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("hostsim/store: ping postgres: %w", err)
	}
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetMaxIdleConns(3)
	db.SetMaxOpenConns(3)

	prefix := DefaultTablePrefix
	if cfg.TablePrefix != nil {
		prefix = *cfg.TablePrefix
	}

	s := newSQL(db, "postgres", prefix)
	if err := s.ensureSchemaPostgres(ctx); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("hostsim: connected to postgres store")
	return s, nil
}

func newSQL(db *sql.DB, dialect, prefix string) *SQL {
	return &SQL{
		db:              db,
		goqu:            goqu.New(dialect, db),
		tableDocuments:  goqu.T(prefix + "documents"),
		tableIdentities: goqu.T(prefix + "identities"),
	}
}

func (s *SQL) ensureSchemaSQLite(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (state_key TEXT PRIMARY KEY, data BLOB NOT NULL, updated_at TEXT NOT NULL)`,
		s.tableDocuments.GetTable(),
	))
	if err != nil {
		return fmt.Errorf("hostsim/store: create documents table: %w", err)
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (public_key TEXT PRIMARY KEY, sealed_private TEXT NOT NULL, created_at TEXT NOT NULL)`,
		s.tableIdentities.GetTable(),
	))
	if err != nil {
		return fmt.Errorf("hostsim/store: create identities table: %w", err)
	}
	return nil
}

func (s *SQL) ensureSchemaPostgres(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (state_key TEXT PRIMARY KEY, data BYTEA NOT NULL, updated_at TIMESTAMPTZ NOT NULL)`,
		s.tableDocuments.GetTable(),
	))
	if err != nil {
		return fmt.Errorf("hostsim/store: create documents table: %w", err)
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (public_key TEXT PRIMARY KEY, sealed_private TEXT NOT NULL, created_at TIMESTAMPTZ NOT NULL)`,
		s.tableIdentities.GetTable(),
	))
	if err != nil {
		return fmt.Errorf("hostsim/store: create identities table: %w", err)
	}
	return nil
}

func (s *SQL) Close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Error("hostsim: close store connection", "error", err)
		}
	}
}

// ─── state.Store ───

func (s *SQL) LoadDocument(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, _, err := s.goqu.From(s.tableDocuments).
		Select("data").
		Where(goqu.I("state_key").Eq(key)).
		ToSQL()
	if err != nil {
		return nil, false, fmt.Errorf("hostsim/store: build load query: %w", err)
	}

	var data []byte
	err = s.db.QueryRowContext(context.Background(), query).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("hostsim/store: load document %q: %w", key, err)
	}
	return data, true, nil
}

func (s *SQL) SaveDocument(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)

	upsert, _, err := s.goqu.Insert(s.tableDocuments).Rows(
		goqu.Record{"state_key": key, "data": data, "updated_at": now},
	).OnConflict(goqu.DoUpdate("state_key", goqu.Record{"data": data, "updated_at": now})).ToSQL()
	if err != nil {
		return fmt.Errorf("hostsim/store: build save query: %w", err)
	}
	if _, err := s.db.ExecContext(context.Background(), upsert); err != nil {
		return fmt.Errorf("hostsim/store: save document %q: %w", key, err)
	}
	return nil
}

func (s *SQL) DeleteDocument(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query, _, err := s.goqu.Delete(s.tableDocuments).Where(goqu.I("state_key").Eq(key)).ToSQL()
	if err != nil {
		return fmt.Errorf("hostsim/store: build delete query: %w", err)
	}
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("hostsim/store: delete document %q: %w", key, err)
	}
	return nil
}

// ─── executor identities ───

func (s *SQL) SaveIdentity(publicKeyHex, sealedPrivate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	query, _, err := s.goqu.Insert(s.tableIdentities).Rows(
		goqu.Record{"public_key": publicKeyHex, "sealed_private": sealedPrivate, "created_at": now},
	).OnConflict(goqu.DoUpdate("public_key", goqu.Record{"sealed_private": sealedPrivate})).ToSQL()
	if err != nil {
		return fmt.Errorf("hostsim/store: build save identity query: %w", err)
	}
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("hostsim/store: save identity: %w", err)
	}
	return nil
}

func (s *SQL) LoadIdentity(publicKeyHex string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, _, err := s.goqu.From(s.tableIdentities).
		Select("sealed_private").
		Where(goqu.I("public_key").Eq(publicKeyHex)).
		ToSQL()
	if err != nil {
		return "", false, fmt.Errorf("hostsim/store: build load identity query: %w", err)
	}

	var sealed string
	err = s.db.QueryRowContext(context.Background(), query).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hostsim/store: load identity: %w", err)
	}
	return sealed, true, nil
}
