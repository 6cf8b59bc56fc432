// Package measurestore is the entity store for Measurement/Track/Location/
// Altitude/Event/UploadSession: transactional CRUD over a SQLite-backed
// schema, plus the versioned migration chain that keeps that schema current
// (see migrate.go).
package measurestore

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/motiontrace/capture-sdk/internal/monitoring"
)

// DB wraps a SQLite connection holding the measurement store schema.
type DB struct {
	*sql.DB
}

//go:embed schema.sql
var schemaSQL string

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DevMode switches migration loading from the embedded filesystem to the
// local one, for hot-reloading schema changes during development.
var DevMode = false

func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		return os.DirFS("internal/measurestore/migrations"), nil
	}
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("sub-filesystem for embedded migrations: %w", err)
	}
	return subFS, nil
}

// applyPragmas applies the SQLite settings every connection needs regardless
// of how the database file was created.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("exec %q: %w", pragma, err)
		}
	}
	return nil
}

// NewDB opens (creating if necessary) the measurement store at path,
// applying schema.sql on a fresh database and erroring if an existing store
// has pending migrations.
func NewDB(path string) (*DB, error) {
	return NewDBWithMigrationCheck(path, true)
}

// NewDBWithMigrationCheck is NewDB with control over whether pending
// migrations cause an error (checkMigrations=true) or are silently ignored
// (false, useful for tooling that manages migrations itself).
func NewDBWithMigrationCheck(path string, checkMigrations bool) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db := &DB{sqlDB}
	if err := applyPragmas(sqlDB); err != nil {
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	var schemaMigrationsExists bool
	err = sqlDB.QueryRow(`
		SELECT COUNT(*) > 0 FROM sqlite_master
		WHERE type='table' AND name='schema_migrations'
	`).Scan(&schemaMigrationsExists)
	if err != nil {
		return nil, fmt.Errorf("check schema_migrations table: %w", err)
	}

	migFS, err := getMigrationsFS()
	if err != nil {
		return nil, fmt.Errorf("migrations filesystem: %w", err)
	}

	if schemaMigrationsExists {
		if checkMigrations {
			ok, err := db.checkUpToDate(migFS)
			if !ok {
				return nil, err
			}
		}
		return db, nil
	}

	var tableCount int
	err = sqlDB.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%'
	`).Scan(&tableCount)
	if err != nil {
		return nil, fmt.Errorf("count tables: %w", err)
	}
	if tableCount > 0 {
		return nil, fmt.Errorf("measurestore: database exists but has no schema_migrations table; run migrations manually")
	}

	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("initialise schema: %w", err)
	}

	latest, err := GetLatestMigrationVersion(migFS)
	if err != nil {
		return nil, fmt.Errorf("latest migration version: %w", err)
	}
	if err := db.BaselineAtVersion(latest); err != nil {
		return nil, fmt.Errorf("baseline fresh database at version %d: %w", latest, err)
	}

	return db, nil
}

// checkUpToDate returns (true, nil) if no migrations are pending, or
// (false, err) describing the outstanding work otherwise.
func (db *DB) checkUpToDate(migFS fs.FS) (bool, error) {
	current, dirty, err := db.MigrateVersion(migFS)
	if err != nil {
		return false, fmt.Errorf("migration version: %w", err)
	}
	if dirty {
		return false, fmt.Errorf("measurestore: database is in a dirty migration state at version %d", current)
	}
	latest, err := GetLatestMigrationVersion(migFS)
	if err != nil {
		return false, fmt.Errorf("latest migration version: %w", err)
	}
	if current < latest {
		return false, fmt.Errorf("measurestore: database schema out of date (version %d, need %d); run migrations", current, latest)
	}
	return true, nil
}

// OpenDB opens a database connection without running schema initialisation,
// for callers (migration tooling) that manage the schema independently.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := applyPragmas(sqlDB); err != nil {
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	return &DB{sqlDB}, nil
}

// InstallationID returns the process-wide installation identifier, creating
// and persisting one on first access (spec design note: a UUID stored once
// in kv_config).
func (db *DB) InstallationID() (string, error) {
	var id string
	err := db.QueryRow(`SELECT value FROM kv_config WHERE key = 'installation_id'`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("query installation_id: %w", err)
	}

	id = uuid.NewString()
	_, err = db.Exec(`INSERT INTO kv_config (key, value) VALUES ('installation_id', ?)`, id)
	if err != nil {
		return "", fmt.Errorf("persist installation_id: %w", err)
	}
	return id, nil
}

// AttachAdminRoutes mounts a local-only tailsql SQL browser and a
// table-size summary over this store, for use by internal/debugconsole
// during SDK development. Not part of the production capture path.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("measurestore: failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://capture.db", db.DB, &tailsql.DBOptions{
		Label: "Capture measurement store",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("db-stats", "Measurement store table sizes (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := db.TableStats()
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to get database stats: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		writeJSONStats(w, stats)
	}))
}
