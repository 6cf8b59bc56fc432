package measurestore

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/motiontrace/capture-sdk/internal/monitoring"
)

// MigrateUp runs all pending migrations up to the latest version, then any
// custom step not yet applied (see migrate_steps.go).
func (db *DB) MigrateUp(migrationsFS fs.FS) error {
	m, err := db.newMigrate(migrationsFS)
	if err != nil {
		return err
	}
	// m.Close() is not called: the sqlite driver's Close() would close the
	// underlying *sql.DB, which DB manages separately.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	if err := db.ApplyCustomSteps(); err != nil {
		return fmt.Errorf("custom migration steps failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown(migrationsFS fs.FS) error {
	m, err := db.newMigrate(migrationsFS)
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current migration version and dirty state.
func (db *DB) MigrateVersion(migrationsFS fs.FS) (version uint, dirty bool, err error) {
	m, err := db.newMigrate(migrationsFS)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if err != nil && errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// MigrateForce forces the migration version to a specific value; only used
// to recover from a dirty migration state.
func (db *DB) MigrateForce(migrationsFS fs.FS, version int) error {
	m, err := db.newMigrate(migrationsFS)
	if err != nil {
		return err
	}
	if err := m.Force(version); err != nil {
		return fmt.Errorf("force migration to version %d failed: %w", version, err)
	}
	return nil
}

// MigrateTo migrates up or down to a specific version.
func (db *DB) MigrateTo(migrationsFS fs.FS, version uint) error {
	m, err := db.newMigrate(migrationsFS)
	if err != nil {
		return err
	}
	if err := m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration to version %d failed: %w", version, err)
	}
	return nil
}

func (db *DB) newMigrate(migrationsFS fs.FS) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return nil, fmt.Errorf("iofs source driver: %w", err)
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("migrate instance: %w", err)
	}

	m.Log = &migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

func (db *DB) ensureSchemaMigrationsTable() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER NOT NULL,
			dirty INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS version_unique ON schema_migrations (version);
	`)
	return err
}

// BaselineAtVersion records version as already-applied without running any
// migration, for a store whose schema was created directly from schema.sql.
func (db *DB) BaselineAtVersion(version uint) error {
	if err := db.ensureSchemaMigrationsTable(); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("check existing migrations: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("database already has migrations applied, cannot baseline")
	}

	if _, err := db.Exec("INSERT INTO schema_migrations (version, dirty) VALUES (?, 0)", version); err != nil {
		return fmt.Errorf("insert baseline version: %w", err)
	}
	monitoring.Logf("measurestore: baselined database at version %d", version)
	return nil
}

// GetMigrationStatus summarises the current version, dirty state and
// whether a schema_migrations table exists at all.
func (db *DB) GetMigrationStatus(migrationsFS fs.FS) (map[string]interface{}, error) {
	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("migration version: %w", err)
	}

	status := map[string]interface{}{
		"current_version": version,
		"dirty":           dirty,
	}

	var tableExists bool
	err = db.QueryRow(`
		SELECT COUNT(*) > 0 FROM sqlite_master
		WHERE type='table' AND name='schema_migrations'
	`).Scan(&tableExists)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("check schema_migrations table: %w", err)
	}
	status["schema_migrations_exists"] = tableExists

	return status, nil
}

// GetLatestMigrationVersion scans migrationsFS for the highest-numbered
// "*.up.sql" file.
func GetLatestMigrationVersion(migrationsFS fs.FS) (uint, error) {
	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return 0, fmt.Errorf("read migrations filesystem: %w", err)
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("no migration files found")
	}

	var maxVersion uint
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			var version uint
			if _, err := fmt.Sscanf(name, "%d_", &version); err == nil && version > maxVersion {
				maxVersion = version
			}
		}
	}
	if maxVersion == 0 {
		return 0, fmt.Errorf("could not determine latest migration version")
	}
	return maxVersion, nil
}

// GetDatabaseSchema extracts the current schema as a map of object name to
// normalised SQL definition, for comparing a live store against a
// migration's expected result.
func (db *DB) GetDatabaseSchema() (map[string]string, error) {
	schema := make(map[string]string)

	rows, err := db.Query(`
		SELECT name, sql FROM sqlite_master
		WHERE type IN ('table', 'index', 'trigger', 'view')
		  AND name NOT LIKE 'sqlite_%'
		  AND name != 'schema_migrations'
		  AND name != 'version_unique'
		  AND sql IS NOT NULL
		ORDER BY type, name
	`)
	if err != nil {
		return nil, fmt.Errorf("query schema: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, sqlText string
		if err := rows.Scan(&name, &sqlText); err != nil {
			return nil, fmt.Errorf("scan schema row: %w", err)
		}
		schema[name] = normalizeSQLForComparison(sqlText)
	}
	return schema, nil
}

func normalizeSQLForComparison(sqlText string) string {
	sqlText = strings.TrimSpace(sqlText)
	fields := strings.Fields(sqlText)
	sqlText = strings.Join(fields, " ")
	sqlText = strings.TrimSuffix(sqlText, ";")
	sqlText = strings.ReplaceAll(sqlText, " ,", ",")
	return sqlText
}

// GetSchemaAtMigration returns the schema an in-memory database would have
// after applying migrationsFS up to targetVersion.
func (db *DB) GetSchemaAtMigration(migrationsFS fs.FS, targetVersion uint) (map[string]string, error) {
	tmp, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open temp database: %w", err)
	}
	defer tmp.Close()

	tmpDB := &DB{tmp}
	if err := tmpDB.MigrateTo(migrationsFS, targetVersion); err != nil {
		return nil, fmt.Errorf("apply migrations to version %d: %w", targetVersion, err)
	}
	return tmpDB.GetDatabaseSchema()
}

// CompareSchemas compares two schema maps, returning a 0-100 similarity
// score and a human-readable list of differences.
func CompareSchemas(schema1, schema2 map[string]string) (score int, differences []string) {
	allKeys := make(map[string]bool)
	for k := range schema1 {
		allKeys[k] = true
	}
	for k := range schema2 {
		allKeys[k] = true
	}

	total := len(allKeys)
	if total == 0 {
		return 100, nil
	}

	matching := 0
	for key := range allKeys {
		sql1, ok1 := schema1[key]
		sql2, ok2 := schema2[key]
		switch {
		case !ok1:
			differences = append(differences, fmt.Sprintf("- missing in current: %s", key))
		case !ok2:
			differences = append(differences, fmt.Sprintf("+ extra in current: %s", key))
		case sql1 == sql2:
			matching++
		default:
			differences = append(differences, fmt.Sprintf("~ modified: %s", key))
		}
	}

	return (matching * 100) / total, differences
}

// DetectSchemaVersion finds the migration version whose resulting schema
// best matches db's current schema, for baselining legacy databases that
// predate the schema_migrations table.
func (db *DB) DetectSchemaVersion(migrationsFS fs.FS) (detectedVersion uint, matchScore int, differences []string, err error) {
	current, err := db.GetDatabaseSchema()
	if err != nil {
		return 0, 0, nil, fmt.Errorf("current schema: %w", err)
	}

	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("latest version: %w", err)
	}

	var bestVersion uint
	var bestScore int
	var bestDiffs []string

	for version := latest; version >= 1; version-- {
		atVersion, err := db.GetSchemaAtMigration(migrationsFS, version)
		if err != nil {
			monitoring.Logf("measurestore: could not get schema at version %d: %v", version, err)
			continue
		}
		score, diffs := CompareSchemas(current, atVersion)
		if score > bestScore {
			bestScore, bestVersion, bestDiffs = score, version, diffs
		}
		if score == 100 {
			break
		}
	}

	return bestVersion, bestScore, bestDiffs, nil
}
