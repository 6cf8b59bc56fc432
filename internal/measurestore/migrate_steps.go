package measurestore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/motiontrace/capture-sdk/internal/monitoring"
)

// CustomStep is a data transform a schema migration cannot express as plain
// SQL — it needs Go-level logic (e.g. the mid-counter backfill below). Steps are idempotent and tracked in custom_migrations so a
// re-run after a partial failure does not reapply them.
type CustomStep struct {
	Name string
	Run  func(tx *sql.Tx) error
}

// customSteps is the ordered registry of Go-level migration steps that
// accompany the SQL migration chain. Each entry runs once, after MigrateUp
// has applied the migrations/*.up.sql chain.
var customSteps = []CustomStep{
	{
		Name: "backfill-mid-counter-from-measurements",
		Run: func(tx *sql.Tx) error {
			var maxID sql.NullInt64
			if err := tx.QueryRow(`SELECT MAX(id) FROM measurements`).Scan(&maxID); err != nil {
				return fmt.Errorf("max measurement id: %w", err)
			}
			if !maxID.Valid {
				return nil
			}
			_, err := tx.Exec(`UPDATE mid_counter SET next_id = ?1 WHERE id = 1 AND next_id < ?1`, maxID.Int64)
			return err
		},
	},
}

// ApplyCustomSteps runs any registered CustomStep not yet recorded in
// custom_migrations, each inside its own transaction so a failure partway
// through leaves the store at a well-defined (previous) state.
func (db *DB) ApplyCustomSteps() error {
	for _, step := range customSteps {
		applied, err := db.customStepApplied(step.Name)
		if err != nil {
			return fmt.Errorf("check custom step %s: %w", step.Name, err)
		}
		if applied {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin custom step %s: %w", step.Name, err)
		}

		if err := step.Run(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("run custom step %s: %w", step.Name, err)
		}

		if _, err := tx.Exec(
			`INSERT INTO custom_migrations (name, applied_at_ms) VALUES (?, ?)`,
			step.Name, nowMillis(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record custom step %s: %w", step.Name, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit custom step %s: %w", step.Name, err)
		}

		monitoring.Logf("measurestore: applied custom migration step %q", step.Name)
	}
	return nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func (db *DB) customStepApplied(name string) (bool, error) {
	var exists bool
	err := db.QueryRow(`SELECT COUNT(*) > 0 FROM custom_migrations WHERE name = ?`, name).Scan(&exists)
	if err != nil {
		// custom_migrations itself may not exist yet on a store that hasn't
		// reached migration 000006; treat that as "not applied".
		return false, nil
	}
	return exists, nil
}
