package measurestore

import (
	"database/sql"
	"errors"
	"fmt"
)

// UploadSession records the server-assigned session URL for one
// in-flight (or abandoned) resumable upload, keyed by measurement.
type UploadSession struct {
	MeasurementID int64
	SessionURL    string
	CreatedAtMs   int64
	Tasks         []UploadTask
}

// UploadTask is one recorded attempt (or status probe) against a session:
// the HTTP status it received, when, and the byte range it covered.
type UploadTask struct {
	ID            int64
	MeasurementID int64
	StatusCode    int
	TimeMs        int64
	RangeStart    int64
	RangeEnd      int64
}

// ErrSessionNotRegistered is returned when a lookup or task append
// targets a measurement with no open session.
var ErrSessionNotRegistered = errors.New("measurestore: upload session not registered")

// CreateSession registers a new upload session for a measurement. It
// fails if one is already registered — callers must DeleteSession first
// (internal/upload calls this only after GetSession finds no session; C7's
// AlreadyUploading constraint is enforced separately there, by an
// in-memory set of in-flight uploads).
func (db *DB) CreateSession(measurementID int64, sessionURL string, createdAtMs int64) error {
	_, err := db.Exec(
		`INSERT INTO upload_sessions (measurement_id, session_url, created_at_ms) VALUES (?, ?, ?)`,
		measurementID, sessionURL, createdAtMs,
	)
	if err != nil {
		return fmt.Errorf("create upload session: %w", err)
	}
	return nil
}

// GetSession returns the registered session for a measurement, including
// its tasks ordered oldest-first, or ErrSessionNotRegistered.
func (db *DB) GetSession(measurementID int64) (*UploadSession, error) {
	var s UploadSession
	err := db.QueryRow(
		`SELECT measurement_id, session_url, created_at_ms FROM upload_sessions WHERE measurement_id = ?`,
		measurementID,
	).Scan(&s.MeasurementID, &s.SessionURL, &s.CreatedAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: measurement=%d", ErrSessionNotRegistered, measurementID)
	}
	if err != nil {
		return nil, fmt.Errorf("load upload session %d: %w", measurementID, err)
	}

	tasks, err := db.ListTasks(measurementID)
	if err != nil {
		return nil, fmt.Errorf("load upload tasks for %d: %w", measurementID, err)
	}
	s.Tasks = tasks
	return &s, nil
}

// DeleteSession removes a session and its tasks (cascading), either
// because the upload completed or because it was abandoned outright.
func (db *DB) DeleteSession(measurementID int64) error {
	_, err := db.Exec(`DELETE FROM upload_sessions WHERE measurement_id = ?`, measurementID)
	if err != nil {
		return fmt.Errorf("delete upload session %d: %w", measurementID, err)
	}
	return nil
}

// AppendTask records one attempt against an open session.
func (db *DB) AppendTask(task UploadTask) error {
	_, err := db.Exec(
		`INSERT INTO upload_tasks (measurement_id, status_code, time_ms, range_start, range_end) VALUES (?, ?, ?, ?, ?)`,
		task.MeasurementID, task.StatusCode, task.TimeMs, task.RangeStart, task.RangeEnd,
	)
	if err != nil {
		return fmt.Errorf("append upload task: %w", err)
	}
	return nil
}

// ListTasks returns every recorded task for a measurement, oldest first.
func (db *DB) ListTasks(measurementID int64) ([]UploadTask, error) {
	rows, err := db.Query(
		`SELECT id, measurement_id, status_code, time_ms, range_start, range_end
		 FROM upload_tasks WHERE measurement_id = ? ORDER BY time_ms ASC`,
		measurementID,
	)
	if err != nil {
		return nil, fmt.Errorf("query upload tasks: %w", err)
	}
	defer rows.Close()

	var tasks []UploadTask
	for rows.Next() {
		var t UploadTask
		if err := rows.Scan(&t.ID, &t.MeasurementID, &t.StatusCode, &t.TimeMs, &t.RangeStart, &t.RangeEnd); err != nil {
			return nil, fmt.Errorf("scan upload task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate upload tasks: %w", err)
	}
	return tasks, nil
}

// LatestTask returns the most recently recorded task for a measurement,
// or nil if none has been recorded yet.
func (db *DB) LatestTask(measurementID int64) (*UploadTask, error) {
	var t UploadTask
	err := db.QueryRow(
		`SELECT id, measurement_id, status_code, time_ms, range_start, range_end
		 FROM upload_tasks WHERE measurement_id = ? ORDER BY time_ms DESC LIMIT 1`,
		measurementID,
	).Scan(&t.ID, &t.MeasurementID, &t.StatusCode, &t.TimeMs, &t.RangeStart, &t.RangeEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest upload task for %d: %w", measurementID, err)
	}
	return &t, nil
}
