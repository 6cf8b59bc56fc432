package measurestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// EventType enumerates the lifecycle and modality markers a Measurement's
// Events can carry.
type EventType string

const (
	EventLifecycleStart  EventType = "LIFECYCLE_START"
	EventLifecycleStop   EventType = "LIFECYCLE_STOP"
	EventLifecyclePause  EventType = "LIFECYCLE_PAUSE"
	EventLifecycleResume EventType = "LIFECYCLE_RESUME"
	EventModalityChange  EventType = "MODALITY_TYPE_CHANGE"
)

// Measurement is one capture session: a device-unique, monotonically
// assigned identifier, its Tracks and Events, and the synchronisation
// flags that gate upload.
type Measurement struct {
	ID             int64
	StartTimeMs    int64
	Synchronizable bool
	Synchronized   bool
	SchemaVersion  int
	Tracks         []Track
	Events         []Event
}

// Track is a contiguous capture segment bounded by start/resume on one
// end and pause/stop on the other.
type Track struct {
	ID            int64
	MeasurementID int64
	Seq           int
	Locations     []Location
	Altitudes     []Altitude
}

// Location is one geographic fix.
type Location struct {
	ID                   int64
	TrackID              int64
	TimeMs               int64
	Latitude             float64
	Longitude            float64
	AccuracyM            float64
	SpeedMps             float64
	AltitudeM            *float64
	VerticalAccuracyM    *float64
	IsPartOfCleanedTrack bool
}

// Altitude is one barometer-derived relative altitude sample.
type Altitude struct {
	ID      int64
	TrackID int64
	TimeMs  int64
	ValueM  float64
}

// Event is a lifecycle or modality marker attached to a Measurement.
type Event struct {
	ID            int64
	MeasurementID int64
	Type          EventType
	TimeMs        int64
	Value         *string
}

// ErrMeasurementNotFound is returned by load and the mark* operations
// when the identifier does not exist in the store.
var ErrMeasurementNotFound = errors.New("measurestore: measurement not found")

// CreateMeasurement assigns the next free identifier (see allocateMid)
// and records an initial MODALITY_TYPE_CHANGE event, all inside one
// transaction.
func (db *DB) CreateMeasurement(startTimeMs int64, initialModality string) (*Measurement, error) {
	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create measurement: %w", err)
	}
	defer tx.Rollback()

	id, err := allocateMid(tx)
	if err != nil {
		return nil, fmt.Errorf("allocate measurement id: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO measurements (id, start_time_ms, synchronizable, synchronized, schema_version) VALUES (?, ?, 0, 0, ?)`,
		id, startTimeMs, currentSchemaVersion,
	); err != nil {
		return nil, fmt.Errorf("insert measurement: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO events (measurement_id, type, time_ms, value) VALUES (?, ?, ?, ?)`,
		id, EventModalityChange, startTimeMs, initialModality,
	); err != nil {
		return nil, fmt.Errorf("insert initial modality event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create measurement: %w", err)
	}

	return &Measurement{
		ID:            id,
		StartTimeMs:   startTimeMs,
		SchemaVersion: currentSchemaVersion,
		Events: []Event{{
			MeasurementID: id,
			Type:          EventModalityChange,
			TimeMs:        startTimeMs,
			Value:         &initialModality,
		}},
	}, nil
}

// currentSchemaVersion is the schema_version stamped on newly created
// measurements (schema.sql uses the same value as the column default). It
// is a fixed constant, not derived from the migration chain in migrations/.
const currentSchemaVersion = 3

// allocateMid implements the identifier allocation described in §4.9:
// a single-row counter incremented past any collision with an existing
// row, tolerating legacy data that predates the counter.
func allocateMid(tx *sql.Tx) (int64, error) {
	for {
		var next int64
		if err := tx.QueryRow(`UPDATE mid_counter SET next_id = next_id + 1 WHERE id = 1 RETURNING next_id`).Scan(&next); err != nil {
			return 0, fmt.Errorf("increment mid counter: %w", err)
		}

		var exists bool
		if err := tx.QueryRow(`SELECT COUNT(*) > 0 FROM measurements WHERE id = ?`, next).Scan(&exists); err != nil {
			return 0, fmt.Errorf("check mid collision: %w", err)
		}
		if !exists {
			return next, nil
		}
	}
}

// AppendTrack creates a new Track owned by the measurement, with seq one
// past the highest existing seq for that measurement (0 for the first).
func (db *DB) AppendTrack(measurementID int64) (*Track, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin append track: %w", err)
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(seq) FROM tracks WHERE measurement_id = ?`, measurementID).Scan(&maxSeq); err != nil {
		return nil, fmt.Errorf("query max track seq: %w", err)
	}
	seq := 0
	if maxSeq.Valid {
		seq = int(maxSeq.Int64) + 1
	}

	result, err := tx.Exec(`INSERT INTO tracks (measurement_id, seq) VALUES (?, ?)`, measurementID, seq)
	if err != nil {
		return nil, fmt.Errorf("insert track: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("track insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append track: %w", err)
	}

	return &Track{ID: id, MeasurementID: measurementID, Seq: seq}, nil
}

// AppendLocation inserts a Location under the given track.
func (db *DB) AppendLocation(trackID int64, loc Location) error {
	_, err := db.Exec(
		`INSERT INTO locations (track_id, time_ms, latitude, longitude, accuracy_m, speed_mps, altitude_m, vertical_accuracy_m, is_part_of_cleaned_track)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trackID, loc.TimeMs, loc.Latitude, loc.Longitude, loc.AccuracyM, loc.SpeedMps,
		loc.AltitudeM, loc.VerticalAccuracyM, boolToInt(loc.IsPartOfCleanedTrack),
	)
	if err != nil {
		return fmt.Errorf("insert location: %w", err)
	}
	return nil
}

// AppendAltitude inserts an Altitude sample under the given track.
func (db *DB) AppendAltitude(trackID int64, alt Altitude) error {
	_, err := db.Exec(
		`INSERT INTO altitudes (track_id, time_ms, value_m) VALUES (?, ?, ?)`,
		trackID, alt.TimeMs, alt.ValueM,
	)
	if err != nil {
		return fmt.Errorf("insert altitude: %w", err)
	}
	return nil
}

// AppendEvent inserts an Event under the given measurement.
func (db *DB) AppendEvent(measurementID int64, evt Event) error {
	_, err := db.Exec(
		`INSERT INTO events (measurement_id, type, time_ms, value) VALUES (?, ?, ?, ?)`,
		measurementID, evt.Type, evt.TimeMs, evt.Value,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// MarkSynchronizable flips a measurement's synchronizable flag
// false→true. It is a no-op (not an error) if already set.
func (db *DB) MarkSynchronizable(id int64) error {
	result, err := db.Exec(`UPDATE measurements SET synchronizable = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark synchronizable: %w", err)
	}
	return checkRowsAffected(result, id)
}

// MarkSynchronized flips a measurement's synchronized flag false→true.
func (db *DB) MarkSynchronized(id int64) error {
	result, err := db.Exec(`UPDATE measurements SET synchronized = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark synchronized: %w", err)
	}
	return checkRowsAffected(result, id)
}

func checkRowsAffected(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id=%d", ErrMeasurementNotFound, id)
	}
	return nil
}

// Load returns the deep representation of a measurement: its Tracks
// (each with Locations and Altitudes) and its Events.
func (db *DB) Load(id int64) (*Measurement, error) {
	m, err := db.loadMeasurementRow(id)
	if err != nil {
		return nil, err
	}

	tracks, err := db.loadTracks(id)
	if err != nil {
		return nil, fmt.Errorf("load tracks for measurement %d: %w", id, err)
	}
	m.Tracks = tracks

	events, err := db.loadEventsFor(id, "")
	if err != nil {
		return nil, fmt.Errorf("load events for measurement %d: %w", id, err)
	}
	m.Events = events

	return m, nil
}

func (db *DB) loadMeasurementRow(id int64) (*Measurement, error) {
	var m Measurement
	var synchronizable, synchronized int
	err := db.QueryRow(
		`SELECT id, start_time_ms, synchronizable, synchronized, schema_version FROM measurements WHERE id = ?`, id,
	).Scan(&m.ID, &m.StartTimeMs, &synchronizable, &synchronized, &m.SchemaVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id=%d", ErrMeasurementNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load measurement %d: %w", id, err)
	}
	m.Synchronizable = synchronizable != 0
	m.Synchronized = synchronized != 0
	return &m, nil
}

func (db *DB) loadTracks(measurementID int64) ([]Track, error) {
	rows, err := db.Query(`SELECT id, seq FROM tracks WHERE measurement_id = ? ORDER BY seq ASC`, measurementID)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		var t Track
		if err := rows.Scan(&t.ID, &t.Seq); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		t.MeasurementID = measurementID
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracks: %w", err)
	}

	for i := range tracks {
		locs, err := db.loadLocations(tracks[i].ID)
		if err != nil {
			return nil, fmt.Errorf("load locations for track %d: %w", tracks[i].ID, err)
		}
		tracks[i].Locations = locs

		alts, err := db.loadAltitudes(tracks[i].ID)
		if err != nil {
			return nil, fmt.Errorf("load altitudes for track %d: %w", tracks[i].ID, err)
		}
		tracks[i].Altitudes = alts
	}

	return tracks, nil
}

func (db *DB) loadLocations(trackID int64) ([]Location, error) {
	rows, err := db.Query(
		`SELECT id, time_ms, latitude, longitude, accuracy_m, speed_mps, altitude_m, vertical_accuracy_m, is_part_of_cleaned_track
		 FROM locations WHERE track_id = ? ORDER BY time_ms ASC, id ASC`, trackID,
	)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	var locs []Location
	for rows.Next() {
		var l Location
		var cleaned int
		if err := rows.Scan(&l.ID, &l.TimeMs, &l.Latitude, &l.Longitude, &l.AccuracyM, &l.SpeedMps, &l.AltitudeM, &l.VerticalAccuracyM, &cleaned); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		l.TrackID = trackID
		l.IsPartOfCleanedTrack = cleaned != 0
		locs = append(locs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locations: %w", err)
	}
	return locs, nil
}

func (db *DB) loadAltitudes(trackID int64) ([]Altitude, error) {
	rows, err := db.Query(`SELECT id, time_ms, value_m FROM altitudes WHERE track_id = ? ORDER BY time_ms ASC, id ASC`, trackID)
	if err != nil {
		return nil, fmt.Errorf("query altitudes: %w", err)
	}
	defer rows.Close()

	var alts []Altitude
	for rows.Next() {
		var a Altitude
		if err := rows.Scan(&a.ID, &a.TimeMs, &a.ValueM); err != nil {
			return nil, fmt.Errorf("scan altitude: %w", err)
		}
		a.TrackID = trackID
		alts = append(alts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate altitudes: %w", err)
	}
	return alts, nil
}

// LoadAll returns every measurement's shallow row (no Tracks/Events).
func (db *DB) LoadAll() ([]Measurement, error) {
	rows, err := db.Query(`SELECT id, start_time_ms, synchronizable, synchronized, schema_version FROM measurements ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", err)
	}
	defer rows.Close()

	var out []Measurement
	for rows.Next() {
		var m Measurement
		var synchronizable, synchronized int
		if err := rows.Scan(&m.ID, &m.StartTimeMs, &synchronizable, &synchronized, &m.SchemaVersion); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		m.Synchronizable = synchronizable != 0
		m.Synchronized = synchronized != 0
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate measurements: %w", err)
	}
	return out, nil
}

// LoadSynchronizable returns every measurement with synchronizable=true
// and synchronized=false — the upload backlog.
func (db *DB) LoadSynchronizable() ([]Measurement, error) {
	rows, err := db.Query(
		`SELECT id, start_time_ms, schema_version FROM measurements WHERE synchronizable = 1 AND synchronized = 0 ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query synchronizable measurements: %w", err)
	}
	defer rows.Close()

	var out []Measurement
	for rows.Next() {
		var m Measurement
		if err := rows.Scan(&m.ID, &m.StartTimeMs, &m.SchemaVersion); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		m.Synchronizable = true
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate synchronizable measurements: %w", err)
	}
	return out, nil
}

// LoadEvents returns a measurement's events, optionally filtered to a
// single EventType (pass "" for all types).
func (db *DB) LoadEvents(id int64, eventType EventType) ([]Event, error) {
	return db.loadEventsFor(id, eventType)
}

func (db *DB) loadEventsFor(measurementID int64, eventType EventType) ([]Event, error) {
	query := `SELECT id, type, time_ms, value FROM events WHERE measurement_id = ?`
	args := []any{measurementID}
	if eventType != "" {
		query += ` AND type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY time_ms ASC, id ASC`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(&e.ID, &typ, &e.TimeMs, &e.Value); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.MeasurementID = measurementID
		e.Type = EventType(typ)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Delete removes a measurement and, via ON DELETE CASCADE, its tracks,
// locations, altitudes, events and upload session/tasks. The caller is
// responsible for deleting the measurement's C2 sensor files and
// per-measurement directory (measurestore has no knowledge of the
// filesystem layout sensorfile uses).
func (db *DB) Delete(id int64) error {
	result, err := db.Exec(`DELETE FROM measurements WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete measurement: %w", err)
	}
	return checkRowsAffected(result, id)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
