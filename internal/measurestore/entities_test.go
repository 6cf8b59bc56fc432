package measurestore

import (
	"errors"
	"os"
	"testing"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	fname := t.Name() + ".db"
	_ = os.Remove(fname)

	db, err := NewDB(fname)
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	return db
}

func cleanupTestDB(t *testing.T, db *DB) {
	t.Helper()
	fname := t.Name() + ".db"
	db.Close()
	_ = os.Remove(fname)
	_ = os.Remove(fname + "-shm")
	_ = os.Remove(fname + "-wal")
}

func floatPtr(f float64) *float64 {
	return &f
}

func TestCreateMeasurement(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	m, err := db.CreateMeasurement(1000, "BICYCLE")
	if err != nil {
		t.Fatalf("CreateMeasurement failed: %v", err)
	}
	if m.ID != 1 {
		t.Errorf("expected first measurement id 1, got %d", m.ID)
	}
	if m.Synchronizable || m.Synchronized {
		t.Error("new measurement must not be synchronizable or synchronized")
	}

	loaded, err := db.Load(m.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Events) != 1 || loaded.Events[0].Type != EventModalityChange {
		t.Fatalf("expected single MODALITY_TYPE_CHANGE event, got %+v", loaded.Events)
	}
	if loaded.Events[0].Value == nil || *loaded.Events[0].Value != "BICYCLE" {
		t.Errorf("expected modality value BICYCLE, got %+v", loaded.Events[0].Value)
	}
}

func TestCreateMeasurementMonotoneIdentifiers(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	var prev int64
	for i := 0; i < 5; i++ {
		m, err := db.CreateMeasurement(int64(i), "WALKING")
		if err != nil {
			t.Fatalf("CreateMeasurement %d failed: %v", i, err)
		}
		if m.ID <= prev {
			t.Fatalf("expected strictly increasing ids, got %d after %d", m.ID, prev)
		}
		prev = m.ID
	}
}

func TestCreateMeasurementSkipsCollision(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	for i := 0; i < 6; i++ {
		if _, err := db.CreateMeasurement(int64(i), "CAR"); err != nil {
			t.Fatalf("seed CreateMeasurement %d failed: %v", i, err)
		}
	}

	if _, err := db.Exec(`INSERT INTO measurements (id, start_time_ms, schema_version) VALUES (7, 9999, 3)`); err != nil {
		t.Fatalf("pre-seed id=7 failed: %v", err)
	}

	m, err := db.CreateMeasurement(100, "CAR")
	if err != nil {
		t.Fatalf("CreateMeasurement after collision failed: %v", err)
	}
	if m.ID != 8 {
		t.Errorf("expected collision to be skipped yielding id 8, got %d", m.ID)
	}
}

func TestAppendTrackSeqIncrements(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	m, err := db.CreateMeasurement(0, "WALKING")
	if err != nil {
		t.Fatalf("CreateMeasurement failed: %v", err)
	}

	t1, err := db.AppendTrack(m.ID)
	if err != nil {
		t.Fatalf("AppendTrack failed: %v", err)
	}
	if t1.Seq != 0 {
		t.Errorf("expected first track seq 0, got %d", t1.Seq)
	}

	t2, err := db.AppendTrack(m.ID)
	if err != nil {
		t.Fatalf("AppendTrack failed: %v", err)
	}
	if t2.Seq != 1 {
		t.Errorf("expected second track seq 1, got %d", t2.Seq)
	}
}

func TestAppendLocationAndAltitude(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	m, err := db.CreateMeasurement(0, "WALKING")
	if err != nil {
		t.Fatalf("CreateMeasurement failed: %v", err)
	}
	track, err := db.AppendTrack(m.ID)
	if err != nil {
		t.Fatalf("AppendTrack failed: %v", err)
	}

	loc := Location{
		TimeMs:               1000,
		Latitude:             37.7749,
		Longitude:            -122.4194,
		AccuracyM:            5.0,
		SpeedMps:             1.2,
		AltitudeM:            floatPtr(12.5),
		VerticalAccuracyM:    floatPtr(2.0),
		IsPartOfCleanedTrack: true,
	}
	if err := db.AppendLocation(track.ID, loc); err != nil {
		t.Fatalf("AppendLocation failed: %v", err)
	}

	alt := Altitude{TimeMs: 1000, ValueM: 12.5}
	if err := db.AppendAltitude(track.ID, alt); err != nil {
		t.Fatalf("AppendAltitude failed: %v", err)
	}

	loaded, err := db.Load(m.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(loaded.Tracks))
	}
	if len(loaded.Tracks[0].Locations) != 1 || loaded.Tracks[0].Locations[0].Latitude != 37.7749 {
		t.Fatalf("unexpected locations: %+v", loaded.Tracks[0].Locations)
	}
	if len(loaded.Tracks[0].Altitudes) != 1 || loaded.Tracks[0].Altitudes[0].ValueM != 12.5 {
		t.Fatalf("unexpected altitudes: %+v", loaded.Tracks[0].Altitudes)
	}
}

func TestPauseResumeCycleProducesTwoTracksAndOrderedEvents(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	m, err := db.CreateMeasurement(0, "BICYCLE")
	if err != nil {
		t.Fatalf("CreateMeasurement failed: %v", err)
	}
	if _, err := db.AppendTrack(m.ID); err != nil {
		t.Fatalf("AppendTrack (start) failed: %v", err)
	}
	if err := db.AppendEvent(m.ID, Event{Type: EventLifecycleStart, TimeMs: 0}); err != nil {
		t.Fatalf("AppendEvent START failed: %v", err)
	}
	if err := db.AppendEvent(m.ID, Event{Type: EventLifecyclePause, TimeMs: 500}); err != nil {
		t.Fatalf("AppendEvent PAUSE failed: %v", err)
	}
	if _, err := db.AppendTrack(m.ID); err != nil {
		t.Fatalf("AppendTrack (resume) failed: %v", err)
	}
	if err := db.AppendEvent(m.ID, Event{Type: EventLifecycleResume, TimeMs: 1000}); err != nil {
		t.Fatalf("AppendEvent RESUME failed: %v", err)
	}
	if err := db.AppendEvent(m.ID, Event{Type: EventLifecycleStop, TimeMs: 1500}); err != nil {
		t.Fatalf("AppendEvent STOP failed: %v", err)
	}
	if err := db.MarkSynchronizable(m.ID); err != nil {
		t.Fatalf("MarkSynchronizable failed: %v", err)
	}

	loaded, err := db.Load(m.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(loaded.Tracks))
	}
	if !loaded.Synchronizable {
		t.Error("expected measurement to be synchronizable after STOP")
	}

	wantTypes := []EventType{EventModalityChange, EventLifecycleStart, EventLifecyclePause, EventLifecycleResume, EventLifecycleStop}
	if len(loaded.Events) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d: %+v", len(wantTypes), len(loaded.Events), loaded.Events)
	}
	for i, want := range wantTypes {
		if loaded.Events[i].Type != want {
			t.Errorf("event %d: expected %s, got %s", i, want, loaded.Events[i].Type)
		}
	}
}

func TestMarkSynchronizedOnUnknownMeasurementFails(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	err := db.MarkSynchronized(999)
	if !errors.Is(err, ErrMeasurementNotFound) {
		t.Fatalf("expected ErrMeasurementNotFound, got %v", err)
	}
}

func TestLoadSynchronizableFiltersCorrectly(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	m1, err := db.CreateMeasurement(0, "WALKING")
	if err != nil {
		t.Fatalf("CreateMeasurement failed: %v", err)
	}
	m2, err := db.CreateMeasurement(0, "WALKING")
	if err != nil {
		t.Fatalf("CreateMeasurement failed: %v", err)
	}
	if err := db.MarkSynchronizable(m1.ID); err != nil {
		t.Fatalf("MarkSynchronizable failed: %v", err)
	}
	if err := db.MarkSynchronizable(m2.ID); err != nil {
		t.Fatalf("MarkSynchronizable failed: %v", err)
	}
	if err := db.MarkSynchronized(m2.ID); err != nil {
		t.Fatalf("MarkSynchronized failed: %v", err)
	}

	backlog, err := db.LoadSynchronizable()
	if err != nil {
		t.Fatalf("LoadSynchronizable failed: %v", err)
	}
	if len(backlog) != 1 || backlog[0].ID != m1.ID {
		t.Fatalf("expected only m1 in backlog, got %+v", backlog)
	}
}

func TestLoadEventsFilterByType(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	m, err := db.CreateMeasurement(0, "CAR")
	if err != nil {
		t.Fatalf("CreateMeasurement failed: %v", err)
	}
	if err := db.AppendEvent(m.ID, Event{Type: EventLifecycleStart, TimeMs: 0}); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	if err := db.AppendEvent(m.ID, Event{Type: EventLifecycleStop, TimeMs: 10}); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	events, err := db.LoadEvents(m.ID, EventLifecycleStop)
	if err != nil {
		t.Fatalf("LoadEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != EventLifecycleStop {
		t.Fatalf("expected single STOP event, got %+v", events)
	}
}

func TestDeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	m, err := db.CreateMeasurement(0, "WALKING")
	if err != nil {
		t.Fatalf("CreateMeasurement failed: %v", err)
	}
	track, err := db.AppendTrack(m.ID)
	if err != nil {
		t.Fatalf("AppendTrack failed: %v", err)
	}
	if err := db.AppendLocation(track.ID, Location{TimeMs: 0, Latitude: 1, Longitude: 2, AccuracyM: 3, SpeedMps: 0}); err != nil {
		t.Fatalf("AppendLocation failed: %v", err)
	}

	if err := db.Delete(m.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := db.Load(m.ID); !errors.Is(err, ErrMeasurementNotFound) {
		t.Fatalf("expected ErrMeasurementNotFound after delete, got %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM locations WHERE track_id = ?`, track.ID).Scan(&count); err != nil {
		t.Fatalf("count locations failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected cascading delete to remove locations, found %d", count)
	}
}

func TestDeleteUnknownMeasurementFails(t *testing.T) {
	db := setupTestDB(t)
	defer cleanupTestDB(t, db)

	err := db.Delete(999)
	if !errors.Is(err, ErrMeasurementNotFound) {
		t.Fatalf("expected ErrMeasurementNotFound, got %v", err)
	}
}
