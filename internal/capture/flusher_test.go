package capture

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/motiontrace/capture-sdk/internal/fsutil"
	"github.com/motiontrace/capture-sdk/internal/measurestore"
	"github.com/motiontrace/capture-sdk/internal/sensorfile"
	"github.com/motiontrace/capture-sdk/internal/timeutil"
)

func setupFlusherTestDB(t *testing.T) *measurestore.DB {
	t.Helper()
	fname := t.Name() + ".db"
	_ = os.Remove(fname)
	db, err := measurestore.NewDB(fname)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		_ = os.Remove(fname)
		_ = os.Remove(fname + "-shm")
		_ = os.Remove(fname + "-wal")
	})
	return db
}

func TestFlushNowPersistsLocationsAndSensorFiles(t *testing.T) {
	store := setupFlusherTestDB(t)

	m, err := store.CreateMeasurement(0, "WALKING")
	if err != nil {
		t.Fatalf("CreateMeasurement failed: %v", err)
	}
	track, err := store.AppendTrack(m.ID)
	if err != nil {
		t.Fatalf("AppendTrack failed: %v", err)
	}

	mem := fsutil.NewMemoryFileSystem()
	accelFile := sensorfile.Open(mem, "accel.cyfa")

	pipeline, _ := newTestPipeline(time.UnixMilli(0))
	flusher := NewFlusher(pipeline, store, time.Second)
	flusher.SetTarget(&Target{MeasurementID: m.ID, TrackID: track.ID, AccelFile: accelFile})

	pipeline.RecordLocation(RawFix{EventTimeMs: 0, Latitude: 10, Longitude: 20, AccuracyM: 1, SpeedMps: 2})
	pipeline.RecordAcceleration(sensorfile.SensorValue{TimeMillis: 0, X: 1, Y: 1, Z: 1})

	flusher.FlushNow()

	loaded, err := store.Load(m.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Tracks) != 1 || len(loaded.Tracks[0].Locations) != 1 {
		t.Fatalf("expected 1 persisted location, got %+v", loaded.Tracks)
	}
	if loaded.Tracks[0].Locations[0].Latitude != 10 {
		t.Errorf("expected latitude 10, got %v", loaded.Tracks[0].Locations[0].Latitude)
	}

	values, err := accelFile.Read()
	if err != nil {
		t.Fatalf("sensor file Read failed: %v", err)
	}
	if len(values) != 1 || values[0].X != 1 {
		t.Fatalf("expected 1 persisted acceleration sample, got %+v", values)
	}
}

func TestFlushWithNoTargetDiscardsLocationsButKeepsRunning(t *testing.T) {
	store := setupFlusherTestDB(t)

	pipeline, _ := newTestPipeline(time.UnixMilli(0))
	flusher := NewFlusher(pipeline, store, time.Second)
	// No SetTarget call: idle, between measurements.

	pipeline.RecordLocation(RawFix{EventTimeMs: 0, Latitude: 1, Longitude: 1, AccuracyM: 1})
	flusher.FlushNow() // must not panic or error fatally

	snap := pipeline.Drain()
	if len(snap.Locations) != 0 {
		t.Fatalf("expected drain to already be empty after flush, got %+v", snap)
	}
}

func TestFlusherRunStopsCleanlyWithFinalFlush(t *testing.T) {
	store := setupFlusherTestDB(t)

	m, err := store.CreateMeasurement(0, "CAR")
	if err != nil {
		t.Fatalf("CreateMeasurement failed: %v", err)
	}
	track, err := store.AppendTrack(m.ID)
	if err != nil {
		t.Fatalf("AppendTrack failed: %v", err)
	}

	clock := timeutil.NewMockClock(time.UnixMilli(0))
	pipeline := New(clock, DefaultFilterConfig())
	pipeline.SetIntake(true)
	flusher := NewFlusher(pipeline, store, time.Hour) // long interval; rely on Stop's final flush
	flusher.SetTarget(&Target{MeasurementID: m.ID, TrackID: track.ID})

	done := make(chan struct{})
	go func() {
		_ = flusher.Run(context.Background())
		close(done)
	}()

	pipeline.RecordAltitude(Altitude{TimeMs: 0, ValueM: 42})
	flusher.Stop()
	<-done

	loaded, err := store.Load(m.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Tracks[0].Altitudes) != 1 {
		t.Fatalf("expected final flush to persist the altitude, got %+v", loaded.Tracks[0])
	}
}
