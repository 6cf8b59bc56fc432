package lifecycle

import (
	"os"
	"testing"
	"time"

	"github.com/motiontrace/capture-sdk/internal/capture"
	"github.com/motiontrace/capture-sdk/internal/fsutil"
	"github.com/motiontrace/capture-sdk/internal/measurestore"
	"github.com/motiontrace/capture-sdk/internal/timeutil"
)

func setupLifecycleTestDB(t *testing.T) *measurestore.DB {
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

func newTestLifecycle(t *testing.T) *Lifecycle {
	t.Helper()
	store := setupLifecycleTestDB(t)
	clock := timeutil.NewMockClock(time.UnixMilli(0))
	pipeline := capture.New(clock, capture.DefaultFilterConfig())
	flusher := capture.NewFlusher(pipeline, store, time.Hour)
	mem := fsutil.NewMemoryFileSystem()
	return New(store, pipeline, flusher, mem, "/app-support")
}

func TestStartTransitionsIdleToRunning(t *testing.T) {
	l := newTestLifecycle(t)

	if err := l.Start(1000, "WALKING"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if l.State() != StateRunning {
		t.Fatalf("expected RUNNING, got %v", l.State())
	}
	if l.MeasurementID() == 0 {
		t.Fatal("expected non-zero measurement id")
	}
}

func TestStartWhileRunningFails(t *testing.T) {
	l := newTestLifecycle(t)
	if err := l.Start(1000, "WALKING"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := l.Start(2000, "WALKING"); err != ErrIsRunning {
		t.Fatalf("expected ErrIsRunning, got %v", err)
	}
}

func TestPauseResumeCycle(t *testing.T) {
	l := newTestLifecycle(t)
	_, messages := l.Subscribe()

	if err := l.Start(0, "WALKING"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	firstTrack := l.trackID

	if err := l.Pause(1000); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if l.State() != StatePaused {
		t.Fatalf("expected PAUSED, got %v", l.State())
	}

	if err := l.Resume(2000); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if l.State() != StateRunning {
		t.Fatalf("expected RUNNING, got %v", l.State())
	}
	if l.trackID == firstTrack {
		t.Fatal("expected Resume to append a new track")
	}

	if err := l.Stop(3000); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	var got []MessageType
	for msg := range messages {
		got = append(got, msg.Type)
	}
	want := []MessageType{Started, Paused, Resumed, Stopped}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestPauseWhileIdleFails(t *testing.T) {
	l := newTestLifecycle(t)
	if err := l.Pause(0); err != ErrNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestResumeWhileRunningFails(t *testing.T) {
	l := newTestLifecycle(t)
	if err := l.Start(0, "WALKING"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := l.Resume(1000); err != ErrNotPaused {
		t.Fatalf("expected ErrNotPaused, got %v", err)
	}
}

func TestStopWhileIdleFails(t *testing.T) {
	l := newTestLifecycle(t)
	if err := l.Stop(0); err != ErrNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestChangeModalityWhileNotRunningFails(t *testing.T) {
	l := newTestLifecycle(t)
	if err := l.ChangeModality(0, "CAR"); err != ErrNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestChangeModalityWhileRunningBroadcasts(t *testing.T) {
	l := newTestLifecycle(t)
	_, messages := l.Subscribe()

	if err := l.Start(0, "WALKING"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := l.ChangeModality(500, "CAR"); err != nil {
		t.Fatalf("ChangeModality failed: %v", err)
	}

	<-messages // STARTED
	msg := <-messages
	if msg.Type != ModalityChanged || msg.Modality != "CAR" {
		t.Fatalf("expected MODALITY_CHANGED/CAR, got %+v", msg)
	}
}

func TestStopMarksMeasurementSynchronizable(t *testing.T) {
	store := setupLifecycleTestDB(t)
	clock := timeutil.NewMockClock(time.UnixMilli(0))
	pipeline := capture.New(clock, capture.DefaultFilterConfig())
	flusher := capture.NewFlusher(pipeline, store, time.Hour)
	mem := fsutil.NewMemoryFileSystem()
	l := New(store, pipeline, flusher, mem, "/app-support")

	if err := l.Start(0, "WALKING"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := l.Stop(1000); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	synchronizable, err := store.LoadSynchronizable()
	if err != nil {
		t.Fatalf("LoadSynchronizable failed: %v", err)
	}
	if len(synchronizable) != 1 || synchronizable[0].ID != l.MeasurementID() {
		t.Fatalf("expected measurement %d to be synchronizable, got %+v", l.MeasurementID(), synchronizable)
	}
}

func TestStopDisablesIntake(t *testing.T) {
	l := newTestLifecycle(t)
	if err := l.Start(0, "WALKING"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := l.Stop(1000); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	l.pipeline.RecordLocation(capture.RawFix{EventTimeMs: 2000, Latitude: 1, Longitude: 1, AccuracyM: 1})
	snap := l.pipeline.Drain()
	if len(snap.Locations) != 0 {
		t.Fatalf("expected intake disabled after Stop, got %+v", snap.Locations)
	}
}
