package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/motiontrace/capture-sdk/internal/measurestore"
)

func newTestStore(t *testing.T) *measurestore.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.db")
	db, err := measurestore.NewDB(path)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGenerateWritesTrackAndAltitudePNGs(t *testing.T) {
	db := newTestStore(t)
	m, err := db.CreateMeasurement(1000, "CAR")
	if err != nil {
		t.Fatalf("CreateMeasurement failed: %v", err)
	}
	track, err := db.AppendTrack(m.ID)
	if err != nil {
		t.Fatalf("AppendTrack failed: %v", err)
	}
	if err := db.AppendLocation(track.ID, measurestore.Location{TimeMs: 1000, Latitude: 51.5, Longitude: -0.1, AccuracyM: 5, SpeedMps: 3, IsPartOfCleanedTrack: true}); err != nil {
		t.Fatalf("AppendLocation failed: %v", err)
	}
	if err := db.AppendLocation(track.ID, measurestore.Location{TimeMs: 2000, Latitude: 51.6, Longitude: -0.2, AccuracyM: 50, SpeedMps: 3, IsPartOfCleanedTrack: false}); err != nil {
		t.Fatalf("AppendLocation failed: %v", err)
	}
	if err := db.AppendAltitude(track.ID, measurestore.Altitude{TimeMs: 1000, ValueM: 12.5}); err != nil {
		t.Fatalf("AppendAltitude failed: %v", err)
	}
	if err := db.AppendAltitude(track.ID, measurestore.Altitude{TimeMs: 2000, ValueM: 14.0}); err != nil {
		t.Fatalf("AppendAltitude failed: %v", err)
	}

	loaded, err := db.Load(m.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	base := filepath.Join(t.TempDir(), "report")
	if err := Generate(loaded, base); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	for _, suffix := range []string{"-track.png", "-altitude.png"} {
		if _, err := os.Stat(base + suffix); err != nil {
			t.Errorf("expected %s to exist: %v", suffix, err)
		}
	}
}

func TestGenerateErrorsOnEmptyMeasurement(t *testing.T) {
	db := newTestStore(t)
	m, err := db.CreateMeasurement(1000, "CAR")
	if err != nil {
		t.Fatalf("CreateMeasurement failed: %v", err)
	}
	loaded, err := db.Load(m.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	base := filepath.Join(t.TempDir(), "report")
	if err := Generate(loaded, base); err == nil {
		t.Error("expected an error for a measurement with no samples")
	}
}
