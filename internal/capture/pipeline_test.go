package capture

import (
	"testing"
	"time"

	"github.com/motiontrace/capture-sdk/internal/sensorfile"
	"github.com/motiontrace/capture-sdk/internal/timeutil"
)

func newTestPipeline(now time.Time) (*Pipeline, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(now)
	p := New(clock, DefaultFilterConfig())
	p.SetIntake(true)
	return p, clock
}

func TestRecordLocationAcceptsGoodFix(t *testing.T) {
	base := time.UnixMilli(10_000)
	p, _ := newTestPipeline(base)

	p.RecordLocation(RawFix{EventTimeMs: 10_000, Latitude: 1, Longitude: 1, AccuracyM: 1, SpeedMps: 1})

	snap := p.Drain()
	if len(snap.Locations) != 1 {
		t.Fatalf("expected 1 location, got %d", len(snap.Locations))
	}
	if !snap.Locations[0].IsPartOfCleanedTrack {
		t.Error("expected accurate, timely fix to be part of cleaned track")
	}
}

func TestRecordLocationRejectsLowAccuracy(t *testing.T) {
	base := time.UnixMilli(10_000)
	p, _ := newTestPipeline(base)

	p.RecordLocation(RawFix{EventTimeMs: 10_000, Latitude: 1, Longitude: 1, AccuracyM: 25, SpeedMps: 1})

	snap := p.Drain()
	if len(snap.Locations) != 1 {
		t.Fatalf("expected rejected fix to still be counted, got %d", len(snap.Locations))
	}
	if snap.Locations[0].IsPartOfCleanedTrack {
		t.Error("expected 25m-accuracy fix to be rejected from cleaned track")
	}
}

func TestRecordLocationRejectsStaleLag(t *testing.T) {
	base := time.UnixMilli(20_000)
	p, _ := newTestPipeline(base)

	p.RecordLocation(RawFix{EventTimeMs: 0, Latitude: 1, Longitude: 1, AccuracyM: 1, SpeedMps: 1})

	snap := p.Drain()
	if snap.Locations[0].IsPartOfCleanedTrack {
		t.Error("expected fix lagging 20s to be rejected")
	}
}

func TestHasFixAndFixLostTransitions(t *testing.T) {
	base := time.UnixMilli(0)
	p, _ := newTestPipeline(base)

	_, messages := p.Subscribe()

	// First valid fix: 0 -> 1 consecutive, emits hasFix.
	p.RecordLocation(RawFix{EventTimeMs: 0, Latitude: 1, Longitude: 1, AccuracyM: 1})
	// Second valid fix: no transition (still >=1).
	p.RecordLocation(RawFix{EventTimeMs: 1000, Latitude: 1, Longitude: 1, AccuracyM: 1})
	// Rejected fix: 1 -> 0, emits fixLost.
	p.RecordLocation(RawFix{EventTimeMs: 2000, Latitude: 1, Longitude: 1, AccuracyM: 99})

	var got []FixEventType
	for i := 0; i < 2; i++ {
		select {
		case msg := <-messages:
			got = append(got, msg.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fix message")
		}
	}

	if len(got) != 2 || got[0] != HasFix || got[1] != FixLost {
		t.Fatalf("expected [hasFix fixLost], got %v", got)
	}
}

func TestIntakeDisabledDropsSamples(t *testing.T) {
	base := time.UnixMilli(0)
	clock := timeutil.NewMockClock(base)
	p := New(clock, DefaultFilterConfig())
	// Intake left disabled (paused/idle).

	p.RecordAcceleration(sensorfile.SensorValue{TimeMillis: 0, X: 1, Y: 1, Z: 1})
	p.RecordLocation(RawFix{EventTimeMs: 0, Latitude: 1, Longitude: 1, AccuracyM: 1})

	snap := p.Drain()
	if len(snap.Accel) != 0 || len(snap.Locations) != 0 {
		t.Fatalf("expected no samples recorded while intake disabled, got %+v", snap)
	}
}

func TestDrainIsAtomicAcrossAllBuffers(t *testing.T) {
	p, _ := newTestPipeline(time.UnixMilli(0))

	p.RecordAcceleration(sensorfile.SensorValue{TimeMillis: 0, X: 1, Y: 2, Z: 3})
	p.RecordRotation(sensorfile.SensorValue{TimeMillis: 0, X: 4, Y: 5, Z: 6})
	p.RecordDirection(sensorfile.SensorValue{TimeMillis: 0, X: 7, Y: 8, Z: 9})
	p.RecordAltitude(Altitude{TimeMs: 0, ValueM: 100})

	snap := p.Drain()
	if len(snap.Accel) != 1 || len(snap.Rotation) != 1 || len(snap.Direction) != 1 || len(snap.Altitudes) != 1 {
		t.Fatalf("expected one sample in each buffer, got %+v", snap)
	}

	again := p.Drain()
	if len(again.Accel) != 0 || len(again.Rotation) != 0 || len(again.Direction) != 0 || len(again.Altitudes) != 0 {
		t.Fatalf("expected buffers empty after drain, got %+v", again)
	}
}
