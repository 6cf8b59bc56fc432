package capture

import (
	"context"
	"sync"
	"time"

	"github.com/motiontrace/capture-sdk/internal/measurestore"
	"github.com/motiontrace/capture-sdk/internal/monitoring"
	"github.com/motiontrace/capture-sdk/internal/sensorfile"
)

// Target is the current measurement/track the flusher persists drained
// samples into. TrackID is 0 while idle or paused, in which case
// location/altitude samples are drained and discarded (sensor files
// still receive inertial samples regardless, matching spec.md's "sensor
// samples ... in the order delivered by the OS" guarantee for whatever
// intake the pipeline did accept).
type Target struct {
	MeasurementID int64
	TrackID       int64
	AccelFile     *sensorfile.File
	RotationFile  *sensorfile.File
	DirectionFile *sensorfile.File
}

// Flusher periodically drains a Pipeline and persists the result to the
// measurement store (C3) and sensor-value files (C2). Shape grounded on
// the teacher's BackgroundFlusher: ticker + stopCh/doneCh + forced final
// flush on Stop or context cancellation.
type Flusher struct {
	pipeline *Pipeline
	store    *measurestore.DB
	interval time.Duration

	mu      sync.Mutex
	target  *Target
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewFlusher creates a Flusher with the given drain interval (spec.md
// default 1s, configurable via captureconfig.FlushIntervalMillis).
func NewFlusher(pipeline *Pipeline, store *measurestore.DB, interval time.Duration) *Flusher {
	return &Flusher{
		pipeline: pipeline,
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// SetTarget swaps the measurement/track the next flush persists into.
// Pass nil to stop persisting entirely (idle, between measurements).
func (f *Flusher) SetTarget(t *Target) {
	f.mu.Lock()
	f.target = t
	f.mu.Unlock()
}

func (f *Flusher) currentTarget() *Target {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.target
}

// Run blocks draining the pipeline every interval until ctx is cancelled
// or Stop is called, performing one final flush before returning.
func (f *Flusher) Run(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = true
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	f.mu.Unlock()

	defer func() {
		close(f.doneCh)
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	if f.interval <= 0 {
		monitoring.Logf("capture: flusher interval is zero or negative, not starting")
		return nil
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.flush()
			return nil
		case <-f.stopCh:
			f.flush()
			return nil
		case <-ticker.C:
			f.flush()
		}
	}
}

// Stop requests the flusher loop to exit after one final flush. Safe to
// call multiple times.
func (f *Flusher) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	f.mu.Unlock()

	<-f.doneCh
}

// FlushNow drains and persists immediately, outside the regular interval.
// Used by lifecycle's stop() to force a synchronous final flush (spec.md
// §5 cancellation & timeouts).
func (f *Flusher) FlushNow() {
	f.flush()
}

func (f *Flusher) flush() {
	snap := f.pipeline.Drain()
	target := f.currentTarget()

	if err := f.persistSensorFiles(target, snap); err != nil {
		monitoring.Logf("capture: flusher failed persisting sensor files: %v", err)
	}

	if target == nil || target.TrackID == 0 {
		if len(snap.Locations) > 0 || len(snap.Altitudes) > 0 {
			monitoring.Logf("capture: flusher discarding %d location(s)/%d altitude(s) with no active track",
				len(snap.Locations), len(snap.Altitudes))
		}
		return
	}

	for _, loc := range snap.Locations {
		err := f.store.AppendLocation(target.TrackID, measurestore.Location{
			TimeMs:               loc.TimeMs,
			Latitude:             loc.Latitude,
			Longitude:            loc.Longitude,
			AccuracyM:            loc.AccuracyM,
			SpeedMps:             loc.SpeedMps,
			AltitudeM:            loc.AltitudeM,
			VerticalAccuracyM:    loc.VerticalAccuracyM,
			IsPartOfCleanedTrack: loc.IsPartOfCleanedTrack,
		})
		if err != nil {
			monitoring.Logf("capture: flusher failed to append location: %v", err)
		}
	}

	for _, alt := range snap.Altitudes {
		if err := f.store.AppendAltitude(target.TrackID, measurestore.Altitude{TimeMs: alt.TimeMs, ValueM: alt.ValueM}); err != nil {
			monitoring.Logf("capture: flusher failed to append altitude: %v", err)
		}
	}
}

func (f *Flusher) persistSensorFiles(target *Target, snap Snapshot) error {
	if target == nil {
		return nil
	}
	if len(snap.Accel) > 0 && target.AccelFile != nil {
		if err := target.AccelFile.Append(snap.Accel); err != nil {
			return err
		}
	}
	if len(snap.Rotation) > 0 && target.RotationFile != nil {
		if err := target.RotationFile.Append(snap.Rotation); err != nil {
			return err
		}
	}
	if len(snap.Direction) > 0 && target.DirectionFile != nil {
		if err := target.DirectionFile.Append(snap.Direction); err != nil {
			return err
		}
	}
	return nil
}
