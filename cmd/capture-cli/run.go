package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/motiontrace/capture-sdk/internal/capture"
	"github.com/motiontrace/capture-sdk/internal/captureconfig"
	"github.com/motiontrace/capture-sdk/internal/fsutil"
	"github.com/motiontrace/capture-sdk/internal/lifecycle"
	"github.com/motiontrace/capture-sdk/internal/measurestore"
	"github.com/motiontrace/capture-sdk/internal/sensorfile"
	"github.com/motiontrace/capture-sdk/internal/timeutil"
)

func handleRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dbPath := fs.String("db", "capture.db", "Path to the measurement store sqlite file")
	baseDir := fs.String("data-dir", ".", "Directory for per-measurement sensor files")
	modality := fs.String("modality", "CAR", "Initial modality")
	duration := fs.Duration("duration", 10*time.Second, "How long to simulate sample intake")
	accelHz := fs.Int("accel-hz", 100, "Simulated accelerometer rate")
	fs.Parse(args)

	store, err := measurestore.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	cfg, err := captureconfig.Config{AccelerometerHz: *accelHz}.Normalize()
	if err != nil {
		return fmt.Errorf("normalize config: %w", err)
	}

	pipeline := capture.New(timeutil.RealClock{}, cfg.FilterConfig())
	flusher := capture.NewFlusher(pipeline, store, cfg.FlushInterval())
	lc := lifecycle.New(store, pipeline, flusher, fsutil.OSFileSystem{}, *baseDir)

	flusherCtx, cancelFlusher := context.WithCancel(ctx)
	flusherDone := make(chan struct{})
	go func() {
		defer close(flusherDone)
		_ = flusher.Run(flusherCtx)
	}()

	startMs := time.Now().UnixMilli()
	if err := lc.Start(startMs, *modality); err != nil {
		cancelFlusher()
		<-flusherDone
		return fmt.Errorf("start: %w", err)
	}
	fmt.Printf("started measurement %d (modality=%s)\n", lc.MeasurementID(), *modality)

	simulateIntake(pipeline, *accelHz, *duration)

	stopMs := time.Now().UnixMilli()
	if err := lc.Stop(stopMs); err != nil {
		cancelFlusher()
		<-flusherDone
		return fmt.Errorf("stop: %w", err)
	}

	cancelFlusher()
	<-flusherDone

	fmt.Printf("finished measurement %d\n", lc.MeasurementID())
	return nil
}

// simulateIntake feeds synthetic accelerometer and geolocation samples
// into pipeline for dur, standing in for real OS sensor callbacks.
func simulateIntake(pipeline *capture.Pipeline, accelHz int, dur time.Duration) {
	interval := time.Second / time.Duration(accelHz)
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.Now().Add(dur)
	lat, lon := 51.5007, -0.1246

	for now := range ticker.C {
		if now.After(deadline) {
			return
		}
		pipeline.RecordAcceleration(sensorfile.SensorValue{
			TimeMillis: now.UnixMilli(),
			X:          rand.Float64() - 0.5,
			Y:          rand.Float64() - 0.5,
			Z:          9.8 + (rand.Float64()-0.5)*0.2,
		})
		lat += (rand.Float64() - 0.5) * 0.0001
		lon += (rand.Float64() - 0.5) * 0.0001
		pipeline.RecordLocation(capture.RawFix{
			EventTimeMs: now.UnixMilli(),
			Latitude:    lat,
			Longitude:   lon,
			AccuracyM:   5 + rand.Float64()*3,
			SpeedMps:    10 + rand.Float64()*2,
		})
	}
}
