// Package captureconfig holds the SDK's host-supplied configuration:
// sample rate, flush cadence, collector endpoint and the geolocation fix
// filter thresholds. Config.Normalize mirrors the teacher's
// PortOptions.Normalize: apply defaults to unset fields, then validate
// ranges.
package captureconfig

import (
	"fmt"
	"time"

	"github.com/motiontrace/capture-sdk/internal/capture"
)

// Config carries the options recognised by the SDK (spec.md §6).
type Config struct {
	AccelerometerHz        int     `json:"accelerometer_hz"`
	FlushIntervalMillis    int64   `json:"flush_interval_millis"`
	CollectorBaseURL       string  `json:"collector_base_url"`
	SyncOnCellular         bool    `json:"sync_on_cellular"`
	LocationAccuracyMetres float64 `json:"location_accuracy_metres"`
	LocationMaxLagSeconds  int64   `json:"location_max_lag_seconds"`
}

// Default returns a Config with every field set to its spec.md default.
func Default() Config {
	return Config{
		AccelerometerHz:        100,
		FlushIntervalMillis:    1000,
		SyncOnCellular:         false,
		LocationAccuracyMetres: 20,
		LocationMaxLagSeconds:  10,
	}
}

// Normalize validates c and applies defaults for any zero-valued field,
// returning the normalized copy. CollectorBaseURL is left as given: it has
// no default and is only required once the host attempts an upload.
func (c Config) Normalize() (Config, error) {
	opts := c

	if opts.AccelerometerHz == 0 {
		opts.AccelerometerHz = 100
	}
	if opts.AccelerometerHz < 1 || opts.AccelerometerHz > 200 {
		return opts, fmt.Errorf("captureconfig: accelerometerHz %d out of range [1, 200]", opts.AccelerometerHz)
	}

	if opts.FlushIntervalMillis == 0 {
		opts.FlushIntervalMillis = 1000
	}
	if opts.FlushIntervalMillis < 0 {
		return opts, fmt.Errorf("captureconfig: flushIntervalMillis %d must be non-negative", opts.FlushIntervalMillis)
	}

	if opts.LocationAccuracyMetres == 0 {
		opts.LocationAccuracyMetres = 20
	}
	if opts.LocationAccuracyMetres < 0 {
		return opts, fmt.Errorf("captureconfig: locationAccuracyMetres %v must be non-negative", opts.LocationAccuracyMetres)
	}

	if opts.LocationMaxLagSeconds == 0 {
		opts.LocationMaxLagSeconds = 10
	}
	if opts.LocationMaxLagSeconds < 0 {
		return opts, fmt.Errorf("captureconfig: locationMaxLagSeconds %d must be non-negative", opts.LocationMaxLagSeconds)
	}

	return opts, nil
}

// FilterConfig converts the location-quality options into the shape
// capture.Pipeline accepts.
func (c Config) FilterConfig() capture.FilterConfig {
	return capture.FilterConfig{
		AccuracyMetres: c.LocationAccuracyMetres,
		MaxLagMillis:   c.LocationMaxLagSeconds * 1000,
	}
}

// FlushInterval converts FlushIntervalMillis into a time.Duration for
// capture.NewFlusher.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMillis) * time.Millisecond
}
