package upload

import (
	"fmt"
	"net/http"

	"github.com/motiontrace/capture-sdk/internal/measurestore"
)

// Metadata is the subset of upload headers that comes from the host
// rather than from the measurement's own recorded data.
type Metadata struct {
	DeviceID      string
	FormatVersion int
	OSVersion     string
	AppVersion    string
	Modality      string
}

// initiationHeaders builds the x-cy-* metadata headers sent with the
// Initiation POST (spec.md §4.7 step 1, §6 HTTP collector protocol).
// Coordinates are decimal degrees with up to 6 fractional digits.
func initiationHeaders(measurementID int64, meta Metadata, metrics measurestore.TrackMetrics) http.Header {
	h := make(http.Header)
	h.Set("x-cy-measurement-id", fmt.Sprintf("%d", measurementID))
	h.Set("x-cy-device-id", meta.DeviceID)
	h.Set("x-cy-format-version", fmt.Sprintf("%d", meta.FormatVersion))
	h.Set("x-cy-location-count", fmt.Sprintf("%d", metrics.LocationCount))
	h.Set("x-cy-start-lat", fmt.Sprintf("%.6f", metrics.StartLat))
	h.Set("x-cy-start-lon", fmt.Sprintf("%.6f", metrics.StartLon))
	h.Set("x-cy-start-timestamp", fmt.Sprintf("%d", metrics.StartTimeMs))
	h.Set("x-cy-end-lat", fmt.Sprintf("%.6f", metrics.EndLat))
	h.Set("x-cy-end-lon", fmt.Sprintf("%.6f", metrics.EndLon))
	h.Set("x-cy-end-timestamp", fmt.Sprintf("%d", metrics.EndTimeMs))
	h.Set("x-cy-track-length-metres", fmt.Sprintf("%.2f", metrics.LengthMetres))
	h.Set("x-cy-mean-speed-mps", fmt.Sprintf("%.2f", metrics.MeanSpeedMps))
	h.Set("x-cy-os-version", meta.OSVersion)
	h.Set("x-cy-app-version", meta.AppVersion)
	h.Set("x-cy-modality", meta.Modality)
	return h
}
