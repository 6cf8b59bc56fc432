package measurestore

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// earthRadiusM is the mean Earth radius used for the haversine distance
// between consecutive fixes.
const earthRadiusM = 6371000.0

// TrackMetrics summarises a Measurement's locations for the upload
// metadata headers in internal/upload (x-cy-track-length-metres,
// x-cy-mean-speed-mps) — see spec.md §4.7/§6.
type TrackMetrics struct {
	LengthMetres  float64
	MeanSpeedMps  float64
	LocationCount int
	StartLat      float64
	StartLon      float64
	StartTimeMs   int64
	EndLat        float64
	EndLon        float64
	EndTimeMs     int64
}

// Metrics computes TrackMetrics over every Location across all of a
// Measurement's Tracks, in timestamp order. Locations with
// isPartOfCleanedTrack=false still contribute to length/speed, matching
// the "bad-accuracy locations are still persisted" ordering guarantee
// in spec.md §5 — only the upload header computation, not persistence,
// would need to filter them, and C7 does not.
func (m *Measurement) Metrics() TrackMetrics {
	var locs []Location
	for _, t := range m.Tracks {
		locs = append(locs, t.Locations...)
	}
	if len(locs) == 0 {
		return TrackMetrics{}
	}

	speeds := make([]float64, len(locs))
	var length float64
	for i, l := range locs {
		speeds[i] = l.SpeedMps
		if i > 0 {
			length += haversineMetres(locs[i-1].Latitude, locs[i-1].Longitude, l.Latitude, l.Longitude)
		}
	}

	first, last := locs[0], locs[len(locs)-1]
	return TrackMetrics{
		LengthMetres:  length,
		MeanSpeedMps:  stat.Mean(speeds, nil),
		LocationCount: len(locs),
		StartLat:      first.Latitude,
		StartLon:      first.Longitude,
		StartTimeMs:   first.TimeMs,
		EndLat:        last.Latitude,
		EndLon:        last.Longitude,
		EndTimeMs:     last.TimeMs,
	}
}

func haversineMetres(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}
