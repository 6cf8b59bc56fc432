package sensorserial

import (
	"encoding/json"
	"fmt"

	"github.com/motiontrace/capture-sdk/internal/capture"
	"github.com/motiontrace/capture-sdk/internal/monitoring"
	"github.com/motiontrace/capture-sdk/internal/sensorfile"
)

type fixFrame struct {
	EventTimeMs       int64    `json:"event_time_ms"`
	Latitude          float64  `json:"lat"`
	Longitude         float64  `json:"lon"`
	AccuracyM         float64  `json:"accuracy_m"`
	SpeedMps          float64  `json:"speed_mps"`
	AltitudeM         *float64 `json:"altitude_m"`
	VerticalAccuracyM *float64 `json:"vertical_accuracy_m"`
}

type vectorFrame struct {
	TimeMillis int64   `json:"time_ms"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
}

type altitudeFrame struct {
	TimeMs int64   `json:"time_ms"`
	ValueM float64 `json:"value_m"`
}

// HandleFix decodes a "fix" frame and records it with the pipeline.
func HandleFix(p *capture.Pipeline, payload string) error {
	var f fixFrame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		return fmt.Errorf("sensorserial: decode fix frame: %w", err)
	}
	p.RecordLocation(capture.RawFix{
		EventTimeMs:       f.EventTimeMs,
		Latitude:          f.Latitude,
		Longitude:         f.Longitude,
		AccuracyM:         f.AccuracyM,
		SpeedMps:          f.SpeedMps,
		AltitudeM:         f.AltitudeM,
		VerticalAccuracyM: f.VerticalAccuracyM,
	})
	return nil
}

// HandleAccel decodes an "accel" frame and records it with the pipeline.
func HandleAccel(p *capture.Pipeline, payload string) error {
	v, err := decodeVector(payload)
	if err != nil {
		return fmt.Errorf("sensorserial: decode accel frame: %w", err)
	}
	p.RecordAcceleration(v)
	return nil
}

// HandleGyro decodes a "gyro" frame and records it as a rotation sample.
func HandleGyro(p *capture.Pipeline, payload string) error {
	v, err := decodeVector(payload)
	if err != nil {
		return fmt.Errorf("sensorserial: decode gyro frame: %w", err)
	}
	p.RecordRotation(v)
	return nil
}

// HandleMagnetic decodes a "mag" frame and records it as a direction sample.
func HandleMagnetic(p *capture.Pipeline, payload string) error {
	v, err := decodeVector(payload)
	if err != nil {
		return fmt.Errorf("sensorserial: decode mag frame: %w", err)
	}
	p.RecordDirection(v)
	return nil
}

// HandleAltitude decodes an "altitude" frame and records it with the
// pipeline.
func HandleAltitude(p *capture.Pipeline, payload string) error {
	var f altitudeFrame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		return fmt.Errorf("sensorserial: decode altitude frame: %w", err)
	}
	p.RecordAltitude(capture.Altitude{TimeMs: f.TimeMs, ValueM: f.ValueM})
	return nil
}

func decodeVector(payload string) (sensorfile.SensorValue, error) {
	var f vectorFrame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		return sensorfile.SensorValue{}, err
	}
	return sensorfile.SensorValue{TimeMillis: f.TimeMillis, X: f.X, Y: f.Y, Z: f.Z}, nil
}

// HandleLine classifies payload and dispatches it to the matching Handle*
// function, feeding the pipeline from a bench sensor rig's JSON-lines
// serial stream.
func HandleLine(p *capture.Pipeline, payload string) error {
	switch ClassifyPayload(payload) {
	case FrameTypeFix:
		return HandleFix(p, payload)
	case FrameTypeAccel:
		return HandleAccel(p, payload)
	case FrameTypeGyro:
		return HandleGyro(p, payload)
	case FrameTypeMagnetic:
		return HandleMagnetic(p, payload)
	case FrameTypeAltitude:
		return HandleAltitude(p, payload)
	default:
		monitoring.Logf("sensorserial: unrecognised frame: %s", payload)
		return nil
	}
}
