package wireformat

import (
	"encoding/binary"
	"fmt"

	"github.com/motiontrace/capture-sdk/internal/measurestore"
)

// legacyLocationRecordSize is the fixed width, in bytes, of one location
// record in the v1/v2 framing: int64 timestamp, int32 latitude (micro-
// degrees), int32 longitude (micro-degrees), uint32 accuracy (centimetres,
// not diff-encoded — see DESIGN.md), int32 speed (cm/s).
const legacyLocationRecordSize = 8 + 4 + 4 + 4 + 4

// legacySensorRecordSize is the fixed width, in bytes, of one sensor-value
// record in the v1/v2 framing: int64 timestamp, int32 x, y, z
// (millimetre-equivalent fixed point, matching sensorfile's axis scale).
const legacySensorRecordSize = 8 + 4 + 4 + 4

// decodeLegacy parses the pre-v3 in-place migration framing:
// u32 locCount; u32 accelCount; u32 rotCount; u32 dirCount; <raw records>...
// This format is never produced by Encode — only decoded, for migrating
// stores that predate the differential wire format (spec.md §4.6).
func decodeLegacy(version uint16, body []byte) (Payload, error) {
	if len(body) < 16 {
		return Payload{}, fmt.Errorf("wireformat: decode legacy v%d: header too short", version)
	}
	locCount := binary.BigEndian.Uint32(body[0:4])
	accelCount := binary.BigEndian.Uint32(body[4:8])
	rotCount := binary.BigEndian.Uint32(body[8:12])
	dirCount := binary.BigEndian.Uint32(body[12:16])
	body = body[16:]

	locations, body, err := decodeLegacyLocations(body, locCount)
	if err != nil {
		return Payload{}, fmt.Errorf("wireformat: decode legacy v%d: %w", version, err)
	}

	accel, body, err := decodeLegacySensorBinary(body, accelCount)
	if err != nil {
		return Payload{}, fmt.Errorf("wireformat: decode legacy v%d accelerations: %w", version, err)
	}
	rot, body, err := decodeLegacySensorBinary(body, rotCount)
	if err != nil {
		return Payload{}, fmt.Errorf("wireformat: decode legacy v%d rotations: %w", version, err)
	}
	dir, _, err := decodeLegacySensorBinary(body, dirCount)
	if err != nil {
		return Payload{}, fmt.Errorf("wireformat: decode legacy v%d directions: %w", version, err)
	}

	return Payload{
		Locations:           locations,
		AccelerationsBinary: accel,
		RotationsBinary:     rot,
		DirectionsBinary:    dir,
	}, nil
}

func decodeLegacyLocations(body []byte, count uint32) ([]measurestore.Location, []byte, error) {
	need := int(count) * legacyLocationRecordSize
	if len(body) < need {
		return nil, nil, fmt.Errorf("location records truncated: need %d bytes, have %d", need, len(body))
	}
	out := make([]measurestore.Location, 0, count)
	for i := uint32(0); i < count; i++ {
		rec := body[i*legacyLocationRecordSize:]
		ts := int64(binary.BigEndian.Uint64(rec[0:8]))
		lat := int32(binary.BigEndian.Uint32(rec[8:12]))
		lon := int32(binary.BigEndian.Uint32(rec[12:16]))
		acc := binary.BigEndian.Uint32(rec[16:20])
		speed := int32(binary.BigEndian.Uint32(rec[20:24]))
		out = append(out, measurestore.Location{
			TimeMs:    ts,
			Latitude:  float64(lat) / coordinateScale,
			Longitude: float64(lon) / coordinateScale,
			AccuracyM: float64(acc) / centimetreScale,
			SpeedMps:  float64(speed) / centimetreScale,
		})
	}
	return out, body[need:], nil
}

// decodeLegacySensorBinary passes the raw fixed-width sensor records
// through unchanged; sensorfile's own decoder is not reused here because
// the legacy framing has no inner length-delimited groups to parse — the
// caller is responsible for reinterpreting these bytes via the legacy
// record layout if it needs individual samples rather than raw bytes.
func decodeLegacySensorBinary(body []byte, count uint32) ([]byte, []byte, error) {
	need := int(count) * legacySensorRecordSize
	if len(body) < need {
		return nil, nil, fmt.Errorf("sensor records truncated: need %d bytes, have %d", need, len(body))
	}
	return body[:need], body[need:], nil
}
