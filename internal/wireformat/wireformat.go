// Package wireformat implements the binary serialiser (spec component
// C6): a single byte blob per finished Measurement, framed as a big-endian
// format-version prefix followed by a hand-encoded protobuf message built
// from protowire primitives, the same approach internal/sensorfile uses
// for its on-disk groups.
package wireformat

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/motiontrace/capture-sdk/internal/codec"
	"github.com/motiontrace/capture-sdk/internal/measurestore"
)

// CurrentFormatVersion is the only version this package ever produces.
const CurrentFormatVersion = 3

// Scaling factors, part of the wire contract (spec.md §4.1): coordinates
// in micro-degrees, accuracy and speed in centimetres/centimetres-per-second.
const (
	coordinateScale = 1_000_000.0
	centimetreScale = 100.0
)

// Field numbers within the top-level MeasurementBytes message.
const (
	fieldFormatVersion protowire.Number = 1
	fieldEvent         protowire.Number = 2
	fieldLocations     protowire.Number = 3
	fieldAccelBinary   protowire.Number = 4
	fieldRotBinary     protowire.Number = 5
	fieldDirBinary     protowire.Number = 6
)

// Field numbers within the nested Event message.
const (
	eventFieldType   protowire.Number = 1
	eventFieldTimeMs protowire.Number = 2
	eventFieldValue  protowire.Number = 3
)

// Field numbers within the nested LocationRecords message.
const (
	locFieldTimestamp protowire.Number = 1
	locFieldLatitude  protowire.Number = 2
	locFieldLongitude protowire.Number = 3
	locFieldAccuracy  protowire.Number = 4
	locFieldSpeed     protowire.Number = 5
)

// Payload is the in-memory form of one finished Measurement ready to be
// serialised. Locations must already be ordered by timestamp (the order C3
// returns them in); Events must already be ordered by time with ties broken
// by insertion order, per spec.md §4.6.
type Payload struct {
	Events              []measurestore.Event
	Locations           []measurestore.Location
	AccelerationsBinary []byte
	RotationsBinary     []byte
	DirectionsBinary    []byte
}

// FromMeasurement flattens a fully loaded Measurement's tracks into the
// single ordered Location sequence the wire format requires.
func FromMeasurement(m *measurestore.Measurement, accel, rot, dir []byte) Payload {
	var locations []measurestore.Location
	for _, track := range m.Tracks {
		locations = append(locations, track.Locations...)
	}
	return Payload{
		Events:              m.Events,
		Locations:           locations,
		AccelerationsBinary: accel,
		RotationsBinary:     rot,
		DirectionsBinary:    dir,
	}
}

// Encode produces the `[u16 format_version][MeasurementBytes]` blob for p.
// Compression (raw DEFLATE, per spec.md §6) is the caller's responsibility
// — see Compress.
func Encode(p Payload) ([]byte, error) {
	msg, err := encodeMeasurementBytes(p)
	if err != nil {
		return nil, fmt.Errorf("wireformat: encode: %w", err)
	}

	out := make([]byte, 2, 2+len(msg))
	out[0] = byte(CurrentFormatVersion >> 8)
	out[1] = byte(CurrentFormatVersion)
	out = append(out, msg...)
	return out, nil
}

func encodeMeasurementBytes(p Payload) ([]byte, error) {
	var out []byte

	out = protowire.AppendTag(out, fieldFormatVersion, protowire.VarintType)
	out = protowire.AppendVarint(out, CurrentFormatVersion)

	for _, evt := range p.Events {
		eventBytes := encodeEvent(evt)
		out = protowire.AppendTag(out, fieldEvent, protowire.BytesType)
		out = protowire.AppendBytes(out, eventBytes)
	}

	locBytes, err := encodeLocationRecords(p.Locations)
	if err != nil {
		return nil, err
	}
	out = protowire.AppendTag(out, fieldLocations, protowire.BytesType)
	out = protowire.AppendBytes(out, locBytes)

	out = protowire.AppendTag(out, fieldAccelBinary, protowire.BytesType)
	out = protowire.AppendBytes(out, p.AccelerationsBinary)
	out = protowire.AppendTag(out, fieldRotBinary, protowire.BytesType)
	out = protowire.AppendBytes(out, p.RotationsBinary)
	out = protowire.AppendTag(out, fieldDirBinary, protowire.BytesType)
	out = protowire.AppendBytes(out, p.DirectionsBinary)

	return out, nil
}

func encodeEvent(evt measurestore.Event) []byte {
	var out []byte
	out = protowire.AppendTag(out, eventFieldType, protowire.BytesType)
	out = protowire.AppendString(out, string(evt.Type))
	out = protowire.AppendTag(out, eventFieldTimeMs, protowire.VarintType)
	out = protowire.AppendVarint(out, protowire.EncodeZigZag(evt.TimeMs))
	if evt.Value != nil {
		out = protowire.AppendTag(out, eventFieldValue, protowire.BytesType)
		out = protowire.AppendString(out, *evt.Value)
	}
	return out
}

func encodeLocationRecords(locations []measurestore.Location) ([]byte, error) {
	var tsBuf, latBuf, lonBuf, accBuf, speedBuf []byte

	var tsDiff codec.DiffValue[int64]
	var latDiff, lonDiff, accDiff, speedDiff codec.DiffValue[int32]

	for _, loc := range locations {
		dt, err := tsDiff.Diff(loc.TimeMs)
		if err != nil {
			return nil, err
		}
		tsBuf = protowire.AppendVarint(tsBuf, protowire.EncodeZigZag(dt))

		dLat, err := latDiff.Diff(int32(loc.Latitude * coordinateScale))
		if err != nil {
			return nil, err
		}
		latBuf = protowire.AppendVarint(latBuf, protowire.EncodeZigZag(int64(dLat)))

		dLon, err := lonDiff.Diff(int32(loc.Longitude * coordinateScale))
		if err != nil {
			return nil, err
		}
		lonBuf = protowire.AppendVarint(lonBuf, protowire.EncodeZigZag(int64(dLon)))

		dAcc, err := accDiff.Diff(int32(loc.AccuracyM * centimetreScale))
		if err != nil {
			return nil, err
		}
		accBuf = protowire.AppendVarint(accBuf, protowire.EncodeZigZag(int64(dAcc)))

		dSpeed, err := speedDiff.Diff(int32(loc.SpeedMps * centimetreScale))
		if err != nil {
			return nil, err
		}
		speedBuf = protowire.AppendVarint(speedBuf, protowire.EncodeZigZag(int64(dSpeed)))
	}

	var out []byte
	out = protowire.AppendTag(out, locFieldTimestamp, protowire.BytesType)
	out = protowire.AppendBytes(out, tsBuf)
	out = protowire.AppendTag(out, locFieldLatitude, protowire.BytesType)
	out = protowire.AppendBytes(out, latBuf)
	out = protowire.AppendTag(out, locFieldLongitude, protowire.BytesType)
	out = protowire.AppendBytes(out, lonBuf)
	out = protowire.AppendTag(out, locFieldAccuracy, protowire.BytesType)
	out = protowire.AppendBytes(out, accBuf)
	out = protowire.AppendTag(out, locFieldSpeed, protowire.BytesType)
	out = protowire.AppendBytes(out, speedBuf)
	return out, nil
}

// Decode parses a wire blob produced by Encode, or by the legacy v1/v2
// encoders (decode-only; see legacy.go). data must already be decompressed.
func Decode(data []byte) (Payload, error) {
	if len(data) < 2 {
		return Payload{}, fmt.Errorf("wireformat: decode: blob too short")
	}
	version := uint16(data[0])<<8 | uint16(data[1])
	body := data[2:]

	switch version {
	case CurrentFormatVersion:
		return decodeMeasurementBytes(body)
	case 1, 2:
		return decodeLegacy(version, body)
	default:
		return Payload{}, fmt.Errorf("wireformat: decode: unsupported format version %d", version)
	}
}

func decodeMeasurementBytes(body []byte) (Payload, error) {
	var p Payload
	var locBytes []byte

	for len(body) > 0 {
		num, _, n := protowire.ConsumeTag(body)
		if n < 0 {
			return Payload{}, fmt.Errorf("wireformat: decode: malformed tag")
		}
		body = body[n:]

		switch num {
		case fieldFormatVersion:
			_, vn := protowire.ConsumeVarint(body)
			if vn < 0 {
				return Payload{}, fmt.Errorf("wireformat: decode: malformed formatVersion")
			}
			body = body[vn:]
		case fieldEvent:
			raw, bn := protowire.ConsumeBytes(body)
			if bn < 0 {
				return Payload{}, fmt.Errorf("wireformat: decode: malformed event")
			}
			evt, err := decodeEvent(raw)
			if err != nil {
				return Payload{}, err
			}
			p.Events = append(p.Events, evt)
			body = body[bn:]
		case fieldLocations:
			raw, bn := protowire.ConsumeBytes(body)
			if bn < 0 {
				return Payload{}, fmt.Errorf("wireformat: decode: malformed locationRecords")
			}
			locBytes = raw
			body = body[bn:]
		case fieldAccelBinary:
			raw, bn := protowire.ConsumeBytes(body)
			if bn < 0 {
				return Payload{}, fmt.Errorf("wireformat: decode: malformed accelerationsBinary")
			}
			p.AccelerationsBinary = raw
			body = body[bn:]
		case fieldRotBinary:
			raw, bn := protowire.ConsumeBytes(body)
			if bn < 0 {
				return Payload{}, fmt.Errorf("wireformat: decode: malformed rotationsBinary")
			}
			p.RotationsBinary = raw
			body = body[bn:]
		case fieldDirBinary:
			raw, bn := protowire.ConsumeBytes(body)
			if bn < 0 {
				return Payload{}, fmt.Errorf("wireformat: decode: malformed directionsBinary")
			}
			p.DirectionsBinary = raw
			body = body[bn:]
		default:
			return Payload{}, fmt.Errorf("wireformat: decode: unknown field %d", num)
		}
	}

	locations, err := decodeLocationRecords(locBytes)
	if err != nil {
		return Payload{}, err
	}
	p.Locations = locations
	return p, nil
}

func decodeEvent(body []byte) (measurestore.Event, error) {
	var evt measurestore.Event
	for len(body) > 0 {
		num, _, n := protowire.ConsumeTag(body)
		if n < 0 {
			return evt, fmt.Errorf("wireformat: decode: malformed event tag")
		}
		body = body[n:]
		switch num {
		case eventFieldType:
			s, sn := protowire.ConsumeString(body)
			if sn < 0 {
				return evt, fmt.Errorf("wireformat: decode: malformed event type")
			}
			evt.Type = measurestore.EventType(s)
			body = body[sn:]
		case eventFieldTimeMs:
			zz, vn := protowire.ConsumeVarint(body)
			if vn < 0 {
				return evt, fmt.Errorf("wireformat: decode: malformed event timeMs")
			}
			evt.TimeMs = protowire.DecodeZigZag(zz)
			body = body[vn:]
		case eventFieldValue:
			s, sn := protowire.ConsumeString(body)
			if sn < 0 {
				return evt, fmt.Errorf("wireformat: decode: malformed event value")
			}
			value := s
			evt.Value = &value
			body = body[sn:]
		default:
			return evt, fmt.Errorf("wireformat: decode: unknown event field %d", num)
		}
	}
	return evt, nil
}

func decodeLocationRecords(body []byte) ([]measurestore.Location, error) {
	var tsDeltas, latDeltas, lonDeltas, accDeltas, speedDeltas []int64

	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 || typ != protowire.BytesType {
			return nil, fmt.Errorf("wireformat: decode: malformed locationRecords field")
		}
		packed, bn := protowire.ConsumeBytes(body[n:])
		if bn < 0 {
			return nil, fmt.Errorf("wireformat: decode: malformed locationRecords field %d", num)
		}
		deltas, err := consumePackedZigZag(packed)
		if err != nil {
			return nil, err
		}
		switch num {
		case locFieldTimestamp:
			tsDeltas = deltas
		case locFieldLatitude:
			latDeltas = deltas
		case locFieldLongitude:
			lonDeltas = deltas
		case locFieldAccuracy:
			accDeltas = deltas
		case locFieldSpeed:
			speedDeltas = deltas
		}
		body = body[n+bn:]
	}

	n := len(tsDeltas)
	out := make([]measurestore.Location, 0, n)
	var tsDiff codec.DiffValue[int64]
	var latDiff, lonDiff, accDiff, speedDiff codec.DiffValue[int32]
	for i := 0; i < n; i++ {
		ts, err := tsDiff.Undiff(tsDeltas[i])
		if err != nil {
			return nil, err
		}
		lat, err := latDiff.Undiff(int32(latDeltas[i]))
		if err != nil {
			return nil, err
		}
		lon, err := lonDiff.Undiff(int32(lonDeltas[i]))
		if err != nil {
			return nil, err
		}
		acc, err := accDiff.Undiff(int32(accDeltas[i]))
		if err != nil {
			return nil, err
		}
		speed, err := speedDiff.Undiff(int32(speedDeltas[i]))
		if err != nil {
			return nil, err
		}
		out = append(out, measurestore.Location{
			TimeMs:    ts,
			Latitude:  float64(lat) / coordinateScale,
			Longitude: float64(lon) / coordinateScale,
			AccuracyM: float64(acc) / centimetreScale,
			SpeedMps:  float64(speed) / centimetreScale,
		})
	}
	return out, nil
}

func consumePackedZigZag(packed []byte) ([]int64, error) {
	var out []int64
	for len(packed) > 0 {
		zz, n := protowire.ConsumeVarint(packed)
		if n < 0 {
			return nil, fmt.Errorf("wireformat: decode: malformed packed varint")
		}
		out = append(out, protowire.DecodeZigZag(zz))
		packed = packed[n:]
	}
	return out, nil
}
