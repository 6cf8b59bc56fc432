// Package sensorfile implements the per-measurement, per-sensor-kind
// append-only files that back the high-frequency inertial samples of a
// capture (acceleration, rotation, direction). Each file holds a sequence of
// length-delimited "Accelerations" groups — the name is historical, the same
// framing carries all three sensor kinds — each group diff-encoding one
// flushed batch of SensorValue samples.
package sensorfile

import (
	"errors"
	"fmt"
	"io/fs"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/motiontrace/capture-sdk/internal/codec"
	"github.com/motiontrace/capture-sdk/internal/fsutil"
)

// Kind identifies which of the three sensor files a SensorValue belongs to.
type Kind int

const (
	Acceleration Kind = iota
	Rotation
	Direction
)

// Extension returns the fixed on-disk file extension for kind.
func (k Kind) Extension() string {
	switch k {
	case Acceleration:
		return "cyfa"
	case Rotation:
		return "cyfr"
	case Direction:
		return "cyfd"
	default:
		return "cyfa"
	}
}

// SensorValue is a single 3-axis inertial sample.
type SensorValue struct {
	TimeMillis int64
	X, Y, Z    float64
}

// Field numbers within one Accelerations group.
const (
	fieldTimestamp protowire.Number = 1
	fieldX         protowire.Number = 2
	fieldY         protowire.Number = 3
	fieldZ         protowire.Number = 4
)

// axisScale scales sensor axis values (metres/s^2 or rad/s, depending on
// kind) into millimetre-equivalent fixed-point integers, per the wire
// contract in §4.1.
const axisScale = 1000.0

// ErrEmptyBatch is returned by Append when batch has no samples.
var ErrEmptyBatch = errors.New("sensorfile: empty batch")

// File is a handle to one per-measurement sensor-kind file.
type File struct {
	fs   fsutil.FileSystem
	path string
}

// Open returns a File handle for path using fs. It does not touch the
// filesystem; files are created lazily on the first Append.
func Open(fs fsutil.FileSystem, path string) *File {
	return &File{fs: fs, path: path}
}

// Append encodes batch as one new inner Accelerations group via the C1
// differential codec and appends the resulting bytes to the file, opening it
// in append mode (creating it if necessary).
func (f *File) Append(batch []SensorValue) error {
	if len(batch) == 0 {
		return ErrEmptyBatch
	}

	group, err := encodeGroup(batch)
	if err != nil {
		return fmt.Errorf("sensorfile: encode group: %w", err)
	}

	w, err := f.fs.OpenAppend(f.path)
	if err != nil {
		return fmt.Errorf("sensorfile: open %s: %w", f.path, err)
	}
	defer w.Close()

	if _, err := w.Write(group); err != nil {
		return fmt.Errorf("sensorfile: write %s: %w", f.path, err)
	}
	return nil
}

// Read iterates all inner groups in the file and returns the concatenated,
// decoded SensorValue sequence. A partially-written trailing group (the
// crash-recovery case) is silently discarded; earlier whole groups remain
// valid.
func (f *File) Read() ([]SensorValue, error) {
	raw, err := f.fs.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("sensorfile: read %s: %w", f.path, err)
	}

	var out []SensorValue
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 || typ != protowire.BytesType {
			break // truncated or corrupt trailing group; discard
		}
		_ = num
		body, bn := protowire.ConsumeBytes(raw[n:])
		if bn < 0 {
			break // partially-appended group from a crash; discard
		}
		values, err := decodeGroup(body)
		if err != nil {
			break
		}
		out = append(out, values...)
		raw = raw[n+bn:]
	}
	return out, nil
}

// Delete removes the file, if present. Directory cleanup (removing the
// per-measurement folder once all three sensor files are gone) is the
// caller's responsibility, since that decision needs visibility across all
// three sibling files rather than just this one.
func (f *File) Delete() error {
	if !f.fs.Exists(f.path) {
		return nil
	}
	if err := f.fs.Remove(f.path); err != nil {
		return fmt.Errorf("sensorfile: delete %s: %w", f.path, err)
	}
	return nil
}

func encodeGroup(batch []SensorValue) ([]byte, error) {
	var tsBuf, xBuf, yBuf, zBuf []byte

	var tsDiff codec.DiffValue[int64]
	var xDiff, yDiff, zDiff codec.DiffValue[int32]

	for _, v := range batch {
		dt, err := tsDiff.Diff(v.TimeMillis)
		if err != nil {
			return nil, err
		}
		tsBuf = protowire.AppendVarint(tsBuf, protowire.EncodeZigZag(dt))

		dx, err := xDiff.Diff(int32(v.X * axisScale))
		if err != nil {
			return nil, err
		}
		xBuf = protowire.AppendVarint(xBuf, protowire.EncodeZigZag(int64(dx)))

		dy, err := yDiff.Diff(int32(v.Y * axisScale))
		if err != nil {
			return nil, err
		}
		yBuf = protowire.AppendVarint(yBuf, protowire.EncodeZigZag(int64(dy)))

		dz, err := zDiff.Diff(int32(v.Z * axisScale))
		if err != nil {
			return nil, err
		}
		zBuf = protowire.AppendVarint(zBuf, protowire.EncodeZigZag(int64(dz)))
	}

	var body []byte
	body = protowire.AppendTag(body, fieldTimestamp, protowire.BytesType)
	body = protowire.AppendBytes(body, tsBuf)
	body = protowire.AppendTag(body, fieldX, protowire.BytesType)
	body = protowire.AppendBytes(body, xBuf)
	body = protowire.AppendTag(body, fieldY, protowire.BytesType)
	body = protowire.AppendBytes(body, yBuf)
	body = protowire.AppendTag(body, fieldZ, protowire.BytesType)
	body = protowire.AppendBytes(body, zBuf)

	var group []byte
	group = protowire.AppendTag(group, 1, protowire.BytesType)
	group = protowire.AppendBytes(group, body)
	return group, nil
}

func decodeGroup(body []byte) ([]SensorValue, error) {
	var tsDeltas, xDeltas, yDeltas, zDeltas []int64

	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 || typ != protowire.BytesType {
			return nil, fmt.Errorf("sensorfile: malformed group field")
		}
		packed, bn := protowire.ConsumeBytes(body[n:])
		if bn < 0 {
			return nil, fmt.Errorf("sensorfile: malformed group field %d", num)
		}
		deltas, err := consumePackedZigZag(packed)
		if err != nil {
			return nil, err
		}
		switch num {
		case fieldTimestamp:
			tsDeltas = deltas
		case fieldX:
			xDeltas = deltas
		case fieldY:
			yDeltas = deltas
		case fieldZ:
			zDeltas = deltas
		}
		body = body[n+bn:]
	}

	n := len(tsDeltas)
	out := make([]SensorValue, 0, n)
	var tsDiff codec.DiffValue[int64]
	var xDiff, yDiff, zDiff codec.DiffValue[int32]
	for i := 0; i < n; i++ {
		ts, err := tsDiff.Undiff(tsDeltas[i])
		if err != nil {
			return nil, err
		}
		x, err := xDiff.Undiff(int32(xDeltas[i]))
		if err != nil {
			return nil, err
		}
		y, err := yDiff.Undiff(int32(yDeltas[i]))
		if err != nil {
			return nil, err
		}
		z, err := zDiff.Undiff(int32(zDeltas[i]))
		if err != nil {
			return nil, err
		}
		out = append(out, SensorValue{
			TimeMillis: ts,
			X:          float64(x) / axisScale,
			Y:          float64(y) / axisScale,
			Z:          float64(z) / axisScale,
		})
	}
	return out, nil
}

func consumePackedZigZag(packed []byte) ([]int64, error) {
	var out []int64
	for len(packed) > 0 {
		zz, n := protowire.ConsumeVarint(packed)
		if n < 0 {
			return nil, fmt.Errorf("sensorfile: malformed packed varint")
		}
		out = append(out, protowire.DecodeZigZag(zz))
		packed = packed[n:]
	}
	return out, nil
}
