package sensorfile

import (
	"path/filepath"
	"strconv"
)

// FileName returns the fixed on-disk basename spec.md §6 assigns to kind
// within a measurement's directory.
func (k Kind) FileName() string {
	switch k {
	case Acceleration:
		return "accel.cyfa"
	case Rotation:
		return "rot.cyfr"
	case Direction:
		return "dir.cyfd"
	default:
		return "accel.cyfa"
	}
}

// MeasurementDir returns the per-measurement directory under baseDir that
// holds a measurement's three sensor files and no other files.
func MeasurementDir(baseDir string, measurementID int64) string {
	return filepath.Join(baseDir, "measurements", strconv.FormatInt(measurementID, 10))
}

// Path returns the full path to kind's file within a measurement's
// directory.
func Path(baseDir string, measurementID int64, kind Kind) string {
	return filepath.Join(MeasurementDir(baseDir, measurementID), kind.FileName())
}
