package sensorfile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/motiontrace/capture-sdk/internal/fsutil"
)

func TestAppendReadRoundTrip(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	f := Open(mfs, "/measurements/1/accel.cyfa")

	batch := []SensorValue{
		{TimeMillis: 10_000, X: 1.0, Y: 1.0, Z: 1.0},
		{TimeMillis: 10_100, X: 1.0, Y: 1.0, Z: 1.0},
		{TimeMillis: 10_200, X: 1.0, Y: 1.0, Z: 1.0},
	}

	require.NoError(t, f.Append(batch))

	got, err := f.Read()
	require.NoError(t, err)
	require.Equal(t, batch, got)
}

func TestAppendTwoBatches(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	f := Open(mfs, "/measurements/1/rot.cyfr")

	first := []SensorValue{{TimeMillis: 0, X: 0.5, Y: 0.25, Z: -0.5}}
	second := []SensorValue{{TimeMillis: 50, X: 0.75, Y: 0.1, Z: 0}}

	require.NoError(t, f.Append(first))
	require.NoError(t, f.Append(second))

	got, err := f.Read()
	require.NoError(t, err)
	require.Equal(t, append(append([]SensorValue{}, first...), second...), got)
}

func TestAppendEmptyBatchFails(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	f := Open(mfs, "/measurements/1/dir.cyfd")

	err := f.Append(nil)
	require.ErrorIs(t, err, ErrEmptyBatch)
}

func TestReadMissingFileReturnsEmpty(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	f := Open(mfs, "/measurements/1/accel.cyfa")

	got, err := f.Read()
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestReadDiscardsTruncatedTrailingGroup(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	f := Open(mfs, "/measurements/1/accel.cyfa")

	batch := []SensorValue{{TimeMillis: 1, X: 1, Y: 1, Z: 1}}
	require.NoError(t, f.Append(batch))

	raw, err := mfs.ReadFile("/measurements/1/accel.cyfa")
	require.NoError(t, err)
	truncated := append(raw, 0x0A, 0xFF, 0xFF) // a bogus partial tag/length
	require.NoError(t, mfs.WriteFile("/measurements/1/accel.cyfa", truncated, 0644))

	got, err := f.Read()
	require.NoError(t, err)
	require.Equal(t, batch, got)
}

func TestDeleteRemovesFile(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	f := Open(mfs, "/measurements/1/accel.cyfa")

	require.NoError(t, f.Append([]SensorValue{{TimeMillis: 1, X: 1, Y: 1, Z: 1}}))
	require.True(t, mfs.Exists("/measurements/1/accel.cyfa"))

	require.NoError(t, f.Delete())
	require.False(t, mfs.Exists("/measurements/1/accel.cyfa"))
}

func TestDeleteNonExistentIsNoop(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	f := Open(mfs, "/measurements/1/accel.cyfa")
	require.NoError(t, f.Delete())
}

func TestKindExtension(t *testing.T) {
	require.Equal(t, "cyfa", Acceleration.Extension())
	require.Equal(t, "cyfr", Rotation.Extension())
	require.Equal(t, "cyfd", Direction.Extension())
}
