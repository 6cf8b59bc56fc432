package sensorfile_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/motiontrace/capture-sdk/internal/fsutil"
	"github.com/motiontrace/capture-sdk/internal/sensorfile"
	"github.com/motiontrace/capture-sdk/internal/testutil"
)

// TestAppendReadRoundTripApprox exercises the public Open/Append/Read API
// with fractional axis values that exercise the fixed-point scale/unscale
// sensorfile applies around codec.DiffValue, tolerating its lossy rounding via
// testutil.AssertSensorValuesApprox rather than requiring bit-for-bit
// equality.
func TestAppendReadRoundTripApprox(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	f := sensorfile.Open(mfs, "/measurements/7/accel.cyfa")

	batch := []sensorfile.SensorValue{
		{TimeMillis: 1_000, X: 0.1234, Y: -0.5678, Z: 9.8012},
		{TimeMillis: 1_050, X: 0.1235, Y: -0.5681, Z: 9.8010},
		{TimeMillis: 1_100, X: 0.1111, Y: -0.5555, Z: 9.8123},
	}
	require.NoError(t, f.Append(batch))

	got, err := f.Read()
	require.NoError(t, err)
	testutil.AssertSensorValuesApprox(t, got, batch, 1e-3)
}
