// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/motiontrace/capture-sdk/internal/sensorfile"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// AssertSensorValuesApprox compares two SensorValue sequences within a
// fixed epsilon on each axis, tolerating the lossy int32 fixed-point
// scale/unscale sensorfile applies around codec.DiffValue when it encodes
// and decodes a batch.
func AssertSensorValuesApprox(t *testing.T, got, want []sensorfile.SensorValue, epsilon float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("sensor value count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].TimeMillis != want[i].TimeMillis {
			t.Errorf("[%d].TimeMillis = %d, want %d", i, got[i].TimeMillis, want[i].TimeMillis)
		}
		dx, dy, dz := math.Abs(got[i].X-want[i].X), math.Abs(got[i].Y-want[i].Y), math.Abs(got[i].Z-want[i].Z)
		if dx > epsilon || dy > epsilon || dz > epsilon {
			t.Errorf("[%d] = %+v, want %+v (epsilon %v)", i, got[i], want[i], epsilon)
		}
	}
}
