package debugconsole

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/motiontrace/capture-sdk/internal/capture"
	"github.com/motiontrace/capture-sdk/internal/capture/sensorserial"
	"github.com/motiontrace/capture-sdk/internal/measurestore"
	"github.com/motiontrace/capture-sdk/internal/sensorfile"
	"github.com/motiontrace/capture-sdk/internal/testutil"
	"github.com/motiontrace/capture-sdk/internal/timeutil"
)

func newTestStore(t *testing.T) *measurestore.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.db")
	db, err := measurestore.NewDB(path)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestPipeline() *capture.Pipeline {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	p := capture.New(clock, capture.DefaultFilterConfig())
	p.SetIntake(true)
	return p
}

func TestHandleBufferChartRendersHTML(t *testing.T) {
	p := newTestPipeline()
	p.RecordAcceleration(sensorfile.SensorValue{TimeMillis: 1, X: 1, Y: 1, Z: 1})

	c := New(p, nil, nil)
	mux := http.NewServeMux()
	c.AttachRoutes(mux)

	rec := testutil.NewTestRecorder()
	req := testutil.NewTestRequest(http.MethodGet, "/debug/pipeline-buffers")
	mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected text/html content type, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "echarts") {
		t.Error("expected rendered body to reference echarts")
	}
}

func TestHandleTrackChartRendersRecordedLocations(t *testing.T) {
	db := newTestStore(t)
	m, err := db.CreateMeasurement(1000, "CAR")
	if err != nil {
		t.Fatalf("CreateMeasurement failed: %v", err)
	}
	track, err := db.AppendTrack(m.ID)
	if err != nil {
		t.Fatalf("AppendTrack failed: %v", err)
	}
	if err := db.AppendLocation(track.ID, measurestore.Location{TimeMs: 1000, Latitude: 51.5, Longitude: -0.1, AccuracyM: 5, SpeedMps: 3}); err != nil {
		t.Fatalf("AppendLocation failed: %v", err)
	}

	c := New(newTestPipeline(), db, sensorserial.NewDisabledSerialMux())
	mux := http.NewServeMux()
	c.AttachRoutes(mux)

	rec := testutil.NewTestRecorder()
	req := testutil.NewTestRequest(http.MethodGet, fmt.Sprintf("/debug/track/?measurement_id=%d", m.ID))
	mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
}

func TestHandleTrackChartMissingMeasurementID(t *testing.T) {
	db := newTestStore(t)
	c := New(newTestPipeline(), db, nil)
	mux := http.NewServeMux()
	c.AttachRoutes(mux)

	rec := testutil.NewTestRecorder()
	req := testutil.NewTestRequest(http.MethodGet, "/debug/track/")
	mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}
