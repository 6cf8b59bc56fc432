package captureconfig

import "testing"

func TestNormalizeAppliesDefaults(t *testing.T) {
	got, err := Config{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	want := Default()
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestNormalizeRejectsOutOfRangeAccelerometerHz(t *testing.T) {
	_, err := Config{AccelerometerHz: 500}.Normalize()
	if err == nil {
		t.Fatal("expected error for accelerometerHz 500")
	}
}

func TestNormalizePreservesExplicitValues(t *testing.T) {
	c := Config{
		AccelerometerHz:        50,
		FlushIntervalMillis:    2000,
		CollectorBaseURL:       "https://collector.example.com",
		SyncOnCellular:         true,
		LocationAccuracyMetres: 5,
		LocationMaxLagSeconds:  3,
	}
	got, err := c.Normalize()
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if got != c {
		t.Fatalf("expected explicit values preserved, got %+v", got)
	}
}

func TestFilterConfigConvertsSecondsToMillis(t *testing.T) {
	c, _ := Config{LocationMaxLagSeconds: 10, LocationAccuracyMetres: 20}.Normalize()
	fc := c.FilterConfig()
	if fc.MaxLagMillis != 10_000 || fc.AccuracyMetres != 20 {
		t.Fatalf("unexpected FilterConfig: %+v", fc)
	}
}

func TestFlushIntervalConvertsMillisToDuration(t *testing.T) {
	c, _ := Config{FlushIntervalMillis: 1500}.Normalize()
	if got := c.FlushInterval().Milliseconds(); got != 1500 {
		t.Fatalf("expected 1500ms, got %dms", got)
	}
}
