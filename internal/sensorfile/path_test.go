package sensorfile

import "testing"

func TestPathLayout(t *testing.T) {
	got := Path("/app-support", 42, Acceleration)
	want := "/app-support/measurements/42/accel.cyfa"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestFileNamePerKind(t *testing.T) {
	cases := map[Kind]string{
		Acceleration: "accel.cyfa",
		Rotation:     "rot.cyfr",
		Direction:    "dir.cyfd",
	}
	for kind, want := range cases {
		if got := kind.FileName(); got != want {
			t.Errorf("kind %d: expected %q, got %q", kind, want, got)
		}
	}
}
