package wireformat

import (
	"testing"

	"github.com/motiontrace/capture-sdk/internal/measurestore"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	value := "CAR"
	p := Payload{
		Events: []measurestore.Event{
			{Type: measurestore.EventLifecycleStart, TimeMs: 1000},
			{Type: measurestore.EventModalityChange, TimeMs: 1500, Value: &value},
		},
		Locations: []measurestore.Location{
			{TimeMs: 1000, Latitude: 51.5, Longitude: -0.12, AccuracyM: 5, SpeedMps: 1.2},
			{TimeMs: 2000, Latitude: 51.501, Longitude: -0.121, AccuracyM: 4.5, SpeedMps: 1.5},
		},
		AccelerationsBinary: []byte{1, 2, 3},
		RotationsBinary:     []byte{4, 5},
		DirectionsBinary:    []byte{},
	}

	encoded, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if encoded[0] != 0 || encoded[1] != CurrentFormatVersion {
		t.Fatalf("expected format version %d prefix, got %v", CurrentFormatVersion, encoded[:2])
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(decoded.Events) != 2 || decoded.Events[1].Value == nil || *decoded.Events[1].Value != "CAR" {
		t.Fatalf("unexpected events: %+v", decoded.Events)
	}
	if len(decoded.Locations) != 2 {
		t.Fatalf("expected 2 locations, got %d", len(decoded.Locations))
	}
	if diff := decoded.Locations[1].Latitude - 51.501; diff > 1e-5 || diff < -1e-5 {
		t.Errorf("expected latitude ~51.501, got %v", decoded.Locations[1].Latitude)
	}
	if string(decoded.AccelerationsBinary) != "\x01\x02\x03" {
		t.Errorf("expected accelerationsBinary round trip, got %v", decoded.AccelerationsBinary)
	}
}

func TestEncodeEmptyMeasurementYieldsValidPayload(t *testing.T) {
	encoded, err := Encode(Payload{})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded.Locations) != 0 || len(decoded.Events) != 0 {
		t.Fatalf("expected empty payload, got %+v", decoded)
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	p := Payload{Locations: []measurestore.Location{{TimeMs: 1, Latitude: 1, Longitude: 1, AccuracyM: 1, SpeedMps: 1}}}
	encoded, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	compressed, err := Compress(encoded)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	decompressed, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if string(decompressed) != string(encoded) {
		t.Fatal("expected decompressed bytes to match original encoding")
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	_, err := Decode([]byte{0, 9, 1, 2, 3})
	if err == nil {
		t.Fatal("expected error for unsupported format version")
	}
}

func TestDecodeLegacyV1(t *testing.T) {
	// header: 1 location, 0 accel, 0 rot, 0 dir
	body := make([]byte, 16)
	body[3] = 1 // locCount = 1

	// one location record: ts=1000, lat=51_500_000 micro-deg, lon=-120_000, acc=500cm, speed=120cm/s
	rec := make([]byte, legacyLocationRecordSize)
	putBE64(rec[0:8], 1000)
	putBE32(rec[8:12], 51_500_000)
	putBE32(rec[12:16], uint32(int32(-120_000)))
	putBE32(rec[16:20], 500)
	putBE32(rec[20:24], uint32(int32(120)))
	body = append(body, rec...)

	blob := append([]byte{0, 1}, body...)
	decoded, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded.Locations) != 1 {
		t.Fatalf("expected 1 legacy location, got %d", len(decoded.Locations))
	}
	if decoded.Locations[0].TimeMs != 1000 {
		t.Errorf("expected timestamp 1000, got %d", decoded.Locations[0].TimeMs)
	}
}

func putBE64(b []byte, v int64) {
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
}

func putBE32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[3-i] = byte(v >> (8 * i))
	}
}
