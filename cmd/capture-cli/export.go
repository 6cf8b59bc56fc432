package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/motiontrace/capture-sdk/internal/fsutil"
	"github.com/motiontrace/capture-sdk/internal/measurestore"
	"github.com/motiontrace/capture-sdk/internal/security"
	"github.com/motiontrace/capture-sdk/internal/sensorfile"
	"github.com/motiontrace/capture-sdk/internal/wireformat"
)

func handleExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dbPath := fs.String("db", "capture.db", "Path to the measurement store sqlite file")
	baseDir := fs.String("data-dir", ".", "Directory holding per-measurement sensor files")
	measurementID := fs.Int64("id", 0, "Measurement id to export (required)")
	outPath := fs.String("out", "", "Output file (default: stdout)")
	compress := fs.Bool("compress", true, "Raw-DEFLATE compress the encoded payload")
	fs.Parse(args)

	if *measurementID == 0 {
		return fmt.Errorf("-id is required")
	}
	if *outPath != "" {
		if err := security.ValidateExportPath(*outPath); err != nil {
			return fmt.Errorf("-out: %w", err)
		}
	}

	store, err := measurestore.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	m, err := store.Load(*measurementID)
	if err != nil {
		return fmt.Errorf("load measurement %d: %w", *measurementID, err)
	}

	osfs := fsutil.OSFileSystem{}
	accel := readSensorFileOrEmpty(osfs, sensorfile.Path(*baseDir, m.ID, sensorfile.Acceleration))
	rot := readSensorFileOrEmpty(osfs, sensorfile.Path(*baseDir, m.ID, sensorfile.Rotation))
	dir := readSensorFileOrEmpty(osfs, sensorfile.Path(*baseDir, m.ID, sensorfile.Direction))

	payload := wireformat.FromMeasurement(m, accel, rot, dir)
	encoded, err := wireformat.Encode(payload)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	if *compress {
		encoded, err = wireformat.Compress(encoded)
		if err != nil {
			return fmt.Errorf("compress: %w", err)
		}
	}

	if *outPath == "" {
		_, err = os.Stdout.Write(encoded)
		return err
	}
	return os.WriteFile(*outPath, encoded, 0o644)
}

func readSensorFileOrEmpty(fs fsutil.FileSystem, path string) []byte {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil
	}
	return data
}
