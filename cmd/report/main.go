// Command report renders a single measurement's track and altitude
// samples from a measurement store as static PNG files.
//
// Usage:
//
//	go run ./cmd/report [flags]
//
// Flags:
//
//	-db   Path to the measurement store sqlite file (required)
//	-id   Measurement id to render (required)
//	-out  Output path base; writes <out>-track.png and
//	      <out>-altitude.png (default: ./report)
package main

import (
	"flag"
	"log"

	"github.com/motiontrace/capture-sdk/internal/measurestore"
	"github.com/motiontrace/capture-sdk/internal/report"
	"github.com/motiontrace/capture-sdk/internal/security"
)

func main() {
	dbPath := flag.String("db", "", "Path to the measurement store sqlite file (required)")
	measurementID := flag.Int64("id", 0, "Measurement id to render (required)")
	outBase := flag.String("out", "./report", "Output path base")
	flag.Parse()

	if *dbPath == "" || *measurementID == 0 {
		log.Fatal("Error: -db and -id flags are required")
	}

	if err := security.ValidateExportPath(*outBase); err != nil {
		log.Fatalf("Rejected output path: %v", err)
	}

	store, err := measurestore.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open measurement store: %v", err)
	}
	defer store.Close()

	m, err := store.Load(*measurementID)
	if err != nil {
		log.Fatalf("Failed to load measurement %d: %v", *measurementID, err)
	}

	if err := report.Generate(m, *outBase); err != nil {
		log.Fatalf("Failed to generate report: %v", err)
	}

	log.Printf("Wrote %s-track.png and %s-altitude.png", *outBase, *outBase)
}
