package main

import (
	"flag"
	"fmt"

	"github.com/motiontrace/capture-sdk/internal/measurestore"
)

func handleList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dbPath := fs.String("db", "capture.db", "Path to the measurement store sqlite file")
	pendingOnly := fs.Bool("pending", false, "Only list measurements awaiting upload")
	fs.Parse(args)

	store, err := measurestore.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	var measurements []measurestore.Measurement
	if *pendingOnly {
		measurements, err = store.LoadSynchronizable()
	} else {
		measurements, err = store.LoadAll()
	}
	if err != nil {
		return fmt.Errorf("load measurements: %w", err)
	}

	if len(measurements) == 0 {
		fmt.Println("no measurements found")
		return nil
	}

	fmt.Printf("%-10s %-14s %-12s %-12s %-8s\n", "ID", "START_MS", "SYNCABLE", "SYNCED", "TRACKS")
	for _, m := range measurements {
		fmt.Printf("%-10d %-14d %-12t %-12t %-8d\n", m.ID, m.StartTimeMs, m.Synchronizable, m.Synchronized, len(m.Tracks))
	}
	return nil
}
