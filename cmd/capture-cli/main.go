// Command capture-cli is a reference driver for the capture SDK: it
// wires captureconfig, the capture pipeline/flusher, the lifecycle
// state machine, wireformat encoding, upload and auth together into a
// runnable demonstration, in place of a real mobile host application.
//
// Usage:
//
//	capture-cli <command> [options]
//
// Commands:
//
//	run      Simulate one measurement: start, feed synthetic samples
//	         for a duration, stop.
//	list     List measurements in the store.
//	export   Encode a measurement to the wire format and write it to a
//	         file (or stdout).
//	upload   Upload a measurement to a collector.
//	version  Print version information and exit.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/motiontrace/capture-sdk/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "run":
		err = handleRun(context.Background(), args)
	case "list":
		err = handleList(args)
	case "export":
		err = handleExport(args)
	case "upload":
		err = handleUpload(context.Background(), args)
	case "version":
		fmt.Printf("capture-cli version %s (commit %s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "capture-cli: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`capture-cli - reference driver for the capture SDK

Usage: capture-cli <command> [options]

Commands:
  run      Simulate one measurement against a store
  list     List measurements in the store
  export   Encode a measurement to the wire format
  upload   Upload a measurement to a collector
  version  Show capture-cli version
  help     Show this help message`)
}
