// Command devconsole runs the SDK's developer dashboard: live ring
// buffer depth charts, per-measurement track scatter plots and the
// measurement store's admin routes (tailsql, table stats), all served
// over plain HTTP for local inspection against a capture.db produced
// by cmd/capture-cli.
//
// Usage:
//
//	go run ./cmd/devconsole [flags]
//
// Flags:
//
//	-addr         Listen address (default: localhost:8090)
//	-db           Path to the measurement store sqlite file (required)
//	-serial-port  Path to a real bench sensor rig serial device (optional)
//	-baud         Baud rate for -serial-port (default: 19200)
//	-simulate     Feed the pipeline from a simulated bench rig instead of
//	              real hardware, when -serial-port is not given
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/motiontrace/capture-sdk/internal/capture"
	"github.com/motiontrace/capture-sdk/internal/capture/sensorserial"
	"github.com/motiontrace/capture-sdk/internal/debugconsole"
	"github.com/motiontrace/capture-sdk/internal/measurestore"
	"github.com/motiontrace/capture-sdk/internal/timeutil"
)

func main() {
	addr := flag.String("addr", "localhost:8090", "Listen address")
	dbPath := flag.String("db", "", "Path to the measurement store sqlite file (required)")
	serialPort := flag.String("serial-port", "", "Path to a real bench sensor rig serial device")
	baud := flag.Int("baud", 19200, "Baud rate for -serial-port")
	simulate := flag.Bool("simulate", false, "Feed the pipeline from a simulated bench rig")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("Error: -db flag is required")
	}

	store, err := measurestore.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open measurement store: %v", err)
	}
	defer store.Close()

	pipeline := capture.New(timeutil.RealClock{}, capture.DefaultFilterConfig())
	pipeline.SetIntake(true)

	serial, live := openSerialSource(*serialPort, *baud, *simulate)
	if live {
		if err := serial.Initialize(); err != nil {
			log.Fatalf("failed to initialize bench sensor rig: %v", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go runMonitor(ctx, serial, pipeline)
	}

	console := debugconsole.New(pipeline, store, serial)

	mux := http.NewServeMux()
	console.AttachRoutes(mux)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("devconsole listening on %s (db=%s)", *addr, *dbPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe failed: %v", err)
		}
	}()

	waitForShutdown(func() { _ = srv.Close() })
}

func waitForShutdown(cleanup func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down devconsole...")
	cleanup()
}

// openSerialSource picks the bench sensor rig source for this run: a real
// serial device at serialPort, a simulated rig if simulate is set, or
// (the default) a disabled mux that only serves the admin "disabled"
// status route. The second return value reports whether the source
// needs its Monitor loop pumped into the pipeline.
func openSerialSource(serialPort string, baud int, simulate bool) (sensorserial.SerialMuxInterface, bool) {
	switch {
	case serialPort != "":
		mux, err := sensorserial.NewRealSerialMux(serialPort, sensorserial.PortOptions{BaudRate: baud})
		if err != nil {
			log.Fatalf("failed to open bench sensor rig at %s: %v", serialPort, err)
		}
		return mux, true
	case simulate:
		return sensorserial.NewBenchRigSimulator(), true
	default:
		return sensorserial.NewDisabledSerialMux(), false
	}
}

// runMonitor pumps serial's line stream into the capture pipeline until
// ctx is cancelled, logging frames it cannot classify.
func runMonitor(ctx context.Context, serial sensorserial.SerialMuxInterface, pipeline *capture.Pipeline) {
	id, lines := serial.Subscribe()
	defer serial.Unsubscribe(id)

	go func() {
		if err := serial.Monitor(ctx); err != nil && ctx.Err() == nil {
			log.Printf("bench sensor rig monitor stopped: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := sensorserial.HandleLine(pipeline, line); err != nil {
				log.Printf("devconsole: %v", err)
			}
		}
	}
}
