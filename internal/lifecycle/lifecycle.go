// Package lifecycle implements the measurement lifecycle state machine
// (spec component C5): IDLE/RUNNING/PAUSED/STOPPED, driving C3 (events,
// tracks) and C4 (sample intake) and emitting one message per transition
// on a single broadcast channel.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"

	crand "crypto/rand"
	"encoding/hex"

	"github.com/motiontrace/capture-sdk/internal/capture"
	"github.com/motiontrace/capture-sdk/internal/fsutil"
	"github.com/motiontrace/capture-sdk/internal/measurestore"
	"github.com/motiontrace/capture-sdk/internal/security"
	"github.com/motiontrace/capture-sdk/internal/sensorfile"
)

// State is one of the four lifecycle states.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// MessageType identifies the kind of lifecycle transition message.
type MessageType string

const (
	Started         MessageType = "STARTED"
	Paused          MessageType = "PAUSED"
	Resumed         MessageType = "RESUMED"
	Stopped         MessageType = "STOPPED"
	ModalityChanged MessageType = "MODALITY_CHANGED"
)

// Message is one entry in the lifecycle's single broadcast channel.
// spec.md §4.5: within one lifecycle the first message is STARTED and
// the last is STOPPED.
type Message struct {
	Type     MessageType
	TimeMs   int64
	Modality string
}

// Errors per the lifecycle taxonomy in spec.md §7. They are never fatal —
// returned synchronously to the caller.
var (
	ErrIsRunning  = errors.New("lifecycle: already running")
	ErrNotRunning = errors.New("lifecycle: not running")
	ErrIsPaused   = errors.New("lifecycle: already paused")
	ErrNotPaused  = errors.New("lifecycle: not paused")
)

// Lifecycle drives one Measurement's state machine from IDLE through
// STOPPED. A fresh Lifecycle must be constructed for each new
// measurement; it is not reusable after STOPPED.
type Lifecycle struct {
	store    *measurestore.DB
	pipeline *capture.Pipeline
	flusher  *capture.Flusher
	fs       fsutil.FileSystem
	baseDir  string

	mu            sync.Mutex
	state         State
	measurementID int64
	trackID       int64

	subMu       sync.Mutex
	subscribers map[string]chan Message
}

// New creates a Lifecycle in state IDLE. fs/baseDir locate the three
// per-measurement sensor files C2 owns (spec.md §6 file layout); pass
// fsutil.OSFileSystem{} in production or a MemoryFileSystem in tests.
func New(store *measurestore.DB, pipeline *capture.Pipeline, flusher *capture.Flusher, fs fsutil.FileSystem, baseDir string) *Lifecycle {
	return &Lifecycle{
		store:       store,
		pipeline:    pipeline,
		flusher:     flusher,
		fs:          fs,
		baseDir:     baseDir,
		state:       StateIdle,
		subscribers: make(map[string]chan Message),
	}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// MeasurementID returns the active measurement's identifier, or 0 before
// the first Start.
func (l *Lifecycle) MeasurementID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.measurementID
}

// Subscribe returns a channel receiving every message this Lifecycle
// emits, from here forward.
func (l *Lifecycle) Subscribe() (string, chan Message) {
	id := randomID()
	ch := make(chan Message, 16)
	l.subMu.Lock()
	l.subscribers[id] = ch
	l.subMu.Unlock()
	return id, ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (l *Lifecycle) Unsubscribe(id string) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	if ch, ok := l.subscribers[id]; ok {
		close(ch)
		delete(l.subscribers, id)
	}
}

func (l *Lifecycle) broadcast(msg Message) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for _, ch := range l.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
}

// closeSubscribers closes every subscriber channel, signalling stream
// completion after STOPPED has been broadcast.
func (l *Lifecycle) closeSubscribers() {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for id, ch := range l.subscribers {
		close(ch)
		delete(l.subscribers, id)
	}
}

// Start transitions IDLE -> RUNNING: creates the Measurement, appends
// its first Track, persists a LIFECYCLE_START event, enables sample
// intake and broadcasts STARTED.
func (l *Lifecycle) Start(timeMs int64, initialModality string) error {
	l.mu.Lock()
	if l.state != StateIdle {
		l.mu.Unlock()
		return ErrIsRunning
	}
	l.mu.Unlock()

	m, err := l.store.CreateMeasurement(timeMs, initialModality)
	if err != nil {
		return fmt.Errorf("lifecycle: start: %w", err)
	}
	track, err := l.store.AppendTrack(m.ID)
	if err != nil {
		return fmt.Errorf("lifecycle: start: append first track: %w", err)
	}
	if err := l.store.AppendEvent(m.ID, measurestore.Event{Type: measurestore.EventLifecycleStart, TimeMs: timeMs}); err != nil {
		return fmt.Errorf("lifecycle: start: %w", err)
	}

	l.mu.Lock()
	l.state = StateRunning
	l.measurementID = m.ID
	l.trackID = track.ID
	l.mu.Unlock()

	l.applyTarget(m.ID, track.ID)
	l.pipeline.SetIntake(true)
	l.broadcast(Message{Type: Started, TimeMs: timeMs})
	return nil
}

// Pause transitions RUNNING -> PAUSED: stops sample intake and persists
// a LIFECYCLE_PAUSE event.
func (l *Lifecycle) Pause(timeMs int64) error {
	l.mu.Lock()
	if l.state != StateRunning {
		l.mu.Unlock()
		return ErrNotRunning
	}
	l.state = StatePaused
	measurementID := l.measurementID
	l.mu.Unlock()

	l.pipeline.SetIntake(false)
	if err := l.store.AppendEvent(measurementID, measurestore.Event{Type: measurestore.EventLifecyclePause, TimeMs: timeMs}); err != nil {
		return fmt.Errorf("lifecycle: pause: %w", err)
	}

	l.broadcast(Message{Type: Paused, TimeMs: timeMs})
	return nil
}

// Resume transitions PAUSED -> RUNNING: appends a new Track and
// re-enables sample intake.
func (l *Lifecycle) Resume(timeMs int64) error {
	l.mu.Lock()
	if l.state != StatePaused {
		l.mu.Unlock()
		return ErrNotPaused
	}
	measurementID := l.measurementID
	l.mu.Unlock()

	track, err := l.store.AppendTrack(measurementID)
	if err != nil {
		return fmt.Errorf("lifecycle: resume: append track: %w", err)
	}
	if err := l.store.AppendEvent(measurementID, measurestore.Event{Type: measurestore.EventLifecycleResume, TimeMs: timeMs}); err != nil {
		return fmt.Errorf("lifecycle: resume: %w", err)
	}

	l.mu.Lock()
	l.state = StateRunning
	l.trackID = track.ID
	l.mu.Unlock()

	l.applyTarget(measurementID, track.ID)
	l.pipeline.SetIntake(true)
	l.broadcast(Message{Type: Resumed, TimeMs: timeMs})
	return nil
}

// Stop transitions RUNNING or PAUSED -> STOPPED: forces a final
// synchronous flush, persists a LIFECYCLE_STOP event, marks the
// measurement synchronizable, broadcasts STOPPED and closes the channel.
func (l *Lifecycle) Stop(timeMs int64) error {
	l.mu.Lock()
	if l.state != StateRunning && l.state != StatePaused {
		l.mu.Unlock()
		return ErrNotRunning
	}
	measurementID := l.measurementID
	l.state = StateStopped
	l.mu.Unlock()

	l.pipeline.SetIntake(false)
	if l.flusher != nil {
		l.flusher.FlushNow()
	}

	if err := l.store.AppendEvent(measurementID, measurestore.Event{Type: measurestore.EventLifecycleStop, TimeMs: timeMs}); err != nil {
		return fmt.Errorf("lifecycle: stop: %w", err)
	}
	if err := l.store.MarkSynchronizable(measurementID); err != nil {
		return fmt.Errorf("lifecycle: stop: %w", err)
	}

	if l.flusher != nil {
		l.flusher.SetTarget(nil)
	}

	l.broadcast(Message{Type: Stopped, TimeMs: timeMs})
	l.closeSubscribers()
	return nil
}

// ChangeModality persists a MODALITY_TYPE_CHANGE event and broadcasts
// MODALITY_CHANGED. Only valid while RUNNING.
func (l *Lifecycle) ChangeModality(timeMs int64, modality string) error {
	l.mu.Lock()
	if l.state != StateRunning {
		l.mu.Unlock()
		return ErrNotRunning
	}
	measurementID := l.measurementID
	l.mu.Unlock()

	value := modality
	if err := l.store.AppendEvent(measurementID, measurestore.Event{
		Type: measurestore.EventModalityChange, TimeMs: timeMs, Value: &value,
	}); err != nil {
		return fmt.Errorf("lifecycle: change modality: %w", err)
	}

	l.broadcast(Message{Type: ModalityChanged, TimeMs: timeMs, Modality: modality})
	return nil
}

// applyTarget swaps the flusher's persistence target to the current
// measurement/track, opening the three sensor files lazily.
func (l *Lifecycle) applyTarget(measurementID, trackID int64) {
	if l.flusher == nil {
		return
	}
	measurementDir := sensorfile.MeasurementDir(l.baseDir, measurementID)
	if err := security.ValidateMeasurementDataDir(l.baseDir, measurementDir); err != nil {
		panic(fmt.Sprintf("lifecycle: refusing to open sensor files outside baseDir: %v", err))
	}
	l.flusher.SetTarget(&capture.Target{
		MeasurementID: measurementID,
		TrackID:       trackID,
		AccelFile:     sensorfile.Open(l.fs, sensorfile.Path(l.baseDir, measurementID, sensorfile.Acceleration)),
		RotationFile:  sensorfile.Open(l.fs, sensorfile.Path(l.baseDir, measurementID, sensorfile.Rotation)),
		DirectionFile: sensorfile.Open(l.fs, sensorfile.Path(l.baseDir, measurementID, sensorfile.Direction)),
	})
}

func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}
