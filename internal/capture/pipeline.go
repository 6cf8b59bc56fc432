// Package capture implements the sampling pipeline (spec component C4):
// ring buffers fed by OS sensor callbacks, periodic flush to the
// measurement store and sensor-value files, and the geolocation fix
// quality filter.
package capture

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/motiontrace/capture-sdk/internal/sensorfile"
	"github.com/motiontrace/capture-sdk/internal/timeutil"
)

// randomSubscriberID generates a random channel id, matching the
// teacher's serial multiplexer subscriber-id scheme.
func randomSubscriberID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Location is a single geolocation fix, already classified by the
// accuracy/lag filter.
type Location struct {
	TimeMs               int64
	Latitude             float64
	Longitude            float64
	AccuracyM            float64
	SpeedMps             float64
	AltitudeM            *float64
	VerticalAccuracyM    *float64
	IsPartOfCleanedTrack bool
}

// Altitude is a single barometer-derived relative altitude sample.
type Altitude struct {
	TimeMs int64
	ValueM float64
}

// RawFix is what a geolocation callback delivers: the fix's own event
// time plus its measurements. The pipeline stamps arrival time itself.
type RawFix struct {
	EventTimeMs       int64
	Latitude          float64
	Longitude         float64
	AccuracyM         float64
	SpeedMps          float64
	AltitudeM         *float64
	VerticalAccuracyM *float64
}

// FilterConfig holds the two geolocation rejection thresholds from
// spec.md §6.
type FilterConfig struct {
	AccuracyMetres float64
	MaxLagMillis   int64
}

// DefaultFilterConfig matches the spec defaults: reject at >=20m accuracy
// or >10s arrival lag.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{AccuracyMetres: 20, MaxLagMillis: 10_000}
}

// FixEventType distinguishes the two transition messages a Pipeline emits
// on its consecutive-valid-fix counter crossing 1.
type FixEventType string

const (
	HasFix  FixEventType = "hasFix"
	FixLost FixEventType = "fixLost"
)

// FixMessage is broadcast to subscribers on a hasFix/fixLost transition.
type FixMessage struct {
	Type   FixEventType
	TimeMs int64
}

// buffer is an append/drain slice, one per sensor kind plus one each for
// locations and altitudes (spec.md §4.4). It holds no lock of its own: all
// five buffers share the owning Pipeline's single mutex, so a Drain
// empties every ring as one atomic snapshot rather than five
// independent ones.
type buffer[T any] struct {
	items []T
}

// append must be called with the owning Pipeline's mutex held.
func (b *buffer[T]) append(v T) {
	b.items = append(b.items, v)
}

// drain must be called with the owning Pipeline's mutex held.
func (b *buffer[T]) drain() []T {
	out := b.items
	b.items = nil
	return out
}

// len must be called with the owning Pipeline's mutex held.
func (b *buffer[T]) len() int {
	return len(b.items)
}

// Snapshot is one flusher drain of all ring buffers.
type Snapshot struct {
	Locations []Location
	Altitudes []Altitude
	Accel     []sensorfile.SensorValue
	Rotation  []sensorfile.SensorValue
	Direction []sensorfile.SensorValue
}

// Pipeline fans in the five OS sensor callback sources into ring buffers
// and runs the geolocation fix filter. It is safe for concurrent Record*
// calls from the sensor worker while the flusher drains it.
type Pipeline struct {
	clock  timeutil.Clock
	filter FilterConfig

	// bufMu guards all five ring buffers together, so Drain/BufferCounts
	// see one consistent snapshot across buffer kinds rather than
	// racing independently-locked reads.
	bufMu     sync.Mutex
	locations buffer[Location]
	altitudes buffer[Altitude]
	accel     buffer[sensorfile.SensorValue]
	rotation  buffer[sensorfile.SensorValue]
	direction buffer[sensorfile.SensorValue]

	intakeMu sync.Mutex
	intake   bool

	fixMu            sync.Mutex
	consecutiveValid int
	subscribers      map[string]chan FixMessage
}

// New creates a Pipeline with intake disabled; the lifecycle state
// machine enables it on start/resume and disables it on pause/stop.
func New(clock timeutil.Clock, filter FilterConfig) *Pipeline {
	return &Pipeline{
		clock:       clock,
		filter:      filter,
		subscribers: make(map[string]chan FixMessage),
	}
}

// SetIntake enables or disables sample recording. While disabled, all
// Record* calls are no-ops — this is how pause stops sample intake
// without the OS sensor callbacks themselves being cancellable.
func (p *Pipeline) SetIntake(enabled bool) {
	p.intakeMu.Lock()
	p.intake = enabled
	p.intakeMu.Unlock()
}

func (p *Pipeline) intakeEnabled() bool {
	p.intakeMu.Lock()
	defer p.intakeMu.Unlock()
	return p.intake
}

// RecordAcceleration appends an accelerometer sample.
func (p *Pipeline) RecordAcceleration(v sensorfile.SensorValue) {
	if !p.intakeEnabled() {
		return
	}
	p.bufMu.Lock()
	p.accel.append(v)
	p.bufMu.Unlock()
}

// RecordRotation appends a gyroscope sample.
func (p *Pipeline) RecordRotation(v sensorfile.SensorValue) {
	if !p.intakeEnabled() {
		return
	}
	p.bufMu.Lock()
	p.rotation.append(v)
	p.bufMu.Unlock()
}

// RecordDirection appends a magnetometer sample.
func (p *Pipeline) RecordDirection(v sensorfile.SensorValue) {
	if !p.intakeEnabled() {
		return
	}
	p.bufMu.Lock()
	p.direction.append(v)
	p.bufMu.Unlock()
}

// RecordAltitude appends a barometer-derived altitude sample.
func (p *Pipeline) RecordAltitude(a Altitude) {
	if !p.intakeEnabled() {
		return
	}
	p.bufMu.Lock()
	p.altitudes.append(a)
	p.bufMu.Unlock()
}

// RecordLocation classifies a raw geolocation fix against the accuracy
// and lag thresholds, appends it (rejected fixes included, marked
// isPartOfCleanedTrack=false) and emits a hasFix/fixLost transition
// message when the consecutive-valid-fix count crosses 1.
func (p *Pipeline) RecordLocation(fix RawFix) {
	if !p.intakeEnabled() {
		return
	}

	arrivalMs := p.clock.Now().UnixMilli()
	lag := arrivalMs - fix.EventTimeMs
	valid := fix.AccuracyM < p.filter.AccuracyMetres && lag <= p.filter.MaxLagMillis

	p.bufMu.Lock()
	p.locations.append(Location{
		TimeMs:               fix.EventTimeMs,
		Latitude:             fix.Latitude,
		Longitude:            fix.Longitude,
		AccuracyM:            fix.AccuracyM,
		SpeedMps:             fix.SpeedMps,
		AltitudeM:            fix.AltitudeM,
		VerticalAccuracyM:    fix.VerticalAccuracyM,
		IsPartOfCleanedTrack: valid,
	})
	p.bufMu.Unlock()

	p.updateFixState(valid, fix.EventTimeMs)
}

func (p *Pipeline) updateFixState(valid bool, timeMs int64) {
	p.fixMu.Lock()
	defer p.fixMu.Unlock()

	before := p.consecutiveValid
	if valid {
		p.consecutiveValid++
	} else {
		p.consecutiveValid = 0
	}

	if before == 0 && p.consecutiveValid == 1 {
		p.broadcast(FixMessage{Type: HasFix, TimeMs: timeMs})
	} else if before >= 1 && p.consecutiveValid == 0 {
		p.broadcast(FixMessage{Type: FixLost, TimeMs: timeMs})
	}
}

// broadcast must be called with fixMu held.
func (p *Pipeline) broadcast(msg FixMessage) {
	for _, ch := range p.subscribers {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribe returns a channel of hasFix/fixLost transition messages.
func (p *Pipeline) Subscribe() (string, chan FixMessage) {
	id := randomSubscriberID()
	ch := make(chan FixMessage, 4)
	p.fixMu.Lock()
	p.subscribers[id] = ch
	p.fixMu.Unlock()
	return id, ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (p *Pipeline) Unsubscribe(id string) {
	p.fixMu.Lock()
	defer p.fixMu.Unlock()
	if ch, ok := p.subscribers[id]; ok {
		close(ch)
		delete(p.subscribers, id)
	}
}

// Drain atomically empties all five ring buffers and returns their
// contents. Called by the flusher only.
func (p *Pipeline) Drain() Snapshot {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	return Snapshot{
		Locations: p.locations.drain(),
		Altitudes: p.altitudes.drain(),
		Accel:     p.accel.drain(),
		Rotation:  p.rotation.drain(),
		Direction: p.direction.drain(),
	}
}

// BufferCounts reports how many samples are currently buffered per
// ring, without draining them — for internal/debugconsole's live
// throughput chart.
type BufferCounts struct {
	Locations int
	Altitudes int
	Accel     int
	Rotation  int
	Direction int
}

// BufferCounts returns the current per-ring buffer depths, as one
// consistent snapshot across all five rings.
func (p *Pipeline) BufferCounts() BufferCounts {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	return BufferCounts{
		Locations: p.locations.len(),
		Altitudes: p.altitudes.len(),
		Accel:     p.accel.len(),
		Rotation:  p.rotation.len(),
		Direction: p.direction.len(),
	}
}
