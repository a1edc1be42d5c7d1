// Package detect turns the raw LD2410 report stream into debounced detection
// events. The sensor emits reports many times per second while a target is in
// view; the detector enforces a minimum interval between events and optional
// distance and signal gates so downstream consumers see one event per
// presence, not one per frame.
package detect

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentry-pi/radarcam/internal/ld2410"
)

// Defaults matching the sensor's report cadence.
const (
	DefaultMinInterval = 500 * time.Millisecond
)

// Event is a debounced detection derived from one sensor report.
type Event struct {
	ID               string    `json:"id"`
	Time             time.Time `json:"time"`
	MovingTarget     bool      `json:"moving_target"`
	StationaryTarget bool      `json:"stationary_target"`
	DistanceCm       int       `json:"distance_cm"`
	SignalStrength   int       `json:"signal_strength"`
	Raw              []byte    `json:"-"`
}

// Options tunes the detector. Zero values for MaxDistanceCm and MinSignal
// disable the respective gate.
type Options struct {
	// MinInterval is the minimum time between two emitted events.
	MinInterval time.Duration
	// MaxDistanceCm ignores targets further away than this.
	MaxDistanceCm int
	// MinSignal ignores targets with a weaker signal strength.
	MinSignal int
}

// Detector debounces sensor reports into events. Safe for concurrent use.
type Detector struct {
	opts Options

	mu            sync.Mutex
	lastEventTime time.Time
	now           func() time.Time
}

func New(opts Options) *Detector {
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	return &Detector{
		opts: opts,
		now:  time.Now,
	}
}

// Observe evaluates a single report. It returns an Event and true when the
// report passes the gates and the debounce interval has elapsed.
func (d *Detector) Observe(r ld2410.Report) (Event, bool) {
	if !r.TargetPresent() {
		return Event{}, false
	}
	if d.opts.MaxDistanceCm > 0 && r.DistanceCm > d.opts.MaxDistanceCm {
		return Event{}, false
	}
	if d.opts.MinSignal > 0 && r.SignalStrength < d.opts.MinSignal {
		return Event{}, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if now.Sub(d.lastEventTime) < d.opts.MinInterval {
		return Event{}, false
	}
	d.lastEventTime = now

	ts := r.Timestamp
	if ts.IsZero() {
		ts = now
	}

	return Event{
		ID:               uuid.NewString(),
		Time:             ts,
		MovingTarget:     r.MovingTarget,
		StationaryTarget: r.StationaryTarget,
		DistanceCm:       r.DistanceCm,
		SignalStrength:   r.SignalStrength,
		Raw:              r.Raw,
	}, true
}

// Reset clears the debounce state so the next qualifying report emits
// immediately.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastEventTime = time.Time{}
}

// SetClock replaces the time source. Tests only.
func (d *Detector) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}
