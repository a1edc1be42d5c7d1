// Package gpio reads the LD2410 OUT pin, which the sensor drives high
// whenever it sees a target. The pin is a coarse presence signal that is
// useful as a cross-check against the serial report stream.
package gpio

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PresencePin wraps a single GPIO input configured for the sensor's OUT line.
type PresencePin struct {
	pin gpio.PinIO
}

// Open initializes the host GPIO driver and configures the given BCM pin as a
// pulled-down input. The LD2410 drives the line high on presence, so pull-down
// keeps the idle state unambiguous.
func Open(bcmPin int) (*PresencePin, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio host init: %w", err)
	}

	name := fmt.Sprintf("GPIO%d", bcmPin)
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %s not found", name)
	}
	if err := pin.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("configure %s as input: %w", name, err)
	}
	return &PresencePin{pin: pin}, nil
}

// Present reports whether the sensor is currently asserting presence. A nil
// receiver always reports false, so callers on hosts without GPIO can skip
// the availability check.
func (p *PresencePin) Present() bool {
	if p == nil {
		return false
	}
	return p.pin.Read() == gpio.High
}

// WaitForEdge blocks until the presence line changes state or the timeout
// expires. It returns the new level and whether an edge was seen.
func (p *PresencePin) WaitForEdge(timeout time.Duration) (bool, bool) {
	if p == nil {
		return false, false
	}
	if !p.pin.WaitForEdge(timeout) {
		return p.pin.Read() == gpio.High, false
	}
	return p.pin.Read() == gpio.High, true
}

// Watch invokes onChange with the new level after every presence transition
// until ctx is cancelled. A nil receiver returns immediately.
func (p *PresencePin) Watch(ctx context.Context, onChange func(present bool)) {
	if p == nil {
		return
	}
	last := p.Present()
	for ctx.Err() == nil {
		level, edged := p.WaitForEdge(time.Second)
		if !edged || level == last {
			continue
		}
		last = level
		onChange(level)
	}
}

// Name returns the underlying pin name, or "disabled" for a nil receiver.
func (p *PresencePin) Name() string {
	if p == nil {
		return "disabled"
	}
	return p.pin.Name()
}
