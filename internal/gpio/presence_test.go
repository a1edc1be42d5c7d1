package gpio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestNilReceiverIsSafe(t *testing.T) {
	var p *PresencePin

	assert.False(t, p.Present())
	assert.Equal(t, "disabled", p.Name())

	level, edged := p.WaitForEdge(time.Millisecond)
	assert.False(t, level)
	assert.False(t, edged)

	p.Watch(context.Background(), func(bool) { t.Fatal("unexpected callback") })
}

func TestPresentReadsPinLevel(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO17", L: gpio.High, EdgesChan: make(chan gpio.Level)}
	p := &PresencePin{pin: pin}

	assert.True(t, p.Present())
	assert.Equal(t, "GPIO17", p.Name())
}

func TestWaitForEdge(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO17", EdgesChan: make(chan gpio.Level, 1)}
	p := &PresencePin{pin: pin}

	level, edged := p.WaitForEdge(10 * time.Millisecond)
	assert.False(t, edged)
	assert.False(t, level)

	pin.EdgesChan <- gpio.High
	level, edged = p.WaitForEdge(time.Second)
	assert.True(t, edged)
	assert.True(t, level)
}

func TestWatchReportsTransitions(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO17", EdgesChan: make(chan gpio.Level)}
	p := &PresencePin{pin: pin}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan bool, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Watch(ctx, func(present bool) { changes <- present })
	}()

	pin.EdgesChan <- gpio.High
	select {
	case present := <-changes:
		assert.True(t, present)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the rising edge")
	}

	pin.EdgesChan <- gpio.Low
	select {
	case present := <-changes:
		assert.False(t, present)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the falling edge")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
