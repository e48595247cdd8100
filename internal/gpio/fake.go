package gpio

import (
	"sync"
	"time"

	"github.com/sweeney/hatch-controller/internal/capture"
)

// echoStart is the tick value at which the fake raises the echo line.
const echoStart = 500

// FakeSensor is a test double that answers each trigger pulse with a
// scripted echo. Edges are delivered synchronously from Pulse.
type FakeSensor struct {
	mu sync.Mutex

	// Echoes contains scripted echo widths in ticks, one per pulse.
	// Zero means no echo for that pulse. When exhausted, the last value
	// repeats.
	Echoes []uint32

	// PulseError, if set, will be returned by Pulse().
	PulseError error

	index   int
	handler EdgeHandler
	pulses  []time.Duration
	resets  int
	closed  bool
}

// NewFakeSensor creates a FakeSensor with the given echo widths.
func NewFakeSensor(echoes ...uint32) *FakeSensor {
	return &FakeSensor{Echoes: echoes}
}

// Start records the edge handler.
func (f *FakeSensor) Start(h EdgeHandler) error {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
	return nil
}

// Pulse records the pulse and plays the next scripted echo.
func (f *FakeSensor) Pulse(width time.Duration) error {
	f.mu.Lock()
	if f.PulseError != nil {
		f.mu.Unlock()
		return f.PulseError
	}
	f.pulses = append(f.pulses, width)

	var delta uint32
	if len(f.Echoes) > 0 {
		delta = f.Echoes[f.index]
		if f.index < len(f.Echoes)-1 {
			f.index++
		}
	}
	h := f.handler
	f.mu.Unlock()

	if h == nil || delta == 0 {
		return nil
	}
	h(capture.Edge{Ticks: echoStart, Kind: capture.EdgeRising})
	h(capture.Edge{Ticks: echoStart + delta, Kind: capture.EdgeFalling})
	return nil
}

// ResetTimer counts timer resets.
func (f *FakeSensor) ResetTimer() {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
}

// Close marks the sensor as closed.
func (f *FakeSensor) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Pulses returns the widths passed to Pulse, in order.
func (f *FakeSensor) Pulses() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.pulses...)
}

// Resets returns how many times ResetTimer was called.
func (f *FakeSensor) Resets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

// Closed reports whether Close was called.
func (f *FakeSensor) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
