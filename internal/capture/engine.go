package capture

import (
	"errors"
	"sync"
)

// ErrSessionActive is returned by Arm when a recorder is already armed.
var ErrSessionActive = errors.New("capture: session already active")

// Engine runs the edge-capture state machine:
// AwaitingRising -> AwaitingFalling -> (measurement) -> AwaitingRising.
// HandleEdge may be called from the edge-event goroutine while the
// dispatcher arms, disarms and resets from another.
type Engine struct {
	mu sync.Mutex

	cal   Calibration
	timer TimerResetter

	state    State
	start    uint32
	last     Measurement
	hasLast  bool
	recorder Recorder
	stats    Stats
}

// NewEngine creates an engine. timer may be nil when the edge source has no
// resettable counter.
func NewEngine(cal Calibration, timer TimerResetter) *Engine {
	return &Engine{cal: cal, timer: timer}
}

// HandleEdge processes one capture event.
func (e *Engine) HandleEdge(edge Edge) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch edge.Kind {
	case EdgeOverflow:
		e.stats.Overflows++
		return
	case EdgeRising:
		e.stats.Edges++
		e.start = edge.Ticks
		e.state = AwaitingFalling
		return
	case EdgeFalling:
		e.stats.Edges++
	default:
		return
	}

	if e.state != AwaitingFalling {
		// No rising edge to measure from.
		e.stats.Discarded++
		return
	}
	e.state = AwaitingRising

	delta := edge.Ticks - e.start // wraps like the hardware counter
	m := Measurement{DeltaTicks: delta, DistanceUM: e.cal.DistanceUM(delta)}
	m.Valid = InRange(m.DistanceUM)
	if !m.Valid {
		e.stats.Discarded++
		return
	}

	e.stats.Valid++
	e.last = m
	e.hasLast = true
	if e.recorder != nil {
		e.recorder.Record(m)
	}
}

// ResetTimer clears the tick counter and returns the state machine to
// AwaitingRising. Call before every trigger pulse.
func (e *Engine) ResetTimer() {
	e.mu.Lock()
	e.state = AwaitingRising
	e.start = 0
	e.mu.Unlock()
	if e.timer != nil {
		e.timer.ResetTimer()
	}
}

// Arm routes valid measurements to r until Disarm.
func (e *Engine) Arm(r Recorder) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recorder != nil {
		return ErrSessionActive
	}
	e.recorder = r
	return nil
}

// Disarm detaches the current recorder, if any.
func (e *Engine) Disarm() {
	e.mu.Lock()
	e.recorder = nil
	e.mu.Unlock()
}

// Armed reports whether a recorder is attached.
func (e *Engine) Armed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recorder != nil
}

// Last returns the most recent valid measurement.
func (e *Engine) Last() (Measurement, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.hasLast
}

// State returns the current state machine position.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Stats returns a copy of the capture counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Calibration returns the engine's calibration.
func (e *Engine) Calibration() Calibration {
	return e.cal
}
