// Package servo moves the hatch by stepping a PWM duty cycle through a
// bounded ramp.
package servo

import (
	"errors"
	"fmt"
	"time"
)

// Duty bounds and period, in ticks of the 1 MHz PWM timer.
const (
	MinDuty = 1500
	MaxDuty = 2500
	Period  = 20000

	DefaultHold = 150 * time.Millisecond
	DefaultStep = 500
)

var (
	ErrEmptyRamp    = errors.New("servo: empty ramp")
	ErrOutOfRange   = errors.New("servo: duty out of range")
	ErrNotMonotonic = errors.New("servo: ramp not monotonic")
)

// Ramp is an ordered duty sequence. Each value is held for Hold before the
// next is applied.
type Ramp struct {
	Name   string
	Duties []uint32
	Hold   time.Duration
}

// OpenRamp returns 1500, 1500, 2000, 2500.
func OpenRamp(hold time.Duration) Ramp {
	return LinearRamp("open", MinDuty, MaxDuty, DefaultStep, hold)
}

// CloseRamp returns 2500, 2500, 2000, 1500.
func CloseRamp(hold time.Duration) Ramp {
	return LinearRamp("close", MaxDuty, MinDuty, DefaultStep, hold)
}

// LinearRamp holds at from for one extra step, then moves toward to in
// increments of step, always finishing exactly at to.
func LinearRamp(name string, from, to, step uint32, hold time.Duration) Ramp {
	r := Ramp{Name: name, Hold: hold, Duties: []uint32{from, from}}
	if step == 0 || from == to {
		return r
	}
	d := from
	for d != to {
		switch {
		case d < to && to-d > step:
			d += step
		case d > to && d-to > step:
			d -= step
		default:
			d = to
		}
		r.Duties = append(r.Duties, d)
	}
	return r
}

// Validate checks that every duty lies within [min, max] and that the ramp
// never reverses direction.
func (r Ramp) Validate(min, max uint32) error {
	if len(r.Duties) == 0 {
		return ErrEmptyRamp
	}
	dir := 0
	for i, d := range r.Duties {
		if d < min || d > max {
			return fmt.Errorf("%s step %d duty %d: %w", r.Name, i, d, ErrOutOfRange)
		}
		if i == 0 {
			continue
		}
		prev := r.Duties[i-1]
		step := 0
		if d > prev {
			step = 1
		} else if d < prev {
			step = -1
		}
		if step == 0 {
			continue
		}
		if dir != 0 && step != dir {
			return fmt.Errorf("%s step %d duty %d: %w", r.Name, i, d, ErrNotMonotonic)
		}
		dir = step
	}
	return nil
}

// Final returns the duty the ramp finishes at.
func (r Ramp) Final() uint32 {
	if len(r.Duties) == 0 {
		return 0
	}
	return r.Duties[len(r.Duties)-1]
}
