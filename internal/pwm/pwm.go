// Package pwm drives the servo's pulse-width output.
// Duty values are expressed in ticks of a 1 MHz timer, the way the servo
// ramp is specified, and converted to the backend's resolution here.
package pwm

import "errors"

// TickHz is the resolution duty and period values are expressed in.
const TickHz = 1000000

// ErrNotStarted is returned by SetDuty before Start.
var ErrNotStarted = errors.New("pwm: output not started")

// Output is a single PWM channel.
type Output interface {
	// Start begins generating pulses with the given period in ticks.
	Start(periodTicks uint32) error
	// SetDuty sets the high time of each period in ticks.
	SetDuty(ticks uint32) error
	// Stop halts the output and drives the pin low.
	Stop() error
	// Close releases the output.
	Close() error
}
