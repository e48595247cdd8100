package pwm

import (
	"fmt"
	"sync"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"
)

// DefaultPin is the Raspberry Pi hardware PWM pin (PWM0).
const DefaultPin = "GPIO18"

// RealOutput drives a hardware PWM pin through periph.
type RealOutput struct {
	mu     sync.Mutex
	pin    gpio.PinIO
	period uint32
	freq   physic.Frequency
}

// NewRealOutput initialises periph and looks up the named pin.
func NewRealOutput(pinName string) (*RealOutput, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph: %w", err)
	}
	p := gpioreg.ByName(pinName)
	if p == nil {
		return nil, fmt.Errorf("pwm pin %q not found", pinName)
	}
	return &RealOutput{pin: p}, nil
}

// Start records the period. Pulses begin with the first SetDuty.
func (o *RealOutput) Start(periodTicks uint32) error {
	if periodTicks == 0 {
		return fmt.Errorf("pwm: zero period")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.period = periodTicks
	o.freq = physic.Frequency(TickHz/uint64(periodTicks)) * physic.Hertz
	return nil
}

// SetDuty updates the pulse width.
func (o *RealOutput) SetDuty(ticks uint32) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.period == 0 {
		return ErrNotStarted
	}
	if err := o.pin.PWM(dutyFor(ticks, o.period), o.freq); err != nil {
		return fmt.Errorf("set duty %d: %w", ticks, err)
	}
	return nil
}

// Stop halts the PWM and leaves the pin low.
func (o *RealOutput) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.period = 0
	if err := o.pin.Halt(); err != nil {
		return fmt.Errorf("halt pwm: %w", err)
	}
	if err := o.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("drive pwm pin low: %w", err)
	}
	return nil
}

// Close stops the output.
func (o *RealOutput) Close() error {
	return o.Stop()
}

// dutyFor converts a tick count within period into periph's duty scale.
func dutyFor(ticks, period uint32) gpio.Duty {
	if ticks >= period {
		return gpio.DutyMax
	}
	return gpio.Duty(uint64(ticks) * uint64(gpio.DutyMax) / uint64(period))
}
