package capture

import (
	"errors"
	"fmt"
)

const (
	// DefaultTickHz is the capture timer clock (1 MHz, one tick per microsecond).
	DefaultTickHz = 1000000
	// DefaultSpeedOfSound is in metres per second at about 20 °C.
	DefaultSpeedOfSound = 343

	// erasedTickHz is what an unprogrammed calibration cell reads as.
	erasedTickHz = 0xFFFFFFFF
)

// ErrUncalibrated means the timer clock calibration is missing.
var ErrUncalibrated = errors.New("capture: timer clock not calibrated")

// Calibration ties timer ticks to distance.
type Calibration struct {
	TickHz       uint32 `yaml:"tick_hz"`
	SpeedOfSound uint32 `yaml:"speed_of_sound"` // m/s
}

// DefaultCalibration returns the 1 MHz / 343 m/s calibration.
func DefaultCalibration() Calibration {
	return Calibration{TickHz: DefaultTickHz, SpeedOfSound: DefaultSpeedOfSound}
}

// Validate returns ErrUncalibrated if the calibration cannot be used.
func (c Calibration) Validate() error {
	if c.TickHz == 0 || c.TickHz == erasedTickHz {
		return fmt.Errorf("tick_hz=%d: %w", c.TickHz, ErrUncalibrated)
	}
	if c.SpeedOfSound == 0 {
		return fmt.Errorf("speed_of_sound=0: %w", ErrUncalibrated)
	}
	return nil
}

// K returns the scale constant in ticks per micrometre of target distance,
// accounting for the round trip. 0.00583090379 at 1 MHz and 343 m/s.
func (c Calibration) K() float64 {
	return 2 * float64(c.TickHz) / (float64(c.SpeedOfSound) * 1e6)
}

// DistanceUM converts an echo pulse width to micrometres (delta / K),
// truncating toward zero.
func (c Calibration) DistanceUM(deltaTicks uint32) uint64 {
	return uint64(deltaTicks) * uint64(c.SpeedOfSound) * 1000000 / (2 * uint64(c.TickHz))
}

// TicksFor returns the smallest pulse width whose distance is at least
// distanceUM.
func (c Calibration) TicksFor(distanceUM uint64) uint32 {
	num := distanceUM * 2 * uint64(c.TickHz)
	den := uint64(c.SpeedOfSound) * 1000000
	return uint32((num + den - 1) / den)
}
