// Package gpio drives the ultrasonic sensor's trigger line and captures edges
// on its echo line, with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"time"

	"github.com/sweeney/hatch-controller/internal/capture"
)

// EdgeHandler receives echo-line capture events. It is called from the
// edge-event goroutine.
type EdgeHandler func(capture.Edge)

// Trigger emits the pulse that starts one ranging cycle.
type Trigger interface {
	// Pulse holds the trigger line high for at least width.
	Pulse(width time.Duration) error
}

// Sensor is the ultrasonic ranging module: trigger output plus echo capture.
type Sensor interface {
	Trigger
	capture.TimerResetter
	// Start begins delivering echo edges to h.
	Start(h EdgeHandler) error
	// Close releases GPIO resources.
	Close() error
}

// Defaults for a Raspberry Pi (gpiochip0 line offsets = BCM numbering).
const (
	DefaultChip       = "gpiochip0"
	DefaultPinTrigger = 23
	DefaultPinEcho    = 24

	// TriggerWidth is the HC-SR04 minimum trigger pulse.
	TriggerWidth = 10 * time.Microsecond
)
