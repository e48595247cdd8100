//go:build !linux

package gpio

import (
	"errors"
	"time"
)

// RealSensor is not available on non-Linux platforms.
type RealSensor struct{}

// NewRealSensor returns an error on non-Linux platforms.
func NewRealSensor(chipName string, pinTrigger, pinEcho int, tickHz uint32) (*RealSensor, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Start is not implemented on non-Linux platforms.
func (s *RealSensor) Start(h EdgeHandler) error {
	return errors.New("gpio: not supported")
}

// Pulse is not implemented on non-Linux platforms.
func (s *RealSensor) Pulse(width time.Duration) error {
	return errors.New("gpio: not supported")
}

// ResetTimer does nothing on non-Linux platforms.
func (s *RealSensor) ResetTimer() {}

// Close is not implemented on non-Linux platforms.
func (s *RealSensor) Close() error {
	return nil
}
