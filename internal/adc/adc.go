// Package adc samples the trip-wire's analog input.
package adc

import (
	"context"
	"errors"
)

// MaxSample is the largest value a 10-bit conversion can return.
const MaxSample = 1023

// ErrNoSamples is returned by a FakeConverter with nothing scripted.
var ErrNoSamples = errors.New("adc: no samples configured")

// Converter performs one analog-to-digital conversion at a time.
type Converter interface {
	// Convert starts a conversion and blocks until the result is ready.
	Convert(ctx context.Context) (uint16, error)
	Close() error
}
