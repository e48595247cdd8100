package adc

import (
	"context"
	"sync"
)

// FakeConverter returns scripted samples.
type FakeConverter struct {
	mu sync.Mutex

	// Samples are returned one per Convert. When exhausted, the last
	// sample repeats.
	Samples []uint16

	// ConvertError, if set, will be returned by Convert().
	ConvertError error

	index  int
	calls  int
	closed bool
}

// NewFakeConverter creates a FakeConverter with the given samples.
func NewFakeConverter(samples ...uint16) *FakeConverter {
	return &FakeConverter{Samples: samples}
}

// Convert returns the next scripted sample.
func (f *FakeConverter) Convert(ctx context.Context) (uint16, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.ConvertError != nil {
		return 0, f.ConvertError
	}
	if len(f.Samples) == 0 {
		return 0, ErrNoSamples
	}
	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s, nil
}

// Calls returns how many conversions were requested.
func (f *FakeConverter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Close marks the converter closed.
func (f *FakeConverter) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeConverter) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
