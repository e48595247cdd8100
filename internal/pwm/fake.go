package pwm

import "sync"

// FakeOutput records PWM activity for test assertions.
type FakeOutput struct {
	mu sync.Mutex

	// SetDutyError, if set, will be returned by SetDuty().
	SetDutyError error

	running bool
	starts  []uint32
	duties  []uint32
	stops   int
	closed  bool
}

// Start records the period and marks the output running.
func (f *FakeOutput) Start(periodTicks uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, periodTicks)
	f.running = true
	return nil
}

// SetDuty records the duty value.
func (f *FakeOutput) SetDuty(ticks uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetDutyError != nil {
		return f.SetDutyError
	}
	if !f.running {
		return ErrNotStarted
	}
	f.duties = append(f.duties, ticks)
	return nil
}

// Stop marks the output halted.
func (f *FakeOutput) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.stops++
	return nil
}

// Close marks the output closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.closed = true
	return nil
}

// Duties returns every duty value set so far, in order.
func (f *FakeOutput) Duties() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint32(nil), f.duties...)
}

// Starts returns the periods passed to Start.
func (f *FakeOutput) Starts() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint32(nil), f.starts...)
}

// Stops returns how many times Stop was called.
func (f *FakeOutput) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

// Running reports whether the output is between Start and Stop.
func (f *FakeOutput) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Reset clears recorded activity.
func (f *FakeOutput) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = nil
	f.duties = nil
	f.stops = 0
}
