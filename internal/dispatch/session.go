package dispatch

import (
	"sync"

	"github.com/sweeney/hatch-controller/internal/capture"
)

// Mode selects how a session reports.
type Mode int

const (
	ModeAverage Mode = iota
	ModeStream
)

// Session accumulates the valid measurements of one command. It is armed on
// the capture engine for the command's duration; Record runs on the edge
// goroutine.
type Session struct {
	mode   Mode
	pulses int

	// onValid runs for every valid measurement, before it is signalled.
	onValid func(capture.Measurement)
	results chan capture.Measurement

	mu      sync.Mutex
	sum     uint64
	samples int
}

func newSession(mode Mode, pulses int, onValid func(capture.Measurement)) *Session {
	return &Session{
		mode:    mode,
		pulses:  pulses,
		onValid: onValid,
		results: make(chan capture.Measurement, pulses),
	}
}

// Record adds a valid measurement and wakes the pulse waiting for it.
func (s *Session) Record(m capture.Measurement) {
	s.mu.Lock()
	s.sum += m.DistanceUM
	s.samples++
	s.mu.Unlock()

	if s.onValid != nil {
		s.onValid(m)
	}
	select {
	case s.results <- m:
	default:
	}
}

// Sum returns the total of the recorded distances in micrometres.
func (s *Session) Sum() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sum
}

// Samples returns how many valid measurements were recorded.
func (s *Session) Samples() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

// Average divides the sum by the configured pulse count, not the number of
// valid samples, so missed echoes pull the average down.
func (s *Session) Average() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pulses == 0 {
		return 0
	}
	return s.sum / uint64(s.pulses)
}

// drain discards results left over from earlier pulses.
func (s *Session) drain() {
	for {
		select {
		case <-s.results:
		default:
			return
		}
	}
}
