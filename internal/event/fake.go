package event

import "sync"

// FakeSink records emitted events for test assertions.
type FakeSink struct {
	mu     sync.Mutex
	events []Event
}

// Emit records ev.
func (f *FakeSink) Emit(ev Event) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

// Events returns a copy of everything emitted so far.
func (f *FakeSink) Events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

// OfType returns the recorded events with the given type, in order.
func (f *FakeSink) OfType(t Type) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, ev := range f.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
