package uart

import "sync"

// FakeLink is a Transmitter that records everything sent.
type FakeLink struct {
	mu sync.Mutex

	// SendError, if set, will be returned by Send().
	SendError error

	sent [][]byte
}

// Send records a copy of p.
func (f *FakeLink) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendError != nil {
		return f.SendError
	}
	f.sent = append(f.sent, append([]byte(nil), p...))
	return nil
}

// Sent returns each Send payload, in order.
func (f *FakeLink) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

// Bytes returns everything sent, concatenated.
func (f *FakeLink) Bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []byte
	for _, p := range f.sent {
		out = append(out, p...)
	}
	return out
}

// Reset clears recorded output.
func (f *FakeLink) Reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}
