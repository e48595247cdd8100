package mqtt

import "log"

// bufferedMsg is a serialized message waiting for a connection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer holds the most recent messages published while disconnected.
// When full, the oldest message is overwritten. Callers synchronize.
type ringBuffer struct {
	msgs    []bufferedMsg
	start   int // oldest message
	count   int
	dropped int // overwritten since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{msgs: make([]bufferedMsg, capacity)}
}

func (r *ringBuffer) push(m bufferedMsg) {
	size := len(r.msgs)
	if r.count < size {
		r.msgs[(r.start+r.count)%size] = m
		r.count++
		return
	}
	if r.dropped == 0 {
		log.Printf("mqtt: buffer full (%d messages), dropping oldest", size)
	}
	r.dropped++
	r.msgs[r.start] = m
	r.start = (r.start + 1) % size
}

// drainAll returns the buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}
	size := len(r.msgs)
	out := make([]bufferedMsg, r.count)
	for i := range out {
		out[i] = r.msgs[(r.start+i)%size]
	}
	if r.dropped > 0 {
		log.Printf("mqtt: %d buffered messages were dropped while disconnected", r.dropped)
	}
	r.start, r.count, r.dropped = 0, 0, 0
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
