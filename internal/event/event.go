// Package event defines the controller activity records that flow from the
// dispatcher and trip-wire monitor to logging, status, metrics and MQTT.
package event

import (
	"sync/atomic"
	"time"
)

// Type identifies what happened.
type Type string

const (
	TypeCommand     Type = "COMMAND"
	TypeRejected    Type = "REJECTED"
	TypeMeasurement Type = "MEASUREMENT"
	TypeClassified  Type = "CLASSIFIED"
	TypeRamp        Type = "RAMP"
	TypeAlert       Type = "ALERT"
)

// Event is a single controller activity record. Only the fields relevant to
// Type are set.
type Event struct {
	Timestamp  time.Time
	Type       Type
	Command    string   // command byte as a string, e.g. "u"
	DistanceUM uint64   // MEASUREMENT
	DeltaTicks uint32   // MEASUREMENT
	Average    uint64   // CLASSIFIED, in the configured unit
	Samples    int      // CLASSIFIED: valid samples in the session
	Class      string   // CLASSIFIED: "h" or "l"
	Ramp       string   // RAMP: "open" or "close"
	Duties     []uint32 // RAMP
	Sample     uint16   // ALERT
}

// Sink receives events. Emit must not block the caller.
type Sink interface {
	Emit(Event)
}

// Discard drops every event.
type Discard struct{}

// Emit does nothing.
func (Discard) Emit(Event) {}

// Queue is a bounded Sink drained by a single consumer. Events that do not
// fit are dropped and counted.
type Queue struct {
	ch      chan Event
	dropped atomic.Uint64
}

// NewQueue creates a Queue holding up to size events.
func NewQueue(size int) *Queue {
	return &Queue{ch: make(chan Event, size)}
}

// Emit enqueues ev, dropping it if the queue is full.
func (q *Queue) Emit(ev Event) {
	select {
	case q.ch <- ev:
	default:
		q.dropped.Add(1)
	}
}

// C returns the receive side of the queue.
func (q *Queue) C() <-chan Event {
	return q.ch
}

// Dropped returns the number of events dropped because the queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
