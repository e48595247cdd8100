// Package host decodes the controller's serial responses on the host side:
// classification bytes, trip-wire alerts and streamed distances.
package host

import (
	"strconv"
	"sync"
	"time"

	"github.com/sweeney/hatch-controller/internal/dispatch"
	"github.com/sweeney/hatch-controller/internal/event"
	"github.com/sweeney/hatch-controller/internal/tripwire"
)

// Decoder turns response bytes into events. A streamed value ends at the
// next non-digit byte or when the line has been idle; see FlushIdle.
type Decoder struct {
	divisor uint64
	now     func() time.Time

	mu       sync.Mutex
	digits   []byte
	inNumber bool
	sawCR    bool
	last     time.Time
}

// NewDecoder creates a decoder for values streamed in the unit given by
// divisor (micrometres per unit).
func NewDecoder(divisor uint64, now func() time.Time) *Decoder {
	if divisor == 0 {
		divisor = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Decoder{divisor: divisor, now: now}
}

// Feed consumes one byte and returns any events it completes.
func (d *Decoder) Feed(b byte) []event.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = d.now()

	if b >= '0' && b <= '9' && d.inNumber {
		d.digits = append(d.digits, b)
		return nil
	}

	var out []event.Event
	if ev, ok := d.flush(); ok {
		out = append(out, ev)
	}

	switch b {
	case '\r':
		d.sawCR = true
		return out
	case '\n':
		d.inNumber = d.sawCR
	case tripwire.AlertByte:
		out = append(out, event.Event{Timestamp: d.last, Type: event.TypeAlert})
	case dispatch.ClassHigh, dispatch.ClassLow:
		out = append(out, event.Event{Timestamp: d.last, Type: event.TypeClassified, Class: string(b)})
	}
	d.sawCR = false
	return out
}

// Flush completes a pending streamed value.
func (d *Decoder) Flush() []event.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ev, ok := d.flush(); ok {
		return []event.Event{ev}
	}
	return nil
}

// FlushIdle completes a pending value if no byte has arrived for idle.
func (d *Decoder) FlushIdle(idle time.Duration) []event.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.digits) == 0 || d.now().Sub(d.last) < idle {
		return nil
	}
	if ev, ok := d.flush(); ok {
		return []event.Event{ev}
	}
	return nil
}

func (d *Decoder) flush() (event.Event, bool) {
	digits := d.digits
	d.digits = d.digits[:0]
	d.inNumber = false
	if len(digits) == 0 {
		return event.Event{}, false
	}
	v, err := strconv.ParseUint(string(digits), 10, 64)
	if err != nil {
		return event.Event{}, false
	}
	return event.Event{
		Timestamp:  d.last,
		Type:       event.TypeMeasurement,
		DistanceUM: v * d.divisor,
	}, true
}
