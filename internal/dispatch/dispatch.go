package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/hatch-controller/internal/capture"
	"github.com/sweeney/hatch-controller/internal/event"
	"github.com/sweeney/hatch-controller/internal/gpio"
	"github.com/sweeney/hatch-controller/internal/servo"
	"github.com/sweeney/hatch-controller/internal/timing"
	"github.com/sweeney/hatch-controller/internal/uart"
)

// Capture is the part of the capture engine a session needs.
type Capture interface {
	capture.TimerResetter
	Arm(r capture.Recorder) error
	Disarm()
}

// Hatch moves the servo.
type Hatch interface {
	OpenHatch(ctx context.Context) (servo.Ramp, error)
	CloseHatch(ctx context.Context) (servo.Ramp, error)
}

// Deps are the dispatcher's collaborators. A nil Sink discards events.
type Deps struct {
	Capture Capture
	Trigger gpio.Trigger
	Hatch   Hatch
	Tx      uart.Transmitter
	Clock   timing.Clock
	Sink    event.Sink
}

// Dispatcher runs one command at a time.
type Dispatcher struct {
	cfg  Config
	deps Deps

	state   atomic.Int32
	pending atomic.Bool
	queue   chan byte

	mu    sync.Mutex
	stats Stats
}

// New creates a dispatcher in the Idle state.
func New(cfg Config, deps Deps) *Dispatcher {
	if deps.Sink == nil {
		deps.Sink = event.Discard{}
	}
	if cfg.UnitDivisor == 0 {
		cfg.UnitDivisor = 1
	}
	return &Dispatcher{cfg: cfg, deps: deps, queue: make(chan byte, 1)}
}

// Receive accepts a byte from the serial reader. It never blocks: a byte
// that arrives while a command is queued or running is dropped and ErrBusy
// returned.
func (d *Dispatcher) Receive(b byte) error {
	d.pending.Store(true)
	if d.State() == StateIdle {
		select {
		case d.queue <- b:
			return nil
		default:
		}
	}
	d.pending.Store(false)
	d.reject(b)
	return ErrBusy
}

// Run services bytes queued by Receive until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-d.queue:
			if err := d.Handle(ctx, b); err != nil {
				log.Printf("dispatch: command %q: %v", b, err)
			}
		}
	}
}

// Handle runs one command to completion. Unknown bytes are ignored.
func (d *Dispatcher) Handle(ctx context.Context, b byte) error {
	d.pending.Store(false)

	cmd := Command(b)
	var next State
	switch cmd {
	case CmdAverage, CmdStream:
		next = StateMeasuring
	case CmdOpen, CmdClose:
		next = StateActuating
	default:
		log.Printf("dispatch: ignoring unknown command %q", b)
		return nil
	}

	if !d.state.CompareAndSwap(int32(StateIdle), int32(next)) {
		d.reject(b)
		return ErrBusy
	}
	defer d.state.Store(int32(StateIdle))

	d.mu.Lock()
	d.stats.Commands++
	d.mu.Unlock()
	d.emit(event.Event{Type: event.TypeCommand, Command: string(b)})

	switch cmd {
	case CmdAverage:
		return d.average(ctx)
	case CmdStream:
		return d.stream(ctx)
	case CmdOpen:
		return d.actuate(ctx, "open", d.deps.Hatch.OpenHatch)
	default:
		return d.actuate(ctx, "close", d.deps.Hatch.CloseHatch)
	}
}

// Measure takes a single reading outside the command protocol.
func (d *Dispatcher) Measure(ctx context.Context) (capture.Measurement, bool, error) {
	if !d.state.CompareAndSwap(int32(StateIdle), int32(StateMeasuring)) {
		return capture.Measurement{}, false, ErrBusy
	}
	defer d.state.Store(int32(StateIdle))

	var got capture.Measurement
	var ok bool
	s := newSession(ModeAverage, 1, func(m capture.Measurement) {
		got, ok = m, true
	})
	if err := d.deps.Capture.Arm(s); err != nil {
		return capture.Measurement{}, false, fmt.Errorf("arm session: %w", err)
	}
	defer d.deps.Capture.Disarm()

	if err := d.pulse(ctx, s, 0); err != nil {
		return capture.Measurement{}, false, err
	}
	d.deps.Capture.Disarm()
	return got, ok, nil
}

func (d *Dispatcher) average(ctx context.Context) error {
	s := newSession(ModeAverage, d.cfg.AveragePulses, d.onValid(false))
	if err := d.runSession(ctx, s, d.cfg.AverageInterval); err != nil {
		return err
	}

	avg := s.Average() / d.cfg.UnitDivisor
	class := Classify(avg, d.cfg.Threshold)
	log.Printf("dispatch: average %d over %d/%d samples -> %c", avg, s.Samples(), s.pulses, class)
	d.send([]byte{class})
	d.emit(event.Event{
		Type:    event.TypeClassified,
		Command: string(CmdAverage),
		Average: avg,
		Samples: s.Samples(),
		Class:   string(class),
	})
	return nil
}

func (d *Dispatcher) stream(ctx context.Context) error {
	s := newSession(ModeStream, d.cfg.StreamPulses, d.onValid(true))
	return d.runSession(ctx, s, d.cfg.StreamInterval)
}

func (d *Dispatcher) runSession(ctx context.Context, s *Session, interval time.Duration) error {
	if err := d.deps.Capture.Arm(s); err != nil {
		return fmt.Errorf("arm session: %w", err)
	}
	defer d.deps.Capture.Disarm()

	for i := 0; i < s.pulses; i++ {
		if err := d.pulse(ctx, s, interval); err != nil {
			return fmt.Errorf("pulse %d: %w", i+1, err)
		}
	}
	return nil
}

// pulse fires the trigger once, waits for an echo or the echo timeout, then
// sleeps out the rest of interval.
func (d *Dispatcher) pulse(ctx context.Context, s *Session, interval time.Duration) error {
	s.drain()
	start := d.deps.Clock.Now()

	d.deps.Capture.ResetTimer()
	if err := d.deps.Trigger.Pulse(d.cfg.TriggerWidth); err != nil {
		// A failed trigger is a missed echo; the session carries on.
		log.Printf("dispatch: trigger pulse failed: %v", err)
	}

	if !d.awaitEcho(s) {
		d.mu.Lock()
		d.stats.EchoTimeouts++
		d.mu.Unlock()
	}

	elapsed := d.deps.Clock.Now().Sub(start)
	return d.deps.Clock.Sleep(ctx, interval-elapsed)
}

func (d *Dispatcher) awaitEcho(s *Session) bool {
	select {
	case <-s.results:
		return true
	default:
	}
	select {
	case <-s.results:
		return true
	case <-d.deps.Clock.After(d.cfg.EchoTimeout):
		return false
	}
}

// onValid reports each valid measurement, streaming it to the host when
// stream is set. It runs on the edge goroutine.
func (d *Dispatcher) onValid(stream bool) func(capture.Measurement) {
	return func(m capture.Measurement) {
		d.emit(event.Event{
			Type:       event.TypeMeasurement,
			DistanceUM: m.DistanceUM,
			DeltaTicks: m.DeltaTicks,
		})
		if stream {
			v := m.DistanceUM / d.cfg.UnitDivisor
			d.send([]byte(StreamPrefix + strconv.FormatUint(v, 10)))
		}
	}
}

// actuate runs a ramp to completion. Ramps are not interrupted by
// cancellation so the hatch never stops part way.
func (d *Dispatcher) actuate(ctx context.Context, name string, move func(context.Context) (servo.Ramp, error)) error {
	if d.deps.Hatch == nil {
		return errors.New("no hatch configured")
	}
	r, err := move(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("%s hatch: %w", name, err)
	}
	d.emit(event.Event{Type: event.TypeRamp, Ramp: r.Name, Duties: r.Duties})
	return nil
}

func (d *Dispatcher) reject(b byte) {
	d.mu.Lock()
	d.stats.Rejected++
	d.mu.Unlock()
	log.Printf("dispatch: rejected %q: %s", b, d.State())
	d.emit(event.Event{Type: event.TypeRejected, Command: string(b)})
}

func (d *Dispatcher) send(p []byte) {
	if err := d.deps.Tx.Send(p); err != nil {
		d.mu.Lock()
		d.stats.TxDropped++
		d.mu.Unlock()
		log.Printf("dispatch: transmit dropped: %v", err)
	}
}

func (d *Dispatcher) emit(ev event.Event) {
	ev.Timestamp = d.deps.Clock.Now()
	d.deps.Sink.Emit(ev)
}

// State returns what the dispatcher is doing.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Pending reports whether a received byte has not yet been handled.
func (d *Dispatcher) Pending() bool {
	return d.pending.Load()
}

// Stats returns a copy of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
