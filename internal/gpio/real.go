//go:build linux

package gpio

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"

	"github.com/sweeney/hatch-controller/internal/capture"
)

// RealSensor drives an HC-SR04 through the Linux GPIO character device.
// Echo edges are timestamped by the kernel (CLOCK_MONOTONIC) and converted
// to ticks of a virtual capture timer running at tickHz.
type RealSensor struct {
	chip    *gpiocdev.Chip
	trig    *gpiocdev.Line
	echo    *gpiocdev.Line
	pinEcho int
	tickHz  uint64

	base atomic.Int64 // monotonic ns at last ResetTimer
}

// NewRealSensor requests the trigger line as an output held low.
// Echo capture starts with Start.
func NewRealSensor(chipName string, pinTrigger, pinEcho int, tickHz uint32) (*RealSensor, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	trig, err := chip.RequestLine(pinTrigger, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request trigger pin %d: %w", pinTrigger, err)
	}

	s := &RealSensor{
		chip:    chip,
		trig:    trig,
		pinEcho: pinEcho,
		tickHz:  uint64(tickHz),
	}
	s.ResetTimer()
	return s, nil
}

// Start requests the echo line with both-edge detection and forwards each
// edge to h.
func (s *RealSensor) Start(h EdgeHandler) error {
	line, err := s.chip.RequestLine(s.pinEcho,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			if edge, ok := s.edge(evt); ok {
				h(edge)
			}
		}))
	if err != nil {
		return fmt.Errorf("request echo pin %d: %w", s.pinEcho, err)
	}
	s.echo = line
	return nil
}

// edge converts a kernel line event into timer ticks since the last reset.
// Events that predate the reset belong to an earlier cycle and are dropped.
func (s *RealSensor) edge(evt gpiocdev.LineEvent) (capture.Edge, bool) {
	since := evt.Timestamp - time.Duration(s.base.Load())
	if since < 0 {
		return capture.Edge{}, false
	}
	kind := capture.EdgeRising
	if evt.Type == gpiocdev.LineEventFallingEdge {
		kind = capture.EdgeFalling
	}
	ticks := uint64(since) * s.tickHz / uint64(time.Second)
	return capture.Edge{Ticks: uint32(ticks), Kind: kind}, true
}

// ResetTimer restarts the virtual capture timer at zero.
func (s *RealSensor) ResetTimer() {
	s.base.Store(int64(monotonicNow()))
}

// Pulse drives the trigger high for width. The line is held with a spin
// wait since time.Sleep cannot resolve 10µs.
func (s *RealSensor) Pulse(width time.Duration) error {
	if err := s.trig.SetValue(1); err != nil {
		return fmt.Errorf("set trigger high: %w", err)
	}
	for deadline := time.Now().Add(width); time.Now().Before(deadline); {
	}
	if err := s.trig.SetValue(0); err != nil {
		return fmt.Errorf("set trigger low: %w", err)
	}
	return nil
}

// Close releases GPIO resources, leaving the trigger line low.
func (s *RealSensor) Close() error {
	var errs []error

	if s.echo != nil {
		if err := s.echo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close echo pin: %w", err))
		}
	}
	if s.trig != nil {
		if err := s.trig.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive trigger low: %w", err))
		}
		if err := s.trig.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close trigger pin: %w", err))
		}
	}
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// monotonicNow reads the clock the kernel uses for line event timestamps.
func monotonicNow() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return time.Duration(ts.Nano())
}
