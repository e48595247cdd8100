package capture

import (
	"errors"
	"math"
	"testing"
)

type recorder struct {
	got []Measurement
}

func (r *recorder) Record(m Measurement) { r.got = append(r.got, m) }

type resetCounter struct{ n int }

func (r *resetCounter) ResetTimer() { r.n++ }

// echo feeds a rising edge at start and a falling edge delta ticks later.
func echo(e *Engine, start, delta uint32) {
	e.HandleEdge(Edge{Ticks: start, Kind: EdgeRising})
	e.HandleEdge(Edge{Ticks: start + delta, Kind: EdgeFalling})
}

func TestDefaultScaleConstant(t *testing.T) {
	k := DefaultCalibration().K()
	if math.Abs(k-0.00583090379) > 1e-11 {
		t.Errorf("K: got %.11f, want 0.00583090379", k)
	}
}

func TestDistanceIsDeltaOverK(t *testing.T) {
	cal := DefaultCalibration()
	// At 1 MHz and 343 m/s, 1/K is exactly 171.5 micrometres per tick.
	for _, delta := range []uint32{0, 1, 2, 117, 2916, 23323, 65535, 1 << 20} {
		want := uint64(delta) * 343 / 2
		if got := cal.DistanceUM(delta); got != want {
			t.Errorf("DistanceUM(%d): got %d, want %d", delta, got, want)
		}
	}
}

func TestDistanceOtherClock(t *testing.T) {
	cal := Calibration{TickHz: 16000000, SpeedOfSound: 343}
	// 16 ticks per microsecond: 16*2916 ticks is the same flight time as 2916 at 1 MHz.
	if got := cal.DistanceUM(16 * 2916); got != 500094 {
		t.Errorf("DistanceUM at 16 MHz: got %d, want 500094", got)
	}
}

func TestTicksForRoundTrip(t *testing.T) {
	cal := DefaultCalibration()
	for _, um := range []uint64{20000, 50000, 500000, 4000000} {
		ticks := cal.TicksFor(um)
		if got := cal.DistanceUM(ticks); got < um {
			t.Errorf("TicksFor(%d)=%d gives %d, below target", um, ticks, got)
		}
		if got := cal.DistanceUM(ticks - 1); got >= um {
			t.Errorf("TicksFor(%d)-1 gives %d, should be below target", um, got)
		}
	}
}

func TestValidRangeBoundaries(t *testing.T) {
	cal := DefaultCalibration()
	tests := []struct {
		name  string
		ticks uint32
		valid bool
	}{
		{"just under 2cm", cal.TicksFor(20000) - 1, false},
		{"exactly 2cm", cal.TicksFor(20000), true},
		{"50cm", cal.TicksFor(500000), true},
		{"top of 400cm", cal.TicksFor(4010000) - 1, true},
		{"401cm", cal.TicksFor(4010000), false},
		{"zero width", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(cal, nil)
			r := &recorder{}
			if err := e.Arm(r); err != nil {
				t.Fatalf("arm: %v", err)
			}
			echo(e, 100, tt.ticks)

			if tt.valid && len(r.got) != 1 {
				t.Fatalf("expected 1 recorded measurement, got %d", len(r.got))
			}
			if !tt.valid && len(r.got) != 0 {
				t.Fatalf("expected invalid measurement to be discarded, got %v", r.got)
			}
			if tt.valid && !r.got[0].Valid {
				t.Error("recorded measurement should be marked valid")
			}
			stats := e.Stats()
			if tt.valid && stats.Valid != 1 {
				t.Errorf("Stats.Valid: got %d, want 1", stats.Valid)
			}
			if !tt.valid && stats.Discarded != 1 {
				t.Errorf("Stats.Discarded: got %d, want 1", stats.Discarded)
			}
		})
	}
}

func TestStateMachineTransitions(t *testing.T) {
	e := NewEngine(DefaultCalibration(), nil)
	if e.State() != AwaitingRising {
		t.Fatalf("initial state: got %s", e.State())
	}

	e.HandleEdge(Edge{Ticks: 10, Kind: EdgeRising})
	if e.State() != AwaitingFalling {
		t.Errorf("after rising: got %s", e.State())
	}

	e.HandleEdge(Edge{Ticks: 10 + 2916, Kind: EdgeFalling})
	if e.State() != AwaitingRising {
		t.Errorf("after falling: got %s", e.State())
	}

	m, ok := e.Last()
	if !ok {
		t.Fatal("expected a last measurement")
	}
	if m.DeltaTicks != 2916 {
		t.Errorf("DeltaTicks: got %d, want 2916", m.DeltaTicks)
	}
	if m.DistanceUM != 500094 {
		t.Errorf("DistanceUM: got %d, want 500094", m.DistanceUM)
	}
	if m.Centimeters() != 50 {
		t.Errorf("Centimeters: got %d, want 50", m.Centimeters())
	}
	if m.Millimeters() != 500 {
		t.Errorf("Millimeters: got %d, want 500", m.Millimeters())
	}
}

func TestFallingWithoutRisingDiscarded(t *testing.T) {
	e := NewEngine(DefaultCalibration(), nil)
	r := &recorder{}
	e.Arm(r)

	e.HandleEdge(Edge{Ticks: 3000, Kind: EdgeFalling})

	if len(r.got) != 0 {
		t.Errorf("expected nothing recorded, got %v", r.got)
	}
	if _, ok := e.Last(); ok {
		t.Error("expected no last measurement")
	}
	if e.Stats().Discarded != 1 {
		t.Errorf("Discarded: got %d, want 1", e.Stats().Discarded)
	}
}

func TestSecondRisingOverwritesStart(t *testing.T) {
	e := NewEngine(DefaultCalibration(), nil)
	r := &recorder{}
	e.Arm(r)

	e.HandleEdge(Edge{Ticks: 100, Kind: EdgeRising})
	e.HandleEdge(Edge{Ticks: 1000, Kind: EdgeRising})
	e.HandleEdge(Edge{Ticks: 1000 + 2916, Kind: EdgeFalling})

	if len(r.got) != 1 {
		t.Fatalf("expected 1 measurement, got %d", len(r.got))
	}
	if r.got[0].DeltaTicks != 2916 {
		t.Errorf("DeltaTicks: got %d, want 2916 (measured from second rising edge)", r.got[0].DeltaTicks)
	}
}

func TestOverflowIsNoOp(t *testing.T) {
	e := NewEngine(DefaultCalibration(), nil)
	r := &recorder{}
	e.Arm(r)

	e.HandleEdge(Edge{Ticks: 100, Kind: EdgeRising})
	e.HandleEdge(Edge{Kind: EdgeOverflow})
	if e.State() != AwaitingFalling {
		t.Errorf("overflow changed state to %s", e.State())
	}
	e.HandleEdge(Edge{Ticks: 100 + 2916, Kind: EdgeFalling})

	if len(r.got) != 1 || r.got[0].DeltaTicks != 2916 {
		t.Errorf("unexpected measurements: %v", r.got)
	}
	stats := e.Stats()
	if stats.Overflows != 1 {
		t.Errorf("Overflows: got %d, want 1", stats.Overflows)
	}
	if stats.Edges != 2 {
		t.Errorf("Edges: got %d, want 2", stats.Edges)
	}
}

func TestDeltaWrapsAroundCounter(t *testing.T) {
	e := NewEngine(DefaultCalibration(), nil)
	start := uint32(math.MaxUint32 - 99)
	echo(e, start, 2916)

	m, ok := e.Last()
	if !ok {
		t.Fatal("expected a measurement across rollover")
	}
	if m.DeltaTicks != 2916 {
		t.Errorf("DeltaTicks: got %d, want 2916", m.DeltaTicks)
	}
}

func TestUnarmedStoresLastOnly(t *testing.T) {
	e := NewEngine(DefaultCalibration(), nil)
	echo(e, 0, 2916)
	if e.Armed() {
		t.Error("should not be armed")
	}
	if _, ok := e.Last(); !ok {
		t.Error("expected last measurement while unarmed")
	}
}

func TestArmTwiceRejected(t *testing.T) {
	e := NewEngine(DefaultCalibration(), nil)
	if err := e.Arm(&recorder{}); err != nil {
		t.Fatalf("first arm: %v", err)
	}
	if err := e.Arm(&recorder{}); !errors.Is(err, ErrSessionActive) {
		t.Errorf("second arm: got %v, want ErrSessionActive", err)
	}
	e.Disarm()
	if err := e.Arm(&recorder{}); err != nil {
		t.Errorf("arm after disarm: %v", err)
	}
}

func TestDisarmStopsRecording(t *testing.T) {
	e := NewEngine(DefaultCalibration(), nil)
	r := &recorder{}
	e.Arm(r)
	echo(e, 0, 2916)
	e.Disarm()
	echo(e, 0, 2916)

	if len(r.got) != 1 {
		t.Errorf("expected 1 measurement before disarm, got %d", len(r.got))
	}
}

func TestResetTimer(t *testing.T) {
	rc := &resetCounter{}
	e := NewEngine(DefaultCalibration(), rc)

	e.HandleEdge(Edge{Ticks: 500, Kind: EdgeRising})
	e.ResetTimer()

	if rc.n != 1 {
		t.Errorf("timer resets: got %d, want 1", rc.n)
	}
	if e.State() != AwaitingRising {
		t.Errorf("state after reset: got %s", e.State())
	}

	// A falling edge right after reset has no start to measure from.
	e.HandleEdge(Edge{Ticks: 3000, Kind: EdgeFalling})
	if _, ok := e.Last(); ok {
		t.Error("falling edge after reset should be discarded")
	}
}

func TestCalibrationValidate(t *testing.T) {
	tests := []struct {
		name string
		cal  Calibration
		ok   bool
	}{
		{"default", DefaultCalibration(), true},
		{"zero tick rate", Calibration{TickHz: 0, SpeedOfSound: 343}, false},
		{"erased tick rate", Calibration{TickHz: 0xFFFFFFFF, SpeedOfSound: 343}, false},
		{"zero speed", Calibration{TickHz: 1000000}, false},
		{"8 MHz", Calibration{TickHz: 8000000, SpeedOfSound: 343}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cal.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrUncalibrated) {
				t.Errorf("expected ErrUncalibrated, got %v", err)
			}
		})
	}
}

func TestEdgeKindString(t *testing.T) {
	if EdgeRising.String() != "RISING" || EdgeFalling.String() != "FALLING" || EdgeOverflow.String() != "OVERFLOW" {
		t.Error("unexpected edge kind names")
	}
	if EdgeKind(0).String() != "UNKNOWN" {
		t.Error("zero edge kind should be UNKNOWN")
	}
}
