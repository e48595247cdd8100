// Package capture converts echo-line edge captures into distance measurements.
// This package has NO external dependencies (no GPIO, OS, or time.Sleep).
// Edges carry tick counts from whatever timer produced them.
package capture

// EdgeKind identifies what a capture event represents.
type EdgeKind uint8

const (
	EdgeRising EdgeKind = iota + 1
	EdgeFalling
	// EdgeOverflow is a timer rollover notification. It carries no edge.
	EdgeOverflow
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeRising:
		return "RISING"
	case EdgeFalling:
		return "FALLING"
	case EdgeOverflow:
		return "OVERFLOW"
	}
	return "UNKNOWN"
}

// Edge is one capture event on the echo line.
type Edge struct {
	Ticks uint32 // timer value latched at the edge
	Kind  EdgeKind
}

// State is the capture state machine position.
type State uint8

const (
	AwaitingRising State = iota
	AwaitingFalling
)

func (s State) String() string {
	if s == AwaitingFalling {
		return "AWAITING_FALLING"
	}
	return "AWAITING_RISING"
}

// Measurement is one completed echo round-trip.
type Measurement struct {
	DeltaTicks uint32
	DistanceUM uint64 // micrometres
	Valid      bool
}

// Centimeters returns the distance truncated to whole centimetres.
func (m Measurement) Centimeters() uint64 {
	return m.DistanceUM / 10000
}

// Millimeters returns the distance truncated to whole millimetres.
func (m Measurement) Millimeters() uint64 {
	return m.DistanceUM / 1000
}

// Sensor range accepted as a valid reading, in whole centimetres.
const (
	MinCentimeters = 2
	MaxCentimeters = 400
)

// InRange reports whether a distance in micrometres lies in the accepted
// range. The check is done on whole centimetres.
func InRange(distanceUM uint64) bool {
	cm := distanceUM / 10000
	return cm >= MinCentimeters && cm <= MaxCentimeters
}

// Recorder receives valid measurements while armed on an Engine.
// Record is called with the engine lock held and must not call back
// into the engine.
type Recorder interface {
	Record(m Measurement)
}

// TimerResetter clears the hardware tick counter feeding the engine.
type TimerResetter interface {
	ResetTimer()
}

// Stats counts capture activity since startup.
type Stats struct {
	Edges     uint64
	Overflows uint64
	Valid     uint64
	Discarded uint64
}
