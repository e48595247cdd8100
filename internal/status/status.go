// Package status provides a thread-safe status tracker for the hatch-controller daemon.
// It is read by the HTTP handlers and the MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/hatch-controller/internal/dispatch"
	"github.com/sweeney/hatch-controller/internal/event"
	"github.com/sweeney/hatch-controller/internal/tripwire"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Unit          string
	Threshold     uint64
	TripThreshold uint16
	HeartbeatMs   int64
	Broker        string
	HTTPAddr      string
	SerialPort    string
}

// Counts tallies controller events since startup.
type Counts struct {
	Commands     int
	Rejected     int
	Measurements int
	High         int
	Low          int
	Opens        int
	Closes       int
	Alerts       int
}

// Reading is a timestamped value.
type Reading struct {
	Value uint64
	At    time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State      dispatch.State
	Stats      dispatch.Stats
	Hatch      string // OPEN, CLOSED or UNKNOWN
	Counts     Counts
	Distance   *Reading // last valid measurement, micrometres
	Average    *Reading // last classified average, configured unit
	Class      string
	Tripwire   tripwire.State
	EventsLost uint64

	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Hatch:     "UNKNOWN",
			Config:    cfg,
		},
	}
}

// Apply folds one controller event into the counts and last values.
func (t *Tracker) Apply(ev event.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := &t.snap.Counts
	switch ev.Type {
	case event.TypeCommand:
		c.Commands++
	case event.TypeRejected:
		c.Rejected++
	case event.TypeMeasurement:
		c.Measurements++
		t.snap.Distance = &Reading{Value: ev.DistanceUM, At: ev.Timestamp}
	case event.TypeClassified:
		if ev.Class == string(dispatch.ClassHigh) {
			c.High++
		} else {
			c.Low++
		}
		t.snap.Average = &Reading{Value: ev.Average, At: ev.Timestamp}
		t.snap.Class = ev.Class
	case event.TypeRamp:
		if ev.Ramp == "open" {
			c.Opens++
			t.snap.Hatch = "OPEN"
		} else {
			c.Closes++
			t.snap.Hatch = "CLOSED"
		}
	case event.TypeAlert:
		c.Alerts++
	}
}

// SetController records the dispatcher's state and counters.
func (t *Tracker) SetController(state dispatch.State, stats dispatch.Stats) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.Stats = stats
	t.mu.Unlock()
}

// SetTripwire records the trip-wire monitor state.
func (t *Tracker) SetTripwire(s tripwire.State) {
	t.mu.Lock()
	t.snap.Tripwire = s
	t.mu.Unlock()
}

// SetEventsLost records how many events the event queue dropped.
func (t *Tracker) SetEventsLost(n uint64) {
	t.mu.Lock()
	t.snap.EventsLost = n
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
