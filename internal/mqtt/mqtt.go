// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/hatch-controller/internal/event"
)

// Topic is the MQTT topic for controller events.
const Topic = "hatch/controller/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "hatch/controller/system"

// TopicHost is where hatchctl bridges responses it reads off the serial link.
const TopicHost = "hatch/host/events"

// TopicHostSystem carries hatchctl's own lifecycle events and will.
const TopicHostSystem = "hatch/host/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a controller event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(ev event.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(ev SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Hatch HatchPayload `json:"hatch"`
}

// HatchPayload contains the controller event details. Only the fields
// relevant to the event type are present.
type HatchPayload struct {
	Timestamp  string   `json:"timestamp"`
	Event      string   `json:"event"`
	Command    string   `json:"command,omitempty"`
	DistanceUM uint64   `json:"distance_um,omitempty"`
	DeltaTicks uint32   `json:"delta_ticks,omitempty"`
	Average    *uint64  `json:"average,omitempty"`
	Samples    *int     `json:"samples,omitempty"`
	Class      string   `json:"class,omitempty"`
	Ramp       string   `json:"ramp,omitempty"`
	Duties     []uint32 `json:"duties,omitempty"`
	Sample     *uint16  `json:"sample,omitempty"`
}

// FormatPayload creates the JSON payload for a controller event.
func FormatPayload(ev event.Event) ([]byte, error) {
	p := HatchPayload{
		Timestamp:  ev.Timestamp.UTC().Format(time.RFC3339),
		Event:      string(ev.Type),
		Command:    ev.Command,
		DistanceUM: ev.DistanceUM,
		DeltaTicks: ev.DeltaTicks,
		Class:      ev.Class,
		Ramp:       ev.Ramp,
		Duties:     ev.Duties,
	}
	// Zero is a meaningful average, sample count and ADC reading.
	switch ev.Type {
	case event.TypeClassified:
		avg, n := ev.Average, ev.Samples
		p.Average, p.Samples = &avg, &n
	case event.TypeAlert:
		s := ev.Sample
		p.Sample = &s
	}
	return json.Marshal(Payload{Hatch: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If ev.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(ev SystemEvent) ([]byte, error) {
	if ev.RawPayload != nil {
		return ev.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Event:  ev.Event,
			Reason: ev.Reason,
		},
	}
	if !ev.Timestamp.IsZero() {
		payload.System.Timestamp = ev.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(payload)
}

// willPayload is published by the broker if the controller drops off.
func willPayload() []byte {
	b, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "CONNECTION_LOST"})
	return b
}
