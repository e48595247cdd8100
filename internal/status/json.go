package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	State         string         `json:"state"`
	Hatch         string         `json:"hatch"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	Distance      *ReadingJSON   `json:"last_distance_um,omitempty"`
	Average       *ReadingJSON   `json:"last_average,omitempty"`
	Class         string         `json:"last_class,omitempty"`
	Tripwire      TripwireJSON   `json:"tripwire"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Counts        CountsJSON     `json:"event_counts"`
	Controller    ControllerJSON `json:"controller"`
	Network       *NetworkJSON   `json:"network,omitempty"`
	Config        ConfigJSON     `json:"config"`
}

// ReadingJSON is a timestamped value.
type ReadingJSON struct {
	Value     uint64 `json:"value"`
	Timestamp string `json:"timestamp"`
}

// TripwireJSON reports the trip-wire monitor.
type TripwireJSON struct {
	LastSample uint16 `json:"last_sample"`
	Polls      uint64 `json:"polls"`
	Alerts     uint64 `json:"alerts"`
	Errors     uint64 `json:"errors"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Commands     int `json:"commands"`
	Rejected     int `json:"rejected"`
	Measurements int `json:"measurements"`
	High         int `json:"high"`
	Low          int `json:"low"`
	Opens        int `json:"opens"`
	Closes       int `json:"closes"`
	Alerts       int `json:"alerts"`
}

// ControllerJSON carries the dispatcher counters.
type ControllerJSON struct {
	EchoTimeouts uint64 `json:"echo_timeouts"`
	TxDropped    uint64 `json:"tx_dropped"`
	EventsLost   uint64 `json:"events_lost"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Unit          string `json:"unit"`
	Threshold     uint64 `json:"threshold"`
	TripThreshold uint16 `json:"trip_threshold"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	Broker        string `json:"broker"`
	HTTPAddr      string `json:"http_addr"`
	SerialPort    string `json:"serial_port"`
}

func reading(r *Reading) *ReadingJSON {
	if r == nil {
		return nil
	}
	return &ReadingJSON{Value: r.Value, Timestamp: r.At.UTC().Format(time.RFC3339)}
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		State:         snap.State.String(),
		Hatch:         snap.Hatch,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Distance:      reading(snap.Distance),
		Average:       reading(snap.Average),
		Class:         snap.Class,
		Tripwire: TripwireJSON{
			LastSample: snap.Tripwire.LastSample,
			Polls:      snap.Tripwire.Polls,
			Alerts:     snap.Tripwire.Alerts,
			Errors:     snap.Tripwire.Errors,
		},
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Commands:     snap.Counts.Commands,
			Rejected:     snap.Counts.Rejected,
			Measurements: snap.Counts.Measurements,
			High:         snap.Counts.High,
			Low:          snap.Counts.Low,
			Opens:        snap.Counts.Opens,
			Closes:       snap.Counts.Closes,
			Alerts:       snap.Counts.Alerts,
		},
		Controller: ControllerJSON{
			EchoTimeouts: snap.Stats.EchoTimeouts,
			TxDropped:    snap.Stats.TxDropped,
			EventsLost:   snap.EventsLost,
		},
		Config: ConfigJSON{
			Unit:          snap.Config.Unit,
			Threshold:     snap.Config.Threshold,
			TripThreshold: snap.Config.TripThreshold,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
			SerialPort:    snap.Config.SerialPort,
		},
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
