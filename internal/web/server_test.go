package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/hatch-controller/internal/dispatch"
	"github.com/sweeney/hatch-controller/internal/event"
	"github.com/sweeney/hatch-controller/internal/status"
)

func newTestServer(t *testing.T, metrics http.Handler) (*httptest.Server, *status.Tracker) {
	t.Helper()
	return newTestServerWith(t, Options{Metrics: metrics})
}

func newTestServerWith(t *testing.T, o Options) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		Unit:          "um",
		Threshold:     60000,
		TripThreshold: 200,
		HeartbeatMs:   900000,
		Broker:        "tcp://192.168.1.200:1883",
		HTTPAddr:      ":80",
		SerialPort:    "/dev/serial0",
	}
	tr := status.NewTracker(start, cfg)
	o.Addr = ":0"
	srv := New(tr, o)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func getJSON(t *testing.T, url string) status.StatusJSON {
	t.Helper()
	resp, err := http.Get(url + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return sj
}

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.Apply(event.Event{Timestamp: time.Now(), Type: event.TypeCommand, Command: "u"})
	tr.Apply(event.Event{Timestamp: time.Now(), Type: event.TypeClassified, Average: 50078, Class: "h"})
	tr.SetController(dispatch.StateMeasuring, dispatch.Stats{EchoTimeouts: 1})
	tr.SetMQTTConnected(true)

	sj := getJSON(t, ts.URL)

	if sj.Status.State != "MEASURING" {
		t.Errorf("State: got %q, want MEASURING", sj.Status.State)
	}
	if sj.Status.Class != "h" || sj.Status.Average == nil || sj.Status.Average.Value != 50078 {
		t.Errorf("classification: %q %+v", sj.Status.Class, sj.Status.Average)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Counts.Commands != 1 || sj.Status.Controller.EchoTimeouts != 1 {
		t.Errorf("counts: %+v %+v", sj.Status.Counts, sj.Status.Controller)
	}
	if sj.Status.Config.SerialPort != "/dev/serial0" {
		t.Errorf("Config.SerialPort: got %q", sj.Status.Config.SerialPort)
	}
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.SetNetwork(&status.NetworkInfo{
		Type:   "wifi",
		IP:     "192.168.1.42",
		Status: "connected",
		SSID:   "MyNet",
	})

	sj := getJSON(t, ts.URL)
	if sj.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", sj.Status.Network.IP)
	}
}

func TestHTMLEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.Apply(event.Event{Timestamp: time.Now(), Type: event.TypeMeasurement, DistanceUM: 500094})
	tr.Apply(event.Event{Timestamp: time.Now(), Type: event.TypeRamp, Ramp: "open"})

	for _, path := range []string{"/", "/index.html"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != 200 {
			t.Errorf("%s status: got %d, want 200", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s Content-Type: got %q, want text/html", path, ct)
		}
		for _, want := range []string{"Hatch Controller", "50.00 cm", "OPEN", "IDLE"} {
			if !strings.Contains(string(body), want) {
				t.Errorf("%s: missing %q", path, want)
			}
		}
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	if code, _ := getBody(t, ts.URL+"/nonexistent"); code != 404 {
		t.Errorf("status: got %d, want 404", code)
	}
}

func TestMetricsMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "hatch_commands_total 0\n")
	})
	ts, _ := newTestServer(t, metrics)

	code, body := getBody(t, ts.URL+"/metrics")
	if code != 200 || !strings.Contains(body, "hatch_commands_total") {
		t.Errorf("GET /metrics: %d %q", code, body)
	}
}

func TestMetricsAbsentWithoutHandler(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	if code, _ := getBody(t, ts.URL+"/metrics"); code != 404 {
		t.Errorf("status: got %d, want 404", code)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t, nil)

	if sj := getJSON(t, ts.URL); sj.Status.Hatch != "UNKNOWN" {
		t.Errorf("Hatch initially: got %q, want UNKNOWN", sj.Status.Hatch)
	}

	tr.Apply(event.Event{Timestamp: time.Now(), Type: event.TypeRamp, Ramp: "close"})

	if sj := getJSON(t, ts.URL); sj.Status.Hatch != "CLOSED" {
		t.Errorf("Hatch after close: got %q, want CLOSED", sj.Status.Hatch)
	}
}

func TestRefreshRunsBeforeSnapshot(t *testing.T) {
	var tr *status.Tracker
	calls := 0
	ts, tr := newTestServerWith(t, Options{Refresh: func() {
		calls++
		tr.SetController(dispatch.StateActuating, dispatch.Stats{})
	}})

	if sj := getJSON(t, ts.URL); sj.Status.State != "ACTUATING" {
		t.Errorf("State: got %q, want ACTUATING", sj.Status.State)
	}
	if calls != 1 {
		t.Errorf("refresh calls: got %d, want 1", calls)
	}
}

func TestHealthz(t *testing.T) {
	ts, tr := newTestServer(t, nil)
	tr.SetController(dispatch.StateMeasuring, dispatch.Stats{})

	code, body := getBody(t, ts.URL+"/healthz")
	if code != 200 || body != "MEASURING\n" {
		t.Errorf("GET /healthz: %d %q", code, body)
	}
}

func TestPostNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp, err := http.Post(ts.URL+"/index.json", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}
