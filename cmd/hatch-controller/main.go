// Command hatch-controller runs the ultrasonic ranging and hatch servo
// controller behind a single-byte serial command protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sweeney/hatch-controller/internal/adc"
	"github.com/sweeney/hatch-controller/internal/capture"
	"github.com/sweeney/hatch-controller/internal/config"
	"github.com/sweeney/hatch-controller/internal/dispatch"
	"github.com/sweeney/hatch-controller/internal/event"
	"github.com/sweeney/hatch-controller/internal/gpio"
	"github.com/sweeney/hatch-controller/internal/metrics"
	"github.com/sweeney/hatch-controller/internal/mqtt"
	"github.com/sweeney/hatch-controller/internal/pwm"
	"github.com/sweeney/hatch-controller/internal/servo"
	"github.com/sweeney/hatch-controller/internal/status"
	"github.com/sweeney/hatch-controller/internal/timing"
	"github.com/sweeney/hatch-controller/internal/tripwire"
	"github.com/sweeney/hatch-controller/internal/uart"
	"github.com/sweeney/hatch-controller/internal/web"
)

const (
	eventQueueSize  = 256
	refreshInterval = time.Second
)

func main() {
	cfg, printState, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := run(cfg, printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// parseFlags builds the configuration: defaults, then the --config file if
// given, then any flag set explicitly on the command line.
func parseFlags(fs *flag.FlagSet, args []string) (config.Config, bool, error) {
	def := config.Default()

	configPath := fs.String("config", "", "YAML configuration file")
	broker := fs.String("broker", def.MQTT.Broker, "MQTT broker address (empty to disable)")
	heartbeat := fs.Duration("heartbeat", def.MQTT.Heartbeat, "Heartbeat interval (0 to disable)")
	httpAddr := fs.String("http", def.HTTP, "HTTP status address (empty to disable)")
	serialPort := fs.String("serial", def.UART.Port, "Serial device for the host link")
	baud := fs.Int("baud", def.UART.BaudRate, "Serial baud rate")
	chip := fs.String("chip", def.GPIO.Chip, "GPIO chip for the sensor lines")
	pinTrigger := fs.Int("pin-trigger", def.GPIO.Trigger, "Line offset of the sensor trigger")
	pinEcho := fs.Int("pin-echo", def.GPIO.Echo, "Line offset of the sensor echo")
	pwmPin := fs.String("pwm-pin", def.PWMPin, "PWM pin name for the servo")
	unit := fs.String("unit", def.Unit, "Distance unit for averages and streamed values (um, mm, cm)")
	adcEnabled := fs.Bool("tripwire", def.ADC.Enabled, "Poll the trip-wire sensor")
	printState := fs.Bool("print-state", false, "Take one distance reading, print it and exit")

	if err := fs.Parse(args); err != nil {
		return config.Config{}, false, err
	}

	cfg := def
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return config.Config{}, false, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "broker":
			cfg.MQTT.Broker = *broker
		case "heartbeat":
			cfg.MQTT.Heartbeat = *heartbeat
		case "http":
			cfg.HTTP = *httpAddr
		case "serial":
			cfg.UART.Port = *serialPort
		case "baud":
			cfg.UART.BaudRate = *baud
		case "chip":
			cfg.GPIO.Chip = *chip
		case "pin-trigger":
			cfg.GPIO.Trigger = *pinTrigger
		case "pin-echo":
			cfg.GPIO.Echo = *pinEcho
		case "pwm-pin":
			cfg.PWMPin = *pwmPin
		case "unit":
			cfg.Unit = *unit
		case "tripwire":
			cfg.ADC.Enabled = *adcEnabled
		}
	})
	return cfg, *printState, nil
}

func run(cfg config.Config, printState bool) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := cfg.Validate(); err != nil {
		if errors.Is(err, capture.ErrUncalibrated) {
			return halt(err, sigCh)
		}
		return fmt.Errorf("config: %w", err)
	}

	// Initialize sensor and capture engine
	sensor, err := gpio.NewRealSensor(cfg.GPIO.Chip, cfg.GPIO.Trigger, cfg.GPIO.Echo, cfg.Calibration.TickHz)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer sensor.Close()

	engine := capture.NewEngine(cfg.Calibration, sensor)
	if err := sensor.Start(engine.HandleEdge); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	clock := timing.RealClock{}

	// Print state mode
	if printState {
		d := dispatch.New(cfg.DispatchConfig(), dispatch.Deps{Capture: engine, Trigger: sensor, Clock: clock})
		m, ok, err := d.Measure(context.Background())
		if err != nil {
			return fmt.Errorf("measure: %w", err)
		}
		fmt.Println(formatReading(m, ok))
		return nil
	}

	out, err := pwm.NewRealOutput(cfg.PWMPin)
	if err != nil {
		return fmt.Errorf("init pwm: %w", err)
	}
	defer out.Close()

	hatch := servo.NewActuator(out, clock, cfg.Servo)
	if cfg.ReinitAfterClose {
		hatch.AfterClose = engine.ResetTimer
	}

	link, err := uart.Open(cfg.UART)
	if err != nil {
		return fmt.Errorf("open serial: %w", err)
	}
	defer link.Close()

	queue := event.NewQueue(eventQueueSize)
	d := dispatch.New(cfg.DispatchConfig(), dispatch.Deps{
		Capture: engine,
		Trigger: sensor,
		Hatch:   hatch,
		Tx:      link,
		Clock:   clock,
		Sink:    queue,
	})

	var monitor *tripwire.Monitor
	if cfg.ADC.Enabled {
		conv, err := adc.OpenMCP3008(cfg.ADC.Port, cfg.ADC.Channel)
		if err != nil {
			return fmt.Errorf("init adc: %w", err)
		}
		defer conv.Close()
		monitor = tripwire.New(cfg.Tripwire, conv, link, clock, queue)
	}

	// Initialize MQTT
	var publisher mqtt.Publisher = mqtt.NopPublisher{}
	var mqttStatus mqtt.ConnectionStatus = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		p := mqtt.NewRealPublisher(mqtt.Options{Broker: cfg.MQTT.Broker, App: "hatch-controller"})
		publisher, mqttStatus = p, p
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Unit:          cfg.Unit,
		Threshold:     cfg.Dispatch.Threshold,
		TripThreshold: cfg.Tripwire.Threshold,
		HeartbeatMs:   cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:        cfg.MQTT.Broker,
		HTTPAddr:      cfg.HTTP,
		SerialPort:    cfg.UART.Port,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	m := metrics.New()

	dm := &daemon{
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		metrics:    m,
		controller: d,
		lost:       queue.Dropped,
		now:        time.Now,
	}
	if monitor != nil {
		dm.tripwire = monitor
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTP != "" {
		srv := web.New(tracker, web.Options{Addr: cfg.HTTP, Metrics: m.Handler(), Refresh: dm.refresh})
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	goRun := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				log.Printf("%s: %v", name, err)
			}
		}()
	}
	goRun("uart", func(ctx context.Context) error {
		return link.Serve(ctx, func(b byte) { _ = d.Receive(b) })
	})
	goRun("dispatch", d.Run)
	if monitor != nil {
		goRun("tripwire", monitor.Run)
	}

	log.Printf("started: serial=%s unit=%s threshold=%d broker=%s heartbeat=%v tripwire=%v",
		cfg.UART.Port, cfg.Unit, cfg.Dispatch.Threshold, cfg.MQTT.Broker, cfg.MQTT.Heartbeat, cfg.ADC.Enabled)

	var heartbeatC <-chan time.Time
	if cfg.MQTT.Heartbeat > 0 {
		hb := time.NewTicker(cfg.MQTT.Heartbeat)
		defer hb.Stop()
		heartbeatC = hb.C
	}
	refresh := time.NewTicker(refreshInterval)
	defer refresh.Stop()

	err = dm.runLoop(queue.C(), heartbeatC, refresh.C, sigCh)

	// A ramp in progress finishes before the dispatcher returns.
	cancel()
	wg.Wait()
	return err
}

// halt is the response to a missing calibration: nothing is driven and the
// process waits to be killed.
func halt(err error, sig <-chan os.Signal) error {
	log.Printf("halted: %v", err)
	s := <-sig
	log.Printf("received %v, exiting", s)
	return nil
}

// controller is the dispatcher as seen by the status loop.
type controller interface {
	State() dispatch.State
	Stats() dispatch.Stats
}

type tripSource interface {
	State() tripwire.State
}

// daemon routes controller events to the log, status tracker, metrics and
// MQTT, and publishes lifecycle events.
type daemon struct {
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	metrics    *metrics.Metrics
	controller controller
	tripwire   tripSource // nil when the trip-wire is disabled
	lost       func() uint64
	now        func() time.Time
}

func (dm *daemon) runLoop(events <-chan event.Event, heartbeat, refresh <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			dm.refresh()
			snap := dm.tracker.Snapshot()
			ev := mqtt.SystemEvent{
				Timestamp:  dm.now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if err := dm.publisher.PublishSystem(ev); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case ev := <-events:
			log.Printf("event: %s", describe(ev))
			dm.tracker.Apply(ev)
			if dm.metrics != nil {
				dm.metrics.Observe(ev)
			}
			if err := dm.publisher.Publish(ev); err != nil {
				log.Printf("publish error: %v", err)
				// Don't crash on publish failure
			}

		case <-refresh:
			dm.refresh()

		case <-heartbeat:
			dm.refresh()
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				dm.tracker.SetNetwork(net)
			}
			snap := dm.tracker.Snapshot()
			log.Printf("heartbeat: uptime=%v state=%s commands=%d rejected=%d measurements=%d alerts=%d",
				snap.Uptime().Round(time.Second), snap.State, snap.Counts.Commands, snap.Counts.Rejected,
				snap.Counts.Measurements, snap.Counts.Alerts)

			hbEvent := mqtt.SystemEvent{
				Timestamp:  dm.now(),
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := dm.publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

// refresh copies polled state into the tracker and metrics.
func (dm *daemon) refresh() {
	if dm.controller != nil {
		dm.tracker.SetController(dm.controller.State(), dm.controller.Stats())
	}
	if dm.tripwire != nil {
		s := dm.tripwire.State()
		dm.tracker.SetTripwire(s)
		if dm.metrics != nil {
			dm.metrics.SetTripSample(s.LastSample)
		}
	}
	if dm.lost != nil {
		n := dm.lost()
		dm.tracker.SetEventsLost(n)
		if dm.metrics != nil {
			dm.metrics.SetEventsLost(n)
		}
	}
	if dm.mqttStatus != nil {
		connected := dm.mqttStatus.IsConnected()
		dm.tracker.SetMQTTConnected(connected)
		if dm.metrics != nil {
			dm.metrics.SetMQTTConnected(connected)
		}
	}
}

// describe renders an event for the log.
func describe(ev event.Event) string {
	switch ev.Type {
	case event.TypeCommand, event.TypeRejected:
		return fmt.Sprintf("%s %q", ev.Type, ev.Command)
	case event.TypeMeasurement:
		return fmt.Sprintf("%s %d um (%d ticks)", ev.Type, ev.DistanceUM, ev.DeltaTicks)
	case event.TypeClassified:
		return fmt.Sprintf("%s average=%d samples=%d class=%s", ev.Type, ev.Average, ev.Samples, ev.Class)
	case event.TypeRamp:
		return fmt.Sprintf("%s %s %v", ev.Type, ev.Ramp, ev.Duties)
	case event.TypeAlert:
		return fmt.Sprintf("%s sample=%d", ev.Type, ev.Sample)
	}
	return string(ev.Type)
}

// formatReading renders a --print-state result.
func formatReading(m capture.Measurement, ok bool) string {
	if !ok {
		return "Distance: no echo"
	}
	return fmt.Sprintf("Distance: %d.%02d cm (%d um, %d ticks)",
		m.Centimeters(), m.DistanceUM%10000/100, m.DistanceUM, m.DeltaTicks)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
