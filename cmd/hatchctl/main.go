// Command hatchctl talks to a hatch controller over its serial link: it
// sends command bytes, prints the responses and can forward them to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/sweeney/hatch-controller/internal/config"
	"github.com/sweeney/hatch-controller/internal/dispatch"
	"github.com/sweeney/hatch-controller/internal/event"
	"github.com/sweeney/hatch-controller/internal/host"
	"github.com/sweeney/hatch-controller/internal/mqtt"
	"github.com/sweeney/hatch-controller/internal/uart"
)

const (
	// idleFlush completes a streamed value once the line goes quiet.
	idleFlush  = 100 * time.Millisecond
	eventQueue = 64
	clientKey  = "$client"
)

type options struct {
	serial  string
	baud    int
	unit    string
	broker  string
	timeout time.Duration
}

func main() {
	var o options
	flag.StringVar(&o.serial, "serial", uart.DefaultPort, "Serial device connected to the controller")
	flag.IntVar(&o.baud, "baud", uart.DefaultBaudRate, "Serial baud rate")
	flag.StringVar(&o.unit, "unit", config.UnitMicrometres, "Unit the controller streams distances in (um, mm, cm)")
	flag.StringVar(&o.broker, "broker", "", "MQTT broker to forward responses to in watch mode (empty to disable)")
	flag.DurationVar(&o.timeout, "timeout", 20*time.Second, "How long send waits for responses")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: hatchctl [flags] send u|d|o|c | watch | shell\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(flag.Args(), o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(args []string, o options) error {
	if len(args) == 0 {
		flag.Usage()
		return errors.New("no mode given")
	}
	divisor := config.UnitDivisor(o.unit)
	if divisor == 0 {
		return fmt.Errorf("unknown unit %q", o.unit)
	}

	cfg := uart.DefaultConfig()
	cfg.Port = o.serial
	cfg.BaudRate = o.baud
	link, err := uart.Open(cfg)
	if err != nil {
		return fmt.Errorf("open serial: %w", err)
	}
	defer link.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := newClient(link, host.NewDecoder(divisor, nil), o.unit)
	go func() {
		if err := link.Serve(ctx, c.onByte); err != nil {
			log.Printf("uart: %v", err)
		}
	}()
	go c.flushLoop(ctx)

	switch args[0] {
	case "send":
		if len(args) != 2 {
			return errors.New("send needs one command")
		}
		cmd, err := parseCommand(args[1])
		if err != nil {
			return err
		}
		evs, err := c.exchange(ctx, cmd, o.timeout)
		for _, ev := range evs {
			fmt.Println(c.format(ev))
		}
		return err
	case "watch":
		return watch(ctx, c, newPublisher(o.broker))
	case "shell":
		return shell(ctx, c, args[1:])
	}
	return fmt.Errorf("unknown mode %q", args[0])
}

// client pairs the transmit side of the link with decoded responses.
type client struct {
	tx     uart.Transmitter
	dec    *host.Decoder
	unit   string
	events chan event.Event
}

func newClient(tx uart.Transmitter, dec *host.Decoder, unit string) *client {
	return &client{tx: tx, dec: dec, unit: unit, events: make(chan event.Event, eventQueue)}
}

func (c *client) onByte(b byte) {
	c.deliver(c.dec.Feed(b))
}

func (c *client) deliver(evs []event.Event) {
	for _, ev := range evs {
		select {
		case c.events <- ev:
		default:
			log.Printf("hatchctl: dropped %s, nobody reading", ev.Type)
		}
	}
}

func (c *client) flushLoop(ctx context.Context) {
	t := time.NewTicker(idleFlush / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.deliver(c.dec.FlushIdle(idleFlush))
		}
	}
}

// exchange sends cmd and gathers its responses. An average waits for the
// classification; a stream collects values until the timeout or the full
// count; hatch moves have no response.
func (c *client) exchange(ctx context.Context, cmd byte, timeout time.Duration) ([]event.Event, error) {
	if err := c.tx.Send([]byte{cmd}); err != nil {
		return nil, fmt.Errorf("send %q: %w", cmd, err)
	}

	var want int
	switch dispatch.Command(cmd) {
	case dispatch.CmdAverage:
		want = 1
	case dispatch.CmdStream:
		want = dispatch.DefaultConfig().StreamPulses
	default:
		return nil, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var got []event.Event
	n := 0
	for {
		select {
		case <-ctx.Done():
			return got, ctx.Err()
		case <-timer.C:
			got = append(got, c.dec.Flush()...)
			if cmd == byte(dispatch.CmdAverage) {
				return got, errors.New("timed out waiting for classification")
			}
			return got, nil
		case ev := <-c.events:
			got = append(got, ev)
			if (cmd == byte(dispatch.CmdAverage) && ev.Type == event.TypeClassified) ||
				(cmd == byte(dispatch.CmdStream) && ev.Type == event.TypeMeasurement) {
				n++
			}
			if n >= want {
				return got, nil
			}
		}
	}
}

func (c *client) format(ev event.Event) string {
	switch ev.Type {
	case event.TypeMeasurement:
		return fmt.Sprintf("distance %d %s", ev.DistanceUM/config.UnitDivisor(c.unit), c.unit)
	case event.TypeClassified:
		return "class " + ev.Class
	case event.TypeAlert:
		return "trip-wire alert"
	}
	return string(ev.Type)
}

// parseCommand accepts a command letter, its long name, or a raw byte as a
// decimal number.
func parseCommand(s string) (byte, error) {
	switch s {
	case "u", "average":
		return byte(dispatch.CmdAverage), nil
	case "d", "stream":
		return byte(dispatch.CmdStream), nil
	case "o", "open":
		return byte(dispatch.CmdOpen), nil
	case "c", "close":
		return byte(dispatch.CmdClose), nil
	}
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		return byte(n), nil
	}
	if len(s) == 1 {
		return s[0], nil
	}
	return 0, fmt.Errorf("unknown command %q", s)
}

func newPublisher(broker string) mqtt.Publisher {
	if broker == "" {
		return mqtt.NopPublisher{}
	}
	return mqtt.NewRealPublisher(mqtt.Options{
		Broker:      broker,
		App:         "hatchctl",
		Topic:       mqtt.TopicHost,
		SystemTopic: mqtt.TopicHostSystem,
	})
}

// watch prints every response and forwards it to MQTT until ctx is done.
func watch(ctx context.Context, c *client, pub mqtt.Publisher) error {
	defer pub.Close()
	if err := pub.PublishSystem(mqtt.SystemEvent{Timestamp: time.Now(), Event: "STARTUP", Retained: true}); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			if err := pub.PublishSystem(mqtt.SystemEvent{Timestamp: time.Now(), Event: "SHUTDOWN", Retained: true}); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			}
			return nil
		case ev := <-c.events:
			fmt.Printf("%s %s\n", ev.Timestamp.Format(time.TimeOnly), c.format(ev))
			if err := pub.Publish(ev); err != nil {
				log.Printf("publish error: %v", err)
			}
		}
	}
}

func clientFrom(ctx *ishell.Context) *client {
	return ctx.Get(clientKey).(*client)
}

func sendCmd(name string, aliases []string, help string, cmd byte) *ishell.Cmd {
	return &ishell.Cmd{
		Name:    name,
		Aliases: aliases,
		Help:    help,
		Func: func(ctx *ishell.Context) {
			if err := clientFrom(ctx).tx.Send([]byte{cmd}); err != nil {
				ctx.Err(err)
			}
		},
	}
}

var shellCommands = []*ishell.Cmd{
	sendCmd("u", []string{"average"}, "average six readings and classify", byte(dispatch.CmdAverage)),
	sendCmd("d", []string{"stream"}, "stream eight readings", byte(dispatch.CmdStream)),
	sendCmd("o", []string{"open"}, "open the hatch", byte(dispatch.CmdOpen)),
	sendCmd("c", []string{"close"}, "close the hatch", byte(dispatch.CmdClose)),
	{
		Name: "raw",
		Help: "BYTE  send one byte, as a character or a decimal number",
		Func: func(ctx *ishell.Context) {
			if len(ctx.Args) != 1 {
				ctx.Err(errors.New("raw needs one byte"))
				return
			}
			b, err := parseCommand(ctx.Args[0])
			if err != nil {
				ctx.Err(err)
				return
			}
			if err := clientFrom(ctx).tx.Send([]byte{b}); err != nil {
				ctx.Err(err)
			}
		},
	},
}

// shell runs the interactive shell. Responses are printed as they arrive.
// With args, it runs them as one command and returns.
func shell(ctx context.Context, c *client, args []string) error {
	sh := ishell.New()
	sh.SetPrompt("hatch > ")
	sh.Set(clientKey, c)
	for _, cmd := range shellCommands {
		sh.AddCmd(cmd)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-c.events:
				sh.Println(c.format(ev))
			}
		}
	}()

	if len(args) > 0 {
		return sh.Process(args...)
	}
	sh.Run()
	return nil
}
