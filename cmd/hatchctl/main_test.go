package main

import (
	"context"
	"testing"
	"time"

	"github.com/sweeney/hatch-controller/internal/event"
	"github.com/sweeney/hatch-controller/internal/host"
	"github.com/sweeney/hatch-controller/internal/uart"
)

// scriptedLink answers each command byte with a fixed response, fed
// straight back into the client as if read off the wire.
type scriptedLink struct {
	uart.FakeLink
	c       *client
	replies map[byte]string
}

func (s *scriptedLink) Send(p []byte) error {
	if err := s.FakeLink.Send(p); err != nil {
		return err
	}
	for _, b := range []byte(s.replies[p[0]]) {
		s.c.onByte(b)
	}
	return nil
}

func newScripted(unit string, divisor uint64, replies map[byte]string) (*client, *scriptedLink) {
	link := &scriptedLink{replies: replies}
	c := newClient(link, host.NewDecoder(divisor, nil), unit)
	link.c = c
	return c, link
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want byte
		ok   bool
	}{
		{"u", 'u', true},
		{"average", 'u', true},
		{"stream", 'd', true},
		{"o", 'o', true},
		{"close", 'c', true},
		{"120", 'x', true},
		{"z", 'z', true},
		{"300", 0, false},
		{"bogus", 0, false},
	}
	for _, tt := range tests {
		got, err := parseCommand(tt.in)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("parseCommand(%q): got %q, %v; want %q", tt.in, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Errorf("parseCommand(%q): expected error", tt.in)
		}
	}
}

func TestExchangeAverage(t *testing.T) {
	c, link := newScripted("um", 1, map[byte]string{'u': "h"})

	evs, err := c.exchange(context.Background(), 'u', time.Second)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if len(evs) != 1 || evs[0].Type != event.TypeClassified || evs[0].Class != "h" {
		t.Errorf("got %+v", evs)
	}
	if string(link.Bytes()) != "u" {
		t.Errorf("sent: got %q, want \"u\"", link.Bytes())
	}
}

func TestExchangeAverageTimeout(t *testing.T) {
	c, _ := newScripted("um", 1, nil)
	if _, err := c.exchange(context.Background(), 'u', 20*time.Millisecond); err == nil {
		t.Error("expected timeout error with no classification")
	}
}

func TestExchangeStreamFlushesLastValue(t *testing.T) {
	c, _ := newScripted("mm", 1000, map[byte]string{'d': "\r\n500\r\n50\r\n1000"})

	evs, err := c.exchange(context.Background(), 'd', 20*time.Millisecond)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("expected 3 values, got %+v", evs)
	}
	want := []uint64{500000, 50000, 1000000}
	for i, ev := range evs {
		if ev.DistanceUM != want[i] {
			t.Errorf("value %d: got %d, want %d", i, ev.DistanceUM, want[i])
		}
	}
	if got := c.format(evs[0]); got != "distance 500 mm" {
		t.Errorf("format: got %q", got)
	}
}

func TestExchangeOpenHasNoResponse(t *testing.T) {
	c, link := newScripted("um", 1, nil)
	evs, err := c.exchange(context.Background(), 'o', time.Second)
	if err != nil || len(evs) != 0 {
		t.Errorf("got %+v, %v", evs, err)
	}
	if string(link.Bytes()) != "o" {
		t.Errorf("sent: got %q", link.Bytes())
	}
}

func TestExchangeSendError(t *testing.T) {
	c, link := newScripted("um", 1, nil)
	link.SendError = uart.ErrTxFull
	if _, err := c.exchange(context.Background(), 'u', time.Second); err == nil {
		t.Error("expected send error")
	}
}

func TestFormatAlert(t *testing.T) {
	c, _ := newScripted("cm", 10000, nil)
	c.onByte('r')
	ev := <-c.events
	if got := c.format(ev); got != "trip-wire alert" {
		t.Errorf("got %q", got)
	}
}
