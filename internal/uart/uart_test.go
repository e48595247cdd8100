package uart

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
)

var (
	_ Transmitter = (*Link)(nil)
	_ Transmitter = (*FakeLink)(nil)
)

// port is an in-memory serial port: reads come from in, writes go to out.
type port struct {
	in io.Reader

	mu     sync.Mutex
	out    bytes.Buffer
	closed bool
	block  chan struct{} // if set, Write waits on it
}

func (p *port) Read(b []byte) (int, error) { return p.in.Read(b) }

func (p *port) Write(b []byte) (int, error) {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Write(b)
}

func (p *port) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *port) written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

func TestLinkSendOrderAndFlushOnClose(t *testing.T) {
	p := &port{in: bytes.NewReader(nil)}
	l := newLink(p, 8)

	for _, s := range []string{"\r\n500094", "h", "r"} {
		if err := l.Send([]byte(s)); err != nil {
			t.Fatalf("send %q: %v", s, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := p.written(); got != "\r\n500094hr" {
		t.Errorf("written: got %q", got)
	}
	if !p.closed {
		t.Error("port should be closed")
	}
	if err := l.Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("send after close: got %v, want ErrClosed", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestLinkSendQueueFull(t *testing.T) {
	block := make(chan struct{})
	p := &port{in: bytes.NewReader(nil), block: block}
	l := newLink(p, 1)

	// The writer takes the first payload and blocks in Write; the second
	// fills the queue; the third has nowhere to go.
	l.Send([]byte("a"))
	var err error
	for i := 0; i < 100 && err == nil; i++ {
		err = l.Send([]byte("b"))
	}
	if !errors.Is(err, ErrTxFull) {
		t.Errorf("expected ErrTxFull, got %v", err)
	}

	close(block)
	l.Close()
}

func TestLinkServeDeliversBytes(t *testing.T) {
	p := &port{in: bytes.NewReader([]byte("udox"))}
	l := newLink(p, 4)
	defer l.Close()

	var got []byte
	if err := l.Serve(context.Background(), func(b byte) { got = append(got, b) }); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if string(got) != "udox" {
		t.Errorf("received: got %q, want %q", got, "udox")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("device gone") }

func TestLinkServeReadError(t *testing.T) {
	l := newLink(&port{in: failingReader{}}, 4)
	defer l.Close()

	if err := l.Serve(context.Background(), func(byte) {}); err == nil {
		t.Error("expected read error")
	}
}

func TestLinkServeCancelled(t *testing.T) {
	l := newLink(&port{in: failingReader{}}, 4)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Serve(ctx, func(byte) {}); err != nil {
		t.Errorf("cancelled serve should return nil, got %v", err)
	}
}

func TestFakeLink(t *testing.T) {
	f := &FakeLink{}
	f.Send([]byte("\r\n"))
	f.Send([]byte("500094"))

	if string(f.Bytes()) != "\r\n500094" {
		t.Errorf("Bytes: got %q", f.Bytes())
	}
	if len(f.Sent()) != 2 {
		t.Errorf("Sent: got %d payloads, want 2", len(f.Sent()))
	}

	f.SendError = ErrTxFull
	if err := f.Send([]byte("h")); !errors.Is(err, ErrTxFull) {
		t.Errorf("expected ErrTxFull, got %v", err)
	}
	f.Reset()
	if len(f.Bytes()) != 0 {
		t.Error("Reset should clear output")
	}
}
