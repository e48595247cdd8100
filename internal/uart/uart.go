// Package uart is the serial command link to the host: single command bytes
// in, response bytes out. Outgoing bytes go through a bounded transmit queue
// drained by one writer goroutine, so callers never block on the port.
package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Defaults match the host side: 9600 baud 8N1.
const (
	DefaultPort      = "/dev/serial0"
	DefaultBaudRate  = 9600
	DefaultQueueSize = 64

	readTimeout = 100 * time.Millisecond
)

var (
	// ErrTxFull is returned by Send when the transmit queue has no room.
	ErrTxFull = errors.New("uart: transmit queue full")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("uart: link closed")
)

// Config holds the serial port settings.
type Config struct {
	Port      string `yaml:"port"`
	BaudRate  int    `yaml:"baud_rate"`
	QueueSize int    `yaml:"queue_size"`
}

// DefaultConfig returns the 9600 8N1 settings on the default port.
func DefaultConfig() Config {
	return Config{Port: DefaultPort, BaudRate: DefaultBaudRate, QueueSize: DefaultQueueSize}
}

// Transmitter queues bytes for the host.
type Transmitter interface {
	Send(p []byte) error
}

// readTimeouter is implemented by serial ports.
type readTimeouter interface {
	SetReadTimeout(t time.Duration) error
}

// Link is an open serial connection.
type Link struct {
	rw io.ReadWriteCloser

	mu     sync.RWMutex
	closed bool
	tx     chan []byte
	done   chan struct{}
}

// Open opens the serial port in 8N1 mode.
func Open(cfg Config) (*Link, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}
	return newLink(p, cfg.QueueSize), nil
}

func newLink(rw io.ReadWriteCloser, queueSize int) *Link {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	l := &Link{
		rw:   rw,
		tx:   make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
	go l.writer()
	return l
}

// writer is the only goroutine that writes to the port.
func (l *Link) writer() {
	defer close(l.done)
	for p := range l.tx {
		if _, err := l.rw.Write(p); err != nil {
			log.Printf("uart: write failed: %v", err)
		}
	}
}

// Send queues p for transmission without blocking. Bytes from concurrent
// callers are written in enqueue order.
func (l *Link) Send(p []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	buf := append([]byte(nil), p...)
	select {
	case l.tx <- buf:
		return nil
	default:
		return ErrTxFull
	}
}

// Serve reads bytes from the port and passes each one to onByte until ctx
// is done or the port returns an error. Returns nil on ctx cancellation or EOF.
func (l *Link) Serve(ctx context.Context, onByte func(byte)) error {
	if rt, ok := l.rw.(readTimeouter); ok {
		if err := rt.SetReadTimeout(readTimeout); err != nil {
			return fmt.Errorf("set read timeout: %w", err)
		}
	}

	buf := make([]byte, 64)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := l.rw.Read(buf)
		for _, b := range buf[:n] {
			onByte(b)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read from serial: %w", err)
		}
	}
}

// Close flushes queued bytes and closes the port.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.tx)
	l.mu.Unlock()

	<-l.done
	return l.rw.Close()
}
