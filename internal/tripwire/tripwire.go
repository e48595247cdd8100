// Package tripwire watches an analog input and alerts the host when it
// crosses a threshold.
package tripwire

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sweeney/hatch-controller/internal/adc"
	"github.com/sweeney/hatch-controller/internal/event"
	"github.com/sweeney/hatch-controller/internal/timing"
	"github.com/sweeney/hatch-controller/internal/uart"
)

// AlertByte is transmitted when the trip-wire fires.
const AlertByte byte = 'r'

// Config controls the poll interval and alert threshold.
type Config struct {
	Interval  time.Duration `yaml:"interval"`
	Threshold uint16        `yaml:"threshold"`
}

// DefaultConfig polls every 3 s and alerts above 200.
func DefaultConfig() Config {
	return Config{Interval: 3 * time.Second, Threshold: 200}
}

// Tripped reports whether sample breaches threshold. Equal is not a breach.
func Tripped(sample, threshold uint16) bool {
	return sample > threshold
}

// State is a snapshot of the monitor.
type State struct {
	LastSample uint16
	Threshold  uint16
	Polls      uint64
	Alerts     uint64
	Errors     uint64
	AlertSent  bool // last poll transmitted an alert
}

// Monitor polls the converter on a fixed interval.
type Monitor struct {
	cfg   Config
	adc   adc.Converter
	tx    uart.Transmitter
	clock timing.Clock
	sink  event.Sink

	mu    sync.Mutex
	state State
}

// New creates a monitor. A nil sink discards events.
func New(cfg Config, conv adc.Converter, tx uart.Transmitter, clock timing.Clock, sink event.Sink) *Monitor {
	if sink == nil {
		sink = event.Discard{}
	}
	return &Monitor{
		cfg:   cfg,
		adc:   conv,
		tx:    tx,
		clock: clock,
		sink:  sink,
		state: State{Threshold: cfg.Threshold},
	}
}

// Run sleeps for the interval then polls, until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		if err := m.clock.Sleep(ctx, m.cfg.Interval); err != nil {
			return nil
		}
		m.Poll(ctx)
	}
}

// Poll performs one conversion and alerts on a breach. Conversion and
// transmit failures are logged and the poll is dropped.
func (m *Monitor) Poll(ctx context.Context) {
	sample, err := m.adc.Convert(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("tripwire: conversion failed: %v", err)
		}
		m.mu.Lock()
		m.state.Errors++
		m.mu.Unlock()
		return
	}

	tripped := Tripped(sample, m.cfg.Threshold)

	m.mu.Lock()
	m.state.Polls++
	m.state.LastSample = sample
	m.state.AlertSent = false
	m.mu.Unlock()

	if !tripped {
		return
	}

	log.Printf("tripwire: sample %d above threshold %d", sample, m.cfg.Threshold)
	if err := m.tx.Send([]byte{AlertByte}); err != nil {
		log.Printf("tripwire: alert dropped: %v", err)
		return
	}

	m.mu.Lock()
	m.state.Alerts++
	m.state.AlertSent = true
	m.mu.Unlock()
	m.sink.Emit(event.Event{Timestamp: m.clock.Now(), Type: event.TypeAlert, Sample: sample})
}

// State returns a copy of the monitor state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
