// Package dispatch owns the single-byte command protocol. It decodes command
// bytes from the host, runs measurement sessions against the capture engine,
// moves the hatch, and reports results back over the serial link.
package dispatch

import (
	"errors"
	"fmt"
	"time"
)

// Command is a protocol command byte.
type Command byte

const (
	CmdAverage Command = 'u' // averaged, classified session
	CmdStream  Command = 'd' // streaming session
	CmdOpen    Command = 'o'
	CmdClose   Command = 'c'
)

// Classification bytes sent after an averaged session.
const (
	ClassHigh byte = 'h'
	ClassLow  byte = 'l'
)

// StreamPrefix precedes every streamed distance.
const StreamPrefix = "\r\n"

// ErrBusy is returned when a command arrives while another is running.
var ErrBusy = errors.New("dispatch: busy")

// State is the dispatcher's activity.
type State int32

const (
	StateIdle State = iota
	StateMeasuring
	StateActuating
)

func (s State) String() string {
	switch s {
	case StateMeasuring:
		return "MEASURING"
	case StateActuating:
		return "ACTUATING"
	}
	return "IDLE"
}

// Config holds session and classification parameters.
type Config struct {
	AveragePulses   int           `yaml:"average_pulses"`
	AverageInterval time.Duration `yaml:"average_interval"`
	StreamPulses    int           `yaml:"stream_pulses"`
	StreamInterval  time.Duration `yaml:"stream_interval"`
	EchoTimeout     time.Duration `yaml:"echo_timeout"`
	TriggerWidth    time.Duration `yaml:"trigger_width"`

	// Threshold splits averaged distances into 'h' (below) and 'l'.
	Threshold uint64 `yaml:"threshold"`
	// UnitDivisor converts micrometres into the unit that is averaged,
	// classified and streamed. 1 keeps micrometres.
	UnitDivisor uint64 `yaml:"-"`
}

// DefaultConfig returns six pulses 1 s apart for 'u', eight 2 s apart for
// 'd', and a 60000 threshold on micrometres.
func DefaultConfig() Config {
	return Config{
		AveragePulses:   6,
		AverageInterval: time.Second,
		StreamPulses:    8,
		StreamInterval:  2 * time.Second,
		EchoTimeout:     60 * time.Millisecond,
		TriggerWidth:    10 * time.Microsecond,
		Threshold:       60000,
		UnitDivisor:     1,
	}
}

// Validate checks the config for values a session cannot run with.
func (c Config) Validate() error {
	if c.AveragePulses <= 0 || c.StreamPulses <= 0 {
		return fmt.Errorf("dispatch: pulse counts must be positive (average=%d stream=%d)",
			c.AveragePulses, c.StreamPulses)
	}
	if c.UnitDivisor == 0 {
		return errors.New("dispatch: unit divisor must be positive")
	}
	if c.EchoTimeout <= 0 {
		return errors.New("dispatch: echo timeout must be positive")
	}
	return nil
}

// Classify maps an averaged distance onto a classification byte.
func Classify(avg, threshold uint64) byte {
	if avg < threshold {
		return ClassHigh
	}
	return ClassLow
}

// Stats counts dispatcher activity since startup.
type Stats struct {
	Commands     uint64 // known commands run
	Rejected     uint64 // bytes refused while busy
	EchoTimeouts uint64 // pulses with no valid echo
	TxDropped    uint64 // responses the transmit queue refused
}
