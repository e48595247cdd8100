// Package config loads the controller configuration. Every field has a
// default; an optional YAML file overrides defaults and command-line flags
// override the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/sweeney/hatch-controller/internal/capture"
	"github.com/sweeney/hatch-controller/internal/dispatch"
	"github.com/sweeney/hatch-controller/internal/gpio"
	"github.com/sweeney/hatch-controller/internal/pwm"
	"github.com/sweeney/hatch-controller/internal/servo"
	"github.com/sweeney/hatch-controller/internal/tripwire"
	"github.com/sweeney/hatch-controller/internal/uart"
)

// Distance units accepted by the unit setting.
const (
	UnitMicrometres = "um"
	UnitMillimetres = "mm"
	UnitCentimetres = "cm"
)

var unitDivisors = map[string]uint64{
	UnitMicrometres: 1,
	UnitMillimetres: 1000,
	UnitCentimetres: 10000,
}

// GPIO selects the sensor lines.
type GPIO struct {
	Chip    string `yaml:"chip"`
	Trigger int    `yaml:"trigger"`
	Echo    int    `yaml:"echo"`
}

// ADC selects the trip-wire input.
type ADC struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
	Channel uint8  `yaml:"channel"`
}

// MQTT configures event publishing. An empty broker disables it.
type MQTT struct {
	Broker    string        `yaml:"broker"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// Config is the full controller configuration.
type Config struct {
	Calibration capture.Calibration `yaml:"calibration"`
	GPIO        GPIO                `yaml:"gpio"`
	PWMPin      string              `yaml:"pwm_pin"`
	ADC         ADC                 `yaml:"adc"`
	UART        uart.Config         `yaml:"uart"`

	// Unit is the distance unit averaged, classified and streamed.
	Unit     string          `yaml:"unit"`
	Dispatch dispatch.Config `yaml:"dispatch"`
	Servo    servo.Config    `yaml:"servo"`
	Tripwire tripwire.Config `yaml:"tripwire"`

	// ReinitAfterClose re-initialises the capture timer after a close ramp.
	ReinitAfterClose bool `yaml:"reinit_after_close"`

	MQTT MQTT   `yaml:"mqtt"`
	HTTP string `yaml:"http"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Calibration: capture.DefaultCalibration(),
		GPIO: GPIO{
			Chip:    gpio.DefaultChip,
			Trigger: gpio.DefaultPinTrigger,
			Echo:    gpio.DefaultPinEcho,
		},
		PWMPin: pwm.DefaultPin,
		ADC: ADC{
			Enabled: true,
			Port:    "/dev/spidev0.0",
		},
		UART:     uart.DefaultConfig(),
		Unit:     UnitMicrometres,
		Dispatch: dispatch.DefaultConfig(),
		Servo:    servo.DefaultConfig(),
		Tripwire: tripwire.DefaultConfig(),
		MQTT: MQTT{
			Broker:    "tcp://192.168.1.200:1883",
			Heartbeat: 15 * time.Minute,
		},
		HTTP: ":80",
	}
}

// Load reads a YAML file over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration. A calibration problem wraps
// capture.ErrUncalibrated so callers can halt instead of exiting.
func (c Config) Validate() error {
	if err := c.Calibration.Validate(); err != nil {
		return err
	}
	if _, ok := unitDivisors[c.Unit]; !ok {
		return fmt.Errorf("unknown unit %q (want um, mm or cm)", c.Unit)
	}
	if err := c.DispatchConfig().Validate(); err != nil {
		return err
	}
	if c.UART.Port == "" {
		return errors.New("uart port is required")
	}
	if c.ADC.Enabled && c.Tripwire.Interval <= 0 {
		return errors.New("tripwire interval must be positive")
	}
	return nil
}

// UnitDivisor returns the micrometre divisor for unit, or 0 if unknown.
func UnitDivisor(unit string) uint64 {
	return unitDivisors[unit]
}

// DispatchConfig returns the dispatcher settings with the unit applied.
func (c Config) DispatchConfig() dispatch.Config {
	d := c.Dispatch
	d.UnitDivisor = UnitDivisor(c.Unit)
	return d
}
