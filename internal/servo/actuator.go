package servo

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/hatch-controller/internal/pwm"
	"github.com/sweeney/hatch-controller/internal/timing"
)

// Config controls the ramp shape.
type Config struct {
	Hold time.Duration `yaml:"hold"`
	Step uint32        `yaml:"step"`
}

// DefaultConfig returns the 150 ms hold, 500 tick step ramp.
func DefaultConfig() Config {
	return Config{Hold: DefaultHold, Step: DefaultStep}
}

// Actuator plays ramps on a PWM output.
type Actuator struct {
	out   pwm.Output
	clock timing.Clock
	cfg   Config

	// AfterClose, if set, runs after a completed close ramp.
	AfterClose func()

	mu       sync.Mutex
	position uint32
}

// NewActuator creates an actuator. A zero Step uses DefaultStep.
func NewActuator(out pwm.Output, clock timing.Clock, cfg Config) *Actuator {
	if cfg.Step == 0 {
		cfg.Step = DefaultStep
	}
	return &Actuator{out: out, clock: clock, cfg: cfg}
}

// Run starts the PWM at Period, applies each duty and holds it, then stops
// the output. The output is stopped even if the ramp fails part way.
func (a *Actuator) Run(ctx context.Context, r Ramp) error {
	if err := r.Validate(MinDuty, MaxDuty); err != nil {
		return err
	}
	if err := a.out.Start(Period); err != nil {
		return fmt.Errorf("start pwm: %w", err)
	}

	err := a.play(ctx, r)
	if stopErr := a.out.Stop(); stopErr != nil {
		log.Printf("servo: stop pwm: %v", stopErr)
		if err == nil {
			err = fmt.Errorf("stop pwm: %w", stopErr)
		}
	}
	return err
}

func (a *Actuator) play(ctx context.Context, r Ramp) error {
	for _, d := range r.Duties {
		if err := a.out.SetDuty(d); err != nil {
			return fmt.Errorf("%s ramp: %w", r.Name, err)
		}
		a.mu.Lock()
		a.position = d
		a.mu.Unlock()
		if err := a.clock.Sleep(ctx, r.Hold); err != nil {
			return fmt.Errorf("%s ramp: %w", r.Name, err)
		}
	}
	return nil
}

// OpenHatch plays the open ramp.
func (a *Actuator) OpenHatch(ctx context.Context) (Ramp, error) {
	r := LinearRamp("open", MinDuty, MaxDuty, a.cfg.Step, a.cfg.Hold)
	return r, a.Run(ctx, r)
}

// CloseHatch plays the close ramp, then calls AfterClose.
func (a *Actuator) CloseHatch(ctx context.Context) (Ramp, error) {
	r := LinearRamp("close", MaxDuty, MinDuty, a.cfg.Step, a.cfg.Hold)
	if err := a.Run(ctx, r); err != nil {
		return r, err
	}
	if a.AfterClose != nil {
		a.AfterClose()
	}
	return r, nil
}

// Position returns the last duty applied, or 0 before the first ramp.
func (a *Actuator) Position() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}
