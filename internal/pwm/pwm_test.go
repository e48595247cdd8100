package pwm

import (
	"errors"
	"testing"

	"periph.io/x/periph/conn/gpio"
)

var (
	_ Output = (*FakeOutput)(nil)
	_ Output = (*RealOutput)(nil)
)

func TestDutyFor(t *testing.T) {
	tests := []struct {
		ticks, period uint32
		want          gpio.Duty
	}{
		{0, 20000, 0},
		{10000, 20000, gpio.DutyHalf},
		{20000, 20000, gpio.DutyMax},
		{30000, 20000, gpio.DutyMax},
		{1500, 20000, gpio.Duty(uint64(gpio.DutyMax) * 1500 / 20000)},
	}
	for _, tt := range tests {
		if got := dutyFor(tt.ticks, tt.period); got != tt.want {
			t.Errorf("dutyFor(%d, %d): got %d, want %d", tt.ticks, tt.period, got, tt.want)
		}
	}
}

func TestFakeOutputRecords(t *testing.T) {
	f := &FakeOutput{}

	if err := f.SetDuty(1500); !errors.Is(err, ErrNotStarted) {
		t.Errorf("SetDuty before Start: got %v, want ErrNotStarted", err)
	}

	f.Start(20000)
	f.SetDuty(1500)
	f.SetDuty(2500)
	f.Stop()

	if got := f.Starts(); len(got) != 1 || got[0] != 20000 {
		t.Errorf("Starts: got %v", got)
	}
	if got := f.Duties(); len(got) != 2 || got[0] != 1500 || got[1] != 2500 {
		t.Errorf("Duties: got %v", got)
	}
	if f.Stops() != 1 {
		t.Errorf("Stops: got %d, want 1", f.Stops())
	}
	if f.Running() {
		t.Error("should not be running after Stop")
	}

	f.Reset()
	if len(f.Duties()) != 0 || f.Stops() != 0 {
		t.Error("Reset should clear recorded activity")
	}
}
