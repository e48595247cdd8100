package timing

import (
	"context"
	"testing"
	"time"
)

func TestFakeClockSleepAdvances(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)

	if err := c.Sleep(context.Background(), time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Sleep(context.Background(), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := c.Now(); !got.Equal(start.Add(time.Second)) {
		t.Errorf("Now: got %v, want %v", got, start.Add(time.Second))
	}
	sleeps := c.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != 0 {
		t.Errorf("unexpected sleeps: %v", sleeps)
	}
}

func TestFakeClockSleepCancelled(t *testing.T) {
	c := NewFakeClock(time.Time{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Sleep(ctx, time.Second); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(c.Sleeps()) != 0 {
		t.Error("cancelled sleep should not be recorded")
	}
}

func TestFakeClockAfterFiresImmediately(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)

	select {
	case got := <-c.After(60 * time.Millisecond):
		if !got.Equal(start.Add(60 * time.Millisecond)) {
			t.Errorf("fired at %v", got)
		}
	default:
		t.Fatal("After channel should already have fired")
	}
	if w := c.Waits(); len(w) != 1 || w[0] != 60*time.Millisecond {
		t.Errorf("unexpected waits: %v", w)
	}
}

func TestRealClockSleepNonPositive(t *testing.T) {
	var c RealClock
	if err := c.Sleep(context.Background(), -time.Second); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRealClockSleepCancelled(t *testing.T) {
	var c RealClock
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Sleep(ctx, time.Hour); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
