// Package timing provides the sleep and timeout service the controller uses
// for trigger pacing, servo settle delays and the trip-wire poll interval.
// Code written against Clock runs unchanged on the wall clock or a fake.
package timing

import (
	"context"
	"time"
)

// Clock is the timing service.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Sleep blocks for d or until ctx is done. A non-positive d returns
	// immediately. Returns ctx.Err() if the context ended first.
	Sleep(ctx context.Context, d time.Duration) error
	// After returns a channel that receives once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// RealClock is the wall-clock implementation.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time { return time.Now() }

// Sleep waits for d or ctx cancellation.
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// After wraps time.After.
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
