package lock

import (
	"context"
	"time"
)

// Waiter suspends a polling acquisition between attempts. The retry loop is
// written once against this interface; the implementations differ only in how
// the calling goroutine spends the interval.
type Waiter interface {
	Wait(ctx context.Context, d time.Duration) error
}

// TimerWaiter suspends cooperatively and honors cancellation delivered while
// suspended. It is the default.
type TimerWaiter struct{}

// Wait implements Waiter.
func (TimerWaiter) Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SleepWaiter deschedules the calling goroutine for the full interval.
// Cancellation is observed only once the sleep returns, at the poll boundary.
type SleepWaiter struct{}

// Wait implements Waiter.
func (SleepWaiter) Wait(ctx context.Context, d time.Duration) error {
	time.Sleep(d)
	return ctx.Err()
}
