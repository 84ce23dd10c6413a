// Package reconnect spaces out dial attempts.
package reconnect

import (
	"context"
	"time"
)

// Schedule defines the backoff durations for successive attempts.
var Schedule = []time.Duration{
	250 * time.Millisecond, 500 * time.Millisecond, time.Second,
	time.Second, 2 * time.Second, 5 * time.Second,
}

// Delay returns the backoff duration for the given attempt.
// Attempts beyond the length of the schedule default to 10 seconds.
func Delay(attempt int) time.Duration {
	if attempt < len(Schedule) {
		return Schedule[attempt]
	}
	return 10 * time.Second
}

// Retry calls fn until it succeeds, ctx ends or attempts run out (0 retries
// forever). It returns the last error of fn when giving up.
func Retry(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempts == 0 || attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempts != 0 && attempt == attempts-1 {
			break
		}
		t := time.NewTimer(Delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}
