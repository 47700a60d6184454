package main

import (
	"context"
	"time"
)

// systemClock implements syscallx.Clock against the real wall clock,
// racing Sleep against ctx cancellation the way device.RunBatch's
// Aborted-syscall retry contract expects.
type systemClock struct{}

func (systemClock) NowUnixMillis() int64 {
	return time.Now().UnixMilli()
}

func (systemClock) Sleep(ctx context.Context, millis uint32) error {
	t := time.NewTimer(time.Duration(millis) * time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
