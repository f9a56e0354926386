package services

import "time"

// Clock abstracts wall time and delayed callbacks so session timers can be driven in tests
type Clock interface {
	Now() time.Time
	// AfterFunc runs f once d has elapsed. The returned func cancels it and
	// reports whether the call was stopped before running.
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// SystemClock is the real clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}
