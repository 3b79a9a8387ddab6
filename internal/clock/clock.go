// Package clock abstracts timer creation so schedulers can run against a
// fake clock in tests.
package clock

import "time"

// Timer is the cancelable handle returned by AfterFunc.
type Timer interface {
	// Stop prevents the callback from firing. Reports whether it was
	// still pending.
	Stop() bool
}

// Clock creates timers and reads the current time.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Real returns the wall clock.
func Real() Clock { return realClock{} }
