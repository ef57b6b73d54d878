// Package notify delivers newly ingested punishments and reports to a
// Discord webhook and, optionally, to a Redis pub/sub channel.
package notify

import "time"

// TimerHandle allows stopping a scheduled callback.
type TimerHandle interface {
	Stop() bool
}

// AfterFunc schedules f to run after d. Returns a handle to cancel.
type AfterFunc func(d time.Duration, f func()) TimerHandle

// DefaultAfterFunc uses time.AfterFunc; *time.Timer satisfies TimerHandle.
var DefaultAfterFunc AfterFunc = func(d time.Duration, f func()) TimerHandle {
	return time.AfterFunc(d, f)
}
