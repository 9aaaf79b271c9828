package avdecc

import "time"

// Clock is the monotonic-time source every machine's timers read. The
// core never sleeps internally; Tick() callers drive time forward, and
// tests substitute a fake Clock to assert exact timeout behaviour without
// real delays.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the default Clock, backed by time.Now.
var SystemClock Clock = systemClock{}
